// Package analysis implements the heuristic pull request review engine. It
// parses unified diffs and runs rule-based checks over the added lines.
package analysis

import (
	"strconv"
	"strings"
)

// AddedLine is a single line introduced by a patch, with its line number in
// the new version of the file.
type AddedLine struct {
	Number int
	Text   string
}

// FilePatch holds the added lines for one file in a unified diff.
type FilePatch struct {
	Path  string
	Added []AddedLine
}

// ParsePatch extracts per-file added lines from a unified diff. Deleted files
// and files with no additions are returned with an empty Added slice so the
// summary still counts them. Malformed hunk headers are skipped rather than
// rejected; the GitHub API occasionally serves patches with truncated hunks.
func ParsePatch(patch string) []FilePatch {
	var (
		files   []FilePatch
		current *FilePatch
		newLine int
		inHunk  bool
	)

	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			path := parseFileHeader(line)
			if path == "" {
				current = nil
				continue
			}
			files = append(files, FilePatch{Path: path})
			current = &files[len(files)-1]
			inHunk = false

		case strings.HasPrefix(line, "@@"):
			if current == nil {
				continue
			}
			start, ok := parseHunkHeader(line)
			if !ok {
				inHunk = false
				continue
			}
			newLine = start
			inHunk = true

		case current == nil || !inHunk:
			continue

		case strings.HasPrefix(line, "+"):
			current.Added = append(current.Added, AddedLine{Number: newLine, Text: line[1:]})
			newLine++

		case strings.HasPrefix(line, "-"):
			// Deletion only affects the old file's numbering.

		case strings.HasPrefix(line, "\\"):
			// "\ No newline at end of file"

		default:
			newLine++
		}
	}

	return files
}

// parseFileHeader extracts the path from a "+++ b/path" header. Returns ""
// for /dev/null (deleted files).
func parseFileHeader(line string) string {
	path := strings.TrimPrefix(line, "+++ ")
	if tab := strings.IndexByte(path, '\t'); tab >= 0 {
		path = path[:tab]
	}
	if path == "/dev/null" {
		return ""
	}
	path = strings.TrimPrefix(path, "b/")
	return path
}

// parseHunkHeader extracts the new-file start line from an
// "@@ -l,c +l,c @@" header.
func parseHunkHeader(line string) (int, bool) {
	plus := strings.Index(line, "+")
	if plus < 0 {
		return 0, false
	}
	rest := line[plus+1:]
	end := strings.IndexAny(rest, ", @")
	if end < 0 {
		end = len(rest)
	}
	start, err := strconv.Atoi(rest[:end])
	if err != nil || start < 0 {
		return 0, false
	}
	if start == 0 {
		// "+0,0" appears for empty new files.
		start = 1
	}
	return start, true
}
