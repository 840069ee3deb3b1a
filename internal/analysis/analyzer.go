package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/pullcheck/pullcheck/internal/domain/model"
)

const maxLineLength = 120

// securityPatterns flag constructs that execute or deserialize untrusted
// input.
var securityPatterns = []struct {
	re          *regexp.Regexp
	description string
	fix         string
}{
	{
		re:          regexp.MustCompile(`\beval\s*\(`),
		description: "Avoid using eval() as it can execute arbitrary code",
		fix:         "Use safer alternatives or add strict input validation",
	},
	{
		re:          regexp.MustCompile(`subprocess\..*shell\s*=\s*True`),
		description: "shell=True in subprocess can be a security risk",
		fix:         "Pass the command as an argument list without a shell",
	},
	{
		re:          regexp.MustCompile(`pickle\..*load`),
		description: "Avoid unpickling data from untrusted sources",
		fix:         "Use a safe serialization format such as JSON",
	},
	{
		re:          regexp.MustCompile(`(?i)\b(password|secret|api_key|apikey|token)\s*=\s*["'][^"']+["']`),
		description: "Possible hardcoded credential",
		fix:         "Load secrets from the environment or a secret manager",
	},
}

var (
	loopRe   = regexp.MustCompile(`\bfor\b`)
	appendRe = regexp.MustCompile(`\.append\s*\(`)
	// Detects branching keywords for the nesting depth estimate.
	branchRe = regexp.MustCompile(`^\s*(if|elif|else|for|while|case|switch|select)\b`)
	bugRe    = regexp.MustCompile(`^\s*except\s*:\s*$|^\s*except\s+Exception\s*:\s*(pass)?\s*$|\bcatch\s*\(\s*\)|== None\b|!= None\b`)
)

// Analyzer runs the heuristic review rules over a fetched pull request.
// It implements core.Analyzer.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze parses the patch and applies every rule family to the added lines
// of each file. An empty patch yields an empty, valid payload.
func (a *Analyzer) Analyze(ctx context.Context, details *model.PullDetails) (*model.ReviewPayload, error) {
	if details == nil {
		return nil, fmt.Errorf("pull details are required")
	}

	payload := &model.ReviewPayload{Files: []model.FileReview{}}

	for _, fp := range ParsePatch(details.Patch) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		review := model.FileReview{Path: fp.Path, Findings: []model.Finding{}}
		review.Findings = append(review.Findings, checkStyle(fp.Added)...)
		review.Findings = append(review.Findings, checkSecurity(fp.Added)...)
		review.Findings = append(review.Findings, checkBugs(fp.Added)...)
		review.Findings = append(review.Findings, checkPerformance(fp.Added)...)
		review.Findings = append(review.Findings, checkComplexity(fp.Added)...)
		payload.Files = append(payload.Files, review)
	}

	payload.ComputeSummary()

	if a.logger != nil {
		a.logger.DebugContext(ctx, "analysis complete",
			"pull", details.Ref.String(),
			"files", payload.Summary.TotalFiles,
			"issues", payload.Summary.TotalIssues,
		)
	}
	return payload, nil
}

func checkStyle(lines []AddedLine) []model.Finding {
	var findings []model.Finding
	for _, l := range lines {
		if len(l.Text) > maxLineLength {
			findings = append(findings, model.Finding{
				Category:     model.FindingStyle,
				Line:         l.Number,
				Description:  fmt.Sprintf("Line exceeds recommended length of %d characters (current: %d)", maxLineLength, len(l.Text)),
				SuggestedFix: "Break the line into multiple lines or refactor",
			})
		}
	}
	return findings
}

func checkSecurity(lines []AddedLine) []model.Finding {
	var findings []model.Finding
	for _, l := range lines {
		for _, p := range securityPatterns {
			if p.re.MatchString(l.Text) {
				findings = append(findings, model.Finding{
					Category:     model.FindingSecurity,
					Line:         l.Number,
					Description:  p.description,
					SuggestedFix: p.fix,
				})
			}
		}
	}
	return findings
}

func checkBugs(lines []AddedLine) []model.Finding {
	var findings []model.Finding
	for _, l := range lines {
		if bugRe.MatchString(l.Text) {
			findings = append(findings, model.Finding{
				Category:     model.FindingBug,
				Line:         l.Number,
				Description:  "Error-prone construct: broad exception handling or None comparison",
				SuggestedFix: "Handle specific error cases and use identity checks where appropriate",
			})
		}
	}
	return findings
}

// checkPerformance flags list building with append inside a loop body. One
// finding per file, at the first append, matching the original single-flag
// behavior.
func checkPerformance(lines []AddedLine) []model.Finding {
	sawLoop := false
	for _, l := range lines {
		if loopRe.MatchString(l.Text) {
			sawLoop = true
		}
		if sawLoop && appendRe.MatchString(l.Text) {
			return []model.Finding{{
				Category:     model.FindingPerformance,
				Line:         l.Number,
				Description:  "Potential inefficient list building inside a loop",
				SuggestedFix: "Consider a comprehension, generator, or preallocated slice",
			}}
		}
	}
	return nil
}

// checkComplexity estimates branching density over the added lines. It is a
// cheap stand-in for full cyclomatic complexity, which would require parsing
// the target language.
func checkComplexity(lines []AddedLine) []model.Finding {
	const branchThreshold = 10

	branches := 0
	firstBranchLine := 0
	for _, l := range lines {
		if branchRe.MatchString(l.Text) {
			if branches == 0 {
				firstBranchLine = l.Number
			}
			branches++
		}
	}
	if branches <= branchThreshold {
		return nil
	}
	return []model.Finding{{
		Category:     model.FindingBestPractice,
		Line:         firstBranchLine,
		Description:  fmt.Sprintf("High branching density in changed code (%d branch points)", branches),
		SuggestedFix: "Consider refactoring into smaller, more focused functions",
	}}
}
