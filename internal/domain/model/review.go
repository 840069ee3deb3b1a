// Package model defines the core data types for the pullcheck review system.
package model

import (
	"errors"
	"fmt"
)

// FindingCategory classifies a single review finding.
type FindingCategory string

const (
	// FindingStyle flags formatting and style issues.
	FindingStyle FindingCategory = "style"
	// FindingBug flags likely defects.
	FindingBug FindingCategory = "bug"
	// FindingPerformance flags performance anti-patterns.
	FindingPerformance FindingCategory = "performance"
	// FindingBestPractice flags design and maintainability concerns.
	FindingBestPractice FindingCategory = "best_practice"
	// FindingSecurity flags potential security vulnerabilities.
	FindingSecurity FindingCategory = "security"
)

// Valid returns true if the FindingCategory is one of the known categories.
func (c FindingCategory) Valid() bool {
	switch c {
	case FindingStyle, FindingBug, FindingPerformance, FindingBestPractice, FindingSecurity:
		return true
	default:
		return false
	}
}

// Critical returns true for categories counted toward Summary.CriticalIssues.
func (c FindingCategory) Critical() bool {
	return c == FindingSecurity || c == FindingBug
}

// Finding is a single issue raised against a reviewed file.
type Finding struct {
	Category     FindingCategory `json:"category"`
	Line         int             `json:"line,omitempty"`
	Description  string          `json:"description"`
	SuggestedFix string          `json:"suggested_fix,omitempty"`
}

// FileReview groups the findings for one file touched by the pull request.
type FileReview struct {
	Path     string    `json:"path"`
	Findings []Finding `json:"findings"`
}

// ReviewSummary aggregates finding counts across all reviewed files.
type ReviewSummary struct {
	TotalFiles     int `json:"total_files"`
	TotalIssues    int `json:"total_issues"`
	CriticalIssues int `json:"critical_issues"`
}

// ReviewPayload is the structured output of one pull request review.
// It is stored both as the job result and as the cache entry for its pull.
type ReviewPayload struct {
	Files   []FileReview  `json:"files"`
	Summary ReviewSummary `json:"summary"`
}

// ComputeSummary recalculates Summary from Files. TotalIssues always equals
// the total finding count and CriticalIssues counts security and bug findings.
func (p *ReviewPayload) ComputeSummary() {
	summary := ReviewSummary{TotalFiles: len(p.Files)}
	for _, file := range p.Files {
		summary.TotalIssues += len(file.Findings)
		for _, f := range file.Findings {
			if f.Category.Critical() {
				summary.CriticalIssues++
			}
		}
	}
	p.Summary = summary
}

// Validate checks payload structure and summary consistency. It is applied at
// the store boundary so malformed analyzer output is rejected rather than
// persisted.
func (p *ReviewPayload) Validate() error {
	if p == nil {
		return errors.New("review payload is required")
	}

	issues := 0
	critical := 0
	for _, file := range p.Files {
		if file.Path == "" {
			return errors.New("file path is required")
		}
		for _, f := range file.Findings {
			if !f.Category.Valid() {
				return fmt.Errorf("invalid finding category: %q", f.Category)
			}
			if f.Description == "" {
				return fmt.Errorf("finding in %s has no description", file.Path)
			}
			issues++
			if f.Category.Critical() {
				critical++
			}
		}
	}

	if p.Summary.TotalFiles != len(p.Files) {
		return fmt.Errorf("summary total_files %d does not match %d files", p.Summary.TotalFiles, len(p.Files))
	}
	if p.Summary.TotalIssues != issues {
		return fmt.Errorf("summary total_issues %d does not match %d findings", p.Summary.TotalIssues, issues)
	}
	if p.Summary.CriticalIssues != critical {
		return fmt.Errorf("summary critical_issues %d does not match %d critical findings", p.Summary.CriticalIssues, critical)
	}
	return nil
}
