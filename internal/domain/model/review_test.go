package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindingCategory(t *testing.T) {
	t.Run("valid categories", func(t *testing.T) {
		for _, c := range []FindingCategory{FindingStyle, FindingBug, FindingPerformance, FindingBestPractice, FindingSecurity} {
			assert.True(t, c.Valid(), "category %q should be valid", c)
		}
	})

	t.Run("invalid category", func(t *testing.T) {
		assert.False(t, FindingCategory("nitpick").Valid())
		assert.False(t, FindingCategory("").Valid())
	})

	t.Run("critical categories", func(t *testing.T) {
		assert.True(t, FindingSecurity.Critical())
		assert.True(t, FindingBug.Critical())
		assert.False(t, FindingStyle.Critical())
		assert.False(t, FindingPerformance.Critical())
		assert.False(t, FindingBestPractice.Critical())
	})
}

func TestReviewPayload_ComputeSummary(t *testing.T) {
	t.Run("counts files, issues, and critical issues", func(t *testing.T) {
		payload := &ReviewPayload{
			Files: []FileReview{
				{
					Path: "a.py",
					Findings: []Finding{
						{Category: FindingStyle, Description: "long line"},
						{Category: FindingSecurity, Description: "eval"},
					},
				},
				{
					Path: "b.py",
					Findings: []Finding{
						{Category: FindingBug, Description: "bare except"},
					},
				},
				{Path: "c.py", Findings: []Finding{}},
			},
		}
		payload.ComputeSummary()

		assert.Equal(t, 3, payload.Summary.TotalFiles)
		assert.Equal(t, 3, payload.Summary.TotalIssues)
		assert.Equal(t, 2, payload.Summary.CriticalIssues)
	})

	t.Run("empty payload", func(t *testing.T) {
		payload := &ReviewPayload{}
		payload.ComputeSummary()
		assert.Equal(t, ReviewSummary{}, payload.Summary)
	})
}

func TestReviewPayload_Validate(t *testing.T) {
	valid := func() *ReviewPayload {
		p := &ReviewPayload{
			Files: []FileReview{
				{
					Path: "main.py",
					Findings: []Finding{
						{Category: FindingSecurity, Line: 3, Description: "eval use"},
					},
				},
			},
		}
		p.ComputeSummary()
		return p
	}

	t.Run("valid payload", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("nil payload", func(t *testing.T) {
		var p *ReviewPayload
		require.Error(t, p.Validate())
	})

	t.Run("missing file path", func(t *testing.T) {
		p := valid()
		p.Files[0].Path = ""
		assert.ErrorContains(t, p.Validate(), "file path is required")
	})

	t.Run("unknown category", func(t *testing.T) {
		p := valid()
		p.Files[0].Findings[0].Category = "typo"
		assert.ErrorContains(t, p.Validate(), "invalid finding category")
	})

	t.Run("missing description", func(t *testing.T) {
		p := valid()
		p.Files[0].Findings[0].Description = ""
		assert.ErrorContains(t, p.Validate(), "no description")
	})

	t.Run("inconsistent total issues", func(t *testing.T) {
		p := valid()
		p.Summary.TotalIssues = 9
		assert.ErrorContains(t, p.Validate(), "total_issues")
	})

	t.Run("inconsistent critical issues", func(t *testing.T) {
		p := valid()
		p.Summary.CriticalIssues = 0
		assert.ErrorContains(t, p.Validate(), "critical_issues")
	})

	t.Run("inconsistent file count", func(t *testing.T) {
		p := valid()
		p.Summary.TotalFiles = 5
		assert.ErrorContains(t, p.Validate(), "total_files")
	})
}
