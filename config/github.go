package config

import (
	"strings"
	"time"
)

// GitHubConfig contains configuration for the pull request fetcher.
type GitHubConfig struct {
	// APIBaseURL is the GitHub REST API base. Override for GitHub Enterprise.
	APIBaseURL string `env:"GITHUB_API_BASE_URL" envDefault:"https://api.github.com"`

	// Timeout bounds each API request.
	Timeout time.Duration `env:"GITHUB_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to GitHub configuration values.
func (g *GitHubConfig) Sanitize() {
	g.APIBaseURL = strings.TrimRight(g.APIBaseURL, "/")
	if g.APIBaseURL == "" {
		g.APIBaseURL = "https://api.github.com"
	}
	if g.Timeout <= 0 {
		g.Timeout = 30 * time.Second
	}
}
