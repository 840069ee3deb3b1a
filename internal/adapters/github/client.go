// Package github fetches pull request metadata and patches from the GitHub
// REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/pullcheck/pullcheck/internal/domain/model"
	apperrors "github.com/pullcheck/pullcheck/internal/errors"
)

const (
	jsonAccept  = "application/vnd.github+json"
	patchAccept = "application/vnd.github.v3.patch"

	// GitHub serves pull request patches up to about 20k lines; cap reads
	// well above that so a hostile server cannot exhaust memory.
	maxResponseBytes = 16 << 20
)

// Client implements core.ArtifactFetcher against the GitHub REST API. Each
// fetch builds a fresh oauth2 transport around the caller-supplied token, so
// one client serves requests for any number of repositories.
type Client struct {
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, without a trailing slash. Defaults to the
	// public GitHub API.
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewClient creates a GitHub API client.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		logger:  opts.Logger,
	}
}

type pullResponse struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// FetchPull retrieves the pull request metadata and its unified diff.
func (c *Client) FetchPull(ctx context.Context, ref model.PullRef, token string) (*model.PullDetails, error) {
	if err := ref.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if token == "" {
		return nil, apperrors.Validation("github token is required")
	}

	httpClient := c.httpClient(ctx, token)
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, ref.Owner, ref.Repo, ref.Number)

	var meta pullResponse
	body, err := c.get(ctx, httpClient, url, jsonAccept, ref)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, apperrors.Fetch(fmt.Sprintf("decode pull request %s", ref), err)
	}

	patch, err := c.get(ctx, httpClient, url, patchAccept, ref)
	if err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "fetched pull request", "pull", ref.String(), "patch_bytes", len(patch))
	}

	return &model.PullDetails{
		Ref:   ref,
		Title: meta.Title,
		Body:  meta.Body,
		Patch: string(patch),
	}, nil
}

func (c *Client) httpClient(ctx context.Context, token string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = c.timeout
	return client
}

func (c *Client) get(ctx context.Context, client *http.Client, url, accept string, ref model.PullRef) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Fetch("build github request", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.Fetch(fmt.Sprintf("fetch pull request %s", ref), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Fetch(fmt.Sprintf("read github response for %s", ref), err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.Fetch(fmt.Sprintf("pull request %s not found", ref), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.Fetch(fmt.Sprintf("github rejected credentials for %s (status %d)", ref, resp.StatusCode), nil)
	default:
		return nil, apperrors.Fetch(fmt.Sprintf("github returned status %d for %s", resp.StatusCode, ref), nil)
	}
}
