// Package github fetches the merged pull requests between two release points,
// the items that require author sign-off.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIBaseURL is the GitHub.com REST endpoint prefix. GitHub Enterprise
// installs override it.
const DefaultAPIBaseURL = "https://api.github.com"

var prNumberPattern = regexp.MustCompile(`\(#(\d+)\)`)

// PullRequest is the slice of PR metadata the sign-off workflow needs.
type PullRequest struct {
	Number int
	Title  string
	Author string
}

// Client queries the GitHub REST API for one repository.
type Client struct {
	baseURL string
	token   string
	repo    string // "owner/name"
	client  *http.Client
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at a GitHub Enterprise endpoint or a test
// server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a client for the repository, given as "owner/name".
func NewClient(token, repo string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		baseURL: DefaultAPIBaseURL,
		token:   token,
		repo:    repo,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type compareResponse struct {
	Commits []struct {
		Commit struct {
			Message string `json:"message"`
		} `json:"commit"`
	} `json:"commits"`
}

type pullResponse struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	MergedAt string `json:"merged_at"`
	User     struct {
		Login string `json:"login"`
	} `json:"user"`
}

// MergedPullRequestsBetween returns the merged PRs whose squash commits landed
// between two tags, ordered by PR number. PR numbers are extracted from the
// "(#123)" suffixes of commit subjects on the compare range.
func (c *Client) MergedPullRequestsBetween(ctx context.Context, oldTag, newTag string) ([]PullRequest, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/compare/%s...%s", c.baseURL, c.repo, oldTag, newTag)
	var compared compareResponse
	if err := c.get(ctx, endpoint, &compared); err != nil {
		return nil, fmt.Errorf("github: compare %s...%s: %w", oldTag, newTag, err)
	}

	numbers := make([]int, 0, len(compared.Commits))
	seen := make(map[int]struct{})
	for _, commit := range compared.Commits {
		subject, _, _ := strings.Cut(commit.Commit.Message, "\n")
		for _, match := range prNumberPattern.FindAllStringSubmatch(subject, -1) {
			number, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			if _, ok := seen[number]; ok {
				continue
			}
			seen[number] = struct{}{}
			numbers = append(numbers, number)
		}
	}
	sort.Ints(numbers)

	prs := make([]PullRequest, 0, len(numbers))
	for _, number := range numbers {
		endpoint := fmt.Sprintf("%s/repos/%s/pulls/%d", c.baseURL, c.repo, number)
		var pull pullResponse
		if err := c.get(ctx, endpoint, &pull); err != nil {
			return nil, fmt.Errorf("github: fetch pull #%d: %w", number, err)
		}
		if pull.MergedAt == "" {
			c.logger.Debug("skipping unmerged pull request", "number", number)
			continue
		}
		prs = append(prs, PullRequest{Number: pull.Number, Title: pull.Title, Author: pull.User.Login})
	}

	c.logger.Info("fetched merged pull requests", "repo", c.repo, "old_tag", oldTag, "new_tag", newTag, "count", len(prs))
	return prs, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
