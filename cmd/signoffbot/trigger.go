package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/release-signoff/internal/github"
	"github.com/example/release-signoff/internal/logging"
)

// releaseFile is the YAML shape of a release description passed to trigger.
type releaseFile struct {
	ServiceName       string `yaml:"service_name"`
	Version           string `yaml:"version"`
	Day1Date          string `yaml:"day1_date"`
	Day2Date          string `yaml:"day2_date"`
	CutoffTime        string `yaml:"cutoff_time"`
	CoordinatorHandle string `yaml:"coordinator_handle"`
	Destination       string `yaml:"destination"`
	ChangeItems       []struct {
		ID     int    `yaml:"id"`
		Title  string `yaml:"title"`
		Author string `yaml:"author"`
	} `yaml:"change_items"`
}

type triggerItem struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type triggerRequest struct {
	ServiceName       string        `json:"service_name"`
	Version           string        `json:"version"`
	Day1Date          string        `json:"day1_date"`
	Day2Date          string        `json:"day2_date"`
	CutoffTime        string        `json:"cutoff_time"`
	CoordinatorHandle string        `json:"coordinator_handle"`
	Destination       string        `json:"destination"`
	ChangeItems       []triggerItem `json:"change_items"`
}

func newTriggerCmd() *cobra.Command {
	var (
		serverURL string
		token     string
		filePath  string
		repo      string
		oldTag    string
		newTag    string
		ghToken   string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a sign-off session from a release file",
		Long: "trigger reads a YAML release description, optionally fills its change items " +
			"from the merged pull requests between two tags, and posts it to a running bot.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if filePath == "" {
				return errors.New("--file is required")
			}
			if token == "" {
				token = os.Getenv("SIGNOFF_TRIGGER_TOKEN")
			}
			if token == "" {
				return errors.New("--token or SIGNOFF_TRIGGER_TOKEN is required")
			}

			req, err := loadReleaseFile(filePath)
			if err != nil {
				return err
			}

			if oldTag != "" || newTag != "" {
				if oldTag == "" || newTag == "" || repo == "" {
					return errors.New("--repo, --old-tag and --new-tag must be set together")
				}
				if ghToken == "" {
					ghToken = os.Getenv("GITHUB_TOKEN")
				}
				logger := logging.NewLogger(cmd.ErrOrStderr(), "info")
				client := github.NewClient(ghToken, repo, logger)
				prs, err := client.MergedPullRequestsBetween(cmd.Context(), oldTag, newTag)
				if err != nil {
					return err
				}
				req.ChangeItems = req.ChangeItems[:0]
				for _, pr := range prs {
					req.ChangeItems = append(req.ChangeItems, triggerItem{ID: pr.Number, Title: pr.Title, Author: pr.Author})
				}
			}

			if len(req.ChangeItems) == 0 {
				return errors.New("release has no change items; supply them in the file or via --old-tag/--new-tag")
			}

			sessionKey, err := postTrigger(cmd.Context(), serverURL, token, req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "session started: %s (channel %s)\n", sessionKey, req.Destination)
			return err
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "YAML release description")
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the running bot")
	cmd.Flags().StringVar(&token, "token", "", "trigger bearer token (defaults to SIGNOFF_TRIGGER_TOKEN)")
	cmd.Flags().StringVar(&repo, "repo", "", "GitHub repository as owner/name")
	cmd.Flags().StringVar(&oldTag, "old-tag", "", "previous release tag")
	cmd.Flags().StringVar(&newTag, "new-tag", "", "release candidate tag")
	cmd.Flags().StringVar(&ghToken, "github-token", "", "GitHub API token (defaults to GITHUB_TOKEN)")
	return cmd
}

func loadReleaseFile(path string) (triggerRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return triggerRequest{}, fmt.Errorf("read release file: %w", err)
	}

	var file releaseFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return triggerRequest{}, fmt.Errorf("parse release file %s: %w", path, err)
	}

	req := triggerRequest{
		ServiceName:       file.ServiceName,
		Version:           file.Version,
		Day1Date:          file.Day1Date,
		Day2Date:          file.Day2Date,
		CutoffTime:        file.CutoffTime,
		CoordinatorHandle: file.CoordinatorHandle,
		Destination:       file.Destination,
	}
	for _, item := range file.ChangeItems {
		req.ChangeItems = append(req.ChangeItems, triggerItem(item))
	}
	return req, nil
}

func postTrigger(ctx context.Context, serverURL, token string, req triggerRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode trigger request: %w", err)
	}

	endpoint := strings.TrimRight(serverURL, "/") + "/releases"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post trigger: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read trigger response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("trigger rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var created struct {
		SessionKey string `json:"session_key"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	return created.SessionKey, nil
}
