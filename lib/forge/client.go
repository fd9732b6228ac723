// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/offloadmywork/openclaw-github-app/lib/secret"
)

// apiVersion pins the GitHub REST API version header.
const apiVersion = "2022-11-28"

// defaultBaseURL is the public GitHub API endpoint.
const defaultBaseURL = "https://api.github.com"

// userAgent identifies the app in API requests.
const userAgent = "openclaw-github-app"

// ClientConfig configures the REST client.
type ClientConfig struct {
	// BaseURL is the API root. Defaults to the public endpoint. Must
	// use HTTPS.
	BaseURL string

	// Token is the API token used for authentication. Required.
	Token *secret.Buffer

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client posts run results back to GitHub as issue comments.
type Client struct {
	baseURL    string
	token      *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates the configuration and builds a client.
func NewClient(config ClientConfig) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("forge: API client requires HTTPS (got %q)", baseURL)
	}
	if config.Token == nil {
		return nil, errors.New("forge: Token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// APIError is a non-2xx response from the GitHub REST API.
type APIError struct {
	StatusCode int
	Message    string

	retryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("forge: HTTP %d: %s", e.StatusCode, e.Message)
}

// RetryAfter is the server-requested backoff, when the response
// carried one.
func (e *APIError) RetryAfter() time.Duration { return e.retryAfter }

// IsRateLimited reports whether err is a rate limit response.
func IsRateLimited(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	return apiError.StatusCode == http.StatusTooManyRequests ||
		(apiError.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(apiError.Message), "rate limit"))
}

// PostIssueComment posts body as a comment on an issue or pull
// request. One rate-limit retry honoring Retry-After.
func (c *Client) PostIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	payload := map[string]string{"body": body}

	err := c.post(ctx, path, payload)
	if err == nil {
		return nil
	}
	var apiError *APIError
	if !errors.As(err, &apiError) || !IsRateLimited(err) {
		return err
	}

	wait := apiError.RetryAfter()
	c.logger.Info("rate limited, backing off", "duration", wait, "path", path)
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.post(ctx, path, payload)
}

// PostPullRequestReview posts body as a comment-only review on a pull
// request, neither approving nor requesting changes.
func (c *Client) PostPullRequestReview(ctx context.Context, owner, repo string, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, number)
	return c.post(ctx, path, map[string]string{"body": body, "event": "COMMENT"})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("forge: encoding request body: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("forge: creating request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.token.String())
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", apiVersion)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", userAgent)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("forge: %s %s: %w", http.MethodPost, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	apiError := &APIError{StatusCode: response.StatusCode, Message: string(raw)}
	var structured struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &structured) == nil && structured.Message != "" {
		apiError.Message = structured.Message
	}
	if retryAfter := response.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			apiError.retryAfter = time.Duration(seconds) * time.Second
		}
	}
	return apiError
}
