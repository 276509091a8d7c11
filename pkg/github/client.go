// Package github provides the GitHub gateway used to measure reviewer workload
// and to request reviews.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"

	"golang.org/x/sync/singleflight"
)

const (
	defaultAPIURL      = "https://api.github.com"
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 1024
	apiVersion         = "2022-11-28"
)

// Client handles all GitHub API interactions.
// Every method performs a single attempt; retrying is the caller's concern.
type Client struct {
	httpClient HTTPDoer
	auth       tokenSource
	now        func() time.Time
	apiURL     string
	flight     singleflight.Group
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	HTTPClient  HTTPDoer // overrides the default *http.Client
	Token       string   // personal access or workflow token
	AppID       string
	AppKeyPath  string
	APIURL      string
	AppKey      []byte // PEM content, preferred over AppKeyPath
	HTTPTimeout time.Duration
	UseAppAuth  bool
}

// New creates a GitHub client using a token, gh auth token, or GitHub App authentication.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	c := &Client{
		httpClient: httpClient,
		now:        time.Now,
		apiURL:     cfg.APIURL,
	}

	if cfg.UseAppAuth {
		auth, err := newAppAuth(cfg.AppID, cfg.AppKey, cfg.AppKeyPath, httpClient, cfg.APIURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrConfiguration, err)
		}
		slog.InfoContext(ctx, "Using GitHub App authentication", "component", "auth", "app_id", cfg.AppID)
		c.auth = auth
		return c, nil
	}

	token := cfg.Token
	if token == "" {
		cmd := exec.CommandContext(ctx, "gh", "auth", "token")
		output, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("%w: no GitHub token provided and gh auth token failed: %w", types.ErrConfiguration, err)
		}
		token = strings.TrimSpace(string(output))
	}
	if err := validateToken(token); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrConfiguration, err)
	}
	slog.InfoContext(ctx, "Using token authentication", "component", "auth")
	c.auth = staticToken(token)
	return c, nil
}

// Token returns the credential used for owner/repo, for clients that talk to
// GitHub-adjacent services such as the event stream.
func (c *Client) Token(ctx context.Context, owner, repo string) (string, error) {
	return c.auth.token(ctx, owner, repo)
}

// drainAndCloseBody drains and closes an HTTP response body to prevent resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// doRequest performs one authenticated request against owner/repo.
// Non-2xx responses are classified into the gateway error taxonomy and their
// bodies closed; on success the caller owns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL, owner, repo string, body any) (*http.Response, error) {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.auth.token(ctx, owner, repo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, types.ErrRateLimited) || errors.Is(err, types.ErrGatewayUnavailable) || errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: credentials: %w", types.ErrGatewayUnavailable, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.DebugContext(ctx, "HTTP request", "component", "http", "method", method, "url", apiURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %w", types.ErrGatewayUnavailable, method, apiURL, err)
	}
	slog.DebugContext(ctx, "HTTP response", "component", "http", "method", method, "url", apiURL, "status", resp.StatusCode)

	if err := classifyResponse(resp, c.now()); err != nil {
		drainAndCloseBody(resp.Body)
		slog.WarnContext(ctx, "GitHub request failed", "component", "http", "method", method, "url", apiURL, "status", resp.StatusCode, "error", err)
		return nil, err
	}
	return resp, nil
}

// classifyResponse maps a non-2xx response onto the gateway error taxonomy.
func classifyResponse(resp *http.Response, now time.Time) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	snippet, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		snippet = nil
	}
	message := strings.TrimSpace(string(snippet))

	switch {
	case isRateLimited(resp, message):
		return &types.RateLimitError{Reset: rateLimitReset(resp.Header, now)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &types.ServerError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status 404", types.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: authentication failed (status 401)", types.ErrGatewayUnavailable)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: access denied (status 403): %s", types.ErrGatewayUnavailable, message)
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", types.ErrGatewayUnavailable, resp.StatusCode, message)
	}
}

func isRateLimited(resp *http.Response, message string) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "" {
			return true
		}
		return strings.Contains(strings.ToLower(message), "rate limit")
	default:
		return false
	}
}

// rateLimitReset returns when the quota is expected back, or the zero time if
// the response does not say.
func rateLimitReset(h http.Header, now time.Time) time.Time {
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	if reset := h.Get("X-RateLimit-Reset"); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil && unix > 0 {
			return time.Unix(unix, 0)
		}
	}
	return time.Time{}
}
