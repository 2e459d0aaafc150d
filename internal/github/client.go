// file: internal/github/client.go

// Package github talks to the GitHub Apps REST API: it exchanges App JWTs
// for installation access tokens and can check that a token is accepted.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"install-credentials/internal/logger"
	"install-credentials/internal/token"
)

// Timeout and retry constants for GitHub API calls
const (
	// defaultTimeout bounds a single HTTP attempt
	defaultTimeout = 30 * time.Second

	// retryWaitMin and retryWaitMax bound the backoff between attempts
	retryWaitMin = 500 * time.Millisecond
	retryWaitMax = 5 * time.Second

	apiVersion = "2022-11-28"
	mediaType  = "application/vnd.github+json"
)

// Config holds the client settings
type Config struct {
	BaseURL   string // e.g. https://api.github.com
	Timeout   time.Duration
	RetryMax  int
	UserAgent string
}

// Client is the transport collaborator for the token exchange. Retries on
// 429, 5xx and connection errors are handled here and nowhere else.
type Client struct {
	baseURL   string
	userAgent string
	http      *retryablehttp.Client
	logger    *logger.Logger
}

var _ token.Exchanger = (*Client)(nil)

// NewClient creates a GitHub API client
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("github: base URL is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "install-credentials"
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	rc := &retryablehttp.Client{
		HTTPClient:   httpClient,
		Logger:       log,
		RetryWaitMin: retryWaitMin,
		RetryWaitMax: retryWaitMax,
		RetryMax:     cfg.RetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      rc,
		logger:    log,
	}, nil
}

// CreateInstallationToken exchanges an App JWT for an installation access token
// via POST /app/installations/{id}/access_tokens.
func (c *Client) CreateInstallationToken(ctx context.Context, installationID int64, appJWT string) (token.Credential, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.baseURL, installationID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return token.Credential{}, fmt.Errorf("github: creating token exchange request: %w", err)
	}
	c.setHeaders(req.Header)
	req.Header.Set("Authorization", "Bearer "+appJWT)

	c.logger.Debug("requesting installation token", "installation", installationID)

	resp, err := c.http.Do(req)
	if err != nil {
		return token.Credential{}, fmt.Errorf("github: token exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return token.Credential{}, parseAPIError(resp)
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return token.Credential{}, fmt.Errorf("github: %w: %v", token.ErrMalformedResponse, err)
	}

	c.logger.Debug("installation token issued",
		"installation", installationID,
		"expiresAt", result.ExpiresAt)

	return token.Credential{Value: result.Token, ExpiresAt: result.ExpiresAt}, nil
}

// RateLimit is the core quota reported for a token
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// VerifyToken checks that GitHub accepts the token from src by reading
// GET /rate_limit, which does not count against the quota.
func (c *Client) VerifyToken(ctx context.Context, src oauth2.TokenSource) (RateLimit, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http.StandardClient())
	httpClient := oauth2.NewClient(ctx, src)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rate_limit", nil)
	if err != nil {
		return RateLimit{}, fmt.Errorf("github: creating verify request: %w", err)
	}
	c.setHeaders(req.Header)

	resp, err := httpClient.Do(req)
	if err != nil {
		return RateLimit{}, fmt.Errorf("github: verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RateLimit{}, parseAPIError(resp)
	}

	var result struct {
		Resources struct {
			Core struct {
				Limit     int   `json:"limit"`
				Remaining int   `json:"remaining"`
				Reset     int64 `json:"reset"`
			} `json:"core"`
		} `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RateLimit{}, fmt.Errorf("github: decoding rate limit response: %w", err)
	}

	core := result.Resources.Core
	return RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Reset:     time.Unix(core.Reset, 0),
	}, nil
}

func (c *Client) setHeaders(h http.Header) {
	h.Set("Accept", mediaType)
	h.Set("X-GitHub-Api-Version", apiVersion)
	h.Set("User-Agent", c.userAgent)
}
