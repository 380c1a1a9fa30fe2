package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/obentoo/nixbump/internal/common/version"
	"golang.org/x/time/rate"
)

// Client handles communication with the GitHub REST API
type Client struct {
	BaseURL    string
	UserAgent  string
	Token      string // raises the rate limit and allows private repositories
	HTTPClient *http.Client
	// Limiter paces requests; nil means unlimited.
	Limiter *rate.Limiter
}

// Release is the subset of a GitHub release used for version checks
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	HTMLURL     string    `json:"html_url"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
}

// Tag is a repository tag
type Tag struct {
	Name string `json:"name"`
}

// NewClient creates a new GitHub API client. Requests are paced to stay
// well under the authenticated limit of 5000 per hour.
func NewClient(token string) *Client {
	return &Client{
		BaseURL:   "https://api.github.com",
		UserAgent: version.UserAgent(),
		Token:     token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// LatestRelease fetches the latest published release of owner/repo
func (c *Client) LatestRelease(ctx context.Context, repository string) (*Release, error) {
	var release Release
	if err := c.get(ctx, "/repos/"+repository+"/releases/latest", &release); err != nil {
		return nil, fmt.Errorf("latest release of %s: %w", repository, err)
	}
	if release.TagName == "" {
		return nil, fmt.Errorf("%w: release of %s has no tag_name", ErrMalformedResponse, repository)
	}
	return &release, nil
}

// Tags fetches the first page of tags of owner/repo, newest first
func (c *Client) Tags(ctx context.Context, repository string) ([]Tag, error) {
	var tags []Tag
	if err := c.get(ctx, "/repos/"+repository+"/tags?per_page=100", &tags); err != nil {
		return nil, fmt.Errorf("tags of %s: %w", repository, err)
	}
	return tags, nil
}

// RateLimitInfo returns current rate limit status
func (c *Client) RateLimitInfo(ctx context.Context) (remaining int, resetTime time.Time, err error) {
	var result struct {
		Resources struct {
			Core struct {
				Remaining int   `json:"remaining"`
				Reset     int64 `json:"reset"`
			} `json:"core"`
		} `json:"resources"`
	}

	if err := c.get(ctx, "/rate_limit", &result); err != nil {
		return 0, time.Time{}, err
	}

	return result.Resources.Core.Remaining, time.Unix(result.Resources.Core.Reset, 0), nil
}

// get performs a GET request and decodes a JSON body into out
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}

	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			apiErr.Reset = time.Unix(reset, 0)
		}
	}
	return apiErr
}
