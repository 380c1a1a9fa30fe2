package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrMaxRetriesExceeded is returned when every attempt failed
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrRequestTimeout is returned when a request times out
	ErrRequestTimeout = errors.New("request timeout")
)

// envVarPattern matches ${VAR_NAME} in header values
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff
	MaxDelay time.Duration
	// Timeout bounds each individual request
	Timeout time.Duration
}

// DefaultRetryConfig retries three times with delays of 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   4 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// NoRetryConfig makes exactly one attempt. The update pipeline uses it:
// the only bound on a lookup is the per-request timeout.
func NoRetryConfig() RetryConfig {
	return RetryConfig{Timeout: 30 * time.Second}
}

// RetryableHTTPClient wraps an HTTP client with exponential backoff on
// network errors, 5xx and 429, plus optional per-host rate limits.
type RetryableHTTPClient struct {
	client *http.Client
	config RetryConfig
	// delayFunc is time.Sleep outside tests
	delayFunc func(time.Duration)

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	defaultHeaders map[string]string
	githubToken    string
}

// NewRetryableHTTPClient creates a client with DefaultRetryConfig.
func NewRetryableHTTPClient() *RetryableHTTPClient {
	return NewRetryableHTTPClientWithConfig(DefaultRetryConfig())
}

// NewRetryableHTTPClientWithConfig creates a client with a custom retry
// configuration.
func NewRetryableHTTPClientWithConfig(config RetryConfig) *RetryableHTTPClient {
	return &RetryableHTTPClient{
		client:    &http.Client{Timeout: config.Timeout},
		config:    config,
		delayFunc: time.Sleep,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *RetryableHTTPClient) SetHTTPClient(client *http.Client) {
	c.client = client
}

// SetDelayFunc replaces the backoff sleep.
func (c *RetryableHTTPClient) SetDelayFunc(fn func(time.Duration)) {
	c.delayFunc = fn
}

// SetHostLimit throttles requests to host to r per second with the given
// burst. A zero rate removes the limit.
func (c *RetryableHTTPClient) SetHostLimit(host string, r rate.Limit, burst int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r == 0 {
		delete(c.limiters, host)
		return
	}
	c.limiters[host] = rate.NewLimiter(r, burst)
}

func (c *RetryableHTTPClient) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limiters[host]
}

// SetGitHubToken sets the bearer token sent to api.github.com.
func (c *RetryableHTTPClient) SetGitHubToken(token string) {
	c.githubToken = token
}

// SetDefaultHeaders sets headers applied to every request before the
// per-request ones.
func (c *RetryableHTTPClient) SetDefaultHeaders(headers map[string]string) {
	c.defaultHeaders = headers
}

// Config returns the retry configuration.
func (c *RetryableHTTPClient) Config() RetryConfig {
	return c.config
}

// Do executes req, retrying per the client's RetryConfig.
func (c *RetryableHTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if lim := c.limiterFor(req.URL.Host); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt > 0 {
			c.delayFunc(c.backoff(attempt))
		}

		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if isTimeout(err) {
				lastErr = fmt.Errorf("%w: %v", ErrRequestTimeout, err)
			}
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt < c.config.MaxRetries {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	if c.config.MaxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// Get performs a GET with the configured and extra headers. Header values
// may reference environment variables as ${NAME}.
func (c *RetryableHTTPClient) Get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	for k, v := range c.defaultHeaders {
		req.Header.Set(k, SubstituteEnvVars(v))
	}
	if c.githubToken != "" && req.URL.Host == "api.github.com" {
		req.Header.Set("Authorization", "Bearer "+c.githubToken)
	}
	for k, v := range headers {
		req.Header.Set(k, SubstituteEnvVars(v))
	}

	return c.Do(ctx, req)
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay
func (c *RetryableHTTPClient) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := c.config.BaseDelay * time.Duration(1<<(attempt-1))
	if c.config.MaxDelay > 0 && delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}
	return delay
}

func retryableStatus(code int) bool {
	return code >= 500 && code < 600 || code == http.StatusTooManyRequests
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Timeout()
	}
	return false
}

// SubstituteEnvVars expands ${NAME} references; unset variables become
// empty strings.
func SubstituteEnvVars(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
