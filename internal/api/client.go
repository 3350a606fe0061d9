package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Client provides access to the Tushare Pro API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration

	limiter *rate.Limiter

	// failureBudget consecutive failed attempts are tolerated; 0 disables it.
	failureBudget int64
	failures      atomic.Int64

	pageSize int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new API client.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:        slog.Default(),
		maxRetries:    3,
		retryBackoff:  time.Second,
		maxBackoff:    time.Minute,
		limiter:       rate.NewLimiter(rate.Inf, 0),
		failureBudget: 500,
		pageSize:      5000,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithMaxBackoff caps the delay between retries.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithRateLimit allows n requests per window, with bursts up to n.
func WithRateLimit(n int, window time.Duration) ClientOption {
	return func(c *Client) {
		if n <= 0 || window <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(window/time.Duration(n)), n)
	}
}

// WithFailureBudget sets how many consecutive failed attempts are tolerated
// before every call fails with ErrFailureBudgetExceeded. Zero disables it.
func WithFailureBudget(n int) ClientOption {
	return func(c *Client) {
		c.failureBudget = int64(n)
	}
}

// WithPageSize sets the limit used by QueryAll.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Failures returns the current count of consecutive failed attempts.
func (c *Client) Failures() int64 {
	return c.failures.Load()
}
