package sw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/ashare-data/internal/model"
)

// DefaultURL is the index trend endpoint.
const DefaultURL = "https://www.swsresearch.com/institute-sw/api/index_publish/trend/"

// ErrTooManyAttempts is returned when every attempt failed.
var ErrTooManyAttempts = errors.New("sw: too many failed attempts")

// Columns are the columns of a DailyHistory table.
var Columns = []string{"trade_date", "index_code", "open", "high", "low", "close", "pct_chg"}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
}

// Client downloads index history. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	maxTries   int
	retrySleep time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for the endpoint at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     slog.Default(),
		maxTries:   20,
		retrySleep: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the attempt limit and the sleep after a failed attempt.
func WithRetries(maxTries int, sleep time.Duration) ClientOption {
	return func(c *Client) {
		c.maxTries = maxTries
		c.retrySleep = sleep
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

type trendResponse struct {
	Data []trendBar `json:"data"`
}

type trendBar struct {
	BargainDate string      `json:"bargaindate"`
	Open        json.Number `json:"openindex"`
	High        json.Number `json:"maxindex"`
	Low         json.Number `json:"minindex"`
	Close       json.Number `json:"closeindex"`
}

// DailyHistory returns the daily bars of indexCode (e.g. "801010.SI") sorted
// by date. When dates is non-empty only those trade dates are kept; pct_chg
// is computed over the kept rows, the first being 0.
func (c *Client) DailyHistory(ctx context.Context, indexCode string, dates []string) (*model.Table, error) {
	q := url.Values{}
	q.Set("swindexcode", strings.TrimSuffix(indexCode, ".SI"))
	q.Set("period", "DAY")

	body, err := c.get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("sw daily %s: %w", indexCode, err)
	}

	var resp trendResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("sw daily %s: decode: %w", indexCode, err)
	}

	return reshape(indexCode, resp.Data, dates)
}

func reshape(indexCode string, bars []trendBar, dates []string) (*model.Table, error) {
	var keep map[string]bool
	if len(dates) > 0 {
		keep = make(map[string]bool, len(dates))
		for _, d := range dates {
			keep[d] = true
		}
	}

	tbl := model.NewTable(Columns, nil)
	for _, b := range bars {
		date := strings.ReplaceAll(b.BargainDate, "-", "")
		if keep != nil && !keep[date] {
			continue
		}
		tbl.Rows = append(tbl.Rows, []any{date, indexCode, b.Open, b.High, b.Low, b.Close, nil})
	}
	if err := tbl.SortBy("trade_date"); err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	var prev decimal.Decimal
	for i, row := range tbl.Rows {
		cur, ok := model.Decimal(row[5])
		switch {
		case i == 0:
			row[6] = decimal.Zero
		case ok && !prev.IsZero():
			row[6] = cur.Div(prev).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(4)
		}
		if ok {
			prev = cur
		} else {
			prev = decimal.Zero
		}
	}
	return tbl, nil
}

// get fetches u, retrying on transport errors and non-200 answers.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxTries; attempt++ {
		body, err := c.try(ctx, u)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("sw request failed",
			"attempt", attempt,
			"max_tries", c.maxTries,
			"error", err,
		)

		if attempt == c.maxTries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retrySleep):
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrTooManyAttempts, lastErr)
}

func (c *Client) try(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Client timeouts are retried like any other transport error.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
