package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/ashare-data/internal/model"
)

// ErrFailureBudgetExceeded is returned once too many consecutive attempts
// have failed. The client stays in this state until ResetFailures.
var ErrFailureBudgetExceeded = errors.New("tushare failure budget exceeded")

// tokenRejected is the vendor code for an invalid or expired token.
const tokenRejected = 40101

// APIError represents an HTTP-level error from the vendor endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tushare api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// VendorError is a non-zero code in the response envelope.
type VendorError struct {
	API  string
	Code int
	Msg  string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("tushare %s error %d: %s", e.API, e.Code, e.Msg)
}

// IsRetryable reports whether repeating the call can succeed. Quota and
// transient errors are retried; a rejected token is not.
func (e *VendorError) IsRetryable() bool {
	return e.Code != tokenRejected
}

type retryable interface {
	IsRetryable() bool
}

// isRetryable classifies an attempt error. Transport errors are retried,
// context cancellation is not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	var decodeErr *decodeError
	return !errors.As(err, &decodeErr)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// ResetFailures clears the consecutive failure count.
func (c *Client) ResetFailures() {
	c.failures.Store(0)
}

// doRequest performs one POST of req and decodes the envelope.
func (c *Client) doRequest(ctx context.Context, req *Request) (*ResponseData, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	var env Response
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, &decodeError{err: err}
	}
	if env.Code != 0 {
		return nil, &VendorError{API: req.APIName, Code: env.Code, Msg: env.Msg}
	}
	if env.Data == nil {
		return &ResponseData{}, nil
	}
	return env.Data, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, req *Request) (*ResponseData, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.failureBudget > 0 && c.failures.Load() >= c.failureBudget {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrFailureBudgetExceeded, lastErr)
			}
			return nil, ErrFailureBudgetExceeded
		}

		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			if c.maxBackoff > 0 && jitter > c.maxBackoff {
				jitter = c.maxBackoff
			}
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"api", req.APIName,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		data, err := c.doRequest(ctx, req)
		if err == nil {
			c.failures.Store(0)
			return data, nil
		}

		lastErr = err
		if !isRetryable(err) {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			c.failures.Add(1)
			return nil, err
		}

		n := c.failures.Add(1)
		c.logger.Warn("tushare request failed",
			"api", req.APIName,
			"attempt", attempt+1,
			"consecutive_failures", n,
			"error", err,
		)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Query calls apiName once and returns the resulting frame. An empty fields
// list asks the vendor for its default columns.
func (c *Client) Query(ctx context.Context, apiName string, params Params, fields []string) (*model.Table, error) {
	tbl, _, err := c.query(ctx, apiName, params, fields)
	return tbl, err
}

func (c *Client) query(ctx context.Context, apiName string, params Params, fields []string) (*model.Table, bool, error) {
	if params == nil {
		params = Params{}
	}
	req := &Request{
		APIName: apiName,
		Token:   c.token,
		Params:  params,
		Fields:  strings.Join(fields, ","),
	}

	start := time.Now()
	data, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", apiName, err)
	}

	tbl := model.NewTable(data.Fields, data.Items)
	c.logger.Debug("tushare query complete",
		"api", apiName,
		"rows", tbl.Len(),
		"duration", time.Since(start),
	)
	return tbl, data.HasMore, nil
}

// QueryAll pages through apiName with limit/offset until the vendor reports
// no more rows.
func (c *Client) QueryAll(ctx context.Context, apiName string, params Params, fields []string) (*model.Table, error) {
	var pages []*model.Table
	offset := 0

	for {
		p := make(Params, len(params)+2)
		for k, v := range params {
			p[k] = v
		}
		p["limit"] = c.pageSize
		p["offset"] = offset

		tbl, hasMore, err := c.query(ctx, apiName, p, fields)
		if err != nil {
			return nil, err
		}
		pages = append(pages, tbl)
		offset += tbl.Len()

		if !hasMore || tbl.Len() == 0 {
			break
		}
	}

	if len(pages) == 1 {
		return pages[0], nil
	}
	return model.Concat(pages...), nil
}
