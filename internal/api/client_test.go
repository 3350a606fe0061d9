package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("http://api.tushare.pro", "test-token")

		if c.baseURL != "http://api.tushare.pro" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://api.tushare.pro")
		}
		if c.token != "test-token" {
			t.Errorf("token = %q, want %q", c.token, "test-token")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.failureBudget != 500 {
			t.Errorf("failureBudget = %d, want 500", c.failureBudget)
		}
		if c.limiter.Limit() != rate.Inf {
			t.Errorf("limiter = %v, want unlimited", c.limiter.Limit())
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		hc := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("http://x", "tok",
			WithHTTPClient(hc),
			WithTimeout(15*time.Second),
			WithRetries(5, 2*time.Second),
			WithMaxBackoff(time.Minute),
			WithRateLimit(300, time.Minute),
			WithFailureBudget(10),
			WithPageSize(100),
			WithLogger(logger),
		)
		if c.httpClient != hc || hc.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want 15s on the custom client", c.httpClient.Timeout)
		}
		if c.maxRetries != 5 || c.retryBackoff != 2*time.Second {
			t.Errorf("retries = %d/%v", c.maxRetries, c.retryBackoff)
		}
		if c.maxBackoff != time.Minute {
			t.Errorf("maxBackoff = %v", c.maxBackoff)
		}
		if c.limiter.Burst() != 300 {
			t.Errorf("Burst() = %d, want 300", c.limiter.Burst())
		}
		if c.limiter.Limit() != rate.Every(200*time.Millisecond) {
			t.Errorf("Limit() = %v, want 5/s", c.limiter.Limit())
		}
		if c.failureBudget != 10 || c.pageSize != 100 {
			t.Errorf("failureBudget = %d, pageSize = %d", c.failureBudget, c.pageSize)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("zero rate limit disables limiting", func(t *testing.T) {
		c := NewClient("http://x", "", WithRateLimit(0, time.Minute))
		if c.limiter.Limit() != rate.Inf {
			t.Errorf("Limit() = %v, want Inf", c.limiter.Limit())
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if err.Error() != "tushare api error 404: Not Found" {
		t.Errorf("Error() = %q", err.Error())
	}

	tests := []struct {
		code     int
		expected bool
	}{
		{500, true},
		{502, true},
		{503, true},
		{429, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.expected {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestVendorError(t *testing.T) {
	err := &VendorError{API: "daily", Code: 40203, Msg: "quota exceeded"}
	if err.Error() != "tushare daily error 40203: quota exceeded" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !err.IsRetryable() {
		t.Error("quota errors should be retryable")
	}
	if (&VendorError{Code: tokenRejected}).IsRetryable() {
		t.Error("rejected token should not be retryable")
	}
}

// vendorServer answers every call with handle's result and counts calls.
func vendorServer(t *testing.T, handle func(req Request, w http.ResponseWriter)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handle(req, w)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeData(w http.ResponseWriter, fields []string, items [][]any, hasMore bool) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{
		Code: 0,
		Data: &ResponseData{Fields: fields, Items: items, HasMore: hasMore},
	})
}

func TestQuery(t *testing.T) {
	srv, calls := vendorServer(t, func(req Request, w http.ResponseWriter) {
		if req.APIName != "trade_cal" {
			t.Errorf("api_name = %q", req.APIName)
		}
		if req.Token != "tok" {
			t.Errorf("token = %q", req.Token)
		}
		if req.Fields != "cal_date,is_open" {
			t.Errorf("fields = %q", req.Fields)
		}
		if req.Params["exchange"] != "SSE" {
			t.Errorf("params = %v", req.Params)
		}
		writeData(w, []string{"cal_date", "is_open"}, [][]any{
			{"20240102", 1},
			{"20240101", 0},
		}, false)
	})

	c := NewClient(srv.URL, "tok")
	tbl, err := c.Query(context.Background(), "trade_cal", Params{"exchange": "SSE"}, TradeCalFields)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	if _, ok := tbl.Rows[0][1].(json.Number); !ok {
		t.Errorf("numbers should decode as json.Number, got %T", tbl.Rows[0][1])
	}
	if got := tbl.Row(1).Text("is_open"); got != "0" {
		t.Errorf("is_open = %q, want 0", got)
	}
}

func TestQueryEmptyData(t *testing.T) {
	srv, _ := vendorServer(t, func(_ Request, w http.ResponseWriter) {
		w.Write([]byte(`{"code":0,"msg":"","data":null}`))
	})

	tbl, err := NewClient(srv.URL, "").Query(context.Background(), "daily", nil, nil)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
}

func TestDoWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		status    int
		body      string
		wantErr   bool
		wantCalls int32
	}{
		{name: "success after 5xx", failures: 2, status: http.StatusServiceUnavailable, wantCalls: 3},
		{name: "success after 429", failures: 1, status: http.StatusTooManyRequests, wantCalls: 2},
		{name: "success after vendor quota error", failures: 2, status: http.StatusOK,
			body: `{"code":40203,"msg":"too many calls"}`, wantCalls: 3},
		{name: "4xx not retried", failures: 5, status: http.StatusBadRequest, wantErr: true, wantCalls: 1},
		{name: "rejected token not retried", failures: 5, status: http.StatusOK,
			body: `{"code":40101,"msg":"invalid token"}`, wantErr: true, wantCalls: 1},
		{name: "malformed body not retried", failures: 5, status: http.StatusOK, body: `not json`,
			wantErr: true, wantCalls: 1},
		{name: "retries exhausted", failures: 10, status: http.StatusInternalServerError, wantErr: true, wantCalls: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				if n <= tt.failures {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
					return
				}
				writeData(w, []string{"a"}, [][]any{{"x"}}, false)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "tok", WithRetries(3, time.Millisecond))
			_, err := c.Query(context.Background(), "daily", nil, nil)

			if tt.wantErr && err == nil {
				t.Fatal("Query() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Query() unexpected error: %v", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if !tt.wantErr && c.Failures() != 0 {
				t.Errorf("Failures() = %d after success, want 0", c.Failures())
			}
		})
	}
}

func TestDoWithRetryErrorTypes(t *testing.T) {
	srv, _ := vendorServer(t, func(_ Request, w http.ResponseWriter) {
		w.Write([]byte(`{"code":40101,"msg":"invalid token"}`))
	})

	_, err := NewClient(srv.URL, "bad").Query(context.Background(), "daily", nil, nil)
	var vendorErr *VendorError
	if !errors.As(err, &vendorErr) {
		t.Fatalf("error = %v, want *VendorError", err)
	}
	if vendorErr.API != "daily" || vendorErr.Code != 40101 {
		t.Errorf("VendorError = %+v", vendorErr)
	}
}

func TestFailureBudget(t *testing.T) {
	srv, calls := vendorServer(t, func(_ Request, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c := NewClient(srv.URL, "tok", WithRetries(5, time.Millisecond), WithFailureBudget(2))

	_, err := c.Query(context.Background(), "daily", nil, nil)
	if !errors.Is(err, ErrFailureBudgetExceeded) {
		t.Fatalf("error = %v, want ErrFailureBudgetExceeded", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}

	// Every later call fails fast.
	_, err = c.Query(context.Background(), "daily", nil, nil)
	if !errors.Is(err, ErrFailureBudgetExceeded) {
		t.Errorf("second error = %v, want ErrFailureBudgetExceeded", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d after exhausted budget, want 2", calls.Load())
	}

	c.ResetFailures()
	if c.Failures() != 0 {
		t.Errorf("Failures() = %d after reset", c.Failures())
	}
}

func TestDoWithRetryContextCancellation(t *testing.T) {
	srv, _ := vendorServer(t, func(_ Request, w http.ResponseWriter) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := NewClient(srv.URL, "tok", WithRetries(5, time.Hour), WithMaxBackoff(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Query(ctx, "daily", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry sleep did not observe context")
	}
}

func TestQueryAll(t *testing.T) {
	rows := [][]any{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}

	srv, calls := vendorServer(t, func(req Request, w http.ResponseWriter) {
		limit := int(req.Params["limit"].(float64))
		offset := int(req.Params["offset"].(float64))
		if req.Params["trade_date"] != "20240102" {
			t.Errorf("params lost while paging: %v", req.Params)
		}
		end := min(offset+limit, len(rows))
		writeData(w, []string{"ts_code"}, rows[offset:end], end < len(rows))
	})

	c := NewClient(srv.URL, "tok", WithPageSize(2))
	params := Params{"trade_date": "20240102"}
	tbl, err := c.QueryAll(context.Background(), "daily", params, []string{"ts_code"})
	if err != nil {
		t.Fatalf("QueryAll() error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if got := strings.Join(tbl.Strings("ts_code"), ""); got != "abcde" {
		t.Errorf("rows = %q, want abcde", got)
	}
	if _, ok := params["limit"]; ok {
		t.Error("QueryAll modified the caller's params")
	}
}

func TestStatementEndpoints(t *testing.T) {
	var got []Request
	srv, _ := vendorServer(t, func(req Request, w http.ResponseWriter) {
		got = append(got, req)
		writeData(w, []string{"ts_code"}, nil, false)
	})
	c := NewClient(srv.URL, "tok")
	ctx := context.Background()

	if _, err := c.StatementByPeriod(ctx, Income, "20231231"); err != nil {
		t.Fatalf("StatementByPeriod() error: %v", err)
	}
	if _, err := c.StatementByStock(ctx, CashFlow, "600000.SH"); err != nil {
		t.Fatalf("StatementByStock() error: %v", err)
	}

	if got[0].APIName != "income_vip" || got[0].Params["period"] != "20231231" {
		t.Errorf("period request = %+v", got[0])
	}
	if got[0].Params["report_type"] != float64(1) {
		t.Errorf("report_type = %v, want 1", got[0].Params["report_type"])
	}
	if !strings.HasPrefix(got[0].Fields, "ts_code,ann_date,end_date,comp_type,end_type,") {
		t.Errorf("fields = %q", got[0].Fields)
	}
	if got[1].APIName != "cashflow" || got[1].Params["ts_code"] != "600000.SH" {
		t.Errorf("stock request = %+v", got[1])
	}
}

func TestStatementFieldsUnique(t *testing.T) {
	for _, s := range []Statement{Income, BalanceSheet, CashFlow} {
		seen := map[string]bool{}
		for _, f := range s.Fields() {
			if seen[f] {
				t.Errorf("%s: duplicate field %q", s, f)
			}
			seen[f] = true
		}
		if !seen["ts_code"] || !seen["end_date"] || !seen["ann_date"] {
			t.Errorf("%s: missing key fields", s)
		}
	}
}
