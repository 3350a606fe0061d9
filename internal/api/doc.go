// Package api provides the Tushare Pro client.
//
// Every call is a JSON POST to a single endpoint:
//
//	{"api_name": "daily", "token": "...", "params": {...}, "fields": "ts_code,close"}
//
// and answers with a column-oriented frame:
//
//	{"code": 0, "msg": "", "data": {"fields": [...], "items": [[...]], "has_more": false}}
//
// The client rate limits requests, retries retryable failures with
// exponential backoff, and stops the run once too many consecutive calls
// have failed.
package api
