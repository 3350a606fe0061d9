// Package database provides the PostgreSQL connection pool and a small
// retrying store used by the downloaders.
//
// Every vendor dataset lives in one of two schemas of the same database:
//   - stk_data: calendar, equities, indexes, SW industries, financial statements
//   - fut_data: futures contracts, prices, warehouse receipts, holdings
//
// Table names passed to [Store] are schema qualified ("stk_data.asharetradecal").
package database
