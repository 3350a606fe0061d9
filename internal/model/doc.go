// Package model defines the shared data types of the loader.
//
// Vendor responses arrive as column-oriented frames ([Table]). Cells hold one of
// string, json.Number, bool, decimal.Decimal, int64 or nil; use [Text] and
// [Decimal] to read them regardless of which representation the source used.
//
// Conventions:
//   - Dates: YYYYMMDD strings (trade_date, cal_date, end_date, ann_date)
//   - Codes: vendor codes with exchange suffix (600000.SH, 801010.SI, RB2410.SHF)
//   - Tables: one [TableSpec] per persisted table, schema qualified
package model
