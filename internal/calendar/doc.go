// Package calendar computes which trade dates and report periods are still
// missing from storage.
//
// All dates are YYYYMMDD strings, which sort the same way as the dates they
// name. Functions that depend on "today" take it as an argument so callers
// and tests control the clock.
package calendar
