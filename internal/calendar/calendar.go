package calendar

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rickgao/ashare-data/internal/model"
)

// Layout is the date layout used by the vendor and the database.
const Layout = "20060102"

// StaleHorizon is how far past yesterday the stored calendar must reach
// before it is left alone.
const StaleHorizon = 30 * 24 * time.Hour

// quarterEnds are the month-day suffixes of report periods.
var quarterEnds = []string{"0331", "0630", "0930", "1231"}

// ErrBeforeFirstDate is returned by NearestBefore when the target precedes
// every candidate date.
var ErrBeforeFirstDate = errors.New("target date is before the first date")

// Yesterday returns the day before now.
func Yesterday(now time.Time) string {
	return now.AddDate(0, 0, -1).Format(Layout)
}

// LastMonthEnd returns the last calendar day of the month before now.
func LastMonthEnd(now time.Time) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, 0, -1).Format(Layout)
}

// OpenDates returns the open days within [from, to], sorted. Empty bounds
// are unbounded.
func OpenDates(days []model.CalendarDay, from, to string) []string {
	var out []string
	for _, d := range days {
		if !d.IsOpen {
			continue
		}
		if from != "" && d.Date < from {
			continue
		}
		if to != "" && d.Date > to {
			continue
		}
		out = append(out, d.Date)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// MonthEnds returns the last date of each YYYYMM present in dates, sorted.
func MonthEnds(dates []string) []string {
	sorted := slices.Clone(dates)
	slices.Sort(sorted)

	var out []string
	for i, d := range sorted {
		if len(d) < 6 {
			continue
		}
		if i+1 < len(sorted) && len(sorted[i+1]) >= 6 && sorted[i+1][:6] == d[:6] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Missing returns want minus have, sorted and deduplicated.
func Missing(want, have []string) []string {
	stored := make(map[string]struct{}, len(have))
	for _, h := range have {
		stored[h] = struct{}{}
	}

	var out []string
	for _, w := range want {
		if _, ok := stored[w]; !ok {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ReportPeriods returns every quarter end from firstYear up to and including
// yesterday.
func ReportPeriods(firstYear int, now time.Time) []string {
	yesterday := Yesterday(now)
	lastYear := now.AddDate(0, 0, -1).Year()

	var out []string
	for y := firstYear; y <= lastYear; y++ {
		for _, q := range quarterEnds {
			p := fmt.Sprintf("%04d%s", y, q)
			if p <= yesterday {
				out = append(out, p)
			}
		}
	}
	return out
}

// RefreshPeriods returns the periods of all that are not stored, plus the
// last recent periods of all, which are re-fetched because restatements
// keep arriving for them.
func RefreshPeriods(all, have []string, recent int) []string {
	sorted := slices.Clone(all)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := Missing(sorted, have)
	if recent > len(sorted) {
		recent = len(sorted)
	}
	if recent > 0 {
		out = append(out, sorted[len(sorted)-recent:]...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// NearestBefore returns the latest date in dates that is not after target.
func NearestBefore(target string, dates []string) (string, error) {
	if len(dates) == 0 {
		return "", errors.New("no dates")
	}
	sorted := slices.Clone(dates)
	slices.Sort(sorted)
	if target < sorted[0] {
		return "", fmt.Errorf("%s: %w", target, ErrBeforeFirstDate)
	}

	i, found := slices.BinarySearch(sorted, target)
	if found {
		return sorted[i], nil
	}
	return sorted[i-1], nil
}

// CalendarStale reports whether the stored calendar must be refreshed: it is
// empty, or its last date is less than horizon after yesterday.
func CalendarStale(last string, now time.Time, horizon time.Duration) (bool, error) {
	if last == "" {
		return true, nil
	}
	lastDay, err := time.ParseInLocation(Layout, last, now.Location())
	if err != nil {
		return false, fmt.Errorf("parse calendar date %q: %w", last, err)
	}
	return lastDay.Sub(now.AddDate(0, 0, -1)) < horizon, nil
}

// EndType returns the quarter number of a report period (1..4), or 0 when
// endDate is not a quarter end.
func EndType(endDate string) int {
	if len(endDate) != 8 {
		return 0
	}
	for i, q := range quarterEnds {
		if endDate[4:] == q {
			return i + 1
		}
	}
	return 0
}
