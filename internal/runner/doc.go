// Package runner drives the downloaders.
//
// A run:
//   - Gets a fresh run id attached to every log line
//   - Purges daily log files past the retention window
//   - Runs every downloader in order, stopping early when the vendor
//     failure budget is exhausted
//   - Returns a Report with per-downloader durations and errors
//
// Scheduler repeats runs daily through gocron and HealthHandler exposes the
// last report over HTTP.
package runner
