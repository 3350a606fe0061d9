package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ashare-data/internal/api"
	"github.com/rickgao/ashare-data/internal/download"
	"github.com/rickgao/ashare-data/internal/logging"
)

// ErrRunInProgress is returned by RunOnce while another run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// ErrorCounter reports how many ERROR records have been logged.
type ErrorCounter interface {
	Count() int64
}

// failureResetter is implemented by the vendor client.
type failureResetter interface {
	ResetFailures()
}

// Config holds runner configuration.
type Config struct {
	LogDir      string // daily log directory purged at the start of a run
	LogKeepDays int    // log files this many days old are removed

	// ActiveLog returns the log file currently written to, which the
	// purge keeps. May be nil.
	ActiveLog func() string
}

// Result is the outcome of one downloader.
type Result struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`

	err error
}

// Report summarizes a run.
type Report struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Results  []Result      `json:"results"`

	// ErrorRecords is the number of ERROR log records written during the run.
	ErrorRecords int64 `json:"error_records"`
}

// Err joins the downloader errors.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.err))
		}
	}
	return errors.Join(errs...)
}

// Failed reports whether any downloader failed or any error was logged.
func (r *Report) Failed() bool {
	return r.Err() != nil || r.ErrorRecords > 0
}

// Option configures a Runner.
type Option func(*Runner)

// WithDownloaders replaces download.All, mainly for tests.
func WithDownloaders(build func(download.Deps) []download.Downloader) Option {
	return func(r *Runner) {
		r.build = build
	}
}

// WithErrorCounter sets the counter used for Report.ErrorRecords.
func WithErrorCounter(c ErrorCounter) Option {
	return func(r *Runner) {
		r.errors = c
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner runs the downloaders once per call to RunOnce.
type Runner struct {
	cfg    Config
	deps   download.Deps
	build  func(download.Deps) []download.Downloader
	errors ErrorCounter
	now    func() time.Time
	logger *slog.Logger

	running sync.Mutex

	mu   sync.Mutex
	last *Report
}

// New creates a new Runner.
func New(cfg Config, deps download.Deps, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cfg:    cfg,
		deps:   deps,
		build:  download.All,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Last returns the report of the latest finished run, or nil.
func (r *Runner) Last() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// RunOnce performs a full run. The returned error joins the downloader
// errors; the report is returned either way unless a run is in progress.
func (r *Runner) RunOnce(ctx context.Context) (*Report, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()

	report := &Report{RunID: uuid.NewString(), Started: r.now()}
	log := r.logger.With("run_id", report.RunID)
	log.Info("run started")

	r.purgeLogs(log)

	if fr, ok := r.deps.API.(failureResetter); ok {
		fr.ResetFailures()
	}

	var before int64
	if r.errors != nil {
		before = r.errors.Count()
	}

	deps := r.deps
	deps.Logger = log
	if deps.Now == nil {
		deps.Now = r.now
	}

	stopped := false
	for _, d := range r.build(deps) {
		if stopped || ctx.Err() != nil {
			report.Results = append(report.Results, Result{Name: d.Name(), Skipped: true})
			continue
		}

		start := time.Now()
		err := d.Run(ctx)
		res := Result{Name: d.Name(), Duration: time.Since(start), err: err}
		if err != nil {
			res.Error = err.Error()
			log.Error("downloader failed", "downloader", d.Name(), "duration", res.Duration, "error", err)
		} else {
			log.Info("downloader finished", "downloader", d.Name(), "duration", res.Duration)
		}
		report.Results = append(report.Results, res)

		if errors.Is(err, api.ErrFailureBudgetExceeded) {
			log.Error("vendor failure budget exhausted, skipping remaining downloaders")
			stopped = true
		}
	}

	if r.errors != nil {
		report.ErrorRecords = r.errors.Count() - before
	}
	report.Duration = r.now().Sub(report.Started)

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	log.Info("run complete",
		"duration", report.Duration,
		"downloaders", len(report.Results),
		"error_records", report.ErrorRecords,
		"failed", report.Failed(),
	)
	return report, report.Err()
}

func (r *Runner) purgeLogs(log *slog.Logger) {
	if r.cfg.LogDir == "" || r.cfg.LogKeepDays <= 0 {
		return
	}
	var active []string
	if r.cfg.ActiveLog != nil {
		active = append(active, r.cfg.ActiveLog())
	}
	removed, err := logging.ClearOld(r.cfg.LogDir, r.cfg.LogKeepDays, r.now(), active...)
	if err != nil {
		log.Warn("failed to purge old logs", "dir", r.cfg.LogDir, "error", err)
	}
	if len(removed) > 0 {
		log.Info("old logs purged", "files", removed)
	}
}
