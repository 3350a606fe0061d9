package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/rickgao/ashare-data/internal/config"
)

// Scheduler runs the Runner once a day at a fixed local time.
type Scheduler struct {
	cfg    config.ScheduleConfig
	runner *Runner
	cron   *gocron.Scheduler
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg config.ScheduleConfig, runner *Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	cron := gocron.NewScheduler(loc)
	cron.SingletonModeAll()

	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		cron:   cron,
		logger: logger,
	}, nil
}

// Start registers the daily job and begins scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.Every(1).Day().At(s.cfg.At).Do(s.run); err != nil {
		s.cancel()
		return fmt.Errorf("schedule daily run at %q: %w", s.cfg.At, err)
	}

	if s.cfg.RunOnStart {
		go s.run()
	}

	s.cron.StartAsync()

	s.logger.Info("scheduler started",
		"at", s.cfg.At,
		"timezone", s.cfg.Timezone,
		"next_run", s.NextRun(),
	)
	return nil
}

// Stop cancels any active run and waits for it to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns the time of the next scheduled run.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.cron.NextRun()
	return next
}

// begin registers a run with the WaitGroup unless Stop has been called.
func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Scheduler) run() {
	if !s.begin() {
		return
	}
	defer s.wg.Done()

	_, err := s.runner.RunOnce(s.ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("skipping run, previous run still active")
	case err != nil:
		s.logger.Error("scheduled run failed", "error", err)
	}
}
