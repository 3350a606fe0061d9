package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/ashare-data/internal/api"
	"github.com/rickgao/ashare-data/internal/config"
	"github.com/rickgao/ashare-data/internal/database"
	"github.com/rickgao/ashare-data/internal/download"
	"github.com/rickgao/ashare-data/internal/logging"
	"github.com/rickgao/ashare-data/internal/runner"
	"github.com/rickgao/ashare-data/internal/schema"
	"github.com/rickgao/ashare-data/internal/sw"
	"github.com/rickgao/ashare-data/internal/version"
	"github.com/rickgao/ashare-data/internal/writer"
)

// Modes.
const (
	modeRun       = "run"
	modeDaemon    = "daemon"
	modeInit      = "init"
	modePull      = "pull-schema"
	modeBootstrap = "bootstrap-schema"
)

func main() {
	configPath := flag.String("config", "configs/loader.yaml", "path to config file")
	envFile := flag.String("env", ".env", "path to .env file")
	mode := flag.String("mode", modeRun, "run | daemon | init | pull-schema | bootstrap-schema")
	flag.Parse()

	os.Exit(run(*configPath, *envFile, *mode))
}

func run(configPath, envFile, mode string) int {
	if err := config.LoadEnvFiles(envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		return 1
	}
	defer log.Close()
	logger := log.Logger
	slog.SetDefault(logger)

	logger.Info("starting loader",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"mode", mode,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	files := schema.Files{
		Dir:       cfg.TableStructure.Dir,
		Structure: cfg.TableStructure.StructureFile,
		Index:     cfg.TableStructure.IndexFile,
		Comment:   cfg.TableStructure.CommentFile,
	}

	if mode == modeBootstrap {
		if err := schema.Bootstrap(files, download.Catalog()); err != nil {
			logger.Error("failed to bootstrap table structure", "error", err)
			return 1
		}
		logger.Info("table structure written", "dir", files.Dir)
		return 0
	}

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return 1
	}
	defer pool.Close()

	store := database.NewStore(pool, database.StoreConfig{
		Retries:    cfg.Database.StoreRetries,
		RetryDelay: cfg.Database.RetryDelay,
	}, logger)

	if mode == modePull {
		_, err := schema.NewPuller(pool, files, logger).Pull(ctx, schema.PullOptions{
			Schemas:    cfg.TableStructure.Schemas,
			ArchiveOld: true,
			KeepDays:   cfg.TableStructure.KeepDays,
			Now:        time.Now(),
		})
		if err != nil {
			logger.Error("failed to pull table structure", "error", err)
			return 1
		}
		return 0
	}

	if err := ensureSnapshot(files, logger); err != nil {
		logger.Error("table structure unavailable", "error", err)
		return 1
	}
	tables := schema.NewManager(store, schema.NewCache(files), logger)

	if mode == modeInit {
		if err := tables.Initialize(ctx); err != nil {
			logger.Error("failed to initialize database", "error", err)
			return 1
		}
		return 0
	}

	apiClient := api.NewClient(
		cfg.Tushare.URL,
		cfg.Tushare.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Tushare.Timeout),
		api.WithRetries(cfg.Tushare.MaxRetries, cfg.Tushare.RetryBackoff),
		api.WithMaxBackoff(cfg.Tushare.MaxBackoff),
		api.WithRateLimit(cfg.Tushare.RequestsPerWindow, cfg.Tushare.Window),
		api.WithFailureBudget(cfg.Tushare.FailureBudget),
	)
	web := sw.NewClient(
		cfg.SW.URL,
		sw.WithLogger(logger),
		sw.WithTimeout(cfg.SW.Timeout),
		sw.WithRetries(cfg.SW.MaxTries, cfg.SW.RetrySleep),
	)
	tw := writer.NewTableWriter(writer.WriterConfig{BatchSize: cfg.Writer.BatchSize}, store, logger)

	deps := download.Deps{
		API:           apiClient,
		Web:           web,
		Store:         store,
		Tables:        tables,
		Writer:        tw,
		SWWorkers:     cfg.SW.Workers,
		FinanceMode:   cfg.Finance.Mode,
		RecentPeriods: cfg.Finance.RecentPeriods,
	}
	r := runner.New(runner.Config{
		LogDir:      cfg.Log.Dir,
		LogKeepDays: cfg.Log.KeepDays,
		ActiveLog:   log.Path,
	}, deps, logger, runner.WithErrorCounter(log.Errors))

	switch mode {
	case modeRun:
		report, err := r.RunOnce(ctx)
		stats := tw.Stats()
		logger.Info("writer stats",
			"inserts", stats.Inserts,
			"updates", stats.Updates,
			"copied", stats.Copied,
			"errors", stats.Errors,
			"retries", stats.Retries,
		)
		if err != nil || report.Failed() {
			return 1
		}
		return 0
	case modeDaemon:
		return daemon(ctx, cfg, r, store, logger)
	default:
		logger.Error("unknown mode", "mode", mode)
		return 2
	}
}

// ensureSnapshot writes the table structure from the built-in catalog when
// no snapshot exists yet.
func ensureSnapshot(files schema.Files, logger *slog.Logger) error {
	for _, p := range files.Paths() {
		_, err := os.Stat(p)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		logger.Warn("table structure missing, writing it from the catalog", "file", p)
		return schema.Bootstrap(files, download.Catalog())
	}
	return nil
}

func daemon(ctx context.Context, cfg *config.LoaderConfig, r *runner.Runner, store *database.Store, logger *slog.Logger) int {
	sched, err := runner.NewScheduler(cfg.Schedule, r, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		return 1
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: runner.HealthHandler(store, r, sched),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}

	logger.Info("loader running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("loader stopped")
	return 0
}
