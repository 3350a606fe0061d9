package writer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/ashare-data/internal/model"
)

// Store is the part of database.Store used by TableWriter.
type Store interface {
	Retry(ctx context.Context, op string, fn func(ctx context.Context) error) error
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// TableWriter writes frames into declared tables. It is safe for concurrent
// use.
type TableWriter struct {
	cfg    WriterConfig
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewTableWriter creates a new TableWriter.
func NewTableWriter(cfg WriterConfig, store Store, logger *slog.Logger) *TableWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	return &TableWriter{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

// Stats returns current metrics.
func (w *TableWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// result counts the rows of one successful write.
type result struct {
	inserts int64
	updates int64
	copied  int64
	batches int64
}

func (r result) rows() int64 {
	return r.inserts + r.updates + r.copied
}

// Write persists data into spec's table in its own transaction. name labels
// the data in logs. Empty data is logged and skipped.
func (w *TableWriter) Write(ctx context.Context, name string, spec model.TableSpec, data *model.Table, mode Mode) error {
	if data.Len() == 0 {
		w.logger.Warn("no data to store", "data", name, "table", spec.QualifiedName())
		return nil
	}

	rows, err := prepare(spec, data)
	if err != nil {
		w.recordError()
		w.logger.Error("prepare data failed", "data", name, "error", err)
		return fmt.Errorf("write %s: %w", name, err)
	}

	start := time.Now()
	attempt := 0
	var res result
	err = w.store.Retry(ctx, "store "+spec.QualifiedName(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			w.recordRetry()
		}
		return w.store.InTx(ctx, func(tx pgx.Tx) error {
			var err error
			res, err = w.write(ctx, tx, spec, rows, mode)
			return err
		})
	})
	if err != nil {
		w.recordError()
		w.logger.Error("store data failed",
			"data", name,
			"table", spec.QualifiedName(),
			"rows", len(rows),
			"error", err,
		)
		return fmt.Errorf("write %s: %w", name, err)
	}

	w.record(res)
	w.logger.Info("data stored",
		"data", name,
		"table", spec.QualifiedName(),
		"mode", mode,
		"rows", res.rows(),
		"updated", res.updates,
		"duration", time.Since(start),
	)
	return nil
}

// WriteTx persists data inside the caller's transaction without retrying.
func (w *TableWriter) WriteTx(ctx context.Context, tx pgx.Tx, name string, spec model.TableSpec, data *model.Table, mode Mode) error {
	if data.Len() == 0 {
		w.logger.Warn("no data to store", "data", name, "table", spec.QualifiedName())
		return nil
	}

	rows, err := prepare(spec, data)
	if err != nil {
		w.recordError()
		return fmt.Errorf("write %s: %w", name, err)
	}

	res, err := w.write(ctx, tx, spec, rows, mode)
	if err != nil {
		w.recordError()
		return fmt.Errorf("write %s: %w", name, err)
	}

	w.record(res)
	w.logger.Info("data stored",
		"data", name,
		"table", spec.QualifiedName(),
		"mode", mode,
		"rows", res.rows(),
	)
	return nil
}

func (w *TableWriter) write(ctx context.Context, tx pgx.Tx, spec model.TableSpec, rows [][]any, mode Mode) (result, error) {
	switch mode {
	case ModeReplace:
		return w.replace(ctx, tx, spec, rows)
	case ModeAppend:
		return w.upsert(ctx, tx, spec, rows)
	default:
		return result{}, fmt.Errorf("unknown write mode %v", mode)
	}
}

// replace deletes every row and loads rows with COPY.
func (w *TableWriter) replace(ctx context.Context, tx pgx.Tx, spec model.TableSpec, rows [][]any) (result, error) {
	table := pgx.Identifier{spec.Schema, spec.Name}
	if _, err := tx.Exec(ctx, "DELETE FROM "+table.Sanitize()); err != nil {
		return result{}, fmt.Errorf("clear %s: %w", spec.QualifiedName(), err)
	}

	n, err := tx.CopyFrom(ctx, table, spec.ColumnNames(), pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return args(rows[i]), nil
	}))
	if err != nil {
		return result{}, fmt.Errorf("copy into %s: %w", spec.QualifiedName(), err)
	}
	return result{copied: n, batches: 1}, nil
}

// upsert sends rows in batches of BatchSize using INSERT ... ON CONFLICT.
func (w *TableWriter) upsert(ctx context.Context, tx pgx.Tx, spec model.TableSpec, rows [][]any) (result, error) {
	var res result
	sql := upsertSQL(spec)

	for start := 0; start < len(rows); start += w.cfg.BatchSize {
		chunk := rows[start:min(start+w.cfg.BatchSize, len(rows))]

		batch := &pgx.Batch{}
		for _, r := range chunk {
			batch.Queue(sql, args(r)...)
		}

		results := tx.SendBatch(ctx, batch)
		for range chunk {
			var inserted bool
			if err := results.QueryRow().Scan(&inserted); err != nil {
				results.Close()
				return res, fmt.Errorf("upsert into %s: %w", spec.QualifiedName(), err)
			}
			if inserted {
				res.inserts++
			} else {
				res.updates++
			}
		}
		if err := results.Close(); err != nil {
			return res, fmt.Errorf("upsert into %s: %w", spec.QualifiedName(), err)
		}
		res.batches++
	}
	return res, nil
}

// upsertSQL builds the single-row upsert for spec. RETURNING (xmax = 0) is
// true for a fresh insert and false when an existing row was updated.
func upsertSQL(spec model.TableSpec) string {
	cols := make([]string, len(spec.Columns))
	params := make([]string, len(spec.Columns))
	var set []string
	for i, c := range spec.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		if !spec.IsKey(c.Name) {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", cols[i], cols[i]))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{spec.Schema, spec.Name}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
	)

	if len(spec.Key) == 0 {
		b.WriteString(" RETURNING true")
		return b.String()
	}

	keys := make([]string, len(spec.Key))
	for i, k := range spec.Key {
		keys[i] = pgx.Identifier{k}.Sanitize()
	}
	if len(set) == 0 {
		// Key-only tables still need a row back on conflict.
		for _, k := range keys {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", k, k))
		}
	}
	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s RETURNING (xmax = 0)",
		strings.Join(keys, ", "),
		strings.Join(set, ", "),
	)
	return b.String()
}

func (w *TableWriter) record(r result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics.Inserts += r.inserts
	w.metrics.Updates += r.updates
	w.metrics.Copied += r.copied
	w.metrics.Batches += r.batches
}

func (w *TableWriter) recordError() {
	w.mu.Lock()
	w.metrics.Errors++
	w.mu.Unlock()
}

func (w *TableWriter) recordRetry() {
	w.mu.Lock()
	w.metrics.Retries++
	w.mu.Unlock()
}
