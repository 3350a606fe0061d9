package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/ashare-data/internal/model"
)

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// StoreConfig holds retry settings for Store.
type StoreConfig struct {
	Retries    int
	RetryDelay time.Duration
}

// DefaultStoreConfig returns the default store settings.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Retries:    5,
		RetryDelay: time.Second,
	}
}

// Store runs the loader's queries against one database.
type Store struct {
	db     DB
	cfg    StoreConfig
	logger *slog.Logger
}

// NewStore creates a store over db.
func NewStore(db DB, cfg StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Store{db: db, cfg: cfg, logger: logger}
}

// DB returns the underlying connection.
func (s *Store) DB() DB {
	return s.db
}

// Ping verifies the connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Retry runs fn up to the configured number of attempts, sleeping between
// failures. Context errors are returned immediately.
func (s *Store) Retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		s.logger.Warn("database operation failed",
			"op", op,
			"attempt", attempt,
			"max_attempts", s.cfg.Retries,
			"error", err,
		)
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, s.cfg.Retries, lastErr)
}

// SchemaExists reports whether the schema exists.
func (s *Store) SchemaExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = $1)`,
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %s: %w", name, err)
	}
	return exists, nil
}

// CreateSchema creates the schema. It returns false when it already existed.
func (s *Store) CreateSchema(ctx context.Context, name string) (bool, error) {
	exists, err := s.SchemaExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := s.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, fmt.Errorf("create schema %s: %w", name, err)
	}
	return true, nil
}

// TableExists reports whether schema.table exists.
func (s *Store) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`,
		schema, table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schema, table, err)
	}
	return exists, nil
}

// ExecDDL runs the statements in one transaction.
func (s *Store) ExecDDL(ctx context.Context, stmts []string) error {
	return s.InTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
}

// Exec runs a statement with retries and returns the affected row count.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := s.Retry(ctx, "exec", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// QueryStrings returns the first column of every row as text. NULLs are
// skipped.
func (s *Store) QueryStrings(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v *string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if v != nil {
			out = append(out, *v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// DistinctStrings returns the sorted distinct values of column in table.
func (s *Store) DistinctStrings(ctx context.Context, table, column string) ([]string, error) {
	col := pgx.Identifier{column}.Sanitize()
	sql := fmt.Sprintf("SELECT DISTINCT %s::text FROM %s WHERE %s IS NOT NULL ORDER BY 1", col, QuoteTable(table), col)
	out, err := s.QueryStrings(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("distinct %s.%s: %w", table, column, err)
	}
	return out, nil
}

// MaxString returns the largest value of column in table, "" when the table
// is empty.
func (s *Store) MaxString(ctx context.Context, table, column string) (string, error) {
	var v *string
	sql := fmt.Sprintf("SELECT MAX(%s)::text FROM %s", pgx.Identifier{column}.Sanitize(), QuoteTable(table))
	if err := s.db.QueryRow(ctx, sql).Scan(&v); err != nil {
		return "", fmt.Errorf("max %s.%s: %w", table, column, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+QuoteTable(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// CalendarDays returns the rows of a trade calendar table (cal_date,
// is_open) sorted by date.
func (s *Store) CalendarDays(ctx context.Context, table string) ([]model.CalendarDay, error) {
	rows, err := s.db.Query(ctx, "SELECT cal_date, is_open FROM "+QuoteTable(table)+" ORDER BY cal_date")
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", table, err)
	}
	days, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CalendarDay, error) {
		var (
			date string
			open *int64
		)
		if err := row.Scan(&date, &open); err != nil {
			return model.CalendarDay{}, err
		}
		return model.CalendarDay{Date: date, IsOpen: open != nil && *open == 1}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan calendar %s: %w", table, err)
	}
	return days, nil
}

// ClearTable deletes every row of table.
func (s *Store) ClearTable(ctx context.Context, table string) error {
	if _, err := s.Exec(ctx, "DELETE FROM "+QuoteTable(table)); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	s.logger.Info("table cleared", "table", table)
	return nil
}

// RenameTable renames table (schema qualified) to newName within its schema.
func (s *Store) RenameTable(ctx context.Context, table, newName string) error {
	sql := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QuoteTable(table), pgx.Identifier{newName}.Sanitize())
	if _, err := s.Exec(ctx, sql); err != nil {
		return fmt.Errorf("rename %s: %w", table, err)
	}
	return nil
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.db, fn)
}

// QuoteTable quotes a possibly schema-qualified table name.
func QuoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
