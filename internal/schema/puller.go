package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"
)

// Querier runs catalog queries. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PullOptions controls a snapshot refresh.
type PullOptions struct {
	Schemas    []string
	ArchiveOld bool // compress the current files to <name>_YYYYMMDD.csv.zst first
	KeepDays   int  // delete archives this many days old or older, 0 keeps all
	Now        time.Time
}

// Puller refreshes the snapshot files from the live catalog.
type Puller struct {
	db     Querier
	files  Files
	logger *slog.Logger
}

// NewPuller creates a puller.
func NewPuller(db Querier, files Files, logger *slog.Logger) *Puller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Puller{db: db, files: files, logger: logger}
}

const columnsSQL = `
SELECT n.nspname, c.relname, a.attname, a.attnum::int,
       CASE WHEN a.attnotnull THEN 'NO' ELSE 'YES' END,
       format_type(a.atttypid, a.atttypmod),
       CASE WHEN EXISTS (
           SELECT 1 FROM pg_catalog.pg_index i
           WHERE i.indrelid = c.oid AND i.indisprimary AND a.attnum = ANY(i.indkey)
       ) THEN 'PRI' ELSE '' END,
       col_description(c.oid, a.attnum)
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r' AND a.attnum > 0 AND NOT a.attisdropped AND n.nspname = ANY($1)
ORDER BY 1, 2, 4`

const indexesSQL = `
SELECT n.nspname, t.relname,
       CASE WHEN ix.indisunique THEN '0' ELSE '1' END,
       CASE WHEN ix.indisprimary THEN 'PRIMARY' ELSE i.relname END,
       a.attname, k.ord::int, am.amname
FROM pg_catalog.pg_index ix
JOIN pg_catalog.pg_class t ON t.oid = ix.indrelid
JOIN pg_catalog.pg_class i ON i.oid = ix.indexrelid
JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
JOIN pg_catalog.pg_am am ON am.oid = i.relam
CROSS JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
WHERE n.nspname = ANY($1)
ORDER BY 1, 2, 4, 6`

const commentsSQL = `
SELECT n.nspname, c.relname, obj_description(c.oid, 'pg_class')
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r' AND n.nspname = ANY($1)
ORDER BY 1, 2`

// Pull archives and purges old files as requested, then rewrites the three
// snapshot files from the catalog.
func (p *Puller) Pull(ctx context.Context, opts PullOptions) (*Snapshot, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	if opts.ArchiveOld {
		if err := p.archive(opts.Now); err != nil {
			return nil, err
		}
	}
	if opts.KeepDays > 0 {
		if _, err := p.purge(opts.KeepDays, opts.Now); err != nil {
			return nil, err
		}
	}

	snap, err := p.query(ctx, opts.Schemas)
	if err != nil {
		return nil, err
	}
	if err := WriteSnapshot(p.files, snap); err != nil {
		return nil, err
	}

	p.logger.Info("table structure pulled",
		"schemas", strings.Join(opts.Schemas, ","),
		"columns", len(snap.Columns),
		"indexes", len(snap.Indexes),
		"tables", len(snap.Comments),
	)
	return snap, nil
}

func (p *Puller) query(ctx context.Context, schemas []string) (*Snapshot, error) {
	var snap Snapshot

	rows, err := p.db.Query(ctx, columnsSQL, schemas)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	snap.Columns, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ColumnRow, error) {
		var c ColumnRow
		var nullable string
		err := row.Scan(&c.Schema, &c.Table, &c.Name, &c.Position, &nullable, &c.Type, &c.Key, &c.Comment)
		c.Nullable = nullable == "YES"
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}

	rows, err = p.db.Query(ctx, indexesSQL, schemas)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	snap.Indexes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (IndexRow, error) {
		var ix IndexRow
		var nonUnique string
		err := row.Scan(&ix.Schema, &ix.Table, &nonUnique, &ix.Name, &ix.Column, &ix.Seq, &ix.Type)
		ix.NonUnique = nonUnique == "1"
		return ix, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan indexes: %w", err)
	}

	rows, err = p.db.Query(ctx, commentsSQL, schemas)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	snap.Comments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (CommentRow, error) {
		var c CommentRow
		err := row.Scan(&c.Schema, &c.Table, &c.Comment)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan comments: %w", err)
	}

	return &snap, nil
}

// ArchiveName returns the archive file name of a snapshot file for day.
func ArchiveName(name string, day time.Time) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return base + "_" + day.Format("20060102") + filepath.Ext(name) + ".zst"
}

func (p *Puller) archive(now time.Time) error {
	for _, path := range p.files.Paths() {
		src, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("snapshot file missing, not archived", "path", path)
			continue
		}
		if err != nil {
			return fmt.Errorf("archive %s: %w", path, err)
		}

		dst := filepath.Join(filepath.Dir(path), ArchiveName(filepath.Base(path), now))
		err = compressFile(src, dst)
		src.Close()
		if err != nil {
			return fmt.Errorf("archive %s: %w", path, err)
		}
		p.logger.Info("snapshot file archived", "path", path, "archive", dst)
	}
	return nil
}

func compressFile(src io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var archiveDate = regexp.MustCompile(`_(\d{8})\.csv(\.zst)?$`)

func (p *Puller) purge(keepDays int, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(p.files.Dir)
	if err != nil {
		return nil, fmt.Errorf("purge archives: %w", err)
	}

	current := []string{p.files.Structure, p.files.Index, p.files.Comment}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || slices.Contains(current, name) {
			continue
		}
		m := archiveDate.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		day, err := time.ParseInLocation("20060102", m[1], now.Location())
		if err != nil {
			continue
		}
		if int(today.Sub(day).Hours()/24) < keepDays {
			continue
		}
		if err := os.Remove(filepath.Join(p.files.Dir, name)); err != nil {
			return removed, fmt.Errorf("purge %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		p.logger.Info("old snapshot archives removed", "count", len(removed))
	}
	return removed, nil
}
