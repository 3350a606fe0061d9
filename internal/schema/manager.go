package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store is the database surface the manager needs.
type Store interface {
	CreateSchema(ctx context.Context, name string) (bool, error)
	TableExists(ctx context.Context, schema, table string) (bool, error)
	ExecDDL(ctx context.Context, stmts []string) error
}

// Manager creates schemas and tables from the snapshot on demand.
type Manager struct {
	store  Store
	cache  *Cache
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]bool // tables confirmed to exist
}

// NewManager creates a manager.
func NewManager(store Store, cache *Cache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		cache:  cache,
		logger: logger,
		known:  make(map[string]bool),
	}
}

// EnsureSchema creates the schema if it does not exist.
func (m *Manager) EnsureSchema(ctx context.Context, name string) (bool, error) {
	created, err := m.store.CreateSchema(ctx, name)
	if err != nil {
		return false, fmt.Errorf("ensure schema %s: %w", name, err)
	}
	if created {
		m.logger.Info("schema created", "schema", name)
	}
	return created, nil
}

// EnsureTable creates schema.table from the snapshot if it does not exist.
// It reports whether the table was created.
func (m *Manager) EnsureTable(ctx context.Context, schema, table string) (bool, error) {
	ref := schema + "." + table

	m.mu.Lock()
	known := m.known[ref]
	m.mu.Unlock()
	if known {
		return false, nil
	}

	exists, err := m.store.TableExists(ctx, schema, table)
	if err != nil {
		return false, fmt.Errorf("ensure table %s: %w", ref, err)
	}
	if exists {
		m.markKnown(ref)
		return false, nil
	}

	def, err := m.cache.Definition(schema, table)
	if err != nil {
		return false, fmt.Errorf("ensure table %s: %w", ref, err)
	}
	stmts, err := CreateTableSQL(def)
	if err != nil {
		return false, fmt.Errorf("ensure table %s: %w", ref, err)
	}

	if _, err := m.EnsureSchema(ctx, schema); err != nil {
		return false, err
	}
	if err := m.store.ExecDDL(ctx, stmts); err != nil {
		return false, fmt.Errorf("create table %s: %w", ref, err)
	}

	m.markKnown(ref)
	m.logger.Info("table created", "table", ref, "columns", len(def.Columns))
	return true, nil
}

// Initialize creates every schema and table listed in the snapshot. Failures
// are logged and the remaining tables are still attempted.
func (m *Manager) Initialize(ctx context.Context) error {
	schemas, err := m.cache.Schemas()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	for _, s := range schemas {
		if _, err := m.EnsureSchema(ctx, s); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
	}

	tables, err := m.cache.Tables()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var errs []error
	created := 0
	for _, t := range tables {
		ok, err := m.EnsureTable(ctx, t.Schema, t.Table)
		if err != nil {
			m.logger.Error("create table failed", "table", t.String(), "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			created++
		}
	}

	m.logger.Info("initialize complete",
		"schemas", len(schemas),
		"tables", len(tables),
		"created", created,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

func (m *Manager) markKnown(ref string) {
	m.mu.Lock()
	m.known[ref] = true
	m.mu.Unlock()
}
