package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/guregu/null/v6"
)

// ErrTableNotInSnapshot is returned when a table has no columns in the
// snapshot.
var ErrTableNotInSnapshot = errors.New("table not in snapshot")

// Index is one index of a table, columns in sequence order.
type Index struct {
	Name    string
	Unique  bool
	Type    string
	Columns []string
}

// Definition is everything needed to create one table.
type Definition struct {
	Schema  string
	Table   string
	Columns []ColumnRow // by ordinal position
	Indexes []Index     // primary key first, then by name
	Comment null.String
}

// TableRef names a table in the snapshot.
type TableRef struct {
	Schema string
	Table  string
}

func (r TableRef) String() string { return r.Schema + "." + r.Table }

// Cache loads the snapshot once and answers definition lookups.
type Cache struct {
	files Files

	once sync.Once
	snap *Snapshot
	err  error
}

// NewCache creates a cache over the snapshot files. Nothing is read until
// the first lookup.
func NewCache(files Files) *Cache {
	return &Cache{files: files}
}

// NewCacheFromSnapshot creates a cache over an in-memory snapshot.
func NewCacheFromSnapshot(snap *Snapshot) *Cache {
	c := &Cache{snap: snap}
	c.once.Do(func() {})
	return c
}

func (c *Cache) load() (*Snapshot, error) {
	c.once.Do(func() {
		c.snap, c.err = ReadSnapshot(c.files)
	})
	return c.snap, c.err
}

// Definition returns the definition of schema.table.
func (c *Cache) Definition(schema, table string) (*Definition, error) {
	snap, err := c.load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	def := &Definition{Schema: schema, Table: table}
	for _, col := range snap.Columns {
		if col.Schema == schema && col.Table == table {
			def.Columns = append(def.Columns, col)
		}
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("%s.%s: %w", schema, table, ErrTableNotInSnapshot)
	}
	slices.SortStableFunc(def.Columns, func(a, b ColumnRow) int { return a.Position - b.Position })

	var rows []IndexRow
	for _, ix := range snap.Indexes {
		if ix.Schema == schema && ix.Table == table {
			rows = append(rows, ix)
		}
	}
	slices.SortStableFunc(rows, func(a, b IndexRow) int {
		if a.Name != b.Name {
			switch {
			case a.Name == PrimaryIndex:
				return -1
			case b.Name == PrimaryIndex:
				return 1
			}
			return strings.Compare(a.Name, b.Name)
		}
		return a.Seq - b.Seq
	})
	for _, r := range rows {
		n := len(def.Indexes)
		if n == 0 || def.Indexes[n-1].Name != r.Name {
			def.Indexes = append(def.Indexes, Index{Name: r.Name, Unique: !r.NonUnique, Type: r.Type})
			n++
		}
		def.Indexes[n-1].Columns = append(def.Indexes[n-1].Columns, r.Column)
	}

	for _, cm := range snap.Comments {
		if cm.Schema == schema && cm.Table == table {
			def.Comment = cm.Comment
			break
		}
	}
	return def, nil
}

// Tables lists the tables of the comment file, sorted.
func (c *Cache) Tables() ([]TableRef, error) {
	snap, err := c.load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	refs := make([]TableRef, 0, len(snap.Comments))
	for _, cm := range snap.Comments {
		refs = append(refs, TableRef{Schema: cm.Schema, Table: cm.Table})
	}
	slices.SortFunc(refs, func(a, b TableRef) int { return strings.Compare(a.String(), b.String()) })
	return slices.Compact(refs), nil
}

// Schemas lists the distinct schemas of the comment file, sorted.
func (c *Cache) Schemas() ([]string, error) {
	refs, err := c.Tables()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range refs {
		out = append(out, r.Schema)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
