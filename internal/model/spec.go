package model

import (
	"fmt"
	"slices"
	"strings"
)

// Kind selects how a cell is coerced before it is written.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KindOf maps a PostgreSQL column type to a Kind.
func KindOf(sqlType string) Kind {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	switch {
	case strings.HasPrefix(t, "smallint"), strings.HasPrefix(t, "integer"),
		strings.HasPrefix(t, "bigint"), strings.HasPrefix(t, "int"):
		return KindInt
	case strings.HasPrefix(t, "numeric"), strings.HasPrefix(t, "decimal"),
		strings.HasPrefix(t, "double"), strings.HasPrefix(t, "real"):
		return KindDecimal
	default:
		return KindText
	}
}

// ColumnSpec declares one persisted column.
type ColumnSpec struct {
	Name    string
	Kind    Kind
	Type    string // PostgreSQL type, e.g. "character varying(20)"
	Comment string
}

// Varchar declares a character varying(n) column.
func Varchar(name string, n int, comment string) ColumnSpec {
	return ColumnSpec{Name: name, Kind: KindText, Type: fmt.Sprintf("character varying(%d)", n), Comment: comment}
}

// SmallInt declares a smallint column.
func SmallInt(name, comment string) ColumnSpec {
	return ColumnSpec{Name: name, Kind: KindInt, Type: "smallint", Comment: comment}
}

// Integer declares an integer column.
func Integer(name, comment string) ColumnSpec {
	return ColumnSpec{Name: name, Kind: KindInt, Type: "integer", Comment: comment}
}

// Numeric declares a numeric(p,s) column.
func Numeric(name string, p, s int, comment string) ColumnSpec {
	return ColumnSpec{Name: name, Kind: KindDecimal, Type: fmt.Sprintf("numeric(%d,%d)", p, s), Comment: comment}
}

// TableSpec is the declared shape of a persisted table.
type TableSpec struct {
	Schema  string
	Name    string
	Comment string
	Columns []ColumnSpec
	Key     []string // primary key, also the upsert conflict target
}

// QualifiedName returns schema.name.
func (s TableSpec) QualifiedName() string {
	return s.Schema + "." + s.Name
}

// ColumnNames returns the column names in declaration order.
func (s TableSpec) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// IsKey reports whether col is part of the primary key.
func (s TableSpec) IsKey(col string) bool {
	return slices.Contains(s.Key, col)
}

// Validate checks that key columns are declared and names are unique.
func (s TableSpec) Validate() error {
	if s.Schema == "" || s.Name == "" {
		return fmt.Errorf("table spec %q: schema and name are required", s.QualifiedName())
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("table spec %s: no columns", s.QualifiedName())
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Name] {
			return fmt.Errorf("table spec %s: duplicate column %q", s.QualifiedName(), c.Name)
		}
		seen[c.Name] = true
	}
	for _, k := range s.Key {
		if !seen[k] {
			return fmt.Errorf("table spec %s: key column %q not declared", s.QualifiedName(), k)
		}
	}
	return nil
}

// CalendarDay is one row of the exchange trade calendar.
type CalendarDay struct {
	Date   string
	IsOpen bool
}
