package model

import (
	"fmt"
	"slices"
	"strings"
)

// Table is a column-oriented frame of vendor rows.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates a table. Rows shorter than columns are padded with nil.
func NewTable(columns []string, rows [][]any) *Table {
	t := &Table{Columns: slices.Clone(columns)}
	for _, r := range rows {
		row := make([]any, len(columns))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Len returns the number of rows. A nil table has none.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of col, or -1.
func (t *Table) Index(col string) int {
	return slices.Index(t.Columns, col)
}

// Has reports whether the table has column col.
func (t *Table) Has(col string) bool {
	return t.Index(col) >= 0
}

// Row returns a read view of row i.
func (t *Table) Row(i int) Row {
	return Row{table: t, values: t.Rows[i]}
}

// Rename renames columns using from→to pairs. Unknown names are ignored.
func (t *Table) Rename(names map[string]string) {
	for i, c := range t.Columns {
		if to, ok := names[c]; ok {
			t.Columns[i] = to
		}
	}
}

// Select returns a new table holding only cols, in that order.
func (t *Table) Select(cols ...string) (*Table, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.Index(c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("select: unknown column %q", c)
		}
	}

	out := &Table{Columns: slices.Clone(cols), Rows: make([][]any, 0, len(t.Rows))}
	for _, r := range t.Rows {
		row := make([]any, len(idx))
		for i, j := range idx {
			row[i] = r[j]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{Columns: slices.Clone(t.Columns)}
	for _, r := range t.Rows {
		if keep(Row{table: t, values: r}) {
			out.Rows = append(out.Rows, slices.Clone(r))
		}
	}
	return out
}

// Set overwrites col with fn's result for every row, appending the column
// when it does not exist.
func (t *Table) Set(col string, fn func(Row) any) {
	j := t.Index(col)
	if j < 0 {
		t.Columns = append(t.Columns, col)
		j = len(t.Columns) - 1
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], nil)
		}
	}
	for i, r := range t.Rows {
		t.Rows[i][j] = fn(Row{table: t, values: r})
	}
}

// Drop removes the named columns.
func (t *Table) Drop(cols ...string) {
	keep := make([]int, 0, len(t.Columns))
	var names []string
	for i, c := range t.Columns {
		if !slices.Contains(cols, c) {
			keep = append(keep, i)
			names = append(names, c)
		}
	}
	for i, r := range t.Rows {
		row := make([]any, len(keep))
		for k, j := range keep {
			row[k] = r[j]
		}
		t.Rows[i] = row
	}
	t.Columns = names
}

// Concat stacks tables. Columns are aligned by name in order of first
// appearance; cells missing from a table are nil. Nil tables are skipped.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !slices.Contains(out.Columns, c) {
				out.Columns = append(out.Columns, c)
			}
		}
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		pos := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			pos[i] = out.Index(c)
		}
		for _, r := range t.Rows {
			row := make([]any, len(out.Columns))
			for i, v := range r {
				row[pos[i]] = v
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Join inner-joins right onto t on the key columns. Right columns that t
// already has are not repeated.
func (t *Table) Join(right *Table, on ...string) (*Table, error) {
	lk, err := t.keyIndexes(on)
	if err != nil {
		return nil, fmt.Errorf("join left: %w", err)
	}
	rk, err := right.keyIndexes(on)
	if err != nil {
		return nil, fmt.Errorf("join right: %w", err)
	}

	var extra []int
	out := &Table{Columns: slices.Clone(t.Columns)}
	for i, c := range right.Columns {
		if !t.Has(c) {
			extra = append(extra, i)
			out.Columns = append(out.Columns, c)
		}
	}

	index := make(map[string][]int, len(right.Rows))
	for i, r := range right.Rows {
		k := rowKey(r, rk)
		index[k] = append(index[k], i)
	}

	for _, l := range t.Rows {
		for _, i := range index[rowKey(l, lk)] {
			row := make([]any, 0, len(out.Columns))
			row = append(row, l...)
			for _, j := range extra {
				row = append(row, right.Rows[i][j])
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// SortBy sorts rows by the text of cols, ascending and stable.
func (t *Table) SortBy(cols ...string) error {
	idx, err := t.keyIndexes(cols)
	if err != nil {
		return fmt.Errorf("sort: %w", err)
	}
	slices.SortStableFunc(t.Rows, func(a, b []any) int {
		for _, j := range idx {
			as, _ := Text(a[j])
			bs, _ := Text(b[j])
			if c := strings.Compare(as, bs); c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

// DedupLast keeps the last row for each distinct key, preserving the
// position of that last row.
func (t *Table) DedupLast(cols ...string) (*Table, error) {
	idx, err := t.keyIndexes(cols)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}

	last := make(map[string]int, len(t.Rows))
	for i, r := range t.Rows {
		last[rowKey(r, idx)] = i
	}

	out := &Table{Columns: slices.Clone(t.Columns)}
	for i, r := range t.Rows {
		if last[rowKey(r, idx)] == i {
			out.Rows = append(out.Rows, r)
		}
	}
	return out, nil
}

// DedupFirst keeps the first row for each distinct key.
func (t *Table) DedupFirst(cols ...string) (*Table, error) {
	idx, err := t.keyIndexes(cols)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}

	seen := make(map[string]bool, len(t.Rows))
	out := &Table{Columns: slices.Clone(t.Columns)}
	for _, r := range t.Rows {
		k := rowKey(r, idx)
		if !seen[k] {
			seen[k] = true
			out.Rows = append(out.Rows, r)
		}
	}
	return out, nil
}

// Strings returns the text of col for every row; nil cells become "".
func (t *Table) Strings(col string) []string {
	j := t.Index(col)
	if j < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i], _ = Text(r[j])
	}
	return out
}

func (t *Table) keyIndexes(cols []string) ([]int, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.Index(c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("unknown column %q", c)
		}
	}
	return idx, nil
}

func rowKey(row []any, idx []int) string {
	var b strings.Builder
	for _, j := range idx {
		s, _ := Text(row[j])
		b.WriteString(s)
		b.WriteByte(0)
	}
	return b.String()
}

// Row is a read view of one table row.
type Row struct {
	table  *Table
	values []any
}

// Get returns the cell of col, or nil when the column does not exist.
func (r Row) Get(col string) any {
	j := r.table.Index(col)
	if j < 0 || j >= len(r.values) {
		return nil
	}
	return r.values[j]
}

// Text returns the cell of col as text, "" for nil.
func (r Row) Text(col string) string {
	s, _ := Text(r.Get(col))
	return s
}
