package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSV headers of the three snapshot files.
var (
	StructureHeader = []string{"TABLE_SCHEMA", "TABLE_NAME", "COLUMN_NAME", "ORDINAL_POSITION", "IS_NULLABLE", "COLUMN_TYPE", "COLUMN_KEY", "COLUMN_COMMENT"}
	IndexHeader     = []string{"TABLE_SCHEMA", "TABLE_NAME", "NON_UNIQUE", "INDEX_NAME", "COLUMN_NAME", "SEQ_IN_INDEX", "INDEX_TYPE"}
	CommentHeader   = []string{"TABLE_SCHEMA", "TABLE_NAME", "TABLE_COMMENT"}
)

// PrimaryIndex is the index name that marks the primary key.
const PrimaryIndex = "PRIMARY"

// ColumnRow is one row of the structure file.
type ColumnRow struct {
	Schema   string
	Table    string
	Name     string
	Position int
	Nullable bool
	Type     string
	Key      string // "PRI" for primary key columns
	Comment  null.String
}

// IndexRow is one row of the index file.
type IndexRow struct {
	Schema    string
	Table     string
	NonUnique bool
	Name      string
	Column    string
	Seq       int
	Type      string
}

// CommentRow is one row of the comment file.
type CommentRow struct {
	Schema  string
	Table   string
	Comment null.String
}

// Snapshot holds the parsed contents of the three files.
type Snapshot struct {
	Columns  []ColumnRow
	Indexes  []IndexRow
	Comments []CommentRow
}

// Files locates the snapshot on disk.
type Files struct {
	Dir       string
	Structure string
	Index     string
	Comment   string
}

// Paths returns the three file paths in structure, index, comment order.
func (f Files) Paths() []string {
	return []string{
		filepath.Join(f.Dir, f.Structure),
		filepath.Join(f.Dir, f.Index),
		filepath.Join(f.Dir, f.Comment),
	}
}

// ReadSnapshot parses the three files.
func ReadSnapshot(f Files) (*Snapshot, error) {
	paths := f.Paths()
	var snap Snapshot

	records, err := readCSV(paths[0], StructureHeader)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		pos, err := strconv.Atoi(r["ORDINAL_POSITION"])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: ORDINAL_POSITION: %w", paths[0], i+2, err)
		}
		snap.Columns = append(snap.Columns, ColumnRow{
			Schema:   r["TABLE_SCHEMA"],
			Table:    r["TABLE_NAME"],
			Name:     r["COLUMN_NAME"],
			Position: pos,
			Nullable: strings.EqualFold(r["IS_NULLABLE"], "YES"),
			Type:     r["COLUMN_TYPE"],
			Key:      r["COLUMN_KEY"],
			Comment:  nullText(r["COLUMN_COMMENT"]),
		})
	}

	records, err = readCSV(paths[1], IndexHeader)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		seq, err := strconv.Atoi(r["SEQ_IN_INDEX"])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: SEQ_IN_INDEX: %w", paths[1], i+2, err)
		}
		snap.Indexes = append(snap.Indexes, IndexRow{
			Schema:    r["TABLE_SCHEMA"],
			Table:     r["TABLE_NAME"],
			NonUnique: r["NON_UNIQUE"] == "1",
			Name:      r["INDEX_NAME"],
			Column:    r["COLUMN_NAME"],
			Seq:       seq,
			Type:      r["INDEX_TYPE"],
		})
	}

	records, err = readCSV(paths[2], CommentHeader)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		snap.Comments = append(snap.Comments, CommentRow{
			Schema:  r["TABLE_SCHEMA"],
			Table:   r["TABLE_NAME"],
			Comment: nullText(r["TABLE_COMMENT"]),
		})
	}

	return &snap, nil
}

// WriteSnapshot writes the three files, creating the directory if needed.
func WriteSnapshot(f Files, snap *Snapshot) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	paths := f.Paths()

	rows := make([][]string, 0, len(snap.Columns))
	for _, c := range snap.Columns {
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		rows = append(rows, []string{c.Schema, c.Table, c.Name, strconv.Itoa(c.Position), nullable, c.Type, c.Key, c.Comment.String})
	}
	if err := writeCSV(paths[0], StructureHeader, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, ix := range snap.Indexes {
		nonUnique := "0"
		if ix.NonUnique {
			nonUnique = "1"
		}
		rows = append(rows, []string{ix.Schema, ix.Table, nonUnique, ix.Name, ix.Column, strconv.Itoa(ix.Seq), ix.Type})
	}
	if err := writeCSV(paths[1], IndexHeader, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, c := range snap.Comments {
		rows = append(rows, []string{c.Schema, c.Table, c.Comment.String})
	}
	return writeCSV(paths[2], CommentHeader, rows)
}

// openSnapshotFile opens a snapshot file, decompressing .zst archives.
// A leading UTF-8 BOM is dropped.
func openSnapshotFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var r io.Reader = f
	closer := func() error { return f.Close() }
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd %s: %w", path, err)
		}
		r = dec
		closer = func() error {
			dec.Close()
			return f.Close()
		}
	}

	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	return readCloser{Reader: r, close: closer}, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (rc readCloser) Close() error { return rc.close() }

func readCSV(path string, header []string) ([]map[string]string, error) {
	f, err := openSnapshotFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("read %s: %w", path, errors.New("empty file"))
	}

	pos := make(map[string]int, len(all[0]))
	for i, h := range all[0] {
		pos[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	for _, h := range header {
		if _, ok := pos[h]; !ok {
			return nil, fmt.Errorf("read %s: missing column %s", path, h)
		}
	}

	out := make([]map[string]string, 0, len(all)-1)
	for _, rec := range all[1:] {
		m := make(map[string]string, len(header))
		for _, h := range header {
			if i := pos[h]; i < len(rec) {
				m[h] = rec[i]
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func nullText(s string) null.String {
	if strings.TrimSpace(s) == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}
