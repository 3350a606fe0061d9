package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/ashare-data/internal/model"
)

func testFiles(t *testing.T) Files {
	t.Helper()
	return Files{
		Dir:       t.TempDir(),
		Structure: "table_structure.csv",
		Index:     "table_index.csv",
		Comment:   "table_comment.csv",
	}
}

func testSpecs() []model.TableSpec {
	return []model.TableSpec{
		{
			Schema:  "stk_data",
			Name:    "asharetradecal",
			Comment: "SSE trade calendar",
			Columns: []model.ColumnSpec{
				model.Varchar("cal_date", 8, "calendar date"),
				model.SmallInt("is_open", "1 when open"),
			},
			Key: []string{"cal_date"},
		},
		{
			Schema: "stk_data",
			Name:   "asharedailyprices",
			Columns: []model.ColumnSpec{
				model.Varchar("trade_date", 8, "trade date"),
				model.Varchar("stock_code", 20, "it's the vendor code"),
				model.Numeric("close", 20, 4, ""),
			},
			Key: []string{"trade_date", "stock_code"},
		},
	}
}

func TestBootstrapRoundTrip(t *testing.T) {
	files := testFiles(t)
	require.NoError(t, Bootstrap(files, testSpecs()))

	snap, err := ReadSnapshot(files)
	require.NoError(t, err)
	assert.Len(t, snap.Columns, 5)
	assert.Len(t, snap.Indexes, 3)
	assert.Len(t, snap.Comments, 2)

	cal := snap.Columns[0]
	assert.Equal(t, "cal_date", cal.Name)
	assert.Equal(t, "PRI", cal.Key)
	assert.False(t, cal.Nullable)
	assert.Equal(t, "character varying(8)", cal.Type)

	closeCol := snap.Columns[4]
	assert.True(t, closeCol.Nullable)
	assert.False(t, closeCol.Comment.Valid, "empty comment reads back as null")
	assert.False(t, snap.Comments[1].Comment.Valid)
}

func TestReadSnapshotToleratesBOMAndColumnOrder(t *testing.T) {
	files := testFiles(t)
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(files.Dir, name), []byte(content), 0o644))
	}
	write(files.Structure, "\ufeffTABLE_NAME,TABLE_SCHEMA,COLUMN_NAME,ORDINAL_POSITION,IS_NULLABLE,COLUMN_TYPE,COLUMN_KEY,COLUMN_COMMENT\n"+
		"futbasic,fut_data,ts_code,1,NO,character varying(20),PRI,contract code\n")
	write(files.Index, "TABLE_SCHEMA,TABLE_NAME,NON_UNIQUE,INDEX_NAME,COLUMN_NAME,SEQ_IN_INDEX,INDEX_TYPE\n"+
		"fut_data,futbasic,0,PRIMARY,ts_code,1,BTREE\n")
	write(files.Comment, "TABLE_SCHEMA,TABLE_NAME,TABLE_COMMENT\nfut_data,futbasic,\n")

	snap, err := ReadSnapshot(files)
	require.NoError(t, err)
	require.Len(t, snap.Columns, 1)
	assert.Equal(t, "fut_data", snap.Columns[0].Schema)
	assert.Equal(t, "futbasic", snap.Columns[0].Table)
	assert.Equal(t, null.StringFrom("contract code"), snap.Columns[0].Comment)
}

func TestReadSnapshotMissingHeader(t *testing.T) {
	files := testFiles(t)
	require.NoError(t, Bootstrap(files, testSpecs()))
	require.NoError(t, os.WriteFile(filepath.Join(files.Dir, files.Comment), []byte("TABLE_SCHEMA,TABLE_NAME\n"), 0o644))

	_, err := ReadSnapshot(files)
	assert.ErrorContains(t, err, "missing column TABLE_COMMENT")
}

func TestCacheDefinition(t *testing.T) {
	snap := &Snapshot{
		Columns: []ColumnRow{
			{Schema: "s", Table: "t", Name: "b", Position: 2, Nullable: true, Type: "integer"},
			{Schema: "s", Table: "t", Name: "a", Position: 1, Type: "text"},
			{Schema: "s", Table: "other", Name: "x", Position: 1, Type: "text"},
		},
		Indexes: []IndexRow{
			{Schema: "s", Table: "t", NonUnique: true, Name: "t_b_idx", Column: "b", Seq: 1, Type: "btree"},
			{Schema: "s", Table: "t", Name: PrimaryIndex, Column: "b", Seq: 2, Type: "btree"},
			{Schema: "s", Table: "t", Name: PrimaryIndex, Column: "a", Seq: 1, Type: "btree"},
		},
		Comments: []CommentRow{{Schema: "s", Table: "t", Comment: null.StringFrom("test")}},
	}
	cache := NewCacheFromSnapshot(snap)

	def, err := cache.Definition("s", "t")
	require.NoError(t, err)
	assert.Equal(t, "a", def.Columns[0].Name)
	assert.Equal(t, "b", def.Columns[1].Name)
	require.Len(t, def.Indexes, 2)
	assert.Equal(t, Index{Name: PrimaryIndex, Unique: true, Type: "btree", Columns: []string{"a", "b"}}, def.Indexes[0])
	assert.Equal(t, Index{Name: "t_b_idx", Unique: false, Type: "btree", Columns: []string{"b"}}, def.Indexes[1])
	assert.Equal(t, "test", def.Comment.String)

	_, err = cache.Definition("s", "missing")
	assert.ErrorIs(t, err, ErrTableNotInSnapshot)
}

func TestCacheLoadError(t *testing.T) {
	cache := NewCache(Files{Dir: t.TempDir(), Structure: "a.csv", Index: "b.csv", Comment: "c.csv"})
	_, err := cache.Definition("s", "t")
	assert.Error(t, err)
	_, err = cache.Tables()
	assert.Error(t, err)
}

func TestCreateTableSQL(t *testing.T) {
	def := &Definition{
		Schema: "stk_data",
		Table:  "asharedailyprices",
		Columns: []ColumnRow{
			{Name: "trade_date", Type: "character varying(8)", Comment: null.StringFrom("trade date")},
			{Name: "stock_code", Type: "character varying(20)"},
			{Name: "close", Type: "numeric(20,4)", Nullable: true, Comment: null.StringFrom("it's close")},
		},
		Indexes: []Index{
			{Name: PrimaryIndex, Unique: true, Columns: []string{"trade_date", "stock_code"}},
			{Name: "ix_code", Unique: false, Type: "BTREE", Columns: []string{"stock_code"}},
		},
		Comment: null.StringFrom("daily prices"),
	}

	stmts, err := CreateTableSQL(def)
	require.NoError(t, err)
	require.Len(t, stmts, 5)

	assert.Equal(t, `CREATE TABLE "stk_data"."asharedailyprices" (
    "trade_date" character varying(8) NOT NULL,
    "stock_code" character varying(20) NOT NULL,
    "close" numeric(20,4),
    PRIMARY KEY ("trade_date", "stock_code")
)`, stmts[0])
	assert.Equal(t, `CREATE INDEX "ix_code" ON "stk_data"."asharedailyprices" USING btree ("stock_code")`, stmts[1])
	assert.Equal(t, `COMMENT ON TABLE "stk_data"."asharedailyprices" IS 'daily prices'`, stmts[2])
	assert.Equal(t, `COMMENT ON COLUMN "stk_data"."asharedailyprices"."trade_date" IS 'trade date'`, stmts[3])
	assert.Equal(t, `COMMENT ON COLUMN "stk_data"."asharedailyprices"."close" IS 'it''s close'`, stmts[4])
}

func TestCreateTableSQLWithoutKey(t *testing.T) {
	def := &Definition{
		Schema:  "s",
		Table:   "t",
		Columns: []ColumnRow{{Name: "a", Type: "text", Nullable: true}},
	}
	stmts, err := CreateTableSQL(def)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE \"s\".\"t\" (\n    \"a\" text\n)", stmts[0])

	def.Columns[0].Type = "text); DROP TABLE x"
	_, err = CreateTableSQL(def)
	assert.Error(t, err)
}

type fakeStore struct {
	schemas map[string]bool
	tables  map[string]bool
	ddl     [][]string
	failDDL bool
}

func (f *fakeStore) CreateSchema(_ context.Context, name string) (bool, error) {
	if f.schemas[name] {
		return false, nil
	}
	f.schemas[name] = true
	return true, nil
}

func (f *fakeStore) TableExists(_ context.Context, schema, table string) (bool, error) {
	return f.tables[schema+"."+table], nil
}

func (f *fakeStore) ExecDDL(_ context.Context, stmts []string) error {
	if f.failDDL {
		return errors.New("permission denied")
	}
	f.ddl = append(f.ddl, stmts)
	return nil
}

func TestManagerEnsureTable(t *testing.T) {
	snap, err := FromSpecs(testSpecs())
	require.NoError(t, err)
	store := &fakeStore{schemas: map[string]bool{}, tables: map[string]bool{}}
	m := NewManager(store, NewCacheFromSnapshot(snap), nil)
	ctx := context.Background()

	created, err := m.EnsureTable(ctx, "stk_data", "asharetradecal")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, store.schemas["stk_data"])
	require.Len(t, store.ddl, 1)
	assert.True(t, strings.HasPrefix(store.ddl[0][0], `CREATE TABLE "stk_data"."asharetradecal"`))

	created, err = m.EnsureTable(ctx, "stk_data", "asharetradecal")
	require.NoError(t, err)
	assert.False(t, created, "second call is a no-op")
	assert.Len(t, store.ddl, 1)

	_, err = m.EnsureTable(ctx, "stk_data", "nosuchtable")
	assert.ErrorIs(t, err, ErrTableNotInSnapshot)
}

func TestManagerInitialize(t *testing.T) {
	snap, err := FromSpecs(testSpecs())
	require.NoError(t, err)
	store := &fakeStore{
		schemas: map[string]bool{},
		tables:  map[string]bool{"stk_data.asharetradecal": true},
	}
	m := NewManager(store, NewCacheFromSnapshot(snap), nil)

	require.NoError(t, m.Initialize(context.Background()))
	assert.Len(t, store.ddl, 1, "only the missing table is created")

	store2 := &fakeStore{schemas: map[string]bool{}, tables: map[string]bool{}, failDDL: true}
	m2 := NewManager(store2, NewCacheFromSnapshot(snap), nil)
	err = m2.Initialize(context.Background())
	assert.ErrorContains(t, err, "permission denied")
}

func TestArchiveAndPurge(t *testing.T) {
	files := testFiles(t)
	require.NoError(t, Bootstrap(files, testSpecs()))

	old := []string{
		"table_structure_20240101.csv.zst",
		"table_index_20240101.csv",
		"table_comment_20240608.csv.zst",
		"README.md",
	}
	for _, name := range old {
		require.NoError(t, os.WriteFile(filepath.Join(files.Dir, name), []byte("x"), 0o644))
	}

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	p := NewPuller(nil, files, nil)
	require.NoError(t, p.archive(now))

	removed, err := p.purge(7, now)
	require.NoError(t, err)
	sort.Strings(removed)
	assert.Equal(t, []string{"table_index_20240101.csv", "table_structure_20240101.csv.zst"}, removed)

	archived := Files{
		Dir:       files.Dir,
		Structure: ArchiveName(files.Structure, now),
		Index:     ArchiveName(files.Index, now),
		Comment:   ArchiveName(files.Comment, now),
	}
	assert.Equal(t, "table_structure_20240610.csv.zst", archived.Structure)

	// archives read back through the same loader
	snap, err := ReadSnapshot(archived)
	require.NoError(t, err)
	assert.Len(t, snap.Columns, 5)

	for _, name := range []string{"table_comment_20240608.csv.zst", "README.md", files.Structure} {
		_, err := os.Stat(filepath.Join(files.Dir, name))
		assert.NoError(t, err, name)
	}
}

func TestArchiveSkipsMissingFiles(t *testing.T) {
	files := testFiles(t)
	p := NewPuller(nil, files, nil)
	require.NoError(t, p.archive(time.Now()))

	entries, err := os.ReadDir(files.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
