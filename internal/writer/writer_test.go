package writer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/rickgao/ashare-data/internal/model"
)

var pricesSpec = model.TableSpec{
	Schema: "stk_data",
	Name:   "asharedailyprices",
	Columns: []model.ColumnSpec{
		model.Varchar("trade_date", 255, ""),
		model.Varchar("stock_code", 255, ""),
		model.Numeric("close", 20, 4, ""),
		model.Integer("is_st", ""),
	},
	Key: []string{"trade_date", "stock_code"},
}

func pricesTable() *model.Table {
	return model.NewTable(
		[]string{"stock_code", "trade_date", "close", "is_st", "extra"},
		[][]any{
			{"600000.SH", "20240102", json.Number("7.05"), json.Number("0"), "x"},
			{"000001.SZ", "20240102", "NaN", nil, "y"},
			{"600000.SH", "20240102", json.Number("7.06"), json.Number("1.0"), "z"},
		},
	)
}

// fakeTx records statements. Methods not overridden panic.
type fakeTx struct {
	pgx.Tx
	execs    []string
	copied   [][]any
	batches  []*pgx.Batch
	inserted []bool // answers for upsert rows, true when missing
	failExec error
}

func (tx *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, sql)
	if tx.failExec != nil {
		return pgconn.CommandTag{}, tx.failExec
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (tx *fakeTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	var n int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return n, err
		}
		tx.copied = append(tx.copied, vals)
		n++
	}
	return n, src.Err()
}

func (tx *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	tx.batches = append(tx.batches, b)
	return &fakeResults{tx: tx}
}

type fakeResults struct {
	pgx.BatchResults
	tx *fakeTx
}

func (r *fakeResults) QueryRow() pgx.Row {
	inserted := true
	if len(r.tx.inserted) > 0 {
		inserted = r.tx.inserted[0]
		r.tx.inserted = r.tx.inserted[1:]
	}
	return fakeRow{inserted: inserted}
}

func (r *fakeResults) Close() error { return nil }

type fakeRow struct{ inserted bool }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*bool)) = r.inserted
	return nil
}

// fakeStore runs every attempt on tx, failing the first failN transactions.
type fakeStore struct {
	tx      *fakeTx
	retries int
	failN   int
	txs     int
}

func (s *fakeStore) Retry(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < s.retries; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}

func (s *fakeStore) InTx(_ context.Context, fn func(pgx.Tx) error) error {
	s.txs++
	if s.txs <= s.failN {
		return errors.New("connection reset")
	}
	return fn(s.tx)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		kind model.Kind
		in   any
		want any
	}{
		{"text", model.KindText, "600000.SH", null.StringFrom("600000.SH")},
		{"text from number", model.KindText, json.Number("20240102"), null.StringFrom("20240102")},
		{"text nil", model.KindText, nil, null.String{}},
		{"int", model.KindInt, json.Number("1"), null.IntFrom(1)},
		{"int from decimal text", model.KindInt, "2.0", null.IntFrom(2)},
		{"int bool", model.KindInt, true, null.IntFrom(1)},
		{"int garbage", model.KindInt, "Y", null.Int{}},
		{"decimal", model.KindDecimal, json.Number("7.05"), decimal.NullDecimal{Decimal: decimal.RequireFromString("7.05"), Valid: true}},
		{"decimal nan", model.KindDecimal, "NaN", decimal.NullDecimal{}},
		{"decimal nil", model.KindDecimal, nil, decimal.NullDecimal{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coerce(tt.kind, tt.in)
			switch want := tt.want.(type) {
			case decimal.NullDecimal:
				g, ok := got.(decimal.NullDecimal)
				if !ok || g.Valid != want.Valid || (want.Valid && !g.Decimal.Equal(want.Decimal)) {
					t.Errorf("coerce(%v) = %#v, want %#v", tt.in, got, want)
				}
			default:
				if got != tt.want {
					t.Errorf("coerce(%v) = %#v, want %#v", tt.in, got, tt.want)
				}
			}
		})
	}
}

func TestArg(t *testing.T) {
	n, ok := arg(decimal.NullDecimal{Decimal: decimal.RequireFromString("7.05"), Valid: true}).(pgtype.Numeric)
	if !ok || !n.Valid || n.Int.Int64() != 705 || n.Exp != -2 {
		t.Errorf("numeric arg = %#v", n)
	}
	if v := arg(decimal.NullDecimal{}).(pgtype.Numeric); v.Valid {
		t.Error("null decimal should bind as NULL")
	}
	if v := arg(null.StringFrom("a")).(pgtype.Text); !v.Valid || v.String != "a" {
		t.Errorf("text arg = %#v", v)
	}
	if v := arg(null.Int{}).(pgtype.Int8); v.Valid {
		t.Error("null int should bind as NULL")
	}
}

func TestPrepare(t *testing.T) {
	rows, err := prepare(pricesSpec, pricesTable())
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 after dropping the duplicate key", len(rows))
	}
	// The later duplicate wins and keeps its position.
	if rows[1][2].(decimal.NullDecimal).Decimal.String() != "7.06" {
		t.Errorf("close = %v, want 7.06", rows[1][2])
	}
	if rows[0][2].(decimal.NullDecimal).Valid {
		t.Error("NaN close should be NULL")
	}
	if len(rows[0]) != 4 {
		t.Errorf("row width = %d, want 4", len(rows[0]))
	}

	missing := model.NewTable([]string{"trade_date"}, [][]any{{"20240102"}})
	if _, err := prepare(pricesSpec, missing); err == nil {
		t.Error("prepare should fail when a declared column is missing")
	}
}

func TestUpsertSQL(t *testing.T) {
	got := upsertSQL(pricesSpec)
	want := `INSERT INTO "stk_data"."asharedailyprices" ("trade_date", "stock_code", "close", "is_st") ` +
		`VALUES ($1, $2, $3, $4) ON CONFLICT ("trade_date", "stock_code") ` +
		`DO UPDATE SET "close" = EXCLUDED."close", "is_st" = EXCLUDED."is_st" RETURNING (xmax = 0)`
	if got != want {
		t.Errorf("upsertSQL() =\n%s\nwant\n%s", got, want)
	}

	keyOnly := model.TableSpec{
		Schema:  "s",
		Name:    "t",
		Columns: []model.ColumnSpec{model.Varchar("a", 8, "")},
		Key:     []string{"a"},
	}
	if got := upsertSQL(keyOnly); !strings.HasSuffix(got, `DO UPDATE SET "a" = EXCLUDED."a" RETURNING (xmax = 0)`) {
		t.Errorf("key-only upsertSQL() = %s", got)
	}

	noKey := keyOnly
	noKey.Key = nil
	if got := upsertSQL(noKey); !strings.HasSuffix(got, "RETURNING true") || strings.Contains(got, "CONFLICT") {
		t.Errorf("keyless upsertSQL() = %s", got)
	}
}

func TestTableWriter_Append(t *testing.T) {
	tx := &fakeTx{inserted: []bool{true, false}}
	w := NewTableWriter(WriterConfig{BatchSize: 1}, &fakeStore{tx: tx, retries: 1}, nil)

	if err := w.Write(context.Background(), "daily prices", pricesSpec, pricesTable(), ModeAppend); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if len(tx.batches) != 2 {
		t.Fatalf("batches = %d, want 2 with BatchSize 1", len(tx.batches))
	}
	q := tx.batches[0].QueuedQueries[0]
	if len(q.Arguments) != 4 {
		t.Errorf("arguments = %d, want 4", len(q.Arguments))
	}
	if _, ok := q.Arguments[0].(pgtype.Text); !ok {
		t.Errorf("argument type = %T, want pgtype.Text", q.Arguments[0])
	}

	stats := w.Stats()
	if stats.Inserts != 1 || stats.Updates != 1 || stats.Batches != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestTableWriter_Replace(t *testing.T) {
	tx := &fakeTx{}
	w := NewTableWriter(DefaultWriterConfig(), &fakeStore{tx: tx, retries: 1}, nil)

	if err := w.Write(context.Background(), "daily prices", pricesSpec, pricesTable(), ModeReplace); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if len(tx.execs) != 1 || tx.execs[0] != `DELETE FROM "stk_data"."asharedailyprices"` {
		t.Errorf("execs = %v", tx.execs)
	}
	if len(tx.copied) != 2 {
		t.Errorf("copied rows = %d, want 2", len(tx.copied))
	}
	if got := w.Stats().Copied; got != 2 {
		t.Errorf("Copied = %d, want 2", got)
	}
}

func TestTableWriter_EmptyData(t *testing.T) {
	store := &fakeStore{tx: &fakeTx{}, retries: 1}
	w := NewTableWriter(DefaultWriterConfig(), store, nil)

	if err := w.Write(context.Background(), "empty", pricesSpec, model.NewTable(pricesSpec.ColumnNames(), nil), ModeAppend); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Write(context.Background(), "nil", pricesSpec, nil, ModeAppend); err != nil {
		t.Fatalf("Write(nil) failed: %v", err)
	}
	if store.txs != 0 {
		t.Errorf("transactions = %d, want 0", store.txs)
	}
}

func TestTableWriter_Retries(t *testing.T) {
	tests := []struct {
		name        string
		failN       int
		retries     int
		wantErr     bool
		wantRetries int64
		wantErrors  int64
	}{
		{name: "succeeds after failure", failN: 1, retries: 3, wantRetries: 1},
		{name: "gives up", failN: 5, retries: 3, wantErr: true, wantRetries: 2, wantErrors: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{tx: &fakeTx{}, retries: tt.retries, failN: tt.failN}
			w := NewTableWriter(DefaultWriterConfig(), store, nil)

			err := w.Write(context.Background(), "daily prices", pricesSpec, pricesTable(), ModeAppend)
			if tt.wantErr != (err != nil) {
				t.Fatalf("Write() error = %v, wantErr %v", err, tt.wantErr)
			}
			stats := w.Stats()
			if stats.Retries != tt.wantRetries {
				t.Errorf("Retries = %d, want %d", stats.Retries, tt.wantRetries)
			}
			if stats.Errors != tt.wantErrors {
				t.Errorf("Errors = %d, want %d", stats.Errors, tt.wantErrors)
			}
		})
	}
}

func TestTableWriter_WriteTx(t *testing.T) {
	tx := &fakeTx{failExec: errors.New("boom")}
	w := NewTableWriter(DefaultWriterConfig(), &fakeStore{tx: tx, retries: 1}, nil)

	err := w.WriteTx(context.Background(), tx, "income", pricesSpec, pricesTable(), ModeReplace)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("WriteTx() error = %v, want boom", err)
	}
	if w.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", w.Stats().Errors)
	}

	tx.failExec = nil
	if err := w.WriteTx(context.Background(), tx, "income", pricesSpec, pricesTable(), ModeAppend); err != nil {
		t.Fatalf("WriteTx() error: %v", err)
	}
	if w.Stats().Inserts != 2 {
		t.Errorf("Inserts = %d, want 2", w.Stats().Inserts)
	}
}

func TestModeString(t *testing.T) {
	if ModeAppend.String() != "append" || ModeReplace.String() != "replace" {
		t.Error("mode names mismatch")
	}
	if Mode(9).String() != "Mode(9)" {
		t.Errorf("Mode(9).String() = %q", Mode(9).String())
	}
}

func TestDefaultWriterConfig(t *testing.T) {
	cfg := DefaultWriterConfig()
	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000", cfg.BatchSize)
	}
	if NewTableWriter(WriterConfig{}, nil, nil).cfg.BatchSize != 1000 {
		t.Error("zero BatchSize should fall back to the default")
	}
}
