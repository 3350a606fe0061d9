package writer

import (
	"fmt"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/rickgao/ashare-data/internal/model"
)

// coerce converts a vendor cell to the nullable Go type of kind.
func coerce(kind model.Kind, v any) any {
	switch kind {
	case model.KindInt:
		d, ok := model.Decimal(v)
		if !ok {
			return null.Int{}
		}
		return null.IntFrom(d.Round(0).IntPart())
	case model.KindDecimal:
		d, ok := model.Decimal(v)
		if !ok {
			return decimal.NullDecimal{}
		}
		return decimal.NullDecimal{Decimal: d, Valid: true}
	default:
		s, ok := model.Text(v)
		if !ok {
			return null.String{}
		}
		return null.StringFrom(s)
	}
}

// prepare selects spec's columns from data, drops duplicate keys keeping the
// last row, and coerces every cell.
func prepare(spec model.TableSpec, data *model.Table) ([][]any, error) {
	tbl, err := data.Select(spec.ColumnNames()...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.QualifiedName(), err)
	}
	if len(spec.Key) > 0 {
		if tbl, err = tbl.DedupLast(spec.Key...); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.QualifiedName(), err)
		}
	}

	rows := make([][]any, len(tbl.Rows))
	for i, r := range tbl.Rows {
		row := make([]any, len(spec.Columns))
		for j, col := range spec.Columns {
			row[j] = coerce(col.Kind, r[j])
		}
		rows[i] = row
	}
	return rows, nil
}

// arg converts a coerced cell to the pgtype value bound on the wire. The
// pgtype forms encode in binary, which COPY requires.
func arg(v any) any {
	switch x := v.(type) {
	case null.String:
		return pgtype.Text{String: x.String, Valid: x.Valid}
	case null.Int:
		return pgtype.Int8{Int64: x.Int64, Valid: x.Valid}
	case decimal.NullDecimal:
		if !x.Valid {
			return pgtype.Numeric{}
		}
		return pgtype.Numeric{Int: x.Decimal.Coefficient(), Exp: x.Decimal.Exponent(), Valid: true}
	default:
		return v
	}
}

func args(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = arg(v)
	}
	return out
}
