package download

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/ashare-data/internal/api"
	"github.com/rickgao/ashare-data/internal/calendar"
	"github.com/rickgao/ashare-data/internal/model"
	"github.com/rickgao/ashare-data/internal/writer"
)

// Finance download modes.
const (
	FinanceByPeriod = "period"
	FinanceByCode   = "code"
)

// firstReportYear is the first year with published statements.
const firstReportYear = 1991

const defaultRecentPeriods = 5

// statementTable pairs a statement endpoint with its table.
type statementTable struct {
	statement api.Statement
	spec      model.TableSpec
}

var statementTables = []statementTable{
	{api.Income, IncomeSpec},
	{api.BalanceSheet, BalanceSheetSpec},
	{api.CashFlow, CashFlowSpec},
}

// Finance downloads the three financial statements.
type Finance struct {
	job
}

// NewFinance creates the financial statement downloader.
func NewFinance(d Deps) *Finance {
	return &Finance{job: newJob(d, "finance")}
}

// Run downloads every statement table in the configured mode.
func (f *Finance) Run(ctx context.Context) error {
	steps := make([]step, 0, len(statementTables))
	for _, st := range statementTables {
		fn := func(ctx context.Context) error { return f.byPeriod(ctx, st) }
		if f.FinanceMode == FinanceByCode {
			fn = func(ctx context.Context) error { return f.byCode(ctx, st) }
		}
		steps = append(steps, step{st.spec.Name, fn})
	}
	return f.runSteps(ctx, steps...)
}

func (f *Finance) recent() int {
	if f.RecentPeriods > 0 {
		return f.RecentPeriods
	}
	return defaultRecentPeriods
}

// byPeriod fetches every missing period plus the most recent ones. Older
// periods are written one by one; the recent ones are replaced together in
// a single transaction because restated rows may disappear.
func (f *Finance) byPeriod(ctx context.Context, st statementTable) error {
	if err := f.ensure(ctx, st.spec); err != nil {
		return err
	}
	stored, err := f.Store.DistinctStrings(ctx, st.spec.QualifiedName(), "end_date")
	if err != nil {
		return err
	}

	all := calendar.ReportPeriods(firstReportYear, f.now())
	periods := calendar.RefreshPeriods(all, stored, f.recent())
	recent := all[max(len(all)-f.recent(), 0):]
	f.log.Info("report periods to fetch", "table", st.spec.Name, "count", len(periods))

	var (
		errs    []error
		pending []*model.Table
	)
	for _, period := range periods {
		data, err := f.API.StatementByPeriod(ctx, st.statement, period)
		if err != nil {
			return fmt.Errorf("%s %s: %w", st.statement, period, err)
		}
		data, err = cleanStatement(data)
		if err != nil {
			return err
		}

		if slices.Contains(recent, period) {
			pending = append(pending, data)
			continue
		}
		if err := f.Writer.Write(ctx, string(st.statement)+" "+period, st.spec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}

	if data := model.Concat(pending...); data.Len() > 0 {
		if err := f.replacePeriods(ctx, st, recent, data); err != nil {
			errs = append(errs, err)
		}
	} else if len(recent) > 0 {
		f.log.Warn("no rows for recent periods, keeping stored ones", "table", st.spec.Name)
	}
	return joinWriteErrors(errs)
}

// replacePeriods deletes periods and writes data in one retried transaction.
func (f *Finance) replacePeriods(ctx context.Context, st statementTable, periods []string, data *model.Table) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE end_date = ANY($1)",
		pgx.Identifier{st.spec.Schema, st.spec.Name}.Sanitize())
	name := fmt.Sprintf("%s %s..%s", st.statement, periods[0], periods[len(periods)-1])

	return f.Store.Retry(ctx, "replace "+name, func(ctx context.Context) error {
		return f.Store.InTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, del, periods); err != nil {
				return fmt.Errorf("delete recent periods: %w", err)
			}
			return f.Writer.WriteTx(ctx, tx, name, st.spec, data, writer.ModeAppend)
		})
	})
}

// byCode fetches the full history of every stored stock and replaces the
// table.
func (f *Finance) byCode(ctx context.Context, st statementTable) error {
	if err := f.ensure(ctx, StockBasicSpec); err != nil {
		return err
	}
	codes, err := f.Store.DistinctStrings(ctx, StockBasicSpec.QualifiedName(), "stock_code")
	if err != nil {
		return err
	}

	parts := make([]*model.Table, 0, len(codes))
	for _, code := range codes {
		t, err := f.API.StatementByStock(ctx, st.statement, code)
		if err != nil {
			return fmt.Errorf("%s %s: %w", st.statement, code, err)
		}
		parts = append(parts, t)
	}
	data, err := cleanStatement(model.Concat(parts...))
	if err != nil {
		return err
	}
	return f.save(ctx, string(st.statement), st.spec, data, writer.ModeReplace)
}

// cleanStatement renames ts_code, derives end_type and keeps the latest
// announcement per (end_date, stock_code).
func cleanStatement(t *model.Table) (*model.Table, error) {
	if t.Len() == 0 {
		return t, nil
	}
	t.Rename(tsCodeToStock)
	t.Set("end_type", func(r model.Row) any {
		if q := calendar.EndType(r.Text("end_date")); q != 0 {
			return q
		}
		return r.Get("end_type")
	})
	if err := t.SortBy("end_date", "stock_code", "ann_date"); err != nil {
		return nil, err
	}
	return t.DedupLast("end_date", "stock_code")
}
