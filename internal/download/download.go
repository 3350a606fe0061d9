package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/ashare-data/internal/api"
	"github.com/rickgao/ashare-data/internal/calendar"
	"github.com/rickgao/ashare-data/internal/model"
	"github.com/rickgao/ashare-data/internal/writer"
)

// API is the vendor surface used by the downloaders.
type API interface {
	TradeCal(ctx context.Context, exchange, start, end string) (*model.Table, error)
	StockBasic(ctx context.Context, listStatus string) (*model.Table, error)
	Daily(ctx context.Context, tradeDate string) (*model.Table, error)
	Monthly(ctx context.Context, tradeDate string) (*model.Table, error)
	AdjFactor(ctx context.Context, tradeDate string) (*model.Table, error)
	DailyBasic(ctx context.Context, tradeDate string) (*model.Table, error)
	IndexDaily(ctx context.Context, indexCode, start, end string) (*model.Table, error)
	IndexMonthly(ctx context.Context, indexCode, start, end string) (*model.Table, error)
	IndexWeight(ctx context.Context, indexCode, tradeDate string) (*model.Table, error)
	IndexClassify(ctx context.Context, src, level string) (*model.Table, error)
	IndexMember(ctx context.Context, indexCode string) (*model.Table, error)
	FutBasic(ctx context.Context, exchange string) (*model.Table, error)
	FutDaily(ctx context.Context, tradeDate string) (*model.Table, error)
	FutWsr(ctx context.Context, tradeDate string) (*model.Table, error)
	FutHolding(ctx context.Context, tradeDate, exchange string) (*model.Table, error)
	StatementByPeriod(ctx context.Context, s api.Statement, period string) (*model.Table, error)
	StatementByStock(ctx context.Context, s api.Statement, tsCode string) (*model.Table, error)
}

// Web fetches SW industry index history.
type Web interface {
	DailyHistory(ctx context.Context, indexCode string, dates []string) (*model.Table, error)
}

// Store is the part of database.Store used by the downloaders.
type Store interface {
	Retry(ctx context.Context, op string, fn func(ctx context.Context) error) error
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
	CalendarDays(ctx context.Context, table string) ([]model.CalendarDay, error)
	DistinctStrings(ctx context.Context, table, column string) ([]string, error)
	MaxString(ctx context.Context, table, column string) (string, error)
	Count(ctx context.Context, table string) (int64, error)
}

// Tables creates tables on demand.
type Tables interface {
	EnsureTable(ctx context.Context, schema, table string) (bool, error)
}

// Writer persists frames.
type Writer interface {
	Write(ctx context.Context, name string, spec model.TableSpec, data *model.Table, mode writer.Mode) error
	WriteTx(ctx context.Context, tx pgx.Tx, name string, spec model.TableSpec, data *model.Table, mode writer.Mode) error
}

// Downloader fetches one dataset family.
type Downloader interface {
	Name() string
	Run(ctx context.Context) error
}

// Deps are the collaborators shared by every downloader.
type Deps struct {
	API    API
	Web    Web
	Store  Store
	Tables Tables
	Writer Writer
	Logger *slog.Logger

	// Now returns the current time; time.Now when nil.
	Now func() time.Time

	// SWWorkers bounds the concurrent SW web fetches.
	SWWorkers int

	// FinanceMode is "period" or "code".
	FinanceMode   string
	RecentPeriods int
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) logger(name string) *slog.Logger {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("downloader", name)
}

// All returns every downloader in run order. The trade calendar comes first
// because every other dataset diffs against it.
func All(d Deps) []Downloader {
	return []Downloader{
		NewTradeCal(d),
		NewStock(d),
		NewMonthly(d),
		NewIndex(d),
		NewSW2021(d),
		NewFutures(d),
		NewFinance(d),
	}
}

// job is the shared machinery of a downloader.
type job struct {
	Deps
	name string
	log  *slog.Logger
}

func newJob(d Deps, name string) job {
	return job{Deps: d, name: name, log: d.logger(name)}
}

// Name returns the downloader name.
func (j *job) Name() string { return j.name }

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// runSteps runs every step, logging each failure with its duration, and
// returns the joined errors. A cancelled context stops the remaining steps.
func (j *job) runSteps(ctx context.Context, steps ...step) error {
	var errs []error
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		start := time.Now()
		j.log.Info("step started", "step", s.name)
		if err := s.fn(ctx); err != nil {
			j.log.Error("step failed",
				"step", s.name,
				"duration", time.Since(start),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			if errors.Is(err, api.ErrFailureBudgetExceeded) {
				break
			}
			continue
		}
		j.log.Info("step finished", "step", s.name, "duration", time.Since(start))
	}
	return errors.Join(errs...)
}

// ensure creates spec's table when it is missing.
func (j *job) ensure(ctx context.Context, spec model.TableSpec) error {
	created, err := j.Tables.EnsureTable(ctx, spec.Schema, spec.Name)
	if err != nil {
		return err
	}
	if created {
		j.log.Info("table created", "table", spec.QualifiedName())
	}
	return nil
}

// save makes sure the table exists and writes data.
func (j *job) save(ctx context.Context, name string, spec model.TableSpec, data *model.Table, mode writer.Mode) error {
	if err := j.ensure(ctx, spec); err != nil {
		return err
	}
	return j.Writer.Write(ctx, name, spec, data, mode)
}

// openDates returns the stored open trade dates within [from, to].
func (j *job) openDates(ctx context.Context, from, to string) ([]string, error) {
	days, err := j.Store.CalendarDays(ctx, TradeCalSpec.QualifiedName())
	if err != nil {
		return nil, err
	}
	return calendar.OpenDates(days, from, to), nil
}

// monthEnds returns the last open date of each month up to the end of last
// month.
func (j *job) monthEnds(ctx context.Context) ([]string, error) {
	dates, err := j.openDates(ctx, "", calendar.LastMonthEnd(j.now()))
	if err != nil {
		return nil, err
	}
	return calendar.MonthEnds(dates), nil
}

// missing returns the dates of want not yet stored in spec's column.
func (j *job) missing(ctx context.Context, spec model.TableSpec, column string, want []string) ([]string, error) {
	if err := j.ensure(ctx, spec); err != nil {
		return nil, err
	}
	have, err := j.Store.DistinctStrings(ctx, spec.QualifiedName(), column)
	if err != nil {
		return nil, err
	}
	out := calendar.Missing(want, have)
	j.log.Info("missing units", "table", spec.QualifiedName(), "count", len(out))
	return out, nil
}

// missingDaily returns the open dates from start to yesterday not stored in
// spec.
func (j *job) missingDaily(ctx context.Context, spec model.TableSpec, start string) ([]string, error) {
	want, err := j.openDates(ctx, start, calendar.Yesterday(j.now()))
	if err != nil {
		return nil, err
	}
	return j.missing(ctx, spec, "trade_date", want)
}

var hundred = decimal.NewFromInt(100)

// pctChange returns 100*(cur/prev-1) rounded to 4 places, or nil when either
// side is missing or prev is zero.
func pctChange(cur, prev any) any {
	c, ok := model.Decimal(cur)
	if !ok {
		return nil
	}
	p, ok := model.Decimal(prev)
	if !ok || p.IsZero() {
		return nil
	}
	return c.Div(p).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(4)
}

// setPctChange derives pct_chg from close and pre_close.
func setPctChange(t *model.Table) {
	t.Set("pct_chg", func(r model.Row) any {
		return pctChange(r.Get("close"), r.Get("pre_close"))
	})
}

// inSet returns a Filter predicate keeping rows whose col is in values.
func inSet(col string, values []string) func(model.Row) bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return func(r model.Row) bool { return set[r.Text(col)] }
}

// joinWriteErrors combines the write failures of a step. The writer has
// already logged each one.
func joinWriteErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d writes failed: %w", len(errs), errors.Join(errs...))
}
