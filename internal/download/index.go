package download

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rickgao/ashare-data/internal/model"
	"github.com/rickgao/ashare-data/internal/writer"
)

// TrackedIndex is a broad market index kept in ashareindexbasic.
type TrackedIndex struct {
	Code string
	Name string
	// WeightStart is the first month end with constituent weights.
	WeightStart string
}

// TrackedIndexes lists the indexes downloaded by Index.
var TrackedIndexes = []TrackedIndex{
	{"000001.SH", "上证综指", "19901219"},
	{"399001.SZ", "深证成指", "19940720"},
	{"399006.SZ", "创业板指", "20100531"},
	{"899050.BJ", "北证50", "20220429"},
	{"000688.SH", "科创50", "20191231"},
	{"000698.SH", "科创100", "20191231"},
	{"000016.SH", "上证50", "20031231"},
	{"399850.SZ", "深证50", "20021231"},
	{"399330.SZ", "深证100", "20021231"},
	{"000300.SH", "沪深300", "20041231"},
	{"000905.SH", "中证500", "20041231"},
	{"000906.SH", "中证800", "20041231"},
	{"000852.SH", "中证1000", "20041231"},
	{"932000.CSI", "中证2000", "20131231"},
	{"399311.SZ", "国证1000", "20021231"},
	{"399303.SZ", "国证2000", "20091231"},
}

// minPreClose is the smallest pre_close the vendor reports meaningfully;
// lower values are replaced by close.
var minPreClose = decimal.RequireFromString("0.01")

// Index downloads the tracked index datasets.
type Index struct {
	job
}

// NewIndex creates the index downloader.
func NewIndex(d Deps) *Index {
	return &Index{job: newJob(d, "index")}
}

// Run downloads ashareindexbasic, ashareindexdaily, ashareindexmonthly and
// ashareindexweight.
func (x *Index) Run(ctx context.Context) error {
	return x.runSteps(ctx,
		step{"ashareindexbasic", x.basic},
		step{"ashareindexdaily", x.daily},
		step{"ashareindexmonthly", x.monthly},
		step{"ashareindexweight", x.weight},
	)
}

func (x *Index) basic(ctx context.Context) error {
	if err := x.ensure(ctx, IndexBasicSpec); err != nil {
		return err
	}
	n, err := x.Store.Count(ctx, IndexBasicSpec.QualifiedName())
	if err != nil {
		return err
	}
	if n == int64(len(TrackedIndexes)) {
		x.log.Info("index list is current", "count", n)
		return nil
	}

	rows := make([][]any, len(TrackedIndexes))
	for i, ix := range TrackedIndexes {
		rows[i] = []any{ix.Code, ix.Name}
	}
	data := model.NewTable([]string{"index_code", "name"}, rows)
	return x.Writer.Write(ctx, "index basic", IndexBasicSpec, data, writer.ModeReplace)
}

type fetchRange func(ctx context.Context, indexCode, start, end string) (*model.Table, error)

func (x *Index) daily(ctx context.Context) error {
	dates, err := x.missingDaily(ctx, IndexDailySpec, "")
	if err != nil {
		return err
	}
	return x.bars(ctx, "index daily", IndexDailySpec, x.API.IndexDaily, dates)
}

func (x *Index) monthly(ctx context.Context) error {
	ends, err := x.monthEnds(ctx)
	if err != nil {
		return err
	}
	dates, err := x.missing(ctx, IndexMonthlySpec, "trade_date", ends)
	if err != nil {
		return err
	}
	return x.bars(ctx, "index monthly", IndexMonthlySpec, x.API.IndexMonthly, dates)
}

// bars makes one ranged call per index over [first, last] missing date and
// keeps only the missing dates.
func (x *Index) bars(ctx context.Context, name string, spec model.TableSpec, fetch fetchRange, dates []string) error {
	if len(dates) == 0 {
		return nil
	}
	first, last := dates[0], dates[len(dates)-1]
	keep := inSet("trade_date", dates)

	var errs []error
	for _, ix := range TrackedIndexes {
		data, err := fetch(ctx, ix.Code, first, last)
		if err != nil {
			return fmt.Errorf("%s %s: %w", name, ix.Code, err)
		}
		data = cleanIndexBars(data).Filter(keep)
		if err := x.Writer.Write(ctx, name+" "+ix.Code, spec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}
	return joinWriteErrors(errs)
}

// cleanIndexBars repairs near-zero pre_close values, derives pct_chg and renames ts_code.
func cleanIndexBars(t *model.Table) *model.Table {
	if t.Len() == 0 {
		return t
	}
	t.Set("pre_close", func(r model.Row) any {
		pre, ok := model.Decimal(r.Get("pre_close"))
		if ok && pre.LessThan(minPreClose) {
			return r.Get("close")
		}
		return r.Get("pre_close")
	})
	setPctChange(t)
	t.Rename(map[string]string{"ts_code": "index_code"})
	return t
}

func (x *Index) weight(ctx context.Context) error {
	ends, err := x.monthEnds(ctx)
	if err != nil {
		return err
	}
	dates, err := x.missing(ctx, IndexWeightSpec, "trade_date", ends)
	if err != nil {
		return err
	}

	var errs []error
	for _, ix := range TrackedIndexes {
		var parts []*model.Table
		for _, date := range dates {
			if date < ix.WeightStart {
				continue
			}
			t, err := x.API.IndexWeight(ctx, ix.Code, date)
			if err != nil {
				return fmt.Errorf("index weight %s %s: %w", ix.Code, date, err)
			}
			parts = append(parts, t)
		}
		if len(parts) == 0 {
			continue
		}

		data := model.Concat(parts...)
		if data.Len() > 0 {
			if err := data.SortBy("con_code", "trade_date"); err != nil {
				return err
			}
		}
		if err := x.Writer.Write(ctx, "index weight "+ix.Code, IndexWeightSpec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}
	return joinWriteErrors(errs)
}
