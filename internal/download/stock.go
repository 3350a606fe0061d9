package download

import (
	"context"
	"fmt"

	"github.com/rickgao/ashare-data/internal/model"
	"github.com/rickgao/ashare-data/internal/writer"
)

// listStatuses covers listed, delisted and suspended stocks.
var listStatuses = []string{"L", "D", "P"}

var tsCodeToStock = map[string]string{"ts_code": "stock_code"}

// Stock downloads the stock list and the daily stock datasets.
type Stock struct {
	job
}

// NewStock creates the stock downloader.
func NewStock(d Deps) *Stock {
	return &Stock{job: newJob(d, "stock")}
}

// Run downloads asharestockbasic, asharedailyprices and asharedailybasic.
func (s *Stock) Run(ctx context.Context) error {
	return s.runSteps(ctx,
		step{"asharestockbasic", s.basic},
		step{"asharedailyprices", s.dailyPrices},
		step{"asharedailybasic", s.dailyBasic},
	)
}

func (s *Stock) basic(ctx context.Context) error {
	parts := make([]*model.Table, 0, len(listStatuses))
	for _, status := range listStatuses {
		t, err := s.API.StockBasic(ctx, status)
		if err != nil {
			return fmt.Errorf("list status %s: %w", status, err)
		}
		parts = append(parts, t)
	}
	data := model.Concat(parts...)
	data.Rename(tsCodeToStock)
	return s.save(ctx, "stock basic", StockBasicSpec, data, writer.ModeReplace)
}

func (s *Stock) dailyPrices(ctx context.Context) error {
	dates, err := s.missingDaily(ctx, DailyPricesSpec, "")
	if err != nil {
		return err
	}

	var errs []error
	for _, date := range dates {
		data, err := adjustedBars(ctx, s.API.Daily, s.API.AdjFactor, date)
		if err != nil {
			return fmt.Errorf("daily %s: %w", date, err)
		}
		if err := s.Writer.Write(ctx, "daily prices "+date, DailyPricesSpec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}
	return joinWriteErrors(errs)
}

func (s *Stock) dailyBasic(ctx context.Context) error {
	dates, err := s.missingDaily(ctx, DailyBasicSpec, "")
	if err != nil {
		return err
	}

	var errs []error
	for _, date := range dates {
		data, err := s.API.DailyBasic(ctx, date)
		if err != nil {
			return fmt.Errorf("daily basic %s: %w", date, err)
		}
		data.Rename(tsCodeToStock)
		if err := s.Writer.Write(ctx, "daily basic "+date, DailyBasicSpec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}
	return joinWriteErrors(errs)
}

type fetchByDate func(ctx context.Context, tradeDate string) (*model.Table, error)

// adjustedBars fetches the bars of date, derives pct_chg and joins the
// adjustment factor on (trade_date, ts_code).
func adjustedBars(ctx context.Context, bars, factors fetchByDate, date string) (*model.Table, error) {
	b, err := bars(ctx, date)
	if err != nil {
		return nil, err
	}
	if b.Len() == 0 {
		return b, nil
	}
	f, err := factors(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("adj factor: %w", err)
	}

	setPctChange(b)
	out, err := b.Join(f, "trade_date", "ts_code")
	if err != nil {
		return nil, err
	}
	out.Rename(tsCodeToStock)
	return out, nil
}
