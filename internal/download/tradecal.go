package download

import (
	"context"

	"github.com/rickgao/ashare-data/internal/calendar"
	"github.com/rickgao/ashare-data/internal/writer"
)

// Trade calendar download range.
const (
	calendarExchange = "SSE"
	calendarStart    = "19491001"
	calendarEnd      = "20991231"
)

// TradeCal keeps stk_data.asharetradecal reaching far enough into the
// future.
type TradeCal struct {
	job
}

// NewTradeCal creates the trade calendar downloader.
func NewTradeCal(d Deps) *TradeCal {
	return &TradeCal{job: newJob(d, "tradecal")}
}

// Run refreshes the calendar when it is stale.
func (t *TradeCal) Run(ctx context.Context) error {
	return t.runSteps(ctx, step{"asharetradecal", t.calendar})
}

func (t *TradeCal) calendar(ctx context.Context) error {
	if err := t.ensure(ctx, TradeCalSpec); err != nil {
		return err
	}

	last, err := t.Store.MaxString(ctx, TradeCalSpec.QualifiedName(), "cal_date")
	if err != nil {
		return err
	}
	stale, err := calendar.CalendarStale(last, t.now(), calendar.StaleHorizon)
	if err != nil {
		return err
	}
	if !stale {
		t.log.Info("trade calendar is current", "last", last)
		return nil
	}

	data, err := t.API.TradeCal(ctx, calendarExchange, calendarStart, calendarEnd)
	if err != nil {
		return err
	}
	if err := data.SortBy("cal_date"); err != nil {
		return err
	}
	return t.Writer.Write(ctx, "trade calendar", TradeCalSpec, data, writer.ModeReplace)
}
