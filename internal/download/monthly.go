package download

import (
	"context"
	"fmt"

	"github.com/rickgao/ashare-data/internal/writer"
)

// Monthly downloads month-end stock bars.
type Monthly struct {
	job
}

// NewMonthly creates the monthly bar downloader.
func NewMonthly(d Deps) *Monthly {
	return &Monthly{job: newJob(d, "monthly")}
}

// Run downloads asharemonthlyprices for every missing month end up to the end
// of last month.
func (m *Monthly) Run(ctx context.Context) error {
	return m.runSteps(ctx, step{"asharemonthlyprices", m.prices})
}

func (m *Monthly) prices(ctx context.Context) error {
	ends, err := m.monthEnds(ctx)
	if err != nil {
		return err
	}
	dates, err := m.missing(ctx, MonthlyPricesSpec, "trade_date", ends)
	if err != nil {
		return err
	}

	var errs []error
	for _, date := range dates {
		data, err := adjustedBars(ctx, m.API.Monthly, m.API.AdjFactor, date)
		if err != nil {
			return fmt.Errorf("monthly %s: %w", date, err)
		}
		if err := m.Writer.Write(ctx, "monthly prices "+date, MonthlyPricesSpec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}
	return joinWriteErrors(errs)
}
