package download

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rickgao/ashare-data/internal/model"
	"github.com/rickgao/ashare-data/internal/writer"
)

// futuresExchanges are the exchanges listed in futbasic.
var futuresExchanges = []string{"CFFEX", "DCE", "CZCE", "SHFE", "INE", "GFEX"}

// First dates with data.
const (
	futDailyStart = "19950417"
	futWsrStart   = "20060106"
)

// contractSymbol matches dated contracts such as "IF2406"; continuous and
// main-contract aliases have no four-digit month.
var contractSymbol = regexp.MustCompile(`\d{4}$`)

const nightSession = "夜盘"

// Futures downloads the fut_data datasets.
type Futures struct {
	job
}

// NewFutures creates the futures downloader.
func NewFutures(d Deps) *Futures {
	return &Futures{job: newJob(d, "futures")}
}

// Run downloads futbasic, futdailyprices, futwsr and the per-exchange
// futholding tables.
func (f *Futures) Run(ctx context.Context) error {
	steps := []step{
		{"futbasic", f.basic},
		{"futdailyprices", f.daily},
		{"futwsr", f.wsr},
	}
	for _, h := range holdingExchanges {
		steps = append(steps, step{"futholding" + strings.ToLower(h.Exchange), func(ctx context.Context) error {
			return f.holding(ctx, h.Exchange, h.Start)
		}})
	}
	return f.runSteps(ctx, steps...)
}

// isContract reports whether a fut_code names a dated contract.
func isContract(code string) bool {
	symbol, _, _ := strings.Cut(code, ".")
	return contractSymbol.MatchString(symbol)
}

func (f *Futures) basic(ctx context.Context) error {
	parts := make([]*model.Table, 0, len(futuresExchanges))
	for _, ex := range futuresExchanges {
		t, err := f.API.FutBasic(ctx, ex)
		if err != nil {
			return fmt.Errorf("fut basic %s: %w", ex, err)
		}
		parts = append(parts, t)
	}

	data := model.Concat(parts...)
	if data.Len() == 0 {
		f.log.Warn("no futures contracts")
		return nil
	}
	data.Rename(map[string]string{"ts_code": "fut_code"})
	data = data.Filter(func(r model.Row) bool { return isContract(r.Text("fut_code")) })
	data.Set("is_after_hours_trading", func(r model.Row) any {
		if strings.Contains(r.Text("trade_time_desc"), nightSession) {
			return 1
		}
		return 0
	})
	data.Drop("trade_time_desc")
	return f.save(ctx, "fut basic", FutBasicSpec, data, writer.ModeReplace)
}

func (f *Futures) daily(ctx context.Context) error {
	dates, err := f.missingDaily(ctx, FutDailySpec, futDailyStart)
	if err != nil {
		return err
	}

	var errs []error
	for _, date := range dates {
		data, err := f.API.FutDaily(ctx, date)
		if err != nil {
			return fmt.Errorf("fut daily %s: %w", date, err)
		}
		if data.Len() > 0 {
			setPctChange(data)
			data.Rename(map[string]string{"ts_code": "fut_code"})
			data = data.Filter(func(r model.Row) bool { return isContract(r.Text("fut_code")) })
		}
		if err := f.Writer.Write(ctx, "fut daily "+date, FutDailySpec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}
	return joinWriteErrors(errs)
}

func (f *Futures) wsr(ctx context.Context) error {
	dates, err := f.missingDaily(ctx, FutWsrSpec, futWsrStart)
	if err != nil {
		return err
	}

	var errs []error
	for _, date := range dates {
		data, err := f.API.FutWsr(ctx, date)
		if err != nil {
			return fmt.Errorf("fut wsr %s: %w", date, err)
		}
		if data.Len() > 0 {
			if data, err = data.DedupFirst(FutWsrSpec.Key...); err != nil {
				return err
			}
		}
		if err := f.Writer.Write(ctx, "fut wsr "+date, FutWsrSpec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}
	return joinWriteErrors(errs)
}

func (f *Futures) holding(ctx context.Context, exchange, start string) error {
	spec := FutHoldingSpec(exchange)
	dates, err := f.missingDaily(ctx, spec, start)
	if err != nil {
		return err
	}

	var errs []error
	for _, date := range dates {
		data, err := f.API.FutHolding(ctx, date, exchange)
		if err != nil {
			return fmt.Errorf("fut holding %s %s: %w", exchange, date, err)
		}
		if err := f.Writer.Write(ctx, "fut holding "+exchange+" "+date, spec, data, writer.ModeAppend); err != nil {
			errs = append(errs, err)
		}
	}
	return joinWriteErrors(errs)
}
