package api

import (
	"context"

	"github.com/rickgao/ashare-data/internal/model"
)

// Vendor column lists for the fixed-shape endpoints.
var (
	TradeCalFields   = []string{"cal_date", "is_open"}
	StockBasicFields = []string{"ts_code", "name", "area", "market", "exchange", "list_date", "delist_date"}
	PriceFields      = []string{"trade_date", "ts_code", "open", "high", "low", "close", "pre_close", "vol", "amount"}
	AdjFactorFields  = []string{"ts_code", "trade_date", "adj_factor"}
	DailyBasicFields = []string{
		"trade_date", "ts_code", "turnover_rate", "turnover_rate_f", "volume_ratio",
		"pe", "pe_ttm", "pb", "ps", "ps_ttm", "dv_ratio", "dv_ttm",
		"total_share", "float_share", "free_share", "total_mv", "circ_mv",
	}
	IndexWeightFields   = []string{"index_code", "con_code", "trade_date", "weight"}
	IndexClassifyFields = []string{"index_code", "industry_name", "level", "src"}
	IndexMemberFields   = []string{"index_code", "con_code", "in_date", "out_date", "is_new"}
	FutBasicFields      = []string{
		"ts_code", "exchange", "name", "multiplier", "trade_unit", "per_unit",
		"quote_unit", "quote_unit_desc", "d_mode_desc", "list_date", "delist_date",
		"d_month", "last_ddate", "trade_time_desc",
	}
	FutDailyFields = []string{
		"trade_date", "ts_code", "open", "high", "low", "close", "settle",
		"pre_close", "pre_settle", "vol", "amount", "oi", "delv_settle",
	}
	FutWsrFields     = []string{"trade_date", "symbol", "exchange", "warehouse", "vol", "pre_vol", "area", "year", "unit"}
	FutHoldingFields = []string{"trade_date", "symbol", "broker", "vol", "long_hld", "short_hld"}
)

// consolidatedReport selects the consolidated statements.
const consolidatedReport = 1

// TradeCal returns the exchange calendar between start and end inclusive.
func (c *Client) TradeCal(ctx context.Context, exchange, start, end string) (*model.Table, error) {
	return c.QueryAll(ctx, "trade_cal", Params{
		"exchange":   exchange,
		"start_date": start,
		"end_date":   end,
	}, TradeCalFields)
}

// StockBasic returns the listed stocks with the given list status (L, D or P).
func (c *Client) StockBasic(ctx context.Context, listStatus string) (*model.Table, error) {
	return c.QueryAll(ctx, "stock_basic", Params{"list_status": listStatus}, StockBasicFields)
}

// Daily returns unadjusted daily bars of every stock on tradeDate.
func (c *Client) Daily(ctx context.Context, tradeDate string) (*model.Table, error) {
	return c.QueryAll(ctx, "daily", Params{"trade_date": tradeDate}, PriceFields)
}

// Monthly returns monthly bars of every stock for the month ending tradeDate.
func (c *Client) Monthly(ctx context.Context, tradeDate string) (*model.Table, error) {
	return c.QueryAll(ctx, "monthly", Params{"trade_date": tradeDate}, PriceFields)
}

// AdjFactor returns the adjustment factors of every stock on tradeDate.
func (c *Client) AdjFactor(ctx context.Context, tradeDate string) (*model.Table, error) {
	return c.QueryAll(ctx, "adj_factor", Params{"trade_date": tradeDate}, AdjFactorFields)
}

// DailyBasic returns valuation indicators of every stock on tradeDate.
func (c *Client) DailyBasic(ctx context.Context, tradeDate string) (*model.Table, error) {
	return c.QueryAll(ctx, "daily_basic", Params{"trade_date": tradeDate}, DailyBasicFields)
}

// IndexDaily returns daily bars of one index between start and end.
func (c *Client) IndexDaily(ctx context.Context, indexCode, start, end string) (*model.Table, error) {
	return c.indexBars(ctx, "index_daily", indexCode, start, end)
}

// IndexMonthly returns monthly bars of one index between start and end.
func (c *Client) IndexMonthly(ctx context.Context, indexCode, start, end string) (*model.Table, error) {
	return c.indexBars(ctx, "index_monthly", indexCode, start, end)
}

func (c *Client) indexBars(ctx context.Context, apiName, indexCode, start, end string) (*model.Table, error) {
	return c.QueryAll(ctx, apiName, Params{
		"ts_code":    indexCode,
		"start_date": start,
		"end_date":   end,
	}, PriceFields)
}

// IndexWeight returns the constituent weights of an index on tradeDate.
func (c *Client) IndexWeight(ctx context.Context, indexCode, tradeDate string) (*model.Table, error) {
	return c.QueryAll(ctx, "index_weight", Params{
		"index_code": indexCode,
		"trade_date": tradeDate,
	}, IndexWeightFields)
}

// IndexClassify returns the industry classification at one level, e.g.
// src SW2021 level L1.
func (c *Client) IndexClassify(ctx context.Context, src, level string) (*model.Table, error) {
	return c.Query(ctx, "index_classify", Params{"src": src, "level": level}, IndexClassifyFields)
}

// IndexMember returns the member stocks of an industry index.
func (c *Client) IndexMember(ctx context.Context, indexCode string) (*model.Table, error) {
	return c.QueryAll(ctx, "index_member", Params{"index_code": indexCode}, IndexMemberFields)
}

// FutBasic returns the contracts listed on exchange.
func (c *Client) FutBasic(ctx context.Context, exchange string) (*model.Table, error) {
	return c.QueryAll(ctx, "fut_basic", Params{"exchange": exchange}, FutBasicFields)
}

// FutDaily returns daily bars of every futures contract on tradeDate.
func (c *Client) FutDaily(ctx context.Context, tradeDate string) (*model.Table, error) {
	return c.QueryAll(ctx, "fut_daily", Params{"trade_date": tradeDate}, FutDailyFields)
}

// FutWsr returns the warehouse receipt report of tradeDate.
func (c *Client) FutWsr(ctx context.Context, tradeDate string) (*model.Table, error) {
	return c.QueryAll(ctx, "fut_wsr", Params{"trade_date": tradeDate}, FutWsrFields)
}

// FutHolding returns broker positions on exchange for tradeDate.
func (c *Client) FutHolding(ctx context.Context, tradeDate, exchange string) (*model.Table, error) {
	return c.QueryAll(ctx, "fut_holding", Params{
		"trade_date": tradeDate,
		"exchange":   exchange,
	}, FutHoldingFields)
}

// Statement names a financial statement endpoint family.
type Statement string

const (
	Income       Statement = "income"
	BalanceSheet Statement = "balancesheet"
	CashFlow     Statement = "cashflow"
)

// Fields returns the vendor columns requested for the statement.
func (s Statement) Fields() []string {
	switch s {
	case Income:
		return IncomeFields
	case BalanceSheet:
		return BalanceSheetFields
	case CashFlow:
		return CashFlowFields
	default:
		return nil
	}
}

// StatementByPeriod returns every company's consolidated statement for one
// report period through the VIP endpoint.
func (c *Client) StatementByPeriod(ctx context.Context, s Statement, period string) (*model.Table, error) {
	return c.QueryAll(ctx, string(s)+"_vip", Params{
		"period":      period,
		"report_type": consolidatedReport,
	}, s.Fields())
}

// StatementByStock returns every consolidated statement of one stock.
func (c *Client) StatementByStock(ctx context.Context, s Statement, tsCode string) (*model.Table, error) {
	return c.QueryAll(ctx, string(s), Params{
		"ts_code":     tsCode,
		"report_type": consolidatedReport,
	}, s.Fields())
}
