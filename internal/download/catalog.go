package download

import (
	"strings"

	"github.com/rickgao/ashare-data/internal/api"
	"github.com/rickgao/ashare-data/internal/model"
)

// Schemas written by the downloaders.
const (
	StockSchema   = "stk_data"
	FuturesSchema = "fut_data"
)

func text(name, comment string) model.ColumnSpec {
	return model.Varchar(name, 255, comment)
}

func num(name, comment string) model.ColumnSpec {
	return model.Numeric(name, 20, 4, comment)
}

func bigNum(name, comment string) model.ColumnSpec {
	return model.Numeric(name, 30, 4, comment)
}

var (
	TradeCalSpec = model.TableSpec{
		Schema:  StockSchema,
		Name:    "asharetradecal",
		Comment: "SSE trade calendar",
		Columns: []model.ColumnSpec{
			text("cal_date", "calendar date"),
			model.Integer("is_open", "1 when the exchange is open"),
		},
		Key: []string{"cal_date"},
	}

	StockBasicSpec = model.TableSpec{
		Schema:  StockSchema,
		Name:    "asharestockbasic",
		Comment: "A-share listing information",
		Columns: []model.ColumnSpec{
			text("stock_code", "stock code"),
			text("name", "stock name"),
			text("area", "region"),
			text("market", "market board"),
			text("exchange", "exchange code"),
			text("list_date", "listing date"),
			text("delist_date", "delisting date"),
		},
		Key: []string{"stock_code"},
	}

	DailyPricesSpec   = priceSpec("asharedailyprices", "A-share daily bars")
	MonthlyPricesSpec = priceSpec("asharemonthlyprices", "A-share monthly bars")

	DailyBasicSpec = model.TableSpec{
		Schema:  StockSchema,
		Name:    "asharedailybasic",
		Comment: "A-share daily valuation indicators",
		Columns: []model.ColumnSpec{
			text("trade_date", "trade date"),
			text("stock_code", "stock code"),
			num("turnover_rate", "turnover rate (%)"),
			num("turnover_rate_f", "free float turnover rate (%)"),
			num("volume_ratio", "volume ratio"),
			num("pe", "price to earnings"),
			num("pe_ttm", "price to earnings, TTM"),
			num("pb", "price to book"),
			num("ps", "price to sales"),
			num("ps_ttm", "price to sales, TTM"),
			num("dv_ratio", "dividend yield (%)"),
			num("dv_ttm", "dividend yield, TTM (%)"),
			num("total_share", "total shares (10k)"),
			num("float_share", "float shares (10k)"),
			num("free_share", "free float shares (10k)"),
			num("total_mv", "total market value (10k CNY)"),
			num("circ_mv", "circulating market value (10k CNY)"),
		},
		Key: []string{"trade_date", "stock_code"},
	}

	IndexBasicSpec = model.TableSpec{
		Schema:  StockSchema,
		Name:    "ashareindexbasic",
		Comment: "tracked broad market indexes",
		Columns: []model.ColumnSpec{
			text("index_code", "index code"),
			text("name", "index name"),
		},
		Key: []string{"index_code"},
	}

	IndexDailySpec   = indexBarSpec("ashareindexdaily", "index daily bars")
	IndexMonthlySpec = indexBarSpec("ashareindexmonthly", "index monthly bars")

	IndexWeightSpec = model.TableSpec{
		Schema:  StockSchema,
		Name:    "ashareindexweight",
		Comment: "index constituent weights at month ends",
		Columns: []model.ColumnSpec{
			text("index_code", "index code"),
			text("con_code", "constituent stock code"),
			text("trade_date", "trade date"),
			num("weight", "weight (%)"),
		},
		Key: []string{"index_code", "con_code", "trade_date"},
	}

	SW2021BasicSpec = model.TableSpec{
		Schema:  StockSchema,
		Name:    "asharesw2021basic",
		Comment: "SW 2021 level one industries",
		Columns: []model.ColumnSpec{
			text("index_code", "industry index code"),
			text("name", "industry name"),
		},
		Key: []string{"index_code"},
	}

	SW2021MemberSpec = model.TableSpec{
		Schema:  StockSchema,
		Name:    "asharesw2021member",
		Comment: "SW 2021 level one industry members",
		Columns: []model.ColumnSpec{
			text("index_code", "industry index code"),
			text("con_code", "member stock code"),
			text("in_date", "inclusion date"),
			text("out_date", "removal date"),
			model.SmallInt("is_new", "1 for a current member"),
		},
		Key: []string{"index_code", "con_code", "in_date"},
	}

	SW2021DailySpec = model.TableSpec{
		Schema:  StockSchema,
		Name:    "asharesw2021daily",
		Comment: "SW 2021 level one industry index daily bars",
		Columns: []model.ColumnSpec{
			text("trade_date", "trade date"),
			text("index_code", "industry index code"),
			num("open", "open"),
			num("high", "high"),
			num("low", "low"),
			num("close", "close"),
			num("pct_chg", "change (%)"),
		},
		Key: []string{"trade_date", "index_code"},
	}

	FutBasicSpec = model.TableSpec{
		Schema:  FuturesSchema,
		Name:    "futbasic",
		Comment: "futures contracts",
		Columns: []model.ColumnSpec{
			text("fut_code", "contract code"),
			text("exchange", "exchange code"),
			text("name", "contract name"),
			model.Integer("multiplier", "contract multiplier"),
			text("trade_unit", "trade unit"),
			model.Integer("per_unit", "units per lot"),
			text("quote_unit", "quote unit"),
			text("quote_unit_desc", "minimum price change"),
			text("d_mode_desc", "delivery mode"),
			text("list_date", "listing date"),
			text("delist_date", "last trade date"),
			text("d_month", "delivery month"),
			text("last_ddate", "last delivery date"),
			model.SmallInt("is_after_hours_trading", "1 when the contract trades at night"),
		},
		Key: []string{"fut_code"},
	}

	FutDailySpec = model.TableSpec{
		Schema:  FuturesSchema,
		Name:    "futdailyprices",
		Comment: "futures daily bars",
		Columns: []model.ColumnSpec{
			text("trade_date", "trade date"),
			text("fut_code", "contract code"),
			num("open", "open"),
			num("high", "high"),
			num("low", "low"),
			num("close", "close"),
			num("settle", "settlement price"),
			num("pre_close", "previous close"),
			num("pre_settle", "previous settlement price"),
			num("pct_chg", "change (%)"),
			num("vol", "volume (lots)"),
			num("amount", "turnover (10k CNY)"),
			num("oi", "open interest"),
			num("delv_settle", "delivery settlement price"),
		},
		Key: []string{"trade_date", "fut_code"},
	}

	FutWsrSpec = model.TableSpec{
		Schema:  FuturesSchema,
		Name:    "futwsr",
		Comment: "warehouse receipt daily report",
		Columns: []model.ColumnSpec{
			text("trade_date", "trade date"),
			text("symbol", "product symbol"),
			text("exchange", "exchange code"),
			text("warehouse", "warehouse"),
			num("vol", "receipts"),
			num("pre_vol", "previous receipts"),
			text("area", "region"),
			text("year", "year"),
			text("unit", "unit"),
		},
		Key: []string{"trade_date", "symbol", "warehouse"},
	}

	IncomeSpec       = statementSpec("ashareincome", "income statements", api.IncomeFields)
	BalanceSheetSpec = statementSpec("asharebalancesheet", "balance sheets", api.BalanceSheetFields)
	CashFlowSpec     = statementSpec("asharecashflow", "cash flow statements", api.CashFlowFields)
)

// holdingExchanges are the exchanges publishing broker positions, with the
// first date each one is available.
var holdingExchanges = []struct {
	Exchange string
	Start    string
}{
	{"CFFEX", "20100416"},
	{"CZCE", "20050429"},
	{"DCE", "20060104"},
	{"SHFE", "20020107"},
}

// FutHoldingSpec returns the broker position table of exchange.
func FutHoldingSpec(exchange string) model.TableSpec {
	return model.TableSpec{
		Schema:  FuturesSchema,
		Name:    "futholding" + strings.ToLower(exchange),
		Comment: exchange + " broker positions",
		Columns: []model.ColumnSpec{
			text("trade_date", "trade date"),
			text("symbol", "contract symbol"),
			text("broker", "broker"),
			num("vol", "volume"),
			num("long_hld", "long position"),
			num("short_hld", "short position"),
		},
		Key: []string{"trade_date", "symbol", "broker"},
	}
}

func priceSpec(name, comment string) model.TableSpec {
	return model.TableSpec{
		Schema:  StockSchema,
		Name:    name,
		Comment: comment,
		Columns: []model.ColumnSpec{
			text("trade_date", "trade date"),
			text("stock_code", "stock code"),
			num("open", "open"),
			num("high", "high"),
			num("low", "low"),
			num("close", "close"),
			num("pre_close", "previous close"),
			num("pct_chg", "change (%)"),
			num("vol", "volume (lots)"),
			num("amount", "turnover (1k CNY)"),
			num("adj_factor", "adjustment factor"),
		},
		Key: []string{"trade_date", "stock_code"},
	}
}

func indexBarSpec(name, comment string) model.TableSpec {
	return model.TableSpec{
		Schema:  StockSchema,
		Name:    name,
		Comment: comment,
		Columns: []model.ColumnSpec{
			text("trade_date", "trade date"),
			text("index_code", "index code"),
			num("open", "open"),
			num("high", "high"),
			num("low", "low"),
			num("close", "close"),
			num("pre_close", "previous close"),
			num("pct_chg", "change (%)"),
			bigNum("vol", "volume (lots)"),
			bigNum("amount", "turnover (1k CNY)"),
		},
		Key: []string{"trade_date", "index_code"},
	}
}

// statementSpec declares a financial statement table from the vendor
// fields: the identifying columns are text, comp_type and end_type small
// integers, everything else numeric.
func statementSpec(name, comment string, fields []string) model.TableSpec {
	cols := make([]model.ColumnSpec, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "ts_code":
			cols = append(cols, text("stock_code", "stock code"))
		case "ann_date", "end_date":
			cols = append(cols, text(f, ""))
		case "comp_type", "end_type":
			cols = append(cols, model.SmallInt(f, ""))
		default:
			cols = append(cols, num(f, ""))
		}
	}
	return model.TableSpec{
		Schema:  StockSchema,
		Name:    name,
		Comment: comment,
		Columns: cols,
		Key:     []string{"end_date", "stock_code"},
	}
}

// Catalog lists every table the downloaders write.
func Catalog() []model.TableSpec {
	specs := []model.TableSpec{
		TradeCalSpec,
		StockBasicSpec,
		DailyPricesSpec,
		DailyBasicSpec,
		MonthlyPricesSpec,
		IndexBasicSpec,
		IndexDailySpec,
		IndexMonthlySpec,
		IndexWeightSpec,
		SW2021BasicSpec,
		SW2021MemberSpec,
		SW2021DailySpec,
		FutBasicSpec,
		FutDailySpec,
		FutWsrSpec,
	}
	for _, h := range holdingExchanges {
		specs = append(specs, FutHoldingSpec(h.Exchange))
	}
	return append(specs, IncomeSpec, BalanceSheetSpec, CashFlowSpec)
}
