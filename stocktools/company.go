package stocktools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/tool"
)

const (
	maxStatementPeriods = 5
	noFinancialsWarning = "未能获取到有效的财务数据，可能是股票代码无效或数据暂时不可用"
)

// statementFields maps output keys to statement line items in output order.
var statementFields = []struct{ key, item string }{
	{"total_revenue", market.TotalRevenue},
	{"net_income", market.NetIncome},
	{"gross_profit", market.GrossProfit},
	{"total_assets", market.TotalAssets},
	{"total_debt", market.TotalDebt},
	{"shareholders_equity", market.StockholdersEquity},
	{"operating_cash_flow", market.OperatingCashFlow},
	{"free_cash_flow", market.FreeCashFlow},
	{"ebitda", market.EBITDA},
	{"interest_expense", market.InterestExpense},
	{"tax_provision", market.TaxProvision},
}

type financialsArgs struct {
	Ticker     string `json:"ticker" desc:"股票代码，如AAPL" required:"true"`
	Period     string `json:"period" desc:"财报周期，可选值：'annual'(年报)或'quarterly'(季报)，默认为annual" default:"annual"`
	NumPeriods int    `json:"num_periods" desc:"获取财报的期数，1表示最近一期，2-5表示获取多期进行对比分析，默认为1" default:"1"`
}

type financialsResult struct {
	Ticker     string           `json:"ticker"`
	Period     market.Period    `json:"period"`
	KeyMetrics map[string]any   `json:"key_metrics"`
	Recent     map[string]any   `json:"recent_financials"`
	Historical []map[string]any `json:"historical_financials,omitempty"`
	Warning    string           `json:"warning,omitempty"`
}

func (t *toolset) financialStatements() tool.Tool {
	return tool.MustFunc(FinancialStatements,
		"获取公司财务报表关键数据，包括利润表、资产负债表和现金流量表，以及估值和增长指标",
		func(ctx context.Context, args financialsArgs) (any, error) {
			ticker, err := parseTicker(args.Ticker)
			if err != nil {
				return nil, err
			}
			if t.src.Fundamentals == nil {
				return nil, fmt.Errorf("%w: fundamentals", ErrUnavailable)
			}
			period := market.ParsePeriod(args.Period)
			n := args.NumPeriods
			if n < 1 || n > maxStatementPeriods {
				n = 1
			}

			// Two periods are always needed for earnings growth.
			statements, err := t.src.Fundamentals.Statements(ctx, ticker, period, max(n, 2))
			if err != nil && !errors.Is(err, market.ErrNoData) {
				return nil, err
			}
			profile, err := t.profile(ctx, ticker)
			if err != nil {
				return nil, err
			}
			divs, err := t.src.Fundamentals.Dividends(ctx, ticker, t.today().AddDate(-3, 0, 0))
			if err != nil {
				t.logger.Warn("dividends unavailable", "ticker", ticker, "error", err)
				divs = nil
			}

			res := financialsResult{
				Ticker:     ticker,
				Period:     period,
				KeyMetrics: keyMetrics(profile, statements, divs),
				Recent:     map[string]any{},
			}
			if len(statements) > 0 {
				res.Recent = statementValues(statements[0])
			}
			if n > 1 {
				for i, st := range statements[:min(n, len(statements))] {
					row := statementValues(st)
					row["period_index"] = i
					row["date"] = st.Date.Format(time.DateOnly)
					res.Historical = append(res.Historical, row)
				}
			}
			if len(statements) == 0 && profile.Empty() {
				res.Warning = noFinancialsWarning
			}
			return res, nil
		}).WithNotice(func(a financialsArgs) string {
		return fmt.Sprintf("📈 正在获取 %s 的财务报表...", a.Ticker)
	})
}

// profile returns nil, not an error, when the ticker has no profile.
func (t *toolset) profile(ctx context.Context, ticker string) (*market.Profile, error) {
	if t.src.Profiles == nil {
		return nil, fmt.Errorf("%w: profiles", ErrUnavailable)
	}
	p, err := t.src.Profiles.Profile(ctx, ticker)
	if errors.Is(err, market.ErrNoData) {
		return nil, nil
	}
	return p, err
}

func statementValues(st market.Statement) map[string]any {
	out := make(map[string]any, len(statementFields)+2)
	for _, f := range statementFields {
		out[f.key] = st.Values[f.item]
	}
	return out
}

func keyMetrics(p *market.Profile, statements []market.Statement, divs []market.Dividend) map[string]any {
	if p == nil {
		p = &market.Profile{}
	}
	return map[string]any{
		"market_cap":           orNA(p.MarketCap),
		"pe_ratio":             orNA(p.TrailingPE),
		"pb_ratio":             orNA(p.PriceToBook),
		"dividend_yield":       orNA(p.DividendYield),
		"debt_to_equity":       orNA(p.DebtToEquity),
		"roe":                  orNA(p.ROE),
		"profit_margin":        orNA(p.ProfitMargin),
		"beta":                 orNA(p.Beta),
		"earnings_growth":      earningsGrowth(statements),
		"dividend_growth":      dividendGrowth(divs),
		"earnings_per_share":   orNA(p.TrailingEPS),
		"book_value_per_share": orNA(p.BookValue),
		"dividend_per_share":   orNA(p.DividendRate),
	}
}

// earningsGrowth is the percent change in net income between the two most
// recent statements.
func earningsGrowth(statements []market.Statement) any {
	if len(statements) < 2 {
		return na
	}
	cur, prev := statements[0].Values[market.NetIncome], statements[1].Values[market.NetIncome]
	if cur == 0 || prev == 0 {
		return na
	}
	g := (cur - prev) / prev * 100
	if prev < 0 {
		g = -g
	}
	return round2(g)
}

// dividendGrowth compares total dividends of the last two calendar years
// with payments.
func dividendGrowth(divs []market.Dividend) any {
	byYear := map[int]float64{}
	for _, d := range divs {
		byYear[d.Date.Year()] += d.Amount
	}
	if len(byYear) < 2 {
		return na
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	slices.Sort(years)
	cur, prev := byYear[years[len(years)-1]], byYear[years[len(years)-2]]
	if cur <= 0 || prev <= 0 {
		return na
	}
	return round2((cur - prev) / prev * 100)
}

type tickerArgs struct {
	Ticker string `json:"ticker" desc:"股票代码，如AAPL" required:"true"`
}

type stockInfoResult struct {
	Ticker   string         `json:"ticker"`
	Company  map[string]any `json:"company_info"`
	Stock    map[string]any `json:"stock_data"`
	Analysts map[string]any `json:"analysts_data"`
}

func (t *toolset) stockInfo() tool.Tool {
	return tool.MustFunc(StockInfo,
		"获取股票的基本信息，包括公司简介、行业分类、市值、股价、52周高低点等基础数据",
		func(ctx context.Context, args tickerArgs) (any, error) {
			ticker, err := parseTicker(args.Ticker)
			if err != nil {
				return nil, err
			}
			p, err := t.profile(ctx, ticker)
			if err != nil {
				return nil, err
			}
			if p.Empty() {
				return nil, fmt.Errorf("未获取到 %s 的基本信息: %w", ticker, market.ErrNoData)
			}
			return stockInfoResult{
				Ticker: ticker,
				Company: map[string]any{
					"name":                strOrNA(p.Name),
					"sector":              strOrNA(p.Sector),
					"industry":            strOrNA(p.Industry),
					"country":             strOrNA(p.Country),
					"website":             strOrNA(p.Website),
					"business_summary":    strOrNA(p.Summary),
					"full_time_employees": intOrNA(p.Employees),
				},
				Stock: map[string]any{
					"current_price":          orNA(p.Price),
					"previous_close":         orNA(p.PreviousClose),
					"open":                   orNA(p.Open),
					"day_low":                orNA(p.DayLow),
					"day_high":               orNA(p.DayHigh),
					"52_week_low":            orNA(p.Week52Low),
					"52_week_high":           orNA(p.Week52High),
					"volume":                 orNA(p.Volume),
					"avg_volume":             orNA(p.AvgVolume),
					"market_cap":             orNA(p.MarketCap),
					"beta":                   orNA(p.Beta),
					"price_to_earnings":      orNA(p.TrailingPE),
					"earnings_per_share":     orNA(p.TrailingEPS),
					"forward_dividend_yield": orNA(p.DividendYield),
					"ex_dividend_date":       strOrNA(p.ExDividendDate),
				},
				Analysts: map[string]any{
					"target_price":       orNA(p.TargetMean),
					"target_high":        orNA(p.TargetHigh),
					"target_low":         orNA(p.TargetLow),
					"recommendation":     strOrNA(p.Recommendation),
					"number_of_analysts": intOrNA(p.Analysts),
				},
			}, nil
		}).WithNotice(func(a tickerArgs) string {
		return fmt.Sprintf("ℹ️ 正在获取 %s 的基本信息...", a.Ticker)
	})
}
