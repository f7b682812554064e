package stocktools

import (
	"context"
	"fmt"

	"github.com/spetersoncode/stockagent/analysis"
	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/tool"
)

// technicalLookback is enough calendar days to cover MinTechnicalBars
// trading days.
const technicalLookback = 160

type rangeArgs struct {
	Ticker    string `json:"ticker" desc:"股票代码，如AAPL" required:"true"`
	StartDate string `json:"start_date" desc:"开始日期，格式YYYY-MM-DD" required:"true"`
	EndDate   string `json:"end_date" desc:"结束日期，格式YYYY-MM-DD，省略时为今天"`
}

type historyResult struct {
	Ticker        string                  `json:"ticker"`
	PeriodSummary *analysis.PeriodSummary `json:"period_summary"`
	RecentData    []analysis.Bar          `json:"recent_data"`
}

func (t *toolset) historicalData() tool.Tool {
	return tool.MustFunc(HistoricalData,
		"获取股票历史价格数据，包括开盘价、收盘价、最高价、最低价和成交量",
		func(ctx context.Context, args rangeArgs) (any, error) {
			ticker, err := parseTicker(args.Ticker)
			if err != nil {
				return nil, err
			}
			from, to, err := t.dateRange(args.StartDate, args.EndDate)
			if err != nil {
				return nil, err
			}
			bars, err := t.history(ctx, ticker, from, to)
			if err != nil {
				return nil, noData(err)
			}
			s := market.ToSeries(bars)
			sum, err := analysis.Summarize(s)
			if err != nil {
				return nil, err
			}
			t.logger.Debug("historical data", "ticker", ticker, "bars", len(bars))
			return historyResult{
				Ticker:        ticker,
				PeriodSummary: sum,
				RecentData:    analysis.RecentBars(s, analysis.RecentPeriod),
			}, nil
		}).WithNotice(func(a rangeArgs) string {
		return fmt.Sprintf("📊 正在获取 %s 的历史数据...", a.Ticker)
	})
}

type technicalResult struct {
	Ticker string `json:"ticker"`
	*analysis.Technicals
}

func (t *toolset) technicalIndicators() tool.Tool {
	return tool.MustFunc(TechnicalIndicators,
		"计算股票的技术指标，包括移动平均线、RSI、MACD、布林带、KDJ、威廉指标、CCI和成交量比率",
		func(ctx context.Context, args rangeArgs) (any, error) {
			ticker, err := parseTicker(args.Ticker)
			if err != nil {
				return nil, err
			}
			from, to, err := t.dateRange(args.StartDate, args.EndDate)
			if err != nil {
				return nil, err
			}
			bars, err := t.history(ctx, ticker, from, to)
			if err != nil {
				return nil, noData(err)
			}
			if len(bars) < analysis.MinTechnicalBars {
				t.logger.Debug("widening technical window", "ticker", ticker, "bars", len(bars))
				wider, err := t.history(ctx, ticker, to.AddDate(0, 0, -technicalLookback), to)
				if err != nil {
					return nil, noData(err)
				}
				if len(wider) > len(bars) {
					bars = wider
				}
			}
			tech, err := analysis.ComputeTechnicals(market.ToSeries(bars))
			if err != nil {
				return nil, err
			}
			return technicalResult{Ticker: ticker, Technicals: tech}, nil
		}).WithNotice(func(a rangeArgs) string {
		return fmt.Sprintf("📉 正在计算 %s 的技术指标...", a.Ticker)
	})
}

type peArgs struct {
	Ticker string `json:"ticker" desc:"股票代码，如AAPL" required:"true"`
	Period string `json:"period" desc:"分析周期" enum:"1y,5y,10y" default:"1y"`
}

var peYears = map[string]int{"1y": 1, "5y": 5, "10y": 10}

type peResult struct {
	Ticker string `json:"ticker"`
	Period string `json:"period"`
	*analysis.PEHistory
}

func (t *toolset) historicalPE() tool.Tool {
	return tool.MustFunc(HistoricalPE,
		"获取股票的历史PE比率和EPS数据，以及相关统计分析",
		func(ctx context.Context, args peArgs) (any, error) {
			ticker, err := parseTicker(args.Ticker)
			if err != nil {
				return nil, err
			}
			period := args.Period
			if period == "" {
				period = "1y"
			}
			years, ok := peYears[period]
			if !ok {
				return nil, invalidf("period must be one of 1y, 5y, 10y, got %q", args.Period)
			}
			if t.src.Fundamentals == nil {
				return nil, fmt.Errorf("%w: fundamentals", ErrUnavailable)
			}

			to := t.today()
			from := to.AddDate(-years, 0, 0)
			bars, err := t.history(ctx, ticker, from, to)
			if err != nil {
				return nil, noData(err)
			}
			eps, err := t.src.Fundamentals.Earnings(ctx, ticker, from)
			if err != nil {
				return nil, noData(err)
			}
			hist, err := analysis.HistoricalPE(market.ToSeries(bars), eps)
			if err != nil {
				return nil, fmt.Errorf("%s 在 %s 内没有可用的正EPS数据: %w", ticker, period, err)
			}
			return peResult{Ticker: ticker, Period: period, PEHistory: hist}, nil
		}).WithNotice(func(a peArgs) string {
		return fmt.Sprintf("📊 正在获取 %s 的历史PE与EPS数据...", a.Ticker)
	})
}

