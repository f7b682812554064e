package stocktools

import (
	"context"
	"fmt"

	"github.com/spetersoncode/stockagent/analysis"
	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/tool"
)

type valuationArgs struct {
	Method       string   `json:"method" desc:"估值方法：pe(市盈率)、pb(市净率)、ddm(股息折现)、dcf(现金流折现)" enum:"pe,pb,ddm,dcf" required:"true"`
	Ticker       string   `json:"ticker" desc:"股票代码，可选；提供时自动补全当前价格、EPS、每股净资产、股息、ROE和总股本"`
	CurrentPrice *float64 `json:"current_price" desc:"当前股价，用于计算溢价或折价"`

	EPS        *float64 `json:"eps" desc:"每股收益(pe)"`
	IndustryPE float64  `json:"industry_pe" desc:"行业平均市盈率(pe)"`
	RiskFactor float64  `json:"risk_factor" desc:"风险调整系数(pe)，默认1"`

	BookValuePerShare *float64 `json:"book_value_per_share" desc:"每股净资产(pb)"`
	IndustryPB        float64  `json:"industry_pb" desc:"行业平均市净率(pb)"`
	ROE               *float64 `json:"roe" desc:"净资产收益率，小数形式(pb)"`
	IndustryROE       float64  `json:"industry_roe" desc:"行业平均净资产收益率，小数形式(pb)"`

	Dividend         *float64 `json:"dividend" desc:"当前每股年度股息(ddm)"`
	GrowthRate       float64  `json:"growth_rate" desc:"高增长期增长率，小数形式(ddm)"`
	DiscountRate     float64  `json:"discount_rate" desc:"折现率，小数形式(ddm, dcf)"`
	HighGrowthYears  int      `json:"high_growth_years" desc:"高增长期年数(ddm)，默认5"`
	StableGrowthRate *float64 `json:"stable_growth_rate" desc:"稳定增长率(ddm)，默认为增长率的一半"`

	FreeCashFlow       float64   `json:"free_cash_flow" desc:"当前自由现金流(dcf)"`
	GrowthRates        []float64 `json:"growth_rates" desc:"各预测年份的增长率，或单个增长率用于所有年份(dcf)"`
	TerminalGrowthRate *float64  `json:"terminal_growth_rate" desc:"永续增长率(dcf)，默认0.03"`
	Years              int       `json:"years" desc:"预测年数(dcf)，默认5"`
	SharesOutstanding  *float64  `json:"shares_outstanding" desc:"总股本(dcf)，提供时输出每股价值"`
}

type valuationResult struct {
	Ticker     string               `json:"ticker,omitempty"`
	Valuation  *analysis.Valuation  `json:"valuation"`
	Comparison *analysis.Comparison `json:"comparison,omitempty"`
}

func (t *toolset) valuation() tool.Tool {
	return tool.MustFunc(EvaluateValuation,
		"使用市盈率、市净率、股息折现或现金流折现模型估算股票内在价值，并与当前股价比较",
		func(ctx context.Context, args valuationArgs) (any, error) {
			var ticker string
			if args.Ticker != "" {
				var err error
				if ticker, err = parseTicker(args.Ticker); err != nil {
					return nil, err
				}
				if err := t.fillFromProfile(ctx, ticker, &args); err != nil {
					return nil, err
				}
			}

			v, err := runValuation(args)
			if err != nil {
				return nil, err
			}
			res := valuationResult{Ticker: ticker, Valuation: v}
			if args.CurrentPrice != nil {
				cmp, err := analysis.Compare(*args.CurrentPrice, v)
				if err != nil {
					return nil, err
				}
				res.Comparison = &cmp[0]
			}
			return res, nil
		}).WithNotice(func(a valuationArgs) string {
		if a.Ticker != "" {
			return fmt.Sprintf("💰 正在使用 %s 模型评估 %s 的估值...", a.Method, a.Ticker)
		}
		return fmt.Sprintf("💰 正在使用 %s 模型进行估值...", a.Method)
	})
}

// fillFromProfile completes inputs the caller left out with profile data.
func (t *toolset) fillFromProfile(ctx context.Context, ticker string, args *valuationArgs) error {
	p, err := t.profile(ctx, ticker)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("未获取到 %s 的基本信息: %w", ticker, market.ErrNoData)
	}
	fill := func(dst **float64, src *float64) {
		if *dst == nil && src != nil {
			*dst = src
		}
	}
	fill(&args.CurrentPrice, p.Price)
	fill(&args.EPS, p.TrailingEPS)
	fill(&args.BookValuePerShare, p.BookValue)
	fill(&args.ROE, p.ROE)
	fill(&args.Dividend, p.DividendRate)
	fill(&args.SharesOutstanding, p.SharesOutstanding)
	return nil
}

func runValuation(a valuationArgs) (*analysis.Valuation, error) {
	switch analysis.Method(a.Method) {
	case analysis.MethodPE:
		return analysis.PEValuation(analysis.PEInput{
			EPS:        deref(a.EPS),
			IndustryPE: a.IndustryPE,
			RiskFactor: a.RiskFactor,
		})
	case analysis.MethodPB:
		return analysis.PBValuation(analysis.PBInput{
			BookValuePerShare: deref(a.BookValuePerShare),
			IndustryPB:        a.IndustryPB,
			ROE:               deref(a.ROE),
			IndustryROE:       a.IndustryROE,
		})
	case analysis.MethodDDM:
		return analysis.DDMValuation(analysis.DDMInput{
			Dividend:         deref(a.Dividend),
			GrowthRate:       a.GrowthRate,
			DiscountRate:     a.DiscountRate,
			HighGrowthYears:  a.HighGrowthYears,
			StableGrowthRate: a.StableGrowthRate,
		})
	case analysis.MethodDCF:
		return analysis.DCFValuation(analysis.DCFInput{
			FreeCashFlow:       a.FreeCashFlow,
			GrowthRates:        a.GrowthRates,
			DiscountRate:       a.DiscountRate,
			TerminalGrowthRate: a.TerminalGrowthRate,
			Years:              a.Years,
			SharesOutstanding:  deref(a.SharesOutstanding),
		})
	default:
		return nil, invalidf("method must be one of pe, pb, ddm, dcf, got %q", a.Method)
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
