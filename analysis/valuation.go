package analysis

import (
	"fmt"
	"math"
)

// Method names a valuation model.
type Method string

const (
	MethodPE  Method = "pe"
	MethodPB  Method = "pb"
	MethodDDM Method = "ddm"
	MethodDCF Method = "dcf"
)

// Valuation is the output of one model. Price is per share except for a DCF
// run without a share count, where it is the enterprise value.
type Valuation struct {
	Method  Method             `json:"method"`
	Label   string             `json:"label"`
	Price   float64            `json:"price"`
	Details map[string]float64 `json:"details"`
}

// Comparison relates a valuation to the market price.
type Comparison struct {
	Method   Method  `json:"method"`
	Price    float64 `json:"price"`
	Ratio    float64 `json:"ratio_to_market"`
	Position string  `json:"premium_discount"`
}

// PEInput parametrizes PEValuation.
type PEInput struct {
	EPS        float64
	IndustryPE float64
	// RiskFactor scales the industry multiple; zero means 1.
	RiskFactor float64
}

// PEValuation prices a share at EPS times the risk-adjusted industry PE.
func PEValuation(in PEInput) (*Valuation, error) {
	if in.EPS <= 0 {
		return nil, invalid("每股收益必须为正数")
	}
	if in.IndustryPE <= 0 {
		return nil, invalid("行业市盈率必须为正数")
	}
	risk := in.RiskFactor
	if risk == 0 {
		risk = 1
	}
	adjusted := in.IndustryPE * risk
	return &Valuation{
		Method: MethodPE,
		Label:  "PE估值",
		Price:  in.EPS * adjusted,
		Details: map[string]float64{
			"earnings_per_share": in.EPS,
			"industry_pe":        in.IndustryPE,
			"risk_factor":        risk,
			"adjusted_pe":        adjusted,
		},
	}, nil
}

// PBInput parametrizes PBValuation.
type PBInput struct {
	BookValuePerShare float64
	IndustryPB        float64
	ROE               float64
	IndustryROE       float64
}

// PBValuation prices a share at book value times the industry PB scaled by
// the company's ROE relative to the industry.
func PBValuation(in PBInput) (*Valuation, error) {
	switch {
	case in.BookValuePerShare <= 0:
		return nil, invalid("每股净资产必须为正数")
	case in.IndustryPB <= 0:
		return nil, invalid("行业市净率必须为正数")
	case in.IndustryROE <= 0:
		return nil, invalid("行业平均净资产收益率必须为正数")
	}
	factor := in.ROE / in.IndustryROE
	adjusted := in.IndustryPB * factor
	return &Valuation{
		Method: MethodPB,
		Label:  "PB估值",
		Price:  in.BookValuePerShare * adjusted,
		Details: map[string]float64{
			"book_value_per_share": in.BookValuePerShare,
			"industry_pb":          in.IndustryPB,
			"roe":                  in.ROE,
			"industry_roe":         in.IndustryROE,
			"roe_factor":           factor,
			"adjusted_pb":          adjusted,
		},
	}, nil
}

// DDMInput parametrizes DDMValuation.
type DDMInput struct {
	Dividend     float64
	GrowthRate   float64
	DiscountRate float64
	// HighGrowthYears defaults to 5.
	HighGrowthYears int
	// StableGrowthRate defaults to half of GrowthRate.
	StableGrowthRate *float64
}

// DDMValuation is a two-stage dividend discount model: dividends grow at
// GrowthRate for HighGrowthYears, then at StableGrowthRate forever.
func DDMValuation(in DDMInput) (*Valuation, error) {
	if in.Dividend <= 0 {
		return nil, invalid("当前股息必须为正数")
	}
	if in.GrowthRate >= in.DiscountRate {
		return nil, invalid("股息增长率必须小于贴现率")
	}
	years := in.HighGrowthYears
	if years <= 0 {
		years = 5
	}
	stable := in.GrowthRate / 2
	if in.StableGrowthRate != nil {
		stable = *in.StableGrowthRate
	}
	if stable >= in.DiscountRate {
		return nil, invalid("稳定增长率必须小于贴现率")
	}

	var highPV float64
	for y := 1; y <= years; y++ {
		d := in.Dividend * math.Pow(1+in.GrowthRate, float64(y))
		highPV += d / math.Pow(1+in.DiscountRate, float64(y))
	}
	last := in.Dividend * math.Pow(1+in.GrowthRate, float64(years))
	terminal := last * (1 + stable) / (in.DiscountRate - stable)
	terminalPV := terminal / math.Pow(1+in.DiscountRate, float64(years))

	return &Valuation{
		Method: MethodDDM,
		Label:  "DDM估值",
		Price:  highPV + terminalPV,
		Details: map[string]float64{
			"current_dividend":   in.Dividend,
			"growth_rate":        in.GrowthRate,
			"stable_growth_rate": stable,
			"discount_rate":      in.DiscountRate,
			"high_growth_years":  float64(years),
			"high_growth_pv":     highPV,
			"terminal_value_pv":  terminalPV,
		},
	}, nil
}

// DCFInput parametrizes DCFValuation.
type DCFInput struct {
	FreeCashFlow float64
	// GrowthRates holds one rate per forecast year, or a single rate used
	// for every year.
	GrowthRates  []float64
	DiscountRate float64
	// TerminalGrowthRate defaults to 0.03.
	TerminalGrowthRate *float64
	// Years defaults to 5.
	Years int
	// SharesOutstanding turns the enterprise value into a per-share price
	// when positive.
	SharesOutstanding float64
}

// DCFValuation discounts forecast free cash flow plus a Gordon-growth
// terminal value.
func DCFValuation(in DCFInput) (*Valuation, error) {
	if in.FreeCashFlow <= 0 {
		return nil, invalid("当前自由现金流必须为正数")
	}
	tg := 0.03
	if in.TerminalGrowthRate != nil {
		tg = *in.TerminalGrowthRate
	}
	if tg >= in.DiscountRate {
		return nil, invalid("终值增长率必须小于贴现率")
	}
	years := in.Years
	if years <= 0 {
		years = 5
	}
	rates := in.GrowthRates
	switch len(rates) {
	case 0:
		return nil, invalid("缺少现金流增长率")
	case 1:
		r := rates[0]
		rates = make([]float64, years)
		for i := range rates {
			rates[i] = r
		}
	default:
		if len(rates) != years {
			return nil, invalid(fmt.Sprintf("增长率列表长度必须为%d", years))
		}
	}

	var forecastPV float64
	fcf := in.FreeCashFlow
	for y := 1; y <= years; y++ {
		fcf *= 1 + rates[y-1]
		forecastPV += fcf / math.Pow(1+in.DiscountRate, float64(y))
	}
	terminal := fcf * (1 + tg) / (in.DiscountRate - tg)
	terminalPV := terminal / math.Pow(1+in.DiscountRate, float64(years))
	ev := forecastPV + terminalPV

	v := &Valuation{
		Method: MethodDCF,
		Label:  "DCF估值",
		Price:  ev,
		Details: map[string]float64{
			"current_fcf":          in.FreeCashFlow,
			"discount_rate":        in.DiscountRate,
			"terminal_growth_rate": tg,
			"years":                float64(years),
			"forecast_pv":          forecastPV,
			"terminal_value_pv":    terminalPV,
			"enterprise_value":     ev,
		},
	}
	if in.SharesOutstanding > 0 {
		v.Price = ev / in.SharesOutstanding
		v.Details["shares_outstanding"] = in.SharesOutstanding
	}
	return v, nil
}

// Compare relates each valuation to the current market price.
func Compare(current float64, vals ...*Valuation) ([]Comparison, error) {
	if current <= 0 {
		return nil, invalid("当前价格必须为正数")
	}
	if len(vals) == 0 {
		return nil, ErrInsufficientData
	}
	out := make([]Comparison, 0, len(vals))
	for _, v := range vals {
		pos := "折价"
		if v.Price > current {
			pos = "溢价"
		}
		out = append(out, Comparison{
			Method:   v.Method,
			Price:    v.Price,
			Ratio:    v.Price / current,
			Position: pos,
		})
	}
	return out, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
