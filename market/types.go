package market

import (
	"time"

	"github.com/spetersoncode/stockagent/analysis"
)

// Bar is one trading day. Date is the exchange-local calendar date at
// midnight UTC.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// ToSeries converts bars into the column layout used by package analysis.
func ToSeries(bars []Bar) analysis.Series {
	s := analysis.Series{
		Dates:  make([]time.Time, len(bars)),
		Open:   make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Dates[i] = b.Date
		s.Open[i] = b.Open
		s.High[i] = b.High
		s.Low[i] = b.Low
		s.Close[i] = b.Close
		s.Volume[i] = b.Volume
	}
	return s
}

// Dividend is one cash dividend payment.
type Dividend struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// Profile is company and quote data. Missing fields are nil or empty.
type Profile struct {
	Name      string `json:"name"`
	Sector    string `json:"sector"`
	Industry  string `json:"industry"`
	Country   string `json:"country"`
	Website   string `json:"website"`
	Summary   string `json:"summary"`
	Employees *int64 `json:"employees"`

	Price          *float64 `json:"price"`
	PreviousClose  *float64 `json:"previous_close"`
	Open           *float64 `json:"open"`
	DayLow         *float64 `json:"day_low"`
	DayHigh        *float64 `json:"day_high"`
	Week52Low      *float64 `json:"week52_low"`
	Week52High     *float64 `json:"week52_high"`
	Volume         *float64 `json:"volume"`
	AvgVolume      *float64 `json:"avg_volume"`
	MarketCap      *float64 `json:"market_cap"`
	Beta           *float64 `json:"beta"`
	TrailingPE     *float64 `json:"trailing_pe"`
	TrailingEPS    *float64 `json:"trailing_eps"`
	DividendYield  *float64 `json:"dividend_yield"`
	DividendRate   *float64 `json:"dividend_rate"`
	ExDividendDate string   `json:"ex_dividend_date"`

	PriceToBook       *float64 `json:"price_to_book"`
	BookValue         *float64 `json:"book_value"`
	DebtToEquity      *float64 `json:"debt_to_equity"`
	ROE               *float64 `json:"roe"`
	ProfitMargin      *float64 `json:"profit_margin"`
	SharesOutstanding *float64 `json:"shares_outstanding"`

	TargetMean     *float64 `json:"target_mean"`
	TargetHigh     *float64 `json:"target_high"`
	TargetLow      *float64 `json:"target_low"`
	Recommendation string   `json:"recommendation"`
	Analysts       *int64   `json:"analysts"`
}

// Empty reports whether no field was populated.
func (p *Profile) Empty() bool {
	return p == nil || (p.Name == "" && p.Price == nil && p.MarketCap == nil && p.Sector == "")
}

// Period selects annual or quarterly statements.
type Period string

const (
	Annual    Period = "annual"
	Quarterly Period = "quarterly"
)

// ParsePeriod returns Quarterly for "quarterly" and Annual for anything else.
func ParsePeriod(s string) Period {
	if Period(s) == Quarterly {
		return Quarterly
	}
	return Annual
}

// Statement line items.
const (
	TotalRevenue       = "TotalRevenue"
	NetIncome          = "NetIncome"
	GrossProfit        = "GrossProfit"
	TotalAssets        = "TotalAssets"
	TotalDebt          = "TotalDebt"
	StockholdersEquity = "StockholdersEquity"
	OperatingCashFlow  = "OperatingCashFlow"
	FreeCashFlow       = "FreeCashFlow"
	EBITDA             = "EBITDA"
	InterestExpense    = "InterestExpense"
	TaxProvision       = "TaxProvision"
)

// StatementItems lists every line item requested from a statements source.
var StatementItems = []string{
	TotalRevenue, NetIncome, GrossProfit,
	TotalAssets, TotalDebt, StockholdersEquity,
	OperatingCashFlow, FreeCashFlow,
	EBITDA, InterestExpense, TaxProvision,
}

// Statement is the reported line items for one fiscal period.
type Statement struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Article is a news item.
type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
}

// SearchHit is one web search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Engine  string `json:"engine"`
}
