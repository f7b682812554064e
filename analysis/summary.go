package analysis

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Bar is one day of a Series in a form ready for JSON output.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// PeriodSummary describes price behaviour over a date range.
type PeriodSummary struct {
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	TotalDays    int      `json:"total_days"`
	CurrentPrice float64  `json:"current_price"`
	PeriodHigh   float64  `json:"period_high"`
	PeriodLow    float64  `json:"period_low"`
	PeriodReturn float64  `json:"period_return"`
	AvgVolume    float64  `json:"avg_volume"`
	Volatility   *float64 `json:"volatility"`
}

// Summarize computes the period summary of s. Return and volatility are in
// percent; volatility is the sample standard deviation of daily returns and
// is nil with fewer than three bars.
func Summarize(s Series) (*PeriodSummary, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	n := s.Len()
	sum := &PeriodSummary{
		StartDate:    s.Dates[0].Format("2006-01-02"),
		EndDate:      s.Dates[n-1].Format("2006-01-02"),
		TotalDays:    n,
		CurrentPrice: s.Close[n-1],
		PeriodHigh:   floats.Max(s.High),
		PeriodLow:    floats.Min(s.Low),
		AvgVolume:    stat.Mean(s.Volume, nil),
	}
	if s.Close[0] != 0 {
		sum.PeriodReturn = (s.Close[n-1]/s.Close[0] - 1) * 100
	}
	if rets := Returns(s.Close); len(rets) > 1 {
		sum.Volatility = Value(stat.StdDev(rets, nil) * 100)
	}
	return sum, nil
}

// Returns is the day-over-day fractional change of x. Pairs with a zero
// base are skipped.
func Returns(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, 0, len(x)-1)
	for i := 1; i < len(x); i++ {
		if x[i-1] == 0 {
			continue
		}
		out = append(out, x[i]/x[i-1]-1)
	}
	return out
}

// RecentBars returns up to the last n bars of s.
func RecentBars(s Series, n int) []Bar {
	start := max(0, s.Len()-n)
	out := make([]Bar, 0, s.Len()-start)
	for i := start; i < s.Len(); i++ {
		out = append(out, Bar{
			Date:   s.Dates[i].Format("2006-01-02"),
			Open:   s.Open[i],
			High:   s.High[i],
			Low:    s.Low[i],
			Close:  s.Close[i],
			Volume: int64(s.Volume[i]),
		})
	}
	return out
}
