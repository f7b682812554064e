package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s := series(3)
	s.Close = []float64{10, 11, 12.1}
	s.High = []float64{10.5, 11.5, 13}
	s.Low = []float64{9, 10.5, 11}
	s.Volume = []float64{100, 200, 300}

	sum, err := Summarize(s)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", sum.StartDate)
	assert.Equal(t, "2025-01-03", sum.EndDate)
	assert.Equal(t, 3, sum.TotalDays)
	assert.Equal(t, 12.1, sum.CurrentPrice)
	assert.Equal(t, 13.0, sum.PeriodHigh)
	assert.Equal(t, 9.0, sum.PeriodLow)
	assert.InDelta(t, 21.0, sum.PeriodReturn, 1e-9)
	assert.InDelta(t, 200.0, sum.AvgVolume, 1e-9)
	require.NotNil(t, sum.Volatility)
	assert.InDelta(t, 0, *sum.Volatility, 1e-9)

	one, err := Summarize(series(1))
	require.NoError(t, err)
	assert.Nil(t, one.Volatility)
}

func TestRecentBars(t *testing.T) {
	bars := RecentBars(series(8), 5)
	require.Len(t, bars, 5)
	assert.Equal(t, "2025-01-04", bars[0].Date)
	assert.Equal(t, int64(1007), bars[4].Volume)

	assert.Len(t, RecentBars(series(2), 5), 2)
}

func TestHistoricalPE(t *testing.T) {
	s := series(10)
	for i := range s.Close {
		s.Close[i] = float64(100 + i)
	}
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }
	earnings := []Earnings{
		{Date: day(5), EPS: 1},
		{Date: day(2), EPS: 0.5},
		{Date: day(3), EPS: -0.2},
		{Date: day(30), EPS: 1},
	}

	h, err := HistoricalPE(s, earnings)
	require.NoError(t, err)
	require.Len(t, h.History, 2)

	assert.Equal(t, "2025-01-02", h.History[0].Date)
	assert.Equal(t, 101.0, h.History[0].Price)
	assert.Equal(t, 2.0, h.History[0].EPSAnnualized)
	assert.InDelta(t, 50.5, h.History[0].PE, 1e-9)

	assert.Equal(t, "2025-01-05", h.History[1].Date)
	assert.InDelta(t, 26.0, h.History[1].PE, 1e-9)

	assert.InDelta(t, 38.25, h.Avg, 1e-9)
	assert.Equal(t, 50.5, h.High)
	assert.Equal(t, 26.0, h.Low)
	assert.InDelta(t, 38.25, h.Median, 1e-9)

	_, err = HistoricalPE(s, []Earnings{{Date: day(1), EPS: -1}})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	in := []float64{4, 1, 3, 2}
	assert.Equal(t, 2.5, Median(in))
	assert.Equal(t, []float64{4, 1, 3, 2}, in)
}

func ptr(f float64) *float64 { return &f }

func TestValuationModels(t *testing.T) {
	pe, err := PEValuation(PEInput{EPS: 5.2, IndustryPE: 18.5, RiskFactor: 0.95})
	require.NoError(t, err)
	assert.InDelta(t, 91.39, pe.Price, 1e-9)

	pe, err = PEValuation(PEInput{EPS: 2, IndustryPE: 10})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, pe.Price, 1e-9)

	pb, err := PBValuation(PBInput{BookValuePerShare: 35.8, IndustryPB: 2.4, ROE: 0.18, IndustryROE: 0.15})
	require.NoError(t, err)
	assert.InDelta(t, 103.104, pb.Price, 1e-9)

	ddm, err := DDMValuation(DDMInput{Dividend: 1, GrowthRate: 0.1, DiscountRate: 0.2, HighGrowthYears: 1, StableGrowthRate: ptr(0.05)})
	require.NoError(t, err)
	assert.InDelta(t, 1.1/1.2+7.7/1.2, ddm.Price, 1e-9)
	assert.Equal(t, 0.05, ddm.Details["stable_growth_rate"])

	ddm, err = DDMValuation(DDMInput{Dividend: 1, GrowthRate: 0.1, DiscountRate: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.05, ddm.Details["stable_growth_rate"])
	assert.Equal(t, 5.0, ddm.Details["high_growth_years"])

	dcf, err := DCFValuation(DCFInput{FreeCashFlow: 100, GrowthRates: []float64{0.1}, DiscountRate: 0.1, TerminalGrowthRate: ptr(0), Years: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1100.0, dcf.Price, 1e-9)

	dcf, err = DCFValuation(DCFInput{FreeCashFlow: 100, GrowthRates: []float64{0.1}, DiscountRate: 0.1, TerminalGrowthRate: ptr(0), Years: 1, SharesOutstanding: 10})
	require.NoError(t, err)
	assert.InDelta(t, 110.0, dcf.Price, 1e-9)
	assert.InDelta(t, 1100.0, dcf.Details["enterprise_value"], 1e-9)
}

func TestValuationInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{"pe eps", func() error { _, err := PEValuation(PEInput{EPS: 0, IndustryPE: 10}); return err }},
		{"pe industry", func() error { _, err := PEValuation(PEInput{EPS: 1}); return err }},
		{"pb roe", func() error {
			_, err := PBValuation(PBInput{BookValuePerShare: 1, IndustryPB: 1})
			return err
		}},
		{"ddm growth", func() error {
			_, err := DDMValuation(DDMInput{Dividend: 1, GrowthRate: 0.2, DiscountRate: 0.1})
			return err
		}},
		{"ddm stable", func() error {
			_, err := DDMValuation(DDMInput{Dividend: 1, GrowthRate: 0.05, DiscountRate: 0.1, StableGrowthRate: ptr(0.1)})
			return err
		}},
		{"dcf terminal", func() error {
			_, err := DCFValuation(DCFInput{FreeCashFlow: 1, GrowthRates: []float64{0.1}, DiscountRate: 0.03})
			return err
		}},
		{"dcf rates length", func() error {
			_, err := DCFValuation(DCFInput{FreeCashFlow: 1, GrowthRates: []float64{0.1, 0.2}, DiscountRate: 0.1})
			return err
		}},
		{"dcf no rates", func() error {
			_, err := DCFValuation(DCFInput{FreeCashFlow: 1, DiscountRate: 0.1})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), ErrInvalidInput)
		})
	}
}

func TestCompare(t *testing.T) {
	pe, err := PEValuation(PEInput{EPS: 2, IndustryPE: 10})
	require.NoError(t, err)
	pb, err := PBValuation(PBInput{BookValuePerShare: 10, IndustryPB: 1, ROE: 0.1, IndustryROE: 0.1})
	require.NoError(t, err)

	cmp, err := Compare(15, pe, pb)
	require.NoError(t, err)
	require.Len(t, cmp, 2)
	assert.Equal(t, "溢价", cmp[0].Position)
	assert.InDelta(t, 20.0/15, cmp[0].Ratio, 1e-9)
	assert.Equal(t, "折价", cmp[1].Position)

	_, err = Compare(0, pe)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Compare(10)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
