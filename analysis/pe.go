package analysis

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Earnings is one reported quarterly EPS figure.
type Earnings struct {
	Date time.Time
	EPS  float64
}

// PEPoint is the price-to-earnings ratio at one earnings date.
type PEPoint struct {
	Date          string  `json:"Date"`
	Price         float64 `json:"Price"`
	EPSQuarterly  float64 `json:"EPS (Quarterly)"`
	EPSAnnualized float64 `json:"EPS (Annualized)"`
	PE            float64 `json:"PE"`
}

// PEHistory is a PE series with its summary statistics.
type PEHistory struct {
	History []PEPoint `json:"history_pe"`
	Avg     float64   `json:"PE avg"`
	High    float64   `json:"PE high"`
	Low     float64   `json:"PE low"`
	Median  float64   `json:"PE median"`
}

// HistoricalPE pairs each positive quarterly EPS with the close of the first
// trading day on or after its report date. Quarterly EPS is annualised by
// four. It returns ErrInsufficientData when no pair can be formed.
func HistoricalPE(prices Series, earnings []Earnings) (*PEHistory, error) {
	if err := prices.validate(); err != nil {
		return nil, err
	}
	sorted := slices.Clone(earnings)
	slices.SortFunc(sorted, func(a, b Earnings) int { return a.Date.Compare(b.Date) })

	h := &PEHistory{}
	for _, e := range sorted {
		if e.EPS <= 0 {
			continue
		}
		i, _ := slices.BinarySearchFunc(prices.Dates, e.Date, func(d, target time.Time) int {
			return d.Compare(target)
		})
		if i >= prices.Len() {
			continue
		}
		price := prices.Close[i]
		annual := e.EPS * 4
		h.History = append(h.History, PEPoint{
			Date:          prices.Dates[i].Format("2006-01-02"),
			Price:         price,
			EPSQuarterly:  e.EPS,
			EPSAnnualized: annual,
			PE:            price / annual,
		})
	}
	if len(h.History) == 0 {
		return nil, ErrInsufficientData
	}

	pe := make([]float64, len(h.History))
	for i, p := range h.History {
		pe[i] = p.PE
	}
	h.Avg = stat.Mean(pe, nil)
	h.High = floats.Max(pe)
	h.Low = floats.Min(pe)
	h.Median = Median(pe)
	return h, nil
}

// Median returns the middle value of x, averaging the two middle values when
// len(x) is even. It does not modify x.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := slices.Clone(x)
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}
