// Package chart builds chart.js payloads for the browser from market data.
package chart

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spetersoncode/stockagent/analysis"
	"github.com/spetersoncode/stockagent/market"
)

// Chart types.
const (
	TypePrice     = "price"
	TypeTechnical = "technical"
)

const (
	// DefaultTicker is used when none is given or found in the query.
	DefaultTicker = "AAPL"
	// DefaultRange is the lookback used when either date is missing.
	DefaultRange = 90 * 24 * time.Hour

	// warmup is how many calendar days before the range are fetched so the
	// technical series are defined from the first label.
	warmup = 120
)

// CommonTickers are preferred when a query mentions several candidates.
var CommonTickers = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA", "META", "NVDA", "NFLX", "BABA", "JD"}

var (
	// ErrInvalidRequest is wrapped by request validation failures.
	ErrInvalidRequest = errors.New("chart: invalid request")

	tickerCandidate = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
)

// ExtractTicker finds a ticker symbol in free text. Well-known symbols win
// over the first candidate; DefaultTicker is returned when nothing matches.
func ExtractTicker(query string) string {
	found := tickerCandidate.FindAllString(strings.ToUpper(query), -1)
	for _, c := range found {
		if slices.Contains(CommonTickers, c) {
			return c
		}
	}
	if len(found) > 0 {
		return found[0]
	}
	return DefaultTicker
}

// Request describes the chart to build.
type Request struct {
	Ticker    string `json:"ticker"`
	Query     string `json:"query"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	ChartType string `json:"chart_type"`
}

// Dataset is one chart.js dataset. Missing points are null.
type Dataset struct {
	Label           string     `json:"label"`
	Data            []*float64 `json:"data"`
	Type            string     `json:"type,omitempty"`
	BorderColor     string     `json:"borderColor,omitempty"`
	BackgroundColor string     `json:"backgroundColor,omitempty"`
	Fill            bool       `json:"fill"`
	YAxisID         string     `json:"yAxisID,omitempty"`
}

// Data is the chart.js data block.
type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Payload is the response body of the visualization endpoint.
type Payload struct {
	Status    string `json:"status"`
	ChartType string `json:"chart_type"`
	Title     string `json:"title"`
	Ticker    string `json:"ticker"`
	Data      Data   `json:"data"`
}

// Builder turns requests into payloads.
type Builder struct {
	prices market.PriceSource
	now    func() time.Time
}

// NewBuilder returns a Builder reading prices from src.
func NewBuilder(src market.PriceSource) *Builder {
	return &Builder{prices: src, now: time.Now}
}

// WithClock sets the time source used for the default range.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build fetches the data for req and shapes it for chart.js.
func (b *Builder) Build(ctx context.Context, req Request) (*Payload, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		ticker = ExtractTicker(req.Query)
	}
	from, to, err := b.dateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	switch req.ChartType {
	case "", TypePrice:
		return b.price(ctx, ticker, from, to)
	case TypeTechnical:
		return b.technical(ctx, ticker, from, to)
	default:
		return nil, fmt.Errorf("%w: unknown chart_type %q", ErrInvalidRequest, req.ChartType)
	}
}

// dateRange returns an inclusive range; the default range applies when either
// end is missing.
func (b *Builder) dateRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		n := b.now().UTC()
		to := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
		return to.Add(-DefaultRange), to, nil
	}
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date is after end_date", ErrInvalidRequest)
	}
	return from, to, nil
}

func (b *Builder) price(ctx context.Context, ticker string, from, to time.Time) (*Payload, error) {
	bars, err := b.prices.History(ctx, ticker, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(bars))
	closes := make([]*float64, len(bars))
	volumes := make([]*float64, len(bars))
	for i, bar := range bars {
		labels[i] = bar.Date.Format(time.DateOnly)
		closes[i] = analysis.Value(bar.Close)
		volumes[i] = analysis.Value(bar.Volume)
	}
	return &Payload{
		Status:    "success",
		ChartType: "mixed",
		Title:     ticker + " 价格历史",
		Ticker:    ticker,
		Data: Data{
			Labels: labels,
			Datasets: []Dataset{
				{
					Label:           "收盘价",
					Data:            closes,
					BorderColor:     "rgba(75, 192, 192, 1)",
					BackgroundColor: "rgba(75, 192, 192, 0.2)",
					Fill:            true,
				},
				{
					Label:           "交易量",
					Data:            volumes,
					Type:            "bar",
					BackgroundColor: "rgba(153, 102, 255, 0.5)",
					YAxisID:         "volume",
				},
			},
		},
	}, nil
}

func (b *Builder) technical(ctx context.Context, ticker string, from, to time.Time) (*Payload, error) {
	bars, err := b.prices.History(ctx, ticker, from.AddDate(0, 0, -warmup), to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	s := market.ToSeries(bars)
	sma20, sma50, rsi := analysis.SMA(s.Close, 20), analysis.SMA(s.Close, 50), analysis.RSI(s.Close, 14)

	first, _ := slices.BinarySearchFunc(s.Dates, from, func(d, t time.Time) int { return d.Compare(t) })
	var labels []string
	var d20, d50, dRSI []*float64
	for i := first; i < s.Len(); i++ {
		labels = append(labels, s.Dates[i].Format(time.DateOnly))
		d20 = append(d20, analysis.Value(sma20[i]))
		d50 = append(d50, analysis.Value(sma50[i]))
		dRSI = append(dRSI, analysis.Value(rsi[i]))
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no prices for %s in range", market.ErrNoData, ticker)
	}
	return &Payload{
		Status:    "success",
		ChartType: "line",
		Title:     ticker + " 技术指标",
		Ticker:    ticker,
		Data: Data{
			Labels: labels,
			Datasets: []Dataset{
				{Label: "SMA20", Data: d20, BorderColor: "rgba(75, 192, 192, 1)"},
				{Label: "SMA50", Data: d50, BorderColor: "rgba(153, 102, 255, 1)"},
				{Label: "RSI", Data: dRSI, BorderColor: "rgba(255, 159, 64, 1)", YAxisID: "rsi"},
			},
		},
	}, nil
}
