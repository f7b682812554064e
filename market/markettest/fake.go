// Package markettest provides an in-memory implementation of every market
// source for tests.
package markettest

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/spetersoncode/stockagent/analysis"
	"github.com/spetersoncode/stockagent/market"
)

// Fake serves canned data keyed by upper-cased ticker. Unknown tickers
// return market.ErrNoData. Err, when set, is returned by every call.
type Fake struct {
	mu sync.Mutex

	PriceData     map[string][]market.Bar
	ProfileData   map[string]*market.Profile
	StatementData map[string][]market.Statement
	EarningsData  map[string][]analysis.Earnings
	DividendData  map[string][]market.Dividend
	Articles      []market.Article
	Hits          map[string][]market.SearchHit
	Err           error

	calls map[string]int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		PriceData:     map[string][]market.Bar{},
		ProfileData:   map[string]*market.Profile{},
		StatementData: map[string][]market.Statement{},
		EarningsData:  map[string][]analysis.Earnings{},
		DividendData:  map[string][]market.Dividend{},
		Hits:          map[string][]market.SearchHit{},
		calls:         map[string]int{},
	}
}

// Sources exposes f through every source interface.
func (f *Fake) Sources() market.Sources {
	return market.Sources{Prices: f, Profiles: f, Fundamentals: f, News: f, Search: f}
}

// Calls returns how often the named method was called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[method]++
	return f.Err
}

// History returns the bars for ticker dated within [start, end].
func (f *Fake) History(_ context.Context, ticker string, start, end time.Time) ([]market.Bar, error) {
	if err := f.record("History"); err != nil {
		return nil, err
	}
	var out []market.Bar
	for _, b := range f.PriceData[strings.ToUpper(ticker)] {
		if !b.Date.Before(day(start)) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, market.ErrNoData
	}
	return out, nil
}

// Profile returns the profile for ticker.
func (f *Fake) Profile(_ context.Context, ticker string) (*market.Profile, error) {
	if err := f.record("Profile"); err != nil {
		return nil, err
	}
	p, ok := f.ProfileData[strings.ToUpper(ticker)]
	if !ok {
		return nil, market.ErrNoData
	}
	return p, nil
}

// Statements returns up to n statements for ticker. The period is ignored.
func (f *Fake) Statements(_ context.Context, ticker string, _ market.Period, n int) ([]market.Statement, error) {
	if err := f.record("Statements"); err != nil {
		return nil, err
	}
	sts := f.StatementData[strings.ToUpper(ticker)]
	if n > 0 && len(sts) > n {
		sts = sts[:n]
	}
	return sts, nil
}

// Earnings returns the EPS reports for ticker.
func (f *Fake) Earnings(_ context.Context, ticker string, _ time.Time) ([]analysis.Earnings, error) {
	if err := f.record("Earnings"); err != nil {
		return nil, err
	}
	return f.EarningsData[strings.ToUpper(ticker)], nil
}

// Dividends returns the dividends for ticker paid on or after start.
func (f *Fake) Dividends(_ context.Context, ticker string, start time.Time) ([]market.Dividend, error) {
	if err := f.record("Dividends"); err != nil {
		return nil, err
	}
	var out []market.Dividend
	for _, d := range f.DividendData[strings.ToUpper(ticker)] {
		if !d.Date.Before(day(start)) {
			out = append(out, d)
		}
	}
	return out, nil
}

// News returns up to max articles.
func (f *Fake) News(_ context.Context, _, _ string, max int) ([]market.Article, error) {
	if err := f.record("News"); err != nil {
		return nil, err
	}
	out := f.Articles
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// Search returns up to max hits registered for query.
func (f *Fake) Search(_ context.Context, query string, max int) ([]market.SearchHit, error) {
	if err := f.record("Search"); err != nil {
		return nil, err
	}
	out := f.Hits[query]
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// Bars generates n weekday bars ending on end with a gentle sine wave on an
// upward drift around base.
func Bars(n int, end time.Time, base float64) []market.Bar {
	out := make([]market.Bar, n)
	d := day(end)
	for i := n - 1; i >= 0; i-- {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, -1)
		}
		c := base + float64(i)*0.1 + 5*math.Sin(float64(i)/6)
		out[i] = market.Bar{
			Date:   d,
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1_000_000 + float64(i)*1000,
		}
		d = d.AddDate(0, 0, -1)
	}
	return out
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
