package market

import (
	"context"
	"time"

	"github.com/spetersoncode/stockagent/analysis"
)

// PriceSource returns daily bars in [start, end), oldest first.
type PriceSource interface {
	History(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error)
}

// ProfileSource returns company and quote data.
type ProfileSource interface {
	Profile(ctx context.Context, ticker string) (*Profile, error)
}

// FundamentalsSource returns reported financials.
type FundamentalsSource interface {
	// Statements returns up to n periods, most recent first.
	Statements(ctx context.Context, ticker string, period Period, n int) ([]Statement, error)
	// Earnings returns quarterly diluted EPS reported since start.
	Earnings(ctx context.Context, ticker string, start time.Time) ([]analysis.Earnings, error)
	// Dividends returns cash dividends paid since start, oldest first.
	Dividends(ctx context.Context, ticker string, start time.Time) ([]Dividend, error)
}

// NewsSource searches recent news. period is a lookback such as "7d".
type NewsSource interface {
	News(ctx context.Context, query, period string, max int) ([]Article, error)
}

// SearchSource runs a web search.
type SearchSource interface {
	Search(ctx context.Context, query string, max int) ([]SearchHit, error)
}

// Sources bundles everything the stock tools need.
type Sources struct {
	Prices       PriceSource
	Profiles     ProfileSource
	Fundamentals FundamentalsSource
	News         NewsSource
	Search       SearchSource
}

// NewSources wires the public sources on one fetcher. News comes from
// NewsAPI when newsAPIKey is set, falling back to Google News.
func NewSources(f *Fetcher, newsAPIKey string) Sources {
	yahoo := NewYahoo(f)
	var news NewsSource = NewGoogleNews(f, "")
	if newsAPIKey != "" {
		news = FallbackNews{NewNewsAPI(f, newsAPIKey, ""), news}
	}
	return Sources{
		Prices:       yahoo,
		Profiles:     yahoo,
		Fundamentals: yahoo,
		News:         news,
		Search:       NewDuckDuckGo(f, ""),
	}
}
