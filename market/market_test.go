package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/internal/retry"
	"github.com/spetersoncode/stockagent/internal/store"
)

func testFetcher() *Fetcher {
	return NewFetcher(
		WithRateLimit(0, 0),
		WithRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}),
	)
}

func TestFetcherStatusHandling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch r.URL.Path {
		case "/flaky":
			if n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, "ok")
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/ua":
			fmt.Fprint(w, r.Header.Get("User-Agent"), "|", r.Header.Get("X-Api-Key"))
		}
	}))
	defer srv.Close()
	f := testFetcher()
	ctx := context.Background()

	body, err := f.Get(ctx, srv.URL+"/flaky", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	_, err = f.Get(ctx, srv.URL+"/missing", nil)
	require.Error(t, err)
	assert.True(t, ai.IsUserInput(err))
	assert.Equal(t, http.StatusNotFound, ai.StatusCodeOf(err))
	assert.Equal(t, int32(1), calls.Load())

	body, err = f.Get(ctx, srv.URL+"/ua", http.Header{"X-Api-Key": {"k"}})
	require.NoError(t, err)
	assert.Equal(t, defaultUserAgent+"|k", string(body))
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Zero(t, parseRetryAfter(resp))
	resp.Header.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, parseRetryAfter(resp))
	resp.Header.Set("Retry-After", "soon")
	assert.Zero(t, parseRetryAfter(resp))
}

func TestParseLookback(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"7d", 7 * 24 * time.Hour, true},
		{"12h", 12 * time.Hour, true},
		{"1m", 30 * 24 * time.Hour, true},
		{"1Y", 365 * 24 * time.Hour, true},
		{"", 0, false},
		{"0d", 0, false},
		{"week", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLookback(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

const chartJSON = `{"chart":{"result":[{
	"meta":{"symbol":"TSLA","exchangeTimezoneName":"America/New_York"},
	"timestamp":[1759325400,1759411800,1759498200],
	"events":{"dividends":{"1759411800":{"amount":0.25,"date":1759411800}}},
	"indicators":{"quote":[{
		"open":[440.1,null,436.5],
		"high":[445.0,null,440.2],
		"low":[438.0,null,430.9],
		"close":[444.7,null,436.0],
		"volume":[100,null,300]
	}]}
}],"error":null}}`

const summaryJSON = `{"quoteSummary":{"result":[{
	"assetProfile":{"sector":"Consumer Cyclical","industry":"Auto Manufacturers","country":"United States","website":"https://www.tesla.com","longBusinessSummary":"Tesla designs EVs.","fullTimeEmployees":125665},
	"price":{"longName":"Tesla, Inc.","regularMarketPrice":{"raw":436.0,"fmt":"436.00"},"marketCap":{"raw":1.4e12}},
	"summaryDetail":{"previousClose":{"raw":444.7},"fiftyTwoWeekLow":{"raw":214.25},"fiftyTwoWeekHigh":{"raw":488.54},"beta":{"raw":2.3},"trailingPE":{"raw":250.1},"exDividendDate":{}},
	"defaultKeyStatistics":{"trailingEps":{"raw":1.74},"priceToBook":{"raw":17.5},"bookValue":{"raw":24.9},"sharesOutstanding":{"raw":3.2e9}},
	"financialData":{"currentPrice":{"raw":436.5},"targetMeanPrice":{"raw":350.0},"recommendationKey":"hold","numberOfAnalystOpinions":{"raw":40},"returnOnEquity":{"raw":0.08}}
}],"error":null}}`

const timeseriesJSON = `{"timeseries":{"result":[
	{"meta":{"type":["annualTotalRevenue"]},"annualTotalRevenue":[
		{"asOfDate":"2023-12-31","reportedValue":{"raw":96773000000}},
		{"asOfDate":"2024-12-31","reportedValue":{"raw":97690000000}},
		null]},
	{"meta":{"type":["annualNetIncome"]},"annualNetIncome":[
		{"asOfDate":"2023-12-31","reportedValue":{"raw":14997000000}},
		{"asOfDate":"2024-12-31","reportedValue":{"raw":7091000000}}]},
	{"meta":{"type":["quarterlyDilutedEPS"]},"quarterlyDilutedEPS":[
		{"asOfDate":"2025-06-30","reportedValue":{"raw":0.33}},
		{"asOfDate":"2025-03-31","reportedValue":{"raw":0.12}}]}
],"error":null}}`

func yahooServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var crumbs atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/cookie":
			http.SetCookie(w, &http.Cookie{Name: "A3", Value: "session"})
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/v1/test/getcrumb":
			if _, err := r.Cookie("A3"); err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			crumbs.Add(1)
			fmt.Fprint(w, "crumb-1")
		case r.URL.Path == "/v8/finance/chart/TSLA":
			fmt.Fprint(w, chartJSON)
		case r.URL.Path == "/v8/finance/chart/NOPE":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
		case r.URL.Path == "/v10/finance/quoteSummary/TSLA":
			if r.URL.Query().Get("crumb") != "crumb-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, summaryJSON)
		case strings.HasPrefix(r.URL.Path, "/ws/fundamentals-timeseries/"):
			fmt.Fprint(w, timeseriesJSON)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &crumbs
}

func TestYahooHistory(t *testing.T) {
	srv, _ := yahooServer(t)
	y := NewYahoo(testFetcher(), WithYahooURLs(srv.URL, srv.URL+"/cookie"))
	ctx := context.Background()

	bars, err := y.History(ctx, "TSLA", time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2025-10-01", bars[0].Date.Format(time.DateOnly))
	assert.Equal(t, 444.7, bars[0].Close)
	assert.Equal(t, "2025-10-03", bars[1].Date.Format(time.DateOnly))
	assert.Equal(t, 300.0, bars[1].Volume)

	_, err = y.History(ctx, "NOPE", time.Now().AddDate(0, -1, 0), time.Now())
	assert.ErrorIs(t, err, ErrNoData)

	divs, err := y.Dividends(ctx, "TSLA", time.Now().AddDate(-1, 0, 0))
	require.NoError(t, err)
	require.Len(t, divs, 1)
	assert.Equal(t, 0.25, divs[0].Amount)
}

func TestYahooProfile(t *testing.T) {
	srv, crumbs := yahooServer(t)
	y := NewYahoo(testFetcher(), WithYahooURLs(srv.URL, srv.URL+"/cookie"))

	p, err := y.Profile(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, "Tesla, Inc.", p.Name)
	assert.Equal(t, "Consumer Cyclical", p.Sector)
	require.NotNil(t, p.Employees)
	assert.Equal(t, int64(125665), *p.Employees)
	require.NotNil(t, p.Price)
	assert.Equal(t, 436.5, *p.Price)
	assert.Equal(t, 1.4e12, *p.MarketCap)
	assert.Equal(t, 1.74, *p.TrailingEPS)
	assert.Equal(t, "hold", p.Recommendation)
	assert.Equal(t, int64(40), *p.Analysts)
	assert.Nil(t, p.DividendYield)
	assert.Empty(t, p.ExDividendDate)
	assert.False(t, p.Empty())

	_, err = y.Profile(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, int32(1), crumbs.Load())
}

func TestYahooStatementsAndEarnings(t *testing.T) {
	srv, _ := yahooServer(t)
	y := NewYahoo(testFetcher(), WithYahooURLs(srv.URL, srv.URL+"/cookie"))
	ctx := context.Background()

	sts, err := y.Statements(ctx, "TSLA", Annual, 5)
	require.NoError(t, err)
	require.Len(t, sts, 2)
	assert.Equal(t, "2024-12-31", sts[0].Date.Format(time.DateOnly))
	assert.Equal(t, 97690000000.0, sts[0].Values[TotalRevenue])
	assert.Equal(t, 7091000000.0, sts[0].Values[NetIncome])

	one, err := y.Statements(ctx, "TSLA", Annual, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	eps, err := y.Earnings(ctx, "TSLA", time.Now().AddDate(-1, 0, 0))
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, 0.12, eps[0].EPS)
	assert.Equal(t, 0.33, eps[1].EPS)
}

const rssXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>news</title>
<item><title>Tesla deliveries beat estimates - Reuters</title><link>https://example.com/a</link>
<pubDate>Thu, 02 Oct 2025 14:00:00 GMT</pubDate>
<description>&lt;a href="https://example.com/a"&gt;Tesla deliveries beat estimates&lt;/a&gt;</description>
<source url="https://www.reuters.com">Reuters</source></item>
<item><title>Second story</title><link>https://example.com/b</link></item>
</channel></rss>`

func TestGoogleNews(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		fmt.Fprint(w, rssXML)
	}))
	defer srv.Close()

	g := NewGoogleNews(testFetcher(), srv.URL)
	articles, err := g.News(context.Background(), "Tesla", "bogus", 20)
	require.NoError(t, err)
	assert.Equal(t, "Tesla when:7d", query)
	require.Len(t, articles, 2)
	assert.Equal(t, "Tesla deliveries beat estimates", articles[0].Title)
	assert.Equal(t, "Reuters", articles[0].Source)
	assert.Equal(t, "Tesla deliveries beat estimates", articles[0].Description)
	assert.Equal(t, 2025, articles[0].PublishedAt.Year())
	assert.Equal(t, "", articles[1].Source)

	limited, err := g.News(context.Background(), "Tesla", "1d", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
	assert.Equal(t, "Tesla when:1d", query)
}

func TestNewsAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"status":"error","message":"bad key"}`)
			return
		}
		fmt.Fprint(w, `{"status":"ok","articles":[{"title":"T","description":"D","url":"https://x","publishedAt":"2025-10-02T10:00:00Z","source":{"name":"CNBC"}}]}`)
	}))
	defer srv.Close()
	ctx := context.Background()

	_, err := NewNewsAPI(testFetcher(), "", srv.URL).News(ctx, "Tesla", "7d", 10)
	assert.ErrorIs(t, err, ErrNotConfigured)

	articles, err := NewNewsAPI(testFetcher(), "key", srv.URL).News(ctx, "Tesla", "7d", 10)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "CNBC", articles[0].Source)

	_, err = NewNewsAPI(testFetcher(), "wrong", srv.URL).News(ctx, "Tesla", "7d", 10)
	assert.Error(t, err)
}

type stubNews struct {
	articles []Article
	err      error
}

func (s stubNews) News(context.Context, string, string, int) ([]Article, error) {
	return s.articles, s.err
}

func TestFallbackNews(t *testing.T) {
	ctx := context.Background()
	got, err := FallbackNews{stubNews{err: ErrNotConfigured}, stubNews{articles: []Article{{Title: "x"}}}}.News(ctx, "q", "7d", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = FallbackNews{stubNews{err: ErrNoData}}.News(ctx, "q", "7d", 5)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = FallbackNews{}.News(ctx, "q", "7d", 5)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

const ddgHTML = `<html><body>
<div class="result results_links result--ad"><a class="result__a" href="https://duckduckgo.com/y.js?ad=1">Sponsored</a></div>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.reuters.com%2Ftesla&amp;rut=x">Tesla <b>Q3</b> results</a></h2>
  <a class="result__snippet" href="#">Tesla reported   third-quarter revenue.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://www.cnbc.com/tesla">CNBC Tesla</a>
  <a class="result__snippet">Shares moved.</a>
</div>
</body></html>`

func TestDuckDuckGo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tesla q3", r.URL.Query().Get("q"))
		fmt.Fprint(w, ddgHTML)
	}))
	defer srv.Close()

	hits, err := NewDuckDuckGo(testFetcher(), srv.URL).Search(context.Background(), "tesla q3", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, SearchHit{
		Title:   "Tesla Q3 results",
		URL:     "https://www.reuters.com/tesla",
		Snippet: "Tesla reported third-quarter revenue.",
		Engine:  "DuckDuckGo",
	}, hits[0])
	assert.Equal(t, "https://www.cnbc.com/tesla", hits[1].URL)

	one, err := NewDuckDuckGo(testFetcher(), srv.URL).Search(context.Background(), "tesla q3", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

type countingPrices struct{ calls atomic.Int32 }

func (c *countingPrices) History(_ context.Context, ticker string, start, _ time.Time) ([]Bar, error) {
	c.calls.Add(1)
	return []Bar{{Date: start, Close: 1}}, nil
}

func TestCached(t *testing.T) {
	prices := &countingPrices{}
	cached := NewCached(Sources{Prices: prices}, store.NewMemoryAdapter(), time.Minute).Sources()
	assert.Nil(t, cached.News)

	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	for range 3 {
		bars, err := cached.Prices.History(context.Background(), "tsla", start, end)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.True(t, bars[0].Date.Equal(start))
	}
	_, err := cached.Prices.History(context.Background(), "TSLA", start, end)
	require.NoError(t, err)
	assert.Equal(t, int32(1), prices.calls.Load())

	_, err = cached.Prices.History(context.Background(), "TSLA", start, end.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), prices.calls.Load())
}

func TestToSeries(t *testing.T) {
	d := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	s := ToSeries([]Bar{{Date: d, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}})
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []float64{1.5}, s.Close)
	assert.Equal(t, d, s.Dates[0])
}
