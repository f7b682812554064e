package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/analysis"
)

const (
	yahooBaseURL   = "https://query2.finance.yahoo.com"
	yahooCookieURL = "https://fc.yahoo.com"

	summaryModules = "assetProfile,price,summaryDetail,defaultKeyStatistics,financialData"
)

// Yahoo reads the public Yahoo Finance JSON endpoints: chart for prices and
// dividends, quoteSummary for profiles, and fundamentals-timeseries for
// statements and EPS.
type Yahoo struct {
	fetcher   *Fetcher
	baseURL   string
	cookieURL string

	mu    sync.Mutex
	crumb string
}

// YahooOption configures a Yahoo source.
type YahooOption func(*Yahoo)

// WithYahooURLs overrides the API and cookie endpoints.
func WithYahooURLs(base, cookie string) YahooOption {
	return func(y *Yahoo) {
		y.baseURL = strings.TrimRight(base, "/")
		y.cookieURL = cookie
	}
}

// NewYahoo returns a Yahoo source using f.
func NewYahoo(f *Fetcher, opts ...YahooOption) *Yahoo {
	y := &Yahoo{fetcher: f, baseURL: yahooBaseURL, cookieURL: yahooCookieURL}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// History implements PriceSource.
func (y *Yahoo) History(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	body, err := y.chart(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(body, "chart.result.0")
	loc := exchangeLocation(res.Get("meta.exchangeTimezoneName").String())

	stamps := res.Get("timestamp").Array()
	quote := res.Get("indicators.quote.0")
	open, high := quote.Get("open").Array(), quote.Get("high").Array()
	low, cls := quote.Get("low").Array(), quote.Get("close").Array()
	vol := quote.Get("volume").Array()

	bars := make([]Bar, 0, len(stamps))
	for i, ts := range stamps {
		if i >= len(cls) || cls[i].Type != gjson.Number {
			continue
		}
		bars = append(bars, Bar{
			Date:   calendarDate(ts.Int(), loc),
			Open:   at(open, i),
			High:   at(high, i),
			Low:    at(low, i),
			Close:  cls[i].Float(),
			Volume: at(vol, i),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no prices for %s", ErrNoData, ticker)
	}
	return bars, nil
}

// Dividends implements FundamentalsSource.
func (y *Yahoo) Dividends(ctx context.Context, ticker string, start time.Time) ([]Dividend, error) {
	body, err := y.chart(ctx, ticker, start, time.Now())
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(body, "chart.result.0")
	loc := exchangeLocation(res.Get("meta.exchangeTimezoneName").String())

	var divs []Dividend
	res.Get("events.dividends").ForEach(func(_, v gjson.Result) bool {
		divs = append(divs, Dividend{
			Date:   calendarDate(v.Get("date").Int(), loc),
			Amount: v.Get("amount").Float(),
		})
		return true
	})
	slices.SortFunc(divs, func(a, b Dividend) int { return a.Date.Compare(b.Date) })
	return divs, nil
}

func (y *Yahoo) chart(ctx context.Context, ticker string, start, end time.Time) ([]byte, error) {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "div")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(ticker), q.Encode())

	body, err := y.fetcher.Get(ctx, u, nil)
	if err != nil {
		return nil, noData(ticker, err)
	}
	if e := gjson.GetBytes(body, "chart.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("%w: %s: %s", ErrNoData, ticker, e.Get("description").String())
	}
	return body, nil
}

// Profile implements ProfileSource.
func (y *Yahoo) Profile(ctx context.Context, ticker string) (*Profile, error) {
	q := url.Values{}
	q.Set("modules", summaryModules)
	body, err := y.withCrumb(ctx, fmt.Sprintf("%s/v10/finance/quoteSummary/%s", y.baseURL, url.PathEscape(ticker)), q)
	if err != nil {
		return nil, noData(ticker, err)
	}

	r := gjson.GetBytes(body, "quoteSummary.result.0")
	if !r.Exists() {
		return nil, fmt.Errorf("%w: no profile for %s", ErrNoData, ticker)
	}
	ap, pr := r.Get("assetProfile"), r.Get("price")
	sd, ks, fd := r.Get("summaryDetail"), r.Get("defaultKeyStatistics"), r.Get("financialData")

	p := &Profile{
		Name:     first(pr.Get("longName"), pr.Get("shortName")).String(),
		Sector:   ap.Get("sector").String(),
		Industry: ap.Get("industry").String(),
		Country:  ap.Get("country").String(),
		Website:  ap.Get("website").String(),
		Summary:  ap.Get("longBusinessSummary").String(),
		Employees: intRaw(ap.Get("fullTimeEmployees")),

		Price:          raw(first(fd.Get("currentPrice"), pr.Get("regularMarketPrice"))),
		PreviousClose:  raw(first(sd.Get("previousClose"), pr.Get("regularMarketPreviousClose"))),
		Open:           raw(first(sd.Get("open"), pr.Get("regularMarketOpen"))),
		DayLow:         raw(first(sd.Get("dayLow"), pr.Get("regularMarketDayLow"))),
		DayHigh:        raw(first(sd.Get("dayHigh"), pr.Get("regularMarketDayHigh"))),
		Week52Low:      raw(sd.Get("fiftyTwoWeekLow")),
		Week52High:     raw(sd.Get("fiftyTwoWeekHigh")),
		Volume:         raw(first(sd.Get("volume"), pr.Get("regularMarketVolume"))),
		AvgVolume:      raw(sd.Get("averageVolume")),
		MarketCap:      raw(first(sd.Get("marketCap"), pr.Get("marketCap"))),
		Beta:           raw(first(sd.Get("beta"), ks.Get("beta"))),
		TrailingPE:     raw(sd.Get("trailingPE")),
		TrailingEPS:    raw(ks.Get("trailingEps")),
		DividendYield:  raw(sd.Get("dividendYield")),
		DividendRate:   raw(sd.Get("dividendRate")),
		ExDividendDate: sd.Get("exDividendDate.fmt").String(),

		PriceToBook:       raw(ks.Get("priceToBook")),
		BookValue:         raw(ks.Get("bookValue")),
		DebtToEquity:      raw(fd.Get("debtToEquity")),
		ROE:               raw(fd.Get("returnOnEquity")),
		ProfitMargin:      raw(first(fd.Get("profitMargins"), ks.Get("profitMargins"))),
		SharesOutstanding: raw(ks.Get("sharesOutstanding")),

		TargetMean:     raw(fd.Get("targetMeanPrice")),
		TargetHigh:     raw(fd.Get("targetHighPrice")),
		TargetLow:      raw(fd.Get("targetLowPrice")),
		Recommendation: fd.Get("recommendationKey").String(),
		Analysts:       intRaw(fd.Get("numberOfAnalystOpinions")),
	}
	return p, nil
}

// Statements implements FundamentalsSource.
func (y *Yahoo) Statements(ctx context.Context, ticker string, period Period, n int) ([]Statement, error) {
	prefix := "annual"
	lookback := -6
	if period == Quarterly {
		prefix = "quarterly"
		lookback = -2
	}
	types := make([]string, len(StatementItems))
	for i, item := range StatementItems {
		types[i] = prefix + item
	}

	series, err := y.timeseries(ctx, ticker, types, time.Now().AddDate(lookback, 0, 0))
	if err != nil {
		return nil, err
	}

	byDate := map[string]*Statement{}
	for typ, points := range series {
		item := strings.TrimPrefix(typ, prefix)
		for _, pt := range points {
			key := pt.date.Format(time.DateOnly)
			st, ok := byDate[key]
			if !ok {
				st = &Statement{Date: pt.date, Values: map[string]float64{}}
				byDate[key] = st
			}
			st.Values[item] = pt.value
		}
	}

	out := make([]Statement, 0, len(byDate))
	for _, st := range byDate {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b Statement) int { return b.Date.Compare(a.Date) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Earnings implements FundamentalsSource.
func (y *Yahoo) Earnings(ctx context.Context, ticker string, start time.Time) ([]analysis.Earnings, error) {
	series, err := y.timeseries(ctx, ticker, []string{"quarterlyDilutedEPS"}, start)
	if err != nil {
		return nil, err
	}
	var out []analysis.Earnings
	for _, pt := range series["quarterlyDilutedEPS"] {
		out = append(out, analysis.Earnings{Date: pt.date, EPS: pt.value})
	}
	slices.SortFunc(out, func(a, b analysis.Earnings) int { return a.Date.Compare(b.Date) })
	return out, nil
}

type point struct {
	date  time.Time
	value float64
}

func (y *Yahoo) timeseries(ctx context.Context, ticker string, types []string, start time.Time) (map[string][]point, error) {
	q := url.Values{}
	q.Set("symbol", ticker)
	q.Set("type", strings.Join(types, ","))
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(time.Now().Unix(), 10))
	u := fmt.Sprintf("%s/ws/fundamentals-timeseries/v1/finance/timeseries/%s?%s", y.baseURL, url.PathEscape(ticker), q.Encode())

	body, err := y.fetcher.Get(ctx, u, nil)
	if err != nil {
		return nil, noData(ticker, err)
	}

	out := map[string][]point{}
	gjson.GetBytes(body, "timeseries.result").ForEach(func(_, r gjson.Result) bool {
		typ := r.Get("meta.type.0").String()
		if !slices.Contains(types, typ) {
			return true
		}
		r.Get(typ).ForEach(func(_, v gjson.Result) bool {
			val := v.Get("reportedValue.raw")
			d, err := time.Parse(time.DateOnly, v.Get("asOfDate").String())
			if err != nil || val.Type != gjson.Number {
				return true
			}
			out[typ] = append(out[typ], point{date: d, value: val.Float()})
			return true
		})
		return true
	})
	return out, nil
}

// withCrumb calls an endpoint that needs Yahoo's cookie and crumb pair,
// fetching a new crumb once if the current one is rejected.
func (y *Yahoo) withCrumb(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		crumb, err := y.ensureCrumb(ctx)
		if err != nil {
			return nil, err
		}
		q.Set("crumb", crumb)
		body, err := y.fetcher.Get(ctx, endpoint+"?"+q.Encode(), nil)
		if code := ai.StatusCodeOf(err); (code == http.StatusUnauthorized || code == http.StatusForbidden) && attempt == 0 {
			y.resetCrumb()
			continue
		}
		return body, err
	}
}

func (y *Yahoo) ensureCrumb(ctx context.Context) (string, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.crumb != "" {
		return y.crumb, nil
	}
	// The cookie endpoint answers 404 but sets the session cookie.
	if _, err := y.fetcher.Get(ctx, y.cookieURL, nil); err != nil && ai.StatusCodeOf(err) == 0 {
		return "", fmt.Errorf("market: yahoo cookie: %w", err)
	}
	body, err := y.fetcher.Get(ctx, y.baseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return "", fmt.Errorf("market: yahoo crumb: %w", err)
	}
	y.crumb = strings.TrimSpace(string(body))
	return y.crumb, nil
}

func (y *Yahoo) resetCrumb() {
	y.mu.Lock()
	y.crumb = ""
	y.mu.Unlock()
}

// noData maps "not found" style responses to ErrNoData.
func noData(ticker string, err error) error {
	if ai.IsUserInput(err) {
		return fmt.Errorf("%w: %s: %w", ErrNoData, ticker, err)
	}
	if errors.Is(err, ErrNoData) {
		return err
	}
	return fmt.Errorf("market: %s: %w", ticker, err)
}

func exchangeLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func calendarDate(unix int64, loc *time.Location) time.Time {
	t := time.Unix(unix, 0).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func at(arr []gjson.Result, i int) float64 {
	if i < len(arr) {
		return arr[i].Float()
	}
	return 0
}

func first(rs ...gjson.Result) gjson.Result {
	for _, r := range rs {
		if raw(r) != nil || (r.Type == gjson.String && r.String() != "") {
			return r
		}
	}
	return gjson.Result{}
}

// raw reads a quoteSummary value, which is either {"raw": n, "fmt": s} or a
// bare number.
func raw(r gjson.Result) *float64 {
	if v := r.Get("raw"); v.Type == gjson.Number {
		f := v.Float()
		return &f
	}
	if r.Type == gjson.Number {
		f := r.Float()
		return &f
	}
	return nil
}

func intRaw(r gjson.Result) *int64 {
	if f := raw(r); f != nil {
		n := int64(*f)
		return &n
	}
	return nil
}
