package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spetersoncode/stockagent/analysis"
	"github.com/spetersoncode/stockagent/internal/store"
)

// Cached decorates sources with a response cache so repeated tool calls in
// one conversation, or across concurrent ones, hit upstream once.
type Cached struct {
	src Sources

	bars       *store.Cache[[]Bar]
	profiles   *store.Cache[*Profile]
	statements *store.Cache[[]Statement]
	earnings   *store.Cache[[]analysis.Earnings]
	dividends  *store.Cache[[]Dividend]
	news       *store.Cache[[]Article]
	search     *store.Cache[[]SearchHit]
}

// NewCached wraps src with caches on adapter that expire after ttl.
func NewCached(src Sources, adapter store.Adapter, ttl time.Duration) *Cached {
	return &Cached{
		src:        src,
		bars:       store.NewCache[[]Bar](adapter, "bars", ttl),
		profiles:   store.NewCache[*Profile](adapter, "profile", ttl),
		statements: store.NewCache[[]Statement](adapter, "statements", ttl),
		earnings:   store.NewCache[[]analysis.Earnings](adapter, "earnings", ttl),
		dividends:  store.NewCache[[]Dividend](adapter, "dividends", ttl),
		news:       store.NewCache[[]Article](adapter, "news", ttl),
		search:     store.NewCache[[]SearchHit](adapter, "search", ttl),
	}
}

// Sources returns the cached sources. Sources missing from the wrapped set
// stay nil.
func (c *Cached) Sources() Sources {
	var s Sources
	if c.src.Prices != nil {
		s.Prices = cachedPrices{c}
	}
	if c.src.Profiles != nil {
		s.Profiles = cachedProfiles{c}
	}
	if c.src.Fundamentals != nil {
		s.Fundamentals = cachedFundamentals{c}
	}
	if c.src.News != nil {
		s.News = cachedNews{c}
	}
	if c.src.Search != nil {
		s.Search = cachedSearch{c}
	}
	return s
}

func day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

type cachedPrices struct{ c *Cached }

func (p cachedPrices) History(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	key := fmt.Sprintf("%s:%s:%s", strings.ToUpper(ticker), day(start), day(end))
	return p.c.bars.GetOrLoad(ctx, key, func(ctx context.Context) ([]Bar, error) {
		return p.c.src.Prices.History(ctx, ticker, start, end)
	})
}

type cachedProfiles struct{ c *Cached }

func (p cachedProfiles) Profile(ctx context.Context, ticker string) (*Profile, error) {
	return p.c.profiles.GetOrLoad(ctx, strings.ToUpper(ticker), func(ctx context.Context) (*Profile, error) {
		return p.c.src.Profiles.Profile(ctx, ticker)
	})
}

type cachedFundamentals struct{ c *Cached }

func (f cachedFundamentals) Statements(ctx context.Context, ticker string, period Period, n int) ([]Statement, error) {
	key := fmt.Sprintf("%s:%s:%d", strings.ToUpper(ticker), period, n)
	return f.c.statements.GetOrLoad(ctx, key, func(ctx context.Context) ([]Statement, error) {
		return f.c.src.Fundamentals.Statements(ctx, ticker, period, n)
	})
}

func (f cachedFundamentals) Earnings(ctx context.Context, ticker string, start time.Time) ([]analysis.Earnings, error) {
	key := fmt.Sprintf("%s:%s", strings.ToUpper(ticker), day(start))
	return f.c.earnings.GetOrLoad(ctx, key, func(ctx context.Context) ([]analysis.Earnings, error) {
		return f.c.src.Fundamentals.Earnings(ctx, ticker, start)
	})
}

func (f cachedFundamentals) Dividends(ctx context.Context, ticker string, start time.Time) ([]Dividend, error) {
	key := fmt.Sprintf("%s:%s", strings.ToUpper(ticker), day(start))
	return f.c.dividends.GetOrLoad(ctx, key, func(ctx context.Context) ([]Dividend, error) {
		return f.c.src.Fundamentals.Dividends(ctx, ticker, start)
	})
}

type cachedNews struct{ c *Cached }

func (n cachedNews) News(ctx context.Context, query, period string, max int) ([]Article, error) {
	key := fmt.Sprintf("%s:%s:%d", strings.ToLower(query), period, max)
	return n.c.news.GetOrLoad(ctx, key, func(ctx context.Context) ([]Article, error) {
		return n.c.src.News.News(ctx, query, period, max)
	})
}

type cachedSearch struct{ c *Cached }

func (s cachedSearch) Search(ctx context.Context, query string, max int) ([]SearchHit, error) {
	key := fmt.Sprintf("%s:%d", strings.ToLower(query), max)
	return s.c.search.GetOrLoad(ctx, key, func(ctx context.Context) ([]SearchHit, error) {
		return s.c.src.Search.Search(ctx, query, max)
	})
}
