package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/tidwall/gjson"
)

// DefaultNewsPeriod is the lookback used when none or an invalid one is given.
const DefaultNewsPeriod = "7d"

// GoogleNews searches the Google News RSS feed for English, US-edition news.
type GoogleNews struct {
	fetcher *Fetcher
	baseURL string
	parser  *gofeed.Parser
}

// NewGoogleNews returns a GoogleNews source. An empty baseURL uses
// https://news.google.com.
func NewGoogleNews(f *Fetcher, baseURL string) *GoogleNews {
	if baseURL == "" {
		baseURL = "https://news.google.com"
	}
	return &GoogleNews{fetcher: f, baseURL: strings.TrimRight(baseURL, "/"), parser: gofeed.NewParser()}
}

// News implements NewsSource.
func (g *GoogleNews) News(ctx context.Context, query, period string, max int) ([]Article, error) {
	if _, ok := ParseLookback(period); !ok {
		period = DefaultNewsPeriod
	}
	q := url.Values{}
	q.Set("q", query+" when:"+period)
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")

	body, err := g.fetcher.Get(ctx, g.baseURL+"/rss/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("market: google news: %w", err)
	}
	feed, err := g.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("market: google news feed: %w", err)
	}

	out := make([]Article, 0, min(len(feed.Items), max))
	for _, item := range feed.Items {
		if max > 0 && len(out) >= max {
			break
		}
		title, source := splitPublisher(item.Title)
		a := Article{
			Title:       title,
			Description: htmlText(item.Description),
			URL:         item.Link,
			Source:      source,
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = item.PublishedParsed.UTC()
		}
		out = append(out, a)
	}
	return out, nil
}

// splitPublisher separates Google News' "Headline - Publisher" titles.
func splitPublisher(title string) (string, string) {
	i := strings.LastIndex(title, " - ")
	if i <= 0 {
		return title, ""
	}
	return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+3:])
}

// NewsAPI searches newsapi.org. It needs an API key.
type NewsAPI struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
	now     func() time.Time
}

// NewNewsAPI returns a NewsAPI source. An empty baseURL uses
// https://newsapi.org.
func NewNewsAPI(f *Fetcher, apiKey, baseURL string) *NewsAPI {
	if baseURL == "" {
		baseURL = "https://newsapi.org"
	}
	return &NewsAPI{fetcher: f, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, now: time.Now}
}

// News implements NewsSource.
func (n *NewsAPI) News(ctx context.Context, query, period string, max int) ([]Article, error) {
	if n.apiKey == "" {
		return nil, fmt.Errorf("%w: NEWS_API_KEY is not set", ErrNotConfigured)
	}
	d, ok := ParseLookback(period)
	if !ok {
		d, _ = ParseLookback(DefaultNewsPeriod)
	}
	if max <= 0 || max > 100 {
		max = 100
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("from", n.now().Add(-d).UTC().Format(time.RFC3339))
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(max))

	body, err := n.fetcher.Get(ctx, n.baseURL+"/v2/everything?"+q.Encode(), http.Header{"X-Api-Key": {n.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("market: newsapi: %w", err)
	}
	if s := gjson.GetBytes(body, "status").String(); s != "ok" {
		return nil, fmt.Errorf("market: newsapi: %s", gjson.GetBytes(body, "message").String())
	}

	var out []Article
	gjson.GetBytes(body, "articles").ForEach(func(_, v gjson.Result) bool {
		a := Article{
			Title:       v.Get("title").String(),
			Description: v.Get("description").String(),
			URL:         v.Get("url").String(),
			Source:      v.Get("source.name").String(),
		}
		if t, err := time.Parse(time.RFC3339, v.Get("publishedAt").String()); err == nil {
			a.PublishedAt = t.UTC()
		}
		out = append(out, a)
		return true
	})
	return out, nil
}

// FallbackNews tries each source in order and returns the first success.
type FallbackNews []NewsSource

// News implements NewsSource.
func (f FallbackNews) News(ctx context.Context, query, period string, max int) ([]Article, error) {
	var errs []error
	for _, src := range f {
		if src == nil {
			continue
		}
		articles, err := src.News(ctx, query, period, max)
		if err == nil {
			return articles, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNotConfigured
	}
	return nil, errors.Join(errs...)
}
