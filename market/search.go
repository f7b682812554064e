package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// DuckDuckGo runs searches against the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	fetcher *Fetcher
	baseURL string
}

// NewDuckDuckGo returns a DuckDuckGo source. An empty baseURL uses
// https://html.duckduckgo.com.
func NewDuckDuckGo(f *Fetcher, baseURL string) *DuckDuckGo {
	if baseURL == "" {
		baseURL = "https://html.duckduckgo.com"
	}
	return &DuckDuckGo{fetcher: f, baseURL: strings.TrimRight(baseURL, "/")}
}

// Search implements SearchSource.
func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]SearchHit, error) {
	q := url.Values{}
	q.Set("q", query)
	body, err := d.fetcher.Get(ctx, d.baseURL+"/html/?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("market: duckduckgo: %w", err)
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("market: duckduckgo: parse: %w", err)
	}

	var hits []SearchHit
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if max > 0 && len(hits) >= max {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result--ad"):
				return
			case hasClass(n, "result__a"):
				if u := resultURL(attr(n, "href")); u != "" {
					hits = append(hits, SearchHit{Title: nodeText(n), URL: u, Engine: "DuckDuckGo"})
				}
				return
			case hasClass(n, "result__snippet"):
				if len(hits) > 0 && hits[len(hits)-1].Snippet == "" {
					hits[len(hits)-1].Snippet = nodeText(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hits, nil
}

// resultURL unwraps DuckDuckGo's redirect links.
func resultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") || u.Host == "" {
		return ""
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(spaces.ReplaceAllString(b.String(), " "))
}
