package stocktools

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/sourcegraph/conc/pool"

	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/tool"
)

const (
	defaultNewsResults   = 20
	defaultSearchResults = 10
	maxSearchResults     = 50
	maxSources           = 8
	maxSnippet           = 300
)

type newsArgs struct {
	Query      string `json:"query" desc:"搜索关键词，通常是股票相关的新闻或是希望查询的新闻内容" required:"true"`
	Period     string `json:"period" desc:"时间周期，例如'7d'表示7天内的新闻，默认7d" default:"7d"`
	MaxResults int    `json:"max_results" desc:"最多返回的新闻数量，默认20" default:"20"`
}

type articleSource struct {
	Name string `json:"name"`
}

type article struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
	PublishedAt string        `json:"publishedAt"`
	Source      articleSource `json:"source"`
}

func (t *toolset) news() tool.Tool {
	return tool.MustFunc(News,
		"获取相关的新闻报道",
		func(ctx context.Context, args newsArgs) (any, error) {
			query := strings.TrimSpace(args.Query)
			if query == "" {
				return nil, invalidf("query is required")
			}
			if t.src.News == nil {
				return nil, fmt.Errorf("%w: news", ErrUnavailable)
			}
			period := args.Period
			if _, ok := market.ParseLookback(period); !ok {
				period = market.DefaultNewsPeriod
			}
			limit := args.MaxResults
			if limit <= 0 {
				limit = defaultNewsResults
			}

			items, err := t.src.News.News(ctx, query, period, limit)
			if err != nil {
				return nil, err
			}
			out := make([]article, 0, len(items))
			for _, a := range items {
				var published string
				if !a.PublishedAt.IsZero() {
					published = a.PublishedAt.Format(time.RFC1123)
				}
				out = append(out, article{
					Title:       a.Title,
					Description: a.Description,
					URL:         a.URL,
					PublishedAt: published,
					Source:      articleSource{Name: a.Source},
				})
			}
			return out, nil
		}).WithNotice(func(a newsArgs) string {
		return fmt.Sprintf("📰 正在获取关于 %s 的最新新闻...", a.Query)
	})
}

type searchArgs struct {
	Query         string `json:"query" desc:"搜索查询关键词" required:"true"`
	SearchType    string `json:"search_type" desc:"搜索类型（可省略，默认general）：'general', 'news', 'finance', 'company', 'academic'" default:"general"`
	MaxResults    int    `json:"max_results" desc:"最大结果数量（可省略，默认10）" default:"10"`
	AnalysisFocus string `json:"analysis_focus" desc:"分析重点（可省略，默认general）：'investment_risk', 'market_trend', 'company_analysis', 'general'等" default:"general"`
}

// subQuery is one search issued for a search type, with the relevance score
// its hits receive.
type subQuery struct {
	query string
	max   int
	score float64
}

// searchPlan expands a query for the given search type. The base query is
// always searched first.
func searchPlan(query, searchType string, limit int) []subQuery {
	plan := []subQuery{{query: query, max: max(limit/2, 1), score: 0.8}}
	extra := func(score float64, n int, suffixes ...string) {
		for _, s := range suffixes {
			plan = append(plan, subQuery{query: query + " " + s, max: n, score: score})
		}
	}
	switch searchType {
	case "finance", "financial":
		extra(0.95, 2, "site:bloomberg.com", "site:reuters.com", "site:cnbc.com")
	case "news":
		extra(0.9, 3, "news", "latest news")
	case "company":
		extra(0.92, 2, "company profile", "investor relations", "annual report")
	case "academic":
		extra(0.88, 2, "site:scholar.google.com", "site:arxiv.org")
	}
	return plan
}

type scoredHit struct {
	market.SearchHit
	score float64
}

type searchSource struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Snippet        string  `json:"snippet"`
	SourceEngine   string  `json:"source_engine"`
	RelevanceScore float64 `json:"relevance_score"`
}

type searchMetadata struct {
	SearchType      string `json:"search_type"`
	AnalysisFocus   string `json:"analysis_focus"`
	TotalSources    int    `json:"total_sources"`
	SearchTimestamp string `json:"search_timestamp"`
	ProcessingTime  string `json:"processing_time"`
}

type searchAnalysis struct {
	ExecutiveSummary string         `json:"executive_summary"`
	KeyFindings      []string       `json:"key_findings"`
	CriticalData     map[string]int `json:"critical_data"`
	MarketImpact     map[string]any `json:"market_impact"`
	RisksOpportunity map[string]any `json:"risks_opportunities"`
	ActionItems      []string       `json:"action_items"`
	CredibilityScore float64        `json:"credibility_score"`
	ConfidenceLevel  string         `json:"confidence_level"`
}

type qualityMetrics struct {
	SourceDiversity      int     `json:"source_diversity"`
	AvgRelevance         float64 `json:"avg_relevance"`
	HighQualitySources   int     `json:"high_quality_sources"`
	AnalysisCompleteness string  `json:"analysis_completeness"`
}

type searchResult struct {
	Status   string         `json:"status"`
	Query    string         `json:"query"`
	Metadata searchMetadata `json:"search_metadata"`
	Analysis searchAnalysis `json:"analysis"`
	Sources  []searchSource `json:"sources"`
	Quality  qualityMetrics `json:"quality_metrics"`
}

type searchEmpty struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Query     string `json:"query"`
	Timestamp string `json:"timestamp"`
}

var searchTypes = []string{"general", "news", "finance", "financial", "company", "academic"}

func (t *toolset) searchWeb() tool.Tool {
	return tool.MustFunc(SearchWeb,
		"搜索网络信息并进行关键词总结分析",
		func(ctx context.Context, args searchArgs) (any, error) {
			query := strings.TrimSpace(args.Query)
			if query == "" {
				return nil, invalidf("query is required")
			}
			searchType := strings.ToLower(strings.TrimSpace(args.SearchType))
			if searchType == "" {
				searchType = "general"
			}
			if !slices.Contains(searchTypes, searchType) {
				return nil, invalidf("search_type %q is not one of %s", args.SearchType, strings.Join(searchTypes, ", "))
			}
			limit := args.MaxResults
			if limit <= 0 {
				limit = defaultSearchResults
			}
			limit = min(limit, maxSearchResults)
			focus := args.AnalysisFocus
			if focus == "" {
				focus = "general"
			}
			if t.src.Search == nil {
				return nil, fmt.Errorf("%w: search", ErrUnavailable)
			}

			hits, err := t.runSearches(ctx, searchPlan(query, searchType, limit))
			if err != nil {
				return nil, err
			}
			hits = rankHits(hits, limit)
			now := t.now()
			if len(hits) == 0 {
				return searchEmpty{
					Status:    "error",
					Message:   "未找到相关搜索结果",
					Query:     query,
					Timestamp: now.Format(time.RFC3339),
				}, nil
			}
			analysis := analyzeHits(query, hits)
			return searchResult{
				Status: "success",
				Query:  query,
				Metadata: searchMetadata{
					SearchType:      searchType,
					AnalysisFocus:   focus,
					TotalSources:    len(hits),
					SearchTimestamp: now.Format(time.RFC3339),
					ProcessingTime:  "完成",
				},
				Analysis: analysis,
				Sources:  sourcesOf(hits),
				Quality:  quality(hits, len(analysis.KeyFindings)),
			}, nil
		}).WithNotice(func(a searchArgs) string {
		return fmt.Sprintf("🔍 正在搜索网络信息: %s...", a.Query)
	})
}

// runSearches issues the sub-queries concurrently and returns their hits in
// plan order. A failing sub-query is logged and skipped unless all fail.
func (t *toolset) runSearches(ctx context.Context, plan []subQuery) ([]scoredHit, error) {
	batches := make([][]scoredHit, len(plan))
	errs := make([]error, len(plan))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(3)
	for i, sq := range plan {
		p.Go(func(ctx context.Context) error {
			hits, err := t.src.Search.Search(ctx, sq.query, sq.max)
			if err != nil {
				t.logger.Warn("search failed", "query", sq.query, "error", err)
				errs[i] = err
				return nil
			}
			batches[i] = make([]scoredHit, len(hits))
			for j, h := range hits {
				batches[i][j] = scoredHit{SearchHit: h, score: sq.score}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all []scoredHit
	for _, b := range batches {
		all = append(all, b...)
	}
	if len(all) == 0 && !slices.Contains(errs, nil) {
		return nil, errs[0]
	}
	return all, nil
}

// rankHits drops duplicate URLs, keeping the first occurrence, then orders
// by score and truncates to limit.
func rankHits(hits []scoredHit, limit int) []scoredHit {
	seen := map[string]bool{}
	var out []scoredHit
	for _, h := range hits {
		key := normalizeURL(h.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	slices.SortStableFunc(out, func(a, b scoredHit) int { return cmp.Compare(b.score, a.score) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func normalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "have": true, "has": true, "had": true,
}

// analyzeHits is a keyword frequency summary of the titles and snippets.
func analyzeHits(query string, hits []scoredHit) searchAnalysis {
	var words []string
	for _, h := range hits {
		text := strings.ToLower(h.Title + " " + h.Snippet)
		words = append(words, strings.FieldsFunc(text, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})...)
	}

	counts := map[string]int{}
	var order []string
	for _, w := range words {
		if len([]rune(w)) <= 3 || stopWords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	slices.SortStableFunc(order, func(a, b string) int { return cmp.Compare(counts[b], counts[a]) })

	findings := []string{}
	for _, w := range order[:min(5, len(order))] {
		findings = append(findings, fmt.Sprintf("高频关键词: %s (出现%d次)", w, counts[w]))
	}
	return searchAnalysis{
		ExecutiveSummary: "基于网络搜索结果的基础分析，查询关键词: " + query,
		KeyFindings:      findings,
		CriticalData:     map[string]int{"总字数": len(words), "唯一词汇数": len(counts)},
		MarketImpact:     map[string]any{},
		RisksOpportunity: map[string]any{},
		ActionItems:      []string{},
		CredibilityScore: 0.6,
		ConfidenceLevel:  "low",
	}
}

func sourcesOf(hits []scoredHit) []searchSource {
	out := make([]searchSource, 0, min(maxSources, len(hits)))
	for _, h := range hits[:min(maxSources, len(hits))] {
		snippet := h.Snippet
		if r := []rune(snippet); len(r) > maxSnippet {
			snippet = string(r[:maxSnippet]) + "..."
		}
		out = append(out, searchSource{
			Title:          h.Title,
			URL:            h.URL,
			Snippet:        snippet,
			SourceEngine:   h.Engine,
			RelevanceScore: h.score,
		})
	}
	return out
}

func quality(hits []scoredHit, findings int) qualityMetrics {
	engines := map[string]bool{}
	var total float64
	var high int
	for _, h := range hits {
		engines[h.Engine] = true
		total += h.score
		if h.score > 0.8 {
			high++
		}
	}
	completeness := "medium"
	if findings >= 3 {
		completeness = "high"
	}
	return qualityMetrics{
		SourceDiversity:      len(engines),
		AvgRelevance:         total / float64(len(hits)),
		HighQualitySources:   high,
		AnalysisCompleteness: completeness,
	}
}
