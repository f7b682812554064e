package stocktools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/tool"
)

// Tool names.
const (
	HistoricalData      = "get_historical_data"
	FinancialStatements = "get_financial_statements"
	News                = "get_news"
	TechnicalIndicators = "calculate_technical_indicators"
	StockInfo           = "get_stock_info"
	HistoricalPE        = "get_historical_pe_eps"
	SearchWeb           = "search_web_info"
	EvaluateValuation   = "evaluate_valuation"
)

const na = "N/A"

var (
	// ErrInvalidArgument is wrapped by every argument validation failure.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnavailable is returned when the source a tool needs is not configured.
	ErrUnavailable = errors.New("data source unavailable")
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-^=]{0,14}$`)

// Option configures the tool set.
type Option func(*toolset)

// WithClock sets the time source used for default date ranges.
func WithClock(now func() time.Time) Option {
	return func(t *toolset) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *toolset) {
		if l != nil {
			t.logger = l
		}
	}
}

type toolset struct {
	src    market.Sources
	now    func() time.Time
	logger *slog.Logger
}

// Tools returns every stock tool backed by src, in catalogue order.
func Tools(src market.Sources, opts ...Option) []tool.Tool {
	ts := &toolset{src: src, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(ts)
	}
	return []tool.Tool{
		ts.historicalData(),
		ts.financialStatements(),
		ts.news(),
		ts.technicalIndicators(),
		ts.stockInfo(),
		ts.historicalPE(),
		ts.searchWeb(),
		ts.valuation(),
	}
}

// NewRegistry returns a registry holding every stock tool.
func NewRegistry(src market.Sources, opts ...Option) *tool.Registry {
	reg := tool.NewRegistry()
	ts := &toolset{logger: slog.Default()}
	for _, opt := range opts {
		opt(ts)
	}
	reg.WithLogger(ts.logger)
	reg.MustRegister(Tools(src, opts...)...)
	return reg
}

func invalidf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, a...))
}

func parseTicker(s string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return "", invalidf("ticker is required")
	}
	if !tickerPattern.MatchString(t) {
		return "", invalidf("ticker %q is not a valid symbol", s)
	}
	return t, nil
}

func parseDate(field, s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalidf("%s must be YYYY-MM-DD, got %q", field, s)
	}
	return d, nil
}

// dateRange parses an inclusive range. An empty end means today.
func (t *toolset) dateRange(start, end string) (time.Time, time.Time, error) {
	from, err := parseDate("start_date", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to := t.today()
	if strings.TrimSpace(end) != "" {
		if to, err = parseDate("end_date", end); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, invalidf("start_date %s is after end_date %s", start, end)
	}
	return from, to, nil
}

func (t *toolset) today() time.Time {
	n := t.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// history fetches bars dated within [from, to], both inclusive.
func (t *toolset) history(ctx context.Context, ticker string, from, to time.Time) ([]market.Bar, error) {
	if t.src.Prices == nil {
		return nil, fmt.Errorf("%w: prices", ErrUnavailable)
	}
	return t.src.Prices.History(ctx, ticker, from, to.AddDate(0, 0, 1))
}

func noData(err error) error {
	if errors.Is(err, market.ErrNoData) {
		return fmt.Errorf("未获取到数据: %w", err)
	}
	return err
}

func orNA(v *float64) any {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return na
	}
	return *v
}

func intOrNA(v *int64) any {
	if v == nil {
		return na
	}
	return *v
}

func strOrNA(s string) any {
	if s == "" {
		return na
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
