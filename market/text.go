package market

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var spaces = regexp.MustCompile(`\s+`)

// htmlText returns the visible text of an HTML fragment with whitespace
// collapsed.
func htmlText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(spaces.ReplaceAllString(b.String(), " "))
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}

var lookback = regexp.MustCompile(`^(\d+)([hdmy])$`)

// ParseLookback reads periods like "12h", "7d", "1m" and "1y". Months are
// 30 days and years 365.
func ParseLookback(s string) (time.Duration, bool) {
	m := lookback.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	day := 24 * time.Hour
	unit := map[string]time.Duration{"h": time.Hour, "d": day, "m": 30 * day, "y": 365 * day}[m[2]]
	return time.Duration(n) * unit, true
}
