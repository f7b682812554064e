// Command mcp serves the stock tools over MCP stdio so MCP clients (desktop
// assistants, IDEs) can call them without the agent loop.
//
// Usage:
//
//	go run ./cmd/mcp
//
// Client configuration example:
//
//	{
//	    "mcpServers": {
//	        "stockagent": {
//	            "command": "go",
//	            "args": ["run", "./cmd/mcp"],
//	            "cwd": "/path/to/stockagent"
//	        }
//	    }
//	}
//
// NEWS_API_KEY, MARKET_RATE_LIMIT and MARKET_CACHE_TTL are honoured as in
// cmd/server. Logs go to stderr since stdout carries the protocol.
package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/spetersoncode/stockagent/internal/retry"
	"github.com/spetersoncode/stockagent/internal/store"
	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/mcp"
	"github.com/spetersoncode/stockagent/stocktools"
)

func main() {
	godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	rps := 5.0
	if v, err := strconv.ParseFloat(os.Getenv("MARKET_RATE_LIMIT"), 64); err == nil {
		rps = v
	}
	ttl := 5 * time.Minute
	if v, err := time.ParseDuration(os.Getenv("MARKET_CACHE_TTL")); err == nil {
		ttl = v
	}

	fetcher := market.NewFetcher(
		market.WithRateLimit(rps, max(1, int(rps))),
		market.WithRetry(retry.MarketConfig()),
		market.WithFetchLogger(logger),
	)
	sources := market.NewSources(fetcher, os.Getenv("NEWS_API_KEY"))
	if ttl > 0 {
		sources = market.NewCached(sources, store.NewMemoryAdapter(), ttl).Sources()
	}

	registry := stocktools.NewRegistry(sources, stocktools.WithLogger(logger))
	if err := mcp.ServeStdio(registry,
		mcp.WithName("stockagent"),
		mcp.WithVersion("1.0.0"),
	); err != nil {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}
