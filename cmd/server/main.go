// Command server is the HTTP front end of the stock assistant.
//
// Endpoints:
//
//	POST /api/stream        NDJSON event stream for one question
//	POST /api/analyze       blocking run, JSON result
//	POST /api/visualization chart.js payload (price or technical)
//	POST /api/agui          AG-UI run over Server-Sent Events
//	GET  /api/tools         tool descriptors
//	GET  /health            liveness
//
// Configuration is read from STOCKAGENT_CONFIG (TOML), .env and the
// environment:
//
//	PORT              - Server port (default: 5000)
//	LOG_LEVEL         - debug, info, warn or error (default: info)
//	LLM_PROVIDER      - openai, anthropic or google (default: openai)
//	LLM_MODEL         - Model override (default: qwen-flash for openai)
//	OPENAI_BASE_URL   - OpenAI-compatible endpoint (default: DashScope)
//	OPENAI_API_KEY    - OpenAI / DashScope API key
//	ANTHROPIC_API_KEY - Anthropic API key
//	GOOGLE_API_KEY    - Google API key
//	NEWS_API_KEY      - NewsAPI key; Google News RSS is used without it
//	AGENT_MAX_STEPS   - Max model rounds per question (default: 10)
//	AGENT_TIMEOUT     - Per-request timeout (default: 300s)
//	TOOL_TIMEOUT      - Per-tool timeout (default: 30s)
//	SESSION_TTL       - Idle lifetime of a session's history (default: 1h)
//	SESSION_HISTORY   - Turns kept per session (default: 40)
//	MARKET_RATE_LIMIT - Upstream requests per second (default: 5)
//	MARKET_CACHE_TTL  - Market data cache lifetime (default: 5m)
//	MARKET_CACHE_PATH - SQLite file for a persistent cache (optional)
//	MCP_SERVERS       - Comma-separated MCP server commands whose tools are added
//
// Usage:
//
//	OPENAI_API_KEY=sk-... go run ./cmd/server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/agent"
	"github.com/spetersoncode/stockagent/chart"
	"github.com/spetersoncode/stockagent/client"
	"github.com/spetersoncode/stockagent/internal/retry"
	"github.com/spetersoncode/stockagent/internal/store"
	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/mcp"
	"github.com/spetersoncode/stockagent/stocktools"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	go purgeLoop(ctx, adapter, cfg.CacheTTL, logger)

	sources := newSources(cfg, adapter, logger)
	registry := stocktools.NewRegistry(sources, stocktools.WithLogger(logger))

	for _, command := range cfg.MCPServers {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			continue
		}
		remote, err := mcp.Connect(ctx, fields[0], os.Environ(), fields[1:]...)
		if err != nil {
			return fmt.Errorf("mcp server %q: %w", command, err)
		}
		defer remote.Close()
		for _, t := range remote.Tools() {
			if err := registry.Register(t); err != nil {
				logger.Warn("skipping remote tool", "server", command, "error", err)
			}
		}
	}

	llm, err := client.New(ctx, client.Config{
		Provider: ai.Provider(cfg.Provider),
		APIKeys: client.APIKeys{
			Anthropic: cfg.AnthropicKey,
			OpenAI:    cfg.OpenAIKey,
			Google:    cfg.GoogleKey,
		},
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	srv := NewServer(
		agent.New(llm, registry),
		chart.NewBuilder(sources.Prices),
		store.NewSessions(adapter, cfg.SessionTTL, cfg.SessionHistory),
		cfg,
		logger,
	).WithModel(llm.Model())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming responses need no write timeout
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"provider", llm.Provider(),
		"model", llm.Model(),
		"tools", registry.Len(),
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openCache returns the SQLite adapter when MARKET_CACHE_PATH is set and an
// in-memory one otherwise.
func openCache(cfg *Config) (store.Adapter, error) {
	if cfg.CachePath == "" {
		return store.NewMemoryAdapter(), nil
	}
	a, err := store.OpenSQLite(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", cfg.CachePath, err)
	}
	return a, nil
}

func newSources(cfg *Config, adapter store.Adapter, logger *slog.Logger) market.Sources {
	fetcher := market.NewFetcher(
		market.WithRateLimit(cfg.RateLimit, max(1, int(cfg.RateLimit))),
		market.WithRetry(retry.MarketConfig()),
		market.WithFetchLogger(logger),
	)
	sources := market.NewSources(fetcher, cfg.NewsAPIKey)
	if cfg.CacheTTL <= 0 {
		return sources
	}
	return market.NewCached(sources, adapter, cfg.CacheTTL).Sources()
}

// purgeLoop drops expired cache and session entries every interval.
func purgeLoop(ctx context.Context, adapter store.Adapter, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := adapter.Purge(ctx)
			if err != nil {
				logger.Warn("cache purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("cache purged", "entries", n)
			}
		}
	}
}
