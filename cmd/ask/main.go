// Command ask answers one stock question from the terminal.
//
// Usage:
//
//	ask [options] 获取TSLA最近一个月价格
//
// Progress (status lines, tool notices) goes to stderr and the answer to
// stdout. With --json every event is printed as one NDJSON line instead.
// API keys are read from the environment and .env as in cmd/server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/agent"
	"github.com/spetersoncode/stockagent/client"
	"github.com/spetersoncode/stockagent/internal/retry"
	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/stocktools"
)

func main() {
	godotenv.Load()

	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[options] question"
	args, err := parser.Parse()
	if err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(2)
	}

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, question); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *Options, question string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: opts.level()}))

	provider, err := ai.ParseProvider(opts.Provider)
	if err != nil {
		return err
	}
	llm, err := client.New(ctx, client.Config{
		Provider: provider,
		APIKeys: client.APIKeys{
			OpenAI:    os.Getenv("OPENAI_API_KEY"),
			Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
			Google:    os.Getenv("GOOGLE_API_KEY"),
		},
		Model:   opts.Model,
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	fetcher := market.NewFetcher(
		market.WithRetry(retry.MarketConfig()),
		market.WithFetchLogger(logger),
	)
	registry := stocktools.NewRegistry(market.NewSources(fetcher, os.Getenv("NEWS_API_KEY")), stocktools.WithLogger(logger))

	a := agent.New(llm, registry)
	events := a.RunStream(ctx, question, opts.agentOptions(logger)...)

	p := &printer{out: os.Stdout, status: os.Stderr, json: opts.JSON, model: llm.Model()}
	return p.print(events)
}
