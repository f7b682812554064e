package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spetersoncode/stockagent/agent"
	"github.com/spetersoncode/stockagent/event"
	"github.com/spetersoncode/stockagent/model"
)

// Options are the command-line flags.
type Options struct {
	Provider    string        `short:"p" long:"provider" env:"LLM_PROVIDER" default:"openai" description:"LLM provider: openai, anthropic or google"`
	Model       string        `short:"m" long:"model" env:"LLM_MODEL" description:"model override"`
	MaxSteps    int           `long:"max-steps" default:"10" description:"maximum model rounds"`
	Timeout     time.Duration `long:"timeout" default:"300s" description:"overall timeout"`
	ToolTimeout time.Duration `long:"tool-timeout" default:"30s" description:"per-tool timeout"`
	Live        bool          `long:"live" description:"stream reasoning before tool calls as it arrives"`
	Native      bool          `long:"native" description:"use native provider tool calling instead of markup"`
	JSON        bool          `long:"json" description:"print events as NDJSON"`
	Verbose     bool          `short:"v" long:"verbose" description:"debug logging"`
}

func (o *Options) level() slog.Level {
	if o.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func (o *Options) agentOptions(logger *slog.Logger) []agent.Option {
	return []agent.Option{
		agent.WithMaxSteps(o.MaxSteps),
		agent.WithTimeout(o.Timeout),
		agent.WithToolTimeout(o.ToolTimeout),
		agent.WithLiveThinking(o.Live),
		agent.WithNativeTools(o.Native),
		agent.WithLogger(logger),
	}
}

// printer renders the event feed for a terminal.
type printer struct {
	out    io.Writer
	status io.Writer
	json   bool
	// model prices the usage line when known.
	model string
}

// print consumes events until the channel closes and returns the run error,
// if the run ended with one.
func (p *printer) print(events <-chan event.Event) error {
	var runErr error
	enc := json.NewEncoder(p.out)
	for ev := range events {
		if ev.Type == event.Error {
			runErr = errors.New(ev.Content)
			if ev.Err != nil {
				runErr = ev.Err
			}
		}
		if p.json {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		switch ev.Type {
		case event.Thinking, event.ToolNotice, event.FinalStart:
			fmt.Fprintln(p.status, ev.Content)
		case event.StepComplete:
			if ev.ToolResult != nil && ev.ToolResult.IsError {
				fmt.Fprintf(p.status, "⚠️ %s 失败\n", ev.ToolName())
			}
		case event.StreamChunk:
			fmt.Fprint(p.status, ev.Content)
		case event.FinalChunk:
			fmt.Fprint(p.out, ev.Content)
		case event.FinalComplete:
			fmt.Fprintln(p.out)
			if ev.Usage != nil {
				fmt.Fprintf(p.status, "tokens: %d in, %d out", ev.Usage.InputTokens, ev.Usage.OutputTokens)
				if m, ok := model.Lookup(p.model); ok {
					fmt.Fprintf(p.status, " (~$%.4f)", m.Cost(*ev.Usage))
				}
				fmt.Fprintln(p.status)
			}
		}
	}
	return runErr
}
