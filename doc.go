// Package stockagent is a stock research assistant that answers questions by
// letting a language model call market data tools in a loop.
//
// The root package holds the types every other package shares: conversation
// turns ([Message], [Conversation]), tool descriptors ([Tool], [ToolCall],
// [ToolResult]), the [ChatProvider] interface implemented by the model
// backends, request [Option]s and the categorized [Error] type.
//
// # Packages
//
//   - [github.com/spetersoncode/stockagent/tool]: tool registry and typed tool binding
//   - [github.com/spetersoncode/stockagent/agent]: the tool-calling loop
//   - [github.com/spetersoncode/stockagent/event]: the ordered event stream the loop produces
//   - [github.com/spetersoncode/stockagent/stocktools]: the stock data tools
//   - [github.com/spetersoncode/stockagent/market]: market, news and search data sources
//   - [github.com/spetersoncode/stockagent/analysis]: indicators, statistics and valuation models
//   - [github.com/spetersoncode/stockagent/client]: provider selection with retry
//
// # Basic Usage
//
//	c, err := client.New(ctx, client.Config{
//	    Provider: ai.ProviderOpenAI,
//	    APIKey:   os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry := stocktools.NewRegistry(stocktools.Sources{Prices: market.NewYahoo(fetcher)})
//	a := agent.New(c, registry)
//
//	for ev := range a.RunStream(ctx, "获取TSLA最近一个月价格") {
//	    fmt.Println(ev.Type, ev.Content)
//	}
//
// # Error Handling
//
// Provider errors are categorized so callers and the retry layer can decide
// what to do with them:
//
//	if ai.IsTransient(err) {
//	    // rate limited or server side, safe to retry
//	}
package stockagent
