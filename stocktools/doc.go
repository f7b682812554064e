// Package stocktools binds market data sources and the analysis routines to
// the tools the agent can call.
//
// Every tool validates its arguments before touching a source and reports
// upstream failures as errors, which the registry turns into failed results
// the model can read. Tools hold no mutable state and may run concurrently.
//
//	reg := stocktools.NewRegistry(market.NewSources(fetcher, newsKey))
//	res := reg.Invoke(ctx, "get_stock_info", json.RawMessage(`{"ticker":"TSLA"}`))
package stocktools
