// Package tool provides the tool abstraction and registry used by the agent.
//
// A Tool exposes a descriptor (name, description, JSON Schema parameters) and
// an Execute method. The Registry keeps tools in registration order, checks
// arguments against each tool's schema before running it and turns every
// failure mode into a Result the model can read.
//
// # Basic Usage
//
//	type NewsArgs struct {
//	    Query string `json:"query" desc:"Search keywords" required:"true"`
//	    Max   int    `json:"max_results" desc:"Maximum articles" default:"10" min:"1" max:"20"`
//	}
//
//	reg := tool.NewRegistry()
//	reg.MustRegister(tool.MustFunc("get_news", "Latest news articles",
//	    func(ctx context.Context, args NewsArgs) (any, error) {
//	        return fetchNews(ctx, args.Query, args.Max)
//	    }))
//
//	res := reg.Invoke(ctx, "get_news", json.RawMessage(`{"query":"Tesla"}`))
//	fmt.Println(res.Content())
package tool
