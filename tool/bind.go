package tool

import (
	"context"
	"encoding/json"
	"fmt"

	ai "github.com/spetersoncode/stockagent"
)

// TypedHandler executes a tool with arguments decoded into T.
type TypedHandler[T any] func(ctx context.Context, args T) (any, error)

// FuncTool is a Tool backed by a typed function.
// The parameter schema is generated from the struct tags on T.
type FuncTool[T any] struct {
	desc   ai.Tool
	fn     TypedHandler[T]
	notice func(T) string
}

// Func creates a Tool from a typed function.
//
// Example:
//
//	type QuoteArgs struct {
//	    Ticker string `json:"ticker" desc:"Stock symbol" required:"true"`
//	}
//
//	t, err := tool.Func("get_quote", "Latest quote for a ticker",
//	    func(ctx context.Context, args QuoteArgs) (any, error) {
//	        return fetchQuote(ctx, args.Ticker)
//	    })
func Func[T any](name, description string, fn TypedHandler[T]) (*FuncTool[T], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: %s: nil handler", ErrInvalidTool, name)
	}
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, err
	}
	return &FuncTool[T]{
		desc: ai.Tool{Name: name, Description: description, Parameters: schema},
		fn:   fn,
	}, nil
}

// MustFunc is like Func but panics on error.
func MustFunc[T any](name, description string, fn TypedHandler[T]) *FuncTool[T] {
	t, err := Func(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// WithNotice sets the function rendering the user-facing notice for a call.
func (f *FuncTool[T]) WithNotice(fn func(T) string) *FuncTool[T] {
	f.notice = fn
	return f
}

// Descriptor implements Tool.
func (f *FuncTool[T]) Descriptor() ai.Tool {
	return f.desc
}

// Execute implements Tool.
func (f *FuncTool[T]) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var v T
	if len(args) > 0 {
		if err := json.Unmarshal(args, &v); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
	}
	return f.fn(ctx, v)
}

// Notice implements Noticer.
func (f *FuncTool[T]) Notice(args json.RawMessage) string {
	if f.notice == nil {
		return ""
	}
	var v T
	if len(args) > 0 {
		_ = json.Unmarshal(args, &v)
	}
	return f.notice(v)
}
