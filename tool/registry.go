package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	ai "github.com/spetersoncode/stockagent"
)

type registeredTool struct {
	tool      Tool
	desc      ai.Tool
	validator *validator
}

// Registry is an ordered catalog of tools keyed by name.
// It is safe for concurrent use; invocations never share mutable state.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]registeredTool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]registeredTool),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger used for invocation diagnostics.
func (r *Registry) WithLogger(l *slog.Logger) *Registry {
	if l != nil {
		r.logger = l
	}
	return r
}

// Register adds a tool to the registry.
// Returns ErrToolAlreadyRegistered if the name is taken, or ErrInvalidTool if
// the tool has no name or its parameter schema does not compile.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("%w: nil tool", ErrInvalidTool)
	}
	desc := t.Descriptor()
	if desc.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	v, err := newValidator(desc.Parameters)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTool, desc.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; exists {
		return &ErrToolAlreadyRegistered{Name: desc.Name}
	}
	r.tools[desc.Name] = registeredTool{tool: t, desc: desc, validator: v}
	r.order = append(r.order, desc.Name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	return rt.tool, ok
}

// DescribeAll returns every tool descriptor in registration order.
func (r *Registry) DescribeAll() []ai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ai.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc)
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Notice returns the user-facing notice for an invocation of name.
// Tools without a custom notice get a generic one.
func (r *Registry) Notice(name string, args json.RawMessage) string {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if ok {
		if n, ok := rt.tool.(Noticer); ok {
			if msg := n.Notice(args); msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("🔧 正在调用工具: %s", name)
}

// Invoke runs the named tool with the given arguments.
//
// Invoke never returns an error and never panics: unknown tools, malformed
// arguments, schema violations, tool errors and tool panics are all reported
// as a failed Result the model can read and recover from.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) Result {
	args = normalizeArgs(args)

	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Failure(name, args, "%s", (&ErrToolNotFound{Name: name}).Error())
	}
	if !json.Valid(args) {
		return Failure(name, args, "invalid arguments for %s: not valid JSON", name)
	}
	reasons, err := rt.validator.validate(args)
	if err != nil {
		return Failure(name, args, "invalid arguments for %s: %v", name, err)
	}
	if len(reasons) > 0 {
		return Failure(name, args, "%s", (&ErrInvalidArguments{Name: name, Reasons: reasons}).Error())
	}
	if err := ctx.Err(); err != nil {
		return Failure(name, args, "tool %s not started: %v", name, err)
	}

	start := time.Now()
	var (
		data    any
		execErr error
		pc      panics.Catcher
	)
	pc.Try(func() {
		data, execErr = rt.tool.Execute(ctx, args)
	})
	logger := r.logger.With("tool", name, "duration_ms", time.Since(start).Milliseconds())

	if rec := pc.Recovered(); rec != nil {
		logger.Error("tool panicked", "panic", fmt.Sprint(rec.Value))
		return Failure(name, args, "tool %s failed unexpectedly: %v", name, rec.Value)
	}
	if execErr != nil {
		logger.Warn("tool failed", "error", execErr)
		return Failure(name, args, "%v", execErr)
	}
	logger.Debug("tool succeeded")
	return Success(name, args, data)
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}
