package tool

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/query"
)

var (
	ErrToolExecutorAlreadyRegistered = errors.New("tool executor already registered")
	ErrToolExecutorNotRegistered     = errors.New("tool executor not registered")
	ErrToolValidationFailed          = errors.New("tool params validation failed")
)

// Call is one executed tool invocation.
type Call struct {
	SQL    string
	Limit  int
	Result query.ToolResult
}

// Tool is a declared capability the chat loop can dispatch to.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, args json.RawMessage) Call
}

// Registry maps declared names to tools. Lookups of undeclared names fail
// without executing anything.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if t == nil {
		return ErrToolExecutorNotRegistered
	}
	name := strings.TrimSpace(t.Definition().Name)
	if name == "" {
		return ErrToolExecutorNotRegistered
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return ErrToolExecutorAlreadyRegistered
	}
	r.tools[name] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, ErrToolExecutorNotRegistered
	}
	return t, nil
}

// Definitions returns every declaration sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
