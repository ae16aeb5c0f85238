package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolExecutor is the raw JSON-in, JSON-out contract used by transports that do
// not need the structured Call (the MCP server).
type ToolExecutor interface {
	Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to ToolExecutor.
type ExecutorFunc func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return f(ctx, params)
}

// AsExecutor exposes t through ToolExecutor. The returned JSON is the same
// payload the chat loop sends back to the model; query failures are part of
// that payload, not Go errors.
func AsExecutor(t Tool) ToolExecutor {
	return ExecutorFunc(func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		call := t.Invoke(ctx, params)
		out, err := json.Marshal(call.Result.Payload())
		if err != nil {
			return nil, fmt.Errorf("%s: encode result: %w", t.Definition().Name, err)
		}
		return out, nil
	})
}
