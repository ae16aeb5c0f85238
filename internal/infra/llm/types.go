// Package llm defines the model-agnostic provider abstraction and its adapters.
// All types here are shared between the provider interface and adapters.
package llm

import "encoding/json"

// Message represents a single turn sent to the model.
type Message struct {
	Role    string // "user" | "assistant" | "tool"
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall
	// ToolCallID and ToolName identify the call a "tool" message answers.
	ToolCallID string
	ToolName   string
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage // JSON object
}

// ToolDef declares a callable function to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema object
}

// ChatRequest is the input for a non-streaming chat completion.
type ChatRequest struct {
	// Model overrides the provider default when non-empty.
	Model string
	// System is the system instruction, sent ahead of Messages.
	System      string
	Messages    []Message
	Tools       []ToolDef
	Temperature float32
	MaxTokens   int
}

// ChatResponse is the output from a non-streaming chat completion.
// A response carries text, tool calls, or both.
type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string // provider finish reason, "tool_use" when ToolCalls is set
	Tokens     int    // Total tokens consumed (prompt + completion), 0 when unknown.
}

// ModelMeta describes the model / provider identity.
type ModelMeta struct {
	ID        string // e.g. "llama3.2:3b", "gemini-2.5-flash"
	Provider  string // e.g. "ollama", "gemini"
	Version   string
	MaxTokens int // Maximum context window size.
}
