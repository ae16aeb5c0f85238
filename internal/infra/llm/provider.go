package llm

import "context"

// LLMProvider is the model-agnostic interface the chat loop talks to.
// Adapters (Ollama, Gemini) implement it so the loop never depends on a vendor.
type LLMProvider interface {
	// ChatCompletion performs a non-streaming chat completion, offering req.Tools.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ModelInfo returns static metadata about the provider/model.
	ModelInfo() ModelMeta

	// HealthCheck returns nil if the provider is reachable and operational.
	HealthCheck(ctx context.Context) error
}
