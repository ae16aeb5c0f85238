package llm

import "testing"

// TestAdapters_ImplementLLMProvider is a compile-time check.
func TestAdapters_ImplementLLMProvider(t *testing.T) {
	t.Parallel()

	var _ LLMProvider = &OllamaProvider{}
	var _ LLMProvider = &GeminiProvider{}
}
