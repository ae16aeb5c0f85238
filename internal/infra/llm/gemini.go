// Gemini REST adapter (generateContent with functionDeclarations).
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const headerGoogAPIKey = "x-goog-api-key"

// GeminiProvider implements LLMProvider against the Gemini v1beta REST API.
type GeminiProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGeminiProvider(baseURL, apiKey, model string) *GeminiProvider {
	return &GeminiProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ─── internal Gemini JSON types ──────────────────────────────────────────────

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiToolDeclaration `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type geminiToolDeclaration struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	TotalTokenCount int `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ─── LLMProvider implementation ─────────────────────────────────────────────

// ChatCompletion calls models/{model}:generateContent.
func (p *GeminiProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	body, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	respBody, err := postJSON(ctx, p.httpClient, url, body, map[string]string{headerGoogAPIKey: p.apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	defer respBody.Close()

	var apiResp geminiResponse
	if err := json.NewDecoder(respBody).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("gemini: API error [%d] %s: %s", apiResp.Error.Code, apiResp.Error.Status, apiResp.Error.Message)
	}
	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: returned no candidates")
	}

	cand := apiResp.Candidates[0]
	out := &ChatResponse{StopReason: cand.FinishReason}
	if apiResp.UsageMetadata != nil {
		out.Tokens = apiResp.UsageMetadata.TotalTokenCount
	}

	var text []string
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			text = append(text, part.Text)
		}
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if len(args) == 0 || string(args) == "null" {
				args = json.RawMessage(`{}`)
			}
			// Gemini does not assign call IDs.
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("gemini-call-%d", len(out.ToolCalls)),
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	out.Content = strings.Join(text, "")
	if len(out.ToolCalls) > 0 {
		out.StopReason = "tool_use"
	}
	return out, nil
}

func buildGeminiRequest(req ChatRequest) geminiRequest {
	var gr geminiRequest

	if req.System != "" {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.Temperature != 0 || req.MaxTokens != 0 {
		gc := &geminiGenerationConfig{}
		if req.Temperature != 0 {
			t := req.Temperature
			gc.Temperature = &t
		}
		if req.MaxTokens != 0 {
			n := req.MaxTokens
			gc.MaxOutputTokens = &n
		}
		gr.GenerationConfig = gc
	}
	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(req.Tools))
		for i, td := range req.Tools {
			decls[i] = geminiFunctionDeclaration{Name: td.Name, Description: td.Description, Parameters: geminiSchema(td.Parameters)}
		}
		gr.Tools = []geminiToolDeclaration{{FunctionDeclarations: decls}}
	}

	for _, m := range req.Messages {
		switch {
		case m.Role == "tool":
			resp := json.RawMessage(m.Content)
			if !json.Valid(resp) || !strings.HasPrefix(strings.TrimSpace(m.Content), "{") {
				wrapped, _ := json.Marshal(map[string]string{"result": m.Content})
				resp = wrapped
			}
			gr.Contents = append(gr.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{FunctionResponse: &geminiFunctionResp{Name: m.ToolName, Response: resp}}},
			})
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			var parts []geminiPart
			if m.Content != "" {
				parts = append(parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Arguments}})
			}
			gr.Contents = append(gr.Contents, geminiContent{Role: "model", Parts: parts})
		case m.Role == "assistant":
			gr.Contents = append(gr.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			gr.Contents = append(gr.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	return gr
}

// ModelInfo returns static metadata for this provider/model.
func (p *GeminiProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: p.model, Provider: "gemini", Version: "v1beta", MaxTokens: 1048576}
}

// HealthCheck fetches the model resource.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/models/%s", p.baseURL, p.model)
	if err := getOK(ctx, p.httpClient, url, map[string]string{headerGoogAPIKey: p.apiKey}); err != nil {
		return fmt.Errorf("gemini healthcheck: %w", err)
	}
	return nil
}

// geminiSchemaKeys is the OpenAPI subset accepted by functionDeclarations[].parameters.
var geminiSchemaKeys = map[string]bool{
	"type": true, "format": true, "title": true, "description": true, "nullable": true,
	"enum": true, "items": true, "minItems": true, "maxItems": true,
	"properties": true, "required": true, "minProperties": true, "maxProperties": true,
	"minLength": true, "maxLength": true, "pattern": true, "example": true,
	"anyOf": true, "propertyOrdering": true, "default": true, "minimum": true, "maximum": true,
}

// geminiSchema drops JSON Schema keywords Gemini rejects, such as
// additionalProperties and $schema. Invalid input is passed through.
func geminiSchema(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(pruneSchema(v))
	if err != nil {
		return raw
	}
	return out
}

func pruneSchema(v any) any {
	node, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(node))
	for k, val := range node {
		if !geminiSchemaKeys[k] {
			continue
		}
		switch k {
		case "properties":
			props, _ := val.(map[string]any)
			pruned := make(map[string]any, len(props))
			for name, p := range props {
				pruned[name] = pruneSchema(p)
			}
			out[k] = pruned
		case "items":
			out[k] = pruneSchema(val)
		case "anyOf":
			list, _ := val.([]any)
			pruned := make([]any, len(list))
			for i, p := range list {
				pruned[i] = pruneSchema(p)
			}
			out[k] = pruned
		default:
			out[k] = val
		}
	}
	return out
}
