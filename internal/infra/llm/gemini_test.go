package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiProvider_ChatCompletion_FunctionCall(t *testing.T) {
	t.Parallel()

	var (
		got     geminiRequest
		gotPath string
		gotKey  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotKey = r.URL.Path, r.Header.Get(headerGoogAPIKey)
		json.NewDecoder(r.Body).Decode(&got) //nolint:errcheck
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"run_readonly_query","args":{"sql":"SELECT title FROM movies"}}}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":42}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL+"/", "secret", "gemini-2.5-flash")
	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		System: "sys",
		Messages: []Message{
			{Role: "user", Content: "q1"},
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "c0", Name: "run_readonly_query", Arguments: json.RawMessage(`{"sql":"SELECT x"}`)}}},
			{Role: "tool", ToolCallID: "c0", ToolName: "run_readonly_query", Content: `{"error":{"code":1054}}`},
		},
		Tools: []ToolDef{queryTool},
	})
	if err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}

	if gotPath != "/models/gemini-2.5-flash:generateContent" || gotKey != "secret" {
		t.Errorf("path/key = %q/%q", gotPath, gotKey)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("system instruction = %+v", got.SystemInstruction)
	}
	if len(got.Tools) != 1 || got.Tools[0].FunctionDeclarations[0].Name != "run_readonly_query" {
		t.Errorf("tools = %+v", got.Tools)
	}
	if len(got.Contents) != 3 || got.Contents[1].Role != "model" || got.Contents[1].Parts[0].FunctionCall == nil {
		t.Fatalf("contents = %+v", got.Contents)
	}
	fr := got.Contents[2].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "run_readonly_query" || !strings.Contains(string(fr.Response), "1054") {
		t.Errorf("function response = %+v", fr)
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "run_readonly_query" || resp.StopReason != "tool_use" || resp.Tokens != 42 {
		t.Fatalf("response = %+v", resp)
	}
	if !strings.Contains(string(resp.ToolCalls[0].Arguments), "SELECT title FROM movies") {
		t.Errorf("arguments = %s", resp.ToolCalls[0].Arguments)
	}
}

func TestGeminiProvider_ChatCompletion_Text(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"The Dark "},{"text":"Knight"}]},"finishReason":"STOP"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	resp, err := NewGeminiProvider(srv.URL, "k", "m").ChatCompletion(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}
	if resp.Content != "The Dark Knight" || len(resp.ToolCalls) != 0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestGeminiProvider_ChatCompletion_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]http.HandlerFunc{
		"http status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"code":429}}`, http.StatusTooManyRequests)
		},
		"api error": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`)) //nolint:errcheck
		},
		"no candidates": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates":[]}`)) //nolint:errcheck
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			if _, err := NewGeminiProvider(srv.URL, "k", "m").ChatCompletion(context.Background(), ChatRequest{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildGeminiRequest_ToolSchemaUsesOpenAPISubset(t *testing.T) {
	t.Parallel()

	params := json.RawMessage(`{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"sql": {"type": "string", "description": "query"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 1000, "additionalProperties": false},
			"additionalProperties": {"type": "string"}
		},
		"required": ["sql"]
	}`)
	gr := buildGeminiRequest(ChatRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
		Tools:    []ToolDef{{Name: "run_readonly_query", Description: "d", Parameters: params}},
	})

	raw, err := json.Marshal(gr)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	var wire struct {
		Tools []struct {
			FunctionDeclarations []struct {
				Parameters map[string]any `json:"parameters"`
			} `json:"functionDeclarations"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	decl := wire.Tools[0].FunctionDeclarations[0].Parameters
	for _, key := range []string{"$schema", "additionalProperties"} {
		if _, ok := decl[key]; ok {
			t.Errorf("parameters still carry %q: %v", key, decl)
		}
	}
	props, _ := decl["properties"].(map[string]any)
	limit, _ := props["limit"].(map[string]any)
	if limit["maximum"] != 1000.0 || limit["type"] != "integer" {
		t.Errorf("limit schema = %v", limit)
	}
	if _, ok := limit["additionalProperties"]; ok {
		t.Errorf("nested additionalProperties kept: %v", limit)
	}
	// a property that happens to be named like a keyword is kept
	if _, ok := props["additionalProperties"]; !ok {
		t.Errorf("property names must not be filtered: %v", props)
	}
	if req, _ := decl["required"].([]any); len(req) != 1 || req[0] != "sql" {
		t.Errorf("required = %v", decl["required"])
	}
}

func TestBuildGeminiRequest_WrapsNonObjectToolOutput(t *testing.T) {
	t.Parallel()

	gr := buildGeminiRequest(ChatRequest{Messages: []Message{{Role: "tool", ToolName: "t", Content: "plain text"}}})
	if got := string(gr.Contents[0].Parts[0].FunctionResponse.Response); got != `{"result":"plain text"}` {
		t.Fatalf("response = %s", got)
	}
}
