package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/query"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/tool"
)

type fakeRunner struct{}

func (fakeRunner) Execute(_ context.Context, sqlText string, _ int) query.ToolResult {
	if strings.Contains(sqlText, "nope") {
		return query.Failed(1054, "no such column: nope", sqlText)
	}
	return query.Succeeded(query.Success{Columns: []string{"title"}, Rows: []map[string]any{{"title": "Heat"}}})
}

func connect(t *testing.T, overview string) *mcp.ClientSession {
	t.Helper()
	reg := tool.NewRegistry()
	if err := reg.Register(tool.NewReadOnlyQueryTool(fakeRunner{})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	srv, err := NewServer(reg, Options{SchemaOverview: overview, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx := context.Background()
	clientT, serverT := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server Connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callText(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content = %d items; want 1", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T; want *mcp.TextContent", res.Content[0])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	return out
}

func TestServer_ListsReadOnlyQueryTool(t *testing.T) {
	cs := connect(t, "")

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != tool.ReadOnlyQueryName {
		t.Fatalf("tools = %+v", res.Tools)
	}
}

func TestServer_CallTool(t *testing.T) {
	cs := connect(t, "")
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool.ReadOnlyQueryName,
		Arguments: map[string]any{"sql": "SELECT title FROM movies"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatal("successful query reported as error")
	}
	if got := callText(t, res); got["row_count"] != float64(1) {
		t.Fatalf("payload = %v", got)
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool.ReadOnlyQueryName,
		Arguments: map[string]any{"sql": "SELECT nope FROM movies"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("failed query should set IsError")
	}
	errBody, _ := callText(t, res)["error"].(map[string]any)
	if errBody["code"] != float64(1054) {
		t.Fatalf("error payload = %v", errBody)
	}

	// schema violations are reported, not executed
	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool.ReadOnlyQueryName,
		Arguments: map[string]any{"sql": "SELECT 1", "limit": 5000},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("out-of-range limit should set IsError")
	}
}

func TestServer_SchemaResource(t *testing.T) {
	cs := connect(t, "- movies: id INTEGER, title TEXT")

	res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: SchemaResourceURI})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(res.Contents) != 1 || !strings.Contains(res.Contents[0].Text, "movies") {
		t.Fatalf("contents = %+v", res.Contents)
	}
}
