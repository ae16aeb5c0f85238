// Package mcp serves the read-only query tool over the Model Context Protocol,
// so any MCP client can query the movie database with the same guard and limits
// as the chat loop.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/tool"
	"github.com/matiasleandrokruk/moviegpt/internal/version"
)

// SchemaResourceURI names the database overview resource.
const SchemaResourceURI = "moviegpt://schema"

// Options configures NewServer.
type Options struct {
	// SchemaOverview is served as a text resource when non-empty.
	SchemaOverview string
	Log            zerolog.Logger
}

// NewServer registers every tool in reg on a new MCP server.
func NewServer(reg *tool.Registry, opts Options) (*mcp.Server, error) {
	srv := mcp.NewServer(&mcp.Implementation{Name: "moviegpt", Version: version.Version}, nil)

	for _, def := range reg.Definitions() {
		t, err := reg.Get(def.Name)
		if err != nil {
			return nil, err
		}
		srv.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}, toolHandler(def.Name, tool.AsExecutor(t), opts.Log))
	}

	if opts.SchemaOverview != "" {
		overview := opts.SchemaOverview
		srv.AddResource(&mcp.Resource{
			URI:         SchemaResourceURI,
			Name:        "schema",
			Description: "Tables and columns of the movie database",
			MIMEType:    "text/plain",
		}, func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{{
				URI:      SchemaResourceURI,
				MIMEType: "text/plain",
				Text:     overview,
			}}}, nil
		})
	}
	return srv, nil
}

// toolHandler returns the tool payload as JSON text. Query failures come back
// with IsError set so the client model can correct its SQL.
func toolHandler(name string, exec tool.ToolExecutor, log zerolog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		out, err := exec.Execute(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		var probe map[string]json.RawMessage
		_ = json.Unmarshal(out, &probe) //nolint:errcheck
		_, failed := probe["error"]
		log.Debug().Str("tool", name).Bool("failed", failed).Msg("mcp tool call")

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(out)}},
			IsError: failed,
		}, nil
	}
}

// ServeStdio runs srv on stdin/stdout until ctx is done or the client disconnects.
func ServeStdio(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}
