package tool

import (
	"context"
	"encoding/json"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/query"
)

// QueryRunner executes guarded read-only SQL. *query.Executor implements it.
type QueryRunner interface {
	Execute(ctx context.Context, sqlText string, limit int) query.ToolResult
}

// ReadOnlyQueryTool binds the run_readonly_query contract to a QueryRunner.
type ReadOnlyQueryTool struct {
	runner QueryRunner
}

func NewReadOnlyQueryTool(runner QueryRunner) *ReadOnlyQueryTool {
	return &ReadOnlyQueryTool{runner: runner}
}

func (t *ReadOnlyQueryTool) Definition() Definition {
	return ReadOnlyQueryDefinition()
}

type readOnlyQueryArgs struct {
	SQL   string      `json:"sql"`
	Limit json.Number `json:"limit"`
}

// Invoke validates args against the declared schema before running anything.
// Invalid arguments come back as a CodeBadArguments failure so the model can
// fix its call.
func (t *ReadOnlyQueryTool) Invoke(ctx context.Context, args json.RawMessage) Call {
	var in readOnlyQueryArgs
	_ = json.Unmarshal(args, &in) //nolint:errcheck // validateArgs reports malformed input

	if err := validateArgs(readOnlyQueryValidator, args); err != nil {
		return Call{SQL: in.SQL, Result: query.Failed(query.CodeBadArguments, err.Error(), in.SQL)}
	}

	limit := 0
	if in.Limit != "" {
		if f, err := in.Limit.Float64(); err == nil {
			limit = int(f)
		}
	}
	return Call{SQL: in.SQL, Limit: limit, Result: t.runner.Execute(ctx, in.SQL, limit)}
}
