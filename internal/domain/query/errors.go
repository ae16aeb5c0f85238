// Package query runs model-authored read-only SQL and shapes the outcome into a
// JSON-safe ToolResult.
package query

import (
	"errors"
	"fmt"
)

// Error codes for failures raised before or around the engine. Codes reported
// by the engine itself are passed through untouched.
const (
	CodeBadArguments = 1064 // tool arguments failed validation
	CodeNotReadOnly  = 1142 // statement rejected by the read-only guard
	CodeUnknown      = 1105 // non-engine failure with no better classification
	CodeUnavailable  = 2003 // no connection could be taken from the pool
	CodeTimeout      = 3024 // QueryTimeout elapsed
)

// ErrNotReadOnly is wrapped by every guard rejection.
var ErrNotReadOnly = errors.New("statement is not read-only")

// QueryError is a recoverable query failure. It is handed back to the model so
// it can correct its SQL.
type QueryError struct {
	Code     int    `json:"code"`
	SQLState string `json:"sqlstate,omitempty"`
	Message  string `json:"message"`
	SQL      string `json:"sql"`
}

func (e *QueryError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("query error %d (%s): %s", e.Code, e.SQLState, e.Message)
	}
	return fmt.Sprintf("query error %d: %s", e.Code, e.Message)
}

// Success is the normalized result set of one query.
type Success struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// ToolResult is exactly one of Success or Failure.
type ToolResult struct {
	Success *Success    `json:"success,omitempty"`
	Failure *QueryError `json:"failure,omitempty"`
}

// Succeeded builds a success result.
func Succeeded(s Success) ToolResult {
	if s.Rows == nil {
		s.Rows = []map[string]any{}
	}
	s.RowCount = len(s.Rows)
	return ToolResult{Success: &s}
}

// Failed builds a failure result.
func Failed(code int, message, sqlText string) ToolResult {
	return ToolResult{Failure: &QueryError{Code: code, Message: message, SQL: sqlText}}
}

// OK reports whether the result is a Success.
func (r ToolResult) OK() bool { return r.Success != nil }

// RowsOrEmpty returns the success rows, or an empty slice for failures.
func (r ToolResult) RowsOrEmpty() []map[string]any {
	if r.Success == nil {
		return []map[string]any{}
	}
	return r.Success.Rows
}

// Payload is the tool response body sent back to the model.
func (r ToolResult) Payload() map[string]any {
	if r.Failure != nil {
		errBody := map[string]any{
			"code":    int64(r.Failure.Code),
			"message": r.Failure.Message,
			"sql":     r.Failure.SQL,
		}
		if r.Failure.SQLState != "" {
			errBody["sqlstate"] = r.Failure.SQLState
		}
		return map[string]any{"error": errBody}
	}
	if r.Success == nil {
		return map[string]any{"error": map[string]any{"code": int64(CodeUnknown), "message": "empty tool result"}}
	}
	rows := make([]any, 0, len(r.Success.Rows))
	for _, row := range r.Success.Rows {
		rows = append(rows, row)
	}
	return map[string]any{
		"rows":      rows,
		"row_count": int64(r.Success.RowCount),
		"truncated": r.Success.Truncated,
	}
}
