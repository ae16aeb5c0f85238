package chat

import (
	"strings"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/conversation"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/tool"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/llm"
)

// DefaultSystemPrompt is used when no SYSTEM_PROMPT is configured.
const DefaultSystemPrompt = "You are a smart movie database assistant. Use the provided database schema " +
	"to decide what SQL to run. If you need data, call the " + tool.ReadOnlyQueryName + " function. " +
	"Only read-only statements are allowed. If a query fails, read the error, fix the SQL and try again."

// emptyResultHint is attached to zero-row results when the nudge is enabled.
const emptyResultHint = "The query returned no rows. Consider a broader query: relax filters, " +
	"use LIKE with wildcards, or check spelling and case of literal values."

// buildSystemPrompt appends the schema overview, when known, to the base prompt.
func buildSystemPrompt(base, overview string) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}
	if strings.TrimSpace(overview) == "" {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n## Database schema\n")
	b.WriteString(overview)
	return b.String()
}

func toolDefs(defs []tool.Definition) []llm.ToolDef {
	out := make([]llm.ToolDef, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.ToolDef{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}

// toMessages maps history to provider messages in order.
func toMessages(turns []conversation.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleUser:
			out = append(out, llm.Message{Role: "user", Content: t.Text})
		case conversation.RoleModel:
			if t.Invocation != nil {
				out = append(out, llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{{
					ID:        t.Invocation.ID,
					Name:      t.Invocation.Name,
					Arguments: t.Invocation.Arguments,
				}}})
				continue
			}
			out = append(out, llm.Message{Role: "assistant", Content: t.Text})
		case conversation.RoleTool:
			m := llm.Message{Role: "tool", Content: string(t.Result)}
			if t.Invocation != nil {
				m.ToolCallID = t.Invocation.ID
				m.ToolName = t.Invocation.Name
			}
			out = append(out, m)
		}
	}
	return out
}
