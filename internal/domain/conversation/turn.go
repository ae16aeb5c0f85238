// Package conversation keeps per-session chat history and serializes the
// loops that write to one session.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

var ErrInvalidPairing = errors.New("tool turn does not answer the preceding model invocation")

// Invocation is a tool call requested by the model.
type Invocation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Turn is one history entry.
//   - user: Text
//   - model: Text, or Invocation when the model asked for a tool
//   - tool: Invocation (the call it answers) and Result (payload sent to the model)
type Turn struct {
	Role       Role            `json:"role"`
	Text       string          `json:"text,omitempty"`
	Invocation *Invocation     `json:"invocation,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func UserTurn(text string, at time.Time) Turn {
	return Turn{Role: RoleUser, Text: text, CreatedAt: at}
}

func ModelText(text string, at time.Time) Turn {
	return Turn{Role: RoleModel, Text: text, CreatedAt: at}
}

func ModelInvocation(inv Invocation, at time.Time) Turn {
	return Turn{Role: RoleModel, Invocation: &inv, CreatedAt: at}
}

func ToolResult(inv Invocation, result json.RawMessage, at time.Time) Turn {
	return Turn{Role: RoleTool, Invocation: &inv, Result: result, CreatedAt: at}
}

// ValidatePairing checks that every tool turn directly follows the model turn
// whose invocation it answers, and that every invocation is answered.
func ValidatePairing(turns []Turn) error {
	for i, t := range turns {
		switch {
		case t.Role == RoleTool:
			if t.Invocation == nil {
				return fmt.Errorf("%w: turn %d has no invocation", ErrInvalidPairing, i)
			}
			if i == 0 {
				return fmt.Errorf("%w: turn 0 is a tool turn", ErrInvalidPairing)
			}
			prev := turns[i-1]
			if prev.Role != RoleModel || prev.Invocation == nil || prev.Invocation.ID != t.Invocation.ID {
				return fmt.Errorf("%w: turn %d", ErrInvalidPairing, i)
			}
		case t.Role == RoleModel && t.Invocation != nil:
			if i+1 >= len(turns) || turns[i+1].Role != RoleTool {
				return fmt.Errorf("%w: invocation at turn %d is unanswered", ErrInvalidPairing, i)
			}
		}
	}
	return nil
}

// HistoryEntry is the external view of a turn.
type HistoryEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "user" or "assistant"
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// View renders history for clients: tool turns are dropped and invocation-only
// model turns become "[query] <sql>".
func View(turns []Turn) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(turns))
	for _, t := range turns {
		var typ, text string
		switch t.Role {
		case RoleUser:
			typ, text = "user", t.Text
		case RoleModel:
			typ, text = "assistant", t.Text
			if text == "" && t.Invocation != nil {
				text = "[query] " + invocationSQL(t.Invocation)
			}
		default:
			continue
		}
		out = append(out, HistoryEntry{
			ID:        strconv.Itoa(len(out)),
			Type:      typ,
			Text:      text,
			Timestamp: t.CreatedAt.UnixMilli(),
		})
	}
	return out
}

func invocationSQL(inv *Invocation) string {
	var args struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(inv.Arguments, &args); err != nil || args.SQL == "" {
		return inv.Name
	}
	return args.SQL
}
