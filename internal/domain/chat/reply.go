package chat

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/conversation"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/llm"
)

// Reply is what one model round produced: a ToolRequest or a FinalText.
// Provider responses are mapped to it as soon as they arrive so the loop
// never inspects vendor shapes.
type Reply interface {
	isReply()
}

// ToolRequest asks the loop to run a tool.
type ToolRequest struct {
	Invocation conversation.Invocation
}

// FinalText ends the loop with an answer.
type FinalText struct {
	Text string
}

func (ToolRequest) isReply() {}
func (FinalText) isReply()   {}

// toReply maps a provider response. Tool calls win over text; only the first
// call is honored. ok is false when the response has nothing usable.
func toReply(resp *llm.ChatResponse, round int) (Reply, bool) {
	if resp == nil {
		return nil, false
	}
	if len(resp.ToolCalls) > 0 {
		tc := resp.ToolCalls[0]
		if strings.TrimSpace(tc.Name) == "" {
			return nil, false
		}
		id := tc.ID
		if id == "" {
			id = "call-" + strconv.Itoa(round)
		}
		args := tc.Arguments
		if len(args) == 0 || !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		return ToolRequest{Invocation: conversation.Invocation{ID: id, Name: tc.Name, Arguments: args}}, true
	}
	if text := strings.TrimSpace(resp.Content); text != "" {
		return FinalText{Text: text}, true
	}
	return nil, false
}
