package chat

import (
	"context"
	"strings"
	"time"
)

// StreamChunk is one server-sent event of a streamed answer. Token chunks
// carry one word; the final chunk has Complete set and the whole answer in Text.
type StreamChunk struct {
	Type     string         `json:"type"` // "token" or "done"
	Token    string         `json:"token,omitempty"`
	Complete bool           `json:"complete"`
	Text     string         `json:"text,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Stream runs the loop to completion, then emits the answer word by word
// followed by a done chunk. The channel closes early if ctx ends.
func (s *Service) Stream(ctx context.Context, conversationID, text string) (<-chan StreamChunk, error) {
	res, err := s.SendMessage(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for _, tk := range strings.SplitAfter(res.Answer, " ") {
			if tk == "" {
				continue
			}
			select {
			case ch <- StreamChunk{Type: "token", Token: tk}:
			case <-ctx.Done():
				return
			}
		}
		done := StreamChunk{Type: "done", Complete: true, Text: res.Answer, Meta: map[string]any{
			"conversationId": res.ConversationID,
			"outcome":        string(res.Outcome),
			"sql":            res.LastQuery,
			"rows":           len(res.LastRows),
			"at":             time.Now().UTC().Format(time.RFC3339),
		}}
		select {
		case ch <- done:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
