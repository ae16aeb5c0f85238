package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/chat"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/conversation"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/query"
)

// ChatService is implemented by *chat.Service.
type ChatService interface {
	SendMessage(ctx context.Context, conversationID, text string) (*chat.Result, error)
	Stream(ctx context.Context, conversationID, text string) (<-chan chat.StreamChunk, error)
	ClearHistory(ctx context.Context, conversationID string) error
	GetHistory(ctx context.Context, conversationID string) ([]conversation.HistoryEntry, error)
}

type ChatHandler struct {
	chat ChatService
	log  zerolog.Logger
}

func NewChatHandler(svc ChatService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{chat: svc, log: log}
}

type chatRequest struct {
	Message        string `json:"message" validate:"required"`
	ConversationID string `json:"conversationId" validate:"max=128"`
}

type clearRequest struct {
	ConversationID string `json:"conversationId" validate:"max=128"`
}

type queryResultResponse struct {
	SQL      string            `json:"sql"`
	Status   string            `json:"status"` // "success" or "error"
	RowCount int               `json:"rowCount"`
	Error    *query.QueryError `json:"error,omitempty"`
}

// ChatResponse is the body of POST /api/chat. SQL and Data are null when the
// model answered without querying.
type ChatResponse struct {
	ConversationID string                `json:"conversationId"`
	Text           string                `json:"text"`
	Outcome        string                `json:"outcome"`
	SQL            *string               `json:"sql"`
	Data           []map[string]any      `json:"data"`
	Results        []queryResultResponse `json:"results"`
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := conversation.NormalizeID(req.ConversationID)
	res, err := h.chat.SendMessage(r.Context(), conversationKey(r.Context(), id), req.Message)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", id).Msg("chat failed")
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(id, res))
}

func toChatResponse(id string, res *chat.Result) ChatResponse {
	out := ChatResponse{
		ConversationID: id,
		Text:           res.Answer,
		Outcome:        string(res.Outcome),
		Results:        make([]queryResultResponse, 0, len(res.AllResults)),
	}
	if res.LastQuery != "" {
		q := res.LastQuery
		out.SQL = &q
		out.Data = res.LastRows
	}
	for _, qo := range res.AllResults {
		item := queryResultResponse{SQL: qo.SQL, Status: "success"}
		if qo.Result.OK() {
			item.RowCount = qo.Result.Success.RowCount
		} else {
			item.Status = "error"
			item.Error = qo.Result.Failure
		}
		out.Results = append(out.Results, item)
	}
	return out
}

// Stream handles POST /api/chat/stream as server-sent events, ending with
// a literal [DONE] event.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, err := h.chat.Stream(r.Context(), conversationKey(r.Context(), req.ConversationID), req.Message)
	if err != nil {
		h.log.Error().Err(err).Msg("chat stream failed")
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	w.Header().Set(headerContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	for chunk := range stream {
		b, _ := json.Marshal(chunk) //nolint:errcheck
		if _, err := fmt.Fprintf(bw, "data: %s\n\n", b); err != nil {
			return
		}
		_ = bw.Flush()
		flusher.Flush()
	}
	_, _ = bw.WriteString("data: [DONE]\n\n")
	_ = bw.Flush()
	flusher.Flush()
}

// History handles GET /api/history?conversationId=.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	key := conversationKey(r.Context(), r.URL.Query().Get("conversationId"))
	entries, err := h.chat.GetHistory(r.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Msg("history failed")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// Clear handles POST /api/clear.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.chat.ClearHistory(r.Context(), conversationKey(r.Context(), req.ConversationID)); err != nil {
		h.log.Error().Err(err).Msg("clear failed")
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "History cleared."})
}
