package handlers

import (
	"context"
	"net/http"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/audit"
)

// AuditLister is implemented by *audit.Service.
type AuditLister interface {
	List(ctx context.Context, conversationID string, limit int) ([]*audit.Entry, error)
}

type AuditHandler struct {
	audit AuditLister
}

func NewAuditHandler(a AuditLister) *AuditHandler {
	return &AuditHandler{audit: a}
}

// List handles GET /api/audit?conversationId=&limit=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	key := conversationKey(r.Context(), r.URL.Query().Get("conversationId"))
	entries, err := h.audit.List(r.Context(), key, queryInt(r, "limit", audit.DefaultListLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
