package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/moviegpt/internal/infra/omdb"
)

// MetadataClient is implemented by *omdb.Client.
type MetadataClient interface {
	Get(ctx context.Context, imdbID string) (omdb.Record, error)
}

type InfoHandler struct {
	client MetadataClient
}

func NewInfoHandler(client MetadataClient) *InfoHandler {
	return &InfoHandler{client: client}
}

// Get handles GET /api/info/{imdbId}.
//
// Response codes:
//   - 200 OK: OMDb record
//   - 400 Bad Request: malformed IMDb id
//   - 404 Not Found: OMDb has no such title
//   - 502 Bad Gateway: OMDb unreachable after retries
//   - 503 Service Unavailable: no OMDb key configured
func (h *InfoHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "imdbId"))
	rec, err := h.client.Get(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rec)
	case errors.Is(err, omdb.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid imdb id")
	case errors.Is(err, omdb.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "metadata lookup is not configured")
	case errors.Is(err, omdb.ErrUpstream):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadGateway, "metadata lookup failed")
	}
}
