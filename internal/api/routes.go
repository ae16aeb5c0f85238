package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/api/handlers"
	apmiddleware "github.com/matiasleandrokruk/moviegpt/internal/api/middleware"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/metrics"
	pkgauth "github.com/matiasleandrokruk/moviegpt/pkg/auth"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Chat     handlers.ChatService
	Metadata handlers.MetadataClient
	Audit    handlers.AuditLister
	// Issuer enables bearer auth on /api/* when non-nil.
	Issuer           *pkgauth.Issuer
	ClientSecretHash string
	Log              zerolog.Logger
}

// NewRouter builds the chi router.
// Public: /health, /metrics, /auth/token. Everything under /api requires a
// bearer token when d.Issuer is set.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apmiddleware.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(apmiddleware.CORS())

	// ===== PUBLIC ROUTES =====

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"MovieGPT API"}`)) //nolint:errcheck
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if d.Issuer != nil {
		r.Post("/auth/token", handlers.NewTokenHandler(d.Issuer, d.ClientSecretHash).Token)
	}

	// ===== API ROUTES =====

	chatHandler := handlers.NewChatHandler(d.Chat, d.Log)
	infoHandler := handlers.NewInfoHandler(d.Metadata)
	auditHandler := handlers.NewAuditHandler(d.Audit)

	r.Route("/api", func(r chi.Router) {
		if d.Issuer != nil {
			r.Use(apmiddleware.Auth(d.Issuer))
		}
		r.Post("/chat", chatHandler.Chat)          // POST /api/chat
		r.Post("/chat/stream", chatHandler.Stream) // POST /api/chat/stream
		r.Get("/history", chatHandler.History)     // GET /api/history
		r.Post("/clear", chatHandler.Clear)        // POST /api/clear
		r.Get("/info/{imdbId}", infoHandler.Get)   // GET /api/info/{imdbId}
		r.Get("/audit", auditHandler.List)         // GET /api/audit
	})

	return r
}
