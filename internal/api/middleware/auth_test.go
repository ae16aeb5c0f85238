package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/moviegpt/internal/api/middleware"
	pkgauth "github.com/matiasleandrokruk/moviegpt/pkg/auth"
)

// ===== HELPERS =====

func testIssuer(t *testing.T) *pkgauth.Issuer {
	t.Helper()
	iss, err := pkgauth.NewIssuer("test-secret-key-32-chars-min!!!", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

// nextHandler sets called=true and records the request context.
func nextHandler(called *bool, capturedCtx *context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if capturedCtx != nil {
			*capturedCtx = r.Context()
		}
		w.WriteHeader(http.StatusOK)
	})
}

func makeRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

// ===== AUTH =====

func TestAuth_Rejects(t *testing.T) {
	t.Parallel()

	iss := testIssuer(t)
	valid, _, err := iss.Generate("web")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	other, _ := pkgauth.NewIssuer("another-secret-another-secret!!", time.Hour)
	foreign, _, _ := other.Generate("web")

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"empty bearer", "Bearer "},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not.a.real.jwt"},
		{"tampered", "Bearer " + valid[:len(valid)-4] + "AAAA"},
		{"foreign secret", "Bearer " + foreign},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			called := false
			rr := httptest.NewRecorder()
			middleware.Auth(iss)(nextHandler(&called, nil)).ServeHTTP(rr, makeRequest(tc.header))

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d; want 401", rr.Code)
			}
			if called {
				t.Error("next handler should NOT be called")
			}
		})
	}
}

func TestAuth_ValidTokenInjectsSubject(t *testing.T) {
	t.Parallel()

	iss := testIssuer(t)
	token, _, err := iss.Generate("web")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	called := false
	var ctx context.Context
	rr := httptest.NewRecorder()
	middleware.Auth(iss)(nextHandler(&called, &ctx)).ServeHTTP(rr, makeRequest("Bearer "+token))

	if rr.Code != http.StatusOK || !called {
		t.Fatalf("status = %d, called = %v", rr.Code, called)
	}
	if got := ctxkeys.String(ctx, ctxkeys.Subject); got != "web" {
		t.Fatalf("subject = %q; want web", got)
	}
}

// ===== LOGGING / CORS =====

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

func TestRequestLogger_RecordsStatusAndFlushes(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(zerolog.Nop()))
	r.Get("/api/info/{imdbId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.(http.Flusher).Flush()
	})

	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/info/tt0000001", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d; want 418", rec.Code)
	}
	if !rec.flushed {
		t.Fatal("Flush was not forwarded")
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	called := false
	h := middleware.CORS()(nextHandler(&called, nil))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "Content-Type, Authorization")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, preflight)
	if rr.Code != http.StatusNoContent || called {
		t.Fatalf("preflight: status = %d, called = %v", rr.Code, called)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight Access-Control-Allow-Origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost) {
		t.Fatalf("Access-Control-Allow-Methods = %q", rr.Header().Get("Access-Control-Allow-Methods"))
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if !called || rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("GET should pass through with CORS headers")
	}
}
