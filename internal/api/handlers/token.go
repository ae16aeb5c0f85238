package handlers

import (
	"net/http"
	"time"

	pkgauth "github.com/matiasleandrokruk/moviegpt/pkg/auth"
)

// TokenHandler exchanges the shared client secret for a bearer token.
type TokenHandler struct {
	issuer     *pkgauth.Issuer
	secretHash string
}

func NewTokenHandler(issuer *pkgauth.Issuer, secretHash string) *TokenHandler {
	return &TokenHandler{issuer: issuer, secretHash: secretHash}
}

type tokenRequest struct {
	ClientID     string `json:"clientId" validate:"required,max=64"`
	ClientSecret string `json:"clientSecret" validate:"required"`
}

// TokenResponse is the body of POST /auth/token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Token handles POST /auth/token.
//
// Response codes:
//   - 200 OK: token issued, subject = clientId
//   - 400 Bad Request: invalid JSON or missing fields
//   - 401 Unauthorized: wrong client secret
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !pkgauth.VerifySecret(h.secretHash, req.ClientSecret) {
		writeError(w, http.StatusUnauthorized, "invalid client credentials")
		return
	}
	token, exp, err := h.issuer.Generate(req.ClientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: exp})
}
