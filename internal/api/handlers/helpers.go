// Package handlers translates HTTP requests into chat, metadata and audit calls.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/matiasleandrokruk/moviegpt/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/conversation"
)

const headerContentType = "Content-Type"

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set(headerContentType, "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// decodeJSON reads a bounded body into dst and runs struct validation.
// An empty body decodes to the zero value before validation.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if verrs[0].Tag() == "required" {
				return fmt.Errorf("%s is required", verrs[0].Field())
			}
			return fmt.Errorf("%s fails %s=%s", verrs[0].Field(), verrs[0].Tag(), verrs[0].Param())
		}
		return err
	}
	return nil
}

// conversationKey scopes a client conversation ID to the authenticated
// subject, so two callers using the same ID never share history.
func conversationKey(ctx context.Context, id string) string {
	id = conversation.NormalizeID(id)
	if sub := ctxkeys.String(ctx, ctxkeys.Subject); sub != "" {
		return sub + "/" + id
	}
	return id
}

// queryInt returns the positive integer query param name, or fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 {
		return v
	}
	return fallback
}
