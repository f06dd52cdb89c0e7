package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/trademate/api/internal/platform/requestctx"
)

// Failure is the v1 error envelope: {"ok":false,"title":...,"message":...,...extra}.
type Failure struct {
	Status  int
	Title   string
	Message string
	Extra   map[string]any
}

// NewFailure builds a Failure. A zero status is treated as 500.
func NewFailure(status int, title, message string) Failure {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Failure{
		Status:  status,
		Title:   sanitize(title, 80),
		Message: sanitize(message, 512),
	}
}

// BadRequest is the 400 validation failure.
func BadRequest(message string) Failure {
	return NewFailure(http.StatusBadRequest, "Validation failed", message)
}

// NotFound is the 404 failure.
func NotFound(message string) Failure {
	return NewFailure(http.StatusNotFound, "Not found", message)
}

// Conflict is the 409 failure used for ambiguous references and blocked transitions.
func Conflict(message string) Failure {
	return NewFailure(http.StatusConflict, "Conflict", message)
}

// Unauthorized is the 401 failure.
func Unauthorized(message string) Failure {
	return NewFailure(http.StatusUnauthorized, "Unauthorized", message)
}

// Internal is the 500 catch-all. The message is passed through for diagnostics.
func Internal(message string) Failure {
	return NewFailure(http.StatusInternalServerError, "Server error", message)
}

// With attaches extra top-level fields. Reserved keys are ignored.
func (f Failure) With(extra map[string]any) Failure {
	if len(extra) == 0 {
		return f
	}
	merged := make(map[string]any, len(f.Extra)+len(extra))
	for k, v := range f.Extra {
		merged[k] = v
	}
	for k, v := range extra {
		switch k {
		case "ok", "title", "message":
			continue
		}
		merged[k] = v
	}
	f.Extra = merged
	return f
}

// WriteSuccess writes {"ok":true,"data":data}.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"ok": true, "data": data})
}

// WriteFailure writes the v1 failure envelope with request and trace identifiers.
func WriteFailure(ctx context.Context, w http.ResponseWriter, f Failure) {
	if f.Status == 0 {
		f.Status = http.StatusInternalServerError
	}
	payload := make(map[string]any, len(f.Extra)+5)
	for k, v := range f.Extra {
		payload[k] = v
	}
	payload["ok"] = false
	payload["title"] = f.Title
	payload["message"] = f.Message
	addRequestIdentifiers(ctx, payload)
	writeJSON(w, f.Status, payload)
}

// WriteLegacy writes a pre-v1 payload as is. Legacy endpoints answer with {"message":...} on success
// and {"error":...} or {"message":...} on failure, chosen per endpoint.
func WriteLegacy(w http.ResponseWriter, status int, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	writeJSON(w, status, payload)
}

// WriteLegacyError writes {"error":message,...extra}.
func WriteLegacyError(w http.ResponseWriter, status int, message string, extra map[string]any) {
	payload := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		payload[k] = v
	}
	payload["error"] = sanitize(message, 512)
	writeJSON(w, status, payload)
}

func addRequestIdentifiers(ctx context.Context, payload map[string]any) {
	if ctx == nil {
		return
	}
	if id := sanitize(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if id := sanitize(requestctx.TraceID(ctx), 64); id != "" {
		payload["trace_id"] = id
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
