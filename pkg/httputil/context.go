package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/zitadel/oidc/v3/pkg/oidc"
	"go.uber.org/zap"
)

// ContextKey names values the middleware stores on requests.
type ContextKey string

const (
	RequestIDCtxKey ContextKey = "RequestID"
	LogEntryCtxKey  ContextKey = "LogEntry"
	OIDCUserCtxKey  ContextKey = "OIDCUser"
	BasicAuthCtxKey ContextKey = "BasicAuth"
)

// OIDCUser returns the introspected token of the request, if any.
func OIDCUser(r *http.Request) (*oidc.IntrospectionResponse, bool) {
	user, ok := r.Context().Value(OIDCUserCtxKey).(*oidc.IntrospectionResponse)
	return user, ok && user != nil
}

// BasicAuthUser returns the username verified by basic auth.
func BasicAuthUser(r *http.Request) (string, bool) {
	user, ok := r.Context().Value(BasicAuthCtxKey).(string)
	return user, ok && user != ""
}

func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDCtxKey).(string)
	return id
}

// Logger returns the request-scoped logger stored by the logger middleware,
// or a no-op logger.
func Logger(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value(LogEntryCtxKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// JSON writes data with statusCode. Encoding happens after the header is
// sent, so an encoding failure only truncates the body.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func Error(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, ErrorResponse{Code: statusCode, Message: message})
}
