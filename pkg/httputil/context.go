package httputil

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

type ContextKey string

const (
	RequestIDCtxKey ContextKey = "RequestID"
	LogEntryCtxKey  ContextKey = "LogEntry"
)

// RequestID returns the request id set by the RequestID middleware, or "".
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDCtxKey).(string)
	return id
}

// LogFields collects fields that handlers attach to the access log entry of
// their request.
type LogFields struct {
	fields []zap.Field
	mu     sync.Mutex
}

func (l *LogFields) Add(fields ...zap.Field) {
	l.mu.Lock()
	l.fields = append(l.fields, fields...)
	l.mu.Unlock()
}

func (l *LogFields) Fields() []zap.Field {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]zap.Field(nil), l.fields...)
}

// AddLogFields attaches fields to the request's access log entry. It does
// nothing when no logger middleware is installed.
func AddLogFields(r *http.Request, fields ...zap.Field) {
	if lf, ok := r.Context().Value(LogEntryCtxKey).(*LogFields); ok {
		lf.Add(fields...)
	}
}

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Text writes a plain text response with the given status code and text content.
func Text(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(text)); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// Error sends a JSON response with an error code and message.
func Error(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, ErrorResponse{Message: message})
}
