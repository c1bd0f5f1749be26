package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSWithOptions(t *testing.T) {
	defaultHeaders := "Content-Type,Content-Length,Accept-Encoding,Authorization,accept,origin,Cache-Control,X-Requested-With,X-Request-Id"

	tests := []struct {
		options         *CORSOptions
		requestHeaders  map[string]string
		expectedHeaders map[string]string
		name            string
		method          string
		expectedStatus  int
	}{
		{
			name:    "default options",
			method:  http.MethodGet,
			options: nil,
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "*",
				"Access-Control-Allow-Methods":     "GET,POST,OPTIONS",
				"Access-Control-Allow-Headers":     defaultHeaders,
				"Access-Control-Allow-Credentials": "",
				"Access-Control-Expose-Headers":    "X-Request-Id",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "listed origin is echoed",
			method:         http.MethodPost,
			requestHeaders: map[string]string{"Origin": "http://example.com"},
			options: &CORSOptions{
				AllowedOrigins:   []string{"http://example.com", "http://other.example"},
				AllowedMethods:   []string{"GET", "POST"},
				AllowedHeaders:   []string{"Content-Type"},
				AllowCredentials: true,
			},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "http://example.com",
				"Access-Control-Allow-Methods":     "GET,POST",
				"Access-Control-Allow-Headers":     "Content-Type",
				"Access-Control-Allow-Credentials": "true",
				"Vary":                             "Origin",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unlisted origin",
			method:         http.MethodPost,
			requestHeaders: map[string]string{"Origin": "http://evil.example"},
			options:        &CORSOptions{AllowedOrigins: []string{"http://example.com"}},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin": "",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:    "empty options",
			method:  http.MethodGet,
			options: &CORSOptions{},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":   "",
				"Access-Control-Allow-Methods":  "",
				"Access-Control-Expose-Headers": "",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "preflight request",
			method:         http.MethodOptions,
			requestHeaders: map[string]string{"Origin": "http://example.com", "Access-Control-Request-Method": "POST"},
			options:        defaultCORSOptions(),
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
				"Access-Control-Allow-Headers": defaultHeaders,
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:            "plain OPTIONS reaches the handler",
			method:          http.MethodOptions,
			options:         defaultCORSOptions(),
			expectedHeaders: map[string]string{},
			expectedStatus:  http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://example.com", nil)
			for k, v := range tt.requestHeaders {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()

			handler := CORSWithOptions(tt.options)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			handler.ServeHTTP(rr, req)

			for header, expectedValue := range tt.expectedHeaders {
				assert.Equal(t, expectedValue, rr.Header().Get(header), "header %s", header)
			}
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}
