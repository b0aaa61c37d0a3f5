package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{"ok", http.StatusOK, "hello", "INFO"},
		{"implicit 200", 0, "hi", "INFO"},
		{"client error", http.StatusNotFound, "", "WARN"},
		{"server error", http.StatusInternalServerError, "boom", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				w.Write([]byte(tt.body))
			})
			h := chimiddleware.RequestID(Logger(logger)(inner))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
			wantStatus := tt.status
			if wantStatus == 0 {
				wantStatus = http.StatusOK
			}
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "request completed", entry["msg"])
			assert.Equal(t, "/api/tasks", entry["path"])
			assert.EqualValues(t, wantStatus, entry["status"])
			assert.EqualValues(t, len(tt.body), entry["bytes"])
			assert.NotEmpty(t, entry["requestID"])
		})
	}
}
