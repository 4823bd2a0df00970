package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return &Logger{slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
}

func TestWithFields_AttachesSortedFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf).WithFields(map[string]any{"email": "a@x.com", "attempt": 2})

	l.Info("hello")

	out := buf.String()
	require.Contains(t, out, "msg=hello")
	assert.Less(t, strings.Index(out, "attempt=2"), strings.Index(out, "email=a@x.com"))
}

func TestGetLoggerFromContext_Fallback(t *testing.T) {
	assert.NotNil(t, GetLoggerFromContext(context.Background()))

	l := NewNop()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, GetLoggerFromContext(ctx))
}

func TestRequestLogger_LogsStatusAndInjectsLogger(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf)

	var injected *Logger
	h := middleware.RequestID(RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		injected = GetLoggerFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotNil(t, injected)
	assert.NotSame(t, base, injected)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "path=/health")
}
