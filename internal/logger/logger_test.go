package logger

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"info level", "info", zerolog.InfoLevel},
		{"warn level", "warn", zerolog.WarnLevel},
		{"error level", "error", zerolog.ErrorLevel},
		{"upper case", "DEBUG", zerolog.DebugLevel},
		{"default level", "", zerolog.InfoLevel},
		{"invalid level", "chatty", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetForTesting()
			var buf bytes.Buffer

			Setup(Config{
				Level:      tt.level,
				Output:     &buf,
				TimeFormat: time.RFC3339,
			})

			log := Get()
			require.NotNil(t, log)
			assert.Equal(t, tt.expected, log.GetLevel())
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatConsole, ParseLogFormat("console"))
	assert.Equal(t, FormatConsole, ParseLogFormat(" Console "))
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatJSON, ParseLogFormat("whatever"))
	assert.Equal(t, "json", FormatJSON.String())
}

func TestLogMethods(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: FormatJSON, Output: &buf})

	log.Debug("debug message", map[string]interface{}{"n": 1})
	log.Info("info message")
	log.Warn("warn message", nil)
	log.Error("error message", map[string]interface{}{"error": "boom"})

	out := buf.String()
	assert.Contains(t, out, `"message":"debug message"`)
	assert.Contains(t, out, `"n":1`)
	assert.Contains(t, out, `"message":"info message"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: FormatJSON, Output: &buf})

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: FormatJSON, Output: &buf})

	child := log.WithFields(map[string]interface{}{"component": "test", "count": 42})
	child.Info("with fields")

	assert.Contains(t, buf.String(), `"component":"test"`)
	assert.Contains(t, buf.String(), `"count":42`)
	assert.Same(t, log, log.WithFields(nil))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	assert.NotPanics(t, func() {
		log.Info("nothing")
		log.Warn("nothing")
		log.Error("nothing")
		log.Debug("nothing")
	})
	assert.Equal(t, zerolog.NoLevel, log.GetLevel())
}

func TestContext(t *testing.T) {
	ResetForTesting()
	log := Nop()

	ctx := NewContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))

	assert.Equal(t, context.Background(), NewContext(context.Background(), nil))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	ResetForTesting()
	Setup(Config{Level: "info", Format: FormatJSON, Output: &buf})

	handler := RequestIDMiddleware(HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=dune", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))

	out := buf.String()
	assert.Contains(t, out, `"method":"GET"`)
	assert.Contains(t, out, `"path":"/api/search"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"request_id":"req-123"`)
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(ContextKeyRequestID).(string)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))
}

func TestResponseWriterWrapper(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapper := &responseWriterWrapper{ResponseWriter: rr, status: http.StatusOK}

	wrapper.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, wrapper.Status())
	assert.Equal(t, http.StatusNotFound, rr.Code)

	n, err := wrapper.Write([]byte("test"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "test", rr.Body.String())
}
