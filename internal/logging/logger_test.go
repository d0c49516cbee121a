package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"asset-pool-ledger/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LoggingConfig{Level: "WARN", JSONFormat: true}, &buf)

	l.Info().Msg("dropped")
	l.Warn().Str("asset_id", "a1").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line at WARN, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q", lines[0])
	}
	if entry["asset_id"] != "a1" || entry["message"] != "kept" {
		t.Errorf("Unexpected entry %v", entry)
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := NewWithWriter(config.LoggingConfig{Level: "INFO", JSONFormat: true}, &buf)

	r := gin.New()
	r.Use(GinMiddleware(base))
	var sawLogger bool
	r.GET("/ping", func(c *gin.Context) {
		sawLogger = FromContext(c.Request.Context()).GetLevel() != zerolog.Disabled
		c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get(TraceHeader) != "trace-123" {
		t.Errorf("Expected trace header echoed, got %q", w.Header().Get(TraceHeader))
	}
	if !sawLogger {
		t.Error("Expected request logger on the context")
	}
	if !strings.Contains(buf.String(), `"trace_id":"trace-123"`) || !strings.Contains(buf.String(), `"status_code":200`) {
		t.Errorf("Unexpected log output %q", buf.String())
	}
}

func TestFromContext_Default(t *testing.T) {
	if FromContext(context.Background()).GetLevel() != zerolog.Disabled {
		t.Error("Expected disabled logger for a bare context")
	}
}
