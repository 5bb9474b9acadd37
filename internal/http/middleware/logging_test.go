package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// logLines decodes the JSON lines written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	tests := []struct {
		name      string
		incoming  string
		propagate bool
	}{
		{"generated", "", false},
		{"propagated", "abc-123", true},
		{"too long", strings.Repeat("a", 129), false},
		{"header injection", "x\"y", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rid", nil)
			if tc.incoming != "" {
				req.Header.Set(strings.ToLower(requestIDHeader), tc.incoming)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q, context %q", got, w.Body.String())
			}
			if (got == tc.incoming) != tc.propagate {
				t.Fatalf("request id = %q; propagate=%v", got, tc.propagate)
			}
		})
	}
}

func TestRecovery_PanicToJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.POST("/coins/daily-claim", func(*gin.Context) { panic("ledger exploded") })

	req := httptest.NewRequest(http.MethodPost, "/coins/daily-claim", nil)
	req.Header.Set(requestIDHeader, "rid-panic")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-panic" {
		t.Fatalf("body = %v", body)
	}

	var panicLine map[string]any
	for _, l := range logLines(t, buf) {
		if l["message"] == "panic recovered" {
			panicLine = l
		}
	}
	if panicLine == nil || panicLine["panic"] != "ledger exploded" || panicLine["request_id"] != "rid-panic" {
		t.Fatalf("panic log = %v", panicLine)
	}
}

func TestRecovery_PanicAfterWrite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/partial", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/partial", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("JSON error written after body: %q", w.Body.String())
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	LoggerFrom(c).Info().Msg("fallback")

	scoped := log.With().Str("request_id", "rid-7").Logger()
	c.Set(loggerKey, &scoped)
	LoggerFrom(c).Info().Msg("scoped")

	lines := logLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
	if _, ok := lines[0]["request_id"]; ok {
		t.Fatalf("fallback logger carries request fields: %v", lines[0])
	}
	if lines[1]["request_id"] != "rid-7" {
		t.Fatalf("scoped logger = %v", lines[1])
	}
}
