package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey carries the client's key for an unsafe request.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotencyReplayed is "true" on responses served from the store.
	HeaderIdempotencyReplayed = "Idempotency-Replayed"
)

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	maxScopeLen = 255
)

var defaultIdemKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key of the current request.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a stored response was served for this request.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts key characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Now is the lookup clock; nil means time.Now.
	Now func() time.Time
}

// StoredResponse is a previously completed response.
type StoredResponse struct {
	Status int
	Body   []byte
}

// IdempotencyStore persists completed responses. TTL enforcement belongs to
// the store: Lookup returns (nil, nil) for missing or expired records.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string, now time.Time) (*StoredResponse, error)
	Save(ctx context.Context, userID, scope, key string, resp StoredResponse) error
}

// IdempotencyValidator validates the Idempotency-Key header on unsafe
// requests and, with a non-nil store, replays or records responses.
//
// Behavior:
//   - Safe methods and requests without the header pass through untouched.
//   - An invalid header is answered with 400.
//   - Anonymous requests are validated but never stored or replayed.
//   - A stored response is written back verbatim with Idempotency-Replayed:
//     true and the handler chain is skipped.
//   - A retry that arrives while the first attempt is still running gets 409
//     idempotency_in_progress instead of running the handler twice.
//   - Otherwise the handler runs and a 2xx response is saved. Store failures
//     are logged and never fail the request.
//
// Install it after Identify so the caller id is known.
func IdempotencyValidator(opts IdempotencyOptions, store IdempotencyStore) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemKeyPattern
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var inflight sync.Map

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := userIDFromCtx(c)
		if store == nil || uid == "" {
			c.Next()
			return
		}
		scope := idempotencyScope(c)
		ctx := c.Request.Context()

		// Hold the slot before looking up so a finished attempt is always seen.
		slot := uid + "|" + scope + "|" + key
		if _, busy := inflight.LoadOrStore(slot, struct{}{}); busy {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "idempotency_in_progress",
				"message":    "a request with this Idempotency-Key is still being processed",
			})
			return
		}
		defer inflight.Delete(slot)

		prev, err := store.Lookup(ctx, uid, scope, key, now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		}
		if prev != nil {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
			c.Header(HeaderIdempotencyReplayed, "true")
			c.Data(prev.Status, "application/json; charset=utf-8", prev.Body)
			c.Abort()
			return
		}

		rec := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < 200 || status >= 300 {
			return
		}
		if err := store.Save(ctx, uid, scope, key, StoredResponse{Status: status, Body: rec.buf.Bytes()}); err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("idempotency save failed")
		}
	}
}

// captureWriter tees the response body so it can be stored.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func idempotencyScope(c *gin.Context) string {
	s := c.Request.Method + " " + c.Request.URL.Path
	if len(s) > maxScopeLen {
		s = s[:maxScopeLen]
	}
	return s
}

// userIDFromCtx extracts the caller id set by Identify, or "" when anonymous.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
