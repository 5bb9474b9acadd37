package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxQueryLogLength = 1024

// RedactOptions configures RedactingLogger. MaskHeaders extends the built-in
// set (Authorization, Cookie, Set-Cookie); matching is case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	// UUIDs are not redacted: thread and answer ids are what operators grep
	// for. Contact details are.
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?\(?\d{3}\)?[ .-]\d{3}[ .-]\d{4}\b`)
)

func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger attaches a request-scoped zerolog logger (reachable from
// services through zerolog.Ctx) and writes one access log line per request.
// Bodies are never logged. The caller id is read after the handler chain so
// it is present once Identify has run.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}

		scoped := log.With().Str("request_id", rid).Logger()
		c.Set(loggerKey, &scoped)
		c.Request = c.Request.WithContext(scoped.WithContext(c.Request.Context()))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = routeUnmatched
		}
		status := c.Writer.Status()

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		if id, ok := IdentityFrom(c); ok {
			ev = ev.Str("user_id", id.UserID)
		}
		if IsReplay(c) {
			ev = ev.Bool("idempotent_replay", true)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}

		ev.Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", redactPII(c.Request.URL.Path)).
			Str("query", truncate(redactPII(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", headerDict(c.Request.Header, masked)).
			Msg("http_request")
	}
}

func headerDict(h map[string][]string, masked map[string]struct{}) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if _, ok := masked[strings.ToLower(k)]; ok {
			d.Str(k, "[REDACTED]")
			continue
		}
		d.Str(k, redactPII(strings.Join(vv, ", ")))
	}
	return d
}

// truncate caps s at max bytes; max <= 0 disables the cap.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
