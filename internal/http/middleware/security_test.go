package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecure(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.Any("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecure(t, SecurityOptions{}, nil, httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Fatalf("%s = %q; want %q", k, got, v)
		}
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security", "Access-Control-Expose-Headers"} {
		if got := h.Get(k); got != "" {
			t.Fatalf("unexpected %s = %q", k, got)
		}
	}
}

func TestSecurityHeaders_PrivatePrefixes(t *testing.T) {
	opt := SecurityOptions{PrivatePrefixes: []string{"/api/v1/coins", "/api/v1/me", ""}}
	tests := []struct {
		path    string
		noStore bool
	}{
		{"/api/v1/coins/balance", true},
		{"/api/v1/coins/events?limit=5", true},
		{"/api/v1/me", true},
		{"/api/v1/threads", false},
		{"/health", false},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			h := serveSecure(t, opt, nil, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if got := h.Get("Cache-Control") == "no-store"; got != tc.noStore {
				t.Fatalf("no-store = %v; want %v (headers %v)", got, tc.noStore, h)
			}
		})
	}
}

func TestSecurityHeaders_PolicyNoStoreAndHSTS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.TLS = &tls.ConnectionState{}
	h := serveSecure(t, SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, NoStore: true, EnablePolicy: true}, nil, req)

	if h.Get("Strict-Transport-Security") != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("hsts = %q", h.Get("Strict-Transport-Security"))
	}
	if h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("legacy cache headers missing: %v", h)
	}
	if h.Get("X-Permitted-Cross-Domain-Policies") != "none" || h.Get("Permissions-Policy") == "" {
		t.Fatalf("policy headers missing: %v", h)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true}

	plain := serveSecure(t, opt, nil, httptest.NewRequest(http.MethodGet, "/x", nil))
	if plain.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS sent over plain HTTP")
	}

	proxied := httptest.NewRequest(http.MethodGet, "/x", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	h := serveSecure(t, opt, nil, proxied)
	if h.Get("Strict-Transport-Security") != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default hsts = %q", h.Get("Strict-Transport-Security"))
	}
}

func TestSecurityHeaders_ExposeRequestID(t *testing.T) {
	tests := []struct {
		name   string
		preset string
		want   string
	}{
		{"empty", "", "X-Request-ID"},
		{"append", "ETag", "ETag, X-Request-ID"},
		{"no duplicate", "X-Request-ID, ETag", "X-Request-ID, ETag"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pre := func(c *gin.Context) {
				c.Header("X-Request-ID", "rid-1")
				if tc.preset != "" {
					c.Header("Access-Control-Expose-Headers", tc.preset)
				}
				c.Next()
			}
			h := serveSecure(t, SecurityOptions{}, pre, httptest.NewRequest(http.MethodGet, "/x", nil))
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q; want %q", got, tc.want)
			}
		})
	}
}
