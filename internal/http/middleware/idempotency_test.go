package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// memStore is an in-memory IdempotencyStore.
type memStore struct {
	mu      sync.Mutex
	recs    map[string]StoredResponse
	lookups int
	saves   int
	failGet bool
}

func newMemStore() *memStore { return &memStore{recs: map[string]StoredResponse{}} }

func (m *memStore) Lookup(_ context.Context, userID, scope, key string, now time.Time) (*StoredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if now.IsZero() {
		return nil, errors.New("zero time")
	}
	if m.failGet {
		return nil, errors.New("db down")
	}
	if r, ok := m.recs[userID+"|"+scope+"|"+key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memStore) Save(_ context.Context, userID, scope, key string, resp StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.recs[userID+"|"+scope+"|"+key] = resp
	return nil
}

func withUser(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid != "" {
			c.Set("userID", uid)
		}
		c.Next()
	}
}

func TestHelpers_GetIdempotencyKey_IsReplay_UserIDFromCtx(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("expected GetIdempotencyKey to be absent for non-string value")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("expected IsReplay=true")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false for non-bool")
	}

	if got := userIDFromCtx(c); got != "" {
		t.Fatalf("anonymous userIDFromCtx = %q", got)
	}
	c.Set("userID", "u1")
	if got := userIDFromCtx(c); got != "u1" {
		t.Fatalf("userIDFromCtx = %q", got)
	}
	c.Set("userID", 42)
	if got := userIDFromCtx(c); got != "" {
		t.Fatalf("wrong-type userIDFromCtx = %q", got)
	}
}

func TestIdempotencyValidator_NoHeaderOrSafeMethod_Untouched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newMemStore()
	r := gin.New()
	r.Use(withUser("u1"), IdempotencyValidator(IdempotencyOptions{}, st))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/ping", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("GET: expected 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ping", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("POST: expected 201, got %d", w.Code)
	}
	if st.lookups != 0 || st.saves != 0 {
		t.Fatalf("store touched: lookups=%d saves=%d", st.lookups, st.saves)
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{"default pattern", IdempotencyOptions{}, "has space"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(IdempotencyValidator(tc.opts, nil))
			r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set(HeaderIdempotencyKey, tc.key)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["code"] != "bad_idempotency_key" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_StoresAndReplays(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newMemStore()
	calls := 0

	r := gin.New()
	r.Use(withUser("u9"), IdempotencyValidator(IdempotencyOptions{}, st))
	r.POST("/threads", func(c *gin.Context) {
		calls++
		key, _ := GetIdempotencyKey(c)
		if key != "k-9" {
			t.Fatalf("stashed key = %q", key)
		}
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/threads", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-9")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send()
	if first.Code != http.StatusCreated || first.Header().Get(HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first: code=%d replayed=%q", first.Code, first.Header().Get(HeaderIdempotencyReplayed))
	}
	second := send()
	if second.Code != http.StatusCreated || second.Header().Get(HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("second: code=%d replayed=%q", second.Code, second.Header().Get(HeaderIdempotencyReplayed))
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body %q != %q", second.Body.String(), first.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times; want 1", calls)
	}
	if _, ok := st.recs["u9|POST /threads|k-9"]; !ok {
		t.Fatalf("record not keyed by user and scope: %v", st.recs)
	}
}

func TestIdempotencyValidator_ScopeAndUserIsolation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newMemStore()
	calls := 0
	handler := func(c *gin.Context) { calls++; c.JSON(http.StatusOK, gin.H{"ok": true}) }

	for _, uid := range []string{"a", "b"} {
		r := gin.New()
		r.Use(withUser(uid), IdempotencyValidator(IdempotencyOptions{}, st))
		r.POST("/answers/:id/like", handler)
		for _, path := range []string{"/answers/1/like", "/answers/2/like"} {
			req := httptest.NewRequest(http.MethodPost, path, nil)
			req.Header.Set(HeaderIdempotencyKey, "same")
			r.ServeHTTP(httptest.NewRecorder(), req)
		}
	}
	if calls != 4 {
		t.Fatalf("handler ran %d times; want 4", calls)
	}
}

func TestIdempotencyValidator_FailuresAndAnonymousNotStored(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newMemStore()

	r := gin.New()
	r.Use(withUser("u1"), IdempotencyValidator(IdempotencyOptions{}, st))
	r.POST("/bad", func(c *gin.Context) { c.JSON(http.StatusConflict, gin.H{"code": "conflict"}) })
	req := httptest.NewRequest(http.MethodPost, "/bad", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if st.saves != 0 {
		t.Fatalf("non-2xx must not be stored")
	}

	anon := gin.New()
	anon.Use(IdempotencyValidator(IdempotencyOptions{}, st))
	anon.POST("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	req = httptest.NewRequest(http.MethodPost, "/ok", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	anon.ServeHTTP(httptest.NewRecorder(), req)
	if st.lookups != 1 || st.saves != 0 {
		t.Fatalf("anonymous request touched store: lookups=%d saves=%d", st.lookups, st.saves)
	}
}

func TestIdempotencyValidator_LookupErrorRunsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newMemStore()
	st.failGet = true

	r := gin.New()
	r.Use(withUser("u1"), IdempotencyValidator(IdempotencyOptions{}, st))
	r.POST("/x", func(c *gin.Context) {
		if IsReplay(c) || IsRateBypass(c) {
			t.Fatalf("no replay expected on lookup error")
		}
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIdempotencyValidator_ConcurrentRetryGets409(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	entered := make(chan struct{})
	release := make(chan struct{})

	r := gin.New()
	r.Use(withUser("u1"), IdempotencyValidator(IdempotencyOptions{}, store))
	r.POST("/threads", func(c *gin.Context) {
		close(entered)
		<-release
		c.JSON(http.StatusCreated, gin.H{"id": "t1"})
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/threads", nil)
		req.Header.Set(HeaderIdempotencyKey, "stake-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := make(chan *httptest.ResponseRecorder)
	go func() { first <- send() }()
	<-entered

	if w := send(); w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "idempotency_in_progress") {
		t.Fatalf("concurrent retry = %d %s", w.Code, w.Body.String())
	}
	close(release)
	if w := <-first; w.Code != http.StatusCreated {
		t.Fatalf("first attempt = %d", w.Code)
	}

	w := send()
	if w.Code != http.StatusCreated || w.Header().Get(HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("retry after completion = %d replayed=%q", w.Code, w.Header().Get(HeaderIdempotencyReplayed))
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d; want 1", store.saves)
	}
}
