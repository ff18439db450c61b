package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/config"
	"github.com/BaSui01/tokenflow/internal/ctxkeys"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(inner)

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	handler := Chain(okHandler(), SecurityHeaders(), RequestID())

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestChain_SkipsNilMiddleware(t *testing.T) {
	handler := Chain(okHandler(), nil, SecurityHeaders(), nil)
	w := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "ok", w.Body.String())
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	})
	handler := RequestID()(inner)

	t.Run("generated", func(t *testing.T) {
		w := serve(handler, httptest.NewRequest(http.MethodGet, "/stream", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("client supplied", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/stream", nil)
		r.Header.Set("X-Request-ID", "trace-abc")
		w := serve(handler, r)
		assert.Equal(t, "trace-abc", seen)
		assert.Equal(t, "trace-abc", w.Header().Get("X-Request-ID"))
	})

	t.Run("malformed replaced", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/stream", nil)
		r.Header.Set("X-Request-ID", "has space")
		serve(handler, r)
		assert.NotEqual(t, "has space", seen)
		assert.NotEmpty(t, seen)
	})
}

func TestRecovery(t *testing.T) {
	t.Run("before write", func(t *testing.T) {
		handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		w := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	})

	t.Run("after write", func(t *testing.T) {
		handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("partial"))
			panic("boom")
		}))
		w := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "partial", w.Body.String())
	})
}

func TestMiddleware_PreservesFlusher(t *testing.T) {
	flushed := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Write([]byte("x"))
		f.Flush()
		flushed = true
	})
	handler := Chain(inner,
		Recovery(zap.NewNop()),
		RequestLogger(zap.NewNop()),
		MetricsMiddleware(nil),
		OTelTracing(),
	)

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.True(t, flushed)
	assert.True(t, w.Flushed)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/stream", "/stream"},
		{"/ws/stream", "/ws/stream"},
		{"/healthz", "/healthz"},
		{"/stream/12345", "/stream/:id"},
		{"/sessions/550e8400-e29b-41d4-a716-446655440000", "/sessions/:id"},
		{"/other/name", "/other/name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	var subject string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = ctxkeys.Subject(r.Context())
		w.Write([]byte("ok"))
	})
	handler := APIKeyAuth([]string{"secret-key-1234"}, []string{"/healthz"}, true, nil, zap.NewNop())(inner)

	t.Run("missing key", func(t *testing.T) {
		w := serve(handler, httptest.NewRequest(http.MethodGet, "/stream", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})

	t.Run("header key", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/stream", nil)
		r.Header.Set("X-API-Key", "secret-key-1234")
		w := serve(handler, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "key:****1234", subject)
	})

	t.Run("query key", func(t *testing.T) {
		w := serve(handler, httptest.NewRequest(http.MethodGet, "/stream?api_key=secret-key-1234", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("skip path", func(t *testing.T) {
		w := serve(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", Issuer: "tokenflow", Audience: "cli"}

	var subject string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = ctxkeys.Subject(r.Context())
	})
	handler := JWTAuth(cfg, []string{"/health"}, nil, zap.NewNop())(inner)

	valid := jwt.MapClaims{
		"sub": "alice",
		"iss": "tokenflow",
		"aud": "cli",
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + signToken(t, "s3cret", valid), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", valid), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{
			"sub": "alice", "iss": "someone", "aud": "cli", "exp": time.Now().Add(time.Hour).Unix(),
		}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{
			"sub": "alice", "iss": "tokenflow", "aud": "cli", "exp": time.Now().Add(-time.Hour).Unix(),
		}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			r := httptest.NewRequest(http.MethodGet, "/stream", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := serve(handler, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "alice", subject)
			}
		})
	}

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	ctx := t.Context()
	handler := RateLimiter(ctx, 1, 2, nil, zap.NewNop())(okHandler())

	codes := make([]int, 0, 3)
	for range 3 {
		r := httptest.NewRequest(http.MethodGet, "/stream", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		codes = append(codes, serve(handler, r).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 其他 IP 不受影响
	r := httptest.NewRequest(http.MethodGet, "/stream", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, serve(handler, r).Code)
}

func TestVisitorTable_Sweep(t *testing.T) {
	table := newVisitorTable(1, 1)
	start := time.Unix(1_700_000_000, 0)

	assert.True(t, table.allow("10.0.0.1", start))
	assert.False(t, table.allow("10.0.0.1", start))
	assert.True(t, table.allow("10.0.0.2", start.Add(2*time.Minute)))
	require.Equal(t, 2, table.size())

	assert.Equal(t, 1, table.sweep(start.Add(4*time.Minute), 3*time.Minute))
	assert.Equal(t, 1, table.size())

	// 被清理的 IP 重新获得完整的突发额度
	assert.True(t, table.allow("10.0.0.1", start.Add(4*time.Minute)))
}

func TestAPIKeyAuth_MultipleKeys(t *testing.T) {
	handler := APIKeyAuth([]string{"", "first-key-aaaa", "second-key-bbbb"}, nil, false, nil, zap.NewNop())(okHandler())

	for key, want := range map[string]int{
		"first-key-aaaa":  http.StatusOK,
		"second-key-bbbb": http.StatusOK,
		"second-key":      http.StatusUnauthorized,
		"":                http.StatusUnauthorized,
	} {
		r := httptest.NewRequest(http.MethodGet, "/stream", nil)
		r.Header.Set("X-API-Key", key)
		assert.Equal(t, want, serve(handler, r).Code, key)
	}

	// 未开启时忽略 query 参数
	r := httptest.NewRequest(http.MethodGet, "/stream?api_key=first-key-aaaa", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(handler, r).Code)
}

func TestStreamLimiter(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	})
	handler := StreamLimiter(1, nil, zap.NewNop())(inner)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(handler, httptest.NewRequest(http.MethodGet, "/stream", nil))
	}()
	<-entered

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	close(release)
	wg.Wait()

	// 释放后可以再次进入
	done := make(chan struct{})
	go func() {
		serve(handler, httptest.NewRequest(http.MethodGet, "/stream", nil))
		close(done)
	}()
	<-entered
	<-done
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/stream", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := serve(handler, r)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/stream", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = serve(handler, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/stream", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w = serve(handler, r)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// 未配置来源时拒绝预检
	closed := CORS(nil)(okHandler())
	r = httptest.NewRequest(http.MethodOptions, "/stream", nil)
	r.Header.Set("Origin", "https://app.example.com")
	assert.Equal(t, http.StatusForbidden, serve(closed, r).Code)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", maskKey("abc"))
	assert.True(t, strings.HasSuffix(maskKey("abcdefgh"), "efgh"))
}
