package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/library-loans/internal/config"
	"github.com/iliyamo/library-loans/internal/utils"
)

const secret = "test-secret"

func protected(t *testing.T, mws ...echo.MiddlewareFunc) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.GET("/who", func(c echo.Context) error {
		id, ok := UserID(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c), "username": c.Get(CtxUsername)})
	}, mws...)
	return e
}

func do(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, id int64, role string) string {
	at, err := utils.NewAccessToken(secret, id, "user", role, 5)
	require.NoError(t, err)
	return at.Token
}

func TestJWTAuth(t *testing.T) {
	e := protected(t, JWTAuth(secret))

	rec := do(e, http.MethodGet, "/who", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing bearer token"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/who", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/who", token(t, 7, "member"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"member","username":"user"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := protected(t, JWTAuth(secret), RequireRole("admin"))

	rec := do(e, http.MethodGet, "/who", token(t, 1, "member"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/who", token(t, 1, "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityKey(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, "anon", identityKey(c))
	c.Set(CtxUserID, int64(12))
	assert.Equal(t, "12", identityKey(c))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok)
}

func TestCacheKeyStrategies(t *testing.T) {
	e := echo.New()
	ctx := func(target string) echo.Context {
		return e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	}
	cfg := config.CacheConfig{Prefix: "p", KeyStrategy: "route_query"}
	a := cacheKeyFrom(cfg, ctx("/books?title=dune"))
	b := cacheKeyFrom(cfg, ctx("/books?title=emma"))
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "p:")

	cfg.KeyStrategy = "route"
	assert.Equal(t, cacheKeyFrom(cfg, ctx("/books?title=dune")), cacheKeyFrom(cfg, ctx("/books?title=emma")))
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, err := cw.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = cw.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", cw.buf.String())
	assert.Equal(t, "abcdef", rec.Body.String())
	assert.True(t, cw.truncated())
}

func TestDisabledRedisMiddlewaresPassThrough(t *testing.T) {
	e := echo.New()
	calls := 0
	h := func(c echo.Context) error { calls++; return c.NoContent(http.StatusCreated) }
	e.POST("/x", h,
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil),
		PurgeOnWrite(config.CacheConfig{Enabled: true}, nil, nil),
	)
	rec := do(e, http.MethodPost, "/x", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestParseBucketResult(t *testing.T) {
	res, err := parseBucketResult([]any{int64(1), int64(4), int64(0)})
	require.NoError(t, err)
	assert.Equal(t, bucketResult{Allowed: true, Remaining: 4}, res)

	res, err = parseBucketResult([]any{int64(0), int64(0), "1500"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(1500), res.RetryMs)

	_, err = parseBucketResult("nope")
	assert.Error(t, err)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/login")

	assert.Equal(t, "rl:ip:10.0.0.1:route:POST /login", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}, c))
	assert.Equal(t, "rl:user:anon", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(RequestID(), RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := do(e, http.MethodGet, "/ok", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/ok", fields["uri"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), fields["request_id"])
}
