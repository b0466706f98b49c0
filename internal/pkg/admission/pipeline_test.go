package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TenantFox/internal/pkg/billing"
	"github.com/ManuelReschke/TenantFox/internal/pkg/ipallow"
	"github.com/ManuelReschke/TenantFox/internal/pkg/ratelimit"
)

const (
	testSecret = "whsec_3c1f0a9b7d"
	testKey    = "sig_key_8e2d4b6a"
	testPath   = "/webhooks/billing"
	clientAddr = "203.0.113.5"
)

var validBody = []byte(`{"id":"evt_1","type":"subscription.updated","data":{"status":"ACTIVE"}}`)

type fakeApplier struct {
	mu    sync.Mutex
	seen  map[string]bool
	calls int
	err   error
}

func (f *fakeApplier) ApplyVerifiedEvent(_ context.Context, payload json.RawMessage) (billing.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return billing.ApplyResult{}, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := string(payload)
	if f.seen[key] {
		return billing.ApplyResult{Duplicate: true}, nil
	}
	f.seen[key] = true
	return billing.ApplyResult{Processed: true}, nil
}

type stubApplier struct {
	result billing.ApplyResult
}

func (s stubApplier) ApplyVerifiedEvent(context.Context, json.RawMessage) (billing.ApplyResult, error) {
	return s.result, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("connection refused")
}

func testConfig() Config {
	return Config{SharedSecret: testSecret, SigningKey: testKey}
}

func newTestApp(p *Pipeline) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             1 << 20,
		DisableStartupMessage: true,
	})
	app.Post(testPath, p.Handle)
	return app
}

func newStreamingTestApp(p *Pipeline) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             1 << 20,
		StreamRequestBody:     true,
		DisableStartupMessage: true,
	})
	app.Post(testPath, p.Handle)
	return app
}

func signedRequest(body []byte, mutate func(r *http.Request)) *http.Request {
	req := httptest.NewRequest(http.MethodPost, testPath, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Real-IP", clientAddr)
	req.Header.Set(HeaderSecret, testSecret)
	req.Header.Set(HeaderSignature, billing.SignPayload(body, testKey))
	if mutate != nil {
		mutate(req)
	}
	return req
}

type reply struct {
	status int
	header http.Header
	raw    string
	body   map[string]any
}

func do(t *testing.T, app *fiber.App, req *http.Request) reply {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	r := reply{status: resp.StatusCode, header: resp.Header, raw: string(raw)}
	require.NoError(t, json.Unmarshal(raw, &r.body), r.raw)
	return r
}

func jsonBodyOfSize(n int) []byte {
	prefix := `{"id":"evt_big","type":"subscription.updated","pad":"`
	suffix := `"}`
	return []byte(prefix + strings.Repeat("a", n-len(prefix)-len(suffix)) + suffix)
}

func TestHandleAcceptsSignedEvent(t *testing.T) {
	applier := &fakeApplier{}
	recorder := &fakeRecorder{}
	app := newTestApp(New(testConfig(), ratelimit.NewFixedWindow(ratelimit.DefaultConfig()), applier, WithRecorder(recorder)))

	r := do(t, app, signedRequest(validBody, nil))

	assert.Equal(t, fiber.StatusOK, r.status)
	assert.Equal(t, map[string]any{"ok": true, "duplicate": false, "processed": true}, r.body)
	assert.Equal(t, 1, applier.calls)
	assert.Equal(t, []string{OutcomeProcessed}, recorder.outcomes)
}

func TestHandleReplayIsIdempotentPassThrough(t *testing.T) {
	applier := &fakeApplier{}
	app := newTestApp(New(testConfig(), ratelimit.NewFixedWindow(ratelimit.DefaultConfig()), applier))

	first := do(t, app, signedRequest(validBody, nil))
	second := do(t, app, signedRequest(validBody, nil))

	assert.Equal(t, fiber.StatusOK, first.status)
	assert.Equal(t, fiber.StatusOK, second.status)
	assert.Equal(t, false, first.body["duplicate"])
	assert.Equal(t, true, second.body["duplicate"])
	assert.Equal(t, false, second.body["processed"])
}

func TestHandleIgnoredEvent(t *testing.T) {
	recorder := &fakeRecorder{}
	app := newTestApp(New(testConfig(), nil, stubApplier{}, WithRecorder(recorder)))

	r := do(t, app, signedRequest(validBody, nil))

	assert.Equal(t, fiber.StatusOK, r.status)
	assert.Equal(t, map[string]any{"ok": true, "duplicate": false, "processed": false}, r.body)
	assert.Equal(t, []string{OutcomeIgnored}, recorder.outcomes)
}

func TestHandleAllowlist(t *testing.T) {
	cfg := testConfig()
	cfg.Allowlist = ipallow.New([]string{clientAddr})
	applier := &fakeApplier{}
	app := newTestApp(New(cfg, ratelimit.NewFixedWindow(ratelimit.DefaultConfig()), applier))

	allowed := do(t, app, signedRequest(validBody, nil))
	assert.Equal(t, fiber.StatusOK, allowed.status)

	other := do(t, app, signedRequest(validBody, func(r *http.Request) {
		r.Header.Set("X-Real-IP", "198.51.100.7")
	}))
	assert.Equal(t, fiber.StatusForbidden, other.status)
	assert.Equal(t, map[string]any{"ok": false, "error": CodeForbidden}, other.body)

	anonymous := do(t, app, signedRequest(validBody, func(r *http.Request) {
		r.Header.Del("X-Real-IP")
	}))
	assert.Equal(t, fiber.StatusForbidden, anonymous.status)

	assert.Equal(t, 1, applier.calls)
}

func TestHandleEmptyAllowlistAdmitsAnyAddress(t *testing.T) {
	app := newTestApp(New(testConfig(), nil, &fakeApplier{}))

	for i, ip := range []string{"198.51.100.7", "2001:db8::1", ""} {
		body := []byte(`{"id":"evt_` + strconv.Itoa(i) + `"}`)
		r := do(t, app, signedRequest(body, func(r *http.Request) {
			r.Header.Set("X-Real-IP", ip)
		}))
		assert.Equal(t, fiber.StatusOK, r.status, ip)
	}
}

func TestHandleRateLimit(t *testing.T) {
	recorder := &fakeRecorder{}
	limiter := ratelimit.NewFixedWindow(ratelimit.Config{Max: 3, Window: time.Minute})
	applier := &fakeApplier{}
	app := newTestApp(New(testConfig(), limiter, applier, WithRecorder(recorder)))

	for i := 0; i < 3; i++ {
		r := do(t, app, signedRequest(validBody, nil))
		require.Equal(t, fiber.StatusOK, r.status)
	}

	r := do(t, app, signedRequest(validBody, nil))
	assert.Equal(t, fiber.StatusTooManyRequests, r.status)
	assert.Equal(t, map[string]any{"ok": false, "error": CodeRateLimited}, r.body)

	retry, err := strconv.Atoi(r.header.Get(fiber.HeaderRetryAfter))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.LessOrEqual(t, retry, 60)

	// another client has its own window
	other := do(t, app, signedRequest(validBody, func(r *http.Request) {
		r.Header.Set("X-Real-IP", "198.51.100.7")
	}))
	assert.Equal(t, fiber.StatusOK, other.status)

	assert.Equal(t, 4, applier.calls)
	assert.Equal(t, CodeRateLimited, recorder.outcomes[3])
}

func TestHandleRateLimitCountsRejectedCallers(t *testing.T) {
	limiter := ratelimit.NewFixedWindow(ratelimit.Config{Max: 2, Window: time.Minute})
	app := newTestApp(New(testConfig(), limiter, &fakeApplier{}))

	for i := 0; i < 2; i++ {
		r := do(t, app, signedRequest(validBody, func(r *http.Request) {
			r.Header.Set(HeaderSecret, "wrong")
		}))
		require.Equal(t, fiber.StatusUnauthorized, r.status)
	}

	r := do(t, app, signedRequest(validBody, nil))
	assert.Equal(t, fiber.StatusTooManyRequests, r.status)
}

func TestHandleLimiterFailureAdmits(t *testing.T) {
	app := newTestApp(New(testConfig(), brokenLimiter{}, &fakeApplier{}))

	assert.Equal(t, fiber.StatusOK, do(t, app, signedRequest(validBody, nil)).status)
	assert.Equal(t, fiber.StatusUnauthorized, do(t, app, signedRequest(validBody, func(r *http.Request) {
		r.Header.Del(HeaderSignature)
	})).status)
}

func TestHandleMisconfiguration(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		mutate func(r *http.Request)
		status int
		code   string
	}{
		{
			name:   "secret not configured",
			cfg:    Config{SigningKey: testKey},
			status: fiber.StatusInternalServerError,
			code:   CodeServerMisconfigured,
		},
		{
			name: "secret not configured and caller sends nothing",
			cfg:  Config{SigningKey: testKey},
			mutate: func(r *http.Request) {
				r.Header.Del(HeaderSecret)
				r.Header.Del(HeaderSignature)
			},
			status: fiber.StatusInternalServerError,
			code:   CodeServerMisconfigured,
		},
		{
			name:   "signing key not configured",
			cfg:    Config{SharedSecret: testSecret},
			status: fiber.StatusInternalServerError,
			code:   CodeServerMisconfigured,
		},
		{
			name: "secret check runs before signing key check",
			cfg:  Config{SharedSecret: testSecret},
			mutate: func(r *http.Request) {
				r.Header.Set(HeaderSecret, "wrong")
			},
			status: fiber.StatusUnauthorized,
			code:   CodeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &fakeApplier{}
			app := newTestApp(New(tt.cfg, nil, applier))

			r := do(t, app, signedRequest(validBody, tt.mutate))

			assert.Equal(t, tt.status, r.status)
			assert.Equal(t, map[string]any{"ok": false, "error": tt.code}, r.body)
			assert.Zero(t, applier.calls)
		})
	}
}

func TestHandleAuthentication(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *http.Request)
		status int
	}{
		{
			name:   "missing secret",
			mutate: func(r *http.Request) { r.Header.Del(HeaderSecret) },
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "wrong secret of equal length",
			mutate: func(r *http.Request) { r.Header.Set(HeaderSecret, strings.Repeat("x", len(testSecret))) },
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "secret prefix",
			mutate: func(r *http.Request) { r.Header.Set(HeaderSecret, testSecret[:len(testSecret)-1]) },
			status: fiber.StatusUnauthorized,
		},
		{
			name: "secret from query",
			mutate: func(r *http.Request) {
				r.Header.Del(HeaderSecret)
				r.URL.RawQuery = "secret=" + testSecret
			},
			status: fiber.StatusOK,
		},
		{
			name: "secret from token query",
			mutate: func(r *http.Request) {
				r.Header.Del(HeaderSecret)
				r.URL.RawQuery = "token=" + testSecret
			},
			status: fiber.StatusOK,
		},
		{
			name: "whitespace padded query secret",
			mutate: func(r *http.Request) {
				r.Header.Del(HeaderSecret)
				r.URL.RawQuery = "secret=%20%20" + testSecret + "%09"
			},
			status: fiber.StatusUnauthorized,
		},
		{
			name: "token query with trailing space",
			mutate: func(r *http.Request) {
				r.Header.Del(HeaderSecret)
				r.URL.RawQuery = "token=" + testSecret + "%20"
			},
			status: fiber.StatusUnauthorized,
		},
		{
			name: "header wins over query",
			mutate: func(r *http.Request) {
				r.Header.Set(HeaderSecret, "wrong")
				r.URL.RawQuery = "secret=" + testSecret
			},
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "missing signature",
			mutate: func(r *http.Request) { r.Header.Del(HeaderSignature) },
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "signature from another key",
			mutate: func(r *http.Request) { r.Header.Set(HeaderSignature, billing.SignPayload(validBody, "other")) },
			status: fiber.StatusUnauthorized,
		},
		{
			name: "signature over reformatted body",
			mutate: func(r *http.Request) {
				var v any
				_ = json.Unmarshal(validBody, &v)
				reformatted, _ := json.MarshalIndent(v, "", "  ")
				r.Header.Set(HeaderSignature, billing.SignPayload(reformatted, testKey))
			},
			status: fiber.StatusUnauthorized,
		},
	}

	var unauthorizedBodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(New(testConfig(), nil, &fakeApplier{}))
			r := do(t, app, signedRequest(validBody, tt.mutate))
			assert.Equal(t, tt.status, r.status, r.raw)
			if r.status == fiber.StatusUnauthorized {
				unauthorizedBodies = append(unauthorizedBodies, r.raw)
			}
		})
	}

	require.NotEmpty(t, unauthorizedBodies)
	for _, b := range unauthorizedBodies {
		assert.Equal(t, unauthorizedBodies[0], b)
	}
}

func TestHandleDeclaredLengthRejectedBeforeSignature(t *testing.T) {
	applier := &fakeApplier{}
	app := newTestApp(New(testConfig(), nil, applier))
	body := jsonBodyOfSize(300 << 10)

	r := do(t, app, signedRequest(body, func(r *http.Request) {
		r.Header.Del(HeaderSignature)
	}))

	assert.Equal(t, fiber.StatusRequestEntityTooLarge, r.status)
	assert.Equal(t, map[string]any{"ok": false, "error": CodePayloadTooLarge}, r.body)
	assert.Zero(t, applier.calls)
}

func TestHandleAcceptsBodyUnderCeiling(t *testing.T) {
	app := newTestApp(New(testConfig(), nil, &fakeApplier{}))

	r := do(t, app, signedRequest(jsonBodyOfSize(200<<10), nil))

	assert.Equal(t, fiber.StatusOK, r.status)
}

// postChunked sends body without a Content-Length through a real listener.
func postChunked(t *testing.T, app *fiber.App, body []byte) reply {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	req, err := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+testPath, io.MultiReader(bytes.NewReader(body)))
	require.NoError(t, err)
	req.Header.Set("X-Real-IP", clientAddr)
	req.Header.Set(HeaderSecret, testSecret)
	req.Header.Set(HeaderSignature, billing.SignPayload(body, testKey))

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	r := reply{status: resp.StatusCode, header: resp.Header, raw: string(raw)}
	require.NoError(t, json.Unmarshal(raw, &r.body), r.raw)
	return r
}

func TestHandleUndeclaredLengthCheckedAfterRead(t *testing.T) {
	applier := &fakeApplier{}

	tooLarge := postChunked(t, newTestApp(New(testConfig(), nil, applier)), jsonBodyOfSize(300<<10))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, tooLarge.status)
	assert.Equal(t, CodePayloadTooLarge, tooLarge.body["error"])
	assert.Zero(t, applier.calls)

	ok := postChunked(t, newTestApp(New(testConfig(), nil, applier)), jsonBodyOfSize(200<<10))
	assert.Equal(t, fiber.StatusOK, ok.status)
	assert.Equal(t, 1, applier.calls)
}

func TestHandleInvalidJSON(t *testing.T) {
	applier := &fakeApplier{}
	app := newTestApp(New(testConfig(), nil, applier))

	r := do(t, app, signedRequest([]byte(`{"id":"evt_1",`), nil))

	assert.Equal(t, fiber.StatusBadRequest, r.status)
	assert.Equal(t, map[string]any{"ok": false, "error": CodeInvalidJSON}, r.body)
	assert.Zero(t, applier.calls)
}

func TestHandleInvalidJSONStillNeedsCredentials(t *testing.T) {
	app := newTestApp(New(testConfig(), nil, &fakeApplier{}))

	r := do(t, app, signedRequest([]byte(`not json`), func(r *http.Request) {
		r.Header.Set(HeaderSignature, "bm90IGEgc2lnbmF0dXJl")
	}))

	assert.Equal(t, fiber.StatusUnauthorized, r.status)
}

func TestHandleApplierFailureIsGeneric(t *testing.T) {
	recorder := &fakeRecorder{}
	applier := &fakeApplier{err: errors.New("Error 1213: Deadlock found when trying to get lock on billing_subscriptions")}
	app := newTestApp(New(testConfig(), nil, applier, WithRecorder(recorder)))

	r := do(t, app, signedRequest(validBody, nil))

	assert.Equal(t, fiber.StatusInternalServerError, r.status)
	assert.Equal(t, map[string]any{"ok": false, "error": CodeInternalError}, r.body)
	assert.NotContains(t, r.raw, "Deadlock")
	assert.NotContains(t, r.raw, "billing_subscriptions")
	assert.Equal(t, []string{CodeInternalError}, recorder.outcomes)
}

type panickingApplier struct{}

func (panickingApplier) ApplyVerifiedEvent(context.Context, json.RawMessage) (billing.ApplyResult, error) {
	panic("runtime error: invalid memory address in billing_subscriptions upsert")
}

func TestHandleApplierPanicIsGeneric(t *testing.T) {
	recorder := &fakeRecorder{}
	app := newTestApp(New(testConfig(), nil, panickingApplier{}, WithRecorder(recorder)))

	r := do(t, app, signedRequest(validBody, nil))

	assert.Equal(t, fiber.StatusInternalServerError, r.status)
	assert.Equal(t, map[string]any{"ok": false, "error": CodeInternalError}, r.body)
	assert.NotContains(t, r.raw, "billing_subscriptions")
	assert.Equal(t, []string{CodeInternalError}, recorder.outcomes)
}

func TestHandleSigningKeyIsUsedVerbatim(t *testing.T) {
	cfg := testConfig()
	cfg.SigningKey = testKey + " "
	app := newTestApp(New(cfg, nil, &fakeApplier{}))

	r := do(t, app, signedRequest(validBody, nil))

	assert.Equal(t, fiber.StatusUnauthorized, r.status)
}

func TestHandleStreamingBody(t *testing.T) {
	applier := &fakeApplier{}

	declared := do(t, newStreamingTestApp(New(testConfig(), nil, applier)), signedRequest(jsonBodyOfSize(300<<10), nil))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, declared.status)

	small := do(t, newStreamingTestApp(New(testConfig(), nil, applier)), signedRequest(validBody, nil))
	assert.Equal(t, fiber.StatusOK, small.status, small.raw)

	tooLarge := postChunked(t, newStreamingTestApp(New(testConfig(), nil, applier)), jsonBodyOfSize(300<<10))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, tooLarge.status)
	assert.Equal(t, CodePayloadTooLarge, tooLarge.body["error"])

	ok := postChunked(t, newStreamingTestApp(New(testConfig(), nil, applier)), jsonBodyOfSize(200<<10))
	assert.Equal(t, fiber.StatusOK, ok.status, ok.raw)
	assert.Equal(t, 2, applier.calls)
}

func TestBoundedBufferKeepsPrefix(t *testing.T) {
	b := &boundedBuffer{max: 4}

	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, "abcd", string(b.data))
}
