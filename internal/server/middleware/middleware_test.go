package middleware

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TryOn/internal/biz"
	pkglog "TryOn/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type headerCarrier nethttp.Header

func (hc headerCarrier) Get(key string) string      { return nethttp.Header(hc).Get(key) }
func (hc headerCarrier) Set(key, value string)      { nethttp.Header(hc).Set(key, value) }
func (hc headerCarrier) Add(key, value string)      { nethttp.Header(hc).Add(key, value) }
func (hc headerCarrier) Values(key string) []string { return nethttp.Header(hc).Values(key) }
func (hc headerCarrier) Keys() []string {
	keys := make([]string, 0, len(hc))
	for k := range nethttp.Header(hc) {
		keys = append(keys, k)
	}
	return keys
}

// testTransport is a minimal http.Transporter for driving middleware directly.
type testTransport struct {
	req   *nethttp.Request
	reply headerCarrier
}

func (tr *testTransport) Kind() transport.Kind            { return transport.KindHTTP }
func (tr *testTransport) Endpoint() string                { return "http://127.0.0.1:8000" }
func (tr *testTransport) Operation() string               { return "/tryon.v1.Upload/EnqueueUpload" }
func (tr *testTransport) RequestHeader() transport.Header { return headerCarrier(tr.req.Header) }
func (tr *testTransport) ReplyHeader() transport.Header   { return tr.reply }
func (tr *testTransport) Request() *nethttp.Request       { return tr.req }
func (tr *testTransport) PathTemplate() string            { return tr.req.URL.Path }

func newServerContext(req *nethttp.Request) (context.Context, *testTransport) {
	tr := &testTransport{req: req, reply: headerCarrier{}}
	return transport.NewServerContext(context.Background(), tr), tr
}

// MockAdmission is a mock implementation of biz.Admission for testing.
type MockAdmission struct {
	mock.Mock
}

func (m *MockAdmission) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func testLogger() *pkglog.LogHelper {
	return pkglog.NewLogHelper(log.DefaultLogger)
}

func newTestResolver(t *testing.T, trustedProxies, apiKeys []string) *ClientResolver {
	t.Helper()
	r, err := NewClientResolver(trustedProxies, apiKeys)
	require.NoError(t, err)
	return r
}

func TestNewClientResolver_InvalidProxy(t *testing.T) {
	_, err := NewClientResolver([]string{"proxy.internal"}, nil)
	assert.Error(t, err)

	_, err = NewClientResolver([]string{"10.0.0.0/33"}, nil)
	assert.Error(t, err)
}

func TestClientResolver_Key(t *testing.T) {
	resolver := newTestResolver(t, []string{"10.0.0.0/8", "192.0.2.1"}, nil)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr without port", remote: "198.51.100.20:51234", want: "ip:198.51.100.20"},
		{name: "remote addr without port info", remote: "198.51.100.20", want: "ip:198.51.100.20"},
		{name: "untrusted peer x-real-ip ignored", headers: map[string]string{"X-Real-IP": "203.0.113.5"}, remote: "198.51.100.20:80", want: "ip:198.51.100.20"},
		{name: "untrusted peer forwarded ignored", headers: map[string]string{"X-Forwarded-For": "203.0.113.5"}, remote: "198.51.100.20:80", want: "ip:198.51.100.20"},
		{name: "trusted peer x-real-ip wins", headers: map[string]string{"X-Real-IP": "203.0.113.5", "X-Forwarded-For": "198.51.100.1"}, remote: "10.0.0.1:80", want: "ip:203.0.113.5"},
		{name: "trusted peer nearest untrusted hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 198.51.100.1, 10.0.0.2"}, remote: "10.0.0.1:80", want: "ip:198.51.100.1"},
		{name: "trusted single ip peer", headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, remote: "192.0.2.1:80", want: "ip:198.51.100.1"},
		{name: "all hops trusted", headers: map[string]string{"X-Forwarded-For": "10.0.0.3, 10.0.0.2"}, remote: "10.0.0.1:80", want: "ip:10.0.0.3"},
		{name: "malformed hop falls back to peer", headers: map[string]string{"X-Forwarded-For": "not-an-ip"}, remote: "10.0.0.1:80", want: "ip:10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(nethttp.MethodGet, "/v1/uploads", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, resolver.Key(req))
		})
	}
}

func TestClientResolver_APIKey(t *testing.T) {
	resolver := newTestResolver(t, nil, []string{"sk-test-1234567890", "sk-test-other"})

	newReq := func(header, value string) *nethttp.Request {
		req := httptest.NewRequest(nethttp.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.20:4000"
		req.Header.Set(header, value)
		return req
	}

	key := resolver.Key(newReq("Authorization", "Bearer sk-test-1234567890"))
	assert.Regexp(t, `^key:[0-9a-f]{16}$`, key)
	assert.NotContains(t, key, "sk-test")
	assert.Equal(t, key, resolver.Key(newReq("X-API-Key", "sk-test-1234567890")))
	assert.NotEqual(t, key, resolver.Key(newReq("X-API-Key", "sk-test-other")))

	// Unknown keys do not buy a window of their own.
	assert.Equal(t, "ip:198.51.100.20", resolver.Key(newReq("X-API-Key", "sk-made-up")))
}

func TestRateLimit_IgnoresSpoofedHeaders(t *testing.T) {
	limiter, err := biz.NewRateLimiter(1, time.Minute)
	require.NoError(t, err)
	resolver := newTestResolver(t, []string{"10.0.0.0/8"}, []string{"sk-known"})

	handler := Logging(resolver, testLogger())(RateLimit(limiter, resolver, testLogger())(func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	}))

	admitted := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(nethttp.MethodGet, "/v1/uploads", nil)
		req.RemoteAddr = "198.51.100.20:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.114.%d", i))
		req.Header.Set("X-API-Key", fmt.Sprintf("sk-rotated-%d", i))
		ctx, _ := newServerContext(req)
		if _, err := handler(ctx, nil); err == nil {
			admitted++
		}
	}

	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, limiter.Len())
}

func TestLogging_SetsRequestContext(t *testing.T) {
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/uploads", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	ctx, tr := newServerContext(req)

	var seen *pkglog.RequestContext
	handler := Logging(newTestResolver(t, nil, nil), testLogger())(func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = pkglog.GetRequestContext(ctx)
		return "ok", nil
	})

	reply, err := handler(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	require.NotNil(t, seen)
	assert.Len(t, seen.RequestID, 12)
	assert.Equal(t, "ip:192.0.2.10", seen.ClientKey)
	assert.Equal(t, seen.RequestID, tr.reply.Get(RequestIDHeader))
}

func TestLogging_KeepsIncomingRequestID(t *testing.T) {
	req := httptest.NewRequest(nethttp.MethodGet, "/v1/uploads", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	ctx, tr := newServerContext(req)

	handler := Logging(newTestResolver(t, nil, nil), testLogger())(func(ctx context.Context, _ interface{}) (interface{}, error) {
		assert.Equal(t, "req-abc", pkglog.GetRequestID(ctx))
		return nil, kerrors.Conflict("UPLOAD_QUEUE_FULL", "full")
	})

	_, err := handler(ctx, nil)
	assert.True(t, kerrors.IsConflict(err))
	assert.Equal(t, "req-abc", tr.reply.Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/uploads", nil)
	req.RemoteAddr = "192.0.2.10:1234"

	tests := []struct {
		name       string
		allowed    bool
		allowErr   error
		wantCalled bool
	}{
		{name: "admitted", allowed: true, wantCalled: true},
		{name: "rejected", allowed: false, wantCalled: false},
		{name: "admission failure allows", allowed: false, allowErr: errors.New("redis: connection refused"), wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admission := new(MockAdmission)
			admission.On("Allow", mock.Anything, "ip:192.0.2.10").Return(tt.allowed, tt.allowErr)

			ctx, _ := newServerContext(req)
			called := false
			handler := RateLimit(admission, newTestResolver(t, nil, nil), testLogger())(func(context.Context, interface{}) (interface{}, error) {
				called = true
				return "ok", nil
			})

			_, err := handler(ctx, nil)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantCalled {
				assert.NoError(t, err)
			} else {
				se := kerrors.FromError(err)
				assert.Equal(t, int32(429), se.Code)
				assert.Equal(t, ReasonRateLimitExceeded, se.Reason)
			}
			admission.AssertExpectations(t)
		})
	}
}

func TestRateLimit_UsesClientKeyFromLogging(t *testing.T) {
	resolver := newTestResolver(t, nil, []string{"sk-test-1234567890"})
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/uploads", nil)
	req.Header.Set("X-API-Key", "sk-test-1234567890")
	ctx, _ := newServerContext(req)

	admission := new(MockAdmission)
	admission.On("Allow", mock.Anything, resolver.Key(req)).Return(true, nil).Once()

	chain := Logging(resolver, testLogger())(RateLimit(admission, resolver, testLogger())(func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	}))

	_, err := chain(ctx, nil)
	require.NoError(t, err)
	admission.AssertExpectations(t)
}
