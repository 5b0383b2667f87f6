package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/acp/internal/crypto"
)

const testNonce = "abcdefghijklmnopqrstuvwxyz"

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(GetIdentityFromContext(r.Context()) + "|" + string(body)))
	})
}

func signedRequest(t *testing.T, id *crypto.Identity, body, nonce string, ts int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader(body))
	req.Header.Set(HeaderIdentity, id.PublicKeyB64())
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, id.SignRequest([]byte(body), nonce, ts))
	return req
}

func TestRequireAuth_AcceptsSignedRequest(t *testing.T) {
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	auth := NewAuthMiddleware(NewMemoryNonces())
	handler := auth.RequireAuth(echoIdentity())

	body := `{"name":"Helper Bot"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, id, body, testNonce, time.Now().UnixMilli()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, id.PublicKeyB64()+"|"+body, rec.Body.String(), "body is restored for the handler")
}

func TestRequireAuth_RejectsReplay(t *testing.T) {
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	handler := NewAuthMiddleware(NewMemoryNonces()).RequireAuth(echoIdentity())
	ts := time.Now().UnixMilli()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, signedRequest(t, id, "{}", testNonce, ts))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, signedRequest(t, id, "{}", testNonce, ts))
	assert.Equal(t, http.StatusUnauthorized, second.Code)
	assert.Contains(t, second.Body.String(), "nonce already used")
}

func TestRequireAuth_Rejections(t *testing.T) {
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	other, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	now := time.Now().UnixMilli()

	tests := []struct {
		name    string
		request func() *http.Request
		message string
	}{
		{
			name: "missing headers",
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader("{}"))
			},
			message: "missing auth headers",
		},
		{
			name: "bad timestamp",
			request: func() *http.Request {
				req := signedRequest(t, id, "{}", testNonce, now)
				req.Header.Set(HeaderTimestamp, "soon")
				return req
			},
			message: "invalid timestamp format",
		},
		{
			name: "expired",
			request: func() *http.Request {
				return signedRequest(t, id, "{}", testNonce, now-time.Minute.Milliseconds())
			},
			message: "timestamp expired",
		},
		{
			name: "future",
			request: func() *http.Request {
				return signedRequest(t, id, "{}", testNonce, now+time.Minute.Milliseconds())
			},
			message: "timestamp expired",
		},
		{
			name: "short nonce",
			request: func() *http.Request {
				return signedRequest(t, id, "{}", "short", now)
			},
			message: "nonce must be at least 24 characters",
		},
		{
			name: "bad identity",
			request: func() *http.Request {
				req := signedRequest(t, id, "{}", testNonce, now)
				req.Header.Set(HeaderIdentity, "not-a-key")
				return req
			},
			message: "invalid identity public key",
		},
		{
			name: "signed by someone else",
			request: func() *http.Request {
				req := signedRequest(t, other, "{}", testNonce, now)
				req.Header.Set(HeaderIdentity, id.PublicKeyB64())
				return req
			},
			message: "invalid signature",
		},
		{
			name: "tampered body",
			request: func() *http.Request {
				req := signedRequest(t, id, "{}", testNonce, now)
				req.Body = io.NopCloser(strings.NewReader(`{"x":1}`))
				return req
			},
			message: "invalid signature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthMiddleware(NewMemoryNonces()).RequireAuth(echoIdentity())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tt.request())
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
}

func TestMemoryNonces_Expire(t *testing.T) {
	nonces := NewMemoryNonces()
	clock := time.Unix(1_700_000_000, 0)
	nonces.now = func() time.Time { return clock }

	ctx := context.Background()
	fresh, err := nonces.UseNonce(ctx, "alice", testNonce, time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, _ = nonces.UseNonce(ctx, "alice", testNonce, time.Minute)
	assert.False(t, fresh)

	fresh, _ = nonces.UseNonce(ctx, "bob", testNonce, time.Minute)
	assert.True(t, fresh, "nonces are scoped to the identity")

	clock = clock.Add(2 * time.Minute)
	fresh, _ = nonces.UseNonce(ctx, "alice", testNonce, time.Minute)
	assert.True(t, fresh, "expired nonces may be reused")
}

func TestMemoryNonces_ConcurrentUseIsExclusive(t *testing.T) {
	nonces := NewMemoryNonces()
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		fresh atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := nonces.UseNonce(ctx, "alice", testNonce, nonceTTL); err == nil && ok {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
}

func TestMemoryNonces_TTLIsCapped(t *testing.T) {
	nonces := NewMemoryNonces()
	clock := time.Unix(1_700_000_000, 0)
	nonces.now = func() time.Time { return clock }
	ctx := context.Background()

	fresh, _ := nonces.UseNonce(ctx, "alice", testNonce, time.Hour)
	require.True(t, fresh)

	clock = clock.Add(nonceTTL)
	fresh, _ = nonces.UseNonce(ctx, "alice", testNonce, time.Hour)
	assert.True(t, fresh)
}

func TestGetIdentityFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", GetIdentityFromContext(context.Background()))
}
