package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eldtechnologies/acp/internal/crypto"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// Request signing headers.
const (
	HeaderIdentity  = "X-ACP-Identity"
	HeaderNonce     = "X-ACP-Nonce"
	HeaderTimestamp = "X-ACP-Timestamp"
	HeaderSignature = "X-ACP-Signature"
)

const (
	minNonceLength = 24
	nonceTTL       = 3 * time.Minute
)

// NonceStore records used request nonces. UseNonce reports false when the
// nonce was already used by identity.
type NonceStore interface {
	UseNonce(ctx context.Context, identity, nonce string, ttl time.Duration) (bool, error)
}

// MemoryNonces is a process-local NonceStore for deployments without Redis.
// Entries age out of the cache after nonceTTL in the background, so a
// lookup never walks the whole set.
type MemoryNonces struct {
	mu    sync.Mutex // makes check-and-mark atomic
	cache *expirable.LRU[string, time.Time]
	now   func() time.Time
}

// NewMemoryNonces creates an empty in-process nonce cache.
func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{
		cache: expirable.NewLRU[string, time.Time](0, nil, nonceTTL),
		now:   time.Now,
	}
}

// UseNonce marks a nonce as used until ttl elapses. ttl is capped at
// nonceTTL.
func (m *MemoryNonces) UseNonce(_ context.Context, identity, nonce string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := identity + ":" + nonce
	if expiry, used := m.cache.Get(key); used && now.Before(expiry) {
		return false, nil
	}
	m.cache.Add(key, now.Add(min(ttl, nonceTTL)))
	return true, nil
}

// AuthMiddleware handles signature verification for authenticated endpoints.
// The identity is the caller's Ed25519 public key, so no registration is
// needed before a caller can sign.
type AuthMiddleware struct {
	nonces NonceStore
	window time.Duration
	now    func() time.Time
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(nonces NonceStore) *AuthMiddleware {
	return &AuthMiddleware{
		nonces: nonces,
		window: 30 * time.Second, // Tight window to minimize replay attack surface
		now:    time.Now,
	}
}

// RequireAuth middleware verifies Ed25519 signatures on requests.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract headers
		identity := r.Header.Get(HeaderIdentity)
		nonce := r.Header.Get(HeaderNonce)
		timestamp := r.Header.Get(HeaderTimestamp)
		signature := r.Header.Get(HeaderSignature)

		// Validate all headers present
		if identity == "" || nonce == "" || timestamp == "" || signature == "" {
			jsonError(w, http.StatusUnauthorized, "missing auth headers")
			return
		}

		// Parse and validate timestamp
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid timestamp format")
			return
		}
		if !m.isTimestampValid(ts) {
			jsonError(w, http.StatusUnauthorized, "timestamp expired or too far in future")
			return
		}

		// Validate nonce format (min 24 chars for adequate entropy)
		if len(nonce) < minNonceLength {
			jsonError(w, http.StatusUnauthorized, "nonce must be at least 24 characters")
			return
		}

		pubkey, err := crypto.ValidatePublicKey(identity)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid identity public key")
			return
		}

		// Read body and compute hash
		body, err := io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body)) // Reset for handler

		signedData := crypto.SignaturePayload(crypto.BodyHash(body), nonce, ts)
		if err := crypto.VerifySignature(pubkey, signedData, signature); err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		// Mark nonce as used; a second request with it is a replay
		fresh, err := m.nonces.UseNonce(r.Context(), identity, nonce, nonceTTL)
		if err != nil {
			jsonError(w, http.StatusServiceUnavailable, "nonce check unavailable")
			return
		}
		if !fresh {
			jsonError(w, http.StatusUnauthorized, "nonce already used")
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) isTimestampValid(ts int64) bool {
	now := m.now().UnixMilli()
	windowMs := m.window.Milliseconds()
	// Only accept timestamps from the past (within window), reject future timestamps
	return ts > now-windowMs && ts <= now
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetIdentityFromContext returns the authenticated caller identity, or ""
// outside RequireAuth.
func GetIdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(IdentityContextKey).(string)
	return identity
}
