package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/acp/internal/crypto"
	"github.com/eldtechnologies/acp/internal/metrics"
)

const (
	autoBlockThreshold = 10
	autoBlockDuration  = 24 * time.Hour
	violationWindow    = time.Hour
)

// RateLimit is the request budget for one endpoint pattern. Every bucket
// returned by Keys gets the full budget; a request over any of them is
// rejected.
type RateLimit struct {
	Requests int
	Window   time.Duration
	Keys     func(r *http.Request) []string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Block IPs that keep exceeding their budget
}

type limitRule struct {
	pattern string // "METHOD /prefix"
	limit   RateLimit
}

// RateLimiter enforces per-endpoint sliding-window budgets in Redis.
type RateLimiter struct {
	client           *redis.Client
	rules            []limitRule // longest pattern first
	allow            allowList
	blocker          *IPBlocker
	logger           zerolog.Logger
	autoBlockEnabled bool
}

// NewRateLimiter creates a rate limiter over client.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:           client,
		allow:            parseAllowList(cfg.Whitelist, logger),
		blocker:          NewIPBlocker(client),
		logger:           logger,
		autoBlockEnabled: cfg.AutoBlockEnabled,
		rules: []limitRule{
			{"POST /agents", RateLimit{10, time.Hour, ipKeys}},
			{"GET /agents/me", RateLimit{60, time.Minute, identityKeys}},
			{"GET /agents", RateLimit{120, time.Minute, ipKeys}},
			{"POST /jobs/", RateLimit{60, time.Minute, identityKeys}},
			{"POST /jobs", RateLimit{30, time.Minute, identityKeys}},
			{"GET /jobs", RateLimit{120, time.Minute, identityKeys}},
			{"GET /wallets/", RateLimit{60, time.Minute, ipKeys}},
		},
	}
	sort.SliceStable(rl.rules, func(i, j int) bool {
		return len(rl.rules[i].pattern) > len(rl.rules[j].pattern)
	})

	if !rl.allow.empty() {
		logger.Info().
			Int("ips", len(rl.allow.ips)).
			Int("cidrs", len(rl.allow.nets)).
			Msg("rate limit whitelist configured")
	}
	return rl
}

// allowList holds exact IPs and CIDR ranges exempt from limiting.
type allowList struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

func parseAllowList(entries []string, logger zerolog.Logger) allowList {
	a := allowList{ips: make(map[string]struct{})}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			a.ips[entry] = struct{}{}
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		a.nets = append(a.nets, ipNet)
	}
	return a
}

func (a allowList) empty() bool {
	return len(a.ips) == 0 && len(a.nets) == 0
}

func (a allowList) contains(ipStr string) bool {
	if _, ok := a.ips[ipStr]; ok {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range a.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	return rl.allow.contains(ip)
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// ipKeys buckets requests by client IP.
func ipKeys(r *http.Request) []string {
	return []string{ipKey(r)}
}

// identityKeys buckets requests by the claimed signing identity and by
// client IP. The limiter runs before signatures are checked, so the IP
// bucket still applies to callers rotating identities.
func identityKeys(r *http.Request) []string {
	if identity := r.Header.Get(HeaderIdentity); identity != "" {
		return []string{"ratelimit:identity:" + identity, ipKey(r)}
	}
	return ipKeys(r)
}

// RealIP extracts the client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Allow records one request against key and reports whether it fits in
// the last window, with the remaining budget.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit RateLimit) (bool, int, error) {
	now := time.Now()
	cutoff := now.Add(-limit.Window).UnixMicro()

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: crypto.NewNonce()})
	pipe.PExpire(ctx, key, limit.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	used := int(count.Val())
	return used < limit.Requests, max(limit.Requests-used-1, 0), nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		pattern, limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining := true, limit.Requests
		for _, key := range limit.Keys(r) {
			ok, left, err := rl.Allow(r.Context(), key, *limit)
			if err != nil {
				// Fail open.
				rl.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
				continue
			}
			allowed = allowed && ok
			remaining = min(remaining, left)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(limit.Window).Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			metrics.RateLimitHits.WithLabelValues(pattern).Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("identity", r.Header.Get(HeaderIdentity)).
				Str("pattern", pattern).
				Msg("rate limit exceeded")

			rl.trackViolation(r.Context(), ip)
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit returns the longest rule pattern that prefixes the request's
// method and path, so "POST /jobs/" governs phase advances and
// "POST /jobs" governs submissions.
func (rl *RateLimiter) findLimit(r *http.Request) (string, *RateLimit) {
	key := r.Method + " " + r.URL.Path
	for _, rule := range rl.rules {
		if strings.HasPrefix(key, rule.pattern) {
			limit := rule.limit
			return rule.pattern, &limit
		}
	}
	return "", nil
}

// trackViolation counts rate limit violations per IP over the last hour
// and blocks the IP once it reaches autoBlockThreshold.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := "violations:ip:" + ip
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, violationWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("tracking violation failed")
		return
	}

	if count := incr.Val(); count >= autoBlockThreshold {
		if err := rl.blocker.Block(ctx, ip, autoBlockDuration, "repeated rate limit violations"); err != nil {
			rl.logger.Error().Err(err).Str("ip", ip).Msg("auto-block failed")
			return
		}
		metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker keeps temporary IP blocks in Redis.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return fmt.Sprintf("blocked:ip:%s", ip)
}

// IsBlocked reports whether ip is currently blocked. Lookup failures count
// as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block blocks ip for duration, storing reason as the value.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) error {
	return b.client.Set(ctx, blockKey(ip), reason, duration).Err()
}
