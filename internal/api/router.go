package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/acp/internal/api/middleware"
	"github.com/eldtechnologies/acp/internal/handlers"
	"github.com/eldtechnologies/acp/internal/store"
)

const maxBodyBytes = 16 * 1024

// NewRouter creates and configures the HTTP router. redisStore is optional:
// without it requests are not rate limited and nonces are tracked in
// process memory.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, redisStore *store.RedisStore, rlCfg middleware.RateLimiterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	var nonces middleware.NonceStore = middleware.NewMemoryNonces()
	if redisStore != nil {
		// Rate limiting
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, rlCfg)
		r.Use(limiter.Middleware)
		nonces = redisStore
	} else {
		logger.Warn().Msg("redis not configured: rate limiting disabled, nonces tracked in process")
	}

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			middleware.HeaderIdentity, middleware.HeaderNonce,
			middleware.HeaderTimestamp, middleware.HeaderSignature,
		},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(nonces)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/agents", h.BrowseAgents)
	r.Get("/agents/{address}", h.GetAgent)
	r.Get("/jobs/{address}", h.GetJob)
	r.Get("/jobs/{address}/history", h.JobHistory)
	r.Get("/wallets/{address}/balance", h.WalletBalance)

	// Authenticated routes (require signature)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/agents", h.RegisterAgent)
		r.Get("/agents/me", h.MyAgent)
		r.Post("/jobs", h.SubmitJob)
		r.Get("/jobs", h.ListJobs)
		r.Post("/jobs/{address}/phases", h.AdvanceJob)
	})

	return r
}
