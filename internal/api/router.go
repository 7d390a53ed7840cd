package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/api/middleware"
	"github.com/eldtechnologies/messenger/internal/handlers"
	"github.com/eldtechnologies/messenger/internal/messenger"
	"github.com/eldtechnologies/messenger/internal/store"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Service   *messenger.Service
	Tables    store.Tables
	Cache     *store.RedisCache // optional; enables rate limiting
	Whitelist []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // message content is capped at 8KB
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis
	if deps.Cache != nil {
		limiter := middleware.NewRateLimiter(deps.Cache.Client(), logger,
			middleware.RateLimiterConfig{Whitelist: deps.Whitelist}, middleware.DefaultLimits())
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(deps.Service, deps.Tables, deps.Cache, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/messages", func(r chi.Router) {
			r.Post("/", h.SendMessage)
			r.Get("/conversation/{conversation_id}", h.GetConversationMessages)
			r.Get("/conversation/{conversation_id}/before", h.GetMessagesBefore)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/user/{user_id}", h.GetUserConversations)
			r.Get("/{conversation_id}", h.GetConversation)
		})
	})

	return r
}
