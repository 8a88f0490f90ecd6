package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	mw "sanctuary/internal/middleware"
)

// Deps are the fully constructed components the router mounts.
type Deps struct {
	Logger         *zap.Logger
	AllowedOrigins []string

	// TrustProxy lets forwarding headers set the client address used for
	// logging and rate limiting.
	TrustProxy bool

	Auth     *AuthHandler
	Users    *UserHandler
	Journal  *JournalHandler
	Payments *PaymentsHandler
	Health   *HealthHandler

	Authn       *mw.AuthMiddleware
	AuthLimiter *mw.RateLimiter
	Metrics     http.Handler
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(mw.ZapRequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", d.Health.Root)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/", d.Health.APIRoot)
		api.Get("/health", d.Health.Health)

		api.Group(func(limited chi.Router) {
			if d.AuthLimiter != nil {
				limited.Use(d.AuthLimiter.Middleware)
			}
			limited.Post("/auth/register", d.Auth.Register)
			limited.Post("/auth/login", d.Auth.Login)
		})

		api.Group(func(pr chi.Router) {
			pr.Use(d.Authn.RequireAuth)
			pr.Get("/auth/me", d.Users.GetMe)
			pr.Post("/journal/entries", d.Journal.Create)
			pr.Get("/journal/entries", d.Journal.List)
			pr.Get("/journal/entries/{entryID}", d.Journal.Get)
			pr.Put("/journal/entries/{entryID}", d.Journal.Update)
			pr.Delete("/journal/entries/{entryID}", d.Journal.Delete)
		})

		api.Route("/payments", func(pay chi.Router) {
			pay.With(d.Authn.OptionalAuth).Post("/checkout/session", d.Payments.CreateSession)
			pay.Get("/checkout/status/{sessionID}", d.Payments.GetStatus)
			pay.Post("/webhook", d.Payments.Webhook)
		})
	})

	return r
}
