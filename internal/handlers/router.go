package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/ieraasyl/PingService/internal/middleware"
)

// Routes holds everything the HTTP API is assembled from.
type Routes struct {
	Auth   *AuthHandler
	Pings  *PingHandler
	Health *HealthHandler

	// Tokens validates bearer tokens for the protected routes.
	Tokens middleware.AccessTokenValidator
	// Limiter throttles register, login and refresh per client IP. Nil
	// disables rate limiting.
	Limiter *middleware.RateLimiter

	AllowedOrigins []string
	RequestTimeout time.Duration
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// NewRouter builds the chi router for the whole API.
//
//	POST   /auth/register/             public, rate limited
//	POST   /auth/login/                public, rate limited
//	POST   /auth/refresh/              refresh cookie, rate limited
//	POST   /auth/logout/               refresh cookie
//	GET    /auth/current_user/         bearer
//	GET    /auth/sessions/             bearer
//	POST   /auth/sessions/revoke-others/ bearer
//	DELETE /auth/sessions/{id}/        bearer
//	GET    /pings/  POST /pings/       bearer
//	GET    /pings/latest/              bearer
//	GET|PATCH|DELETE /pings/{id}/      bearer
//	POST   /pings/{id}/respond/        bearer
//	GET    /health  /ready  /metrics
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	if rt.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.Recoverer())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(rt.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	if rt.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(rt.RequestTimeout))
	}

	// Set before any Route call so subrouters inherit them.
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/health", rt.Health.Health)
	r.Get("/ready", rt.Health.Ready)
	r.Handle("/metrics", middleware.MetricsHandler())

	limit := func(endpoint string) func(http.Handler) http.Handler {
		if rt.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return rt.Limiter.Limit(endpoint)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(limit("register")).Post("/register/", rt.Auth.Register)
		r.With(limit("login")).Post("/login/", rt.Auth.Login)
		r.With(limit("refresh")).Post("/refresh/", rt.Auth.Refresh)
		r.Post("/logout/", rt.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(rt.Tokens))
			r.Get("/current_user/", rt.Auth.CurrentUser)
			r.Get("/sessions/", rt.Auth.ListSessions)
			r.Post("/sessions/revoke-others/", rt.Auth.RevokeOtherSessions)
			r.Delete("/sessions/{id}/", rt.Auth.RevokeSession)
		})
	})

	r.Route("/pings", func(r chi.Router) {
		r.Use(middleware.JWTAuth(rt.Tokens))
		r.Get("/", rt.Pings.List)
		r.Post("/", rt.Pings.Create)
		r.Get("/latest/", rt.Pings.Latest)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", rt.Pings.Get)
			r.Patch("/", rt.Pings.Update)
			r.Delete("/", rt.Pings.Delete)
			r.Post("/respond/", rt.Pings.Respond)
		})
	})

	return r
}
