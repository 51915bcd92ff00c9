package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/authgate/authgate"
	"github.com/authgate/authgate/audit"
	"github.com/authgate/authgate/jwt"
	"github.com/authgate/authgate/ratelimit"
	"github.com/authgate/authgate/session"
)

// Deps are the collaborators a Server needs. Limiter and Auditor are
// optional; everything else is required.
type Deps struct {
	Config   authgate.Config
	Logger   *slog.Logger
	Codec    *jwt.Codec
	Engine   *authgate.PolicyEngine
	Sessions *session.Manager
	Users    authgate.UserRepository
	Verifier authgate.PasswordVerifier
	Limiter  *ratelimit.Limiter
	Auditor  *audit.Dispatcher
}

// Server carries the handler dependencies. Construct with NewServer and
// mount Router on an http.Server.
type Server struct {
	cfg      authgate.Config
	logger   *slog.Logger
	codec    *jwt.Codec
	engine   *authgate.PolicyEngine
	sessions *session.Manager
	users    authgate.UserRepository
	verifier authgate.PasswordVerifier
	limiter  *ratelimit.Limiter
	auditor  *audit.Dispatcher
}

// NewServer validates the dependency set and returns a Server.
func NewServer(deps Deps) (*Server, error) {
	if deps.Codec == nil {
		return nil, errors.New("httpapi: token codec is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("httpapi: policy engine is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("httpapi: session manager is required")
	}
	if deps.Users == nil {
		return nil, errors.New("httpapi: user repository is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("httpapi: password verifier is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		codec:    deps.Codec,
		engine:   deps.Engine,
		sessions: deps.Sessions,
		users:    deps.Users,
		verifier: deps.Verifier,
		limiter:  deps.Limiter,
		auditor:  deps.Auditor,
	}, nil
}

// Router builds the route tree. Refresh-cookie traffic is the only way
// into exchange-token; logout and me accept the access token over either
// transport.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))

	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.engine.RequirePolicy(authgate.PolicyCookieRefreshUser))
			r.Get("/exchange-token", s.handleExchangeToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.engine.RequirePolicy(authgate.PolicySession))
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latency, err := s.sessions.Ping(r.Context())
	if err != nil {
		respond(w, http.StatusServiceUnavailable, "Service degraded", map[string]any{
			"redis": "down",
		})
		return
	}
	respond(w, http.StatusOK, "OK", map[string]any{
		"redis":        "up",
		"redisLatency": latency.Round(time.Microsecond).String(),
	})
}
