// Package api exposes the carbon calculator and habit service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/netip"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rshade/ecohabit/internal/auth"
	"github.com/rshade/ecohabit/internal/carbon"
	"github.com/rshade/ecohabit/internal/habits"
)

// ReadinessFunc reports whether the server's dependencies are usable.
type ReadinessFunc func(ctx context.Context) error

// Config configures the HTTP server.
type Config struct {
	Auth           auth.Config
	RateLimit      rate.Limit
	RateLimitBurst int
	CORS           CORSConfig
	Ready          ReadinessFunc
	// TrustedProxies are the peers allowed to report the client address in
	// X-Forwarded-For or X-Real-IP.
	TrustedProxies []netip.Prefix
}

// Server serves the ecohabit HTTP API.
type Server struct {
	svc     *habits.Service
	calc    *carbon.Calculator
	cfg     Config
	logger  zerolog.Logger
	limiter *RateLimiter
	handler http.Handler
}

// NewServer builds the API. calc prices the public calculate endpoint and
// should be the calculator the service uses.
func NewServer(svc *habits.Service, calc *carbon.Calculator, cfg Config, logger zerolog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("habit service is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, errors.New("auth secret is required")
	}
	if calc == nil {
		calc = carbon.DefaultCalculator()
	}
	s := &Server{
		svc:    svc,
		calc:   calc,
		cfg:    cfg,
		logger: logger.With().Str("component", "api").Logger(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateLimitBurst)
	}
	s.handler = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{
			Code: CodeNotFound, Message: "route not found", TraceID: TraceIDFromContext(req.Context()),
		}})
	})
	r.Use(accessLog(s.logger, s.cfg.TrustedProxies))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware(s))
	}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authn := auth.NewAuthenticator(s.cfg.Auth,
		auth.WithPublic(auth.PathPrefixes("/v1/carbon/")),
		auth.WithErrorHandler(s.writeError),
	)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(authn.Middleware)
	v1.HandleFunc("/carbon/calculate", s.handleCalculate).Methods(http.MethodPost)
	v1.HandleFunc("/carbon/factors", s.handleFactors).Methods(http.MethodGet)
	v1.HandleFunc("/profile", s.handleSignUp).Methods(http.MethodPost)
	v1.HandleFunc("/profile", s.handleGetProfile).Methods(http.MethodGet)
	v1.HandleFunc("/profile", s.handleUpdateProfile).Methods(http.MethodPatch)
	v1.HandleFunc("/habits", s.handleTrackHabit).Methods(http.MethodPost)
	v1.HandleFunc("/habits", s.handleListHabits).Methods(http.MethodGet)
	v1.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	v1.HandleFunc("/challenges", s.handleListChallenges).Methods(http.MethodGet)
	v1.HandleFunc("/challenges/joined", s.handleListUserChallenges).Methods(http.MethodGet)
	v1.HandleFunc("/challenges/{id}/join", s.handleJoinChallenge).Methods(http.MethodPost)
	v1.HandleFunc("/challenges/{id}/progress", s.handleChallengeProgress).Methods(http.MethodPut)
	v1.HandleFunc("/challenges/{id}/complete", s.handleCompleteChallenge).Methods(http.MethodPost)

	// CORS and tracing wrap the router so preflight and unmatched requests see them too.
	var h http.Handler = r
	h = s.recoverMiddleware(h)
	if len(s.cfg.CORS.AllowedOrigins) > 0 {
		h = corsMiddleware(s.cfg.CORS)(h)
	}
	return traceMiddleware(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		if err := s.cfg.Ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
