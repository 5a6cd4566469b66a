// Package httpapi is the concrete HTTP host for the service-spawning
// middleware: a chi-routed server exposing a health check and an invoke
// endpoint per registered service, mirroring the teacher's internal/api
// server shape (chi.Router, stock middleware stack, bearer-token guard on
// everything but health).
//
// The route segment that selects which registered service handles a
// request (`/v1/services/{service}/invoke`) is distinct from the
// optional per-request `?code=` query override (spec.md §3/§6): the
// former picks a *handler*, the latter substitutes that handler's source
// for this call only. They are never read from the same place.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/brc-tools/svcrun/internal/coordinator"
	"github.com/brc-tools/svcrun/internal/envbuild"
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/middleware"
	"github.com/brc-tools/svcrun/internal/service"
	"github.com/brc-tools/svcrun/internal/spawn"
	"github.com/brc-tools/svcrun/internal/transpile"
	"github.com/brc-tools/svcrun/pkg/auth"
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Config configures the server.
type Config struct {
	Languages     *language.Registry
	Transpiler    *transpile.Registry
	EnvConfig     envbuild.Config
	StderrHandler coordinator.StderrHandler
	Validator     *auth.TokenValidator // nil disables auth entirely
	WriteTimeout  time.Duration
	Log           Logger
}

// Server owns one middleware.Handler per registered service and routes
// invoke requests to it by service id.
type Server struct {
	cfg      Config
	router   chi.Router
	handlers map[string]*middleware.Handler
}

// NewServer builds a Server with no registered services; call Register
// for each service the host wants reachable at /v1/services/{service}/invoke.
func NewServer(cfg Config) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = service.NopLogger{}
	}

	s := &Server{cfg: cfg, handlers: make(map[string]*middleware.Handler)}
	s.router = s.buildRouter()
	return s
}

// Register wires svc into the server under its own Code, building the
// middleware.Handler that dispatches to it. This Code is the service id
// used to look the handler up from the route; it is unrelated to the
// per-request `?code=` override a caller may send to substitute the
// source for a single invocation.
func (s *Server) Register(svc *service.Descriptor, spawner *spawn.Controller) {
	s.handlers[svc.Code] = middleware.New(middleware.Options{
		Service:       svc,
		Languages:     s.cfg.Languages,
		Spawner:       spawner,
		Transpiler:    s.cfg.Transpiler,
		EnvConfig:     s.cfg.EnvConfig,
		StderrHandler: s.cfg.StderrHandler,
		Log:           s.cfg.Log,
	})
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.cfg.WriteTimeout))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1/services", func(r chi.Router) {
		if s.cfg.Validator != nil {
			r.Use(s.authMiddleware)
		}
		r.Post("/{service}/invoke", s.handleInvoke)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "service")
	h, ok := s.handlers[serviceID]
	if !ok {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}
	h.ServeHTTP(w, r)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(r)
		if token == "" {
			http.Error(w, "missing authentication token", http.StatusUnauthorized)
			return
		}
		principal, err := s.cfg.Validator.ValidateToken(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid authentication token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying chi.Router for tests or custom mounting.
func (s *Server) Router() chi.Router {
	return s.router
}
