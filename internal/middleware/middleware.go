// Package middleware implements the Middleware Adapter (spec.md §4.8):
// adapting an incoming HTTP request/response pair to the Lifecycle
// Coordinator. Construction-time state (the service descriptor, spawn
// controller, transpiler registry) is immutable and shared across many
// concurrent requests; everything per-request is local to ServeHTTP.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brc-tools/svcrun/internal/coordinator"
	"github.com/brc-tools/svcrun/internal/envbuild"
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/service"
	"github.com/brc-tools/svcrun/internal/spawn"
	"github.com/brc-tools/svcrun/internal/svcerr"
	"github.com/brc-tools/svcrun/internal/transpile"
)

// Logger is the sink construction-time and per-request diagnostics go to.
type Logger interface {
	Printf(format string, args ...interface{})
}

// CompletionFunc is this package's equivalent of the spec's optional
// `next` continuation: invoked once the coordinator's terminator has run,
// with the terminal result string. Unlike Express's next(), it never
// resumes further handler chaining — that's chi's job — it only observes
// the outcome, matching spec.md §4.8's "if absent, a default writes a
// warning and the outcome pair".
type CompletionFunc func(r *http.Request, result string)

// Handler adapts HTTP requests to the coordinator for one service
// descriptor. Build with New; it satisfies http.Handler and is safe for
// concurrent use once constructed.
type Handler struct {
	svc        *service.Descriptor
	languages  *language.Registry
	spawner    *spawn.Controller
	transpiler *transpile.Registry
	envConfig  envbuild.Config
	stderr     coordinator.StderrHandler
	log        Logger
	completion CompletionFunc
}

// Options configures a Handler at construction time.
type Options struct {
	Service        *service.Descriptor
	Languages      *language.Registry
	Spawner        *spawn.Controller
	Transpiler     *transpile.Registry
	EnvConfig      envbuild.Config
	StderrHandler  coordinator.StderrHandler
	Log            Logger
	CompletionFunc CompletionFunc
}

// New builds a Handler. Service, Languages, and Spawner must be non-nil.
func New(opts Options) *Handler {
	h := &Handler{
		svc:        opts.Service,
		languages:  opts.Languages,
		spawner:    opts.Spawner,
		transpiler: opts.Transpiler,
		envConfig:  opts.EnvConfig,
		stderr:     opts.StderrHandler,
		log:        opts.Log,
		completion: opts.CompletionFunc,
	}
	if h.log == nil {
		h.log = service.NopLogger{}
	}
	if h.completion == nil {
		h.completion = h.defaultCompletion
	}
	return h
}

// defaultCompletion is spec.md §4.8's "if next is absent, a default writes
// a warning and the outcome pair".
func (h *Handler) defaultCompletion(r *http.Request, result string) {
	h.log.Printf("middleware: no completion handler registered; %s %s -> %s", r.Method, r.URL.Path, result)
}

// ServeHTTP implements http.Handler. Per-request state (the descriptor
// clone for a code override, the assembled __env, the spawned child) is
// entirely local; nothing here is shared with concurrent requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	start := time.Now()

	svc := h.svc
	if codeOverride := r.URL.Query().Get("code"); codeOverride != "" {
		svc = svc.WithCode(codeOverride)
	}

	req := buildEnvbuildRequest(r)
	env := envbuild.Build(svc, req, h.envConfig)

	if h.transpiler != nil && h.languages != nil {
		if _, transpilerName, err := h.languages.Resolve(svc.Language); err == nil && transpilerName != "" {
			compiled, err := h.transpiler.Compile(r.Context(), transpilerName, svc.Code)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				h.completion(r, "transpile error")
				return
			}
			svc = svc.WithCode(compiled)
		}
	}

	child, err := h.spawner.Spawn(svc, env)
	if err != nil {
		var cfgErr *svcerr.ConfigurationError
		if errors.As(err, &cfgErr) {
			// Configuration errors go to the log, not the HTTP client.
			h.log.Printf("middleware: %v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		h.completion(r, "spawn error")
		return
	}

	resp := &httpResponse{w: w}
	result := coordinator.Run(r.Context(), coordinator.Invocation{
		Child:         child,
		Timeout:       time.Duration(env.CustomTimeout) * time.Millisecond,
		TimeoutBody:   []byte("service execution timed out"),
		StderrHandler: h.stderr,
		Response:      resp,
		Log:           h.log,
		Body:          r.Body,
		RequestID:     requestID,
	})

	h.log.Printf("invoke %s: request=%s service=%s language=%s elapsed=%s result=%q",
		r.URL.Path, requestID, svc.Code, svc.Language, time.Since(start), result)
	h.completion(r, result)
}

func buildEnvbuildRequest(r *http.Request) envbuild.Request {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[strings.ToLower(k)] = r.Header.Get(k)
	}

	remoteAddr := r.RemoteAddr
	if idx := strings.LastIndex(remoteAddr, ":"); idx >= 0 {
		remoteAddr = remoteAddr[:idx]
	}

	params := map[string]interface{}{}

	return envbuild.Request{
		Method:        r.Method,
		Headers:       headers,
		Host:          r.Host,
		Path:          r.URL.Path,
		URL:           r.URL.String(),
		RemoteAddress: remoteAddr,
		Params:        params,
		IsStreaming:   r.ContentLength < 0,
	}
}

// httpResponse adapts http.ResponseWriter to coordinator.ResponseWriter.
type httpResponse struct {
	w        http.ResponseWriter
	finished atomic.Bool
}

func (h *httpResponse) Write(chunk []byte) error {
	if h.finished.Load() {
		return nil
	}
	_, err := h.w.Write(chunk)
	if flusher, ok := h.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return err
}

func (h *httpResponse) SetHeader(key, value string) {
	if !h.finished.Load() {
		h.w.Header().Set(key, value)
	}
}

func (h *httpResponse) End() error {
	h.finished.Store(true)
	return nil
}

func (h *httpResponse) Finished() bool {
	return h.finished.Load()
}
