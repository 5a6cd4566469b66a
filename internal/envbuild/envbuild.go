// Package envbuild implements the Environment Assembler: a pure function
// from (service, request, config) to the serializable __env object handed
// to the child executor, per spec.md §3/§4.4.
package envbuild

import (
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/service"
)

// InputInfo mirrors the "input" field of __env: the parts of the incoming
// HTTP request the child executor is allowed to see.
type InputInfo struct {
	Method     string                 `json:"method"`
	Headers    map[string]string      `json:"headers"`
	Host       string                 `json:"host"`
	Path       string                 `json:"path"`
	Params     map[string]interface{} `json:"params"`
	URL        string                 `json:"url"`
	Connection ConnectionInfo         `json:"connection"`
}

// ConnectionInfo carries the caller's address.
type ConnectionInfo struct {
	RemoteAddress string `json:"remoteAddress"`
}

// Request is the subset of an incoming HTTP request the assembler needs.
// internal/middleware builds one of these from an *http.Request; tests
// build them directly.
type Request struct {
	Method         string
	Headers        map[string]string
	Host           string
	Path           string
	URL            string
	RemoteAddress  string
	Params         map[string]interface{}
	ResourceInstance map[string]interface{} // resource.instance, if present
	ResourceParams   map[string]interface{} // resource.params, fallback
	Env              map[string]interface{} // caller-supplied env overrides
	IsStreaming      bool
	IsHookio         bool
	HookAccessKey    string
}

// Env is the __env object, serialized verbatim as the executor's -e argv
// element (or equivalent per-language encoding).
type Env struct {
	Params        map[string]interface{} `json:"params"`
	IsStreaming   bool                   `json:"isStreaming"`
	CustomTimeout int                    `json:"customTimeout"`
	Env           map[string]interface{} `json:"env,omitempty"`
	Resource      map[string]interface{} `json:"resource"`
	Input         InputInfo              `json:"input"`
	IsHookio      bool                   `json:"isHookio,omitempty"`
	HookAccessKey string                 `json:"hookAccessKey,omitempty"`
}

// Config is the subset of global configuration the assembler consults.
type Config struct {
	ServiceMaxTimeout int                    // milliseconds
	DefaultEnv        map[string]interface{} // injected into __env.env when the caller supplies none
}

// Build is the pure function (service, request, config) -> __env.
// It has no hidden state: calling it twice with equal arguments produces
// equal results (spec.md §8 property 5).
func Build(svc *service.Descriptor, req Request, cfg Config) *Env {
	params := req.ResourceInstance
	if params == nil {
		params = req.ResourceParams
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	remoteAddr := req.RemoteAddress
	if xff, ok := req.Headers["x-forwarded-for"]; ok && xff != "" {
		remoteAddr = xff
	}

	timeout := cfg.ServiceMaxTimeout
	if svc.CustomTimeout > 0 {
		timeout = svc.CustomTimeout
	}

	envMap := req.Env
	if envMap == nil {
		envMap = cfg.DefaultEnv
	}

	resource := svc.Resource()
	if svc.Language == language.Lua {
		resource = map[string]interface{}{}
	}

	e := &Env{
		Params:        params,
		IsStreaming:   req.IsStreaming,
		CustomTimeout: timeout,
		Env:           envMap,
		Resource:      resource,
		Input: InputInfo{
			Method:  req.Method,
			Headers: req.Headers,
			Host:    req.Host,
			Path:    req.Path,
			Params:  params,
			URL:     req.URL,
			Connection: ConnectionInfo{
				RemoteAddress: remoteAddr,
			},
		},
	}
	if req.IsHookio {
		e.IsHookio = true
		e.HookAccessKey = req.HookAccessKey
	}
	return e
}
