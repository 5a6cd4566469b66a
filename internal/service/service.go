// Package service holds the immutable service descriptor built once at
// handler construction, per spec.md §3.
package service

import (
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/svcerr"
)

// Logger is the minimal logging sink a descriptor or handler writes to.
// Satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Descriptor is the immutable per-handler service definition. Per-request
// code overrides are applied on top of it, never mutating the original.
type Descriptor struct {
	Code          string
	Language      language.Tag
	View          string
	Presenter     string
	CustomTimeout int // milliseconds; 0 means "use the global default"
	Config        map[string]interface{}
	IsHookio      bool
	Log           Logger
}

// Options mirrors the raw, possibly-legacy fields a caller can supply when
// constructing a Descriptor. Legacy aliases (source→code, themeSource→view,
// presenterSource→presenter, lang→language) are resolved once here; nothing
// downstream ever sees a legacy field name again.
type Options struct {
	Code      string
	Source    string // legacy alias for Code

	Language string
	Lang     string // legacy alias for Language

	View        string
	ThemeSource string // legacy alias for View

	Presenter      string
	PresenterSource string // legacy alias for Presenter

	CustomTimeout int
	Config        map[string]interface{}
	IsHookio      bool
	Log           Logger
}

// New builds an immutable Descriptor from Options, resolving legacy aliases
// and canonicalizing the language tag. It returns a *svcerr.ConfigurationError
// if the result has no code or an unrecognized language.
func New(opts Options) (*Descriptor, error) {
	code := opts.Code
	if code == "" {
		code = opts.Source
	}
	if code == "" {
		return nil, &svcerr.ConfigurationError{Reason: "service has no code"}
	}

	view := opts.View
	if view == "" {
		view = opts.ThemeSource
	}

	presenter := opts.Presenter
	if presenter == "" {
		presenter = opts.PresenterSource
	}

	rawLang := opts.Language
	if rawLang == "" {
		rawLang = opts.Lang
	}
	tag := language.Canonicalize(rawLang)
	if !language.Valid(tag) {
		return nil, &svcerr.ConfigurationError{Reason: "unknown language: " + string(tag)}
	}

	return &Descriptor{
		Code:          code,
		Language:      tag,
		View:          view,
		Presenter:     presenter,
		CustomTimeout: opts.CustomTimeout,
		Config:        opts.Config,
		IsHookio:      opts.IsHookio,
		Log:           opts.Log,
	}, nil
}

// WithCode returns a shallow copy of d with Code replaced, used to apply a
// per-request code override without mutating the handler's descriptor.
func (d *Descriptor) WithCode(code string) *Descriptor {
	if code == "" {
		return d
	}
	clone := *d
	clone.Code = code
	return &clone
}

// Resource renders the non-serializable-stripped view of the descriptor that
// is embedded in __env.resource, per spec.md §3. For language "lua" this is
// forced empty by the caller (internal/envbuild), not here.
func (d *Descriptor) Resource() map[string]interface{} {
	r := map[string]interface{}{
		"language": string(d.Language),
	}
	if d.View != "" {
		r["view"] = d.View
	}
	if d.Presenter != "" {
		r["presenter"] = d.Presenter
	}
	if d.IsHookio {
		r["isHookio"] = true
	}
	return r
}

// NopLogger discards everything written to it. Used when no Log sink is
// configured for a descriptor built outside of a full handler.
type NopLogger struct{}

func (NopLogger) Printf(string, ...interface{}) {}
