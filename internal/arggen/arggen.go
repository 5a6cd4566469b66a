// Package arggen implements the Argument Generator component (spec.md
// §4.2): building the argv handed to a language executor binary from a
// service descriptor and its assembled __env.
package arggen

import (
	"encoding/json"
	"fmt"

	"github.com/brc-tools/svcrun/internal/envbuild"
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/service"
	"github.com/brc-tools/svcrun/internal/svcerr"
)

// Generator produces the argv for a language executor.
type Generator interface {
	Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error)
}

// Registry maps a canonical language tag to its Generator. Languages with
// no registered generator fall back to Default, matching spec.md §4.2's
// "node-family languages use the default".
type Registry struct {
	byTag map[language.Tag]Generator
	limit int
}

// NewRegistry builds the argument-generator registry with limit as the
// maximum serialized argv size in bytes (spec.md §4.2's ArgvTooLarge check).
// limit <= 0 means "use DefaultArgMax".
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultArgMax
	}
	r := &Registry{byTag: make(map[language.Tag]Generator), limit: limit}
	r.byTag[language.Bash] = bashGenerator{}
	r.byTag[language.Lua] = luaGenerator{}
	r.byTag[language.Perl] = perlGenerator{}
	r.byTag[language.Scheme] = schemeGenerator{}
	r.byTag[language.Smalltalk] = smalltalkGenerator{}
	r.byTag[language.Tcl] = tclGenerator{}
	return r
}

// Register overrides (or adds) the generator for tag.
func (r *Registry) Register(tag language.Tag, gen Generator) {
	r.byTag[tag] = gen
}

// Generate resolves the generator for svc.Language (falling back to
// Default) and enforces the argv size limit before returning.
func (r *Registry) Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error) {
	gen, ok := r.byTag[svc.Language]
	if !ok {
		gen = Default{}
	}

	argv, err := gen.Generate(svc, env)
	if err != nil {
		return nil, err
	}

	size := 0
	for _, a := range argv {
		size += len(a) + 1 // +1 approximates argv's NUL terminator / separator overhead
	}
	if size > r.limit {
		return nil, &svcerr.ArgvTooLargeError{Size: size, Limit: r.limit}
	}
	return argv, nil
}

// Default implements spec.md §4.2's fallback shape: -c <code> -e <env> -s <service>.
// It is used directly for javascript/babel/coffee-script and as the fallback
// for any language without a dedicated Generator.
type Default struct{}

func (Default) Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error) {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("arggen: serialize env: %w", err)
	}
	svcJSON, err := json.Marshal(svc.Resource())
	if err != nil {
		return nil, fmt.Errorf("arggen: serialize service: %w", err)
	}
	return []string{"-c", svc.Code, "-e", string(envJSON), "-s", string(svcJSON)}, nil
}

// bashGenerator passes the script as the single argument after --code and
// the serialized env after --env; the script is handed over verbatim, never
// interpolated by a shell.
type bashGenerator struct{}

func (bashGenerator) Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error) {
	envJSON, err := encode(env)
	if err != nil {
		return nil, err
	}
	return []string{"--code", svc.Code, "--env", envJSON}, nil
}

// luaGenerator mirrors spec.md §4.4: resource is forced empty for lua, so
// the generator only needs to carry code and env.
type luaGenerator struct{}

func (luaGenerator) Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error) {
	envJSON, err := encode(env)
	if err != nil {
		return nil, err
	}
	return []string{"-e", envJSON, "--", svc.Code}, nil
}

type perlGenerator struct{}

func (perlGenerator) Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error) {
	envJSON, err := encode(env)
	if err != nil {
		return nil, err
	}
	return []string{"-E", envJSON, "-e", svc.Code}, nil
}

type schemeGenerator struct{}

func (schemeGenerator) Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error) {
	envJSON, err := encode(env)
	if err != nil {
		return nil, err
	}
	return []string{"--env", envJSON, "--eval", svc.Code}, nil
}

type smalltalkGenerator struct{}

func (smalltalkGenerator) Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error) {
	envJSON, err := encode(env)
	if err != nil {
		return nil, err
	}
	return []string{"-env", envJSON, "-eval", svc.Code}, nil
}

type tclGenerator struct{}

func (tclGenerator) Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error) {
	envJSON, err := encode(env)
	if err != nil {
		return nil, err
	}
	return []string{"-env", envJSON, svc.Code}, nil
}

func encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("arggen: serialize env: %w", err)
	}
	return string(b), nil
}
