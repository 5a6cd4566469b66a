// Package language holds the canonical language tag table: the closed set
// of languages the middleware can dispatch to, their aliases, and the
// registry mapping each canonical tag to its executor binary name.
package language

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Tag is a canonicalized language identifier.
type Tag string

const (
	JavaScript   Tag = "javascript"
	Babel        Tag = "babel"
	CoffeeScript Tag = "coffee-script"
	Bash         Tag = "bash"
	Lua          Tag = "lua"
	Perl         Tag = "perl"
	PHP          Tag = "php"
	Python       Tag = "python"
	Python3      Tag = "python3"
	Ruby         Tag = "ruby"
	Scheme       Tag = "scheme"
	Smalltalk    Tag = "smalltalk"
	Tcl          Tag = "tcl"
)

// known is the closed set of canonical tags.
var known = map[Tag]bool{
	JavaScript: true, Babel: true, CoffeeScript: true, Bash: true,
	Lua: true, Perl: true, PHP: true, Python: true, Python3: true,
	Ruby: true, Scheme: true, Smalltalk: true, Tcl: true,
}

// aliases maps legacy/shorthand spellings to their canonical tag.
var aliases = map[string]Tag{
	"":      JavaScript,
	"coffee": CoffeeScript,
	"es6":    Babel,
	"es7":    Babel,
}

// Canonicalize resolves a raw language string to its canonical Tag.
// Canonicalization is idempotent: Canonicalize(string(Canonicalize(x))) == Canonicalize(x).
func Canonicalize(raw string) Tag {
	if alias, ok := aliases[raw]; ok {
		return alias
	}
	return Tag(raw)
}

// Valid reports whether tag is a member of the closed language set.
func Valid(tag Tag) bool {
	return known[tag]
}

// Entry describes one language's executor binary and any transpile step.
type Entry struct {
	Tag        Tag    `yaml:"tag"`
	Binary     string `yaml:"binary"`
	Transpiler string `yaml:"transpiler,omitempty"`
}

// Registry is the static table mapping canonical language tag to executor
// binary name, rooted under a configured binaries directory.
type Registry struct {
	root    string
	entries map[Tag]Entry
}

// NewRegistry builds a registry from entries, rooted at binariesRoot
// (the "<root>/bin/binaries" directory per spec.md §4.1).
func NewRegistry(binariesRoot string, entries []Entry) (*Registry, error) {
	r := &Registry{root: binariesRoot, entries: make(map[Tag]Entry, len(entries))}
	for _, e := range entries {
		if !Valid(e.Tag) {
			return nil, fmt.Errorf("language registry: unknown tag %q", e.Tag)
		}
		if e.Binary == "" {
			return nil, fmt.Errorf("language registry: tag %q has no binary", e.Tag)
		}
		r.entries[e.Tag] = e
	}
	return r, nil
}

// LoadRegistry reads a YAML language table (tag/binary/transpiler triples)
// from configuration, mirroring the pack's template-driven per-language
// configuration tables.
func LoadRegistry(binariesRoot string, data []byte) (*Registry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("language registry: parse yaml: %w", err)
	}
	return NewRegistry(binariesRoot, entries)
}

// DefaultEntries is the built-in language table used when no languages.yaml
// is supplied, matching spec.md §4.1/§4.3's named languages.
func DefaultEntries() []Entry {
	return []Entry{
		{Tag: JavaScript, Binary: "node"},
		{Tag: Babel, Binary: "node", Transpiler: "babel"},
		{Tag: CoffeeScript, Binary: "node", Transpiler: "coffee-script"},
		{Tag: Bash, Binary: "bash-runner"},
		{Tag: Lua, Binary: "lua-runner"},
		{Tag: Perl, Binary: "perl-runner"},
		{Tag: PHP, Binary: "php-runner"},
		{Tag: Python, Binary: "python-runner"},
		{Tag: Python3, Binary: "python3-runner"},
		{Tag: Ruby, Binary: "ruby-runner"},
		{Tag: Scheme, Binary: "scheme-runner"},
		{Tag: Smalltalk, Binary: "smalltalk-runner"},
		{Tag: Tcl, Binary: "tcl-runner"},
	}
}

// Resolve returns the normalized executor binary path for tag, and the name
// of the transpiler registered for it, if any.
func (r *Registry) Resolve(tag Tag) (binaryPath string, transpiler string, err error) {
	e, ok := r.entries[tag]
	if !ok {
		return "", "", fmt.Errorf("language registry: no executor registered for %q", tag)
	}
	return filepath.Join(r.root, "bin", "binaries", e.Binary), e.Transpiler, nil
}

// Has reports whether tag has a registered executor.
func (r *Registry) Has(tag Tag) bool {
	_, ok := r.entries[tag]
	return ok
}
