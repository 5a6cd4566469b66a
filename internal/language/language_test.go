package language

import (
	"path/filepath"
	"testing"
)

func TestCanonicalizeAliases(t *testing.T) {
	cases := map[string]Tag{
		"":              JavaScript,
		"coffee":        CoffeeScript,
		"es6":           Babel,
		"es7":           Babel,
		"python3":       Python3,
		"coffee-script": CoffeeScript,
	}
	for raw, want := range cases {
		if got := Canonicalize(raw); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	for raw := range aliases {
		once := Canonicalize(raw)
		twice := Canonicalize(string(once))
		if once != twice {
			t.Errorf("Canonicalize not idempotent for %q: %q != %q", raw, once, twice)
		}
	}
	for tag := range known {
		once := Canonicalize(string(tag))
		twice := Canonicalize(string(once))
		if once != twice {
			t.Errorf("Canonicalize not idempotent for %q: %q != %q", tag, once, twice)
		}
	}
}

func TestRegistryResolve(t *testing.T) {
	reg, err := NewRegistry("/opt/root", DefaultEntries())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	bin, transpiler, err := reg.Resolve(Bash)
	if err != nil {
		t.Fatalf("Resolve(bash): %v", err)
	}
	want := filepath.Join("/opt/root", "bin", "binaries", "bash-runner")
	if bin != want {
		t.Errorf("bash binary = %q, want %q", bin, want)
	}
	if transpiler != "" {
		t.Errorf("bash transpiler = %q, want empty", transpiler)
	}

	_, transpiler, err = reg.Resolve(Babel)
	if err != nil {
		t.Fatalf("Resolve(babel): %v", err)
	}
	if transpiler != "babel" {
		t.Errorf("babel transpiler = %q, want babel", transpiler)
	}
}

func TestRegistryUnknownLanguage(t *testing.T) {
	reg, err := NewRegistry("/opt/root", DefaultEntries())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, _, err := reg.Resolve(Tag("erlang")); err == nil {
		t.Error("expected error resolving unregistered language")
	}
}

func TestNewRegistryRejectsUnknownTag(t *testing.T) {
	_, err := NewRegistry("/opt/root", []Entry{{Tag: Tag("cobol"), Binary: "cobol-runner"}})
	if err == nil {
		t.Error("expected error for tag outside the closed set")
	}
}
