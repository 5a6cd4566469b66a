package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brc-tools/svcrun/internal/arggen"
	"github.com/brc-tools/svcrun/internal/envbuild"
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/service"
	"github.com/brc-tools/svcrun/internal/spawn"
)

type stubGenerator struct {
	argv []string
}

func (s stubGenerator) Generate(*service.Descriptor, *envbuild.Env) ([]string, error) {
	return s.argv, nil
}

func shRegistry(t *testing.T) *language.Registry {
	t.Helper()
	target, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	root := t.TempDir()
	binDir := filepath.Join(root, "bin", "binaries")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(binDir, "sh")); err != nil {
		t.Fatal(err)
	}
	reg, err := language.NewRegistry(root, []language.Entry{
		{Tag: language.Bash, Binary: "sh"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestServeHTTPStreamsChildOutput(t *testing.T) {
	reg := shRegistry(t)
	svc, err := service.New(service.Options{Code: "echo from middleware", Language: "bash"})
	if err != nil {
		t.Fatal(err)
	}

	spawner := spawn.NewController(reg, stubGenerator{argv: []string{"-c", "echo from middleware"}})
	h := New(Options{
		Service:   svc,
		Languages: reg,
		Spawner:   spawner,
		EnvConfig: envbuild.Config{ServiceMaxTimeout: 5000},
	})

	req := httptest.NewRequest(http.MethodPost, "/invoke", nil)
	rw := httptest.NewRecorder()

	h.ServeHTTP(rw, req)

	if !strings.Contains(rw.Body.String(), "from middleware") {
		t.Errorf("body = %q, want it to contain child output", rw.Body.String())
	}
}

func TestServeHTTPUsesCustomTimeoutOverride(t *testing.T) {
	reg := shRegistry(t)
	svc, err := service.New(service.Options{Code: "sleep", Language: "bash", CustomTimeout: 50})
	if err != nil {
		t.Fatal(err)
	}

	spawner := spawn.NewController(reg, stubGenerator{argv: []string{"-c", "sleep 3"}})
	h := New(Options{
		Service:   svc,
		Languages: reg,
		Spawner:   spawner,
		EnvConfig: envbuild.Config{ServiceMaxTimeout: 5000},
	})

	req := httptest.NewRequest(http.MethodPost, "/invoke", nil)
	rw := httptest.NewRecorder()

	start := time.Now()
	h.ServeHTTP(rw, req)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("took %s, want the 50ms custom timeout to cut this short", elapsed)
	}
	if !strings.Contains(rw.Body.String(), "timed out") {
		t.Errorf("body = %q, want a timeout message", rw.Body.String())
	}
}

func TestServeHTTPRespectsCodeOverrideFromQueryParam(t *testing.T) {
	reg := shRegistry(t)
	svc, err := service.New(service.Options{Code: "echo original", Language: "bash"})
	if err != nil {
		t.Fatal(err)
	}

	// arggen.Default serializes svc.Code into argv's "-c" slot, which sh
	// interprets as its own -c (run the following string as a command);
	// this drives the overridden code into the child's actual output
	// instead of a canned argv a deleted WithCode call would still satisfy.
	spawner := spawn.NewController(reg, arggen.Default{})
	h := New(Options{
		Service:   svc,
		Languages: reg,
		Spawner:   spawner,
		EnvConfig: envbuild.Config{ServiceMaxTimeout: 5000},
	})

	req := httptest.NewRequest(http.MethodPost, "/invoke?code=echo+overridden", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if !strings.Contains(rw.Body.String(), "overridden") {
		t.Errorf("body = %q, want the overridden output", rw.Body.String())
	}
	if strings.Contains(rw.Body.String(), "original") {
		t.Errorf("body = %q, want no trace of the original code", rw.Body.String())
	}
}
