package spawn

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brc-tools/svcrun/internal/envbuild"
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/service"
)

type stubArgv struct {
	argv []string
	err  error
}

func (s stubArgv) Generate(*service.Descriptor, *envbuild.Env) ([]string, error) {
	return s.argv, s.err
}

func testRegistry(t *testing.T, binary string) *language.Registry {
	t.Helper()
	reg, err := language.NewRegistry("", []language.Entry{
		{Tag: language.Bash, Binary: binary},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func testDescriptor(t *testing.T) *service.Descriptor {
	t.Helper()
	d, err := service.New(service.Options{Code: "echo hi", Language: "bash"})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return d
}

// registryWithBinary builds a registry rooted at a fresh temp directory and
// symlinks name (resolved via PATH) into its <root>/bin/binaries layout, so
// Controller.Spawn's real path-joining logic is exercised end to end.
func registryWithBinary(t *testing.T, name string) *language.Registry {
	t.Helper()
	target, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available", name)
	}

	root := t.TempDir()
	binDir := filepath.Join(root, "bin", "binaries")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(binDir, name)); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	reg, err := language.NewRegistry(root, []language.Entry{
		{Tag: language.Bash, Binary: name},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestSpawnStartsChildAndWiresStdio(t *testing.T) {
	ctrl := NewController(registryWithBinary(t, "sh"), stubArgv{argv: []string{"-c", "echo hello"}})
	svc := testDescriptor(t)
	env := &envbuild.Env{}

	child, err := ctrl.Spawn(svc, env)
	if err != nil {
		t.Skipf("spawn unavailable in this sandbox: %v", err)
	}

	var out bytes.Buffer
	go io.Copy(&out, child.Stdout)
	io.Copy(io.Discard, child.Stderr)

	if err := PipeStdin(child, nil); err != nil {
		t.Errorf("PipeStdin: %v", err)
	}

	status, err := Wait(child)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if status.Code != 0 || status.Signaled {
		t.Errorf("status = %+v, want success", status)
	}
	if !strings.Contains(out.String(), "hello") {
		t.Errorf("stdout = %q, want it to contain %q", out.String(), "hello")
	}
}

func TestSpawnUnknownBinaryReturnsSpawnError(t *testing.T) {
	reg := testRegistry(t, "definitely-not-a-real-binary-xyz")
	ctrl := NewController(reg, stubArgv{argv: []string{}})
	svc := testDescriptor(t)

	_, err := ctrl.Spawn(svc, &envbuild.Env{})
	if err == nil {
		t.Fatal("expected spawn error for missing binary")
	}
}

func TestSpawnUnresolvedLanguageReturnsConfigurationError(t *testing.T) {
	reg := testRegistry(t, "sh")
	ctrl := NewController(reg, stubArgv{argv: []string{}})
	svc, err := service.New(service.Options{Code: "x", Language: "perl"})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}

	_, err = ctrl.Spawn(svc, &envbuild.Env{})
	if err == nil {
		t.Fatal("expected configuration error for unregistered language")
	}
}

func TestSpawnArgvErrorPropagates(t *testing.T) {
	reg := testRegistry(t, "sh")
	wantErr := &testArgvError{}
	ctrl := NewController(reg, stubArgv{err: wantErr})
	svc := testDescriptor(t)

	_, err := ctrl.Spawn(svc, &envbuild.Env{})
	if err != wantErr {
		t.Errorf("Spawn error = %v, want %v", err, wantErr)
	}
}

type testArgvError struct{}

func (e *testArgvError) Error() string { return "argv generation failed" }
