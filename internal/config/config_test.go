package config

import (
	"os"
	"testing"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Services.MaxTimeout != 30000 {
		t.Errorf("Services.MaxTimeout = %d, want 30000", cfg.Services.MaxTimeout)
	}
	if cfg.Transpile.CacheBackend != "memory" {
		t.Errorf("Transpile.CacheBackend = %q, want memory", cfg.Transpile.CacheBackend)
	}
	if cfg.Transpile.Script != "" {
		t.Errorf("Transpile.Script = %q, want empty (identity transform)", cfg.Transpile.Script)
	}
}

func TestLoadTranspileScriptOverride(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/svcrun.yaml"
	contents := "transpile:\n  script: |\n    function Entrypoint(source) { return babel.transform(source).code; }\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transpile.Script == "" {
		t.Error("Transpile.Script = \"\", want the configured script body")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)

	os.Setenv("SVCRUN_SERVER_PORT", "9090")
	defer os.Unsetenv("SVCRUN_SERVER_PORT")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090 from env override", cfg.Server.Port)
	}
}

func TestLoadExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/svcrun.yaml"
	contents := "services:\n  binaries_root: /custom/root\n  max_timeout_ms: 1234\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Services.BinariesRoot != "/custom/root" {
		t.Errorf("BinariesRoot = %q, want /custom/root", cfg.Services.BinariesRoot)
	}
	if cfg.Services.MaxTimeout != 1234 {
		t.Errorf("MaxTimeout = %d, want 1234", cfg.Services.MaxTimeout)
	}
}
