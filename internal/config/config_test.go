package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.ServerURL != "http://localhost:8080" {
		t.Errorf("server url = %q; want the default", opts.ServerURL)
	}
	if opts.LogLevel != "warn" {
		t.Errorf("log level = %q; want warn", opts.LogLevel)
	}
	if opts.StatePath == "" {
		t.Error("state path must have a default")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server_url": "https://books.example.com", "log_level": "debug"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.ServerURL != "https://books.example.com" {
		t.Errorf("server url = %q; want the file value", opts.ServerURL)
	}
	if opts.LogLevel != "debug" {
		t.Errorf("log level = %q; want debug", opts.LogLevel)
	}
	// Keys absent from the file keep their defaults.
	if opts.ListenAddr != "localhost:8080" {
		t.Errorf("listen addr = %q; want the default", opts.ListenAddr)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server_url": "https://from-file"}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SHELFSCAN_SERVER_URL", "https://from-env")
	t.Setenv("SHELFSCAN_STATE_PATH", "/tmp/custom-state.json")

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.ServerURL != "https://from-env" {
		t.Errorf("server url = %q; env must win over the file", opts.ServerURL)
	}
	if opts.StatePath != "/tmp/custom-state.json" {
		t.Errorf("state path = %q; want the env value", opts.StatePath)
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.ServerURL == "" {
		t.Error("defaults must apply when the file is absent")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("a malformed config file must be reported, not ignored")
	}
}
