package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDaemonConfigDefaults(t *testing.T) {
	cfg, err := LoadDaemonConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service != "request" {
		t.Fatalf("service = %q", cfg.Service)
	}
}

func TestLoadDaemonConfigFromFile(t *testing.T) {
	path := writeFile(t, `
service = "cache"
session_id = "fixed"
max_frame_bytes = 65536
debug_addr = "localhost:9400"
cors_origins = ["http://localhost:3000"]
`)
	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service != "cache" || cfg.SessionID != "fixed" || cfg.MaxFrameBytes != 65536 {
		t.Fatalf("config: %+v", cfg)
	}
	if cfg.DebugAddr != "localhost:9400" || len(cfg.CorsOrigins) != 1 {
		t.Fatalf("config: %+v", cfg)
	}
}

func TestLoadDaemonConfigRejectsBadService(t *testing.T) {
	path := writeFile(t, `service = "a/b"`)
	if _, err := LoadDaemonConfig(path); err == nil {
		t.Fatal("service with slash accepted")
	}
}

func TestLoadDaemonConfigMissingFile(t *testing.T) {
	if _, err := LoadDaemonConfig("/does/not/exist.toml"); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLoadClientConfigDefaults(t *testing.T) {
	cfg, err := LoadClientConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service != "request" || cfg.CallTimeoutMS != 10_000 {
		t.Fatalf("config: %+v", cfg)
	}
}

func TestLoadClientConfigRejectsNegativeTimeout(t *testing.T) {
	path := writeFile(t, `call_timeout_ms = -5`)
	if _, err := LoadClientConfig(path); err == nil {
		t.Fatal("negative timeout accepted")
	}
}

func TestTemplatesRoundTripThroughLoad(t *testing.T) {
	dir := t.TempDir()

	daemonPath := filepath.Join(dir, "daemon.toml")
	if err := WriteTemplate(daemonPath, "daemon", false); err != nil {
		t.Fatalf("write daemon template: %v", err)
	}
	if _, err := LoadDaemonConfig(daemonPath); err != nil {
		t.Fatalf("load daemon template: %v", err)
	}

	clientPath := filepath.Join(dir, "client.toml")
	if err := WriteTemplate(clientPath, "client", false); err != nil {
		t.Fatalf("write client template: %v", err)
	}
	if _, err := LoadClientConfig(clientPath); err != nil {
		t.Fatalf("load client template: %v", err)
	}

	if err := WriteTemplate(daemonPath, "daemon", false); err == nil {
		t.Fatal("overwrite without force accepted")
	}
	if err := WriteTemplate(daemonPath, "daemon", true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}

func TestUnknownTemplateKind(t *testing.T) {
	if _, err := Template("mystery"); err == nil {
		t.Fatal("unknown kind accepted")
	}
}
