package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadAppliesDefaults(t *testing.T) {
	writeConfig(t, "http:\n  port: 9000\n")

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Fatalf("port = %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.ShutdownSec != 10 {
		t.Fatalf("timeouts not defaulted: %+v", cfg.HTTP)
	}
	if cfg.Engine.Shards <= 0 {
		t.Fatalf("shards not defaulted: %d", cfg.Engine.Shards)
	}
	if cfg.Search.AllowLegacyField {
		t.Fatal("legacy field names allowed by default")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_PORT", "7777")
	writeConfig(t, "http:\n  port: ${TEST_PORT}\nlogging:\n  level: ${TEST_LEVEL:-debug}\n")

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 7777 {
		t.Fatalf("port = %d, want expanded 7777", cfg.HTTP.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q, want default-expanded debug", cfg.Logging.Level)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Config{}
	cfg.HTTP.Port = -1
	cfg.Engine.Shards = 4096
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, frag := range []string{"http.port", "engine.shards", "logging.level"} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("error %q missing fragment %q", err.Error(), frag)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	writeConfig(t, "http:\n  port: 1\n")
	if _, err := Load("absent"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
