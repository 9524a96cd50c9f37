package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/depforge/depforge/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstallRoot == "" || cfg.Ledger.Backend != "file" || cfg.Cache.Backend != "file" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Workers)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
install_root = "/opt/depforge/packages"
workers = 8
verify_signatures = true

[ledger]
backend = "file"
path = "/opt/depforge/ledger.json"

[cache]
backend = "none"

[[sources]]
name = "main"
type = "http"
location = "https://pkgs.example.com"
priority = 1
trusted = true
auth_token = "secret"

[[sources]]
name = "local"
type = "dir"
location = "/srv/packages"
priority = 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstallRoot != "/opt/depforge/packages" || cfg.Workers != 8 || !cfg.VerifySignatures {
		t.Errorf("top-level fields wrong: %+v", cfg)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].Name != "main" || cfg.Sources[0].AuthToken != "secret" {
		t.Errorf("sources = %+v", cfg.Sources)
	}
	if cfg.Cache.Backend != "none" {
		t.Errorf("cache backend = %s", cfg.Cache.Backend)
	}
}

func TestLoadRejectsUnknownSourceType(t *testing.T) {
	path := writeConfig(t, `
[[sources]]
name = "weird"
type = "ftp"
location = "ftp://example.com"
`)
	_, err := Load(path)
	if errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Fatalf("error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoadRejectsDuplicateSourceNames(t *testing.T) {
	path := writeConfig(t, `
[[sources]]
name = "main"
type = "dir"
location = "/a"

[[sources]]
name = "main"
type = "dir"
location = "/b"
`)
	_, err := Load(path)
	if errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Fatalf("error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoadRejectsRedisWithoutAddr(t *testing.T) {
	path := writeConfig(t, `
[cache]
backend = "redis"
`)
	_, err := Load(path)
	if errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Fatalf("error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := writeConfig(t, "install_root = [broken")
	_, err := Load(path)
	if errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Fatalf("error = %v, want INVALID_CONFIG", err)
	}
}
