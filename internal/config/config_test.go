package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_ReadsAllFields(t *testing.T) {
	v := viper.New()
	v.Set("config", "./blueprint.toml")
	v.Set("verify-only", true)
	v.Set("allow-unsafe", true)
	v.Set("entrypoint", "reviewer")
	v.Set("cache-dir", "/tmp/pypes-cache")
	v.Set("filesystem-root", "/data")
	v.Set("filesystem-write", true)
	v.Set("allow-host", []string{"api.example.com"})
	v.Set("allow-env", []string{"HOME"})
	v.Set("max-payload-size", 4096)
	v.Set("timeout", "30s")

	cfg := Load(v)

	if cfg.BlueprintPath != "./blueprint.toml" {
		t.Errorf("unexpected BlueprintPath: %s", cfg.BlueprintPath)
	}
	if !cfg.VerifyOnly || !cfg.AllowUnsafe || !cfg.FilesystemWriteAllowed {
		t.Error("expected bool flags to round-trip true")
	}
	if cfg.Entrypoint != "reviewer" {
		t.Errorf("unexpected Entrypoint: %s", cfg.Entrypoint)
	}
	if cfg.MaxPayloadSize != 4096 {
		t.Errorf("unexpected MaxPayloadSize: %d", cfg.MaxPayloadSize)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("unexpected Timeout: %s", cfg.Timeout)
	}
	if len(cfg.HTTPAllowlist) != 1 || cfg.HTTPAllowlist[0] != "api.example.com" {
		t.Errorf("unexpected HTTPAllowlist: %v", cfg.HTTPAllowlist)
	}
	if len(cfg.EnvAllowlist) != 1 || cfg.EnvAllowlist[0] != "HOME" {
		t.Errorf("unexpected EnvAllowlist: %v", cfg.EnvAllowlist)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(viper.New())

	if cfg.BlueprintPath != "" || cfg.VerifyOnly || cfg.AllowUnsafe {
		t.Error("expected zero-value defaults for an unset viper instance")
	}
	if cfg.MaxPayloadSize != 0 || cfg.Timeout != 0 {
		t.Error("expected unbounded (zero) defaults for payload size and timeout")
	}
}
