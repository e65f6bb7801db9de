package ghostline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Service.Host != "http://localhost:11434" {
		t.Errorf("expected default host http://localhost:11434, got %q", cfg.Service.Host)
	}
	if cfg.Service.Model == "" {
		t.Error("expected a default model")
	}
	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
}

func TestLoadConfigFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Service != DefaultConfig().Service {
		t.Errorf("expected defaults, got %+v", cfg.Service)
	}
}

func TestLoadConfigFileFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[service]\nmodel = \"coder:7b\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Service.Model != "coder:7b" {
		t.Errorf("expected model coder:7b, got %q", cfg.Service.Model)
	}
	if cfg.Service.Host != DefaultConfig().Service.Host {
		t.Errorf("expected default host, got %q", cfg.Service.Host)
	}
}

func TestLoadConfigFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[service\nhost ="), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfigDirPriority(t *testing.T) {
	t.Setenv("GHOSTLINE_CONFIG_DIR", "/custom/dir")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigDir(); got != "/custom/dir" {
		t.Errorf("expected /custom/dir, got %q", got)
	}

	t.Setenv("GHOSTLINE_CONFIG_DIR", "")
	if got := ConfigDir(); got != "/xdg/ghostline" {
		t.Errorf("expected /xdg/ghostline, got %q", got)
	}
}

func TestResolveServiceConfigEnvOverrides(t *testing.T) {
	cfg := &Config{Service: ServiceConfig{Host: "http://a:1", Model: "m1"}}

	t.Setenv("GHOSTLINE_HOST", "")
	t.Setenv("GHOSTLINE_MODEL", "")
	if got := ResolveServiceConfig(cfg); got != cfg.Service {
		t.Errorf("expected config values, got %+v", got)
	}

	t.Setenv("GHOSTLINE_HOST", "http://b:2")
	t.Setenv("GHOSTLINE_MODEL", "m2")
	got := ResolveServiceConfig(cfg)
	if got.Host != "http://b:2" || got.Model != "m2" {
		t.Errorf("expected env overrides, got %+v", got)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Setenv("GHOSTLINE_HOST", "")
	t.Setenv("GHOSTLINE_MODEL", "")

	tests := []struct {
		name     string
		cfg      *Config
		wantWarn string
	}{
		{"valid", &Config{Service: ServiceConfig{Host: "http://localhost:11434", Model: "m"}}, ""},
		{"relative host", &Config{Service: ServiceConfig{Host: "localhost", Model: "m"}}, "not an absolute URL"},
		{"bad scheme", &Config{Service: ServiceConfig{Host: "ftp://localhost", Model: "m"}}, "unsupported scheme"},
		{"empty model", &Config{Service: ServiceConfig{Host: "http://localhost:11434"}}, "model is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := ValidateConfig(tt.cfg)
			if tt.wantWarn == "" {
				if len(warnings) != 0 {
					t.Errorf("expected no warnings, got %v", warnings)
				}
				return
			}
			if len(warnings) != 1 || !strings.Contains(warnings[0], tt.wantWarn) {
				t.Errorf("expected one warning containing %q, got %v", tt.wantWarn, warnings)
			}
		})
	}
}

func TestResponseSuggestionNilMarshalsNull(t *testing.T) {
	data, err := json.Marshal(Response{RequestID: 3, Status: "ready"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"suggestion":null`) {
		t.Errorf("expected suggestion:null, got %s", data)
	}
	if strings.Contains(string(data), `"notices"`) {
		t.Errorf("expected notices to be omitted, got %s", data)
	}
}

func TestRequestJSONKeys(t *testing.T) {
	data, err := json.Marshal(Request{RequestID: 42, LanguageID: "go", Line: 3, Character: 7})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"request_id":42`, `"language_id":"go"`, `"line":3`, `"character":7`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected %s in %s", key, data)
		}
	}
}
