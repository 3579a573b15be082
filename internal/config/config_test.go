package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path: got %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "data_dir: /srv/tdata\nlog_level: debug\napi_id: 12345\nclose_timeout: 3s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TGSESSIONS_LOG_LEVEL", "warn")
	t.Setenv("TGSESSIONS_TEST_DC", "true")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/tdata" || cfg.APIID != 12345 || cfg.CloseTimeout != 3*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.TestDC {
		t.Fatalf("env values not applied: %+v", cfg)
	}
	if cfg.GatewayURL != Default().GatewayURL {
		t.Fatalf("default gateway lost: %q", cfg.GatewayURL)
	}

	cfg.UpdateFrom(Config{LogLevel: "trace", ControlAddr: ":9000"})
	if cfg.LogLevel != "trace" || cfg.ControlAddr != ":9000" || cfg.DataDir != "/srv/tdata" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := Load(nil, path); err == nil {
		t.Fatalf("expected error for malformed config")
	}
}

func TestLanguageCode(t *testing.T) {
	cases := map[string]string{
		"de_DE.UTF-8":      "de",
		"pt_BR":            "pt",
		"en_US.UTF-8@euro": "en",
		"C":                "",
		"":                 "",
		"C.UTF-8":          "",
	}
	for locale, want := range cases {
		if got := languageCode(locale); got != want {
			t.Errorf("languageCode(%q) = %q, want %q", locale, got, want)
		}
	}
}

func TestSystemLanguageCodeFallsBackToEnglish(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "C")
	if got := SystemLanguageCode(); got != "en" {
		t.Fatalf("got %q, want en", got)
	}
	t.Setenv("LANG", "fr_FR.UTF-8")
	if got := SystemLanguageCode(); got != "fr" {
		t.Fatalf("got %q, want fr", got)
	}
}
