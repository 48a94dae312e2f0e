package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8741 {
		t.Errorf("expected default port 8741, got %d", cfg.Port)
	}
	if cfg.Embedder != "local" {
		t.Errorf("expected local embedder by default, got %s", cfg.Embedder)
	}
	if cfg.NearDupThreshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %f", cfg.NearDupThreshold)
	}
	if cfg.StaleAfterDays != 14 {
		t.Errorf("expected 14 stale days, got %d", cfg.StaleAfterDays)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("EMBEDDER", "ollama")
	t.Setenv("NEAR_DUP_THRESHOLD", "0.9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.Embedder != "ollama" {
		t.Errorf("expected ollama embedder, got %s", cfg.Embedder)
	}
	if cfg.NearDupThreshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %f", cfg.NearDupThreshold)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "70000"}},
		{"bad embedder", map[string]string{"EMBEDDER": "remote"}},
		{"bad threshold", map[string]string{"NEAR_DUP_THRESHOLD": "1.5"}},
		{"zero hook timeout", map[string]string{"HOOK_TIMEOUT_MS": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
