package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.AI.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("Unexpected default base URL: %s", cfg.AI.BaseURL)
	}
	if cfg.SessionTTL != 60*time.Minute {
		t.Errorf("Expected 60m session TTL, got %v", cfg.SessionTTL)
	}
}

func TestLoadNormalizesBaseURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AI.BaseURL != "https://api.example.com/v1" {
		t.Errorf("Expected /v1 suffix appended, got %s", cfg.AI.BaseURL)
	}
}

func TestLoadModelFallsBackToLegacyVar(t *testing.T) {
	t.Setenv("MODEL", "llama3:8b")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AI.Model != "llama3:8b" {
		t.Errorf("Expected legacy MODEL var honored, got %s", cfg.AI.Model)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SessionTTL != 60*time.Minute {
		t.Errorf("Expected fallback TTL, got %v", cfg.SessionTTL)
	}
}

func TestValidateRejectsEmptyModel(t *testing.T) {
	cfg := &Config{Port: "8080", DBPath: "x.db"}
	cfg.AI.BaseURL = "http://localhost:11434/v1"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for empty model")
	}
}
