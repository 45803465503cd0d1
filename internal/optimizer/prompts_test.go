package optimizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZhenchongLi/oipromot/internal/domain"
)

func TestLoadProfilesEmptyPathReturnsDefaults(t *testing.T) {
	set, err := LoadProfiles("")
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	p := set.Lookup(domain.TurnOptimize, LanguageEnglish, ModeStandard)
	if p.MaxTokens != 1500 {
		t.Errorf("Expected default profile, got max_tokens %d", p.MaxTokens)
	}
}

func TestLoadProfilesOverridesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  - kind: optimize
    language: en
    mode: standard
    template: "Custom template:"
    max_tokens: 800
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile file: %v", err)
	}

	set, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}

	p := set.Lookup(domain.TurnOptimize, LanguageEnglish, ModeStandard)
	if p.Template != "Custom template:" {
		t.Errorf("Expected overridden template, got %q", p.Template)
	}
	if p.MaxTokens != 800 {
		t.Errorf("Expected overridden max_tokens 800, got %d", p.MaxTokens)
	}
	// Temperature untouched by the override.
	if p.Temperature != 0.1 {
		t.Errorf("Expected default temperature preserved, got %v", p.Temperature)
	}

	// Other combinations keep their defaults.
	zh := set.Lookup(domain.TurnOptimize, LanguageChinese, ModeStandard)
	if zh.MaxTokens != 1500 {
		t.Errorf("Expected untouched zh profile, got max_tokens %d", zh.MaxTokens)
	}
}

func TestLoadProfilesRejectsUnknownCombination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  - kind: summarize
    language: en
    mode: standard
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile file: %v", err)
	}

	if _, err := LoadProfiles(path); err == nil {
		t.Error("Expected error for unknown profile combination")
	}
}
