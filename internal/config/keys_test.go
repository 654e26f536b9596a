package config

import (
	"errors"
	"testing"
)

func TestGetAPIKeyPrefersEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")

	cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-from-file"}}
	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key != "sk-ant-from-env" {
		t.Errorf("expected env key to win, got %q", key)
	}
	if src := GetAPIKeySource(cfg); src != KeySourceEnv {
		t.Errorf("source = %s", src)
	}
}

func TestGetAPIKeyFromConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-from-file"}}
	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key != "sk-ant-from-file" {
		t.Errorf("key = %q", key)
	}
	if src := GetAPIKeySource(cfg); src != KeySourceConfig {
		t.Errorf("source = %s", src)
	}
}

func TestGetAPIKeyMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(&Config{}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if src := GetAPIKeySource(&Config{}); src != KeySourceNone {
		t.Errorf("source = %s", src)
	}
}

func TestGetAPIKeyUnresolvedReference(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("MISSING_CONDUCTOR_KEY", "")

	// A ${VAR} reference to an unset variable is treated as no key.
	cfg := &Config{Anthropic: AnthropicConfig{APIKey: "${MISSING_CONDUCTOR_KEY}"}}
	if _, err := GetAPIKey(cfg); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestValidateAPIKey(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "sk-ant-REDACTED", false},
		{"empty", "", true},
		{"wrong prefix", "sk-openai-12345678901234567890", true},
		{"too short", "sk-ant-abc", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAPIKey(tc.key)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateAPIKey(%q) = %v, wantErr %v", tc.key, err, tc.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"sk-ant-REDACTED", "sk-ant-...wxyz"},
		{"", "(not set)"},
		{"short", "***"},
	}
	for _, tc := range cases {
		if got := MaskAPIKey(tc.key); got != tc.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
