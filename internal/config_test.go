package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Org.Root != "./org" || cfg.SQLite.Path != "./orgview.db" {
		t.Errorf("defaults = %+v / %+v", cfg.Org, cfg.SQLite)
	}
}

func TestOrgConfig_RootRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Org.Root = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty org root should fail")
	}
}

func TestEventsConfig_ReadTimeoutAfterPing(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Events.ReadTimeout = cfg.Events.PingInterval
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "read_timeout") {
		t.Fatalf("err = %v", err)
	}
}

func TestClientConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*ClientConfig)
		ok   bool
	}{
		{"defaults", func(*ClientConfig) {}, true},
		{"bad url", func(c *ClientConfig) { c.ServerURL = "not a url" }, false},
		{"empty url", func(c *ClientConfig) { c.ServerURL = "" }, false},
		{"max below initial", func(c *ClientConfig) { c.MaxReconnectDelay = c.ReconnectDelay / 2 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDefaultConfig().Client
			tt.mod(&c)
			if err := c.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
