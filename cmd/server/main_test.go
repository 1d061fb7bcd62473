package main

import (
	"strings"
	"testing"

	"lapakku/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakSecrets(t *testing.T) {
	cases := []string{"", "short", strings.Repeat("x", 31)}
	for _, secret := range cases {
		if err := validateSecurityConfig(config.Config{AuthSecret: secret}); err == nil {
			t.Fatalf("expected secret %q to be rejected", secret)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongSecret(t *testing.T) {
	cfg := config.Config{AuthSecret: strings.Repeat("x", 32)}
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected 32-char secret to pass, got %v", err)
	}
}
