package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesPayoutServiceInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "PAYOUT_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_InternalAPIKeyTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INTERNAL_API_KEY", "primary-key")
	setEnvWithCleanup(t, "PAYOUT_SERVICE_INTERNAL_API_KEY", "alias-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "primary-key" {
		t.Fatalf("expected InternalAPIKey to prioritize INTERNAL_API_KEY, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_VerificationDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "VERIFY_MAX_ATTEMPTS")
	unsetEnvWithCleanup(t, "VERIFY_INTERVAL_MS")
	unsetEnvWithCleanup(t, "VERIFY_GRACE_DELAY_MS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.VerifyMaxAttempts != 20 {
		t.Fatalf("expected default VerifyMaxAttempts 20, got %d", cfg.VerifyMaxAttempts)
	}
	if cfg.VerifyIntervalMs != 5000 {
		t.Fatalf("expected default VerifyIntervalMs 5000, got %d", cfg.VerifyIntervalMs)
	}
	if cfg.VerifyGraceDelayMs != 3000 {
		t.Fatalf("expected default VerifyGraceDelayMs 3000, got %d", cfg.VerifyGraceDelayMs)
	}
}

func TestLoadConfig_CoercesInvalidVerifyTuning(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "VERIFY_MAX_ATTEMPTS", "-3")
	setEnvWithCleanup(t, "VERIFY_INTERVAL_MS", "0")
	setEnvWithCleanup(t, "VERIFY_GRACE_DELAY_MS", "-100")
	setEnvWithCleanup(t, "VERIFY_RATE_LIMIT_PER_MINUTE", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.VerifyMaxAttempts != 20 {
		t.Fatalf("expected coerced VerifyMaxAttempts 20, got %d", cfg.VerifyMaxAttempts)
	}
	if cfg.VerifyIntervalMs != 5000 {
		t.Fatalf("expected coerced VerifyIntervalMs 5000, got %d", cfg.VerifyIntervalMs)
	}
	if cfg.VerifyGraceDelayMs != 0 {
		t.Fatalf("expected negative grace delay coerced to 0, got %d", cfg.VerifyGraceDelayMs)
	}
	if cfg.VerifyRateLimitPerMinute != 0 {
		t.Fatalf("expected negative rate limit disabled, got %d", cfg.VerifyRateLimitPerMinute)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8086")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to override ServerPort, got %q", cfg.ServerPort)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
