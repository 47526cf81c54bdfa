package config

import "testing"

func TestLoadRequiresEncryptionKey(t *testing.T) {
	t.Setenv("POLLER_ENCRYPTION_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with no encryption key = nil error, want error")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("POLLER_ENCRYPTION_KEY", "test-master-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "./poller.db" {
		t.Fatalf("DBPath = %q, want default", cfg.DBPath)
	}
	if cfg.HTTPTimeoutSeconds != 30 {
		t.Fatalf("HTTPTimeoutSeconds = %d, want 30", cfg.HTTPTimeoutSeconds)
	}
	if cfg.RetryMaxAttempts != 10 {
		t.Fatalf("RetryMaxAttempts = %d, want 10", cfg.RetryMaxAttempts)
	}
	if cfg.HTTPTimeout().Seconds() != 30 {
		t.Fatalf("HTTPTimeout() = %v, want 30s", cfg.HTTPTimeout())
	}
	if cfg.CBRecoveryTimeout().Seconds() != 120 {
		t.Fatalf("CBRecoveryTimeout() = %v, want 120s", cfg.CBRecoveryTimeout())
	}
}

func TestValidateRejectsIntervalBelowFloor(t *testing.T) {
	t.Setenv("POLLER_ENCRYPTION_KEY", "test-master-key")
	t.Setenv("POLLER_MIN_INTERVAL_SECONDS", "1")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with sub-floor min interval = nil error, want error")
	}
}
