package config

import (
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.ScamThreshold != 0.35 {
		t.Errorf("ScamThreshold = %.2f, want 0.35", cfg.ScamThreshold)
	}
	if cfg.FinalizeMinArtifacts != 1 {
		t.Errorf("FinalizeMinArtifacts = %d, want 1", cfg.FinalizeMinArtifacts)
	}
	if cfg.ReplyTimeout != 4*time.Second {
		t.Errorf("ReplyTimeout = %v, want 4s", cfg.ReplyTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DECOY_SCAM_THRESHOLD", "0.5")
	t.Setenv("DECOY_STORE", "redis")
	t.Setenv("DECOY_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("DECOY_FINALIZE_MIN_ARTIFACTS", "2")
	t.Setenv("DECOY_REPLY_TIMEOUT_MS", "2500")

	cfg := NewDefaultConfig()
	if cfg.ScamThreshold != 0.5 {
		t.Errorf("ScamThreshold = %.2f, want 0.5", cfg.ScamThreshold)
	}
	if cfg.StoreBackend != StoreRedis {
		t.Errorf("StoreBackend = %q, want redis", cfg.StoreBackend)
	}
	if cfg.RedisAddr != "redis.internal:6380" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.FinalizeMinArtifacts != 2 {
		t.Errorf("FinalizeMinArtifacts = %d, want 2", cfg.FinalizeMinArtifacts)
	}
	if cfg.ReplyTimeout != 2500*time.Millisecond {
		t.Errorf("ReplyTimeout = %v, want 2.5s", cfg.ReplyTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.ScamThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.ScamThreshold = -0.1 }},
		{"zero min artifacts", func(c *Config) { c.FinalizeMinArtifacts = 0 }},
		{"unknown store", func(c *Config) { c.StoreBackend = "etcd" }},
		{"redis without addr", func(c *Config) { c.StoreBackend = StoreRedis; c.RedisAddr = "" }},
		{"onnx without model", func(c *Config) { c.EnableONNX = true; c.ONNXModelPath = "" }},
		{"zero reply timeout", func(c *Config) { c.ReplyTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("DECOY_TEST_STR", "value")
	t.Setenv("DECOY_TEST_BOOL", "true")
	t.Setenv("DECOY_TEST_FLOAT", "0.42")
	t.Setenv("DECOY_TEST_INT", "not-a-number")

	if got := GetEnv("DECOY_TEST_STR", "d"); got != "value" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("DECOY_TEST_MISSING", "d"); got != "d" {
		t.Errorf("GetEnv default = %q", got)
	}
	if !GetEnvBool("DECOY_TEST_BOOL", false) {
		t.Error("GetEnvBool = false, want true")
	}
	if got := GetEnvFloat("DECOY_TEST_FLOAT", 0); got != 0.42 {
		t.Errorf("GetEnvFloat = %v", got)
	}
	// Unparseable values fall back to the default.
	if got := GetEnvInt("DECOY_TEST_INT", 7); got != 7 {
		t.Errorf("GetEnvInt = %d, want default 7", got)
	}
}
