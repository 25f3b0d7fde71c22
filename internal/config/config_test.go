package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %s, want %s", cfg.Port, DefaultPort)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", cfg.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.RetryBaseDelay != DefaultRetryBaseDelay {
		t.Errorf("RetryBaseDelay = %v, want %v", cfg.RetryBaseDelay, DefaultRetryBaseDelay)
	}
	if cfg.TrialPeriod != 7*24*time.Hour {
		t.Errorf("TrialPeriod = %v", cfg.TrialPeriod)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("RETRY_BASE_DELAY", "5s")
	t.Setenv("SCHEDULER_WORKERS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.RetryBaseDelay != 5*time.Second {
		t.Errorf("RetryBaseDelay = %v, want 5s", cfg.RetryBaseDelay)
	}
	if cfg.SchedulerWorkers != 2 {
		t.Errorf("SchedulerWorkers = %d, want 2", cfg.SchedulerWorkers)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero base delay", func(c *Config) { c.RetryBaseDelay = 0 }},
		{"max below base", func(c *Config) { c.RetryMaxDelay = time.Second; c.RetryBaseDelay = time.Minute }},
		{"zero workers", func(c *Config) { c.SchedulerWorkers = 0 }},
		{"prod without admin secret", func(c *Config) { c.Env = "production"; c.AdminSecret = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Env:               DefaultEnv,
				MaxAttempts:       DefaultMaxAttempts,
				RetryBaseDelay:    DefaultRetryBaseDelay,
				RetryMaxDelay:     DefaultRetryMaxDelay,
				SchedulerWorkers:  DefaultSchedulerWorkers,
				SchedulerInterval: DefaultSchedulerInterval,
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_BadEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "not-a-number")
	t.Setenv("SEND_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want default", cfg.MaxAttempts)
	}
	if cfg.SendTimeout != DefaultSendTimeout {
		t.Errorf("SendTimeout = %v, want default", cfg.SendTimeout)
	}
}
