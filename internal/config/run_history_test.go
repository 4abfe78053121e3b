package config

import (
	"testing"
	"time"
)

func TestDefaultRunHistoryConfig(t *testing.T) {
	cfg := DefaultRunHistoryConfig()

	if cfg.RetentionDays != 90 {
		t.Errorf("Expected RetentionDays to be 90, got %d", cfg.RetentionDays)
	}
	if cfg.Keep != 50 {
		t.Errorf("Expected Keep to be 50, got %d", cfg.Keep)
	}
	if !cfg.Enabled() {
		t.Error("Expected default run history pruning to be enabled")
	}
}

func TestRunHistoryConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RunHistoryConfig
		wantErr bool
	}{
		{
			name:    "default config is valid",
			cfg:     DefaultRunHistoryConfig(),
			wantErr: false,
		},
		{
			name:    "valid config at minimum bounds",
			cfg:     RunHistoryConfig{RetentionDays: 0, Keep: 0},
			wantErr: false,
		},
		{
			name:    "valid config at maximum bounds",
			cfg:     RunHistoryConfig{RetentionDays: 3650, Keep: 10000},
			wantErr: false,
		},
		{
			name:    "retention too long",
			cfg:     RunHistoryConfig{RetentionDays: 3651, Keep: 10},
			wantErr: true,
		},
		{
			name:    "negative retention",
			cfg:     RunHistoryConfig{RetentionDays: -1, Keep: 10},
			wantErr: true,
		},
		{
			name:    "keep too high",
			cfg:     RunHistoryConfig{RetentionDays: 30, Keep: 10001},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunHistoryMaxAge(t *testing.T) {
	cfg := RunHistoryConfig{RetentionDays: 7}
	if got := cfg.MaxAge(); got != 7*24*time.Hour {
		t.Errorf("MaxAge() = %v, want %v", got, 7*24*time.Hour)
	}

	disabled := RunHistoryConfig{RetentionDays: 0}
	if disabled.Enabled() {
		t.Error("Expected RetentionDays=0 to disable pruning")
	}
}

func TestRunHistoryConfigString(t *testing.T) {
	got := DefaultRunHistoryConfig().String()
	want := "RunHistoryConfig{RetentionDays: 90, Keep: 50}"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
