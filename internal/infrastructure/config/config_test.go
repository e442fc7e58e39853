package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
account:
  email: "user@example.com"
  password: "hunter2hunter2"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8095
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Account.Email != "user@example.com" {
		t.Errorf("Account.Email = %q, want %q", cfg.Account.Email, "user@example.com")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	// Defaults should fill unspecified sync settings
	if cfg.Sync.PollInterval != 10 {
		t.Errorf("Sync.PollInterval = %d, want 10", cfg.Sync.PollInterval)
	}
	if cfg.Account.BaseURL == "" {
		t.Error("Account.BaseURL default not applied")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
account:
  email: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing credentials, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Account.Email = "user@example.com"
		cfg.Account.Password = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults with credentials",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "missing email",
			mutate:  func(c *Config) { c.Account.Email = "" },
			wantErr: true,
		},
		{
			name:    "missing password",
			mutate:  func(c *Config) { c.Account.Password = "" },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Sync.PollInterval = 0 },
			wantErr: true,
		},
		{
			name: "staleness below watchdog",
			mutate: func(c *Config) {
				c.Sync.WatchdogInterval = 30
				c.Sync.StalenessThreshold = 30
			},
			wantErr: true,
		},
		{
			name:    "empty reconnect schedule",
			mutate:  func(c *Config) { c.Sync.ReconnectDelays = nil },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "influx enabled without token",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://localhost:8086" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := Default()

	if got := cfg.GetPollInterval(); got != 10*time.Minute {
		t.Errorf("GetPollInterval() = %v, want 10m", got)
	}
	if got := cfg.GetStalenessThreshold(); got != 90*time.Second {
		t.Errorf("GetStalenessThreshold() = %v, want 90s", got)
	}
	if got := cfg.GetProactiveRefreshInterval(); got != 55*time.Minute {
		t.Errorf("GetProactiveRefreshInterval() = %v, want 55m", got)
	}

	delays := cfg.GetReconnectDelays()
	want := []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second, 300 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("GetReconnectDelays() len = %d, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("GetReconnectDelays()[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LEVSYNC_ACCOUNT_PASSWORD", "env-secret")
	t.Setenv("LEVSYNC_DATABASE_PATH", "/env/levsync.db")
	t.Setenv("LEVSYNC_API_PORT", "9100")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Account.Password != "env-secret" {
		t.Errorf("Account.Password = %q, want env override", cfg.Account.Password)
	}
	if cfg.Database.Path != "/env/levsync.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want 9100", cfg.API.Port)
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := Default()

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc != time.Local {
		t.Errorf("Location() = %v, want time.Local", loc)
	}

	cfg.Account.Timezone = "America/New_York"
	loc, err = cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Errorf("Location() = %v, want America/New_York", loc)
	}

	cfg.Account.Timezone = "Not/AZone"
	if _, err := cfg.Location(); err == nil {
		t.Error("Location() expected error for bad timezone, got nil")
	}
}
