package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Leviton sync engine.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account  AccountConfig  `yaml:"account"`
	Sync     SyncConfig     `yaml:"sync"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AccountConfig contains the Leviton cloud account credentials and endpoints.
type AccountConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// BaseURL is the REST API base. Override for testing against a stub server.
	BaseURL string `yaml:"base_url"`

	// SocketURL is the WebSocket push endpoint.
	SocketURL string `yaml:"socket_url"`

	// Timezone is the IANA timezone used for the daily midnight rollover.
	Timezone string `yaml:"timezone"`
}

// SyncConfig contains the tunables of the synchronization engine.
// Defaults match observed Leviton server/firmware behaviour; change with care.
type SyncConfig struct {
	// PollInterval is the REST fallback polling period in minutes.
	PollInterval int `yaml:"poll_interval"`

	// BandwidthSettleDelay is how long to wait (seconds) after a bandwidth
	// mode change before the next dependent read. The WHEM needs real time
	// to switch energy reporting regimes; reads made too early return values
	// from the old regime.
	BandwidthSettleDelay int `yaml:"bandwidth_settle_delay"`

	// WatchdogInterval is the staleness check period in seconds.
	WatchdogInterval int `yaml:"watchdog_interval"`

	// StalenessThreshold is the push-silence duration in seconds after which
	// the connection is treated as dead.
	StalenessThreshold int `yaml:"staleness_threshold"`

	// ProactiveRefreshInterval is the forced reconnect period in minutes.
	// Must stay below the server's ~60-minute push cutoff.
	ProactiveRefreshInterval int `yaml:"proactive_refresh_interval"`

	// BandwidthKeepaliveInterval is the WHEM bandwidth re-toggle period in
	// seconds. Without it CT updates degrade to a trickle within minutes.
	BandwidthKeepaliveInterval int `yaml:"bandwidth_keepalive_interval"`

	// ReconnectDelays is the escalating backoff schedule in seconds.
	ReconnectDelays []int `yaml:"reconnect_delays"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains settings for the optional state republisher.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains settings for the optional metrics writer.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains settings for the read-only status HTTP API.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LEVSYNC_SECTION_KEY
// For example: LEVSYNC_ACCOUNT_PASSWORD, LEVSYNC_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// The sync section defaults match the behaviour the Leviton service was
// observed to require; see the SyncConfig field docs.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			BaseURL:   "https://my.leviton.com/api",
			SocketURL: "wss://my.leviton.com/socket",
			Timezone:  "Local",
		},
		Sync: SyncConfig{
			PollInterval:               10,
			BandwidthSettleDelay:       2,
			WatchdogInterval:           30,
			StalenessThreshold:         90,
			ProactiveRefreshInterval:   55,
			BandwidthKeepaliveInterval: 60,
			ReconnectDelays:            []int{10, 30, 60, 120, 300},
		},
		Database: DatabaseConfig{
			Path:        "./data/levsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "levsync",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8095,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LEVSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Account
	if v := os.Getenv("LEVSYNC_ACCOUNT_EMAIL"); v != "" {
		cfg.Account.Email = v
	}
	if v := os.Getenv("LEVSYNC_ACCOUNT_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}
	if v := os.Getenv("LEVSYNC_ACCOUNT_BASE_URL"); v != "" {
		cfg.Account.BaseURL = v
	}

	// Database
	if v := os.Getenv("LEVSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LEVSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LEVSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LEVSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LEVSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("LEVSYNC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Account validation
	if c.Account.Email == "" {
		errs = append(errs, "account.email is required")
	}
	if c.Account.Password == "" {
		errs = append(errs, "account.password is required (set LEVSYNC_ACCOUNT_PASSWORD environment variable)")
	}
	if c.Account.BaseURL == "" {
		errs = append(errs, "account.base_url is required")
	}

	// Sync validation
	if c.Sync.PollInterval < 1 {
		errs = append(errs, "sync.poll_interval must be at least 1 minute")
	}
	if c.Sync.BandwidthSettleDelay < 0 {
		errs = append(errs, "sync.bandwidth_settle_delay must not be negative")
	}
	if c.Sync.StalenessThreshold <= c.Sync.WatchdogInterval {
		errs = append(errs, "sync.staleness_threshold must exceed sync.watchdog_interval")
	}
	if len(c.Sync.ReconnectDelays) == 0 {
		errs = append(errs, "sync.reconnect_delays must not be empty")
	}
	for _, d := range c.Sync.ReconnectDelays {
		if d < 1 {
			errs = append(errs, "sync.reconnect_delays entries must be at least 1 second")
			break
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location resolves the configured timezone for midnight rollover scheduling.
// "Local" or empty uses the host timezone; anything else must be a valid IANA name.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Account.Timezone
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("resolving timezone %q: %w", tz, err)
	}
	return loc, nil
}

// GetPollInterval returns the REST fallback polling period as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Sync.PollInterval) * time.Minute
}

// GetBandwidthSettleDelay returns the post-toggle settle delay as a Duration.
func (c *Config) GetBandwidthSettleDelay() time.Duration {
	return time.Duration(c.Sync.BandwidthSettleDelay) * time.Second
}

// GetWatchdogInterval returns the staleness check period as a Duration.
func (c *Config) GetWatchdogInterval() time.Duration {
	return time.Duration(c.Sync.WatchdogInterval) * time.Second
}

// GetStalenessThreshold returns the push-silence cutoff as a Duration.
func (c *Config) GetStalenessThreshold() time.Duration {
	return time.Duration(c.Sync.StalenessThreshold) * time.Second
}

// GetProactiveRefreshInterval returns the forced reconnect period as a Duration.
func (c *Config) GetProactiveRefreshInterval() time.Duration {
	return time.Duration(c.Sync.ProactiveRefreshInterval) * time.Minute
}

// GetBandwidthKeepaliveInterval returns the bandwidth re-toggle period as a Duration.
func (c *Config) GetBandwidthKeepaliveInterval() time.Duration {
	return time.Duration(c.Sync.BandwidthKeepaliveInterval) * time.Second
}

// GetReconnectDelays returns the backoff schedule as Durations.
func (c *Config) GetReconnectDelays() []time.Duration {
	delays := make([]time.Duration, len(c.Sync.ReconnectDelays))
	for i, d := range c.Sync.ReconnectDelays {
		delays[i] = time.Duration(d) * time.Second
	}
	return delays
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
