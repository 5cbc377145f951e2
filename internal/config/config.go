package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Roster         RosterConfig         `yaml:"roster"`
	Store          StoreConfig          `yaml:"store"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
	// AnnounceChannelID is the channel receiving expiry announcements.
	// Empty disables the external notification channel.
	AnnounceChannelID string `yaml:"announce_channel_id"`
}

// RosterConfig holds the eligibility timing windows.
type RosterConfig struct {
	// EligibilityWindow is how long a player stays eligible after a turn.
	EligibilityWindow time.Duration `yaml:"eligibility_window"`
	// InactivityWindow is measured from the original eligibility expiry,
	// not from the moment the player became not eligible.
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	// WarningWindow is the horizon for expiring-soon alerts.
	WarningWindow time.Duration `yaml:"warning_window"`
	// EvaluationInterval is the scheduler period.
	EvaluationInterval time.Duration `yaml:"evaluation_interval"`
	// PendingTTL is how long a staged action waits for confirmation.
	PendingTTL time.Duration `yaml:"pending_ttl"`
}

// StoreConfig selects and configures the persistence driver.
type StoreConfig struct {
	Driver   string         `yaml:"driver"` // "snapshot" or "redis"
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Redis    RedisConfig    `yaml:"redis"`
}

// SnapshotConfig holds settings for the encoded-snapshot driver and its
// durable local cache.
type SnapshotConfig struct {
	CacheDriver string `yaml:"cache_driver"` // "sqlite" or "postgres"
	Path        string `yaml:"path"`         // sqlite file path
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	DBName      string `yaml:"dbname"`
	SSLMode     string `yaml:"sslmode"`
	// ImportToken is an externally supplied snapshot token. When it
	// decodes, its state wins over the local cache on load.
	ImportToken string `yaml:"import_token"`
}

// DSN returns the Postgres connection string for the snapshot cache.
func (s SnapshotConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.DBName, s.SSLMode,
	)
}

// RedisConfig holds settings for the synchronized driver.
type RedisConfig struct {
	URL          string `yaml:"url"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Roster: RosterConfig{
			EligibilityWindow:  72 * time.Hour,
			InactivityWindow:   72 * time.Hour,
			WarningWindow:      24 * time.Hour,
			EvaluationInterval: time.Minute,
			PendingTTL:         5 * time.Minute,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver: "snapshot",
			Snapshot: SnapshotConfig{
				CacheDriver: "sqlite",
				Path:        "boardbot.db",
				Host:        "localhost",
				Port:        5432,
				SSLMode:     "disable",
			},
			Redis: RedisConfig{
				URL:          "redis://localhost:6379",
				PoolSize:     10,
				MinIdleConns: 2,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "boardbot",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "boardbot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Store.Driver {
	case "snapshot", "redis":
		// valid
	default:
		return fmt.Errorf("unsupported store driver %q: must be \"snapshot\" or \"redis\"", c.Store.Driver)
	}
	if c.Store.Driver == "snapshot" {
		switch c.Store.Snapshot.CacheDriver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("unsupported snapshot cache driver %q: must be \"sqlite\" or \"postgres\"", c.Store.Snapshot.CacheDriver)
		}
	}
	if c.Roster.EligibilityWindow <= 0 {
		return fmt.Errorf("roster.eligibility_window must be positive")
	}
	if c.Roster.InactivityWindow <= 0 {
		return fmt.Errorf("roster.inactivity_window must be positive")
	}
	if c.Roster.EvaluationInterval <= 0 {
		return fmt.Errorf("roster.evaluation_interval must be positive")
	}
	return nil
}
