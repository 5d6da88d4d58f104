package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	Auth     AuthConfig     `yaml:"auth"`
	Sync     SyncConfig     `yaml:"sync"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Migrate  bool   `yaml:"migrate"`
}

// AWSConfig holds the object storage used for message images
type AWSConfig struct {
	Region    string        `yaml:"region"`
	S3Bucket  string        `yaml:"s3_bucket"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Endpoint  string        `yaml:"endpoint"`
	URLTTL    time.Duration `yaml:"url_ttl"`
}

// AuthConfig holds bearer token verification settings. With an empty
// secret tokens are decoded without signature verification, which is only
// meant for a gateway that has already verified them.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SyncConfig tunes the reconciliation loops
type SyncConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	TickTimeout      time.Duration `yaml:"tick_timeout"`
	PendingTTL       time.Duration `yaml:"pending_ttl"`
	LegacyPlanShapes *bool         `yaml:"legacy_plan_shapes"`
}

// StorageConfig holds local state paths
type StorageConfig struct {
	TicketFlagsPath string `yaml:"ticket_flags_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.AWS.URLTTL == 0 {
		c.AWS.URLTTL = 15 * time.Minute
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = 3 * time.Second
	}
	if c.Sync.TickTimeout == 0 {
		c.Sync.TickTimeout = c.Sync.PollInterval
	}
	if c.Sync.PendingTTL == 0 {
		c.Sync.PendingTTL = 2 * time.Minute
	}
	if c.Sync.LegacyPlanShapes == nil {
		on := true
		c.Sync.LegacyPlanShapes = &on
	}
	if c.Storage.TicketFlagsPath == "" {
		c.Storage.TicketFlagsPath = "data/ticketflags"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first setting that cannot work
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		return errors.New("database.host and database.dbname are required")
	}
	if c.AWS.S3Bucket != "" && c.AWS.Region == "" {
		return errors.New("aws.region is required when aws.s3_bucket is set")
	}
	if c.Sync.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("sync.poll_interval %s is too short", c.Sync.PollInterval)
	}
	if c.Sync.TickTimeout > c.Sync.PollInterval {
		return fmt.Errorf("sync.tick_timeout %s exceeds sync.poll_interval", c.Sync.TickTimeout)
	}
	return nil
}

// LegacyShapes reports whether old plan payloads stored as image or text
// messages are reclassified
func (c *SyncConfig) LegacyShapes() bool {
	return c.LegacyPlanShapes == nil || *c.LegacyPlanShapes
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrateURL returns the database URL in the form the migrate pgx driver expects
func (c *DatabaseConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
