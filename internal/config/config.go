package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/sentinel/")
	v.AddConfigPath("$HOME/.sentinel")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Mailbox defaults
	v.SetDefault("mailbox.type", "imap")
	v.SetDefault("mailbox.address", "imap.gmail.com:993")
	v.SetDefault("mailbox.username", "")
	v.SetDefault("mailbox.password", "")
	v.SetDefault("mailbox.folder", "INBOX")
	v.SetDefault("mailbox.poll_interval", "5m")
	v.SetDefault("mailbox.lookback", "72h")

	// Forwarding defaults
	v.SetDefault("forward.recipient", "")
	v.SetDefault("forward.from_address", "")

	// SMTP defaults
	v.SetDefault("smtp.address", "smtp.gmail.com:587")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.sqlite_path", "/data/sentinel.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/sentinel")

	// Ledger defaults
	v.SetDefault("ledger.type", "store")
	v.SetDefault("ledger.capacity", 10000)
	v.SetDefault("ledger.redis_addr", "localhost:6379")
	v.SetDefault("ledger.redis_password", "")
	v.SetDefault("ledger.redis_db", 0)

	// Block defaults
	v.SetDefault("blocks.ttl", "24h")

	// Classifier defaults
	v.SetDefault("classifier.extra_keywords", []string{})
	v.SetDefault("classifier.extra_merchants", []string{})

	// Learning defaults
	v.SetDefault("learning.min_matches", 2)
	v.SetDefault("learning.lookback", "168h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
