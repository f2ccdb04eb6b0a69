package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	Name        string `mapstructure:"name"`
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type     string      `mapstructure:"type"` // redis, bolt, sqlite, mongo or memory
	StateKey string      `mapstructure:"state_key"`
	Redis    RedisConfig `mapstructure:"redis"`
	Bolt     FileConfig  `mapstructure:"bolt"`
	SQLite   FileConfig  `mapstructure:"sqlite"`
	Mongo    MongoConfig `mapstructure:"mongo"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"` // may include the port
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// FileConfig locates a file-backed database
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// MongoConfig defines MongoDB connection settings
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Timeout  string `mapstructure:"timeout"`
}

// TrackerConfig tunes the session tracker
type TrackerConfig struct {
	PersistTimeout string `mapstructure:"persist_timeout"`
}

// ArchiveConfig defines retention of finished sessions
type ArchiveConfig struct {
	RetentionDays int    `mapstructure:"retention_days"`
	CleanupTime   string `mapstructure:"cleanup_time"` // HH:MM
}

// RemoteConfig points at the clinic's upstream API
type RemoteConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Token         string `mapstructure:"token"`
	Timeout       string `mapstructure:"timeout"`
	Retries       int    `mapstructure:"retries"`
	QueuePath     string `mapstructure:"queue_path"`
	EventsPath    string `mapstructure:"events_path"`
	EventsEnabled bool   `mapstructure:"events_enabled"`
	ReconnectMin  string `mapstructure:"reconnect_min"`
	ReconnectMax  string `mapstructure:"reconnect_max"`
	CacheSize     int    `mapstructure:"cache_size"`
	CacheTTL      string `mapstructure:"cache_ttl"`
}

// Enabled reports whether a remote API is configured
func (r RemoteConfig) Enabled() bool {
	return r.BaseURL != ""
}

// APIConfig defines HTTP API settings
type APIConfig struct {
	JWTSecret       string   `mapstructure:"jwt_secret"`
	TokenExpiration string   `mapstructure:"token_expiration"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("KCLINIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The listener follows the remote API unless explicitly disabled
	if !v.IsSet("remote.events_enabled") {
		config.Remote.EventsEnabled = config.Remote.Enabled()
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration produced by defaults alone
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.name", "kclinic")
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "redis")
	v.SetDefault("storage.state_key", "session-store")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 5)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.bolt.path", "/var/lib/kclinic/kclinic.bolt")
	v.SetDefault("storage.sqlite.path", "/var/lib/kclinic/kclinic.db")
	v.SetDefault("storage.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo.database", "kclinic")
	v.SetDefault("storage.mongo.timeout", "10s")

	// Tracker defaults
	v.SetDefault("tracker.persist_timeout", "2s")

	// Archive defaults
	v.SetDefault("archive.retention_days", 365)
	v.SetDefault("archive.cleanup_time", "03:00")

	// Remote API defaults
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", "10s")
	v.SetDefault("remote.retries", 3)
	v.SetDefault("remote.queue_path", "/queue")
	v.SetDefault("remote.events_path", "/queue/events")
	v.SetDefault("remote.reconnect_min", "1s")
	v.SetDefault("remote.reconnect_max", "30s")
	v.SetDefault("remote.cache_size", 128)
	v.SetDefault("remote.cache_ttl", "30s")

	// API defaults
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("api.token_expiration", "12h")
	v.SetDefault("api.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.StateKey == "" {
		return fmt.Errorf("storage state key is required")
	}

	switch cfg.Storage.Type {
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
		for name, d := range map[string]string{
			"dial_timeout":  cfg.Storage.Redis.DialTimeout,
			"read_timeout":  cfg.Storage.Redis.ReadTimeout,
			"write_timeout": cfg.Storage.Redis.WriteTimeout,
		} {
			if _, err := time.ParseDuration(d); err != nil {
				return fmt.Errorf("invalid redis %s %q: %w", name, d, err)
			}
		}
	case "bolt":
		if cfg.Storage.Bolt.Path == "" {
			return fmt.Errorf("bolt path is required")
		}
	case "sqlite":
		if cfg.Storage.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "mongo":
		if cfg.Storage.Mongo.URI == "" || cfg.Storage.Mongo.Database == "" {
			return fmt.Errorf("mongo uri and database are required")
		}
		if _, err := time.ParseDuration(cfg.Storage.Mongo.Timeout); err != nil {
			return fmt.Errorf("invalid mongo timeout %q: %w", cfg.Storage.Mongo.Timeout, err)
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}

	if _, err := time.ParseDuration(cfg.Tracker.PersistTimeout); err != nil {
		return fmt.Errorf("invalid tracker persist_timeout %q: %w", cfg.Tracker.PersistTimeout, err)
	}

	if cfg.Archive.RetentionDays <= 0 {
		return fmt.Errorf("archive retention_days must be positive, got %d", cfg.Archive.RetentionDays)
	}
	if _, err := time.Parse("15:04", cfg.Archive.CleanupTime); err != nil {
		return fmt.Errorf("invalid archive cleanup_time %q: %w", cfg.Archive.CleanupTime, err)
	}

	if cfg.Remote.Enabled() {
		u, err := url.Parse(cfg.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid remote base_url %q", cfg.Remote.BaseURL)
		}
		for name, d := range map[string]string{
			"timeout":       cfg.Remote.Timeout,
			"reconnect_min": cfg.Remote.ReconnectMin,
			"reconnect_max": cfg.Remote.ReconnectMax,
			"cache_ttl":     cfg.Remote.CacheTTL,
		} {
			if _, err := time.ParseDuration(d); err != nil {
				return fmt.Errorf("invalid remote %s %q: %w", name, d, err)
			}
		}
		if cfg.Remote.CacheSize <= 0 {
			return fmt.Errorf("remote cache_size must be positive, got %d", cfg.Remote.CacheSize)
		}
	} else if cfg.Remote.EventsEnabled {
		return fmt.Errorf("remote events require remote base_url")
	}

	if _, err := time.ParseDuration(cfg.API.TokenExpiration); err != nil {
		return fmt.Errorf("invalid api token_expiration %q: %w", cfg.API.TokenExpiration, err)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown logging format: %q", cfg.Logging.Format)
	}

	return nil
}
