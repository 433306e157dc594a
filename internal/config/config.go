// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"db"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures the outbound fetcher.
type HTTPConfig struct {
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int    `mapstructure:"read_timeout_seconds"`
	IdleTimeoutSeconds    int    `mapstructure:"idle_timeout_seconds"`
	MaxRetries            int    `mapstructure:"max_retries"`
	BackoffBaseMs         int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs          int    `mapstructure:"backoff_max_ms"`
	MaxConcurrent         int    `mapstructure:"max_concurrent"`
	UserAgent             string `mapstructure:"user_agent"`
}

// SchedulerConfig controls per-host pacing.
type SchedulerConfig struct {
	HostDelayMs int `mapstructure:"host_delay_ms"`
}

// CacheConfig controls both cache tiers.
type CacheConfig struct {
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
	LocalCapacity int    `mapstructure:"local_capacity"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// RedisConfig holds the distributed cache connection. An empty Addr disables the tier.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DBConfig controls access to the relational database. An empty DSN keeps jobs in memory.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// JobsConfig sizes the asynchronous comparison pipeline.
type JobsConfig struct {
	Workers        int `mapstructure:"workers"`
	QueueDepth     int `mapstructure:"queue_depth"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// NotifyConfig controls update digests.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Sender    string `mapstructure:"sender"`
	Recipient string `mapstructure:"recipient"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("URLCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.connect_timeout_seconds", 5)
	v.SetDefault("http.read_timeout_seconds", 10)
	v.SetDefault("http.idle_timeout_seconds", 90)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 0)
	v.SetDefault("http.max_concurrent", 10)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("scheduler.host_delay_ms", 100)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.local_capacity", 10000)
	v.SetDefault("cache.key_prefix", "url_date:")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "jobs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_depth", 64)
	v.SetDefault("jobs.timeout_seconds", 600)
	v.SetDefault("notify.enabled", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.HTTP.BackoffBaseMs < 0 {
		return fmt.Errorf("http.backoff_base_ms must be >= 0")
	}
	if c.HTTP.MaxConcurrent <= 0 {
		return fmt.Errorf("http.max_concurrent must be > 0")
	}
	if c.Scheduler.HostDelayMs < 0 {
		return fmt.Errorf("scheduler.host_delay_ms must be >= 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0")
	}
	if c.Jobs.TimeoutSeconds < 0 {
		return fmt.Errorf("jobs.timeout_seconds must be >= 0")
	}
	if c.DB.MinConns < 0 || (c.DB.MaxConns > 0 && c.DB.MinConns > c.DB.MaxConns) {
		return fmt.Errorf("db.min_conns must be between 0 and db.max_conns")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout is the overall per-attempt fetch deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffBase is the delay before the first retry.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.HTTP.BackoffBaseMs) * time.Millisecond
}

// HostDelay is the stagger between launches against the same host.
func (c Config) HostDelay() time.Duration {
	return time.Duration(c.Scheduler.HostDelayMs) * time.Millisecond
}

// CacheTTL is the lifetime of cached dates.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// JobTimeout bounds one asynchronous comparison. Zero disables the limit.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.TimeoutSeconds) * time.Second
}

// DBMaxConnLifetime is how long a pooled database connection may live.
func (c Config) DBMaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSeconds) * time.Second
}
