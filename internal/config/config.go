// Package config reads settings from the environment, optionally seeded by a
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string         `mapstructure:"port"`
	DBPath   string         `mapstructure:"db_path"`
	LogLevel string         `mapstructure:"log_level"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Import   ImportConfig   `mapstructure:"import"`
	Session  SessionConfig  `mapstructure:"session"`
	Login    LoginConfig    `mapstructure:"login"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	// AllowedOrigins are host patterns accepted for websocket upgrades.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RetryConfig struct {
	Retries uint64        `mapstructure:"retries"`
	Delay   time.Duration `mapstructure:"delay"`
}

type ImportConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	SecureCookie    bool          `mapstructure:"secure_cookie"`
}

// SnapshotConfig is read by the maintenance CLI. Passphrase seals snapshot
// files; the S3 fields upload them.
type SnapshotConfig struct {
	Dir        string   `mapstructure:"dir"`
	Keep       int      `mapstructure:"keep"`
	Passphrase string   `mapstructure:"passphrase"`
	S3         S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type LoginConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Window   time.Duration `mapstructure:"window"`
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "savory.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("retry.retries", 3)
	v.SetDefault("retry.delay", "100ms")

	v.SetDefault("import.batch_size", 1000)

	v.SetDefault("session.ttl", "720h")
	v.SetDefault("session.cleanup_interval", "1h")
	v.SetDefault("session.secure_cookie", false)

	v.SetDefault("login.attempts", 10)
	v.SetDefault("login.window", "15m")

	v.SetDefault("snapshot.dir", "")
	v.SetDefault("snapshot.keep", 10)
	v.SetDefault("snapshot.passphrase", "")
	v.SetDefault("snapshot.s3.endpoint", "")
	v.SetDefault("snapshot.s3.bucket", "")
	v.SetDefault("snapshot.s3.region", "us-east-1")
	v.SetDefault("snapshot.s3.prefix", "snapshots")
	v.SetDefault("snapshot.s3.access_key", "")
	v.SetDefault("snapshot.s3.secret_key", "")

	v.SetDefault("allowed_origins", []string{})
}

// Load reads envFiles (default ".env") into the process environment without
// overriding variables already set, then resolves SAVORY_* variables over
// the defaults. Missing env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SAVORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis cache needs SAVORY_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("import batch size must be positive")
	}
	return nil
}
