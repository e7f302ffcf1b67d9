package config

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Config holds every setting read from the environment.
type Config struct {
	Debug bool   `env:"DEBUG" envDefault:"false"`
	Port  string `env:"FUNCTIONS_CUSTOMHANDLER_PORT" envDefault:"8080"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"kanban.db"`
	ShowSQL  bool   `env:"DB_SHOW_SQL" envDefault:"false"`

	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	BoardsCacheTTL        time.Duration `env:"BOARDS_CACHE_TTL" envDefault:"5m"`

	TokenTTL         time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	RememberTokenTTL time.Duration `env:"REMEMBER_TOKEN_TTL" envDefault:"336h"`

	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	ActivityTable           string `env:"ACTIVITY_TABLE"`
	ActivityQueue           string `env:"ACTIVITY_QUEUE"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("missing DB_DSN")
	}
	if c.TokenTTL <= 0 || c.RememberTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be greater than zero")
	}
	if c.BoardsCacheTTL < 0 {
		return fmt.Errorf("invalid BOARDS_CACHE_TTL")
	}
	if (c.ActivityTable != "" || c.ActivityQueue != "") && c.StorageConnectionString == "" {
		return fmt.Errorf("ACTIVITY_TABLE/ACTIVITY_QUEUE require STORAGE_CONNECTION_STRING")
	}
	return nil
}

// ListenAddr returns the address the HTTP server binds to.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

// RedisOptions parses either a redis:// URL or the Azure style
// "host:port,password=...,ssl=True" connection string. It returns nil when
// no redis is configured.
func (c Config) RedisOptions() *redis.Options {
	return ParseRedisConnectionString(c.RedisConnectionString)
}

// ParseRedisConnectionString is the parser behind Config.RedisOptions.
func ParseRedisConnectionString(conn string) *redis.Options {
	if conn == "" {
		return nil
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
