package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Kagi server.
// The encryption key is not part of Config; the codec reads it from the
// environment on every call.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type SessionConfig struct {
	Secret     string
	CookieName string
	TTL        time.Duration
}

type RateLimitConfig struct {
	PerMinute int
	// AuthFailuresPerMinute caps 401 responses per client address.
	AuthFailuresPerMinute int
}

type CacheConfig struct {
	StatsTTL time.Duration
}

const minSessionSecretLen = 32

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("KAGI_PORT", 8080),
			Env:               envString("KAGI_ENV", "development"),
			TrustProxyHeaders: envBool("KAGI_TRUST_PROXY_HEADERS", false),
		},
		Database: databaseFromEnv(),
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Session: sessionFromEnv(),
		RateLimit: RateLimitConfig{
			PerMinute:             envInt("KAGI_RATE_LIMIT_PER_MINUTE", 120),
			AuthFailuresPerMinute: envInt("KAGI_AUTH_FAILURES_PER_MINUTE", 10),
		},
		Cache: CacheConfig{
			StatsTTL: envDuration("KAGI_STATS_CACHE_TTL", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase reads only the database section. Admin commands use it so
// that they do not need the server's Redis and session settings.
func LoadDatabase() (DatabaseConfig, error) {
	db := databaseFromEnv()
	if err := db.validate(); err != nil {
		return DatabaseConfig{}, err
	}
	return db, nil
}

// LoadSession reads only the session section.
func LoadSession() (SessionConfig, error) {
	s := sessionFromEnv()
	if err := s.validate(); err != nil {
		return SessionConfig{}, err
	}
	return s, nil
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func sessionFromEnv() SessionConfig {
	return SessionConfig{
		Secret:     os.Getenv("KAGI_SESSION_SECRET"),
		CookieName: envString("KAGI_SESSION_COOKIE", "kagi.session_token"),
		TTL:        envDuration("KAGI_SESSION_TTL", 7*24*time.Hour),
	}
}

func (c *Config) validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if err := c.Session.validate(); err != nil {
		return err
	}

	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("KAGI_RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimit.PerMinute)
	}
	if c.RateLimit.AuthFailuresPerMinute <= 0 {
		return fmt.Errorf("KAGI_AUTH_FAILURES_PER_MINUTE must be positive, got %d", c.RateLimit.AuthFailuresPerMinute)
	}

	return nil
}

func (d DatabaseConfig) validate() error {
	if d.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func (s SessionConfig) validate() error {
	if s.Secret == "" {
		return fmt.Errorf("KAGI_SESSION_SECRET is required")
	}
	if len(s.Secret) < minSessionSecretLen {
		return fmt.Errorf("KAGI_SESSION_SECRET must be at least %d characters, got %d", minSessionSecretLen, len(s.Secret))
	}
	if s.TTL <= 0 {
		return fmt.Errorf("KAGI_SESSION_TTL must be positive, got %s", s.TTL)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
