// Package config loads the process configuration from the environment once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTokenTTL is how long an access token stays valid.
	DefaultTokenTTL = 60 * time.Minute
	// DevJWTSecret is only used when APP_ENV=dev and JWT_SECRET is unset.
	DevJWTSecret = "dev-secret-do-not-use-in-production"

	// memcached expirations are whole seconds, and above 30 days they are read as a
	// unix timestamp.
	minStatsTTL = time.Second
	maxStatsTTL = 30 * 24 * time.Hour
)

// Auth holds the token signing settings shared by the whole process.
type Auth struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// Cache holds the statistics cache settings. No hosts disables caching.
type Cache struct {
	MemcacheHosts []string
	StatsTTL      time.Duration
}

// Config is the immutable application configuration.
type Config struct {
	Env         string
	Port        string
	DBPath      string
	LogEnv      string
	CORSOrigins []string

	Auth  Auth
	Cache Cache

	AdminEmail    string
	AdminPassword string
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Load builds a Config from environment variables. Every invalid or missing value is
// reported in a single error.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	var problems []string

	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	getDuration := func(key string, def time.Duration) time.Duration {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
			return def
		}
		return d
	}

	cfg := &Config{
		Env:           get("APP_ENV", "prod"),
		Port:          get("PORT", "8080"),
		DBPath:        get("DB_PATH", "expenses.db"),
		LogEnv:        get("LOG_ENV", "prod"),
		CORSOrigins:   splitList(get("CORS_ORIGINS", "*")),
		AdminEmail:    get("ADMIN_EMAIL", ""),
		AdminPassword: get("ADMIN_PASSWORD", ""),
		Auth: Auth{
			JWTSecret: get("JWT_SECRET", ""),
			TokenTTL:  getDuration("TOKEN_TTL", DefaultTokenTTL),
		},
		Cache: Cache{
			MemcacheHosts: splitList(get("MEMCACHE_HOSTS", "")),
			StatsTTL:      getDuration("STATS_CACHE_TTL", 5*time.Minute),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		if cfg.Env == "dev" {
			cfg.Auth.JWTSecret = DevJWTSecret
		} else {
			problems = append(problems, "missing required environment variable: JWT_SECRET")
		}
	}

	cost, err := bcryptCost(lookup)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.Auth.BcryptCost = cost

	if ttl := cfg.Cache.StatsTTL; ttl < minStatsTTL || ttl > maxStatsTTL {
		problems = append(problems, fmt.Sprintf("STATS_CACHE_TTL must be between %s and %s, got %s",
			minStatsTTL, maxStatsTTL, ttl))
	}

	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		problems = append(problems, "ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	if len(problems) > 0 {
		return nil, errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return cfg, nil
}

// BcryptCost reads BCRYPT_COST alone, for tools that hash passwords without the rest
// of the server configuration.
func BcryptCost() (int, error) {
	return bcryptCost(os.LookupEnv)
}

func bcryptCost(lookup func(string) (string, bool)) (int, error) {
	raw, ok := lookup("BCRYPT_COST")
	if !ok || raw == "" {
		return bcrypt.DefaultCost, nil
	}
	cost, err := strconv.Atoi(raw)
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost, fmt.Errorf("BCRYPT_COST must be an integer in [%d, %d], got %q",
			bcrypt.MinCost, bcrypt.MaxCost, raw)
	}
	return cost, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
