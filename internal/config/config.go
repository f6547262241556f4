// Package config reads process configuration from the environment. A .env
// file is loaded by godotenv/autoload in cmd/server before Load runs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/cordless/internal/apperr"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	RealtimePush = "push"
	RealtimePoll = "poll"
)

type Config struct {
	Port   string
	AppEnv string

	Store         string
	DatabaseURL   string
	RunMigrations bool

	// An explicitly empty REDIS_ADDR selects the in-process change feed.
	RedisAddr string
	RedisDB   int

	SessionMaxAge     time.Duration
	RealtimeMode      string
	PollInterval      time.Duration
	TicketTTL         time.Duration
	TicketSigningSeed string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AppEnv:            getEnv("APP_ENV", "dev"),
		Store:             strings.ToLower(getEnv("STORE", StorePostgres)),
		DatabaseURL:       databaseURL(),
		RedisAddr:         lookupEnv("REDIS_ADDR", "localhost:6379"),
		RealtimeMode:      strings.ToLower(getEnv("REALTIME_MODE", RealtimePush)),
		TicketSigningSeed: os.Getenv("TICKET_SIGNING_SEED"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.RunMigrations, err = getBool("RUN_MIGRATIONS", true); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.SessionMaxAge, err = getDuration("SESSION_MAX_AGE", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.TicketTTL, err = getDuration("TICKET_TTL", time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("set DATABASE_URL or POSTGRES_USER, PG_HOST and PG_DATABASE"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE %q", c.Store))
	}
	if c.RealtimeMode != RealtimePush && c.RealtimeMode != RealtimePoll {
		errs = append(errs, fmt.Errorf("unknown REALTIME_MODE %q", c.RealtimeMode))
	}
	if c.SessionMaxAge <= 0 {
		errs = append(errs, errors.New("SESSION_MAX_AGE must be positive"))
	}
	if len(errs) > 0 {
		return apperr.Config("Server configuration is incomplete.", errors.Join(errs...))
	}
	return nil
}

// Production turns on Secure cookies.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func databaseURL() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	user, host, db := os.Getenv("POSTGRES_USER"), os.Getenv("PG_HOST"), os.Getenv("PG_DATABASE")
	if user == "" || host == "" || db == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, os.Getenv("POSTGRES_PASSWORD")),
		Host:   host + ":" + getEnv("PG_PORT", "5432"),
		Path:   "/" + db,
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

// lookupEnv honors a variable that is set but empty.
func lookupEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
