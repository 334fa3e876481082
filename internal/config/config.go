// Package config loads process configuration with precedence
// flags > environment > .env file > defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Store     StoreConfig
	Auth      AuthConfig
	Catalog   CatalogConfig
	Relay     RelayConfig
	Tracker   TrackerConfig
	Reminders ReminderConfig
	Mail      MailConfig
}

type AppConfig struct {
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StoreConfig struct {
	// DSN is a sqlite path, a mysql DSN or badger:<dir>.
	DSN string
}

type AuthConfig struct {
	JWTSecret string
	// Mode is "local" or "none".
	Mode string
}

type CatalogConfig struct {
	URL string
	RPS float64
}

type RelayConfig struct {
	// URL is the relay the sync client goes through. Empty means direct.
	URL          string
	AllowedHosts []string
	RPS          float64
}

type TrackerConfig struct {
	Interval time.Duration
	Delay    time.Duration
	Debounce time.Duration
}

type ReminderConfig struct {
	Interval time.Duration
}

type MailConfig struct {
	Provider string
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string
	ToastTo  string
}

var defaultRelayHosts = []string{
	"pastebin.com",
	"gist.githubusercontent.com",
	"gist.github.com",
	"rentry.co",
	"rentry.org",
}

// Load parses args (usually os.Args[1:]) and the environment.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("anishelf", flag.ContinueOnError)
	env := fs.String("env", "", "Environment (development, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	port := fs.String("port", "", "Server port (default: 8080)")
	dsn := fs.String("store", "", "Store DSN: sqlite path, mysql DSN or badger:<dir>")
	authMode := fs.String("auth-mode", "", "Auth mode: local or none (default: local)")
	relayURL := fs.String("relay-url", "", "Relay used by the shared-data sync client")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// A missing .env file is not an error.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			LogLevel:    getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:         getConfigValue(*port, "PORT", "8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 60*time.Second),
		},
		Store: StoreConfig{
			DSN: getConfigValue(*dsn, "STORE_DSN", "data/anishelf.db"),
		},
		Auth: AuthConfig{
			JWTSecret: getConfigValue("", "JWT_SECRET", ""),
			Mode:      getConfigValue(*authMode, "AUTH_MODE", "local"),
		},
		Catalog: CatalogConfig{
			URL: getConfigValue("", "ANILIST_URL", "https://graphql.anilist.co"),
			RPS: getFloat("CATALOG_RPS", 0.5),
		},
		Relay: RelayConfig{
			URL:          getConfigValue(*relayURL, "RELAY_URL", ""),
			AllowedHosts: getList("RELAY_ALLOWED_HOSTS", defaultRelayHosts),
			RPS:          getFloat("RELAY_RPS", 1),
		},
		Tracker: TrackerConfig{
			Interval: getDuration("RECONCILE_INTERVAL", 3*time.Minute),
			Delay:    getDuration("RECONCILE_DELAY", 10*time.Second),
			Debounce: getDuration("RECONCILE_DEBOUNCE", 100*time.Millisecond),
		},
		Reminders: ReminderConfig{
			Interval: getDuration("REMINDER_INTERVAL", 10*time.Second),
		},
		Mail: MailConfig{
			Provider: getConfigValue("", "MAIL_PROVIDER", "console"),
			SMTPHost: os.Getenv("SMTP_HOST"),
			SMTPPort: getConfigValue("", "SMTP_PORT", "587"),
			SMTPUser: os.Getenv("SMTP_USER"),
			SMTPPass: os.Getenv("SMTP_PASSWORD"),
			SMTPFrom: os.Getenv("SMTP_FROM"),
			ToastTo:  os.Getenv("TOAST_EMAIL_TO"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	switch c.Auth.Mode {
	case "local", "none":
	default:
		return fmt.Errorf("invalid auth mode %q", c.Auth.Mode)
	}
	if c.Tracker.Interval <= 0 || c.Reminders.Interval <= 0 {
		return errors.New("timer intervals must be positive")
	}
	if c.Mail.Provider == "smtp" && c.Mail.SMTPHost == "" {
		return errors.New("SMTP_HOST is required when MAIL_PROVIDER=smtp")
	}
	return nil
}

func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultValue
}

func getDuration(envKey string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(envKey)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func getFloat(envKey string, defaultValue float64) float64 {
	v := os.Getenv(envKey)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}

func getList(envKey string, defaultValue []string) []string {
	v := os.Getenv(envKey)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
