// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) with viper.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"reparto-backend/internal/lifecycle"
	"reparto-backend/internal/models"
	"reparto-backend/internal/reporter"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port         string
	DatabaseURL  string
	StoreDriver  string
	JWTSecret    string
	RedisAddr    string
	LogLevel     string
	OTLPEndpoint string

	PanelCacheTTL time.Duration
	PollInterval  time.Duration
	Timezone      string

	ClaimableStates        []models.OrderState
	ClaimRequiresAvailable bool

	DirectionsURL     string
	DirectionsTimeout time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PANEL_CACHE_TTL", "10s")
	v.SetDefault("POLL_INTERVAL", "30s")
	v.SetDefault("TZ", "Local")
	v.SetDefault("CLAIMABLE_STATES", "confirmado,en_preparacion,listo")
	v.SetDefault("CLAIM_REQUIRES_AVAILABLE", true)
	v.SetDefault("DIRECTIONS_TIMEOUT", "10s")
	v.SetDefault("REPORT_INTERVAL", reporter.DefaultInterval.String())
	v.SetDefault("REPORT_GOOD_ACCURACY", reporter.DefaultGoodAccuracy)
	v.SetDefault("REPORT_DEGRADED_ACCURACY", reporter.DefaultDegradedAccuracy)
}

// Load reads .env (if present), an optional config file named by
// REPARTO_CONFIG, then the environment, which wins over both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path := v.GetString("REPARTO_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                   v.GetString("PORT"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		StoreDriver:            strings.ToLower(v.GetString("STORE_DRIVER")),
		JWTSecret:              v.GetString("APP_JWT_SECRET"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		OTLPEndpoint:           v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PanelCacheTTL:          v.GetDuration("PANEL_CACHE_TTL"),
		PollInterval:           v.GetDuration("POLL_INTERVAL"),
		Timezone:               v.GetString("TZ"),
		ClaimRequiresAvailable: v.GetBool("CLAIM_REQUIRES_AVAILABLE"),
		DirectionsURL:          v.GetString("DIRECTIONS_URL"),
		DirectionsTimeout:      v.GetDuration("DIRECTIONS_TIMEOUT"),
	}

	states, err := parseStates(v.GetString("CLAIMABLE_STATES"))
	if err != nil {
		return nil, err
	}
	cfg.ClaimableStates = states

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
	case DriverMemory:
	default:
		return nil, errors.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

func parseStates(raw string) ([]models.OrderState, error) {
	var out []models.OrderState
	for _, part := range strings.Split(raw, ",") {
		s := models.OrderState(strings.TrimSpace(part))
		if s == "" {
			continue
		}
		if !s.Valid() || s.Terminal() || s == models.StateOnTheWay {
			return nil, errors.Errorf("state %q cannot be claimable", s)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("CLAIMABLE_STATES is empty")
	}
	return out, nil
}

// Policy is the default policy with the configured claim settings.
func (c *Config) Policy() lifecycle.Policy {
	p := lifecycle.DefaultPolicy()
	p.ClaimableStates = c.ClaimableStates
	p.RequireAvailableCourier = c.ClaimRequiresAvailable
	return p
}

// Location resolves the timezone used for daily and monthly panel windows.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %s", c.Timezone)
	}
	return loc, nil
}

// RequireSecret fails when no JWT secret is configured.
func (c *Config) RequireSecret() error {
	if c.JWTSecret == "" {
		return errors.New("APP_JWT_SECRET is required")
	}
	return nil
}
