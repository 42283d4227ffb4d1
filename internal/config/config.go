package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/pillbox/internal/inventory"
)

// Config holds process configuration read from PILLBOX_* environment variables.
type Config struct {
	Port              string
	DBPath            string
	BaseURL           string
	LogLevel          string
	LogFormat         string
	Location          *time.Location
	LowStockThreshold int
	SendTimeout       time.Duration
	TickWorkers       int
	PostmarkToken     string
	FromEmail         string
}

// Load reads configuration from the environment, applying defaults for unset values.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:          stringOr(getenv("PILLBOX_PORT"), "8080"),
		DBPath:        stringOr(getenv("PILLBOX_DB_PATH"), "pillbox.db"),
		LogLevel:      stringOr(getenv("PILLBOX_LOG_LEVEL"), "info"),
		LogFormat:     stringOr(getenv("PILLBOX_LOG_FORMAT"), "text"),
		PostmarkToken: getenv("PILLBOX_POSTMARK_TOKEN"),
		FromEmail:     getenv("PILLBOX_FROM_EMAIL"),
	}
	cfg.BaseURL = stringOr(getenv("PILLBOX_BASE_URL"), "http://localhost:"+cfg.Port)

	tz := stringOr(getenv("PILLBOX_TIMEZONE"), "Asia/Kolkata")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("PILLBOX_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.LowStockThreshold, err = intOr(getenv("PILLBOX_LOW_STOCK_THRESHOLD"), inventory.DefaultLowStockThreshold); err != nil {
		return Config{}, fmt.Errorf("PILLBOX_LOW_STOCK_THRESHOLD: %w", err)
	}
	if cfg.TickWorkers, err = intOr(getenv("PILLBOX_TICK_WORKERS"), 4); err != nil {
		return Config{}, fmt.Errorf("PILLBOX_TICK_WORKERS: %w", err)
	}

	cfg.SendTimeout = 10 * time.Second
	if v := strings.TrimSpace(getenv("PILLBOX_SEND_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("PILLBOX_SEND_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("PILLBOX_SEND_TIMEOUT: must be positive, got %s", d)
		}
		cfg.SendTimeout = d
	}

	return cfg, nil
}

func stringOr(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func intOr(v string, def int) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
