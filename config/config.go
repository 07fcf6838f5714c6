/*
Package config loads server settings.

SOURCES (later wins):
  1. Defaults below
  2. .env file (github.com/joho/godotenv), if present
  3. Process environment
  4. Command-line flags (-port, -db)

KEYS:
  HTTP_PORT             HTTP server port (default: 8080)
  DB_PATH               SQLite database path (default: shop.db)
  REFUND_WINDOW         Refund window as a Go duration (default: 3m)
  TOKEN_SECRET          HS256 signing secret for bearer tokens
  TOKEN_TTL             Bearer token lifetime (default: 24h)
  DECLINE_REFUNDS_AT    Daily decline-all time, HH:MM (default: 18:00)
  SCHEDULER_ENABLED     Run the daily decline job (default: true)
  SCHEDULER_TIMEZONE    IANA zone for DECLINE_REFUNDS_AT (default: UTC)
  RESTOCK_QUANTITY      Stock a depleted good is refilled to (default: 12)
  SQS_QUEUE_URL         Forward events to this queue when set
  CORS_ALLOWED_ORIGINS  Comma separated (default: *)
  LOG_LEVEL             debug, info, warn, error (default: info)
  EVENT_QUEUE_SIZE      Event bus capacity (default: 256)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the server configuration.
type Config struct {
	HTTPPort           int
	DBPath             string
	RefundWindow       time.Duration
	TokenSecret        string
	TokenTTL           time.Duration
	DeclineRefundsAt   ClockTime
	SchedulerEnabled   bool
	SchedulerLocation  *time.Location
	RestockQuantity    int64
	SQSQueueURL        string
	CORSAllowedOrigins []string
	LogLevel           slog.Level
	EventQueueSize     int
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPPort:           8080,
		DBPath:             "shop.db",
		RefundWindow:       3 * time.Minute,
		TokenTTL:           24 * time.Hour,
		DeclineRefundsAt:   ClockTime{Hour: 18},
		SchedulerEnabled:   true,
		SchedulerLocation:  time.UTC,
		RestockQuantity:    12,
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           slog.LevelInfo,
		EventQueueSize:     256,
	}
}

// LookupFunc reads one key; os.LookupEnv is one.
type LookupFunc func(key string) (string, bool)

// Load reads envFile (missing is fine), then the process environment, then args.
func Load(envFile string, args []string) (Config, error) {
	fileEnv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		if m != nil {
			fileEnv = m
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	return Parse(lookup, args)
}

// Parse builds a Config from lookup and command-line args.
func Parse(lookup LookupFunc, args []string) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.intVar("HTTP_PORT", &cfg.HTTPPort)
	p.stringVar("DB_PATH", &cfg.DBPath)
	p.durationVar("REFUND_WINDOW", &cfg.RefundWindow)
	p.stringVar("TOKEN_SECRET", &cfg.TokenSecret)
	p.durationVar("TOKEN_TTL", &cfg.TokenTTL)
	p.boolVar("SCHEDULER_ENABLED", &cfg.SchedulerEnabled)
	p.stringVar("SQS_QUEUE_URL", &cfg.SQSQueueURL)
	p.intVar("EVENT_QUEUE_SIZE", &cfg.EventQueueSize)

	if v, ok := p.get("RESTOCK_QUANTITY"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		p.fail("RESTOCK_QUANTITY", err)
		cfg.RestockQuantity = n
	}
	if v, ok := p.get("DECLINE_REFUNDS_AT"); ok {
		at, err := ParseClockTime(v)
		p.fail("DECLINE_REFUNDS_AT", err)
		cfg.DeclineRefundsAt = at
	}
	if v, ok := p.get("SCHEDULER_TIMEZONE"); ok {
		loc, err := time.LoadLocation(v)
		p.fail("SCHEDULER_TIMEZONE", err)
		if loc != nil {
			cfg.SchedulerLocation = loc
		}
	}
	if v, ok := p.get("CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORSAllowedOrigins = splitList(v)
	}
	if v, ok := p.get("LOG_LEVEL"); ok {
		p.fail("LOG_LEVEL", cfg.LogLevel.UnmarshalText([]byte(v)))
	}

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}

	flags := flag.NewFlagSet("shop", flag.ContinueOnError)
	flags.IntVar(&cfg.HTTPPort, "port", cfg.HTTPPort, "HTTP server port")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks ranges.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d out of range", c.HTTPPort))
	}
	if c.RefundWindow <= 0 {
		errs = append(errs, errors.New("REFUND_WINDOW must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.RestockQuantity <= 0 {
		errs = append(errs, errors.New("RESTOCK_QUANTITY must be positive"))
	}
	return errors.Join(errs...)
}

type parser struct {
	lookup LookupFunc
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *parser) fail(key string, err error) {
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
}

func (p *parser) stringVar(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) intVar(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		p.fail(key, err)
		*dst = n
	}
}

func (p *parser) boolVar(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		p.fail(key, err)
		*dst = b
	}
}

func (p *parser) durationVar(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := time.ParseDuration(v)
		p.fail(key, err)
		*dst = d
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
