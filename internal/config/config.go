// Package config loads run settings from defaults, an optional YAML file,
// a .env file, the process environment and command-line flags, in that
// order of increasing precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"arrivals_etl/internal/flights"
)

// APIKeyEnv is the environment variable holding the API credential.
const APIKeyEnv = "AVIATIONSTACK_API_KEY"

// Config holds every setting the pipeline, the stats command and the HTTP
// server need.
type Config struct {
	APIKey         string        `yaml:"-"`
	BaseURL        string        `yaml:"base_url"`
	ArrivalAirport string        `yaml:"arrival_airport"`
	Limit          int           `yaml:"limit"`
	Timeout        time.Duration `yaml:"timeout"`
	DBPath         string        `yaml:"db_path"`
	ChartPath      string        `yaml:"chart_path"`
	OnBadRecord    string        `yaml:"on_bad_record"`
	LogLevel       string        `yaml:"log_level"`

	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// PostgresConfig enables the Postgres mirror when DSN is set.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ClickHouseConfig enables the ClickHouse mirror when Addr is set.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// NATSConfig enables run-summary publishing when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Listen      string   `yaml:"listen"`
	AuthEnabled bool     `yaml:"auth"`
	APIKeys     []string `yaml:"api_keys"`
}

// Default returns the built-in settings: ten arrivals at DUB written to
// flight_data.db and flight_chart.png.
func Default() Config {
	return Config{
		BaseURL:        "http://api.aviationstack.com/v1/flights",
		ArrivalAirport: "DUB",
		Limit:          10,
		Timeout:        15 * time.Second,
		DBPath:         "flight_data.db",
		ChartPath:      "flight_chart.png",
		OnBadRecord:    "abort",
		LogLevel:       "info",
		ClickHouse: ClickHouseConfig{
			Database: "default",
			User:     "default",
		},
		NATS: NATSConfig{
			Subject: "arrivals.runs",
		},
		HTTP: HTTPConfig{
			Listen: ":8082",
		},
	}
}

// ConfigError is a fatal configuration problem.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// dotenv files and the environment lookup. Flags are applied afterwards by
// RegisterFlags. lookup is usually os.LookupEnv.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.mergeEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env into the process environment if the file exists.
// Variables that are already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	get := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	get(APIKeyEnv, &c.APIKey)
	get("AVIATIONSTACK_BASE_URL", &c.BaseURL)
	get("ARRIVAL_IATA", &c.ArrivalAirport)
	get("FLIGHT_DB", &c.DBPath)
	get("FLIGHT_CHART", &c.ChartPath)
	get("ON_BAD_RECORD", &c.OnBadRecord)
	get("LOG_LEVEL", &c.LogLevel)
	get("POSTGRES_DSN", &c.Postgres.DSN)
	get("CLICKHOUSE_ADDR", &c.ClickHouse.Addr)
	get("CLICKHOUSE_DATABASE", &c.ClickHouse.Database)
	get("CLICKHOUSE_USER", &c.ClickHouse.User)
	get("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	get("NATS_URL", &c.NATS.URL)
	get("NATS_SUBJECT", &c.NATS.Subject)
	get("LISTEN_ADDR", &c.HTTP.Listen)

	if v, ok := lookup("FLIGHT_LIMIT"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: "FLIGHT_LIMIT", Reason: fmt.Sprintf("%q is not an integer", v)}
		}
		c.Limit = n
	}
	if v, ok := lookup("HTTP_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: "HTTP_TIMEOUT", Reason: fmt.Sprintf("%q is not a duration", v)}
		}
		c.Timeout = d
	}
	if v, ok := lookup("API_KEYS"); ok && v != "" {
		c.HTTP.APIKeys = splitList(v)
	}
	return nil
}

// RegisterFlags binds the command-line flags for fs to c. Values already in
// c become the flag defaults, so flags only override what was set explicitly.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "Flights endpoint URL")
	fs.StringVar(&c.ArrivalAirport, "airport", c.ArrivalAirport, "Arrival airport IATA code")
	fs.IntVar(&c.Limit, "limit", c.Limit, "Maximum number of flights to fetch (1-100)")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "HTTP request timeout")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database file")
	fs.StringVar(&c.ChartPath, "chart", c.ChartPath, "Chart output file (.png or .pdf)")
	fs.StringVar(&c.OnBadRecord, "on-bad-record", c.OnBadRecord, "What to do with incomplete records: abort or skip")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.Postgres.DSN, "pg-dsn", c.Postgres.DSN, "PostgreSQL DSN for the mirror table (empty disables)")
	fs.StringVar(&c.ClickHouse.Addr, "ch-addr", c.ClickHouse.Addr, "ClickHouse host:port for the mirror table (empty disables)")
	fs.StringVar(&c.NATS.URL, "nats-url", c.NATS.URL, "NATS server URL for run summaries (empty disables)")
	fs.StringVar(&c.NATS.Subject, "nats-subject", c.NATS.Subject, "NATS subject for run summaries")
}

// RegisterServeFlags binds the flags used only by the serve command.
func (c *Config) RegisterServeFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database file")
	fs.StringVar(&c.ChartPath, "chart", c.ChartPath, "Chart file to serve")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.HTTP.Listen, "listen", c.HTTP.Listen, "HTTP listen address")
	fs.BoolVar(&c.HTTP.AuthEnabled, "auth", c.HTTP.AuthEnabled, "Enable API key authentication")
	fs.Func("api-keys", "Comma-separated list of valid API keys (when auth enabled)", func(s string) error {
		c.HTTP.APIKeys = splitList(s)
		return nil
	})
}

// Validate checks the settings a pipeline run depends on. The returned
// error is always a *ConfigError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigError{Field: APIKeyEnv, Reason: "not set"}
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return &ConfigError{Field: "base_url", Reason: "empty"}
	}

	c.ArrivalAirport = strings.ToUpper(strings.TrimSpace(c.ArrivalAirport))
	if !isIATA(c.ArrivalAirport) {
		return &ConfigError{Field: "arrival_airport", Reason: fmt.Sprintf("%q is not a 3-letter IATA code", c.ArrivalAirport)}
	}
	if c.Limit < 1 || c.Limit > 100 {
		return &ConfigError{Field: "limit", Reason: fmt.Sprintf("%d out of range 1-100", c.Limit)}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return &ConfigError{Field: "db_path", Reason: "empty"}
	}
	switch strings.ToLower(filepath.Ext(c.ChartPath)) {
	case ".png", ".pdf":
	default:
		return &ConfigError{Field: "chart_path", Reason: fmt.Sprintf("%q must end in .png or .pdf", c.ChartPath)}
	}
	if _, err := flights.ParsePolicy(c.OnBadRecord); err != nil {
		return &ConfigError{Field: "on_bad_record", Reason: err.Error()}
	}
	return nil
}

// Policy returns the parsed bad-record policy. Call after Validate.
func (c *Config) Policy() flights.Policy {
	p, _ := flights.ParsePolicy(c.OnBadRecord)
	return p
}

func isIATA(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
