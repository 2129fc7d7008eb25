// Package config loads application configuration from environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name read by Load.
const EnvPrefix = "SCIPGUARD_"

// MinPollInterval is the shortest poll interval Sanitize allows.
const MinPollInterval = 500 * time.Millisecond

// SessionBackend selects where the persisted session lives.
type SessionBackend string

const (
	BackendSQLite SessionBackend = "sqlite"
	BackendRedis  SessionBackend = "redis"
	BackendFile   SessionBackend = "file"
)

// RedisConfig configures the redis session backend.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"       envDefault:"0"`
	Prefix   string `env:"PREFIX"   envDefault:"scipguard:session:"`
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// ServerURL is the analysis server's base URL.
	ServerURL string `env:"SERVER_URL" envDefault:"http://localhost:5000"`

	// PollInterval is the pause between log fetches.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`

	// HTTPTimeout bounds every request to the server.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	SessionBackend SessionBackend `env:"SESSION_BACKEND" envDefault:"sqlite"`
	DBPath         string         `env:"DB_PATH"         envDefault:"scipguard.db"`
	Redis          RedisConfig    `envPrefix:"REDIS_"`

	// SessionFile is the file backend's path. Empty selects the per-user default.
	SessionFile string `env:"SESSION_FILE"`

	// SecretKey is an optional base64-encoded 32-byte key. When set, the
	// sqlite backend encrypts session values at rest.
	SecretKey string `env:"SECRET_KEY"`

	// ListenAddr is where the dashboard serves.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:"127.0.0.1:8090"`
}

// Load reads configuration from environment variables prefixed with
// SCIPGUARD_ and returns a sanitized, validated Config. A .env file in the
// working directory is loaded first if present; real environment variables
// take precedence over it. Overrides run after parsing and before
// validation.
func Load(overrides ...func(*Config)) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse config: %w", namedParseError(err))
	}

	for _, override := range overrides {
		override(&cfg)
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// namedParseError rewrites env parse errors, which name the Go field, to name
// the environment variable the user set.
func namedParseError(err error) error {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return err
	}

	keys := envKeys(reflect.TypeFor[Config](), EnvPrefix)
	named := make([]error, 0, len(agg.Errors))
	for _, e := range agg.Errors {
		var pe env.ParseError
		if errors.As(e, &pe) {
			if key, ok := keys[pe.Name]; ok {
				named = append(named, fmt.Errorf("%s is invalid: %w", key, pe.Err))
				continue
			}
		}
		named = append(named, e)
	}
	return errors.Join(named...)
}

// envKeys maps field names to prefixed variable names, following envPrefix
// into nested structs. Field names are unique across Config.
func envKeys(t reflect.Type, prefix string) map[string]string {
	keys := make(map[string]string)
	for i := range t.NumField() {
		f := t.Field(i)
		if p, ok := f.Tag.Lookup("envPrefix"); ok && f.Type.Kind() == reflect.Struct {
			maps.Copy(keys, envKeys(f.Type, prefix+p))
			continue
		}
		if name, _, _ := strings.Cut(f.Tag.Get("env"), ","); name != "" {
			keys[f.Name] = prefix + name
		}
	}
	return keys
}

// Sanitize applies guardrails to configuration values.
func (c *Config) Sanitize() {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	c.SessionBackend = SessionBackend(strings.ToLower(strings.TrimSpace(string(c.SessionBackend))))
	if c.SessionBackend == "" {
		c.SessionBackend = BackendSQLite
	}
	if c.PollInterval < MinPollInterval {
		c.PollInterval = MinPollInterval
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	c.SecretKey = strings.TrimSpace(c.SecretKey)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%sSERVER_URL must be an http(s) URL, got %q", EnvPrefix, c.ServerURL)
	}

	switch c.SessionBackend {
	case BackendSQLite, BackendRedis, BackendFile:
	default:
		return fmt.Errorf("%sSESSION_BACKEND must be one of sqlite, redis, file; got %q", EnvPrefix, c.SessionBackend)
	}

	if c.SessionBackend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("%sREDIS_ADDR is required for the redis backend", EnvPrefix)
	}

	if _, err := c.EncryptionKey(); err != nil {
		return err
	}
	return nil
}

// EncryptionKey decodes SecretKey. It returns nil when no key is configured.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.SecretKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%sSECRET_KEY is not valid base64: %w", EnvPrefix, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%sSECRET_KEY must decode to 32 bytes, got %d", EnvPrefix, len(key))
	}
	return key, nil
}
