// Package config loads ecohabit server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Store kinds accepted by ECOHABIT_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the server configuration.
type Config struct {
	HTTPAddr        string        `env:"ECOHABIT_HTTP_ADDR" envDefault:":8080"`
	GRPCHealthAddr  string        `env:"ECOHABIT_GRPC_HEALTH_ADDR"`
	ShutdownTimeout time.Duration `env:"ECOHABIT_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Store       string `env:"ECOHABIT_STORE" envDefault:"memory"`
	SQLitePath  string `env:"ECOHABIT_SQLITE_PATH" envDefault:"ecohabit.db"`
	DatabaseURL string `env:"ECOHABIT_DATABASE_URL"`

	JWTSecret   string `env:"ECOHABIT_JWT_SECRET"`
	JWTIssuer   string `env:"ECOHABIT_JWT_ISSUER"`
	JWTAudience string `env:"ECOHABIT_JWT_AUDIENCE"`

	KafkaBrokers     []string `env:"ECOHABIT_KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string   `env:"ECOHABIT_KAFKA_TOPIC_PREFIX" envDefault:"ecohabit."`

	FactorsFile    string `env:"ECOHABIT_FACTORS_FILE"`
	ChallengesFile string `env:"ECOHABIT_CHALLENGES_FILE"`
	SeedChallenges bool   `env:"ECOHABIT_SEED_CHALLENGES" envDefault:"true"`

	RateLimitRPS   float64 `env:"ECOHABIT_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"ECOHABIT_RATE_LIMIT_BURST" envDefault:"20"`
	// TrustedProxies lists the addresses or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the socket peer is the client.
	TrustedProxies []string `env:"ECOHABIT_TRUSTED_PROXIES" envSeparator:","`

	SummaryCacheSize int `env:"ECOHABIT_SUMMARY_CACHE_SIZE" envDefault:"1024"`

	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	TraceSampleRatio float64 `env:"ECOHABIT_TRACE_SAMPLE_RATIO" envDefault:"1"`

	CORSAllowedOrigins   []string `env:"ECOHABIT_CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"ECOHABIT_CORS_ALLOW_CREDENTIALS"`
	CORSMaxAge           int      `env:"ECOHABIT_CORS_MAX_AGE" envDefault:"86400"`
}

// Load parses the environment into a Config and validates it.
func Load(logger zerolog.Logger) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.warn(logger)
	return cfg, nil
}

func (c *Config) normalize() {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.KafkaBrokers = trimAll(c.KafkaBrokers)
	c.CORSAllowedOrigins = trimAll(c.CORSAllowedOrigins)
	c.TrustedProxies = trimAll(c.TrustedProxies)
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("ECOHABIT_SQLITE_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("ECOHABIT_DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want memory, sqlite or postgres)", c.Store))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("ECOHABIT_JWT_SECRET is required"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q (want json or console)", c.LogFormat))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst == 0 {
		errs = append(errs, errors.New("ECOHABIT_RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	if c.SummaryCacheSize <= 0 {
		errs = append(errs, errors.New("ECOHABIT_SUMMARY_CACHE_SIZE must be positive"))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, errors.New("ECOHABIT_TRACE_SAMPLE_RATIO must be between 0 and 1"))
	}
	if _, err := ParsePrefixes(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("ECOHABIT_TRUSTED_PROXIES: %w", err))
	}
	if c.CORSMaxAge < 0 {
		errs = append(errs, errors.New("ECOHABIT_CORS_MAX_AGE must not be negative"))
	}
	if c.hasWildcardOrigin() && c.CORSAllowCredentials {
		errs = append(errs, errors.New("cannot enable credentials with wildcard origin (*); security risk"))
	}
	return errors.Join(errs...)
}

// TrustedProxyPrefixes returns TrustedProxies as prefixes. Call it on a
// validated Config.
func (c Config) TrustedProxyPrefixes() []netip.Prefix {
	prefixes, _ := ParsePrefixes(c.TrustedProxies)
	return prefixes
}

// ParsePrefixes parses CIDRs and bare addresses. A bare address becomes a
// single-host prefix.
func ParsePrefixes(values []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range values {
		if strings.Contains(v, "/") {
			prefix, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q", v)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q", v)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (c Config) hasWildcardOrigin() bool {
	for _, o := range c.CORSAllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (c Config) warn(logger zerolog.Logger) {
	if c.hasWildcardOrigin() {
		logger.Warn().Msg("CORS wildcard origin (*) is insecure; use specific origins in production")
	}
	if len(c.JWTSecret) < 32 {
		logger.Warn().Int("length", len(c.JWTSecret)).Msg("ECOHABIT_JWT_SECRET is shorter than 32 bytes")
	}
	if c.RateLimitRPS == 0 {
		logger.Warn().Msg("rate limiting disabled")
	}
	logger.Debug().
		Str("store", c.Store).
		Str("http_addr", c.HTTPAddr).
		Strs("kafka_brokers", c.KafkaBrokers).
		Strs("cors_allowed_origins", c.CORSAllowedOrigins).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("configuration loaded")
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return NewLogger(c.LogFormat, level)
}
