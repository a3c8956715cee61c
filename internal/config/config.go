package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// ErrConfigMissing is returned when configuration required by an external
// collaborator is absent. The server must not start in that case.
var ErrConfigMissing = errors.New("required configuration missing")

const (
	AuthModeRemote = "remote"
	AuthModeJWT    = "jwt"

	StoreREST     = "rest"
	StorePostgres = "postgres"
)

// DefaultProfilesTable is the table the embedded migrations create.
const DefaultProfilesTable = "profiles"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	SupabaseURL     string `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey string `mapstructure:"SUPABASE_ANON_KEY"`
	SupabaseKey     string `mapstructure:"SUPABASE_KEY"`

	AuthMode      string `mapstructure:"AUTH_MODE"`
	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	AuthJWKSURL   string `mapstructure:"AUTH_JWKS_URL"`
	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`

	ProfileStore  string `mapstructure:"PROFILE_STORE"`
	ProfilesTable string `mapstructure:"PROFILES_TABLE"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`

	IdPTimeout      time.Duration `mapstructure:"IDP_TIMEOUT"`
	StoreTimeout    time.Duration `mapstructure:"STORE_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	MetricsEnabled bool     `mapstructure:"METRICS_ENABLED"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_KEY",
	"AUTH_MODE", "AUTH_JWT_SECRET", "AUTH_JWKS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"PROFILE_STORE", "PROFILES_TABLE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"IDP_TIMEOUT", "STORE_TIMEOUT", "REQUEST_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"CORS_ORIGINS", "METRICS_ENABLED",
}

// Load reads configuration from the environment and an optional .env file,
// then validates it. A missing collaborator credential yields an error
// wrapping ErrConfigMissing.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", AuthModeRemote)
	v.SetDefault("AUTH_AUDIENCE", "authenticated")
	v.SetDefault("PROFILE_STORE", StoreREST)
	v.SetDefault("PROFILES_TABLE", DefaultProfilesTable)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("IDP_TIMEOUT", "5s")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("METRICS_ENABLED", true)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// CORS_ORIGINS arrives as a single comma separated string from the env.
	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	// SUPABASE_KEY is the legacy name for the anon key.
	if cfg.SupabaseAnonKey == "" {
		cfg.SupabaseAnonKey = cfg.SupabaseKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabaseURL reads only what the migrate commands need, so they run
// without identity provider credentials. The migrations always create
// DefaultProfilesTable; a different PROFILES_TABLE is refused rather than
// migrating a table the server would never read.
func DatabaseURL() (string, error) {
	v := newViper()
	if table := v.GetString("PROFILES_TABLE"); table != "" && table != DefaultProfilesTable {
		return "", fmt.Errorf("migrations only manage the %q table, PROFILES_TABLE is %q", DefaultProfilesTable, table)
	}
	dsn := v.GetString("DATABASE_URL")
	if dsn == "" {
		return "", fmt.Errorf("%w: DATABASE_URL is not set", ErrConfigMissing)
	}
	return dsn, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()
	return v
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesSupabase reports whether any configured collaborator talks to Supabase.
func (c *Config) UsesSupabase() bool {
	return c.AuthMode == AuthModeRemote || c.ProfileStore == StoreREST
}

// Validate fails closed: every collaborator selected by AUTH_MODE and
// PROFILE_STORE must have its credentials present.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeRemote, AuthModeJWT:
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeRemote, AuthModeJWT, c.AuthMode)
	}
	switch c.ProfileStore {
	case StoreREST, StorePostgres:
	default:
		return fmt.Errorf("PROFILE_STORE must be %q or %q, got %q", StoreREST, StorePostgres, c.ProfileStore)
	}

	if c.UsesSupabase() {
		if c.SupabaseURL == "" {
			return fmt.Errorf("%w: SUPABASE_URL is not set", ErrConfigMissing)
		}
		if c.SupabaseAnonKey == "" {
			return fmt.Errorf("%w: SUPABASE_ANON_KEY (or SUPABASE_KEY) is not set", ErrConfigMissing)
		}
	}
	if c.AuthMode == AuthModeJWT && c.AuthJWTSecret == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("%w: AUTH_JWT_SECRET or AUTH_JWKS_URL is required when AUTH_MODE is %q", ErrConfigMissing, AuthModeJWT)
	}
	if c.ProfileStore == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required when PROFILE_STORE is %q", ErrConfigMissing, StorePostgres)
	}

	if !identPattern.MatchString(c.ProfilesTable) {
		return fmt.Errorf("PROFILES_TABLE %q is not a valid identifier", c.ProfilesTable)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"IDP_TIMEOUT":      c.IdPTimeout,
		"STORE_TIMEOUT":    c.StoreTimeout,
		"REQUEST_TIMEOUT":  c.RequestTimeout,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	// /me calls the identity provider and then the store; both must fit in
	// the request deadline so their own errors reach the client.
	if c.IdPTimeout+c.StoreTimeout >= c.RequestTimeout {
		return fmt.Errorf("IDP_TIMEOUT (%s) + STORE_TIMEOUT (%s) must be less than REQUEST_TIMEOUT (%s)",
			c.IdPTimeout, c.StoreTimeout, c.RequestTimeout)
	}
	return nil
}

// Logger builds the process logger. Development gets a console writer.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return NewLogger(c.IsDev()).Level(level)
}

// NewLogger returns the base logger used before configuration is available.
func NewLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
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
