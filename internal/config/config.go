package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `koanf:"host"`
	Port      int             `koanf:"port"`
	Mode      string          `koanf:"mode"`
	Timeout   string          `koanf:"timeout"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
	// IdleTTL is how long an idle client's limiter is kept.
	IdleTTL string `koanf:"idle_ttl"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// AuthConfig holds token signing settings. The TTLs are defaults; the
// jwt_ttl and jwt_ttl_refresh settings rows override them at runtime.
type AuthConfig struct {
	JWTSecret       string   `koanf:"jwt_secret"`
	AccessTTL       string   `koanf:"access_ttl"`
	RefreshTTL      string   `koanf:"refresh_ttl"`
	PrivilegedRoles []string `koanf:"privileged_roles"`
}

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultIdleTTL    = 10 * time.Minute
	defaultTimeout    = 30 * time.Second
	defaultMetrics    = "/metrics"
)

// TimeoutDuration returns server.timeout, or thirty seconds when unset.
func (s ServerConfig) TimeoutDuration() time.Duration {
	return durationOr(s.Timeout, defaultTimeout)
}

// AccessTTLDuration returns auth.access_ttl, or one hour when unset.
func (a AuthConfig) AccessTTLDuration() time.Duration {
	return durationOr(a.AccessTTL, defaultAccessTTL)
}

// RefreshTTLDuration returns auth.refresh_ttl, or seven days when unset.
func (a AuthConfig) RefreshTTLDuration() time.Duration {
	return durationOr(a.RefreshTTL, defaultRefreshTTL)
}

// IdleTTLDuration returns server.rate_limit.idle_ttl, or ten minutes when unset.
func (r RateLimitConfig) IdleTTLDuration() time.Duration {
	return durationOr(r.IdleTTL, defaultIdleTTL)
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Load reads the YAML file at configPath, overlays APP__ environment
// variables and validates the result. A double underscore separates levels
// and a single one stays part of the key, so APP__AUTH__JWT_SECRET sets
// auth.jwt_secret and APP__DATABASE__POOL__MAX_IDLE_CONNS sets
// database.pool.max_idle_conns.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config file %s: %w", configPath, err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const envPrefix = "APP__"

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// oneOf trims value and checks it against allowed.
func oneOf(field, value string, allowed ...string) (string, error) {
	v := strings.TrimSpace(value)
	if slices.Contains(allowed, v) {
		return v, nil
	}
	quoted := make([]string, len(allowed))
	for i, a := range allowed {
		quoted[i] = strconv.Quote(a)
	}
	return "", fmt.Errorf("invalid %s %q: must be one of %s", field, value, strings.Join(quoted, ", "))
}

func validPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s %d: must be between 1 and 65535", field, port)
	}
	return nil
}

// Validate normalizes c in place and reports the first invalid value.
func (c *Config) Validate() error {
	for _, step := range []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateDurations,
		c.validateAuth,
		c.validateLog,
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	s := &c.Server

	mode, err := oneOf("server.mode", s.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	if err != nil {
		return err
	}
	s.Mode = mode

	if err := validPort("server.port", s.Port); err != nil {
		return err
	}
	if s.Host = strings.TrimSpace(s.Host); s.Host == "" {
		return errors.New("server.host is required")
	}

	if rl := s.RateLimit; rl.Enabled {
		if rl.RPS <= 0 {
			return fmt.Errorf("invalid server.rate_limit.rps %v: must be positive when rate limiting is enabled", rl.RPS)
		}
		if rl.Burst <= 0 {
			return fmt.Errorf("invalid server.rate_limit.burst %d: must be positive when rate limiting is enabled", rl.Burst)
		}
	}

	if s.Metrics.Enabled {
		path := strings.TrimSpace(s.Metrics.Path)
		if path == "" {
			path = defaultMetrics
		}
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("invalid server.metrics.path %q: must start with '/'", s.Metrics.Path)
		}
		s.Metrics.Path = path
	}
	return nil
}

var (
	sslModes       = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	secureSSLModes = []string{"require", "verify-ca", "verify-full"}
)

func (c *Config) validateDatabase() error {
	db := &c.Database

	driver, err := oneOf("database.driver", db.Driver, "sqlite", "postgres")
	if err != nil {
		return err
	}
	db.Driver = driver

	if driver == "sqlite" {
		if db.SQLite.Path = strings.TrimSpace(db.SQLite.Path); db.SQLite.Path == "" {
			return errors.New("database.sqlite.path is required when driver is sqlite")
		}
		return nil
	}

	pg := &db.Postgres
	pg.Host = strings.TrimSpace(pg.Host)
	pg.User = strings.TrimSpace(pg.User)
	pg.DBName = strings.TrimSpace(pg.DBName)
	for _, req := range []struct{ name, value string }{
		{"host", pg.Host},
		{"user", pg.User},
		{"dbname", pg.DBName},
	} {
		if req.value == "" {
			return fmt.Errorf("database.postgres.%s is required when driver is postgres", req.name)
		}
	}
	if err := validPort("database.postgres.port", pg.Port); err != nil {
		return err
	}

	allowed := sslModes
	field := "database.postgres.sslmode"
	if c.Server.Mode == gin.ReleaseMode {
		allowed = secureSSLModes
		field = "database.postgres.sslmode for server.mode \"release\""
	}
	mode, err := oneOf(field, pg.SSLMode, allowed...)
	if err != nil {
		return err
	}
	pg.SSLMode = mode
	return nil
}

// validateDurations trims every optional duration; blank means unset and
// falls back to its default, anything else must parse to a positive value.
func (c *Config) validateDurations() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"server.timeout", &c.Server.Timeout},
		{"server.cors.max_age", &c.Server.CORS.MaxAge},
		{"server.rate_limit.idle_ttl", &c.Server.RateLimit.IdleTTL},
		{"database.pool.conn_max_lifetime", &c.Database.Pool.ConnMaxLifetime},
		{"auth.access_ttl", &c.Auth.AccessTTL},
		{"auth.refresh_ttl", &c.Auth.RefreshTTL},
	}
	for _, f := range fields {
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			continue
		}
		d, err := time.ParseDuration(*f.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: must be a valid duration (e.g. \"1h\", \"3600s\"): %w", f.name, *f.value, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s %q: must be greater than 0", f.name, *f.value)
		}
	}
	return nil
}

// validateAuth accepts an empty secret outside release mode; token endpoints
// then answer with a configuration error.
func (c *Config) validateAuth() error {
	a := &c.Auth
	a.JWTSecret = strings.TrimSpace(a.JWTSecret)

	if c.Server.Mode == gin.ReleaseMode {
		switch {
		case a.JWTSecret == "":
			return errors.New("auth.jwt_secret is required in release mode")
		case len(a.JWTSecret) < minReleaseSecretLen:
			return fmt.Errorf("invalid auth.jwt_secret: must be at least %d characters in release mode", minReleaseSecretLen)
		case CountSecretClasses(a.JWTSecret) < 3:
			return errors.New("auth.jwt_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
		}
	}

	roles := make([]string, 0, len(a.PrivilegedRoles))
	for i, r := range a.PrivilegedRoles {
		role := strings.ToLower(strings.TrimSpace(r))
		if role == "" {
			return fmt.Errorf("auth.privileged_roles[%d] cannot be empty", i)
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	a.PrivilegedRoles = roles
	return nil
}

func (c *Config) validateLog() error {
	level, err := oneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "error")
	if err != nil {
		return err
	}
	format, err := oneOf("log.format", strings.ToLower(c.Log.Format), "text", "json")
	if err != nil {
		return err
	}
	c.Log.Level, c.Log.Format = level, format
	return nil
}

const minReleaseSecretLen = 32

// CountSecretClasses reports how many of lowercase, uppercase, digit and
// other runes appear in secret.
func CountSecretClasses(secret string) int {
	var seen [4]bool
	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			seen[0] = true
		case unicode.IsUpper(r):
			seen[1] = true
		case unicode.IsDigit(r):
			seen[2] = true
		default:
			seen[3] = true
		}
	}
	n := 0
	for _, ok := range seen {
		if ok {
			n++
		}
	}
	return n
}
