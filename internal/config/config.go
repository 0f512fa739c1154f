package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

const devSigningSecret = "dev-secret-change-me"

// Config holds runtime settings for the auth core and its tools.
type Config struct {
	Env      string
	Database DatabaseConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	DSN string
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AuthConfig struct {
	PasswordMinLength int
	BcryptCost        int
	MaxLoginAttempts  int
	LockoutDuration   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the given .env files (".env" when none are given), then builds
// the configuration from the process environment. Missing files are ignored
// and variables already set in the environment win.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds the configuration from lookup.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	env := envReader{lookup: lookup}
	cfg := &Config{
		Env: strings.ToLower(env.str("ENVIRONMENT", EnvDevelopment)),
		Database: DatabaseConfig{
			DSN: env.str("KUBEOPT_PG_DSN", ""),
		},
		JWT: JWTConfig{
			Secret:     env.str("JWT_SECRET_KEY", ""),
			Issuer:     env.str("JWT_ISSUER", "kubeopt"),
			AccessTTL:  env.seconds("JWT_ACCESS_TOKEN_EXPIRES", 15*time.Minute),
			RefreshTTL: env.seconds("JWT_REFRESH_TOKEN_EXPIRES", 7*24*time.Hour),
		},
		Auth: AuthConfig{
			PasswordMinLength: env.int("AUTH_PASSWORD_MIN_LENGTH", 8),
			BcryptCost:        env.int("AUTH_BCRYPT_COST", 10),
			MaxLoginAttempts:  env.int("AUTH_MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:   env.seconds("AUTH_LOCKOUT_DURATION", 15*time.Minute),
		},
		Log: LogConfig{
			Level:  env.str("LOG_LEVEL", "info"),
			Format: env.str("LOG_FORMAT", "json"),
		},
	}
	if err := env.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether Env names the production environment.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// AllowsDevSecret reports whether Env may sign tokens with the built-in
// development secret. Only development and test do.
func (c *Config) AllowsDevSecret() bool {
	return c.Env == EnvDevelopment || c.Env == EnvTest
}

// Validate checks settings that would make the auth core unsafe or unusable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.Secret) == "" && !c.AllowsDevSecret() {
		errs = append(errs, fmt.Errorf("JWT_SECRET_KEY is required in %q", c.Env))
	}
	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TOKEN_EXPIRES must be positive"))
	}
	if c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("JWT_REFRESH_TOKEN_EXPIRES must be positive"))
	}
	if c.JWT.RefreshTTL > 0 && c.JWT.AccessTTL > c.JWT.RefreshTTL {
		errs = append(errs, errors.New("JWT_ACCESS_TOKEN_EXPIRES must not exceed JWT_REFRESH_TOKEN_EXPIRES"))
	}
	if c.Auth.PasswordMinLength < 1 {
		errs = append(errs, errors.New("AUTH_PASSWORD_MIN_LENGTH must be at least 1"))
	}
	if c.Auth.MaxLoginAttempts < 0 || c.Auth.LockoutDuration < 0 {
		errs = append(errs, errors.New("AUTH_MAX_LOGIN_ATTEMPTS and AUTH_LOCKOUT_DURATION must not be negative"))
	}
	return errors.Join(errs...)
}

// SigningSecret returns the JWT secret, falling back to a fixed value in
// development and test only.
func (c *Config) SigningSecret() string {
	if s := strings.TrimSpace(c.JWT.Secret); s != "" {
		return s
	}
	if !c.AllowsDevSecret() {
		return ""
	}
	return devSigningSecret
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return def
	}
	return n
}

// seconds accepts a bare number of seconds or a Go duration such as "15m".
func (r *envReader) seconds(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return d
}

func (r *envReader) err() error { return errors.Join(r.errs...) }
