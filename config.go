package authgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the process-wide configuration, sourced from the environment
// at startup and immutable afterwards.
type Config struct {
	JWT     JWTConfig
	Cookies CookieConfig
	Session SessionConfig
	Redis   RedisConfig
	HTTP    HTTPConfig
	Login   LoginThrottleConfig
}

// JWTConfig carries the signing key and the issuer/audience strings the
// default schemes validate against. Access and refresh tokens share the
// issuer but carry distinct audiences so a refresh token can never pass an
// access-scoped scheme.
type JWTConfig struct {
	SigningKey      string        `env:"JWT_SIGNING_KEY,required"`
	Issuer          string        `env:"JWT_ISSUER,required"`
	Audience        string        `env:"JWT_AUDIENCE,required"`
	RefreshAudience string        `env:"JWT_RT_AUDIENCE,required"`
	AccessTTL       time.Duration `env:"TOKEN_TTL,default=15m"`
	RefreshTTL      time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`
}

// CookieConfig names the credential cookies.
type CookieConfig struct {
	AccessName  string `env:"USER_TOKEN_COOKIE,default=ag_token"`
	RefreshName string `env:"USER_REFRESH_TOKEN_COOKIE,default=ag_refresh_token"`
}

// SessionConfig controls the device-session store.
type SessionConfig struct {
	KeyPrefix string        `env:"SESSION_KEY_PREFIX,default=ag"`
	TTL       time.Duration `env:"SESSION_TTL,default=168h"`
}

// RedisConfig locates the session/throttle backend.
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
}

// HTTPConfig controls the listener and cookie hardening.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR,default=:8080"`
	// Production switches secure cookies on and log output to JSON.
	Production bool `env:"PRODUCTION,default=false"`
}

// LoginThrottleConfig bounds failed login attempts per identifier and IP
// within a fixed window.
type LoginThrottleConfig struct {
	Enabled     bool          `env:"LOGIN_THROTTLE_ENABLED,default=true"`
	MaxAttempts int           `env:"LOGIN_THROTTLE_MAX_ATTEMPTS,default=10"`
	Window      time.Duration `env:"LOGIN_THROTTLE_WINDOW,default=15m"`
}

// FromEnv decodes configuration from environment variables and validates
// it. Missing required variables and out-of-range values are reported
// together as a startup error.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at request time.
func (c Config) Validate() error {
	if c.JWT.SigningKey == "" {
		return errors.New("config: JWT signing key is required")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("config: access TTL must be shorter than refresh TTL")
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session TTL must be positive")
	}
	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" {
		return errors.New("config: cookie names are required")
	}
	if c.Cookies.AccessName == c.Cookies.RefreshName {
		return errors.New("config: access and refresh cookies must differ")
	}
	if c.Login.Enabled && c.Login.MaxAttempts <= 0 {
		return errors.New("config: login throttle max attempts must be positive")
	}
	return nil
}
