// Package config loads the service configuration from the environment.
//
// Values are read with Viper; every setting has a development default so
// the service starts against a local SQLite file with no configuration.
//
// # Environment Variables
//
//   - DB_TYPE: sqlite, postgres or mysql. Default: sqlite
//   - DSN: database connection string. Default: hubid.db
//   - SKIP_AUTO_MIGRATE: skip schema migration at startup. Default: false
//   - LOG_LEVEL: debug, info, warn or error. Default: info
//   - PORT: HTTP port. Default: 8080
//   - REDIS_URL: rate limit store; empty keeps limits in memory
//   - ISSUER_URL, ISSUER_SECRET_KEY: identity issuer API
//   - SESSION_JWT_KEY: PEM public key for session tokens (RS256)
//   - SESSION_JWT_SECRET: shared secret for session tokens (HS256)
//   - SESSION_JWKS_URL: issuer key set; takes precedence over the above
//   - SESSION_ISSUER: expected iss claim for JWKS verified tokens
//   - ADMIN_ROLE_POLICY: legacy or strict. Default: legacy
//   - FORGOT_PASSWORD_LIMIT, FORGOT_PASSWORD_WINDOW: Default: 5 per 1m
//   - TRUSTED_PROXIES: comma-separated CIDR ranges whose X-Forwarded-For
//     is honoured. Default: none, the peer address is the client IP
//   - TELEMETRY_ENABLED, OTLP_ENDPOINT
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cksportal/hubid/core/domain"
	"github.com/spf13/viper"
)

type Config struct {
	DBType          string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql
	DSN             string `mapstructure:"DSN"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	Port            int    `mapstructure:"PORT"`

	RedisURL string `mapstructure:"REDIS_URL"`

	IssuerURL       string `mapstructure:"ISSUER_URL"`
	IssuerSecretKey string `mapstructure:"ISSUER_SECRET_KEY"`

	SessionJWTKey    string `mapstructure:"SESSION_JWT_KEY"`
	SessionJWTSecret string `mapstructure:"SESSION_JWT_SECRET"`
	SessionJWKSURL   string `mapstructure:"SESSION_JWKS_URL"`
	SessionIssuer    string `mapstructure:"SESSION_ISSUER"`

	AdminRolePolicy string `mapstructure:"ADMIN_ROLE_POLICY"`

	ForgotPasswordLimit  int           `mapstructure:"FORGOT_PASSWORD_LIMIT"`
	ForgotPasswordWindow time.Duration `mapstructure:"FORGOT_PASSWORD_WINDOW"`

	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	TelemetryEnabled bool   `mapstructure:"TELEMETRY_ENABLED"`
	OTLPEndpoint     string `mapstructure:"OTLP_ENDPOINT"`
}

func LoadConfig() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("DSN", "hubid.db")
	v.SetDefault("SKIP_AUTO_MIGRATE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 8080)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("ISSUER_URL", "")
	v.SetDefault("ISSUER_SECRET_KEY", "")
	v.SetDefault("SESSION_JWT_KEY", "")
	v.SetDefault("SESSION_JWT_SECRET", "")
	v.SetDefault("SESSION_JWKS_URL", "")
	v.SetDefault("SESSION_ISSUER", "")
	v.SetDefault("ADMIN_ROLE_POLICY", string(domain.RolePolicyLegacy))
	v.SetDefault("FORGOT_PASSWORD_LIMIT", 5)
	v.SetDefault("FORGOT_PASSWORD_WINDOW", time.Minute)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("TELEMETRY_ENABLED", true)
	v.SetDefault("OTLP_ENDPOINT", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported DB_TYPE %q", c.DBType)
	}
	if _, err := c.RolePolicy(); err != nil {
		return err
	}
	if c.ForgotPasswordLimit <= 0 || c.ForgotPasswordWindow <= 0 {
		return fmt.Errorf("config: forgot password limit and window must be positive")
	}
	if _, err := c.TrustedProxyRanges(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyRanges parses TRUSTED_PROXIES.
func (c *Config) TrustedProxyRanges() ([]*net.IPNet, error) {
	var ranges []*net.IPNet
	for _, raw := range strings.Split(c.TrustedProxies, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, ipnet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TRUSTED_PROXIES entry %q", raw)
		}
		ranges = append(ranges, ipnet)
	}
	return ranges, nil
}

// RolePolicy parses ADMIN_ROLE_POLICY.
func (c *Config) RolePolicy() (domain.RolePolicy, error) {
	switch p := domain.RolePolicy(strings.ToLower(strings.TrimSpace(c.AdminRolePolicy))); p {
	case "", domain.RolePolicyLegacy:
		return domain.RolePolicyLegacy, nil
	case domain.RolePolicyStrict:
		return p, nil
	default:
		return "", fmt.Errorf("config: unsupported ADMIN_ROLE_POLICY %q", c.AdminRolePolicy)
	}
}
