package config

import (
	"testing"
	"time"

	"github.com/cksportal/hubid/core/domain"
	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DBType != "sqlite" || cfg.DSN != "hubid.db" || cfg.Port != 8080 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.ForgotPasswordLimit != 5 || cfg.ForgotPasswordWindow != time.Minute {
		t.Errorf("unexpected rate limit defaults: %d per %v", cfg.ForgotPasswordLimit, cfg.ForgotPasswordWindow)
	}
	if p, _ := cfg.RolePolicy(); p != domain.RolePolicyLegacy {
		t.Errorf("expected legacy policy, got %q", p)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_ROLE_POLICY", "Strict")
	t.Setenv("FORGOT_PASSWORD_WINDOW", "30s")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DBType != "postgres" || cfg.Port != 9090 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.ForgotPasswordWindow != 30*time.Second {
		t.Errorf("expected 30s window, got %v", cfg.ForgotPasswordWindow)
	}
	if p, _ := cfg.RolePolicy(); p != domain.RolePolicyStrict {
		t.Errorf("expected strict policy, got %q", p)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"db type", map[string]string{"DB_TYPE": "oracle"}},
		{"policy", map[string]string{"ADMIN_ROLE_POLICY": "lenient"}},
		{"limit", map[string]string{"FORGOT_PASSWORD_LIMIT": "0"}},
		{"trusted proxies", map[string]string{"TRUSTED_PROXIES": "10.0.0.0/8, not-a-range"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := load(viper.New()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTrustedProxyRanges(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if ranges, _ := cfg.TrustedProxyRanges(); len(ranges) != 0 {
		t.Errorf("expected no trusted proxies by default, got %v", ranges)
	}

	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 2001:db8::/32,")
	cfg, err = load(viper.New())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	ranges, err := cfg.TrustedProxyRanges()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranges) != 2 || ranges[0].String() != "10.0.0.0/8" || ranges[1].String() != "2001:db8::/32" {
		t.Errorf("unexpected ranges: %v", ranges)
	}
}
