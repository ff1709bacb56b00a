package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil, envMap(nil), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "portal.db", cfg.DBPath)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 3, cfg.OTPAttempts)
	assert.Zero(t, cfg.ResendCooldown)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, 8, cfg.MinPasswordLen)
	assert.Zero(t, cfg.ExpiredRetention)
	assert.False(t, cfg.Production())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())

	assert.NoError(t, cfg.Validate())
}

func TestParse_EnvAndFlags(t *testing.T) {
	env := envMap(map[string]string{
		"PORTAL_ADDR":            ":9000",
		"PORTAL_ENV":             "Production",
		"PORTAL_OTP_ATTEMPTS":    "5",
		"PORTAL_RESEND_COOLDOWN": "30s",
		"PORTAL_ONEC_URL":        " https://erp.example.com/hs/ ",
		"PORTAL_LOG_LEVEL":       "debug",
	})

	cfg, err := Parse([]string{"-addr", ":9100", "-otp-attempts", "4"}, env, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr, "flag wins over env")
	assert.Equal(t, 4, cfg.OTPAttempts)
	assert.Equal(t, 30*time.Second, cfg.ResendCooldown)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "https://erp.example.com/hs/", cfg.Onec.BaseURL)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.True(t, cfg.Production())
}

func TestParse_InvalidEnv(t *testing.T) {
	_, err := Parse(nil, envMap(map[string]string{
		"PORTAL_OTP_ATTEMPTS": "three",
		"PORTAL_SESSION_TTL":  "15",
	}), io.Discard)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORTAL_OTP_ATTEMPTS")
	assert.Contains(t, err.Error(), "PORTAL_SESSION_TTL")
}

func TestParse_UnknownFlag(t *testing.T) {
	_, err := Parse([]string{"-unknown"}, envMap(nil), io.Discard)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse(nil, envMap(nil), io.Discard)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		modify  func(c *Config)
		name    string
		wantErr string
	}{
		{name: "unknown environment", modify: func(c *Config) { c.Environment = "staging" }, wantErr: "unknown environment"},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "loud" }, wantErr: "invalid log level"},
		{name: "otp longer than session", modify: func(c *Config) { c.OTPTTL = time.Hour }, wantErr: "otp ttl must not exceed"},
		{name: "zero attempts", modify: func(c *Config) { c.OTPAttempts = 0 }, wantErr: "otp attempts"},
		{name: "bcrypt cost", modify: func(c *Config) { c.BcryptCost = 2 }, wantErr: "bcrypt cost"},
		{name: "negative cooldown", modify: func(c *Config) { c.ResendCooldown = -time.Second }, wantErr: "resend cooldown"},
		{
			name: "onec and fixtures",
			modify: func(c *Config) {
				c.Onec.BaseURL = "https://erp"
				c.FixturePath = "patients.yaml"
			},
			wantErr: "mutually exclusive",
		},
		{name: "production without onec", modify: func(c *Config) { c.Environment = EnvProduction }, wantErr: "1C url is required"},
		{
			name: "production without twilio",
			modify: func(c *Config) {
				c.Environment = EnvProduction
				c.Onec.BaseURL = "https://erp"
			},
			wantErr: "twilio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("production complete", func(t *testing.T) {
		cfg := valid()
		cfg.Environment = EnvProduction
		cfg.Onec.BaseURL = "https://erp"
		cfg.Twilio = Twilio{AccountSID: "AC1", AuthToken: "token", From: "+15005550006"}
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORTAL_TEST_DOTENV_VALUE=from-file\n"), 0o600))

	t.Setenv("PORTAL_TEST_DOTENV_PRESET", "preset")
	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { _ = os.Unsetenv("PORTAL_TEST_DOTENV_VALUE") })

	assert.Equal(t, "from-file", os.Getenv("PORTAL_TEST_DOTENV_VALUE"))
	assert.Equal(t, "preset", os.Getenv("PORTAL_TEST_DOTENV_PRESET"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
