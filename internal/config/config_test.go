package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Database:   DatabaseConfig{Driver: DriverSQLite, URL: "file:ssd.db"},
		ServerPort: "8080",
		JWTSecret:  "secret",
		Timezone:   "UTC",
		Email:      EmailConfig{SMTPPort: 587},
		Report:     ReportConfig{RateLimit: 10},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "empty url", mutate: func(c *Config) { c.Database.URL = "  " }, wantErr: "database.url cannot be empty"},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "jwt_secret must be set"},
		{name: "bad zone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "timezone"},
		{name: "bad port", mutate: func(c *Config) { c.Email.SMTPPort = 0 }, wantErr: "email.smtp_port"},
		{name: "zero rate", mutate: func(c *Config) { c.Report.RateLimit = 0 }, wantErr: "report.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SSD_DATABASE_DRIVER", DriverSQLite)
	t.Setenv("SSD_DATABASE_URL", "file:test.db")
	t.Setenv("SSD_JWT_SECRET", "env-secret")
	t.Setenv("SSD_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "file:test.db", cfg.Database.URL)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, "UTC", cfg.Timezone)
}
