package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type Config struct {
	Database      DatabaseConfig  `mapstructure:"database"`
	ServerPort    string          `mapstructure:"server_port"`
	JWTSecret     string          `mapstructure:"jwt_secret"`
	SecureCookies bool            `mapstructure:"secure_cookies"`
	LogLevel      string          `mapstructure:"log_level"`
	Timezone      string          `mapstructure:"timezone"`
	Email         EmailConfig     `mapstructure:"email"`
	Admin         AdminConfig     `mapstructure:"admin"`
	Dashboard     DashboardConfig `mapstructure:"dashboard"`
	Report        ReportConfig    `mapstructure:"report"`
	CORS          CORSConfig      `mapstructure:"cors"`
}

type EmailConfig struct {
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AdminConfig seeds a staff account on startup when both fields are set.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type DashboardConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ReportConfig struct {
	RateLimit int `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config.yaml from the working directory or ./config when present,
// then applies SSD_* environment overrides on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("email.from", "")
	v.SetDefault("email.smtp_host", "localhost")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("dashboard.cache_ttl", 30*time.Second)
	v.SetDefault("report.rate_limit", 10)
	v.SetDefault("cors.allowed_origins", []string{})
}

// Validate checks the fields the server cannot start without.
func (c *Config) Validate() error {
	validators := []func() error{
		func() error {
			if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
				return fmt.Errorf("database.driver must be %q or %q", DriverPostgres, DriverSQLite)
			}
			return nil
		},
		func() error {
			if strings.TrimSpace(c.Database.URL) == "" {
				return fmt.Errorf("database.url cannot be empty")
			}
			return nil
		},
		func() error {
			if c.JWTSecret == "" {
				return fmt.Errorf("jwt_secret must be set")
			}
			return nil
		},
		func() error {
			if _, err := time.LoadLocation(c.Timezone); err != nil {
				return fmt.Errorf("timezone %q is not a valid IANA zone", c.Timezone)
			}
			return nil
		},
		func() error {
			if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
				return fmt.Errorf("email.smtp_port must be between 1 and 65535")
			}
			return nil
		},
		func() error {
			if c.Report.RateLimit <= 0 {
				return fmt.Errorf("report.rate_limit must be positive")
			}
			return nil
		},
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}
