package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type MailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"` // postgres | memory
		DSN    string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		TokenSecret string `yaml:"token_secret"`
		CodeSecret  string `yaml:"hmac_verification_code_secret"`
	} `yaml:"auth"`
	Email MailConfig `yaml:"email"`
	Log   struct {
		Format string `yaml:"format"` // json | text
		Level  string `yaml:"level"`
	} `yaml:"log"`

	secrets Secrets
}

// Load reads the YAML file at path (a missing file is not an error), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("APP_ENV", &c.Env)
	str("DATABASE_URL", &c.Database.DSN)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("TOKEN_SECRET", &c.Auth.TokenSecret)
	str("HMAC_VERIFICATION_CODE_SECRET", &c.Auth.CodeSecret)
	str("SMTP_HOST", &c.Email.SMTPHost)
	str("SMTP_USER", &c.Email.SMTPUser)
	str("SMTP_PASSWORD", &c.Email.SMTPPassword)
	str("MAIL_FROM", &c.Email.FromEmail)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_LEVEL", &c.Log.Level)

	if err := num("PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := num("SMTP_PORT", &c.Email.SMTPPort); err != nil {
		return err
	}

	if v, ok := lookup("CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Server.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, o)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4000
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if c.Database.Driver == "" {
		if c.Database.DSN != "" {
			c.Database.Driver = "postgres"
		} else {
			c.Database.Driver = "memory"
		}
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the settings the process cannot start without and
// builds the immutable Secrets value.
func (c *Config) Validate() error {
	secrets, err := NewSecrets(c.Auth.TokenSecret, c.Auth.CodeSecret)
	if err != nil {
		return err
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	c.secrets = secrets
	return nil
}

// Secrets returns the signing material. Only valid after Validate succeeded.
func (c *Config) Secrets() Secrets {
	return c.secrets
}

func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}
