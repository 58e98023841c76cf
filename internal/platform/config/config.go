package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeDev     = "dev"
	ModeRelease = "release"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	Path         string `yaml:"path"` // sqlite のみ
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type AuthConfig struct {
	Secret          string        `yaml:"secret"`
	Issuer          string        `yaml:"issuer"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	DefaultPassword string        `yaml:"default_password"`
}

// AdminSeed describes the primary admin created on first start.
type AdminSeed struct {
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	NationalID string `yaml:"national_id"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LendingConfig struct {
	Timezone          string        `yaml:"timezone"`
	Locale            string        `yaml:"locale"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Addr        string         `yaml:"addr"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate Certs          `yaml:"certificate"`
	Auth        AuthConfig     `yaml:"auth"`
	Admin       AdminSeed      `yaml:"admin"`
	Redis       RedisConfig    `yaml:"redis"`
	Lending     LendingConfig  `yaml:"lending"`
}

// LoadConfig reads the YAML file at path, then applies .env and process
// environment overrides. Secrets are expected to come from the environment.
func LoadConfig(path string) (*Config, error) {
	// .env が無いのは正常系
	_ = godotenv.Load()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(buf)
}

// Parse decodes raw YAML and finishes the config the same way LoadConfig does.
func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Mode, "APP_MODE")
	setString(&c.Addr, "APP_ADDR")
	setString(&c.DB.Driver, "DB_DRIVER")
	setString(&c.DB.Host, "DB_HOST")
	setString(&c.DB.Username, "DB_USER")
	setString(&c.DB.Password, "DB_PASSWORD")
	setString(&c.DB.DBName, "DB_NAME")
	setString(&c.DB.Path, "DB_PATH")
	if v, ok := os.LookupEnv("DB_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.DB.Port = n
		}
	}
	setString(&c.Auth.Secret, "JWT_SECRET")
	setString(&c.Auth.DefaultPassword, "DEFAULT_PASSWORD")
	setString(&c.Admin.Email, "ADMIN_EMAIL")
	setString(&c.Admin.Password, "ADMIN_PASSWORD")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDev
	}
	if c.Addr == "" {
		c.Addr = ":8443"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = DriverMySQL
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.MaxOpenConns == 0 {
		c.DB.MaxOpenConns = 40
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "notebook-lending"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Auth.DefaultPassword == "" {
		c.Auth.DefaultPassword = "123456"
	}
	if c.Admin.Name == "" {
		c.Admin.Name = "Administrator"
	}
	if c.Lending.Timezone == "" {
		c.Lending.Timezone = "UTC"
	}
	if c.Lending.Locale == "" {
		c.Lending.Locale = "pt-BR"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeDev, ModeRelease, c.Mode))
	}
	switch c.DB.Driver {
	case DriverMySQL:
		if c.DB.Host == "" || c.DB.DBName == "" {
			errs = append(errs, errors.New("database.host and database.dbname are required for mysql"))
		}
	case DriverSQLite:
		if c.DB.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.DB.Driver))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret (JWT_SECRET) is required"))
	}
	if c.Auth.TokenTTL < 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if _, err := time.LoadLocation(c.Lending.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("lending.timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Location returns the time zone loan dates are entered in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Lending.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
