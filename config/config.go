package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type WS struct {
	PingEvery       time.Duration `yaml:"pingEvery"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	SendQueueSize   int           `yaml:"sendQueueSize"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
}

type Auth struct {
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
}

type Access struct {
	Timeout time.Duration `yaml:"timeout"` // дедлайн evaluator-а; таймаут = отказ
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // collab-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	WS       WS       `yaml:"ws"`
	Auth     Auth     `yaml:"auth"`
	Access   Access   `yaml:"access"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.PublicKeyPath == "" {
		return errors.New("auth.publicKeyPath is required")
	}
	if c.Auth.Issuer == "" {
		return errors.New("auth.issuer is required")
	}
	if c.Auth.Audience == "" {
		return errors.New("auth.audience is required")
	}
	// установка дефолтов, если значения не указаны
	if c.Auth.ClockSkew <= 0 {
		c.Auth.ClockSkew = 30 * time.Second
	}
	if c.Auth.CacheTTL <= 0 {
		c.Auth.CacheTTL = 30 * time.Second
	}
	if c.Access.Timeout <= 0 {
		c.Access.Timeout = 3 * time.Second
	}
	if c.WS.PingEvery <= 0 {
		c.WS.PingEvery = 15 * time.Second
	}
	if c.WS.WriteTimeout <= 0 {
		c.WS.WriteTimeout = 5 * time.Second
	}
	if c.WS.SendQueueSize <= 0 {
		c.WS.SendQueueSize = 64
	}
	if c.WS.MaxMessageBytes <= 0 {
		c.WS.MaxMessageBytes = 1 << 20
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "collab-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}
