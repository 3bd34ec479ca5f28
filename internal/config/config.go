package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Catalog struct {
		TTL           string `yaml:"ttl"`
		QuestionLimit int    `yaml:"questionLimit"`
	} `yaml:"catalog"`
	Engine struct {
		SecondsPerSubject int    `yaml:"secondsPerSubject"`
		Tick              string `yaml:"tick"`
		Mode              string `yaml:"mode"`
		Retention         string `yaml:"retention"`
		ConsentTimeout    string `yaml:"consentTimeout"`
	} `yaml:"engine"`
	Integrity struct {
		Threshold int            `yaml:"threshold"`
		Weights   map[string]int `yaml:"weights"`
	} `yaml:"integrity"`
}

// Default returns the settings used when a key is absent.
func Default() Config {
	cfg := Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Catalog.TTL = "10m"
	cfg.Catalog.QuestionLimit = 40
	cfg.Engine.SecondsPerSubject = 60
	cfg.Engine.Tick = "1s"
	cfg.Engine.Mode = "exam"
	cfg.Engine.Retention = "10m"
	cfg.Engine.ConsentTimeout = "15m"
	cfg.Integrity.Threshold = 10
	cfg.Mongo.Database = "proctoring"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file yields
// the defaults, which select in-memory backends.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// NewLogger builds the root logger from the log section.
func NewLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
