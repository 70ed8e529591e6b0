package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Session store backends.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	API struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`
	Session struct {
		Store             string `yaml:"store"`
		File              string `yaml:"file"`
		Namespace         string `yaml:"namespace"`
		InactivityTimeout string `yaml:"inactivity_timeout"`
	} `yaml:"session"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.API.BaseURL = "http://localhost:8080"
	cfg.API.Timeout = "10s"
	cfg.Session.Store = StoreFile
	cfg.Session.File = "~/.quiz-client/session.json"
	cfg.Session.Namespace = "default"
	cfg.Session.InactivityTimeout = "15m"
	cfg.Redis.Prefix = "quiz-client:"
	cfg.Catalog.TTL = "1m"
	cfg.Server.Port = "5173"
	return cfg
}

// Load reads YAML config from path over the defaults, then applies
// environment overrides (a .env file in the working directory is honoured).
// A missing file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QUIZ_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("QUIZ_SESSION_STORE"); v != "" {
		cfg.Session.Store = v
	}
	if v := os.Getenv("QUIZ_SESSION_FILE"); v != "" {
		cfg.Session.File = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
}

// SessionFile returns the session file path with a leading ~ expanded.
func (c Config) SessionFile() string {
	return ExpandHome(c.Session.File)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
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
