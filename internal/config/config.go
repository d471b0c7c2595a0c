package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Ranking store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"` // expiry of cached quiz documents
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Ranking struct {
		Backend    string `yaml:"backend"`
		FeedBuffer int    `yaml:"feed_buffer"`
	} `yaml:"ranking"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RankingBackend returns the configured ranking backend, defaulting to Postgres,
// then Redis, then memory depending on what is configured.
func (c Config) RankingBackend() string {
	switch c.Ranking.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
		return c.Ranking.Backend
	}
	if c.Postgres.URL != "" {
		return BackendPostgres
	}
	if c.Redis.Addr != "" {
		return BackendRedis
	}
	return BackendMemory
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
