package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers accepted in store.driver.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Stats    Stats    `yaml:"stats"`
	Profiles Profiles `yaml:"profiles"`
}

// Stats tunes the counter subsystem.
type Stats struct {
	Shards          int    `yaml:"shards"`
	BatchSize       int    `yaml:"batch_size"`
	CacheTTL        string `yaml:"cache_ttl"`
	DispatchQueue   int    `yaml:"dispatch_queue"`
	DispatchWorkers int    `yaml:"dispatch_workers"`
}

// Profiles controls role assignment on first profile sync.
type Profiles struct {
	AdminEmails  []string `yaml:"admin_emails"`
	TesterEmails []string `yaml:"tester_emails"`
	TrialDays    int      `yaml:"trial_days"`
}

// Default returns the configuration used when no file sets a value.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Store.Driver = DriverMemory
	cfg.Mongo.Database = "quiz_progress"
	cfg.Stats = Stats{
		Shards:          10,
		BatchSize:       500,
		DispatchQueue:   256,
		DispatchWorkers: 4,
	}
	cfg.Profiles.TrialDays = 30
	return cfg
}

// Load reads YAML config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
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
