package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Moralis  MoralisConfig  `yaml:"moralis"`
	Inspect  InspectConfig  `yaml:"inspect"`
	Twitter  TwitterConfig  `yaml:"twitter"`
	Sync     SyncConfig     `yaml:"sync"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	// AllowOrigins lists browser origins allowed by CORS; empty allows any.
	AllowOrigins []string `yaml:"allow_origins"`
	// RateLimitRPS and RateLimitBurst bound API calls per caller.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MoralisConfig is the chain index used to resolve token owners.
type MoralisConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Chain   string `yaml:"chain"`
}

// InspectConfig is the NFT inspection service that lists collection members.
type InspectConfig struct {
	BaseURL string `yaml:"base_url"`
}

type TwitterConfig struct {
	BaseURL     string  `yaml:"base_url"`
	BearerToken string  `yaml:"bearer_token"`
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
	MaxPages    int     `yaml:"max_pages"` // follower/following pages per member, 0 = unbounded
}

type SyncConfig struct {
	Schedule         string `yaml:"schedule"` // cron spec for the refresh scheduler
	RosterLimit      int    `yaml:"roster_limit"`
	LockTTLMinutes   int    `yaml:"lock_ttl_minutes"`
	LogRetentionDays int    `yaml:"log_retention_days"`
	Concurrency      int    `yaml:"concurrency"` // asynq worker concurrency
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		// Unmarshal over defaults so partial files keep sane values
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			Mode:           "debug",
			RateLimitRPS:   5,
			RateLimitBurst: 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "freemasons.db",
		},
		JWT: JWTConfig{
			Secret:     "freemasons-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Moralis: MoralisConfig{
			BaseURL: "https://deep-index.moralis.io/api/v2",
			Chain:   "eth",
		},
		Inspect: InspectConfig{
			BaseURL: "http://www.nftinspect.xyz",
		},
		Twitter: TwitterConfig{
			BaseURL:  "https://api.twitter.com/2",
			RPS:      1,
			Burst:    5,
			MaxPages: 0,
		},
		Sync: SyncConfig{
			Schedule:         "@every 30m",
			RosterLimit:      100,
			LockTTLMinutes:   30,
			LogRetentionDays: 30,
			Concurrency:      4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if apiKey := os.Getenv("MORALIS_API_KEY"); apiKey != "" {
		c.Moralis.APIKey = apiKey
	}
	if baseURL := os.Getenv("INSPECT_BASE_URL"); baseURL != "" {
		c.Inspect.BaseURL = baseURL
	}
	if token := os.Getenv("TWITTER_BEARER_TOKEN"); token != "" {
		c.Twitter.BearerToken = token
	}
	if schedule := os.Getenv("SYNC_SCHEDULE"); schedule != "" {
		c.Sync.Schedule = schedule
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
