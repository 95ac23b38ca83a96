package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shopsync/internal/models"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Sync       SyncConfig       `yaml:"sync"`
	Scope      ScopeConfig      `yaml:"scope"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
	Tenants    []TenantConfig   `yaml:"tenants"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type SyncConfig struct {
	MaxRetries            int     `yaml:"max_retries"`
	DrainIntervalSeconds  int     `yaml:"drain_interval_seconds"`
	DrainBatchSize        int     `yaml:"drain_batch_size"`
	GatewayTimeoutSeconds int     `yaml:"gateway_timeout_seconds"`
	BackoffBaseSeconds    int     `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds     int     `yaml:"backoff_max_seconds"`
	BackoffFactor         float64 `yaml:"backoff_factor"`
}

type ScopeConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type AdvisorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// TenantConfig seeds per-tenant writers for the static scope source.
type TenantConfig struct {
	ID      string        `yaml:"id"`
	Writers []WriterGrant `yaml:"writers"`
}

type WriterGrant struct {
	UserID      string   `yaml:"user_id"`
	Permissions []string `yaml:"permissions"`
}

// Load reads .env, expands ${VAR} references inside the YAML file, and
// applies defaults and validation.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway base_url is required")
	}
	if c.Sync.MaxRetries < 0 {
		return errors.New("sync max_retries must not be negative")
	}

	seen := make(map[string]bool, len(c.Tenants))
	for _, t := range c.Tenants {
		if t.ID == "" {
			return errors.New("tenant id must not be empty")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tenant id: %s", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "shopsync"
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = models.DefaultMaxRetries
	}
	if c.Sync.DrainIntervalSeconds == 0 {
		c.Sync.DrainIntervalSeconds = models.DefaultDrainInterval
	}
	if c.Sync.DrainBatchSize == 0 {
		c.Sync.DrainBatchSize = models.DefaultDrainBatchSize
	}
	if c.Sync.GatewayTimeoutSeconds == 0 {
		c.Sync.GatewayTimeoutSeconds = models.DefaultGatewayTimeout
	}
	if c.Sync.BackoffBaseSeconds == 0 {
		c.Sync.BackoffBaseSeconds = 2
	}
	if c.Sync.BackoffMaxSeconds == 0 {
		c.Sync.BackoffMaxSeconds = 60
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = 2
	}
	if c.Scope.TTLSeconds == 0 {
		c.Scope.TTLSeconds = models.DefaultScopeTTL
	}
	if c.Scope.MaxEntries == 0 {
		c.Scope.MaxEntries = models.DefaultScopeMaxEntries
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Advisor.TimeoutSeconds == 0 {
		c.Advisor.TimeoutSeconds = 10
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
