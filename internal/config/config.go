package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/region-console/pkg/processing"
	"github.com/menta2k/region-console/pkg/router"
)

// EnvPrefix prefixes environment overrides, e.g. CONSOLE_INFERENCE_ENDPOINTS_MOE.
const EnvPrefix = "CONSOLE"

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Status    StatusConfig    `mapstructure:"status" yaml:"status"`
	Crop      CropConfig      `mapstructure:"crop" yaml:"crop"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Catalog   CatalogConfig   `mapstructure:"catalog" yaml:"catalog"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// ServerConfig holds the HTTP console API settings
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	Mode         string        `mapstructure:"mode" yaml:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// MaxBodyMB bounds uploaded screenshots and proxied requests.
	MaxBodyMB int64 `mapstructure:"max_body_mb" yaml:"max_body_mb"`
}

// InferenceConfig selects and configures the backend
type InferenceConfig struct {
	// Backend is "router" for the HTTP backend or "ollama".
	Backend   string           `mapstructure:"backend" yaml:"backend"`
	Endpoints router.Endpoints `mapstructure:"endpoints" yaml:"endpoints"`
	Ollama    OllamaConfig     `mapstructure:"ollama" yaml:"ollama"`
}

// OllamaConfig holds the local backend settings
type OllamaConfig struct {
	URL          string         `mapstructure:"url" yaml:"url"`
	Model        string         `mapstructure:"model" yaml:"model"`
	ExpertModels map[int]string `mapstructure:"expert_models" yaml:"expert_models,omitempty"`
}

// StatusConfig holds backend liveness probe timing
type StatusConfig struct {
	Interval         time.Duration `mapstructure:"interval" yaml:"interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	WarmupTimeout    time.Duration `mapstructure:"warmup_timeout" yaml:"warmup_timeout"`
	WarmLatency      time.Duration `mapstructure:"warm_latency" yaml:"warm_latency"`
	ColdStartLatency time.Duration `mapstructure:"cold_start_latency" yaml:"cold_start_latency"`
}

// CropConfig holds region payload encoding
type CropConfig struct {
	Format   string `mapstructure:"format" yaml:"format"`
	Quality  int    `mapstructure:"quality" yaml:"quality"`
	Lossless bool   `mapstructure:"lossless" yaml:"lossless"`
	MaxDim   int    `mapstructure:"max_dim" yaml:"max_dim"`
}

// CacheConfig holds the result cache settings
type CacheConfig struct {
	// Backend is "none", "memory" or "redis".
	Backend  string        `mapstructure:"backend" yaml:"backend"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// CatalogConfig points at a catalog file; empty uses the built-in catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
			MaxBodyMB:    32,
		},
		Inference: InferenceConfig{
			Backend: "router",
			Ollama: OllamaConfig{
				URL: "http://localhost:11434",
			},
		},
		Status: StatusConfig{
			Interval:         30 * time.Second,
			ProbeTimeout:     5 * time.Second,
			WarmupTimeout:    120 * time.Second,
			WarmLatency:      500 * time.Millisecond,
			ColdStartLatency: 5 * time.Second,
		},
		Crop: CropConfig{
			Format:  "png",
			Quality: 90,
		},
		Cache: CacheConfig{
			Backend: "none",
			Addr:    "localhost:6379",
			TTL:     24 * time.Hour,
		},
		Log: LogConfig{
			Mode:  "debug",
			Level: "info",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_body_mb", d.Server.MaxBodyMB)

	v.SetDefault("inference.backend", d.Inference.Backend)
	v.SetDefault("inference.endpoints.moe", "")
	v.SetDefault("inference.endpoints.ocr", "")
	v.SetDefault("inference.endpoints.sam", "")
	v.SetDefault("inference.ollama.url", d.Inference.Ollama.URL)
	v.SetDefault("inference.ollama.model", "")

	v.SetDefault("status.interval", d.Status.Interval)
	v.SetDefault("status.probe_timeout", d.Status.ProbeTimeout)
	v.SetDefault("status.warmup_timeout", d.Status.WarmupTimeout)
	v.SetDefault("status.warm_latency", d.Status.WarmLatency)
	v.SetDefault("status.cold_start_latency", d.Status.ColdStartLatency)

	v.SetDefault("crop.format", d.Crop.Format)
	v.SetDefault("crop.quality", d.Crop.Quality)
	v.SetDefault("crop.lossless", d.Crop.Lossless)
	v.SetDefault("crop.max_dim", d.Crop.MaxDim)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.addr", d.Cache.Addr)
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("catalog.path", "")

	v.SetDefault("log.mode", d.Log.Mode)
	v.SetDefault("log.level", d.Log.Level)
}

// Load reads defaults, then the YAML file at filename when it is not
// empty, then CONSOLE_* environment overrides.
func Load(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	return Load(filename)
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}

	if c.Server.MaxBodyMB < 1 {
		return fmt.Errorf("server.max_body_mb must be positive")
	}

	switch c.Inference.Backend {
	case "router":
	case "ollama":
		if c.Inference.Ollama.URL == "" || c.Inference.Ollama.Model == "" {
			return fmt.Errorf("inference.ollama.url and inference.ollama.model are required for the ollama backend")
		}
	default:
		return fmt.Errorf("inference.backend must be router or ollama, got %q", c.Inference.Backend)
	}

	if c.Status.ProbeTimeout <= 0 || c.Status.WarmupTimeout <= 0 {
		return fmt.Errorf("status timeouts must be positive")
	}

	if c.Status.Interval <= 0 {
		return fmt.Errorf("status.interval must be positive")
	}

	if _, err := processing.ParseFormat(c.Crop.Format); err != nil {
		return fmt.Errorf("crop.format: %w", err)
	}

	if c.Crop.Quality < 1 || c.Crop.Quality > 100 {
		return fmt.Errorf("crop.quality must be between 1 and 100")
	}

	if c.Crop.MaxDim < 0 {
		return fmt.Errorf("crop.max_dim cannot be negative")
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("cache.backend must be none, memory or redis, got %q", c.Cache.Backend)
	}

	return nil
}

// RouterConfig returns the HTTP backend client settings.
func (c *Config) RouterConfig() router.Config {
	return router.Config{
		Endpoints:        c.Inference.Endpoints,
		ProbeTimeout:     c.Status.ProbeTimeout,
		WarmupTimeout:    c.Status.WarmupTimeout,
		WarmLatency:      c.Status.WarmLatency,
		ColdStartLatency: c.Status.ColdStartLatency,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "region-console", "config.yaml")
}
