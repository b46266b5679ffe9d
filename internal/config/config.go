// Package config loads service settings from defaults, an optional YAML
// file and LEMMASERVE_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. LEMMASERVE_SERVER_PORT.
const EnvPrefix = "LEMMASERVE"

// Runtime kinds.
const (
	RuntimeNative = "native"
	RuntimeSpacy  = "spacy"
)

// Settings is the process configuration. It is built once at startup and
// not modified afterwards.
type Settings struct {
	Server  ServerConfig  `mapstructure:"server"`
	Models  ModelsConfig  `mapstructure:"models"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxConnections  int           `mapstructure:"max_connections"` // 0 = unlimited
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ModelsConfig locates the models configuration document and model artifacts.
type ModelsConfig struct {
	Dir                string   `mapstructure:"dir"`
	ConfigFile         string   `mapstructure:"config_file"`
	DefaultConfigFile  string   `mapstructure:"default_config_file"`
	CacheDir           string   `mapstructure:"cache_dir"`
	DisabledComponents []string `mapstructure:"disabled_components"`
	Watch              bool     `mapstructure:"watch"`
}

// LimitsConfig bounds annotation requests.
type LimitsConfig struct {
	MaxBatchSize        int `mapstructure:"max_batch_size"`
	MaxTextLength       int `mapstructure:"max_text_length"`
	PipelineConcurrency int `mapstructure:"pipeline_concurrency"` // 0 = unbounded
}

// RuntimeConfig selects and configures the pipeline runtime.
type RuntimeConfig struct {
	Kind          string `mapstructure:"kind"`
	SidecarURL    string `mapstructure:"sidecar_url"`
	SidecarScript string `mapstructure:"sidecar_script"` // started when set
	Python        string `mapstructure:"python"`
	HubEndpoint   string `mapstructure:"hub_endpoint"`
	HubToken      string `mapstructure:"hub_token"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads settings. configPath may be empty, in which case only
// defaults and the environment apply.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_connections", 0)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Models defaults
	v.SetDefault("models.dir", "./models")
	v.SetDefault("models.config_file", "config.json")
	v.SetDefault("models.default_config_file", "config.default.json")
	v.SetDefault("models.cache_dir", "")
	v.SetDefault("models.disabled_components", []string{"parser", "ner"})
	v.SetDefault("models.watch", true)

	// Limits defaults
	v.SetDefault("limits.max_batch_size", 1000)
	v.SetDefault("limits.max_text_length", 1_000_000)
	v.SetDefault("limits.pipeline_concurrency", 0)

	// Runtime defaults
	v.SetDefault("runtime.kind", RuntimeNative)
	v.SetDefault("runtime.sidecar_url", "http://localhost:8081")
	v.SetDefault("runtime.sidecar_script", "")
	v.SetDefault("runtime.python", "python3")
	v.SetDefault("runtime.hub_endpoint", "https://huggingface.co")
	v.SetDefault("runtime.hub_token", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

func validate(cfg *Settings) error {
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must be non-negative")
	}

	if cfg.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if cfg.Models.ConfigFile == "" {
		return fmt.Errorf("models.config_file is required")
	}

	if cfg.Limits.MaxBatchSize < 1 {
		return fmt.Errorf("limits.max_batch_size must be at least 1")
	}
	if cfg.Limits.MaxTextLength < 1 {
		return fmt.Errorf("limits.max_text_length must be at least 1")
	}
	if cfg.Limits.PipelineConcurrency < 0 {
		return fmt.Errorf("limits.pipeline_concurrency must be non-negative")
	}

	switch cfg.Runtime.Kind {
	case RuntimeNative, RuntimeSpacy:
	default:
		return fmt.Errorf("runtime.kind must be %q or %q, got %q", RuntimeNative, RuntimeSpacy, cfg.Runtime.Kind)
	}

	return nil
}

// CacheDir is where downloaded pipelines are stored. It defaults to
// <models.dir>/.cache.
func (s *Settings) CacheDir() string {
	if s.Models.CacheDir != "" {
		return s.Models.CacheDir
	}
	return filepath.Join(s.Models.Dir, ".cache")
}

// PackagesDir holds installed named pipelines.
func (s *Settings) PackagesDir() string {
	return filepath.Join(s.CacheDir(), "packages")
}

// ModelsConfigPath returns the models configuration to load: the primary
// file if present, else the default file, else "".
func (s *Settings) ModelsConfigPath() string {
	for _, name := range []string{s.Models.ConfigFile, s.Models.DefaultConfigFile} {
		if name == "" {
			continue
		}
		path := filepath.Join(s.Models.Dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Addr is the listen address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}
