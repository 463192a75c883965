package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. VIZLOOM_MODEL.
const EnvPrefix = "VIZLOOM"

// Global configuration structure.
type Global struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	// Optional JSON file merged into the built-in model catalog.
	ModelsCatalogFile string `mapstructure:"models_catalog_file" yaml:"models_catalog_file"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	OllamaHost    string `mapstructure:"ollama_host" yaml:"ollama_host"`
	BedrockRegion string `mapstructure:"bedrock_region" yaml:"bedrock_region"`
	RedisURL      string `mapstructure:"redis_url" yaml:"redis_url"`

	Insight Insight `mapstructure:"insight" yaml:"insight"`
	Profile Profile `mapstructure:"profile" yaml:"profile"`
	Metrics Metrics `mapstructure:"metrics" yaml:"metrics"`

	PreviewRows      int      `mapstructure:"preview_rows" yaml:"preview_rows"`
	MaxFileSizeMB    int      `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
	AllowedFileTypes []string `mapstructure:"allowed_file_types" yaml:"allowed_file_types"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Insight tunes model-backed recommendations.
type Insight struct {
	TimeoutSec  int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	CacheTTLSec int `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
}

// Profile holds column classification thresholds.
type Profile struct {
	DatetimeThreshold    float64 `mapstructure:"datetime_threshold" yaml:"datetime_threshold"`
	NumericThreshold     float64 `mapstructure:"numeric_threshold" yaml:"numeric_threshold"`
	CategoricalMaxRatio  float64 `mapstructure:"categorical_max_ratio" yaml:"categorical_max_ratio"`
	CategoricalMaxUnique int     `mapstructure:"categorical_max_unique" yaml:"categorical_max_unique"`
	SampleValues         int     `mapstructure:"sample_values" yaml:"sample_values"`
}

type Metrics struct {
	DatadogEnabled bool     `mapstructure:"datadog_enabled" yaml:"datadog_enabled"`
	Tags           []string `mapstructure:"tags" yaml:"tags"`
}

// InsightTimeout returns the model call bound.
func (c *Global) InsightTimeout() time.Duration {
	return time.Duration(c.Insight.TimeoutSec) * time.Second
}

// CacheTTL returns how long validated model output is reused. Zero disables caching.
func (c *Global) CacheTTL() time.Duration {
	return time.Duration(c.Insight.CacheTTLSec) * time.Second
}

func defaults(v *viper.Viper) {
	v.SetDefault("provider", "none")
	v.SetDefault("api_key", "")
	v.SetDefault("model", "")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("models_catalog_file", "")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("bedrock_region", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("insight.timeout_sec", 30)
	v.SetDefault("insight.cache_ttl_sec", 3600)
	v.SetDefault("profile.datetime_threshold", 0.9)
	v.SetDefault("profile.numeric_threshold", 0.9)
	v.SetDefault("profile.categorical_max_ratio", 0.5)
	v.SetDefault("profile.categorical_max_unique", 50)
	v.SetDefault("profile.sample_values", 5)
	v.SetDefault("preview_rows", 10)
	v.SetDefault("max_file_size_mb", 50)
	v.SetDefault("allowed_file_types", []string{"csv", "tsv", "xlsx", "json"})
	v.SetDefault("metrics.datadog_enabled", false)
	v.SetDefault("metrics.tags", []string{})
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")
}

// Dir returns ~/.vizloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".vizloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.vizloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A .env file in the working
// directory is read first and never overrides variables already set.
func Load(cfgFile string) (*Global, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(cfgFile != "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	return &c, nil
}

// Keys lists the settable keys in display order.
var Keys = []string{
	"provider", "api_key", "model", "max_tokens", "temperature", "models_catalog_file",
	"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
	"ollama_host", "bedrock_region", "redis_url",
	"insight.timeout_sec", "insight.cache_ttl_sec",
	"profile.datetime_threshold", "profile.numeric_threshold",
	"profile.categorical_max_ratio", "profile.categorical_max_unique", "profile.sample_values",
	"preview_rows", "max_file_size_mb", "allowed_file_types",
	"metrics.datadog_enabled", "metrics.tags", "log_level", "log_format",
}

// UnknownKeyError is returned by Set for keys not in Keys.
type UnknownKeyError struct{ Key string }

func (e *UnknownKeyError) Error() string { return "unknown key: " + e.Key }

// Set parses val and assigns it to key.
func (c *Global) Set(key, val string) error {
	switch key {
	case "provider":
		p := strings.ToLower(strings.TrimSpace(val))
		switch p {
		case "none", "openrouter", "ollama", "local", "bedrock":
			c.Provider = p
		default:
			return fmt.Errorf("invalid provider: %s (use none, openrouter, ollama, local or bedrock)", val)
		}
	case "api_key":
		c.APIKey = val
	case "model":
		c.Model = val
	case "models_catalog_file":
		c.ModelsCatalogFile = val
	case "ollama_host":
		c.OllamaHost = val
	case "bedrock_region":
		c.BedrockRegion = val
	case "redis_url":
		c.RedisURL = val
	case "log_level":
		switch val {
		case "debug", "info", "warn", "error":
			c.LogLevel = val
		default:
			return fmt.Errorf("invalid log_level: %s", val)
		}
	case "log_format":
		if val != "console" && val != "json" {
			return fmt.Errorf("invalid log_format: %s (use console or json)", val)
		}
		c.LogFormat = val
	case "allowed_file_types":
		c.AllowedFileTypes = splitList(val)
	case "metrics.tags":
		c.Metrics.Tags = splitList(val)
	case "metrics.datadog_enabled":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %v", key, val)
		}
		c.Metrics.DatadogEnabled = b
	case "temperature":
		return setFloat(&c.Temperature, key, val, 0, 2)
	case "profile.datetime_threshold":
		return setFloat(&c.Profile.DatetimeThreshold, key, val, 0, 1)
	case "profile.numeric_threshold":
		return setFloat(&c.Profile.NumericThreshold, key, val, 0, 1)
	case "profile.categorical_max_ratio":
		return setFloat(&c.Profile.CategoricalMaxRatio, key, val, 0, 1)
	default:
		if p := c.intField(key); p != nil {
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for %s: %v", key, val)
			}
			*p = i
			return nil
		}
		return &UnknownKeyError{Key: key}
	}
	return nil
}

func (c *Global) intField(key string) *int {
	switch key {
	case "max_tokens":
		return &c.MaxTokens
	case "http_timeout_sec":
		return &c.HTTPTimeoutSec
	case "retry_max_attempts":
		return &c.RetryMaxAttempts
	case "retry_base_delay_ms":
		return &c.RetryBaseDelayMs
	case "retry_max_delay_ms":
		return &c.RetryMaxDelayMs
	case "insight.timeout_sec":
		return &c.Insight.TimeoutSec
	case "insight.cache_ttl_sec":
		return &c.Insight.CacheTTLSec
	case "profile.categorical_max_unique":
		return &c.Profile.CategoricalMaxUnique
	case "profile.sample_values":
		return &c.Profile.SampleValues
	case "preview_rows":
		return &c.PreviewRows
	case "max_file_size_mb":
		return &c.MaxFileSizeMB
	}
	return nil
}

func setFloat(dst *float64, key, val string, lo, hi float64) error {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < lo || f > hi {
		return fmt.Errorf("invalid float for %s: %v (range %g-%g)", key, val, lo, hi)
	}
	*dst = f
	return nil
}

func splitList(val string) []string {
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
