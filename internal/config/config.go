package config

// Package config handles configuration loading for finnews.
// It supports YAML config files with environment variable overrides.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FINNEWS_LLM_API_URL.
const EnvPrefix = "FINNEWS"

// Config represents the complete application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"      yaml:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Text     TextConfig     `mapstructure:"text"     yaml:"text"`
	Data     DataConfig     `mapstructure:"data"     yaml:"data"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// LLMConfig holds settings for the OpenAI-compatible generation backend.
type LLMConfig struct {
	APIURL                string            `mapstructure:"api_url"                 yaml:"api_url"                 validate:"required,url"`
	APIKey                string            `mapstructure:"api_key"                 yaml:"api_key"`
	Headers               map[string]string `mapstructure:"headers"                 yaml:"headers"`
	Model                 string            `mapstructure:"model"                   yaml:"model"                   validate:"required"`
	MaxTokens             int               `mapstructure:"max_tokens"              yaml:"max_tokens"              validate:"gt=0"`
	Temperature           float64           `mapstructure:"temperature"             yaml:"temperature"             validate:"gte=0,lte=2"`
	MaxConcurrentRequests int               `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests" validate:"gte=1"`
	RequestTimeout        time.Duration     `mapstructure:"request_timeout"         yaml:"request_timeout"         validate:"gt=0"`
	MaxRetries            int               `mapstructure:"max_retries"             yaml:"max_retries"             validate:"gte=0"`
	RetryBackoff          float64           `mapstructure:"retry_backoff"           yaml:"retry_backoff"           validate:"gte=1"`
	RetryDelay            time.Duration     `mapstructure:"retry_delay"             yaml:"retry_delay"             validate:"gte=0"`
	RequestsPerSecond     float64           `mapstructure:"requests_per_second"     yaml:"requests_per_second"     validate:"gte=0"`
}

// PipelineConfig holds batch processing settings.
type PipelineConfig struct {
	Workers             int     `mapstructure:"workers"              yaml:"workers"              validate:"gte=1"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" validate:"gte=0,lte=1"` // advisory only
}

// TextConfig holds truncation limits, in characters.
type TextConfig struct {
	MaxContentLength   int `mapstructure:"max_content_length"   yaml:"max_content_length"   validate:"gt=0"`
	MaxHeadlineLength  int `mapstructure:"max_headline_length"  yaml:"max_headline_length"  validate:"gt=0"`
	PreserveStartChars int `mapstructure:"preserve_start_chars" yaml:"preserve_start_chars" validate:"gte=0"`
	PreserveEndChars   int `mapstructure:"preserve_end_chars"   yaml:"preserve_end_chars"   validate:"gte=0"`
}

// DataConfig holds input and output locations.
type DataConfig struct {
	InputFile  string   `mapstructure:"input_file"  yaml:"input_file"`
	TickerFile string   `mapstructure:"ticker_file" yaml:"ticker_file"`
	OutputFile string   `mapstructure:"output_file" yaml:"output_file" validate:"required"`
	Feeds      []string `mapstructure:"feeds"       yaml:"feeds"       validate:"dive,url"`
}

// APIConfig holds results API server settings.
type APIConfig struct {
	Host         string        `mapstructure:"host"          yaml:"host"`
	Port         int           `mapstructure:"port"          yaml:"port"          validate:"gte=0,lte=65535"`
	CORSOrigins  []string      `mapstructure:"cors_origins"  yaml:"cors_origins"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string   `mapstructure:"level"     yaml:"level"  validate:"oneof=trace debug info warn error"`
	Format   string   `mapstructure:"format"    yaml:"format" validate:"oneof=text json"`
	Output   []string `mapstructure:"output"    yaml:"output" validate:"dive,oneof=console stdout file"`
	FilePath string   `mapstructure:"file_path" yaml:"file_path"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.finnews/config.yaml (home directory)
//  3. /etc/finnews/config.yaml (system)
//
// Environment variables override config file values.
// Format: FINNEWS_<SECTION>_<KEY>, e.g., FINNEWS_LLM_API_URL
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".finnews"))
	v.AddConfigPath("/etc/finnews")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultWorkers is max(1, min(3, NumCPU-1)).
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n > 3 {
		n = 3
	}
	if n < 1 {
		n = 1
	}
	return n
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults (LM Studio on localhost)
	v.SetDefault("llm.api_url", "http://localhost:1234/v1/chat/completions")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "local-model")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_concurrent_requests", 2)
	v.SetDefault("llm.request_timeout", 90*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_backoff", 2.0)
	v.SetDefault("llm.retry_delay", 3*time.Second)
	v.SetDefault("llm.requests_per_second", 0.0)

	// Pipeline defaults
	v.SetDefault("pipeline.workers", DefaultWorkers())
	v.SetDefault("pipeline.confidence_threshold", 0.7)

	// Text defaults
	v.SetDefault("text.max_content_length", 8000)
	v.SetDefault("text.max_headline_length", 200)
	v.SetDefault("text.preserve_start_chars", 4000)
	v.SetDefault("text.preserve_end_chars", 4000)

	// Data defaults
	v.SetDefault("data.input_file", filepath.Join("data", "news.json"))
	v.SetDefault("data.ticker_file", filepath.Join("data", "ticker_company.json"))
	v.SetDefault("data.output_file", filepath.Join("output", "analysis.json"))
	v.SetDefault("data.feeds", []string{})

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"*"})
	v.SetDefault("api.poll_interval", 2*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", []string{"console"})
	v.SetDefault("logging.file_path", "")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv(EnvPrefix + "_LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
