// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes automatic environment overrides, e.g. AIDEMO_SERVER_PORT
const EnvPrefix = "AIDEMO"

// Provider key variables
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvGroqKey       = "GROQ_API_KEY"
	EnvClaudeKey     = "CLAUDE_API_KEY"
	EnvCartesiaKey   = "CARTESIA_API_KEY"
	EnvElevenLabsKey = "elevenlabs_api_key"
)

var (
	// ErrNoConfigFile is returned by WatchConfig when there is nothing to watch
	ErrNoConfigFile = errors.New("no configuration file to watch")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	OpenAI     OpenAIConfig    `mapstructure:"openai"`
	Groq       GroqConfig      `mapstructure:"groq"`
	Claude     ClaudeConfig    `mapstructure:"claude"`
	Cartesia   SpeechConfig    `mapstructure:"cartesia"`
	ElevenLabs SpeechConfig    `mapstructure:"elevenlabs"`
	Flowchart  FlowchartConfig `mapstructure:"flowchart"`
	Retry      RetryConfig     `mapstructure:"retry"`
	Renderer   RendererConfig  `mapstructure:"renderer"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	CORS       CORSConfig      `mapstructure:"cors"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"apikey"`
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	VisionModel string        `mapstructure:"vision_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// GroqConfig contains Groq API configuration. Groq speaks the OpenAI protocol.
type GroqConfig struct {
	APIKey   string        `mapstructure:"apikey"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ClaudeConfig contains Anthropic API configuration
type ClaudeConfig struct {
	APIKey   string        `mapstructure:"apikey"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SpeechConfig is shared by the text-to-speech providers
type SpeechConfig struct {
	APIKey   string        `mapstructure:"apikey"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	VoiceID  string        `mapstructure:"voice_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// FlowchartConfig contains flowchart pipeline settings
type FlowchartConfig struct {
	MaxInputLength int     `mapstructure:"max_input_length"`
	MaxCodeLength  int     `mapstructure:"max_code_length"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	Orientation    string  `mapstructure:"orientation"`
}

// RetryConfig controls retries around provider calls
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

// RendererConfig contains mermaid.ink rendering settings
type RendererConfig struct {
	MermaidInkURL   string        `mapstructure:"mermaid_ink_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheExpiry     time.Duration `mapstructure:"cache_expiry"`
	EnableCaching   bool          `mapstructure:"enable_caching"`
	MaxCacheEntries int64         `mapstructure:"max_cache_entries"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// CORSConfig lists the browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxAge         time.Duration `mapstructure:"max_age"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	DotEnvFiles      []string
	ValidateRequired bool
}

// DefaultDotEnvFiles are read before the environment is consulted.
// Earlier files win, and variables already in the environment are never overridden.
var DefaultDotEnvFiles = []string{".env.local", ".env"}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		DotEnvFiles:      DefaultDotEnvFiles,
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	if err := LoadDotEnv(opts.DotEnvFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)

	if err := v.ReadInConfig(); err != nil {
		// The file is optional; everything can come from the environment
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// LoadDotEnv loads each existing file into the process environment
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("openai.apikey", "")
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.vision_model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 30*time.Second)

	v.SetDefault("groq.apikey", "")
	v.SetDefault("groq.endpoint", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama3-8b-8192")
	v.SetDefault("groq.timeout", 15*time.Second)

	v.SetDefault("claude.apikey", "")
	v.SetDefault("claude.endpoint", "https://api.anthropic.com")
	v.SetDefault("claude.model", "claude-3-5-sonnet-20240620")
	v.SetDefault("claude.timeout", 30*time.Second)

	v.SetDefault("cartesia.apikey", "")
	v.SetDefault("cartesia.endpoint", "https://api.cartesia.ai")
	v.SetDefault("cartesia.model", "sonic-english")
	v.SetDefault("cartesia.voice_id", "a0e99841-438c-4a64-b679-ae501e7d6091")
	v.SetDefault("cartesia.timeout", 30*time.Second)

	v.SetDefault("elevenlabs.apikey", "")
	v.SetDefault("elevenlabs.endpoint", "https://api.elevenlabs.io")
	v.SetDefault("elevenlabs.model", "eleven_monolingual_v1")
	v.SetDefault("elevenlabs.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("elevenlabs.timeout", 30*time.Second)

	v.SetDefault("flowchart.max_input_length", 5000)
	v.SetDefault("flowchart.max_code_length", 10000)
	v.SetDefault("flowchart.max_tokens", 2000)
	v.SetDefault("flowchart.temperature", 0.3)
	v.SetDefault("flowchart.orientation", "TD")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)

	v.SetDefault("renderer.mermaid_ink_url", "https://mermaid.ink/img")
	v.SetDefault("renderer.timeout", 30*time.Second)
	v.SetDefault("renderer.cache_expiry", 24*time.Hour)
	v.SetDefault("renderer.enable_caching", true)
	v.SetDefault("renderer.max_cache_entries", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age", 12*time.Hour)
}

// setConfigFile picks CONFIG_PATH, then configPath, then the default locations
func setConfigFile(v *viper.Viper, configPath string) error {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	return nil
}

// envMappings binds the provider variables the demos have always used.
// ElevenLabs historically read a lower-case name, so both spellings work.
var envMappings = []struct {
	env string
	key string
}{
	{EnvOpenAIKey, "openai.apikey"},
	{"OPENAI_ENDPOINT", "openai.endpoint"},
	{EnvGroqKey, "groq.apikey"},
	{EnvClaudeKey, "claude.apikey"},
	{EnvCartesiaKey, "cartesia.apikey"},
	{"ELEVENLABS_API_KEY", "elevenlabs.apikey"},
	{EnvElevenLabsKey, "elevenlabs.apikey"},
	{"PORT", "server.port"},
	{"LOG_LEVEL", "logging.level"},
	{"LOG_FORMAT", "logging.format"},
	{"LOG_OUTPUT", "logging.output"},
}

func setEnvironmentMappings(v *viper.Viper) {
	for _, m := range envMappings {
		if value := os.Getenv(m.env); value != "" {
			v.Set(m.key, value)
		}
	}
}

// validateConfig checks ranges and enums. Provider keys are not required
// here: a route whose key is missing fails on its own first request.
func validateConfig(config *Config) error {
	var errs []ValidationError

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	validModes := []string{"debug", "release", "test"}
	if !slices.Contains(validModes, config.Server.Mode) {
		errs = append(errs, ValidationError{
			Field:   "server.mode",
			Message: fmt.Sprintf("mode must be one of: %s", strings.Join(validModes, ", ")),
		})
	}

	if config.Flowchart.MaxInputLength <= 0 {
		errs = append(errs, ValidationError{
			Field:   "flowchart.max_input_length",
			Message: "max_input_length must be greater than 0",
		})
	}

	if config.Flowchart.MaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "flowchart.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.Flowchart.Temperature < 0 || config.Flowchart.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "flowchart.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	validOrientations := []string{"TD", "TB", "BT", "LR", "RL"}
	if !slices.Contains(validOrientations, config.Flowchart.Orientation) {
		errs = append(errs, ValidationError{
			Field:   "flowchart.orientation",
			Message: fmt.Sprintf("orientation must be one of: %s", strings.Join(validOrientations, ", ")),
		})
	}

	if config.Retry.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "retry.max_attempts",
			Message: "max_attempts must be at least 1",
		})
	}

	if config.Retry.BaseDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "retry.base_delay",
			Message: "base_delay must not be negative",
		})
	}

	if config.Renderer.MermaidInkURL == "" {
		errs = append(errs, ValidationError{
			Field:   "renderer.mermaid_ink_url",
			Message: "mermaid.ink URL is required",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if len(errs) > 0 {
		var errorMessages []string
		for _, err := range errs {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("%w:\n%s", ErrInvalidConfigValue, strings.Join(errorMessages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with API keys masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	masked.Groq.APIKey = maskValue(masked.Groq.APIKey)
	masked.Claude.APIKey = maskValue(masked.Claude.APIKey)
	masked.Cartesia.APIKey = maskValue(masked.Cartesia.APIKey)
	masked.ElevenLabs.APIKey = maskValue(masked.ElevenLabs.APIKey)
	masked.CORS.AllowedOrigins = slices.Clone(c.CORS.AllowedOrigins)

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// WatchConfig reloads the configuration whenever the file changes and
// hands the result to callback. Reload failures are logged and skipped.
func WatchConfig(configPath string, logger *zap.Logger, callback func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	if err := setConfigFile(v, configPath); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return ErrNoConfigFile
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))

		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       v.ConfigFileUsed(),
			ValidateRequired: true,
		})
		if err != nil {
			logger.Warn("Failed to reload config", zap.Error(err))
			return
		}
		callback(config)
	})
	v.WatchConfig()

	return nil
}
