// Package config provides configuration loading, validation, and defaults
// for the labsage bot. Values come from (lowest to highest priority) built-in
// defaults, an optional YAML file, a .env file and LABSAGE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. LABSAGE_LOGGER_LEVEL.
const EnvPrefix = "LABSAGE"

// ErrConfiguration wraps every error returned by LoadConfig.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration for all components.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ops       OpsConfig       `mapstructure:"ops"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds transport settings.
type TelegramConfig struct {
	Token              string        `mapstructure:"token"                validate:"required"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout"         validate:"min=1s,max=1m"`
	SendTimeout        time.Duration `mapstructure:"send_timeout"         validate:"min=1s,max=1m"`
	DownloadTimeout    time.Duration `mapstructure:"download_timeout"     validate:"min=1s,max=5m"`
	MaxMessageLength   int           `mapstructure:"max_message_length"   validate:"min=100,max=4096"`
	DropPendingUpdates bool          `mapstructure:"drop_pending_updates"`
	Workers            int           `mapstructure:"workers"              validate:"min=1,max=64"`
}

// DatabaseConfig selects the SQL driver and pool settings.
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"             validate:"oneof=sqlite postgres"`
	DSN              string        `mapstructure:"dsn"                validate:"required"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"     validate:"min=1"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"     validate:"min=0"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"  validate:"min=1s,max=5m"`
	HistoryLimit     int           `mapstructure:"history_limit"      validate:"min=1,max=50"`
}

// StorageConfig points at the Supabase Storage API.
type StorageConfig struct {
	URL                 string   `mapstructure:"url"                   validate:"required,url"`
	Key                 string   `mapstructure:"key"                   validate:"required"`
	Bucket              string   `mapstructure:"bucket"                validate:"required"`
	CacheControlSeconds int      `mapstructure:"cache_control_seconds" validate:"min=0"`
	MaxObjectBytes      int64    `mapstructure:"max_object_bytes"      validate:"min=1"`
	AllowedMimeTypes    []string `mapstructure:"allowed_mime_types"    validate:"min=1,dive,required"`
}

// AnalysisConfig configures the generative provider.
type AnalysisConfig struct {
	Provider        string        `mapstructure:"provider"         validate:"oneof=openai gemini"`
	APIKey          string        `mapstructure:"api_key"          validate:"required"`
	BaseURL         string        `mapstructure:"base_url"         validate:"omitempty,url"`
	Model           string        `mapstructure:"model"            validate:"required"`
	Temperature     float32       `mapstructure:"temperature"      validate:"min=0,max=2"`
	Timeout         time.Duration `mapstructure:"timeout"          validate:"min=1s,max=10m"`
	MaxAttempts     int           `mapstructure:"max_attempts"     validate:"min=1,max=10"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"min=10ms,max=1m"`
}

// LimitsConfig bounds user input before any external call.
type LimitsConfig struct {
	MaxFileBytes int64 `mapstructure:"max_file_bytes" validate:"min=1"`
	MaxTextChars int   `mapstructure:"max_text_chars" validate:"min=1"`
}

// MessagesConfig selects the locale used when a user's language is unknown.
type MessagesConfig struct {
	DefaultLocale string `mapstructure:"default_locale" validate:"oneof=en ru"`
}

// TaskConfig enables a scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// SchedulerConfig lists scheduled tasks by name.
type SchedulerConfig struct {
	Tasks      map[string]TaskConfig `mapstructure:"tasks"       validate:"dive"`
	StaleAfter time.Duration         `mapstructure:"stale_after" validate:"min=1m"`
}

// OpsConfig controls the internal health and metrics listener.
type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// LoadConfig reads configuration from the YAML file at path (optional),
// a .env file in the working directory (optional) and the environment,
// then validates the result.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env: %w", ErrConfiguration, err)
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) && !isNotFound(err) {
				return nil, fmt.Errorf("%w: failed to read %s: %w", ErrConfiguration, path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Database.Driver == "sqlite" && c.Database.MaxOpenConns != 1 {
		return fmt.Errorf("database.max_open_conns must be 1 for sqlite, got %d", c.Database.MaxOpenConns)
	}
	if c.Limits.MaxFileBytes > c.Storage.MaxObjectBytes {
		return fmt.Errorf("limits.max_file_bytes (%d) exceeds storage.max_object_bytes (%d)",
			c.Limits.MaxFileBytes, c.Storage.MaxObjectBytes)
	}
	return nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variable names used by earlier deployments.
	_ = v.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("analysis.api_key", EnvPrefix+"_ANALYSIS_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("storage.url", EnvPrefix+"_STORAGE_URL", "SUPABASE_URL")
	_ = v.BindEnv("storage.key", EnvPrefix+"_STORAGE_KEY", "SUPABASE_KEY")
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return os.IsNotExist(err)
}
