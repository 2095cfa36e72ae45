package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultTelegramPollTimeout      = 10 * time.Second
	DefaultTelegramSendTimeout      = 10 * time.Second
	DefaultTelegramDownloadTimeout  = 30 * time.Second
	DefaultTelegramMaxMessageLength = 4096 // Telegram's maximum message length
	DefaultTelegramWorkers          = 8

	DefaultDBDriver           = "sqlite"
	DefaultDBDSN              = "labsage.db"
	DefaultDBMaxOpenConns     = 1 // SQLite doesn't support concurrent writers
	DefaultDBMaxIdleConns     = 1
	DefaultDBConnMaxLifetime  = 5 * time.Minute
	DefaultDBOperationTimeout = 15 * time.Second
	DefaultDBHistoryLimit     = 5

	DefaultStorageBucket         = "analyses_files"
	DefaultStorageCacheControl   = 3600
	DefaultStorageMaxObjectBytes = 20 * 1024 * 1024

	DefaultAnalysisProvider        = "openai"
	DefaultAnalysisModel           = "gpt-4o"
	DefaultAnalysisTemperature     = 0.7
	DefaultAnalysisTimeout         = 60 * time.Second
	DefaultAnalysisMaxAttempts     = 3
	DefaultAnalysisInitialInterval = 500 * time.Millisecond

	DefaultMaxFileBytes = 20 * 1024 * 1024
	DefaultMaxTextChars = 10000

	DefaultLocale = "ru"

	DefaultStaleAfter = 30 * time.Minute

	DefaultOpsAddr = ":9090"
)

// DefaultAllowedMimeTypes is the image allowlist applied when the bucket is created.
var DefaultAllowedMimeTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif", "image/heic"}

// DefaultTasks are the scheduled tasks known to the bot.
var DefaultTasks = map[string]any{
	"sql_maintenance": map[string]any{"enabled": true, "schedule": "0 0 4 * * *"},
	"stale_requests":  map[string]any{"enabled": true, "schedule": "0 */10 * * * *"},
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.poll_timeout", DefaultTelegramPollTimeout)
	v.SetDefault("telegram.send_timeout", DefaultTelegramSendTimeout)
	v.SetDefault("telegram.download_timeout", DefaultTelegramDownloadTimeout)
	v.SetDefault("telegram.max_message_length", DefaultTelegramMaxMessageLength)
	v.SetDefault("telegram.drop_pending_updates", true)
	v.SetDefault("telegram.workers", DefaultTelegramWorkers)

	v.SetDefault("database.driver", DefaultDBDriver)
	v.SetDefault("database.dsn", DefaultDBDSN)
	v.SetDefault("database.max_open_conns", DefaultDBMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultDBMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultDBConnMaxLifetime)
	v.SetDefault("database.operation_timeout", DefaultDBOperationTimeout)
	v.SetDefault("database.history_limit", DefaultDBHistoryLimit)

	v.SetDefault("storage.url", "")
	v.SetDefault("storage.key", "")
	v.SetDefault("storage.bucket", DefaultStorageBucket)
	v.SetDefault("storage.cache_control_seconds", DefaultStorageCacheControl)
	v.SetDefault("storage.max_object_bytes", DefaultStorageMaxObjectBytes)
	v.SetDefault("storage.allowed_mime_types", DefaultAllowedMimeTypes)

	v.SetDefault("analysis.provider", DefaultAnalysisProvider)
	v.SetDefault("analysis.api_key", "")
	v.SetDefault("analysis.base_url", "")
	v.SetDefault("analysis.model", DefaultAnalysisModel)
	v.SetDefault("analysis.temperature", DefaultAnalysisTemperature)
	v.SetDefault("analysis.timeout", DefaultAnalysisTimeout)
	v.SetDefault("analysis.max_attempts", DefaultAnalysisMaxAttempts)
	v.SetDefault("analysis.initial_interval", DefaultAnalysisInitialInterval)

	v.SetDefault("limits.max_file_bytes", DefaultMaxFileBytes)
	v.SetDefault("limits.max_text_chars", DefaultMaxTextChars)

	v.SetDefault("messages.default_locale", DefaultLocale)

	v.SetDefault("scheduler.tasks", DefaultTasks)
	v.SetDefault("scheduler.stale_after", DefaultStaleAfter)

	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.addr", DefaultOpsAddr)
}
