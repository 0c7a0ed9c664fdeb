package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm"        validate:"required"`
	Processing ProcessingConfig `mapstructure:"processing" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}

// ProcessingConfig contains the settings that govern task execution and
// failure recovery.
type ProcessingConfig struct {
	// MaxRetries bounds how many retry attempts a task gets before it is
	// failed terminally by exhaustion.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// MaxRetryWindow bounds the elapsed time since task creation during
	// which retries are permitted.
	MaxRetryWindow time.Duration `mapstructure:"max_retry_window" validate:"gt=0"`

	// BackoffStrategy selects the retry-delay calculator.
	BackoffStrategy string `mapstructure:"backoff_strategy" validate:"required,oneof=exponential linear"`

	// BackoffBase is the first-attempt delay for both strategies.
	BackoffBase time.Duration `mapstructure:"backoff_base" validate:"gt=0"`

	// BackoffMax caps the exponential strategy's delay before jitter.
	BackoffMax time.Duration `mapstructure:"backoff_max" validate:"gt=0"`

	// BackoffIncrement is the linear strategy's per-retry increase.
	BackoffIncrement time.Duration `mapstructure:"backoff_increment" validate:"gte=0"`

	// JitterFraction perturbs each delay by a uniform amount in
	// ±(delay * JitterFraction) to avoid synchronized retry storms.
	JitterFraction float64 `mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`

	// DefaultTaskTypes are the analyses queued for an upload that does not
	// name its own task types.
	DefaultTaskTypes []string `mapstructure:"default_task_types" validate:"min=1,dive,required"`

	// ReconcileInterval is how often the service scans for retrying tasks
	// whose scheduled retry was lost (e.g. across a restart).
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
}
