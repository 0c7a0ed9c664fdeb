package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables and defaults apply.
	}

	// Environment variables with NIMBUS_ prefix, e.g. NIMBUS_DATABASE_URL
	v.SetEnvPrefix("NIMBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for all optional settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	v.SetDefault("processing.max_retries", 3)
	v.SetDefault("processing.max_retry_window", "24h")
	v.SetDefault("processing.backoff_strategy", "exponential")
	v.SetDefault("processing.backoff_base", "1s")
	v.SetDefault("processing.backoff_max", "300s")
	v.SetDefault("processing.backoff_increment", "5s")
	v.SetDefault("processing.jitter_fraction", 0.1)
	v.SetDefault("processing.default_task_types", []string{"analyze_content", "extract_metadata"})
	v.SetDefault("processing.reconcile_interval", "1m")
}
