/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payout-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	StatusEventQueue     string `mapstructure:"STATUS_EVENT_QUEUE"`
	DetectorBaseURL      string `mapstructure:"DETECTOR_BASE_URL"`
	DetectorAPIKey       string `mapstructure:"DETECTOR_API_KEY"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`

	VerifyMaxAttempts        int `mapstructure:"VERIFY_MAX_ATTEMPTS"`
	VerifyIntervalMs         int `mapstructure:"VERIFY_INTERVAL_MS"`
	VerifyGraceDelayMs       int `mapstructure:"VERIFY_GRACE_DELAY_MS"`
	VerifyRateLimitPerMinute int `mapstructure:"VERIFY_RATE_LIMIT_PER_MINUTE"`
	NotifierDebounceMs       int `mapstructure:"NOTIFIER_DEBOUNCE_MS"`
	EnsureSchema             bool `mapstructure:"ENSURE_SCHEMA"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("STATUS_EVENT_QUEUE", "payout_service.status_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payouts:rate_limit")
	viper.SetDefault("VERIFY_MAX_ATTEMPTS", 20)
	viper.SetDefault("VERIFY_INTERVAL_MS", 5000)
	viper.SetDefault("VERIFY_GRACE_DELAY_MS", 3000)
	viper.SetDefault("VERIFY_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("NOTIFIER_DEBOUNCE_MS", 500)
	viper.SetDefault("ENSURE_SCHEMA", true)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYOUT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("STATUS_EVENT_QUEUE")
	_ = viper.BindEnv("DETECTOR_BASE_URL")
	_ = viper.BindEnv("DETECTOR_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PAYOUT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("VERIFY_MAX_ATTEMPTS")
	_ = viper.BindEnv("VERIFY_INTERVAL_MS")
	_ = viper.BindEnv("VERIFY_GRACE_DELAY_MS")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("NOTIFIER_DEBOUNCE_MS")
	_ = viper.BindEnv("ENSURE_SCHEMA")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PAYOUT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payouts:rate_limit"
	}

	if config.VerifyMaxAttempts <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive verify max attempts; using default\" value=%d", config.VerifyMaxAttempts)
		config.VerifyMaxAttempts = 20
	}
	if config.VerifyIntervalMs <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive verify interval; using default\" value=%d", config.VerifyIntervalMs)
		config.VerifyIntervalMs = 5000
	}
	if config.VerifyGraceDelayMs < 0 {
		log.Printf("level=warn component=config msg=\"negative verify grace delay; coercing to zero\" value=%d", config.VerifyGraceDelayMs)
		config.VerifyGraceDelayMs = 0
	}
	if config.VerifyRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative verify rate limit; disabling\" value=%d", config.VerifyRateLimitPerMinute)
		config.VerifyRateLimitPerMinute = 0
	}
	if config.NotifierDebounceMs <= 0 {
		config.NotifierDebounceMs = 500
	}

	return
}
