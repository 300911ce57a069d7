package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("ocpp.port", "OCPP_WS_PORT", "APP_OCPP_PORT")
	viper.BindEnv("ocpp.verify_station_keys", "VERIFY_STATION_API_KEYS")
	viper.BindEnv("ocpp.master_key", "STATION_MASTER_API_KEY")
	viper.BindEnv("ocpp.log_messages", "OCPP_LOG_MESSAGES")
	viper.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("queue.url", "QUEUE_URL", "NATS_URL", "APP_QUEUE_URL")
	viper.BindEnv("auth.secret_key", "SECRET_KEY", "APP_SECRET_KEY")
	viper.BindEnv("app.environment", "APP_ENV", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("sms.account_sid", "TWILIO_ACCOUNT_SID")
	viper.BindEnv("sms.auth_token", "TWILIO_AUTH_TOKEN")
	viper.BindEnv("sms.from_number", "TWILIO_FROM_NUMBER")
	viper.BindEnv("rate_limit.per_minute", "RATE_LIMIT_DEFAULT_PER_MINUTE", "RATE_LIMIT_PER_MINUTE")
	viper.BindEnv("rate_limit.critical_per_minute", "RATE_LIMIT_CRITICAL_PER_MINUTE")
	viper.BindEnv("workers.status_check_interval_seconds", "STATUS_CHECK_INTERVAL_SECONDS")
	viper.BindEnv("workers.cleanup_interval_minutes", "CLEANUP_INTERVAL_MINUTES")
	viper.BindEnv("lifetimes.qr_code_minutes", "QR_CODE_LIFETIME_MINUTES")
	viper.BindEnv("lifetimes.invoice_minutes", "INVOICE_LIFETIME_MINUTES")

	// Defaults keep a bare-env deploy bootable.
	viper.SetDefault("app.name", "evpower-backend")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("ocpp.port", 9210)
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.per_minute", 60)
	viper.SetDefault("rate_limit.critical_per_minute", 10)
	viper.SetDefault("workers.status_check_interval_seconds", 60)
	viper.SetDefault("workers.cleanup_interval_minutes", 60)
	viper.SetDefault("workers.hanging_session_sweep_minutes", 60)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Auth.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}

	return &cfg, nil
}
