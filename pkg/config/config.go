package config

import "time"

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	OCPP      OCPPConfig      `mapstructure:"ocpp"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Lifetimes LifetimesConfig `mapstructure:"lifetimes"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// Production reports whether the service runs against real stations.
func (a AppConfig) Production() bool {
	return a.Environment == "production"
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type OCPPConfig struct {
	// Port is the WebSocket listener for stations (OCPP_WS_PORT).
	Port int `mapstructure:"port"`
	// VerifyStationKeys toggles connection authentication. Off in dev
	// so simulators can connect without provisioning keys.
	VerifyStationKeys bool `mapstructure:"verify_station_keys"`
	// MasterKey short-circuits per-station key checks for field tools.
	MasterKey string `mapstructure:"master_key"`
	// LogMessages enables the raw frame audit trail.
	LogMessages bool `mapstructure:"log_messages"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
}

// QueueConfig selects the event queue backend by URL scheme:
// amqp(s):// is RabbitMQ, anything else NATS.
type QueueConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	// SecretKey signs client JWTs and station API key HMACs.
	SecretKey string `mapstructure:"secret_key"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// PerMinute is the general cap per client IP.
	PerMinute int `mapstructure:"per_minute"`
	// CriticalPerMinute caps the charging mutation endpoints.
	CriticalPerMinute int `mapstructure:"critical_per_minute"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	ExposeHeaders  []string `mapstructure:"expose_headers"`
	MaxAge         int      `mapstructure:"max_age"`
	Credentials    bool     `mapstructure:"credentials"`
}

type SMSConfig struct {
	// Twilio credentials. Empty SID disables delivery; codes are only
	// logged, which is how dev environments run.
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

type WorkersConfig struct {
	// StatusCheckIntervalSeconds paces the station liveness sweep.
	StatusCheckIntervalSeconds int `mapstructure:"status_check_interval_seconds"`
	// CleanupIntervalMinutes paces the idempotency record purge.
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes"`
	// HangingSessionSweepMinutes paces the stuck-session settlement.
	HangingSessionSweepMinutes int `mapstructure:"hanging_session_sweep_minutes"`
}

func (w WorkersConfig) StatusCheckInterval() time.Duration {
	if w.StatusCheckIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(w.StatusCheckIntervalSeconds) * time.Second
}

func (w WorkersConfig) CleanupInterval() time.Duration {
	if w.CleanupIntervalMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(w.CleanupIntervalMinutes) * time.Minute
}

func (w WorkersConfig) HangingSessionSweep() time.Duration {
	if w.HangingSessionSweepMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(w.HangingSessionSweepMinutes) * time.Minute
}

type LifetimesConfig struct {
	QRCodeMinutes  int `mapstructure:"qr_code_minutes"`
	InvoiceMinutes int `mapstructure:"invoice_minutes"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
