package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const minDeviceTokenSecretLength = 32

// Config holds all application configuration
type Config struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Validation  ValidationConfig
	Telemetry   TelemetryConfig
	Alert       AlertConfig
	Device      DeviceConfig
	Auth        AuthConfig
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
}

// Addr returns the listen address
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

// StorageConfig selects the device store
type StorageConfig struct {
	Backend string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnIdleTime time.Duration
}

// RabbitMQConfig holds RabbitMQ connection and queue settings. An empty URL disables messaging.
type RabbitMQConfig struct {
	URL                 string
	TelemetryExchange   string
	TelemetryQueue      string
	TelemetryRoutingKey string
	DLQQueue            string
	EventsExchange      string
	PrefetchCount       int
	HandleTimeout       time.Duration
}

// Enabled reports whether RabbitMQ is configured
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// TelemetryConfig holds ingest settings
type TelemetryConfig struct {
	IntervalSeconds int
	HistoryLimit    int
}

// AlertConfig holds alert thresholds
type AlertConfig struct {
	LowBatteryPercent float64
	UnresponsiveAfter time.Duration
}

// DeviceConfig holds provisioning defaults
type DeviceConfig struct {
	CodePrefix      string
	HardwareVersion string
	FirmwareVersion string
}

// AuthConfig holds owner, device and admin credential settings
type AuthConfig struct {
	OwnerJWTSecret    string
	OwnerJWTAudience  string
	DeviceTokenSecret string
	DeviceTokenTTL    time.Duration
	AdminAPIKey       string
	BcryptCost        int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	interval := getEnvAsInt("TELEMETRY_INTERVAL_SECONDS", 5)

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "smartbag-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Port:               getEnvAsInt("HTTP_PORT", 4000),
			ReadTimeout:        getEnvAsSeconds("HTTP_READ_TIMEOUT_SEC", 15),
			WriteTimeout:       getEnvAsSeconds("HTTP_WRITE_TIMEOUT_SEC", 15),
			IdleTimeout:        getEnvAsSeconds("HTTP_IDLE_TIMEOUT_SEC", 60),
			RequestTimeout:     getEnvAsSeconds("HTTP_REQUEST_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", StoragePostgres)),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 0),
			MaxConnIdleTime: getEnvAsSeconds("DB_MAX_CONN_IDLE_SEC", 300),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                 getEnv("RABBITMQ_URL", ""),
			TelemetryExchange:   getEnv("RABBITMQ_TELEMETRY_EXCHANGE", "smartbag.telemetry.exchange"),
			TelemetryQueue:      getEnv("RABBITMQ_TELEMETRY_QUEUE", "smartbag.telemetry.queue"),
			TelemetryRoutingKey: getEnv("RABBITMQ_TELEMETRY_ROUTING_KEY", "device.telemetry.#"),
			DLQQueue:            getEnv("RABBITMQ_DLQ_QUEUE", "smartbag.telemetry.dlq"),
			EventsExchange:      getEnv("RABBITMQ_EVENTS_EXCHANGE", "smartbag.device.events.exchange"),
			PrefetchCount:       getEnvAsInt("RABBITMQ_PREFETCH", 10),
			HandleTimeout:       getEnvAsSeconds("RABBITMQ_HANDLE_TIMEOUT_SEC", 10),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10),
		},
		Telemetry: TelemetryConfig{
			IntervalSeconds: interval,
			HistoryLimit:    getEnvAsInt("HISTORY_LIMIT", 100),
		},
		Alert: AlertConfig{
			LowBatteryPercent: getEnvAsFloat("ALERT_LOW_BATTERY_PERCENT", 20),
			UnresponsiveAfter: getEnvAsSeconds("ALERT_UNRESPONSIVE_AFTER_SECONDS", 2*interval),
		},
		Device: DeviceConfig{
			CodePrefix:      strings.ToUpper(getEnv("DEVICE_CODE_PREFIX", "INF")),
			HardwareVersion: getEnv("DEVICE_DEFAULT_HARDWARE_VERSION", "v1.0"),
			FirmwareVersion: getEnv("DEVICE_FIRMWARE_VERSION", "1.0.0"),
		},
		Auth: AuthConfig{
			OwnerJWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
			OwnerJWTAudience:  getEnv("AUTH_JWT_AUDIENCE", ""),
			DeviceTokenSecret: getEnv("DEVICE_TOKEN_SECRET", ""),
			DeviceTokenTTL:    time.Duration(getEnvAsInt("DEVICE_TOKEN_TTL_MINUTES", 1440)) * time.Minute,
			AdminAPIKey:       getEnv("ADMIN_API_KEY", ""),
			BcryptCost:        getEnvAsInt("BCRYPT_COST", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required and ranged settings
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case StoragePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres"))
		}
		if c.Database.MaxConns <= 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			errs = append(errs, errors.New("DB_MAX_CONNS must be positive and DB_MIN_CONNS between 0 and DB_MAX_CONNS"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage.Backend))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTP.Port))
	}
	if c.Auth.OwnerJWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required but not set in environment variables"))
	}
	if len(c.Auth.DeviceTokenSecret) < minDeviceTokenSecretLength {
		errs = append(errs, fmt.Errorf("DEVICE_TOKEN_SECRET must be at least %d characters", minDeviceTokenSecretLength))
	}
	if c.Auth.DeviceTokenTTL <= 0 {
		errs = append(errs, errors.New("DEVICE_TOKEN_TTL_MINUTES must be positive"))
	}
	if c.Telemetry.IntervalSeconds <= 0 {
		errs = append(errs, errors.New("TELEMETRY_INTERVAL_SECONDS must be positive"))
	}
	if c.Telemetry.HistoryLimit < 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT must not be negative"))
	}
	if c.Alert.LowBatteryPercent < 0 || c.Alert.LowBatteryPercent > 100 {
		errs = append(errs, errors.New("ALERT_LOW_BATTERY_PERCENT must be between 0 and 100"))
	}
	if c.Alert.UnresponsiveAfter <= 0 {
		errs = append(errs, errors.New("ALERT_UNRESPONSIVE_AFTER_SECONDS must be positive"))
	}
	if c.Validation.TimestampToleranceMinutes <= 0 {
		errs = append(errs, errors.New("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES must be positive"))
	}
	if c.RabbitMQ.Enabled() && c.RabbitMQ.PrefetchCount <= 0 {
		errs = append(errs, errors.New("RABBITMQ_PREFETCH must be positive"))
	}
	if c.Device.CodePrefix == "" || len(c.Device.CodePrefix) > 8 {
		errs = append(errs, errors.New("DEVICE_CODE_PREFIX must be 1 to 8 characters"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
