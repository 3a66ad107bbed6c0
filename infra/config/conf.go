package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Version is reported by the health endpoint and stamped on log entries.
const Version = "1.0.0"

// AppConfig represents the application configuration
type AppConfig struct {
	Port            string
	Environment     string
	LoggingLevel    string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxBodyBytes    int64

	GatewayTimeout time.Duration
	AdminAPIKey    string
	AdminIPs       []string
	RateLimit      int
	AllowedOrigins []string

	IdempotencyBackend string
	IdempotencyTTL     time.Duration
	IdempotencyMaxSize int
	SQLitePath         string

	OpenSearchURL     string
	OpenSearchUser    string
	OpenSearchPass    string
	OpenSearchTLSSkip bool
	EnableOpenSearch  bool
	OpenSearchIndex   string
	EnablePostgres    bool
	PostgresTable     string

	MerchantConfigFile string
}

var (
	appConfigInstance *AppConfig
	appConfigOnce     sync.Once
)

// GetAppConfig returns the application configuration, read once from the environment
func GetAppConfig() *AppConfig {
	appConfigOnce.Do(func() {
		appConfigInstance = LoadAppConfig()
	})
	return appConfigInstance
}

// LoadAppConfig reads the application configuration from the environment
func LoadAppConfig() *AppConfig {
	return &AppConfig{
		Port:            GetEnv("APP_PORT", "9999"),
		Environment:     GetEnv("ENVIRONMENT", "development"),
		LoggingLevel:    GetEnv("LOGGING_LEVEL", "info"),
		ShutdownTimeout: GetDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second),
		RequestTimeout:  GetDurationEnv("REQUEST_TIMEOUT", 60*time.Second),
		MaxBodyBytes:    int64(GetIntEnv("MAX_BODY_BYTES", 64*1024)),

		GatewayTimeout: GetDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),
		AdminAPIKey:    GetEnv("ADMIN_API_KEY", ""),
		AdminIPs:       GetListEnv("ADMIN_IP_WHITELIST", nil),
		RateLimit:      GetIntEnv("RATE_LIMIT_PER_MINUTE", 100),
		AllowedOrigins: GetListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),

		IdempotencyBackend: strings.ToLower(GetEnv("IDEMPOTENCY_BACKEND", "memory")),
		IdempotencyTTL:     GetDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyMaxSize: GetIntEnv("IDEMPOTENCY_MAX_ENTRIES", 10000),
		SQLitePath:         GetEnv("SQLITE_PATH", "./data/walletpay.db"),

		OpenSearchURL:     GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
		OpenSearchUser:    GetEnv("OPENSEARCH_USER", ""),
		OpenSearchPass:    GetEnv("OPENSEARCH_PASSWORD", ""),
		OpenSearchTLSSkip: GetBoolEnv("OPENSEARCH_INSECURE_SKIP_VERIFY", false),
		EnableOpenSearch:  GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
		OpenSearchIndex:   GetEnv("OPENSEARCH_INDEX_PREFIX", "walletpay"),
		EnablePostgres:    GetBoolEnv("ENABLE_POSTGRES_LOGGING", false),
		PostgresTable:     GetEnv("POSTGRES_ATTEMPTS_TABLE", "payment_attempts"),

		MerchantConfigFile: GetEnv("MERCHANT_CONFIG_FILE", ""),
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv accepts Go durations ("1500ms", "10s") or plain seconds ("10")
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// GetListEnv splits a comma separated variable, dropping empty items
func GetListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
