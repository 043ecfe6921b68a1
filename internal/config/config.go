package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string
	ServerHost string

	// Collaboration
	ReaperInterval    time.Duration
	InactivityTimeout time.Duration
	SendBufferSize    int
	MaxMessageBytes   int64
	AllowedOrigins    []string

	// Share cache (disabled when RedisURL is empty)
	RedisURL           string
	ShareCacheTTL      time.Duration
	ShareNotifyChannel string

	// Observability
	LogLevel       string
	TracingEnabled bool
	JaegerEndpoint string
}

// Load reads the configuration from the environment. envFiles are loaded
// first when present; a missing file is not an error.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "docsync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		ReaperInterval:    getEnvDuration("REAPER_INTERVAL", 60*time.Second),
		InactivityTimeout: getEnvDuration("INACTIVITY_TIMEOUT", 5*time.Minute),
		SendBufferSize:    getEnvInt("SEND_BUFFER_SIZE", 256),
		MaxMessageBytes:   int64(getEnvInt("MAX_MESSAGE_BYTES", 1<<20)),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),

		RedisURL:           getEnv("REDIS_URL", ""),
		ShareCacheTTL:      getEnvDuration("SHARE_CACHE_TTL", 30*time.Second),
		ShareNotifyChannel: getEnv("SHARE_NOTIFY_CHANNEL", "document_shares_changed"),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", true),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the collaboration layer cannot run with.
func (c *Config) Validate() error {
	if c.ReaperInterval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL must be positive, got %s", c.ReaperInterval)
	}
	if c.InactivityTimeout <= 0 {
		return fmt.Errorf("INACTIVITY_TIMEOUT must be positive, got %s", c.InactivityTimeout)
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", c.SendBufferSize)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be positive, got %d", c.MaxMessageBytes)
	}
	if c.RedisURL != "" && c.ShareCacheTTL <= 0 {
		return fmt.Errorf("SHARE_CACHE_TTL must be positive when REDIS_URL is set")
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvDuration accepts Go duration strings ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
