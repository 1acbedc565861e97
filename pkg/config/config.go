// Package config loads the service configuration from environment variables.
// A .env file is honoured for local development. Load validates the result so
// that a misconfigured process fails at startup rather than on first request.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Failed to load configuration")
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates every configuration section.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Cookie    CookieConfig
	Password  PasswordConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	AMQP      AMQPConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string
	Environment    string
	RequestTimeout time.Duration
	// TrustProxyHeaders makes the client IP come from X-Forwarded-For or
	// X-Real-IP. Off unless the service runs behind a rewriting proxy.
	TrustProxyHeaders bool
}

// DatabaseConfig holds PostgreSQL connection parameters and pool settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int // Maximum number of open connections
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

// JWTConfig holds token signing and lifetime settings.
//
// RotateRefresh controls whether a refresh exchange issues a new refresh
// token. BlacklistAfterRotation controls whether the exchanged token is
// blacklisted for the rest of its lifetime.
type JWTConfig struct {
	Secret                 []byte
	AccessExpiry           time.Duration
	RefreshExpiry          time.Duration // Refresh token lifetime (default: 7 days)
	RotateRefresh          bool
	BlacklistAfterRotation bool
}

// CookieConfig holds refresh cookie attributes that vary per deployment.
type CookieConfig struct {
	Secure bool
	Domain string
}

// PasswordConfig holds the password policy knobs.
type PasswordConfig struct {
	MinLength  int
	BcryptCost int
}

// CORSConfig controls which origins can call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig holds per-IP limits for the authentication endpoints.
type RateLimitConfig struct {
	RequestsPerMinute int
	WindowDuration    time.Duration
}

// CacheConfig holds TTLs for the Redis read-through caches.
type CacheConfig struct {
	UserTTL time.Duration
	Enabled bool // Master switch to enable/disable caching
}

// AMQPConfig holds the RabbitMQ connection used for ping events.
// An empty URL disables publishing.
type AMQPConfig struct {
	URL   string
	Queue string
	// Buffer is how many events may wait for delivery before new ones are
	// dropped.
	Buffer int
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string // "console" or "json"
}

// Load reads and validates configuration from environment variables.
// It loads a .env file if present but doesn't fail if the file is missing.
//
// Required environment variables:
//   - POSTGRES_PASSWORD: Database password
//   - JWT_SECRET: Secret for JWT signing (at least 32 bytes)
//
// Everything else has a default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	postgresPassword, err := getEnvRequired("POSTGRES_PASSWORD")
	if err != nil {
		return nil, err
	}

	jwtSecret, err := getEnvRequired("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	env := getEnv("ENV", "development")

	config := &Config{
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			Environment:       env,
			RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
			TrustProxyHeaders: getEnvAsBool("TRUST_PROXY_HEADERS", false),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			Database: getEnv("POSTGRES_DB", "pingdb"),
			User:     getEnv("POSTGRES_USER", "pinguser"),
			Password: postgresPassword,
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 25),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 100),
		},
		JWT: JWTConfig{
			Secret:                 []byte(jwtSecret),
			AccessExpiry:           getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry:          getEnvAsDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),
			RotateRefresh:          getEnvAsBool("JWT_ROTATE_REFRESH", true),
			BlacklistAfterRotation: getEnvAsBool("JWT_BLACKLIST_AFTER_ROTATION", true),
		},
		Cookie: CookieConfig{
			Secure: getEnvAsBool("COOKIE_SECURE", true),
			Domain: getEnv("COOKIE_DOMAIN", ""),
		},
		Password: PasswordConfig{
			MinLength:  getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
			BcryptCost: getEnvAsInt("BCRYPT_COST", 12),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvAsDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		Cache: CacheConfig{
			UserTTL: getEnvAsDuration("CACHE_USER_TTL", 15*time.Minute),
			Enabled: getEnvAsBool("CACHE_ENABLED", true),
		},
		AMQP: AMQPConfig{
			URL:    getEnv("AMQP_URL", ""),
			Queue:  getEnv("AMQP_QUEUE", "ping_events"),
			Buffer: getEnvAsInt("AMQP_BUFFER", 256),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", defaultLogFormat(env)),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate returns the first configuration problem found, or nil.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be a valid integer: %w", err)
	}

	if _, err := strconv.Atoi(c.Database.Port); err != nil {
		return fmt.Errorf("database port must be a valid integer: %w", err)
	}

	if _, err := strconv.Atoi(c.Redis.Port); err != nil {
		return fmt.Errorf("redis port must be a valid integer: %w", err)
	}

	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.JWT.AccessExpiry <= 0 || c.JWT.RefreshExpiry <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.JWT.AccessExpiry >= c.JWT.RefreshExpiry {
		return fmt.Errorf("access token lifetime must be shorter than refresh token lifetime")
	}

	if c.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	if c.Password.MinLength < 1 {
		return fmt.Errorf("password minimum length must be at least 1")
	}
	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31")
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be console or json, got %q", c.Log.Format)
	}

	return nil
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// DSN returns the PostgreSQL connection string for the lib/pq driver.
//
// Example:
//
//	db, err := sql.Open("postgres", cfg.Database.DSN())
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Address returns the Redis server address in "host:port" format.
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func defaultLogFormat(env string) string {
	if env == "production" {
		return "json"
	}
	return "console"
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvRequired retrieves a required environment variable.
// Returns an error if the variable is not set or is empty.
func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an integer.
// Unset or unparsable values yield defaultValue.
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

// getEnvAsBool accepts anything strconv.ParseBool does.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a time.Duration.
// Supports Go duration format: "300ms", "1.5h", "2h45m".
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice parses a comma-separated variable, dropping empty items.
//
// Example:
//
//	// ALLOWED_ORIGINS=http://localhost:3000,https://example.com
//	origins := getEnvAsSlice("ALLOWED_ORIGINS", nil)
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
