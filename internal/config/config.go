package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Account store backends
const (
	StorePostgres = "postgres"
	StoreFile     = "file"
)

// Key index cache backends
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	Migrate           bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

// StoreConfig selects where account records and the key index live
type StoreConfig struct {
	Accounts      string // postgres | file
	IdentitiesDir string
	KeyIndex      string // redis | memory
	KeyIndexTTL   time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret          string
	SessionTokenExpiry time.Duration
	VerifyTimeout      time.Duration
	LoginRateLimit     int
	FailureFloor       time.Duration // minimum response time of a failed login
	FailureJitter      time.Duration
	AuditInterval      time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "keygate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			Migrate:           getEnvAsBool("DB_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
		},
		Store: StoreConfig{
			Accounts:      strings.ToLower(getEnv("ACCOUNT_STORE", StorePostgres)),
			IdentitiesDir: getEnv("IDENTITIES_DIR", "./identities"),
			KeyIndex:      strings.ToLower(getEnv("KEY_INDEX_CACHE", CacheRedis)),
			KeyIndexTTL:   getEnvAsDuration("KEY_INDEX_TTL", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			SessionTokenExpiry: getEnvAsDuration("SESSION_TOKEN_EXPIRY", 15*time.Minute),
			VerifyTimeout:      getEnvAsDuration("VERIFY_TIMEOUT", 10*time.Second),
			LoginRateLimit:     getEnvAsInt("LOGIN_RATE_LIMIT", 5),
			FailureFloor:       getEnvAsDuration("LOGIN_FAILURE_FLOOR", 500*time.Millisecond),
			FailureJitter:      getEnvAsDuration("LOGIN_FAILURE_JITTER", 250*time.Millisecond),
			AuditInterval:      getEnvAsDuration("KEY_INDEX_AUDIT_INTERVAL", 1*time.Hour),
		},
	}

	switch cfg.Store.Accounts {
	case StorePostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required when ACCOUNT_STORE=postgres")
		}
	case StoreFile:
		if cfg.Store.IdentitiesDir == "" {
			return nil, fmt.Errorf("IDENTITIES_DIR is required when ACCOUNT_STORE=file")
		}
	default:
		return nil, fmt.Errorf("ACCOUNT_STORE must be %q or %q, got %q", StorePostgres, StoreFile, cfg.Store.Accounts)
	}

	if cfg.Store.KeyIndex != CacheRedis && cfg.Store.KeyIndex != CacheMemory {
		return nil, fmt.Errorf("KEY_INDEX_CACHE must be %q or %q, got %q", CacheRedis, CacheMemory, cfg.Store.KeyIndex)
	}

	if cfg.Auth.VerifyTimeout <= 0 {
		return nil, fmt.Errorf("VERIFY_TIMEOUT must be positive")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// splitList parses a comma-separated env value, dropping blanks
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
