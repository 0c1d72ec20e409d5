package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	Access   AccessConfig
}

type ServerConfig struct {
	Port        string
	Environment string
	RateLimit   RateLimitConfig
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret           string
	AccessExpiration time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// AccessConfig names the permission evaluation policy knobs.
type AccessConfig struct {
	// PermissionFailOpen allows principals with an empty permission set.
	// Enabled by default for onboarding usability; disable in hardened
	// deployments.
	PermissionFailOpen bool
}

type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine in container deployments where everything comes
	// from real environment variables.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	rateLimit, _ := strconv.Atoi(getEnv("RATE_LIMIT", "100"))
	rateLimitWindow, _ := strconv.Atoi(getEnv("RATE_LIMIT_WINDOW", "60"))
	jwtExpiration, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))

	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			RateLimit: RateLimitConfig{
				Enabled: getEnv("RATE_LIMIT_ENABLED", "true") == "true",
				Limit:   rateLimit,
				Window:  time.Duration(rateLimitWindow) * time.Second,
			},
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "aegis"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:           getEnv("JWT_SECRET", "your-secret-key"),
			AccessExpiration: time.Duration(jwtExpiration) * time.Hour,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnv("LOG_PRETTY", "false") == "true",
		},
		Access: AccessConfig{
			PermissionFailOpen: getEnv("PERMISSION_FAIL_OPEN", "true") == "true",
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
