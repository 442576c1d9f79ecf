package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	Environment string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	JWTSecret     string
	AdminUsername string
	AdminPassword string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisURL      string

	MongoURI      string
	MongoDatabase string

	Timezone         string
	LogLevel         string
	LogFile          string
	LogJSON          bool
	BeatScheduleFile string

	RunLockTTL      time.Duration
	RunLogRetention time.Duration
}

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	lockTTL, err := time.ParseDuration(getEnv("RUN_LOCK_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_LOCK_TTL: %w", err)
	}
	retentionDays, err := strconv.Atoi(getEnv("RUN_LOG_RETENTION_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_LOG_RETENTION_DAYS: %w", err)
	}
	logJSON, err := strconv.ParseBool(getEnv("LOG_JSON", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_JSON: %w", err)
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		DBDriver:         getEnv("DB_DRIVER", "postgres"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBName:           getEnv("DB_NAME", "tenmil"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", "tenmil.db"),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key"),
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    getEnv("ADMIN_PASSWORD", ""),
		RedisHost:        getEnv("REDIS_HOST", ""),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          redisDB,
		MongoURI:         getEnv("MONGODB_URI", ""),
		MongoDatabase:    getEnv("MONGODB_DATABASE", "tenmil"),
		Timezone:         getEnv("TIMEZONE", "UTC"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		LogFile:          getEnv("LOG_FILE", ""),
		LogJSON:          logJSON,
		BeatScheduleFile: getEnv("BEAT_SCHEDULE_FILE", ""),
		RunLockTTL:       lockTTL,
		RunLogRetention:  time.Duration(retentionDays) * 24 * time.Hour,
	}
	cfg.RedisURL = getEnv("REDIS_URL", cfg.buildRedisURL())

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRedisURL assembles redis://[:password@]host:port/db; empty without a host
func (c *Config) buildRedisURL() string {
	if c.RedisHost == "" {
		return ""
	}
	u := url.URL{
		Scheme: "redis",
		Host:   c.RedisHost + ":" + c.RedisPort,
		Path:   "/" + strconv.Itoa(c.RedisDB),
	}
	if c.RedisPassword != "" {
		u.User = url.UserPassword("", c.RedisPassword)
	}
	return u.String()
}

// Location resolves the scheduler timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// InitDB initializes database connection
func InitDB(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		slog.Info("connecting to database", "driver", "sqlite", "path", cfg.SQLitePath)
		dialector = sqlite.Open(cfg.SQLitePath)
	case "postgres":
		// Log connection info (masked for security)
		slog.Info("connecting to database",
			"driver", "postgres",
			"host", maskHost(cfg.DBHost),
			"port", cfg.DBPort,
			"user", cfg.DBUser,
			"dbname", cfg.DBName)
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
			cfg.Timezone,
		)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	logLevel := logger.Info
	if cfg.IsProduction() {
		logLevel = logger.Error
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	slog.Info("database connection verified")
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
