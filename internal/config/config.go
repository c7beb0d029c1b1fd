package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds runtime settings read from the environment.
type Config struct {
	Port        string
	Environment string
	// BaseURL prefixes every generated link. Empty means derive it from the
	// incoming request.
	BaseURL string

	// StoreType is one of memory, postgres or mongo.
	StoreType string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	MongoURI string
	MongoDB  string

	// RedisAddr enables the asynq queue for async searches. Empty runs
	// searches in-process.
	RedisAddr string

	AsyncSearch bool
	CatalogPath string
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	return Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", ""), "/"),
		StoreType:   getEnv("STORE_TYPE", "memory"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBName:      getEnv("DB_NAME", "tasking"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "tasking"),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		AsyncSearch: getBool("ASYNC_SEARCH", true),
		CatalogPath: getEnv("CATALOG_PATH", ""),
	}
}

// PostgresDSN builds the connection string from the DB_* settings. User and
// password are escaped so any character may appear in them.
func (c Config) PostgresDSN() string {
	user := url.User(c.DBUser)
	if c.DBPassword != "" {
		user = url.UserPassword(c.DBUser, c.DBPassword)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

func (c Config) Development() bool { return c.Environment == "development" }

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.StoreType {
	case "memory", "postgres", "mongo":
	default:
		return fmt.Errorf("unknown STORE_TYPE %q", c.StoreType)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT %q is not a number", c.Port)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}
