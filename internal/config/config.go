package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers selectable with STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// MinRetention is the smallest in-memory message window the ledger may keep.
const MinRetention = 10000

// MaxHistoryLimit bounds the history returned when a conversation is opened.
const MaxHistoryLimit = 50

// Config holds all configuration for the server.
type Config struct {
	Port string
	Env  string

	JWTSecret string
	TokenTTL  time.Duration

	StoreDriver string
	DBDSN       string
	RedisAddr   string
	RedisURL    string

	CORSOrigin string
	AuthURL    string // optional remote identity lookup

	MessageRetention  int
	HistoryLimit      int
	ConversationLimit int
	MaxMessageLength  int
}

// Load reads configuration from environment variables, loading a .env file
// first when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		TokenTTL:          getDuration("TOKEN_TTL", 12*time.Hour),
		StoreDriver:       getEnv("STORE_DRIVER", DriverMemory),
		DBDSN:             os.Getenv("DB_DSN"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisURL:          os.Getenv("REDIS_URL"),
		CORSOrigin:        getEnv("CORS_ORIGIN", "*"),
		AuthURL:           os.Getenv("AUTH_URL"),
		MessageRetention:  getInt("MESSAGE_RETENTION", MinRetention),
		HistoryLimit:      getInt("HISTORY_LIMIT", MaxHistoryLimit),
		ConversationLimit: getInt("CONVERSATION_LIMIT", 30),
		MaxMessageLength:  getInt("MAX_MESSAGE_LENGTH", 1000),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate checks the configuration and fills development defaults.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return errors.New("JWT_SECRET is required outside development")
		}
		c.JWTSecret = "dev-secret"
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required for the postgres driver")
		}
	case DriverRedis:
		if c.RedisAddr == "" && c.RedisURL == "" {
			return errors.New("REDIS_ADDR or REDIS_URL is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.MessageRetention < MinRetention {
		c.MessageRetention = MinRetention
	}
	if c.HistoryLimit <= 0 || c.ConversationLimit <= 0 || c.MaxMessageLength <= 0 {
		return errors.New("HISTORY_LIMIT, CONVERSATION_LIMIT and MAX_MESSAGE_LENGTH must be positive")
	}
	if c.HistoryLimit > MaxHistoryLimit {
		c.HistoryLimit = MaxHistoryLimit
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
