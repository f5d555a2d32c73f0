package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	LogLevel    string

	// Shared secrets checked on every non-health request
	BridgeToken string
	DebugToken  string

	// Bridge behaviour
	PollInterval    time.Duration
	MatchGrace      time.Duration
	ResyncTolerance time.Duration
	StreamInterval  time.Duration

	// Redis status mirror; empty URL disables it
	RedisURL  string
	RedisDB   int
	StatusTTL time.Duration

	// Dashboard origins allowed by CORS; empty disables the middleware
	CORSOrigins []string
}

// LoadConfig reads the environment after loading envFiles (default .env).
// Missing files are ignored.
func LoadConfig(envFiles ...string) *Config {
	_ = godotenv.Load(envFiles...)

	return &Config{
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		BridgeToken: strings.TrimSpace(os.Getenv("BRIDGE_TOKEN")),
		DebugToken:  strings.TrimSpace(os.Getenv("DEBUG_TOKEN")),

		PollInterval:    getEnvAsSeconds("POLL_INTERVAL_SECONDS", 30),
		MatchGrace:      getEnvAsSeconds("MATCH_GRACE_SECONDS", 300),
		ResyncTolerance: getEnvAsSeconds("RESYNC_TOLERANCE_SECONDS", 5),
		StreamInterval:  getEnvAsSeconds("STREAM_INTERVAL_SECONDS", 5),

		RedisURL:  strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisDB:   getEnvAsInt("REDIS_DB", 0),
		StatusTTL: getEnvAsSeconds("STATUS_TTL_SECONDS", 120),

		CORSOrigins: getEnvAsList("CORS_ORIGINS"),
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvAsSeconds rejects non-positive values so a typo cannot turn a ticker interval into zero.
func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	n := getEnvAsInt(key, defaultSeconds)
	if n <= 0 {
		n = defaultSeconds
	}
	return time.Duration(n) * time.Second
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
