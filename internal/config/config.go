package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	ProbeID        string
	ServerURL      string        // MCP endpoint the probe targets
	RequestTimeout time.Duration // overall budget per request/response call
	StreamTimeout  time.Duration // dial + response-header budget for the event stream
	MaxEvents      int           // stop consuming the stream after this many events
	RulesPath      string        // secret-detection rule file; empty means built-in rules
}

func NewConfig() *Config {
	return &Config{
		ProbeID:        uuid.NewString(),
		ServerURL:      getEnv("MCPPROBE_SERVER_URL", "https://mcp.penguinbank.cloud"),
		RequestTimeout: getEnvAsDuration("MCPPROBE_REQUEST_TIMEOUT", 30*time.Second),
		StreamTimeout:  getEnvAsDuration("MCPPROBE_STREAM_TIMEOUT", 60*time.Second),
		MaxEvents:      getEnvAsInt("MCPPROBE_MAX_EVENTS", 10),
		RulesPath:      getEnv("MCPPROBE_RULES", ""),
	}
}

// Helper functions to read environment variables with defaults
func getEnvAsInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
