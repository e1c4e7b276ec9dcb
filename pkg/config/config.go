package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL      string
	APIKey         string
	Domain         string
	DataDir        string
	Environment    string
	RequestTimeout time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerURL:      getEnv("CHAT_SERVER_URL", "http://localhost:8080"),
		APIKey:         getEnv("CHAT_API_KEY", ""),
		Domain:         getEnv("CHAT_DOMAIN", "localhost"),
		DataDir:        getEnv("CHAT_DATA_DIR", "./chatdata"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		RequestTimeout: getEnvAsDuration("CHAT_REQUEST_TIMEOUT_MS", 15000),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultMillis int64) time.Duration {
	millis := defaultMillis
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			millis = parsed
		}
	}
	return time.Duration(millis) * time.Millisecond
}
