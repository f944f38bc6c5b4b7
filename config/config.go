package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Race configuration
	AutoStartPlayers   int
	AutoStartDelay     time.Duration
	ManualStartDelay   time.Duration
	CreatorOnlyStart   bool
	QuoteRetryDelay    time.Duration
	ResultWriteRetries int

	// Cache configuration
	RosterCacheTTL time.Duration

	// Lobby rate limiting
	LobbyCreateLimit  int
	LobbyCreateWindow time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "typerace-server"),

		// Race
		AutoStartPlayers:   getEnvAsInt("RACE_AUTO_START_PLAYERS", 3),
		AutoStartDelay:     getEnvAsDuration("RACE_AUTO_START_DELAY", "10s"),
		ManualStartDelay:   getEnvAsDuration("RACE_MANUAL_START_DELAY", "5s"),
		CreatorOnlyStart:   getEnvAsBool("RACE_CREATOR_ONLY_START", false),
		QuoteRetryDelay:    getEnvAsDuration("RACE_QUOTE_RETRY_DELAY", "1s"),
		ResultWriteRetries: getEnvAsInt("RACE_RESULT_RETRIES", 3),

		// Cache
		RosterCacheTTL: getEnvAsDuration("ROSTER_CACHE_TTL", "1h"),

		// Lobby
		LobbyCreateLimit:  getEnvAsInt("LOBBY_CREATE_LIMIT", 10),
		LobbyCreateWindow: getEnvAsDuration("LOBBY_CREATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

// Defaults returns the configuration used when no environment is present.
// Tests start from it and override the timings they care about.
func Defaults() *Config {
	return &Config{
		Port:               "8090",
		Environment:        "development",
		RedisURL:           "localhost:6379",
		PubNubUserID:       "typerace-server",
		AutoStartPlayers:   3,
		AutoStartDelay:     10 * time.Second,
		ManualStartDelay:   5 * time.Second,
		QuoteRetryDelay:    time.Second,
		ResultWriteRetries: 3,
		RosterCacheTTL:     time.Hour,
		LobbyCreateLimit:   10,
		LobbyCreateWindow:  time.Minute,
		EnableMetrics:      true,
		MetricsPort:        "9090",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
