package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings, populated from environment variables.
type Config struct {
	Port    string
	DataDir string
	DBPath  string

	WorkerCount    int
	PollInterval   time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	StageTimeout   time.Duration
	StaleAfter     time.Duration

	TempRetention        time.Duration
	PurgeInterval        time.Duration
	PromoteIntermediates bool

	PublicBaseURL string
	PresignSecret string
	PresignTTL    time.Duration

	OpenAIAPIKey string
	TTSModel     string

	YouTubeAccessToken string
}

// Load reads configuration from the environment, falling back to defaults.
func Load() *Config {
	return &Config{
		Port:    getEnv("PORT", "8080"),
		DataDir: getEnv("DATA_DIR", "./data"),
		DBPath:  getEnv("DB_PATH", "./data/shortcast.db"),

		WorkerCount:    getEnvInt("WORKER_COUNT", 2),
		PollInterval:   getEnvDuration("POLL_INTERVAL", time.Second),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		StageTimeout:   getEnvDuration("STAGE_TIMEOUT", 5*time.Minute),
		StaleAfter:     getEnvDuration("STALE_AFTER", 10*time.Minute),

		TempRetention:        getEnvDuration("TEMP_RETENTION", 24*time.Hour),
		PurgeInterval:        getEnvDuration("PURGE_INTERVAL", time.Hour),
		PromoteIntermediates: getEnvBool("PROMOTE_INTERMEDIATES", false),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		PresignSecret: getEnv("PRESIGN_SECRET", "dev-presign-secret"),
		PresignTTL:    getEnvDuration("PRESIGN_TTL", time.Hour),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		TTSModel:     getEnv("TTS_MODEL", "tts-1"),

		YouTubeAccessToken: os.Getenv("YOUTUBE_ACCESS_TOKEN"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
