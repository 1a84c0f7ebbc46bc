package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string
	JWTSecret    string

	// Ingestion pipeline knobs.
	EmbedRetryAttempts int           // per-batch retry ceiling before the run fails
	EmbedRetryBase     time.Duration // base delay for exponential backoff
	EmbedRateLimit     float64       // embedding calls per second, 0 disables pacing
	HardTokenLimit     int           // embedding model input ceiling; chunks above this are a defect
	WatchdogInterval   time.Duration // how often the staleness reconciler runs
	ProcessingStaleAge time.Duration // documents processing longer than this are failed
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "contexta-docs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		EmbedRetryAttempts: getEnvInt("EMBED_RETRY_ATTEMPTS", 3),
		EmbedRetryBase:     getEnvDuration("EMBED_RETRY_BASE", time.Second),
		EmbedRateLimit:     getEnvFloat("EMBED_RATE_LIMIT", 10),
		HardTokenLimit:     getEnvInt("HARD_TOKEN_LIMIT", 2048),
		WatchdogInterval:   getEnvDuration("WATCHDOG_INTERVAL", time.Minute),
		ProcessingStaleAge: getEnvDuration("PROCESSING_STALE_AGE", 15*time.Minute),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
