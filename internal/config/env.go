package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	StoreDriver string
	DatabaseURL string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	S3Endpoint   string

	AnnotationURL   string
	AnnotationToken string
	WebhookURL      string

	AIAPIKey   string
	EmbedModel string

	Port        string
	CORSOrigins []string

	LogLevel  string
	LogPretty bool

	IngestWorkers     int
	IngestQueueSize   int
	IngestParallelism int
	IngestMaxRetries  int
	IngestRetryDelay  time.Duration
	FetchTimeout      time.Duration
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	cfg := &Config{
		StoreDriver:       getEnv("STORE_DRIVER", StoreDriverPostgres),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		AwsAccessKey:      getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:      getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:         getEnv("AWS_REGION", "us-east-2"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		AnnotationURL:     getEnv("ANNOTATION_URL", ""),
		AnnotationToken:   getEnv("ANNOTATION_TOKEN", ""),
		WebhookURL:        getEnv("WEBHOOK_ENDPOINT", ""),
		AIAPIKey:          getEnv("GEMINI_API_KEY", ""),
		EmbedModel:        getEnv("EMBED_MODEL", "text-embedding-004"),
		Port:              getEnv("PORT", "8080"),
		CORSOrigins:       getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvBool("LOG_PRETTY", false),
		IngestWorkers:     getEnvInt("INGEST_WORKERS", 4),
		IngestQueueSize:   getEnvInt("INGEST_QUEUE_SIZE", 64),
		IngestParallelism: getEnvInt("INGEST_PARALLELISM", 4),
		IngestMaxRetries:  getEnvInt("INGEST_MAX_RETRIES", 3),
		IngestRetryDelay:  getEnvDuration("INGEST_RETRY_DELAY", 60*time.Second),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 2*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the app cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL not set")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers)
	}
	if c.IngestMaxRetries < 0 {
		return fmt.Errorf("INGEST_MAX_RETRIES must not be negative, got %d", c.IngestMaxRetries)
	}
	return nil
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
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
