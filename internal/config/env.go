package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type Config struct {
	DatabaseURL string
	SslCertPath string

	ObjectBackend  string // s3 | minio | badger
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	BadgerDir      string

	VectorBackend    string // qdrant | pgvector
	QdrantAddr       string
	QdrantAPIKey     string
	QdrantCollection string

	EmbedProvider  string // gemini | openai
	AIAPIKey       string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	EmbedModel     string
	EmbedDim       int
	EmbedBatchSize int
	EmbedCacheSize int

	RateLimitBackend string // redis | postgres
	RedisAddr        string
	RedisPassword    string
	EmbedRateLimit   int
	EmbedRateWindow  time.Duration

	MaxDocuments      int
	MaxFileSize       int64
	AllowedMimeTypes  []string
	ProcessTimeout    time.Duration
	IngestWorkers     int
	BatchWorkers      int
	IngestMaxAttempts int
	RulesFile         string
	DefaultRules      models.ProcessingRules

	JWTSecret string
	Port      string
}

var defaultMimeTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"application/rtf",
	"application/vnd.oasis.opendocument.text",
	"text/html",
	"text/plain",
	"text/markdown",
	"text/xml",
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		ObjectBackend:  getEnv("OBJECT_BACKEND", "s3"),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "contexta-docs"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		BadgerDir:      getEnv("BADGER_DIR", "./data/objects"),

		VectorBackend:    getEnv("VECTOR_BACKEND", "qdrant"),
		QdrantAddr:       getEnv("QDRANT_ADDR", "localhost:6334"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "contexta_chunks"),

		EmbedProvider:  getEnv("EMBED_PROVIDER", "gemini"),
		AIAPIKey:       getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:       getEnvInt("EMBED_DIM", 768),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 16),
		EmbedCacheSize: getEnvInt("EMBED_CACHE_SIZE", 10000),

		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "postgres"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		EmbedRateLimit:   getEnvInt("EMBED_RATE_LIMIT", 5000),
		EmbedRateWindow:  getEnvDuration("EMBED_RATE_WINDOW", time.Hour),

		MaxDocuments:      getEnvInt("MAX_DOCUMENTS", 100),
		MaxFileSize:       getEnvInt64("MAX_FILE_SIZE", 15<<20),
		AllowedMimeTypes:  getEnvList("ALLOWED_MIME_TYPES", defaultMimeTypes),
		ProcessTimeout:    getEnvDuration("PROCESS_TIMEOUT", time.Hour),
		IngestWorkers:     getEnvInt("INGEST_WORKERS", 4),
		BatchWorkers:      getEnvInt("BATCH_WORKERS", 8),
		IngestMaxAttempts: getEnvInt("INGEST_MAX_ATTEMPTS", 3),
		RulesFile:         getEnv("PROCESSING_RULES_FILE", "processing_rules.yaml"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		Port:      getEnv("PORT", "8080"),
	}

	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		slog.Warn("config: processing rules file unreadable, using defaults", "path", cfg.RulesFile, "err", err)
		rules = DefaultRules()
	}
	cfg.DefaultRules = rules

	if cfg.DatabaseURL == "" {
		slog.Error("config: DATABASE_URL not set")
		os.Exit(1)
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
		slog.Warn("config: not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvInt64(key string, def int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config: not an int64, using default", "key", key, "value", v, "default", def)
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
		slog.Warn("config: not a bool, using default", "key", key, "value", v, "default", def)
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
		slog.Warn("config: not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// getEnvList splits a comma separated value, dropping blanks.
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
	if len(out) == 0 {
		return def
	}
	return out
}
