package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	DBMaxOpenConns  int
	AwsAccessKey    string
	AwsSecretKey    string
	AwsRegion       string
	AwsEndpoint     string
	BucketName      string
	EmbedProvider   string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	EmbedModel      string
	EmbedDim        int
	EmbedBatchSize  int
	ChunkSize       int
	ChunkOverlap    int
	PDFExtractor    string
	PdftotextPath   string
	ExtractTimeout  time.Duration
	ExtractMaxBytes int64
	SearchFetchK    int
	SearchResultK   int
	SearchMaxK      int
	QueryCacheSize  int
	QueryCacheTTL   time.Duration
	RedisURL        string
	IngestLeaseTTL  time.Duration
	IngestWorkers   int
	MaxUploadBytes  int64
	CorsOrigins     []string
	LogLevel        string
	LogFormat       string
	Port            string
}

// LoadConfig loads the environment variables (and .env when present) and returns the config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 20),
		AwsAccessKey:    getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:    getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:       getEnv("AWS_REGION", "us-east-2"),
		AwsEndpoint:     getEnv("AWS_ENDPOINT", ""),
		BucketName:      getEnv("BUCKET_NAME", "docs"),
		EmbedProvider:   strings.ToLower(getEnv("EMBED_PROVIDER", "openai")),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbedModel:      getEnv("EMBED_MODEL", ""),
		EmbedDim:        getEnvInt("EMBED_DIM", 0),
		EmbedBatchSize:  getEnvInt("EMBED_BATCH_SIZE", 64),
		ChunkSize:       getEnvInt("CHUNK_SIZE", 5000),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 500),
		PDFExtractor:    strings.ToLower(getEnv("PDF_EXTRACTOR", "pdftotext")),
		PdftotextPath:   getEnv("PDFTOTEXT_PATH", "pdftotext"),
		ExtractTimeout:  getEnvDuration("EXTRACT_TIMEOUT", 120*time.Second),
		ExtractMaxBytes: int64(getEnvInt("EXTRACT_MAX_OUTPUT_MB", 50)) << 20,
		SearchFetchK:    getEnvInt("SEARCH_FETCH_K", 20),
		SearchResultK:   getEnvInt("SEARCH_RESULT_K", 8),
		SearchMaxK:      getEnvInt("SEARCH_MAX_K", 100),
		QueryCacheSize:  getEnvInt("QUERY_CACHE_SIZE", 1024),
		QueryCacheTTL:   getEnvDuration("QUERY_CACHE_TTL", time.Hour),
		RedisURL:        getEnv("REDIS_URL", ""),
		IngestLeaseTTL:  getEnvDuration("INGEST_LEASE_TTL", 15*time.Minute),
		IngestWorkers:   getEnvInt("INGEST_WORKERS", 2),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
		CorsOrigins:     getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		Port:            getEnv("PORT", "8080"),
	}

	cfg.applyEmbedDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default embedding model per provider.
var defaultEmbedModels = map[string]string{
	"openai": "text-embedding-3-small",
	"gemini": "text-embedding-004",
}

// Native output size of the models we know; anything else needs EMBED_DIM.
var knownEmbedDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
	"embedding-001":          768,
	"gemini-embedding-001":   3072,
}

// maxIndexedDim is the largest vector pgvector can put in an HNSW index.
const maxIndexedDim = 2000

// applyEmbedDefaults fills EMBED_MODEL from the provider and EMBED_DIM from
// the model when they are not set.
func (c *Config) applyEmbedDefaults() {
	if c.EmbedModel == "" {
		c.EmbedModel = defaultEmbedModels[c.EmbedProvider]
	}
	if c.EmbedDim <= 0 {
		c.EmbedDim = knownEmbedDims[c.EmbedModel]
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	switch c.EmbedProvider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("EMBED_PROVIDER %q not supported (openai|gemini)", c.EmbedProvider))
	}
	switch {
	case c.EmbedDim <= 0:
		errs = append(errs, fmt.Errorf("EMBED_DIM must be set for embedding model %q", c.EmbedModel))
	case c.EmbedDim > maxIndexedDim:
		errs = append(errs, fmt.Errorf("EMBED_DIM %d exceeds the %d dimensions pgvector can index", c.EmbedDim, maxIndexedDim))
	}
	switch c.PDFExtractor {
	case "pdftotext", "native":
	default:
		errs = append(errs, fmt.Errorf("PDF_EXTRACTOR %q not supported (pdftotext|native)", c.PDFExtractor))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize))
	}
	if c.SearchFetchK <= 0 || c.SearchResultK <= 0 || c.SearchMaxK <= 0 {
		errs = append(errs, errors.New("SEARCH_FETCH_K, SEARCH_RESULT_K and SEARCH_MAX_K must be positive"))
	}
	return errors.Join(errs...)
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
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config value is not a duration, using default", "key", key, "value", v, "default", def)
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
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
