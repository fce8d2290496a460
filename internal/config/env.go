package config

import (
	"fmt"
	"log"
	"mime"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Content types the extractor can handle. ALLOWED_CONTENT_TYPES may narrow this set, never widen it.
const (
	ContentTypePlainText = "text/plain"
	ContentTypePDF       = "application/pdf"
	ContentTypeDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// SupportedContentTypes lists every type the ingestion pipeline can extract.
var SupportedContentTypes = []string{ContentTypePlainText, ContentTypePDF, ContentTypeDocx}

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"docchat"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Port        string `env:"PORT" envDefault:"8080"`
	APIPrefix   string `env:"API_PREFIX" envDefault:"/api/v1"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5m"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"docchat.db"`
	SslCertPath    string `env:"SSL_CERT_PATH"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"local"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads"`
	AwsAccessKey   string `env:"AWS_ACCESS_KEY"`
	AwsSecretKey   string `env:"AWS_SECRET_KEY"`
	AwsRegion      string `env:"AWS_REGION" envDefault:"us-east-2"`
	BucketName     string `env:"BUCKET_NAME" envDefault:"docchat-docs"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`

	LLMProvider       string        `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMAPIKey         string        `env:"LLM_API_KEY"`
	LLMBaseURL        string        `env:"LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	GenModel          string        `env:"GEN_MODEL" envDefault:"llama-3.1-8b-instant"`
	GenMaxTokens      int           `env:"GEN_MAX_TOKENS" envDefault:"1024"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"60s"`

	ChunkSize        int `env:"CHUNK_SIZE" envDefault:"500"`
	ChunkOverlap     int `env:"CHUNK_OVERLAP" envDefault:"50"`
	ChatHistoryLimit int `env:"CHAT_HISTORY_LIMIT" envDefault:"10"`
	RetrievalTopK    int `env:"RETRIEVAL_TOP_K" envDefault:"3"`

	MaxUploadBytes      int64    `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	AllowedContentTypes []string `env:"ALLOWED_CONTENT_TYPES" envSeparator:","`

	IngestAsync     bool `env:"INGEST_ASYNC" envDefault:"false"`
	IngestWorkers   int  `env:"INGEST_WORKERS" envDefault:"2"`
	IngestQueueSize int  `env:"INGEST_QUEUE_SIZE" envDefault:"64"`
}

// LoadConfig loads the environment (and an optional .env file), parses it and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = append([]string(nil), SupportedContentTypes...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold before the service starts.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d with CHUNK_SIZE %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.ChatHistoryLimit < 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must not be negative, got %d", c.ChatHistoryLimit)
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.RetrievalTopK)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}

	for i, ct := range c.AllowedContentTypes {
		normalized := NormalizeContentType(ct)
		if !isSupported(normalized) {
			return fmt.Errorf("ALLOWED_CONTENT_TYPES contains unsupported type %q", ct)
		}
		c.AllowedContentTypes[i] = normalized
	}

	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}

	switch c.StorageBackend {
	case "local":
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR not set")
		}
	case "s3":
		if c.BucketName == "" {
			return fmt.Errorf("BUCKET_NAME not set")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", c.StorageBackend)
	}

	switch c.LLMProvider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or gemini, got %q", c.LLMProvider)
	}

	if c.IngestAsync && c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive when INGEST_ASYNC is set")
	}
	return nil
}

// IsAllowedContentType reports whether uploads of contentType pass the gate.
func (c *Config) IsAllowedContentType(contentType string) bool {
	ct := NormalizeContentType(contentType)
	for _, allowed := range c.AllowedContentTypes {
		if allowed == ct {
			return true
		}
	}
	return false
}

// NormalizeContentType strips parameters such as charset and lower-cases the media type.
func NormalizeContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func isSupported(contentType string) bool {
	for _, ct := range SupportedContentTypes {
		if ct == contentType {
			return true
		}
	}
	return false
}
