package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Environment   string
	AWS           AWSConfig
	Storage       StorageConfig
	API           APIConfig
	Upload        UploadConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
}

// AWSConfig holds AWS-specific configuration.
type AWSConfig struct {
	Region         string
	VideoBucket    string
	DynamoDBTable  string
	EventsQueueURL string
	CDNDomain      string
	Endpoint       string
	ForcePathStyle bool
}

// StorageConfig selects the object storage backend.
type StorageConfig struct {
	Backend        string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Port      string
	Username  string
	Password  string
	JWTSecret string
}

// UploadConfig holds upload pipeline policy.
type UploadConfig struct {
	MaxFileSizeBytes  int64
	SpoolDir          string
	PlaybackURLExpiry time.Duration
	PipelineTimeout   time.Duration
	ThumbnailQuality  float64
	FFmpegPath        string
	FFprobePath       string
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
}

// Storage backends
const (
	BackendS3    = "s3"
	BackendMinIO = "minio"
)

// Default values
const (
	DefaultPort              = "8080"
	DefaultOTLPEndpoint      = "localhost:4317"
	DefaultRegion            = "us-west-2"
	DefaultMaxFileSizeBytes  = 4 << 30 // 4 GiB
	DefaultSpoolDir          = "/tmp/courtside-uploads"
	DefaultPlaybackURLExpiry = 15 * time.Minute
	DefaultPipelineTimeout   = 2 * time.Hour
	DefaultThumbnailQuality  = 0.8
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "dev"),
		AWS: AWSConfig{
			Region:         getEnv("AWS_REGION", DefaultRegion),
			VideoBucket:    os.Getenv("VIDEO_BUCKET"),
			DynamoDBTable:  os.Getenv("DYNAMODB_TABLE"),
			EventsQueueURL: os.Getenv("EVENTS_QUEUE_URL"),
			CDNDomain:      os.Getenv("CDN_DOMAIN"),
			Endpoint:       os.Getenv("AWS_ENDPOINT_URL"),
			ForcePathStyle: getEnvBool("S3_FORCE_PATH_STYLE", false),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", BackendS3)),
			MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
			MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
			MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		API: APIConfig{
			Port:      getEnv("PORT", DefaultPort),
			Username:  os.Getenv("API_USERNAME"),
			Password:  os.Getenv("API_PASSWORD"),
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Upload: UploadConfig{
			MaxFileSizeBytes:  getEnvInt64("UPLOAD_MAX_FILE_SIZE_BYTES", DefaultMaxFileSizeBytes),
			SpoolDir:          getEnv("UPLOAD_SPOOL_DIR", DefaultSpoolDir),
			PlaybackURLExpiry: getEnvDuration("PLAYBACK_URL_EXPIRY", DefaultPlaybackURLExpiry),
			PipelineTimeout:   getEnvDuration("UPLOAD_PIPELINE_TIMEOUT", DefaultPipelineTimeout),
			ThumbnailQuality:  getEnvFloat("THUMBNAIL_QUALITY", DefaultThumbnailQuality),
			FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:       getEnv("FFPROBE_PATH", "ffprobe"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:5173",
			}),
		},
	}

	return cfg, nil
}

// LoadAPI loads configuration required for the API service.
func LoadAPI() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateAPI validates configuration required for the API service.
func (c *Config) ValidateAPI() error {
	var errs []string

	if c.AWS.VideoBucket == "" {
		errs = append(errs, "VIDEO_BUCKET is required")
	}
	if c.AWS.DynamoDBTable == "" {
		errs = append(errs, "DYNAMODB_TABLE is required")
	}

	switch c.Storage.Backend {
	case BackendS3:
	case BackendMinIO:
		if c.Storage.MinIOEndpoint == "" {
			errs = append(errs, "MINIO_ENDPOINT is required for the minio backend")
		}
		if c.Storage.MinIOAccessKey == "" || c.Storage.MinIOSecretKey == "" {
			errs = append(errs, "MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND must be %q or %q", BackendS3, BackendMinIO))
	}

	if c.Upload.ThumbnailQuality <= 0 || c.Upload.ThumbnailQuality > 1 {
		errs = append(errs, "THUMBNAIL_QUALITY must be in (0, 1]")
	}

	// In production, require explicit credentials
	if c.IsProduction() {
		if c.API.Username == "" {
			errs = append(errs, "API_USERNAME is required in production")
		}
		if c.API.Password == "" {
			errs = append(errs, "API_PASSWORD is required in production")
		}
		if c.API.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required in production")
		}
		if len(c.API.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "prod" || env == "production"
}

// GetAPICredentials returns API credentials with fallback for development.
func (c *Config) GetAPICredentials() (username, password string, err error) {
	username = c.API.Username
	password = c.API.Password

	if username == "" || password == "" {
		if c.IsProduction() {
			return "", "", errors.New("API credentials not configured")
		}
		// Development fallback
		return "coach", "secret", nil
	}

	return username, password, nil
}

// GetJWTSecret returns the JWT secret.
func (c *Config) GetJWTSecret() ([]byte, error) {
	secret := c.API.JWTSecret

	if secret == "" {
		return nil, errors.New("JWT_SECRET is required (set it even for development)")
	}

	if len(secret) < 32 && c.IsProduction() {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}

	return []byte(secret), nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
