package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
// Provider credentials are not part of it; they are read per job through
// config.ProviderSource.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBMaxConns         int
	JWTSecret          string
	AutoMigrate        bool
	UploadDir          string
	PublicUploadPrefix string
	StorageBackend     string
	MinIOEndpoint      string
	MinIOAccessKey     string
	MinIOSecretKey     string
	MinIOUseSSL        bool
	MinIORegion        string
	MinIOBucketPrefix  string
	RedisAddr          string
	RedisPassword      string
	RedisStream        string
	GeoIPDBPath        string
	DefaultLocale      string
	ProviderConfigFile string
	CORSAllowedOrigins []string
	GenerationCost     int
	MaxUploadBytes     int64
	JobTimeout         time.Duration
	DownloadTimeout    time.Duration
	ShutdownGrace      time.Duration
	ReconcileSchedule  string
	ReconcileStale     time.Duration
	WorkerMetricsAddr  string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8000"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 20),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AutoMigrate:        getEnvBool("AUTO_MIGRATE", false),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		PublicUploadPrefix: getEnv("PUBLIC_UPLOAD_PREFIX", "/uploads"),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		MinIOEndpoint:      os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		MinIORegion:        getEnv("MINIO_REGION", "us-east-1"),
		MinIOBucketPrefix:  getEnv("MINIO_BUCKET_PREFIX", "petsphoto-"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisStream:        getEnv("REDIS_STREAM", "petsphoto:jobs"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
		ProviderConfigFile: os.Getenv("PROVIDER_CONFIG_FILE"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		GenerationCost:     getEnvInt("GENERATION_COST", 1),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		JobTimeout:         time.Second * time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 600)),
		DownloadTimeout:    time.Second * time.Duration(getEnvInt("DOWNLOAD_TIMEOUT_SECONDS", 30)),
		ShutdownGrace:      time.Second * time.Duration(getEnvInt("SHUTDOWN_GRACE_SECONDS", 30)),
		ReconcileSchedule:  getEnv("RECONCILE_SCHEDULE", "@every 1m"),
		ReconcileStale:     time.Second * time.Duration(getEnvInt("RECONCILE_STALE_AFTER_SECONDS", 900)),
		WorkerMetricsAddr:  os.Getenv("WORKER_METRICS_ADDR"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.GenerationCost <= 0 {
		return nil, fmt.Errorf("GENERATION_COST must be positive")
	}

	switch cfg.StorageBackend {
	case "local":
	case "minio":
		if cfg.MinIOEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	cfg.PublicUploadPrefix = "/" + strings.Trim(cfg.PublicUploadPrefix, "/")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
