package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the editor service
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`
	BodyLimit       int           `json:"body_limit"`

	// Filesystem layout
	StaticDir   string `json:"static_dir"`
	UploadsDir  string `json:"uploads_dir"`
	ArticlesDir string `json:"articles_dir"`
	MaxFileSize int64  `json:"max_file_size"`

	// Rendering
	SiteOwner string `json:"site_owner"`

	// Redis configuration, only used to serialize index updates across processes
	RedisURL     string        `json:"redis_url"`
	RedisPrefix  string        `json:"redis_prefix"`
	IndexLockTTL time.Duration `json:"index_lock_ttl"`

	// CloudFlare R2 mirror
	R2Endpoint    string        `json:"r2_endpoint"`
	R2AccessKey   string        `json:"r2_access_key"`
	R2SecretKey   string        `json:"r2_secret_key"`
	R2Bucket      string        `json:"r2_bucket"`
	MirrorTimeout time.Duration `json:"mirror_timeout"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// FromEnv reads the configuration without loading .env or validating
func FromEnv() *Config {
	return &Config{
		Port:            getEnv("PORT", "3000"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		BodyLimit:       getEnvAsInt("BODY_LIMIT", 50<<20), // JSON bodies carry whole articles

		StaticDir:   getEnv("STATIC_DIR", "./web/static"),
		UploadsDir:  getEnv("UPLOADS_DIR", "./uploads"),
		ArticlesDir: getEnv("ARTICLES_DIR", "../research/articles"),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10<<20), // 10MB

		SiteOwner: getEnv("SITE_OWNER", ""),

		RedisURL:     getEnv("REDIS_URL", ""),
		RedisPrefix:  getEnv("REDIS_PREFIX", "blog-editor:"),
		IndexLockTTL: getEnvAsDuration("INDEX_LOCK_TTL", 10*time.Second),

		R2Endpoint:    getEnv("R2_ENDPOINT", ""),
		R2AccessKey:   getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey:   getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:      getEnv("R2_BUCKET", ""),
		MirrorTimeout: getEnvAsDuration("MIRROR_TIMEOUT", 15*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// MirrorEnabled reports whether the R2 mirror is configured
func (c *Config) MirrorEnabled() bool {
	return c.R2Endpoint != "" && c.R2Bucket != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.UploadsDir == "" {
		errs = append(errs, errors.New("UPLOADS_DIR must not be empty"))
	}
	if c.ArticlesDir == "" {
		errs = append(errs, errors.New("ARTICLES_DIR must not be empty"))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize))
	}
	if c.BodyLimit <= 0 {
		errs = append(errs, fmt.Errorf("BODY_LIMIT must be positive, got %d", c.BodyLimit))
	}
	if c.MaxFileSize >= int64(c.BodyLimit) {
		errs = append(errs, errors.New("BODY_LIMIT must be larger than MAX_FILE_SIZE"))
	}

	r2 := []string{c.R2Endpoint, c.R2AccessKey, c.R2SecretKey, c.R2Bucket}
	set := 0
	for _, v := range r2 {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(r2) {
		errs = append(errs, errors.New("R2 mirror needs R2_ENDPOINT, R2_ACCESS_KEY, R2_SECRET_ACCESS_KEY and R2_BUCKET together"))
	}

	return errors.Join(errs...)
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsInt64(name string, defaultVal int64) int64 {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}

// ReadyMessage is printed to stdout once the server accepts connections.
// The desktop shell watches for it.
const ReadyMessage = "Blog Editor Server running"
