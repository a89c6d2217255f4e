// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ConversionConfig holds defaults for the conversion pipeline.
type ConversionConfig struct {
	DefaultQuality   int
	DetailThreshold  int
	Workers          int
	Engine           string
	SecondaryDecoder string
	JPEGEncoder      string
	DefaultDPI       float64
	VerifyOutput     bool
	// Concurrency bounds how many files a batch run converts at once.
	Concurrency int
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Backend         string // "s3"|"dir"
	DirRoot         string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PartSizeMB      int
}

type MetricsConfig struct {
	Addr string
}

// Config is the top-level configuration.
type Config struct {
	Logging    LoggingConfig
	Axiom      AxiomConfig
	Conversion ConversionConfig
	Storage    StorageConfig
	Metrics    MetricsConfig
}

// Load reads the given dotenv files (".env" when none are named) into the
// process environment and returns FromEnv. Missing files are ignored;
// variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_tiffconv",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Conversion = ConversionConfig{
		DefaultQuality:   parseInt(getEnv("TIFF_DEFAULT_QUALITY", "85"), 85),
		DetailThreshold:  parseInt(getEnv("TIFF_REPORT_DETAIL_PAGES", "10"), 10),
		Workers:          parseInt(getEnv("TIFF_WORKERS", "1"), 1),
		Engine:           getEnv("TIFF_PDF_ENGINE", "native"),
		SecondaryDecoder: getEnv("TIFF_SECONDARY_DECODER", "collection"),
		JPEGEncoder:      getEnv("TIFF_JPEG_ENCODER", "jpeg"),
		DefaultDPI:       parseFloat(getEnv("TIFF_DEFAULT_DPI", "300"), 300),
		VerifyOutput:     parseBool(getEnv("TIFF_VERIFY_OUTPUT", "false")),
		Concurrency:      parseInt(getEnv("TIFF_CONCURRENCY", "4"), 4),
	}
	if cfg.Conversion.DefaultQuality < 1 || cfg.Conversion.DefaultQuality > 100 {
		cfg.Conversion.DefaultQuality = 85
	}
	if cfg.Conversion.Workers < 1 {
		cfg.Conversion.Workers = 1
	}
	if cfg.Conversion.Concurrency < 1 {
		cfg.Conversion.Concurrency = 1
	}
	if cfg.Conversion.DefaultDPI <= 0 {
		cfg.Conversion.DefaultDPI = 300
	}

	cfg.Storage = StorageConfig{
		Backend:         strings.ToLower(getEnv("STORAGE_BACKEND", "dir")),
		DirRoot:         getEnv("STORAGE_DIR", "."),
		Region:          getEnv("AWS_REGION", "us-east-1"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		UsePathStyle:    parseBool(getEnv("S3_USE_PATH_STYLE", "false")),
		PartSizeMB:      parseInt(getEnv("S3_PART_SIZE_MB", "8"), 8),
	}

	cfg.Metrics = MetricsConfig{
		Addr: getEnv("METRICS_ADDR", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
