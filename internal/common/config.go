package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Registry RegistryConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds the bookkeeping store configuration.
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// RegistryConfig points at the read-only ERP purchase-order tables.
// Empty DSN means the registry lives in the bookkeeping database.
type RegistryConfig struct {
	Driver       string
	DSN          string
	BusinessUnit string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftotext       string
	Pdftoppm        string
	Tesseract       string
	TessdataDir     string
	Language        string
	DPI             int
	PreviewDPI      int
	MaxPages        int
	MaxPreviewBytes int
	MinTextLength   int
	Timeout         time.Duration
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL          string
	Model            string
	APIKey           string
	Temperature      float32
	Timeout          time.Duration
	RequestsPerMin   int
	MaxToolRounds    int
	BreakerFailures  int
	BreakerOpenDelay time.Duration
}

// PipelineConfig holds run and review settings.
type PipelineConfig struct {
	InboxDirs         []string
	DuplicatesDirName string
	OverlaysPath      string
	MinConfidence     float64
	TestMode          bool
	ActuatorURL       string
	ActuatorTimeout   time.Duration
	ModelReview       bool
	WatchDebounce     time.Duration
}

// LoadEnvFile preloads variables from a .env file; a missing file is not an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return WrapError(err, "load "+p)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	dbDriver := getEnv("DB_DRIVER", "postgres")
	return &Config{
		Database: DatabaseConfig{
			Driver:           dbDriver,
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Registry: RegistryConfig{
			Driver:       getEnv("PO_REGISTRY_DRIVER", dbDriver),
			DSN:          getEnv("PO_REGISTRY_URL", ""),
			BusinessUnit: getEnv("PO_BUSINESS_UNIT", "KERNH"),
		},
		Server: ServerConfig{
			GRPCAddr:    getEnv("GRPC_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		OCR: OCRConfig{
			Pdftotext:       getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:        getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:       getEnv("TESSERACT_CMD", "tesseract"),
			TessdataDir:     getEnv("TESSDATA_PREFIX", ""),
			Language:        getEnv("OCR_LANG", "eng"),
			DPI:             getEnvAsInt("OCR_DPI", 300),
			PreviewDPI:      getEnvAsInt("OCR_PREVIEW_DPI", 140),
			MaxPages:        getEnvAsInt("OCR_MAX_PAGES", 5),
			MaxPreviewBytes: getEnvAsInt("OCR_MAX_PREVIEW_BYTES", 750_000),
			MinTextLength:   getEnvAsInt("OCR_MIN_TEXT_LENGTH", 16),
			Timeout:         getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
		},
		LLM: LLMConfig{
			BaseURL:          getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:            getEnv("OPENAI_MODEL", "gpt-5-mini"),
			APIKey:           getEnv("OPENAI_API_KEY", ""),
			Temperature:      getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:          getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
			RequestsPerMin:   getEnvAsInt("OPENAI_RPM", 120),
			MaxToolRounds:    getEnvAsInt("OPENAI_MAX_TOOL_ROUNDS", 6),
			BreakerFailures:  getEnvAsInt("OPENAI_BREAKER_FAILURES", 5),
			BreakerOpenDelay: getEnvAsDuration("OPENAI_BREAKER_OPEN", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			InboxDirs:         getEnvAsList("INBOX_DIRS"),
			DuplicatesDirName: getEnv("DUPLICATES_DIR_NAME", "Duplicates"),
			OverlaysPath:      getEnv("VENDOR_OVERLAYS", "config/vendors.yaml"),
			MinConfidence:     getEnvAsFloat64("REVIEW_MIN_CONFIDENCE", 0.6),
			TestMode:          getEnvAsBool("TEST_MODE", true),
			ActuatorURL:       getEnv("ACTUATOR_URL", ""),
			ActuatorTimeout:   getEnvAsDuration("ACTUATOR_TIMEOUT", 10*time.Minute),
			ModelReview:       getEnvAsBool("REVIEW_WITH_MODEL", true),
			WatchDebounce:     getEnvAsDuration("WATCH_DEBOUNCE", 5*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits on the OS list separator and commas.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == os.PathListSeparator
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("DB_URL", c.Database.DSN, Required)
	v.Field("DB_DRIVER", c.Database.Driver, OneOf("postgres", "sqlite"))
	v.Field("PO_REGISTRY_DRIVER", c.Registry.Driver, OneOf("postgres", "sqlite"))
	v.Field("OPENAI_API_KEY", c.LLM.APIKey, Required)
	v.Field("OPENAI_MODEL", c.LLM.Model, Required)
	v.Field("REVIEW_MIN_CONFIDENCE", c.Pipeline.MinConfidence, Between(0, 1))
	v.Field("OCR_MAX_PREVIEW_BYTES", c.OCR.MaxPreviewBytes, Positive)
	v.Field("OCR_DPI", c.OCR.DPI, Positive)
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
