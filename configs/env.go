package configs

import (
	"fmt"
	"os"
	"strconv"

	"github.com/trackvision/tv-shared-go/env"
)

// Config holds all configuration for the EPCIS validation service
type Config struct {
	// Server
	Port   string
	APIKey string // API key for authenticating requests

	// MySQL Database
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSL      bool

	// Submission storage
	StorageType      string // "local" or "http"
	StorageBasePath  string // root directory for local storage
	AssetStoreURL    string // base URL for the HTTP asset store
	AssetStoreAPIKey string

	// File watcher
	WatchDir         string
	ArchiveDir       string
	WatchSettleDelay int // seconds to wait for a file to finish writing

	// Remediation email agent
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int
	GmailLabel         string
	RemediationSender  string

	// Pipeline Settings
	RevalidationBatchSize int
	FailureThreshold      float64

	// GCP Configuration (for logs viewer)
	GCPProjectID    string
	CloudRunService string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load secrets using env.GetSecret (tries mounted file first, then env var)

	// Database password (optional for local dev)
	dbPassword, _ := env.GetSecret("DB_PASSWORD")

	// API key for auth (optional - if not set, auth is disabled)
	apiKey, _ := env.GetSecret("API_KEY")

	// Asset store key is only needed for HTTP storage
	assetStoreAPIKey, _ := env.GetSecret("ASSET_STORE_API_KEY")

	// Anthropic key is only needed when the remediation agent runs
	anthropicAPIKey, _ := env.GetSecret("ANTHROPIC_API_KEY")

	cfg := &Config{
		// Server
		Port:   getEnv("PORT", "8080"),
		APIKey: apiKey,

		// Database
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBName:     getEnv("DB_NAME", "epcis_local"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: dbPassword,
		DBSSL:      getEnvBool("DB_SSL", false),

		// Storage
		StorageType:      getEnv("STORAGE_TYPE", "local"),
		StorageBasePath:  getEnv("STORAGE_BASE_PATH", "data/submissions"),
		AssetStoreURL:    os.Getenv("ASSET_STORE_URL"),
		AssetStoreAPIKey: assetStoreAPIKey,

		// Watcher
		WatchDir:         os.Getenv("WATCH_DIR"),
		ArchiveDir:       getEnv("ARCHIVE_DIR", "data/archive"),
		WatchSettleDelay: getEnvInt("WATCH_SETTLE_DELAY", 2),

		// Remediation agent
		AnthropicAPIKey:    anthropicAPIKey,
		AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		AnthropicMaxTokens: getEnvInt("ANTHROPIC_MAX_TOKENS", 1024),
		GmailLabel:         getEnv("GMAIL_LABEL", "epcis-failures"),
		RemediationSender:  os.Getenv("REMEDIATION_SENDER"),

		// Pipeline Settings
		RevalidationBatchSize: getEnvInt("REVALIDATION_BATCH_SIZE", 50),
		FailureThreshold:      getEnvFloat("FAILURE_THRESHOLD", 0.5),

		// GCP Configuration
		GCPProjectID:    os.Getenv("GCP_PROJECT_ID"),
		CloudRunService: os.Getenv("CLOUD_RUN_SERVICE"),
	}

	// Validate required fields
	switch cfg.StorageType {
	case "local":
		if cfg.StorageBasePath == "" {
			return nil, fmt.Errorf("STORAGE_BASE_PATH is required for local storage")
		}
	case "http":
		if cfg.AssetStoreURL == "" {
			return nil, fmt.Errorf("ASSET_STORE_URL is required for http storage")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_TYPE: %s", cfg.StorageType)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
