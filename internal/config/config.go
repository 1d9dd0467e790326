package config

import (
	"os"
	"strconv"
)

// AuthConfig holds credentials for the LLM platform token exchange.
// When PersonalToken is set it is used directly and no exchange happens.
type AuthConfig struct {
	AuthURL       string
	ClientID      string
	ClientSecret  string
	Audience      string
	GrantType     string
	PersonalToken string
}

// OpenArenaConfig holds settings for the hosted LLM platform.
type OpenArenaConfig struct {
	BaseURL           string
	WorkflowID        string
	RAGWorkflowID     string
	RequestTimeoutSec int
}

// DatabaseConfig holds warehouse connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	// AllowedTablePrefix limits schema discovery to tables matching this LIKE prefix.
	AllowedTablePrefix string
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AutodocConfig holds settings for the documentation generator service.
type AutodocConfig struct {
	Port           string
	UploadDir      string
	OutputDir      string
	MaxFileSizeKB  int
	MaxTotalSizeMB int
}

// DIAConfig holds settings for the impact assessment service.
type DIAConfig struct {
	Port       string
	UploadsDir string
	StaticDir  string
	// CORSOrigins is a comma-separated allowlist for the browser frontend.
	CORSOrigins string
}

// ChatbotConfig holds settings for the routing chatbot service.
type ChatbotConfig struct {
	Port string
	// ConfidenceThreshold is the minimum classifier confidence for the SQL path.
	ConfidenceThreshold float64
}

// AppConfig is the centralized configuration struct for the suite.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Auth      AuthConfig
	OpenArena OpenArenaConfig
	Database  DatabaseConfig
	MinIO     MinIOConfig
	Autodoc   AutodocConfig
	DIA       DIAConfig
	Chatbot   ChatbotConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		Auth: AuthConfig{
			AuthURL:       getEnv("AUTH_URL", ""),
			ClientID:      getEnv("CLIENT_ID", ""),
			ClientSecret:  getEnv("CLIENT_SECRET", ""),
			Audience:      getEnv("AUDIENCE", ""),
			GrantType:     getEnv("GRANT_TYPE", "client_credentials"),
			PersonalToken: getEnv("PERSONAL_TOKEN", ""),
		},
		OpenArena: OpenArenaConfig{
			BaseURL:           getEnv("OPEN_ARENA_BASE_URL", ""),
			WorkflowID:        getEnv("WORKFLOW_ID", ""),
			RAGWorkflowID:     getEnv("RAG_WORKFLOW_ID", ""),
			RequestTimeoutSec: getEnvInt("OPEN_ARENA_TIMEOUT_SEC", 120),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			AllowedTablePrefix: getEnv("DB_ALLOWED_TABLES", "ONETRUST%"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Autodoc: AutodocConfig{
			Port:           getEnv("AUTODOC_PORT", "5001"),
			UploadDir:      getEnv("AUTODOC_UPLOAD_DIR", "web_uploads"),
			OutputDir:      getEnv("AUTODOC_OUTPUT_DIR", "output"),
			MaxFileSizeKB:  getEnvInt("AUTODOC_MAX_FILE_SIZE_KB", 100),
			MaxTotalSizeMB: getEnvInt("AUTODOC_MAX_TOTAL_SIZE_MB", 5),
		},
		DIA: DIAConfig{
			Port:        getEnv("DIA_PORT", "5002"),
			UploadsDir:  getEnv("DIA_UPLOADS_DIR", "uploads"),
			StaticDir:   getEnv("DIA_STATIC_DIR", "static"),
			CORSOrigins: getEnv("DIA_CORS_ORIGINS", "*"),
		},
		Chatbot: ChatbotConfig{
			Port:                getEnv("CHATBOT_PORT", "5000"),
			ConfidenceThreshold: getEnvFloat("ROUTER_CONFIDENCE_THRESHOLD", 0.36),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
