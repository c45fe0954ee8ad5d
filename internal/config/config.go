package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Assistant AssistantConfig
	Session   SessionConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WidgetLogFilePath  string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	// Empty disables the turn audit log.
	Connection string
}

// AssistantConfig holds the upstream credentials. They never leave the server.
type AssistantConfig struct {
	APIKey           string
	TranscriptAPIKey string
	ProjectID        string
	VersionID        string
	RuntimeURL       string
	TranscriptURL    string
	Timeout          time.Duration
}

type SessionConfig struct {
	// Signing secret for widget session tokens. Empty disables token checks.
	TokenSecret string
	TokenTTL    time.Duration
	StorageTTL  time.Duration
}

type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	apiKey := getEnv("ASSISTANT_API_KEY", "")
	environment := getEnv("GO_ENV", "development")

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        environment,
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			WidgetLogFilePath:  getEnv("WIDGET_LOG_FILE_PATH", "logs/widget.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Assistant: AssistantConfig{
			APIKey:           apiKey,
			TranscriptAPIKey: getEnv("ASSISTANT_TRANSCRIPT_API_KEY", apiKey),
			ProjectID:        getEnv("ASSISTANT_PROJECT_ID", ""),
			VersionID:        getEnvNonEmpty("ASSISTANT_VERSION_ID", "production"),
			RuntimeURL:       getEnvNonEmpty("ASSISTANT_RUNTIME_URL", "https://general-runtime.voiceflow.com"),
			TranscriptURL:    getEnvNonEmpty("ASSISTANT_TRANSCRIPT_URL", "https://api.voiceflow.com/v2/transcripts"),
			Timeout:          time.Duration(getEnvAsInt("ASSISTANT_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Session: SessionConfig{
			TokenSecret: getEnv("ASSISTANT_SESSION_SECRET", ""),
			TokenTTL:    time.Duration(getEnvAsInt("ASSISTANT_SESSION_TOKEN_TTL_MINUTES", 720)) * time.Minute,
			StorageTTL:  time.Duration(getEnvAsInt("ASSISTANT_SESSION_TTL_MINUTES", 1440)) * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnv("OTEL_ENABLED", "false") == "true",
			Endpoint:    getEnvNonEmpty("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnvNonEmpty("OTEL_SERVICE_NAME", "assistant-proxy-backend"),
			Environment: environment,
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// an explicitly empty value also falls back
func getEnvNonEmpty(key, fallback string) string {
	if value := getEnv(key, ""); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
