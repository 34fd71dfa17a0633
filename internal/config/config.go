package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// It follows the 12-factor app methodology by prioritizing environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	AI       AIConfig
	S3       S3Config
}

type ServerConfig struct {
	Port        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret     string
	AccessTTL     time.Duration
	GuestTokenTTL time.Duration
}

type AIConfig struct {
	BaseURL             string
	APIKey              string
	Model               string
	ClassifyTimeout     time.Duration
	GenerateTimeout     time.Duration
	ConfidenceThreshold float64
}

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PresignTTL time.Duration
}

// LoadConfig loads configuration from environment variables.
// A local .env file is honored when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "skylearn"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "dev-secret"),
			AccessTTL:     time.Duration(getEnvAsInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			GuestTokenTTL: time.Duration(getEnvAsInt("GUEST_TOKEN_MINUTES", 10)) * time.Minute,
		},
		AI: AIConfig{
			BaseURL:             getEnv("AI_BASE_URL", "http://localhost:11434"),
			APIKey:              getEnv("AI_API_KEY", ""),
			Model:               getEnv("AI_MODEL", "gpt-4o-mini"),
			ClassifyTimeout:     time.Duration(getEnvAsInt("AI_CLASSIFY_TIMEOUT_SECONDS", 10)) * time.Second,
			GenerateTimeout:     time.Duration(getEnvAsInt("AI_GENERATE_TIMEOUT_SECONDS", 15)) * time.Second,
			ConfidenceThreshold: getEnvAsFloat("AI_CONFIDENCE_THRESHOLD", 0.4),
		},
		S3: S3Config{
			Region:     getEnv("S3_REGION", "us-east-1"),
			Bucket:     getEnv("S3_BUCKET", "skylearn-chat-attachments"),
			AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			SecretKey:  getEnv("S3_SECRET_KEY", ""),
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			PresignTTL: time.Duration(getEnvAsInt("S3_PRESIGN_TTL_MINUTES", 15)) * time.Minute,
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
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

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
