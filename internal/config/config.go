package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort     string
	DatabaseType   string
	DatabaseURL    string
	DatabasePath   string
	MigrationsPath string

	// Ledger storage: "sql" keeps progress documents in the relational database,
	// "firestore" keeps them in the users collection of a Firebase project.
	LedgerBackend           string
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	FirebaseCredentialsJSON string
	FirebaseAuthEnabled     bool

	SessionDuration     time.Duration
	TransactionAttempts int
	TransactionTimeout  time.Duration
	LedgerPollInterval  time.Duration
	EventRatePerSecond  float64
	EventBurst          int
	SnapshotCacheSize   int

	GoogleClientID       string
	GoogleClientSecret   string
	OAuthRedirectBaseURL string

	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	AppBaseURL   string

	AudioDir string
	TTSURL   string

	MetricsUser string
	MetricsPass string
	CORSOrigins []string

	Debug bool
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	return &Config{
		ServerPort:     getEnv("PORT", "8080"),
		DatabaseType:   getEnv("DATABASE_TYPE", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabasePath:   getEnv("DB_PATH", "./quizzies.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),

		LedgerBackend:           strings.ToLower(getEnv("LEDGER_BACKEND", "sql")),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		FirebaseAuthEnabled:     getEnvBool("FIREBASE_AUTH_ENABLED", false),

		SessionDuration:     getEnvDuration("SESSION_DURATION", 30*24*time.Hour),
		TransactionAttempts: getEnvInt("TRANSACTION_ATTEMPTS", 5),
		TransactionTimeout:  getEnvDuration("TRANSACTION_TIMEOUT", 10*time.Second),
		LedgerPollInterval:  getEnvDuration("LEDGER_POLL_INTERVAL", 2*time.Second),
		EventRatePerSecond:  getEnvFloat("EVENT_RATE_PER_SECOND", 5),
		EventBurst:          getEnvInt("EVENT_BURST", 20),
		SnapshotCacheSize:   getEnvInt("SNAPSHOT_CACHE_SIZE", 1024),

		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectBaseURL: getEnv("OAUTH_REDIRECT_BASE_URL", ""),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Quizzies"),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),

		AudioDir: getEnv("AUDIO_DIR", "./audio"),
		TTSURL:   getEnv("TTS_URL", ""),

		MetricsUser: getEnv("METRICS_USER", ""),
		MetricsPass: getEnv("METRICS_PASS", ""),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		Debug: getEnvBool("DEBUG", false),
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid boolean for %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Printf("Invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		log.Printf("Invalid number for %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Printf("Invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// splitList splits a comma separated value, dropping empty entries
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
