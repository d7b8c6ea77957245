package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	JWTSecret     string
	MongoURI      string
	DBName        string
	SkipAuth      bool
	Environment   string
	AppId         string
	DefaultTenant string

	// Escalation scanner schedule (standard cron expression)
	EscalationCron string

	// Optional external SQL source for entity name lookups.
	// Empty driver disables the connector.
	EntitySourceDriver string // "postgres" or "mysql"
	EntitySourceDSN    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		JWTSecret:          getEnv("JWT_SECRET", "secret"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:             getEnv("DB_NAME", "go-tpm"),
		SkipAuth:           getEnv("SKIP_AUTH", "false") == "true",
		Environment:        getEnv("ENVIRONMENT", "development"),
		AppId:              getEnv("APP_ID", "go-tpm"),
		DefaultTenant:      getEnv("DEFAULT_TENANT", "default"),
		EscalationCron:     getEnv("ESCALATION_CRON", "*/15 * * * *"),
		EntitySourceDriver: getEnv("ENTITY_SOURCE_DRIVER", ""),
		EntitySourceDSN:    getEnv("ENTITY_SOURCE_DSN", ""),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
