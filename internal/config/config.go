package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	SkipAuth    bool
	Environment string

	// Remote store. Driver is one of "mysql", "postgres", "mongodb".
	DBDriver string
	DBDSN    string
	MongoURI string
	DBName   string

	// Local snapshot cache directory.
	DataDir string

	SyncIntervalMinutes int
	LogFile             string
	LogRetentionDays    int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),

		DBDriver: getEnv("DB_DRIVER", "mysql"),
		DBDSN:    getEnv("DB_DSN", "root:root@tcp(localhost:3306)/billing?parseTime=true"),
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "billing"),

		DataDir: getEnv("DATA_DIR", filepath.Join("data", "json")),

		SyncIntervalMinutes: getEnvInt("SYNC_INTERVAL_MINUTES", 5),
		LogFile:             getEnv("LOG_FILE", filepath.Join("data", "logs", "billing_api.log")),
		LogRetentionDays:    getEnvInt("LOG_RETENTION_DAYS", 30),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}
