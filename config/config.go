package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseDriver   string // postgres or sqlite
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	SQLitePath       string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Embedding service configuration
	Embedding EmbeddingConfig

	// News correlation configuration
	News NewsConfig

	// Ingestion configuration
	Ingestion IngestionConfig

	// Pipeline configuration
	Pipeline PipelineConfig

	// Cron expression for scheduled runs. Empty means run once and exit.
	RunSchedule string
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Endpoint  string
	APIKey    string
	Model     string
	BatchSize int
}

// NewsConfig holds news search service configuration
type NewsConfig struct {
	Endpoint     string
	APIKey       string
	LookbackDays int
}

// IngestionConfig holds question source configuration
type IngestionConfig struct {
	RedditUserAgent    string
	PostsPerSubreddit  int
	StackExchangeKey   string
	QuestionsPerSite   int
	LookbackDays       int
	MinQuestionLength  int
	RequestTimeoutSecs int
}

// PipelineConfig holds clustering and scoring parameters
type PipelineConfig struct {
	MinClusterSize  int
	MinSamples      int
	Epsilon         float64 // DBSCAN neighborhood radius in embedding space
	SignalThreshold float64
	MaxSignals      int
	WeirdPickCount  int
	DryRun          bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		DatabaseDriver:   getEnvOrDefault("DB_DRIVER", "postgres"),
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "curiosity"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "curiosity"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", ""),
		SQLitePath:       getEnvOrDefault("SQLITE_PATH", "curiosity.db"),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Embedding: EmbeddingConfig{
			Endpoint:  getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 100),
		},

		News: NewsConfig{
			Endpoint:     getEnvOrDefault("NEWSAPI_ENDPOINT", "https://newsapi.org/v2"),
			APIKey:       os.Getenv("NEWSAPI_KEY"),
			LookbackDays: getEnvInt("NEWS_LOOKBACK_DAYS", 7),
		},

		Ingestion: IngestionConfig{
			RedditUserAgent:    getEnvOrDefault("REDDIT_USER_AGENT", "CuriosityIntelligence/1.0"),
			PostsPerSubreddit:  getEnvInt("REDDIT_POSTS_PER_SUBREDDIT", 100),
			StackExchangeKey:   os.Getenv("STACKEXCHANGE_KEY"),
			QuestionsPerSite:   getEnvInt("SE_QUESTIONS_PER_SITE", 100),
			LookbackDays:       getEnvInt("INGEST_LOOKBACK_DAYS", 7),
			MinQuestionLength:  getEnvInt("INGEST_MIN_QUESTION_LENGTH", 15),
			RequestTimeoutSecs: getEnvInt("INGEST_REQUEST_TIMEOUT", 30),
		},

		Pipeline: PipelineConfig{
			MinClusterSize:  getEnvInt("PIPELINE_MIN_CLUSTER_SIZE", 3),
			MinSamples:      getEnvInt("PIPELINE_MIN_SAMPLES", 2),
			Epsilon:         getEnvFloat("PIPELINE_EPSILON", 0.75),
			SignalThreshold: getEnvFloat("PIPELINE_SIGNAL_THRESHOLD", 0.70),
			MaxSignals:      getEnvInt("PIPELINE_MAX_SIGNALS", 10),
			WeirdPickCount:  getEnvInt("PIPELINE_WEIRD_PICKS", 3),
			DryRun:          getEnvOrDefault("PIPELINE_DRY_RUN", "false") == "true",
		},

		RunSchedule: os.Getenv("RUN_SCHEDULE"),
	}
}

// WeekStart returns the Monday 00:00 UTC of the week containing t
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekLabel formats a week start time as YYYY-WNN
func WeekLabel(weekStart time.Time) string {
	year, week := weekStart.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
