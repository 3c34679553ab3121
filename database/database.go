// Package database provides database connection management for the
// curiosity-intelligence signal pipeline.
//
// This package includes:
//   - Database connection management using GORM with PostgreSQL or SQLite
//   - Run/Question/Cluster/Signal persistence via a repository
//   - Historical cluster count lookups for velocity and novelty scoring
//
// Key Concepts:
//   - One Run row per weekly pipeline execution
//   - Clusters and Signals are written once per run and never updated
//   - Historical counts are keyed by a normalized canonical-question prefix
//
// Data Models:
//
//	All data models (Run, Question, Cluster, Signal, DigestWebhook) are defined
//	in the models_pkg package to avoid circular import dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "curiosity-intelligence/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes a PostgreSQL database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// ConnectSQLite opens a local SQLite database for development runs
func ConnectSQLite(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HistoricalKey derives the historical lookup key for a canonical question
func HistoricalKey(canonicalQuestion string) string {
	return models.HistoricalKey(canonicalQuestion)
}

// Type aliases so callers can reference models through the database package.
type Run = models.Run
type Question = models.Question
type Cluster = models.Cluster
type Signal = models.Signal
type DigestWebhook = models.DigestWebhook
