package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RunRepository handles database operations for pipeline runs
type RunRepository struct {
	db *Database
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *Database) *RunRepository {
	return &RunRepository{db: db}
}

// InitSchema performs auto-migration for all pipeline tables
func (r *RunRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&Run{},
		&Question{},
		&Cluster{},
		&Signal{},
		&DigestWebhook{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	fmt.Println("✅ Database schema initialized")
	return nil
}

// CreateRun inserts a new run with status "running"
func (r *RunRepository) CreateRun(week string) (*Run, error) {
	run := &Run{
		Week:      week,
		StartedAt: time.Now().UTC(),
		Status:    "running",
	}
	if err := r.db.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run completed and records its counts
func (r *RunRepository) CompleteRun(runID int64, questions, clusters, signals int) error {
	now := time.Now().UTC()
	return r.db.db.Model(&Run{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":             "completed",
		"completed_at":       now,
		"questions_ingested": questions,
		"clusters_created":   clusters,
		"signals_detected":   signals,
	}).Error
}

// FailRun marks a run failed with an error message
func (r *RunRepository) FailRun(runID int64, message string) error {
	now := time.Now().UTC()
	return r.db.db.Model(&Run{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":        "failed",
		"completed_at":  now,
		"error_message": message,
	}).Error
}

// SaveClusters persists a run's clusters and their member questions.
// Returns a map from cluster index to database ID so signals can reference
// their cluster rows.
func (r *RunRepository) SaveClusters(runID int64, clusters []Cluster, questionsByCluster map[int][]Question) (map[int]int64, error) {
	clusterIDs := make(map[int]int64, len(clusters))

	err := r.db.db.Transaction(func(tx *gorm.DB) error {
		for i := range clusters {
			clusters[i].RunID = runID
			if err := tx.Create(&clusters[i]).Error; err != nil {
				return fmt.Errorf("failed to save cluster %d: %w", clusters[i].ClusterIndex, err)
			}
			clusterIDs[clusters[i].ClusterIndex] = clusters[i].ID

			for j := range questionsByCluster[clusters[i].ClusterIndex] {
				q := &questionsByCluster[clusters[i].ClusterIndex][j]
				q.RunID = runID
				q.ClusterID = &clusters[i].ID
				if err := tx.Create(q).Error; err != nil {
					return fmt.Errorf("failed to save question %s: %w", q.ExternalID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return clusterIDs, nil
}

// SaveSignals persists a run's signals
func (r *RunRepository) SaveSignals(runID int64, signals []Signal) error {
	return r.db.db.Transaction(func(tx *gorm.DB) error {
		for i := range signals {
			signals[i].RunID = runID
			signals[i].CreatedAt = time.Now().UTC()
			if err := tx.Create(&signals[i]).Error; err != nil {
				return fmt.Errorf("failed to save signal for %q: %w", signals[i].CanonicalQuestion, err)
			}
		}
		return nil
	})
}

// HistoricalCounts returns cluster member counts from the most recent
// completed run, keyed by the normalized canonical-question prefix.
// Used exclusively by the velocity and novelty calculations. An empty map
// (cold start) is not an error.
func (r *RunRepository) HistoricalCounts() (map[string]int, error) {
	var lastRun Run
	err := r.db.db.
		Where("status = ?", "completed").
		Order("completed_at DESC").
		First(&lastRun).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up last completed run: %w", err)
	}

	var clusters []Cluster
	if err := r.db.db.Where("run_id = ?", lastRun.ID).Find(&clusters).Error; err != nil {
		return nil, fmt.Errorf("failed to load historical clusters: %w", err)
	}

	historical := make(map[string]int, len(clusters))
	for _, c := range clusters {
		historical[HistoricalKey(c.CanonicalQuestion)] = c.QuestionCount
	}
	return historical, nil
}

// GetSignalsForWeek returns all signals for a week label, sorted by score
func (r *RunRepository) GetSignalsForWeek(week string) ([]Signal, error) {
	var signals []Signal
	err := r.db.db.
		Joins("JOIN runs ON runs.id = signals.run_id").
		Where("runs.week = ? AND runs.status = ?", week, "completed").
		Order("signals.final_score DESC").
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load signals for week %s: %w", week, err)
	}
	return signals, nil
}

// CreateWebhook registers a digest webhook endpoint
func (r *RunRepository) CreateWebhook(hook *DigestWebhook) error {
	if err := r.db.db.Create(hook).Error; err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// GetActiveWebhooks returns all webhooks currently enabled for delivery
func (r *RunRepository) GetActiveWebhooks() ([]DigestWebhook, error) {
	var hooks []DigestWebhook
	if err := r.db.db.Where("is_active = ?", true).Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}
	return hooks, nil
}

// TouchWebhook records a successful delivery time for a webhook
func (r *RunRepository) TouchWebhook(id int64) error {
	now := time.Now().UTC()
	return r.db.db.Model(&DigestWebhook{}).Where("id = ?", id).Update("last_sent", now).Error
}
