package models

import (
	"strings"
	"time"
)

// Run represents a single weekly pipeline execution.
// A run groups every question, cluster, and signal produced in one batch
// under a week label, and tracks lifecycle status.
//
// Key Fields:
//   - Week: week identifier in YYYY-WNN format (indexed for historical lookups)
//   - Status: running, completed, or failed
//   - QuestionsIngested/ClustersCreated/SignalsDetected: counts set on completion
//   - ErrorMessage: populated only for failed runs
//
// Lifecycle:
//   - Created with status "running" at pipeline start
//   - Updated once with counts and status "completed" (or "failed")
//   - Never mutated by any other component afterward
type Run struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Week              string     `gorm:"size:10;index;not null" json:"week"`
	StartedAt         time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	QuestionsIngested int        `gorm:"default:0" json:"questions_ingested"`
	ClustersCreated   int        `gorm:"default:0" json:"clusters_created"`
	SignalsDetected   int        `gorm:"default:0" json:"signals_detected"`
	Status            string     `gorm:"size:20;index;default:running" json:"status"` // running, completed, failed
	ErrorMessage      *string    `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}

// Question represents one ingested item from a question platform.
// Immutable once ingested; owned by the run that created it.
//
// Key Fields:
//   - ExternalID: platform-scoped post/question identifier
//   - Platform: source platform tag (reddit, stackexchange)
//   - RawText/NormalizedText: original and cleaned question text
//   - Embedding: JSON-serialized embedding vector
//   - Upvotes/Comments/Views: engagement counts, defaulted to zero when the
//     source omits them
type Question struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID             int64      `gorm:"index;not null" json:"run_id"`
	ClusterID         *int64     `gorm:"index" json:"cluster_id,omitempty"`
	ExternalID        string     `gorm:"size:100;index;not null" json:"external_id"`
	Platform          string     `gorm:"size:50;index;not null" json:"platform"`
	SourceURL         string     `gorm:"type:text" json:"source_url"`
	RawText           string     `gorm:"type:text;not null" json:"raw_text"`
	NormalizedText    string     `gorm:"type:text" json:"normalized_text"`
	Embedding         string     `gorm:"type:text" json:"-"` // JSON-serialized []float64
	Upvotes           int        `gorm:"default:0" json:"upvotes"`
	Comments          int        `gorm:"default:0" json:"comments"`
	Views             int        `gorm:"default:0" json:"views"`
	ExternalCreatedAt *time.Time `json:"external_created_at,omitempty"`
}

// TableName specifies the table name for Question
func (Question) TableName() string {
	return "questions"
}

// Cluster represents a group of semantically equivalent questions in one run.
// Created once by the clusterer and never mutated afterward.
//
// Key Fields:
//   - ClusterIndex: numeric identifier unique within the run, not across runs
//   - CanonicalQuestion: member text closest to the centroid, used as label
//     and as the historical lookup key source
//   - Centroid: JSON-serialized coordinate-wise mean of member embeddings
//   - PlatformCounts: JSON map of platform -> member count
//   - TotalEngagement: sum of upvotes+comments across members
type Cluster struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID              int64      `gorm:"index;not null" json:"run_id"`
	ClusterIndex       int        `gorm:"not null" json:"cluster_index"`
	CanonicalQuestion  string     `gorm:"type:text;not null" json:"canonical_question"`
	Centroid           string     `gorm:"type:text" json:"-"` // JSON-serialized []float64
	QuestionCount      int        `gorm:"default:0" json:"question_count"`
	CrossPlatformCount int        `gorm:"default:0" json:"cross_platform_count"`
	TotalEngagement    int        `gorm:"default:0" json:"total_engagement"`
	PlatformCounts     string     `gorm:"type:text" json:"platform_counts"` // JSON map
	EarliestSeen       *time.Time `json:"earliest_seen,omitempty"`
	LatestSeen         *time.Time `json:"latest_seen,omitempty"`
}

// TableName specifies the table name for Cluster
func (Cluster) TableName() string {
	return "clusters"
}

// Signal represents a scored judgment about one cluster.
//
// Key Fields:
//   - VelocityScore/CrossPlatformScore/EngagementScore/NoveltyScore: component
//     scores in [0,1]
//   - WeirdnessBonus: additive bonus, capped at 0.20
//   - FinalScore: weighted sum clamped to [0,1]
//   - Tier: breakout, strong, signal, or noise
//   - VelocityPct: week-over-week percent change in cluster member count
//   - NewsTrigger: optional JSON news enrichment, attached before persistence
type Signal struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID              int64     `gorm:"index;not null" json:"run_id"`
	ClusterID          *int64    `gorm:"index" json:"cluster_id,omitempty"`
	CanonicalQuestion  string    `gorm:"type:text;not null" json:"canonical_question"`
	VelocityScore      float64   `gorm:"default:0" json:"velocity_score"`
	CrossPlatformScore float64   `gorm:"default:0" json:"cross_platform_score"`
	EngagementScore    float64   `gorm:"default:0" json:"engagement_score"`
	NoveltyScore       float64   `gorm:"default:0" json:"novelty_score"`
	WeirdnessBonus     float64   `gorm:"default:0" json:"weirdness_bonus"`
	FinalScore         float64   `gorm:"index;default:0" json:"final_score"`
	Tier               string    `gorm:"size:20;default:noise" json:"tier"`
	IsSignal           bool      `gorm:"default:false" json:"is_signal"`
	VelocityPct        float64   `gorm:"default:0" json:"velocity_pct"`
	QuestionCount      int       `gorm:"default:0" json:"question_count"`
	PlatformCount      int       `gorm:"default:0" json:"platform_count"`
	TotalEngagement    int       `gorm:"default:0" json:"total_engagement"`
	SampleQuestions    string    `gorm:"type:text" json:"sample_questions"`       // JSON array
	NewsTrigger        *string   `gorm:"type:text" json:"news_trigger,omitempty"` // JSON object
	CreatedAt          time.Time `json:"created_at"`
}

// TableName specifies the table name for Signal
func (Signal) TableName() string {
	return "signals"
}

// HistoricalKey derives the lookup key that matches a cluster to its
// prior-week counterpart: the first 50 characters of the canonical question,
// lowercased and whitespace-trimmed.
func HistoricalKey(canonicalQuestion string) string {
	runes := []rune(canonicalQuestion)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return strings.TrimSpace(strings.ToLower(string(runes)))
}

// DigestWebhook represents a registered webhook endpoint that receives the
// ranked signal digest when a run completes.
type DigestWebhook struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string     `gorm:"size:100" json:"name"`
	URL       string     `gorm:"type:text;not null" json:"url"`
	MinTier   string     `gorm:"size:20;default:signal" json:"min_tier"` // lowest tier delivered
	IsActive  bool       `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastSent  *time.Time `json:"last_sent,omitempty"`
}

// TableName specifies the table name for DigestWebhook
func (DigestWebhook) TableName() string {
	return "digest_webhooks"
}
