// Package analysis scores question clusters as curiosity signals and
// optionally correlates them with news events.
package analysis

import (
	"sort"

	models "curiosity-intelligence/database/models_pkg"
	"curiosity-intelligence/processing"
)

// Score weights. Weirdness is an additive bonus on top of the weighted sum,
// capped separately.
const (
	WeightVelocity      = 0.35
	WeightCrossPlatform = 0.25
	WeightEngagement    = 0.20
	WeightNovelty       = 0.20
	MaxWeirdnessBonus   = 0.20
)

// Tier thresholds, checked in descending order
const (
	TierBreakout = 0.85
	TierStrong   = 0.75
	TierSignal   = 0.70
)

// DefaultSignalThreshold is the default is-signal bar. It coincides with the
// signal tier threshold but is configured independently: callers may set a
// stricter or looser bar without changing tier labels.
const DefaultSignalThreshold = 0.70

// CuriositySignal is a scored judgment about one cluster
type CuriositySignal struct {
	ClusterID         int
	CanonicalQuestion string

	// Component scores in [0,1]
	VelocityScore      float64
	CrossPlatformScore float64
	EngagementScore    float64
	NoveltyScore       float64
	WeirdnessBonus     float64

	// Computed
	FinalScore float64
	Tier       string // breakout, strong, signal, noise
	IsSignal   bool

	// Display metrics
	QuestionCount   int
	PlatformCount   int
	TotalEngagement int
	VelocityPct     float64 // percent change vs last week

	Platforms       []string
	SampleQuestions []string
	NewsTrigger     *NewsTrigger // attached after scoring, may stay nil
}

// SignalDetector converts clusters into weighted, tiered curiosity signals.
//
// Signal formula:
//
//	score = velocity*0.35 + cross_platform*0.25 + engagement*0.20 +
//	        novelty*0.20 + weirdness_bonus
//
// Historical data is passed into each call rather than held as state, so a
// score is a pure function of (cluster, historical counts, threshold).
type SignalDetector struct {
	threshold float64
}

// NewSignalDetector creates a detector with the given is-signal threshold
func NewSignalDetector(threshold float64) *SignalDetector {
	if threshold <= 0 {
		threshold = DefaultSignalThreshold
	}
	return &SignalDetector{threshold: threshold}
}

// Detect scores every cluster and returns signals sorted by descending final
// score. historical maps normalized canonical-question prefixes to the member
// count observed in a prior completed run; an empty map is a cold start and
// every cluster scores as a new topic. Empty input yields empty output.
func (d *SignalDetector) Detect(clusters []processing.QuestionCluster, historical map[string]int) []*CuriositySignal {
	if len(clusters) == 0 {
		return []*CuriositySignal{}
	}

	// Engagement normalizes against this run's own ceiling
	maxEngagement := 0
	for i := range clusters {
		if clusters[i].TotalEngagement > maxEngagement {
			maxEngagement = clusters[i].TotalEngagement
		}
	}

	signals := make([]*CuriositySignal, 0, len(clusters))
	for i := range clusters {
		signals = append(signals, d.scoreCluster(&clusters[i], historical, maxEngagement))
	}

	// Stable sort keeps ties deterministic given stable input order
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].FinalScore > signals[j].FinalScore
	})

	return signals
}

// WeirdPicks rescans clusters for the "interesting but not already flagged"
// list: nonzero weirdness bonus and below the is-signal threshold, sorted by
// weirdness descending, truncated to count. A cluster that is weird and also
// a signal is excluded; it is already visible in the main list.
func (d *SignalDetector) WeirdPicks(clusters []processing.QuestionCluster, historical map[string]int, count int) []*CuriositySignal {
	maxEngagement := 0
	for i := range clusters {
		if clusters[i].TotalEngagement > maxEngagement {
			maxEngagement = clusters[i].TotalEngagement
		}
	}

	var weird []*CuriositySignal
	for i := range clusters {
		signal := d.scoreCluster(&clusters[i], historical, maxEngagement)
		if signal.WeirdnessBonus > 0 && !signal.IsSignal {
			weird = append(weird, signal)
		}
	}

	sort.SliceStable(weird, func(i, j int) bool {
		return weird[i].WeirdnessBonus > weird[j].WeirdnessBonus
	})

	if count >= 0 && len(weird) > count {
		weird = weird[:count]
	}
	return weird
}

// scoreCluster computes all component scores and the final tier for one cluster
func (d *SignalDetector) scoreCluster(cluster *processing.QuestionCluster, historical map[string]int, maxEngagement int) *CuriositySignal {
	signal := &CuriositySignal{
		ClusterID:         cluster.ClusterID,
		CanonicalQuestion: cluster.CanonicalQuestion,
		QuestionCount:     len(cluster.Questions),
		PlatformCount:     cluster.CrossPlatformCount(),
		TotalEngagement:   cluster.TotalEngagement,
		Platforms:         platformList(cluster),
		SampleQuestions:   sampleQuestions(cluster, 5),
	}

	signal.VelocityScore, signal.VelocityPct = calcVelocity(cluster, historical)
	signal.CrossPlatformScore = calcCrossPlatform(cluster)
	signal.EngagementScore = calcEngagement(cluster, maxEngagement)
	signal.NoveltyScore = calcNovelty(cluster, historical)
	signal.WeirdnessBonus = calcWeirdness(cluster)

	score := signal.VelocityScore*WeightVelocity +
		signal.CrossPlatformScore*WeightCrossPlatform +
		signal.EngagementScore*WeightEngagement +
		signal.NoveltyScore*WeightNovelty +
		signal.WeirdnessBonus

	// Clamp to [0,1]
	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	signal.FinalScore = score

	switch {
	case score >= TierBreakout:
		signal.Tier = "breakout"
	case score >= TierStrong:
		signal.Tier = "strong"
	case score >= TierSignal:
		signal.Tier = "signal"
	default:
		signal.Tier = "noise"
	}

	signal.IsSignal = score >= d.threshold

	return signal
}

// calcVelocity scores week-over-week growth in cluster member count.
// No historical match means a brand-new topic: fixed 0.8 score and +100%.
// With a match, the percent change maps piecewise: >=100% growth saturates at
// 1.0, flat sits at 0.5, and a -50% drop floors at 0.0.
func calcVelocity(cluster *processing.QuestionCluster, historical map[string]int) (float64, float64) {
	currentCount := len(cluster.Questions)

	historicalCount := historical[models.HistoricalKey(cluster.CanonicalQuestion)]
	if historicalCount == 0 {
		return 0.8, 100.0
	}

	pctChange := float64(currentCount-historicalCount) / float64(historicalCount) * 100

	var score float64
	switch {
	case pctChange >= 100:
		score = 1.0
	case pctChange >= 0:
		score = 0.5 + pctChange/200
	default:
		score = 0.5 + pctChange/100
		if score < 0 {
			score = 0
		}
	}

	return score, pctChange
}

// calcCrossPlatform is a step function of distinct platform count:
// 1 platform 0.0, 2 platforms 0.7, 3+ platforms 1.0
func calcCrossPlatform(cluster *processing.QuestionCluster) float64 {
	switch count := cluster.CrossPlatformCount(); {
	case count >= 3:
		return 1.0
	case count == 2:
		return 0.7
	default:
		return 0.0
	}
}

// calcEngagement normalizes total engagement against the run's ceiling
func calcEngagement(cluster *processing.QuestionCluster, maxEngagement int) float64 {
	if maxEngagement == 0 {
		return 0.0
	}
	score := float64(cluster.TotalEngagement) / float64(maxEngagement)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// calcNovelty is 1.0 for a never-before-seen historical key, else a fixed 0.3
// residual for recurring topics
func calcNovelty(cluster *processing.QuestionCluster, historical map[string]int) float64 {
	if _, seen := historical[models.HistoricalKey(cluster.CanonicalQuestion)]; seen {
		return 0.3
	}
	return 1.0
}

// calcWeirdness rewards unexpected patterns: the full bonus for a cluster
// spanning 3+ platforms, half for disproportionate per-question engagement
func calcWeirdness(cluster *processing.QuestionCluster) float64 {
	if cluster.CrossPlatformCount() >= 3 {
		return MaxWeirdnessBonus
	}

	if len(cluster.Questions) > 0 {
		avgEngagement := float64(cluster.TotalEngagement) / float64(len(cluster.Questions))
		if avgEngagement > 50 {
			return MaxWeirdnessBonus * 0.5
		}
	}

	return 0.0
}

// platformList returns the cluster's platforms in deterministic order
func platformList(cluster *processing.QuestionCluster) []string {
	platforms := make([]string, 0, len(cluster.PlatformCounts))
	for p := range cluster.PlatformCounts {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	return platforms
}

// sampleQuestions returns up to max raw member texts for display
func sampleQuestions(cluster *processing.QuestionCluster, max int) []string {
	samples := make([]string, 0, max)
	for i, q := range cluster.Questions {
		if i >= max {
			break
		}
		samples = append(samples, q.RawText)
	}
	return samples
}
