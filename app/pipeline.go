package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"curiosity-intelligence/analysis"
	"curiosity-intelligence/config"
	"curiosity-intelligence/database"
	"curiosity-intelligence/ingestion"
	"curiosity-intelligence/processing"
)

// RunSummary aggregates the results of one pipeline run
type RunSummary struct {
	Week              string
	QuestionsIngested int
	ClustersCreated   int
	SignalsDetected   int
	Signals           []*analysis.CuriositySignal
	WeirdPicks        []*analysis.CuriositySignal
}

// RunPipeline executes one full weekly cycle:
// ingest -> normalize -> embed -> cluster -> score -> correlate -> persist.
//
// A failure in any stage after run creation marks the run failed and leaves
// nothing persisted beyond the run row itself. Dry-run mode executes every
// stage but skips persistence and digests.
func (a *App) RunPipeline(ctx context.Context) (*RunSummary, error) {
	weekStart := config.WeekStart(time.Now().UTC())
	week := config.WeekLabel(weekStart)

	log.Printf("🔄 Starting pipeline run for week %s", week)

	var run *database.Run
	if a.repo != nil {
		var err error
		run, err = a.repo.CreateRun(week)
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}

	summary, err := a.runStages(ctx, week, weekStart, run)
	if err != nil {
		if run != nil {
			if failErr := a.repo.FailRun(run.ID, err.Error()); failErr != nil {
				log.Printf("⚠️  Could not mark run %d as failed: %v", run.ID, failErr)
			}
		}
		log.Printf("❌ Pipeline run for week %s failed: %v", week, err)
		return nil, err
	}

	log.Printf("✅ Pipeline run for week %s complete: %d questions, %d clusters, %d signals",
		week, summary.QuestionsIngested, summary.ClustersCreated, summary.SignalsDetected)
	return summary, nil
}

func (a *App) runStages(ctx context.Context, week string, weekStart time.Time, run *database.Run) (*RunSummary, error) {
	summary := &RunSummary{Week: week}
	since := time.Now().UTC().AddDate(0, 0, -7)

	// 1. Ingest from every platform concurrently
	raw := a.ingestAll(ctx, since)
	summary.QuestionsIngested = len(raw)
	if len(raw) == 0 {
		log.Println("⚠️  No questions ingested this week")
		if run != nil {
			if err := a.repo.CompleteRun(run.ID, 0, 0, 0); err != nil {
				return nil, fmt.Errorf("failed to complete empty run: %w", err)
			}
		}
		return summary, nil
	}
	log.Printf("📥 Ingested %d questions", len(raw))

	// 2. Normalize
	questions := make([]processing.Question, 0, len(raw))
	for _, q := range raw {
		normalized := a.normalizer.Normalize(q.RawText, q.Platform)
		if normalized == "" {
			continue
		}
		questions = append(questions, processing.Question{
			IngestedQuestion: q,
			NormalizedText:   normalized,
		})
	}

	// 3. Embed normalized text in batches
	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = q.NormalizedText
	}
	vectors, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	for i := range questions {
		questions[i].Embedding = vectors[i]
	}
	log.Printf("🧮 Embedded %d questions", len(questions))

	// 4. Cluster
	clusters := a.clusterer.Cluster(questions)
	summary.ClustersCreated = len(clusters)
	log.Printf("📊 Formed %d clusters", len(clusters))

	// 5. Score against the previous completed run
	historical := map[string]int{}
	if a.repo != nil {
		historical, err = a.repo.HistoricalCounts()
		if err != nil {
			log.Printf("⚠️  Historical lookup failed, scoring as cold start: %v", err)
			historical = map[string]int{}
		}
	}
	scored := a.detector.Detect(clusters, historical)

	// The run's signal count is every cluster over the threshold; only the
	// displayed list is capped
	signalCount := 0
	topSignals := make([]*analysis.CuriositySignal, 0, a.config.Pipeline.MaxSignals)
	for _, s := range scored {
		if !s.IsSignal {
			continue
		}
		signalCount++
		if len(topSignals) < a.config.Pipeline.MaxSignals {
			topSignals = append(topSignals, s)
		}
	}
	summary.SignalsDetected = signalCount
	summary.Signals = topSignals

	// 6. Attach news triggers to the week's top signals
	a.correlator.BatchCorrelate(ctx, topSignals, weekStart)

	// 7. Weird picks: high-weirdness clusters that missed the threshold
	summary.WeirdPicks = a.detector.WeirdPicks(clusters, historical, a.config.Pipeline.WeirdPickCount)

	// 8. Persist the whole run atomically per table
	if run != nil {
		clusterRows, questionsByCluster := clusterRows(clusters)
		clusterIDs, err := a.repo.SaveClusters(run.ID, clusterRows, questionsByCluster)
		if err != nil {
			return nil, fmt.Errorf("failed to persist clusters: %w", err)
		}

		signalRows, err := signalRows(scored, clusterIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode signals: %w", err)
		}
		if err := a.repo.SaveSignals(run.ID, signalRows); err != nil {
			return nil, fmt.Errorf("failed to persist signals: %w", err)
		}

		if err := a.repo.CompleteRun(run.ID, summary.QuestionsIngested, summary.ClustersCreated, summary.SignalsDetected); err != nil {
			return nil, fmt.Errorf("failed to complete run: %w", err)
		}
	}

	// 9. Deliver digests outside the run transaction boundary
	if a.webhookManager != nil && !a.config.Pipeline.DryRun {
		a.webhookManager.SendDigest(week, topSignals, summary.WeirdPicks)
	}

	return summary, nil
}

// ingestAll fans out to every configured platform and merges the results.
// A failing platform is logged and skipped so one flaky source cannot sink
// the whole run.
func (a *App) ingestAll(ctx context.Context, since time.Time) []ingestion.IngestedQuestion {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		all []ingestion.IngestedQuestion
	)

	for _, ing := range a.ingesters {
		wg.Add(1)
		go func(ing ingestion.Ingester) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("⚠️  Ingestion from %s panicked: %v", ing.Platform(), r)
				}
			}()

			questions, err := ing.Ingest(ctx, since)
			if err != nil {
				log.Printf("⚠️  Ingestion from %s failed: %v", ing.Platform(), err)
				return
			}

			mu.Lock()
			all = append(all, questions...)
			mu.Unlock()
		}(ing)
	}
	wg.Wait()

	return all
}

// clusterRows converts in-memory clusters into persistable rows plus their
// member questions grouped by cluster index
func clusterRows(clusters []processing.QuestionCluster) ([]database.Cluster, map[int][]database.Question) {
	rows := make([]database.Cluster, 0, len(clusters))
	questionsByCluster := make(map[int][]database.Question, len(clusters))

	for _, c := range clusters {
		centroid, _ := json.Marshal(c.Centroid)
		platformCounts, _ := json.Marshal(c.PlatformCounts)

		rows = append(rows, database.Cluster{
			ClusterIndex:       c.ClusterID,
			CanonicalQuestion:  c.CanonicalQuestion,
			Centroid:           string(centroid),
			QuestionCount:      len(c.Questions),
			CrossPlatformCount: c.CrossPlatformCount(),
			TotalEngagement:    c.TotalEngagement,
			PlatformCounts:     string(platformCounts),
			EarliestSeen:       c.EarliestSeen,
			LatestSeen:         c.LatestSeen,
		})

		members := make([]database.Question, 0, len(c.Questions))
		for _, q := range c.Questions {
			embedding, _ := json.Marshal(q.Embedding)
			members = append(members, database.Question{
				ExternalID:        q.ExternalID,
				Platform:          q.Platform,
				SourceURL:         q.SourceURL,
				RawText:           q.RawText,
				NormalizedText:    q.NormalizedText,
				Embedding:         string(embedding),
				Upvotes:           q.Upvotes,
				Comments:          q.Comments,
				Views:             q.Views,
				ExternalCreatedAt: q.ExternalCreatedAt,
			})
		}
		questionsByCluster[c.ClusterID] = members
	}

	return rows, questionsByCluster
}

// signalRows converts scored signals into persistable rows, resolving cluster
// indexes to database IDs
func signalRows(signals []*analysis.CuriositySignal, clusterIDs map[int]int64) ([]database.Signal, error) {
	rows := make([]database.Signal, 0, len(signals))

	for _, s := range signals {
		samples, err := json.Marshal(s.SampleQuestions)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sample questions: %w", err)
		}

		row := database.Signal{
			CanonicalQuestion:  s.CanonicalQuestion,
			VelocityScore:      s.VelocityScore,
			CrossPlatformScore: s.CrossPlatformScore,
			EngagementScore:    s.EngagementScore,
			NoveltyScore:       s.NoveltyScore,
			WeirdnessBonus:     s.WeirdnessBonus,
			FinalScore:         s.FinalScore,
			Tier:               s.Tier,
			IsSignal:           s.IsSignal,
			VelocityPct:        s.VelocityPct,
			QuestionCount:      s.QuestionCount,
			PlatformCount:      s.PlatformCount,
			TotalEngagement:    s.TotalEngagement,
			SampleQuestions:    string(samples),
		}

		if id, ok := clusterIDs[s.ClusterID]; ok {
			row.ClusterID = &id
		}

		if s.NewsTrigger != nil {
			trigger, err := json.Marshal(s.NewsTrigger)
			if err != nil {
				return nil, fmt.Errorf("failed to encode news trigger: %w", err)
			}
			triggerStr := string(trigger)
			row.NewsTrigger = &triggerStr
		}

		rows = append(rows, row)
	}

	return rows, nil
}
