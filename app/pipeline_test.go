package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"curiosity-intelligence/analysis"
	"curiosity-intelligence/config"
	"curiosity-intelligence/ingestion"
	"curiosity-intelligence/processing"
)

// stubIngester returns a fixed question set
type stubIngester struct {
	platform  string
	questions []ingestion.IngestedQuestion
	err       error
}

func (s *stubIngester) Platform() string { return s.platform }

func (s *stubIngester) Ingest(ctx context.Context, since time.Time) ([]ingestion.IngestedQuestion, error) {
	return s.questions, s.err
}

// embeddingServer maps each input to a fixed vector by keyword so similar
// questions land near each other
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		type item struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i, text := range req.Input {
			vec := []float64{5, 5}
			if len(text) > 0 && text[0] >= 'A' && text[0] <= 'M' {
				vec = []float64{1, 0}
			}
			data[i] = item{Index: i, Embedding: vec}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
}

func testApp(cfg *config.Config, embeddingURL string, ingesters []ingestion.Ingester) *App {
	return &App{
		config:     cfg,
		normalizer: processing.NewNormalizer(),
		embedder:   processing.NewEmbedder(embeddingURL, "test-key", "test-model", 100, nil),
		clusterer: processing.NewClusterer(
			cfg.Pipeline.MinClusterSize,
			cfg.Pipeline.MinSamples,
			cfg.Pipeline.Epsilon,
		),
		detector:   analysis.NewSignalDetector(cfg.Pipeline.SignalThreshold),
		correlator: analysis.NewNewsCorrelator("http://unused", "", 7), // no API key, correlation disabled
		ingesters:  ingesters,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			MinClusterSize:  2,
			MinSamples:      1,
			Epsilon:         0.5,
			SignalThreshold: 0.70,
			MaxSignals:      10,
			WeirdPickCount:  3,
			DryRun:          true,
		},
	}
}

func TestRunPipelineDryRun(t *testing.T) {
	server := embeddingServer(t)
	defer server.Close()

	now := time.Now().UTC()
	ingesters := []ingestion.Ingester{
		&stubIngester{
			platform: "reddit",
			questions: []ingestion.IngestedQuestion{
				{ExternalID: "r1", Platform: "reddit", RawText: "Can GPT-4 see images now?", Upvotes: 50, ExternalCreatedAt: &now},
				{ExternalID: "r2", Platform: "reddit", RawText: "Does GPT-4 have vision support?", Upvotes: 30, ExternalCreatedAt: &now},
			},
		},
		&stubIngester{
			platform: "stackexchange",
			questions: []ingestion.IngestedQuestion{
				{ExternalID: "s1", Platform: "stackexchange", RawText: "How does GPT-4 image input work?", Upvotes: 20, ExternalCreatedAt: &now},
			},
		},
	}

	a := testApp(testConfig(), server.URL, ingesters)

	summary, err := a.RunPipeline(context.Background())
	if err != nil {
		t.Fatalf("RunPipeline failed: %v", err)
	}

	if summary.QuestionsIngested != 3 {
		t.Errorf("expected 3 questions ingested, got %d", summary.QuestionsIngested)
	}
	if summary.ClustersCreated != 1 {
		t.Errorf("expected 1 cluster, got %d", summary.ClustersCreated)
	}
	if summary.SignalsDetected != 1 {
		t.Errorf("expected 1 signal, got %d", summary.SignalsDetected)
	}
	if len(summary.Signals) != 1 {
		t.Fatalf("expected 1 signal in summary, got %d", len(summary.Signals))
	}

	s := summary.Signals[0]
	if s.PlatformCount != 2 {
		t.Errorf("expected cross-platform signal over 2 platforms, got %d", s.PlatformCount)
	}
	if !s.IsSignal {
		t.Error("expected the cluster to clear the signal threshold")
	}
}

func TestRunPipelineSignalCountNotCappedByMaxSignals(t *testing.T) {
	server := embeddingServer(t)
	defer server.Close()

	now := time.Now().UTC()
	ingesters := []ingestion.Ingester{
		&stubIngester{
			platform: "reddit",
			questions: []ingestion.IngestedQuestion{
				{ExternalID: "r1", Platform: "reddit", RawText: "Can GPT-4 see images?", Upvotes: 50, ExternalCreatedAt: &now},
				{ExternalID: "r2", Platform: "reddit", RawText: "Why is training slow?", Upvotes: 50, ExternalCreatedAt: &now},
			},
		},
		&stubIngester{
			platform: "stackexchange",
			questions: []ingestion.IngestedQuestion{
				{ExternalID: "s1", Platform: "stackexchange", RawText: "Does GPT-4 have vision?", Upvotes: 50, ExternalCreatedAt: &now},
				{ExternalID: "s2", Platform: "stackexchange", RawText: "Should training be this slow?", Upvotes: 50, ExternalCreatedAt: &now},
			},
		},
	}

	cfg := testConfig()
	cfg.Pipeline.MaxSignals = 1

	a := testApp(cfg, server.URL, ingesters)

	summary, err := a.RunPipeline(context.Background())
	if err != nil {
		t.Fatalf("RunPipeline failed: %v", err)
	}

	if summary.ClustersCreated != 2 {
		t.Fatalf("expected 2 clusters, got %d", summary.ClustersCreated)
	}
	if summary.SignalsDetected != 2 {
		t.Errorf("expected signal count 2 regardless of display cap, got %d", summary.SignalsDetected)
	}
	if len(summary.Signals) != 1 {
		t.Errorf("expected displayed signal list capped at 1, got %d", len(summary.Signals))
	}
}

func TestRunPipelineFailingSourceIsolated(t *testing.T) {
	server := embeddingServer(t)
	defer server.Close()

	now := time.Now().UTC()
	ingesters := []ingestion.Ingester{
		&stubIngester{platform: "reddit", err: context.DeadlineExceeded},
		&stubIngester{
			platform: "stackexchange",
			questions: []ingestion.IngestedQuestion{
				{ExternalID: "s1", Platform: "stackexchange", RawText: "How does batching work?", Upvotes: 5, ExternalCreatedAt: &now},
				{ExternalID: "s2", Platform: "stackexchange", RawText: "How should batching work?", Upvotes: 3, ExternalCreatedAt: &now},
			},
		},
	}

	a := testApp(testConfig(), server.URL, ingesters)

	summary, err := a.RunPipeline(context.Background())
	if err != nil {
		t.Fatalf("expected run to survive one failing source, got: %v", err)
	}
	if summary.QuestionsIngested != 2 {
		t.Errorf("expected 2 questions from the healthy source, got %d", summary.QuestionsIngested)
	}
}

func TestRunPipelineNoQuestions(t *testing.T) {
	a := testApp(testConfig(), "http://unused", []ingestion.Ingester{
		&stubIngester{platform: "reddit"},
	})

	summary, err := a.RunPipeline(context.Background())
	if err != nil {
		t.Fatalf("expected empty run to succeed, got: %v", err)
	}
	if summary.QuestionsIngested != 0 || summary.ClustersCreated != 0 || summary.SignalsDetected != 0 {
		t.Errorf("expected all-zero summary, got %+v", summary)
	}
}

func TestRunPipelineEmbeddingFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	now := time.Now().UTC()
	a := testApp(testConfig(), server.URL, []ingestion.Ingester{
		&stubIngester{
			platform: "reddit",
			questions: []ingestion.IngestedQuestion{
				{ExternalID: "r1", Platform: "reddit", RawText: "Why is this failing?", ExternalCreatedAt: &now},
			},
		},
	})

	if _, err := a.RunPipeline(context.Background()); err == nil {
		t.Error("expected pipeline to fail when embedding is unavailable")
	}
}

func TestSignalRowsEncoding(t *testing.T) {
	trigger := &analysis.NewsTrigger{Headline: "Vision ships", Source: "Example", RelevanceScore: 0.8}
	signals := []*analysis.CuriositySignal{
		{
			ClusterID:         0,
			CanonicalQuestion: "can GPT-4 see images?",
			FinalScore:        0.91,
			Tier:              "breakout",
			IsSignal:          true,
			SampleQuestions:   []string{"Can GPT-4 see images?"},
			NewsTrigger:       trigger,
		},
		{
			ClusterID:         1,
			CanonicalQuestion: "quiet topic",
			FinalScore:        0.3,
			Tier:              "noise",
		},
	}
	clusterIDs := map[int]int64{0: 11, 1: 12}

	rows, err := signalRows(signals, clusterIDs)
	if err != nil {
		t.Fatalf("signalRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if rows[0].ClusterID == nil || *rows[0].ClusterID != 11 {
		t.Errorf("expected cluster ID 11, got %v", rows[0].ClusterID)
	}
	if rows[0].NewsTrigger == nil {
		t.Fatal("expected news trigger encoded")
	}
	var decoded analysis.NewsTrigger
	if err := json.Unmarshal([]byte(*rows[0].NewsTrigger), &decoded); err != nil {
		t.Fatalf("news trigger is not valid JSON: %v", err)
	}
	if decoded.Headline != "Vision ships" {
		t.Errorf("unexpected decoded headline %q", decoded.Headline)
	}
	if rows[1].NewsTrigger != nil {
		t.Error("expected nil news trigger for unenriched signal")
	}
}

func TestClusterRows(t *testing.T) {
	now := time.Now().UTC()
	clusters := []processing.QuestionCluster{
		{
			ClusterID:         0,
			CanonicalQuestion: "can GPT-4 see images?",
			Centroid:          []float64{1, 0},
			PlatformCounts:    map[string]int{"reddit": 2, "stackexchange": 1},
			TotalEngagement:   100,
			EarliestSeen:      &now,
			Questions: []processing.Question{
				{
					IngestedQuestion: ingestion.IngestedQuestion{ExternalID: "r1", Platform: "reddit", RawText: "Can GPT-4 see images?"},
					NormalizedText:   "Can GPT-4 see images?",
					Embedding:        []float64{1, 0},
				},
			},
		},
	}

	rows, byCluster := clusterRows(clusters)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].CrossPlatformCount != 2 {
		t.Errorf("expected cross-platform count 2, got %d", rows[0].CrossPlatformCount)
	}
	if rows[0].QuestionCount != 1 {
		t.Errorf("expected question count 1, got %d", rows[0].QuestionCount)
	}

	var counts map[string]int
	if err := json.Unmarshal([]byte(rows[0].PlatformCounts), &counts); err != nil {
		t.Fatalf("platform counts are not valid JSON: %v", err)
	}
	if counts["reddit"] != 2 {
		t.Errorf("unexpected platform counts %v", counts)
	}

	members := byCluster[0]
	if len(members) != 1 {
		t.Fatalf("expected 1 member question, got %d", len(members))
	}
	var embedding []float64
	if err := json.Unmarshal([]byte(members[0].Embedding), &embedding); err != nil {
		t.Fatalf("embedding is not valid JSON: %v", err)
	}
	if len(embedding) != 2 || embedding[0] != 1 {
		t.Errorf("unexpected embedding %v", embedding)
	}
}
