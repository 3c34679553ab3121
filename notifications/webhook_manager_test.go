package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"curiosity-intelligence/analysis"
	"curiosity-intelligence/database"
)

func testRepo(t *testing.T) *database.RunRepository {
	t.Helper()

	db, err := database.ConnectSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := database.NewRunRepository(db)
	if err := repo.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return repo
}

func makeSignal(question, tier string, score float64) *analysis.CuriositySignal {
	return &analysis.CuriositySignal{
		CanonicalQuestion: question,
		Tier:              tier,
		FinalScore:        score,
		IsSignal:          tier != "noise",
	}
}

func TestSummarizeMinTierFiltering(t *testing.T) {
	signals := []*analysis.CuriositySignal{
		makeSignal("breakout q", "breakout", 0.90),
		makeSignal("strong q", "strong", 0.78),
		makeSignal("signal q", "signal", 0.71),
		makeSignal("noise q", "noise", 0.40),
	}

	tests := []struct {
		name     string
		minTier  string
		expected int
	}{
		{"empty min tier keeps everything", "", 4},
		{"signal floor drops noise", "signal", 3},
		{"strong floor", "strong", 2},
		{"breakout floor", "breakout", 1},
		{"unknown tier falls back to signal floor", "bogus", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := summarize(signals, tt.minTier)
			if len(got) != tt.expected {
				t.Errorf("summarize with minTier %q kept %d signals, expected %d",
					tt.minTier, len(got), tt.expected)
			}
		})
	}
}

func TestSummarizePreservesOrder(t *testing.T) {
	signals := []*analysis.CuriositySignal{
		makeSignal("first", "breakout", 0.92),
		makeSignal("second", "strong", 0.80),
	}

	got := summarize(signals, "")
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	if got[0].Question != "first" || got[1].Question != "second" {
		t.Errorf("summarize reordered signals: %v", []string{got[0].Question, got[1].Question})
	}
}

func TestSummarizeRoundsScores(t *testing.T) {
	s := makeSignal("q", "strong", 0.123456)
	s.VelocityPct = 33.333

	got := summarize([]*analysis.CuriositySignal{s}, "")
	if got[0].Score != 0.123 {
		t.Errorf("expected score rounded to 0.123, got %f", got[0].Score)
	}
	if got[0].VelocityPct != 33.3 {
		t.Errorf("expected velocity pct rounded to 33.3, got %f", got[0].VelocityPct)
	}
}

func TestSendDigestWaitsForDelivery(t *testing.T) {
	var delivered int32
	var received DigestPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Slow endpoint: a send that does not wait would return first
		time.Sleep(100 * time.Millisecond)

		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode digest payload: %v", err)
		}
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := testRepo(t)
	hook := &database.DigestWebhook{Name: "test", URL: server.URL, MinTier: "signal", IsActive: true}
	if err := repo.CreateWebhook(hook); err != nil {
		t.Fatalf("CreateWebhook failed: %v", err)
	}

	wm := NewWebhookManager(repo, nil)
	wm.SendDigest("2026-W35", []*analysis.CuriositySignal{
		makeSignal("can GPT-4 see images?", "breakout", 0.91),
	}, nil)

	if got := atomic.LoadInt32(&delivered); got != 1 {
		t.Fatalf("SendDigest returned with %d of 1 deliveries completed", got)
	}
	if received.Week != "2026-W35" {
		t.Errorf("unexpected digest week %q", received.Week)
	}
	if len(received.Signals) != 1 || received.Signals[0].Question != "can GPT-4 see images?" {
		t.Errorf("unexpected digest signals: %+v", received.Signals)
	}

	hooks, err := repo.GetActiveWebhooks()
	if err != nil {
		t.Fatalf("GetActiveWebhooks failed: %v", err)
	}
	if len(hooks) != 1 || hooks[0].LastSent == nil {
		t.Error("expected last-sent timestamp recorded after delivery")
	}
}

func TestSendDigestSkipsInactiveWebhooks(t *testing.T) {
	var delivered int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
	}))
	defer server.Close()

	repo := testRepo(t)
	hook := &database.DigestWebhook{Name: "disabled", URL: server.URL, MinTier: "signal", IsActive: false}
	if err := repo.CreateWebhook(hook); err != nil {
		t.Fatalf("CreateWebhook failed: %v", err)
	}

	wm := NewWebhookManager(repo, nil)
	wm.SendDigest("2026-W35", []*analysis.CuriositySignal{
		makeSignal("q", "breakout", 0.91),
	}, nil)

	if got := atomic.LoadInt32(&delivered); got != 0 {
		t.Errorf("expected no deliveries to an inactive webhook, got %d", got)
	}
}

func TestTierRankOrdering(t *testing.T) {
	if !(tierRank["noise"] < tierRank["signal"] &&
		tierRank["signal"] < tierRank["strong"] &&
		tierRank["strong"] < tierRank["breakout"]) {
		t.Error("tier ranks out of order")
	}
}
