package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"curiosity-intelligence/analysis"
	"curiosity-intelligence/cache"
	"curiosity-intelligence/database"
)

// WebhookManager delivers the weekly signal digest to registered webhooks.
// Hooks are delivered concurrently, but SendDigest waits for every delivery
// attempt to finish so a run cannot exit with digests still in flight.
type WebhookManager struct {
	repo   *database.RunRepository
	redis  *cache.RedisClient
	client *http.Client
	wg     sync.WaitGroup
}

// DigestPayload is the JSON payload sent to webhooks when a run completes
type DigestPayload struct {
	Week        string          `json:"week"`
	GeneratedAt time.Time       `json:"generated_at"`
	Signals     []SignalSummary `json:"signals"`
	WeirdPicks  []SignalSummary `json:"weird_picks,omitempty"`
}

// SignalSummary is one ranked entry in the digest
type SignalSummary struct {
	Question        string                `json:"question"`
	Score           float64               `json:"score"`
	Tier            string                `json:"tier"`
	VelocityPct     float64               `json:"velocity_pct"`
	Platforms       []string              `json:"platforms"`
	PlatformCount   int                   `json:"platform_count"`
	QuestionCount   int                   `json:"question_count"`
	Engagement      int                   `json:"engagement"`
	SampleQuestions []string              `json:"sample_questions,omitempty"`
	NewsTrigger     *analysis.NewsTrigger `json:"news_trigger,omitempty"`
}

// tierRank orders tiers for min-tier filtering
var tierRank = map[string]int{
	"noise":    0,
	"signal":   1,
	"strong":   2,
	"breakout": 3,
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(repo *database.RunRepository, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendDigest delivers a completed run's ranked signals to all matching
// webhooks, blocking until every delivery attempt has completed
func (wm *WebhookManager) SendDigest(week string, signals, weirdPicks []*analysis.CuriositySignal) {
	webhooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}

	if len(webhooks) == 0 {
		return
	}

	for _, hook := range webhooks {
		payload := DigestPayload{
			Week:        week,
			GeneratedAt: time.Now().UTC(),
			Signals:     summarize(signals, hook.MinTier),
			WeirdPicks:  summarize(weirdPicks, ""),
		}

		if len(payload.Signals) == 0 && len(payload.WeirdPicks) == 0 {
			continue
		}

		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			log.Printf("⚠️  Failed to marshal digest payload: %v", err)
			continue
		}

		wm.wg.Add(1)
		go func(hook database.DigestWebhook, payload []byte) {
			defer wm.wg.Done()
			wm.deliver(hook, payload)
		}(hook, payloadBytes)
	}

	wm.wg.Wait()
}

// getActiveWebhooks loads active webhooks, cached briefly in redis to avoid
// hitting the database for every run
func (wm *WebhookManager) getActiveWebhooks() ([]database.DigestWebhook, error) {
	cacheKey := "active_digest_webhooks"
	if wm.redis != nil {
		var cached []database.DigestWebhook
		if err := wm.redis.Get(context.Background(), cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	webhooks, err := wm.repo.GetActiveWebhooks()
	if err != nil {
		return nil, err
	}

	if wm.redis != nil {
		if err := wm.redis.Set(context.Background(), cacheKey, webhooks, 5*time.Minute); err != nil {
			log.Printf("⚠️  Failed to cache webhooks: %v", err)
		}
	}

	return webhooks, nil
}

// deliver posts the payload to one webhook endpoint
func (wm *WebhookManager) deliver(hook database.DigestWebhook, payload []byte) {
	req, err := http.NewRequest("POST", hook.URL, bytes.NewReader(payload))
	if err != nil {
		log.Printf("⚠️  Webhook %s: failed to create request: %v", hook.Name, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wm.client.Do(req)
	if err != nil {
		log.Printf("⚠️  Webhook %s delivery failed: %v", hook.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("⚠️  Webhook %s returned status %d", hook.Name, resp.StatusCode)
		return
	}

	if err := wm.repo.TouchWebhook(hook.ID); err != nil {
		log.Printf("⚠️  Failed to record delivery for webhook %s: %v", hook.Name, err)
	}

	log.Printf("✅ Digest delivered to webhook %s", hook.Name)
}

// summarize converts signals to digest entries, keeping only those at or
// above minTier. An empty minTier keeps everything.
func summarize(signals []*analysis.CuriositySignal, minTier string) []SignalSummary {
	minRank := 0
	if minTier != "" {
		r, ok := tierRank[minTier]
		if !ok {
			r = tierRank["signal"]
		}
		minRank = r
	}

	var out []SignalSummary
	for _, s := range signals {
		if tierRank[s.Tier] < minRank {
			continue
		}
		out = append(out, SignalSummary{
			Question:        s.CanonicalQuestion,
			Score:           round3(s.FinalScore),
			Tier:            s.Tier,
			VelocityPct:     round1(s.VelocityPct),
			Platforms:       s.Platforms,
			PlatformCount:   s.PlatformCount,
			QuestionCount:   s.QuestionCount,
			Engagement:      s.TotalEngagement,
			SampleQuestions: s.SampleQuestions,
			NewsTrigger:     s.NewsTrigger,
		})
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
