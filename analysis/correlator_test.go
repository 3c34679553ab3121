package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractKeywords(t *testing.T) {
	nc := NewNewsCorrelator("http://unused", "", 7)

	tests := []struct {
		name     string
		question string
		expected []string
	}{
		{
			name:     "known entities",
			question: "why did chatgpt get slower after the openai update?",
			expected: []string{"ChatGPT", "OpenAI"},
		},
		{
			name:     "quoted phrase",
			question: `what is "mixture of experts" exactly?`,
			expected: []string{`mixture of experts`},
		},
		{
			name:     "entity plus quoted phrase",
			question: `did Claude add "extended thinking" mode?`,
			expected: []string{"Claude", "extended thinking"},
		},
		{
			name:     "fallback to AI plus capitalized terms",
			question: "Why Are Embeddings weird?",
			expected: []string{"AI", "Why Are Embeddings"},
		},
		{
			name:     "no signal at all falls back to AI",
			question: "why does this keep happening?",
			expected: []string{"AI"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nc.extractKeywords(tt.question)
			if len(got) != len(tt.expected) {
				t.Fatalf("extractKeywords(%q) = %v, expected %v", tt.question, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("keyword %d = %q, expected %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestExtractKeywordsCapped(t *testing.T) {
	nc := NewNewsCorrelator("http://unused", "", 7)

	question := "chatgpt claude gemini bard copilot midjourney ollama"
	got := nc.extractKeywords(question)
	if len(got) > 5 {
		t.Errorf("expected at most 5 keywords, got %d: %v", len(got), got)
	}
}

func TestCalcRelevance(t *testing.T) {
	article := &newsArticle{
		Title:       "OpenAI launches vision support for ChatGPT",
		Description: "The update lets users upload images",
	}

	high := calcRelevance("does chatgpt support vision images?", article)
	low := calcRelevance("best mechanical keyboard switches?", article)

	if high <= low {
		t.Errorf("expected overlapping question to score higher: %f vs %f", high, low)
	}
	if high < 0.0 || high > 1.0 {
		t.Errorf("relevance %f out of [0,1]", high)
	}
	if low != 0.0 {
		t.Errorf("expected 0.0 for no overlap, got %f", low)
	}
}

func TestFindTriggerNoAPIKey(t *testing.T) {
	nc := NewNewsCorrelator("http://unused", "", 7)

	if trigger := nc.FindTrigger(context.Background(), "why is chatgpt down?", time.Now()); trigger != nil {
		t.Errorf("expected nil trigger without API key, got %+v", trigger)
	}
}

func TestFindTrigger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/everything" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("apiKey") != "test-key" {
			t.Errorf("missing apiKey parameter")
		}
		if r.URL.Query().Get("q") == "" {
			t.Errorf("missing q parameter")
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"articles": []map[string]interface{}{
				{
					"title":       "ChatGPT gains vision support",
					"description": "Users can now upload images to chatgpt",
					"url":         "https://news.example.com/1",
					"publishedAt": "2026-08-25T10:00:00Z",
					"source":      map[string]string{"name": "Example News"},
				},
			},
		})
	}))
	defer server.Close()

	nc := NewNewsCorrelator(server.URL, "test-key", 7)

	trigger := nc.FindTrigger(context.Background(), "can chatgpt see images now?", time.Now())
	if trigger == nil {
		t.Fatal("expected a trigger, got nil")
	}
	if trigger.Headline != "ChatGPT gains vision support" {
		t.Errorf("unexpected headline %q", trigger.Headline)
	}
	if trigger.Source != "Example News" {
		t.Errorf("unexpected source %q", trigger.Source)
	}
	if trigger.RelevanceScore <= 0.0 {
		t.Errorf("expected positive relevance, got %f", trigger.RelevanceScore)
	}
}

func TestFindTriggerServerErrorDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	nc := NewNewsCorrelator(server.URL, "test-key", 7)

	if trigger := nc.FindTrigger(context.Background(), "why is chatgpt down?", time.Now()); trigger != nil {
		t.Errorf("expected nil trigger on server error, got %+v", trigger)
	}
}

func TestFindTriggerNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"articles": []interface{}{}})
	}))
	defer server.Close()

	nc := NewNewsCorrelator(server.URL, "test-key", 7)

	if trigger := nc.FindTrigger(context.Background(), "why is chatgpt down?", time.Now()); trigger != nil {
		t.Errorf("expected nil trigger for empty results, got %+v", trigger)
	}
}

func TestBatchCorrelateAttachesTriggers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"articles": []map[string]interface{}{
				{
					"title":       "Gemini update ships",
					"description": "gemini gets an update",
					"url":         "https://news.example.com/2",
					"publishedAt": "2026-08-26T09:00:00Z",
					"source":      map[string]string{"name": "Example News"},
				},
			},
		})
	}))
	defer server.Close()

	nc := NewNewsCorrelator(server.URL, "test-key", 7)

	signals := []*CuriositySignal{
		{CanonicalQuestion: "what changed in gemini this week?"},
		{CanonicalQuestion: "is claude better at code now?"},
	}
	nc.BatchCorrelate(context.Background(), signals, time.Now())

	for _, s := range signals {
		if s.NewsTrigger == nil {
			t.Errorf("expected trigger attached to %q", s.CanonicalQuestion)
		}
	}
}
