package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const stackExchangeAPIBase = "https://api.stackexchange.com/2.3"

// Stack Exchange sites queried for AI questions
var defaultSites = []string{
	"stackoverflow",
	"datascience",
	"ai",
	"stats",
}

// Tags that indicate AI-related questions
var defaultTags = []string{
	"chatgpt",
	"openai-api",
	"gpt-4",
	"llm",
	"large-language-model",
	"prompt-engineering",
	"langchain",
	"transformers",
	"huggingface",
	"machine-learning",
	"deep-learning",
	"neural-network",
	"natural-language-processing",
	"nlp",
	"embedding",
	"vector-database",
	"rag",
	"fine-tuning",
}

// StackExchangeIngester fetches questions from Stack Exchange sites using the
// public API. An API key raises the rate limit but is not required.
type StackExchangeIngester struct {
	baseURL          string
	sites            []string
	tags             []string
	questionsPerSite int
	apiKey           string
	client           *http.Client
}

// seResponse mirrors the subset of the Stack Exchange API payload we read
type seResponse struct {
	Items []struct {
		QuestionID   int64  `json:"question_id"`
		Title        string `json:"title"`
		Score        int    `json:"score"`
		AnswerCount  int    `json:"answer_count"`
		ViewCount    int    `json:"view_count"`
		CreationDate int64  `json:"creation_date"`
	} `json:"items"`
	QuotaRemaining int `json:"quota_remaining"`
}

// NewStackExchangeIngester creates a Stack Exchange ingester for the default
// site and tag sets
func NewStackExchangeIngester(apiKey string, questionsPerSite int, timeout time.Duration) *StackExchangeIngester {
	return &StackExchangeIngester{
		baseURL:          stackExchangeAPIBase,
		sites:            defaultSites,
		tags:             defaultTags,
		questionsPerSite: questionsPerSite,
		apiKey:           apiKey,
		client:           newHTTPClient(timeout),
	}
}

// Platform returns the platform tag for Stack Exchange questions
func (s *StackExchangeIngester) Platform() string {
	return "stackexchange"
}

// Ingest fetches recent questions from every configured site. A failing site
// is logged and skipped; remaining sites still contribute.
func (s *StackExchangeIngester) Ingest(ctx context.Context, since time.Time) ([]IngestedQuestion, error) {
	var questions []IngestedQuestion

	for _, site := range s.sites {
		siteQuestions, err := s.fetchSite(ctx, site, since)
		if err != nil {
			log.Printf("⚠️  Error fetching %s: %v", site, err)
			continue
		}
		questions = append(questions, siteQuestions...)
	}

	return questions, nil
}

// fetchSite queries one site tag-by-tag. The API combines multiple tags with
// AND rather than OR, so each tag needs its own request.
func (s *StackExchangeIngester) fetchSite(ctx context.Context, site string, since time.Time) ([]IngestedQuestion, error) {
	var questions []IngestedQuestion
	seen := make(map[int64]bool)

	pageSize := s.questionsPerSite
	if pageSize > 50 {
		pageSize = 50
	}

	for _, tag := range s.tags {
		params := url.Values{}
		params.Set("site", site)
		params.Set("tagged", tag)
		params.Set("fromdate", strconv.FormatInt(since.Unix(), 10))
		params.Set("sort", "activity")
		params.Set("order", "desc")
		params.Set("pagesize", strconv.Itoa(pageSize))
		if s.apiKey != "" {
			params.Set("key", s.apiKey)
		}

		payload, err := s.doRequest(ctx, params)
		if err != nil {
			log.Printf("⚠️  Error fetching tag %s from %s: %v", tag, site, err)
			continue
		}

		for _, item := range payload.Items {
			if seen[item.QuestionID] {
				continue
			}
			seen[item.QuestionID] = true

			title := cleanTitle(item.Title)
			// Everything on Stack Exchange is a question by definition,
			// just skip empty or trivially short titles
			if len(title) < 10 {
				continue
			}

			createdAt := time.Unix(item.CreationDate, 0).UTC()
			questions = append(questions, IngestedQuestion{
				ExternalID:        strconv.FormatInt(item.QuestionID, 10),
				Platform:          "stackexchange",
				RawText:           title,
				SourceURL:         questionURL(site, item.QuestionID),
				Upvotes:           item.Score,
				Comments:          item.AnswerCount,
				Views:             item.ViewCount,
				ExternalCreatedAt: &createdAt,
			})
		}

		if payload.QuotaRemaining > 0 && payload.QuotaRemaining < 50 {
			log.Printf("⚠️  SE API quota low (%d remaining), stopping %s early", payload.QuotaRemaining, site)
			break
		}
	}

	return questions, nil
}

// doRequest performs one questions query against the API
func (s *StackExchangeIngester) doRequest(ctx context.Context, params url.Values) (*seResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET",
		s.baseURL+"/questions?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload seResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &payload, nil
}

// questionURL builds the canonical question URL for a site
func questionURL(site string, questionID int64) string {
	if site == "stackoverflow" {
		return fmt.Sprintf("https://stackoverflow.com/q/%d", questionID)
	}
	return fmt.Sprintf("https://%s.stackexchange.com/q/%d", site, questionID)
}
