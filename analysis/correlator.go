package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"curiosity-intelligence/processing"
)

var (
	quotedPhrase   = regexp.MustCompile(`"([^"]+)"`)
	capitalizedSeq = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`)
	questionTerm   = regexp.MustCompile(`\b\w{4,}\b`)
)

// NewsTrigger is a news article that may explain a curiosity spike
type NewsTrigger struct {
	Headline       string  `json:"headline"`
	Source         string  `json:"source"`
	URL            string  `json:"url"`
	PublishedAt    string  `json:"published_at"`
	RelevanceScore float64 `json:"relevance_score"`
}

// NewsCorrelator looks up news events matching a signal's canonical question.
// This is soft, best-effort enrichment: every failure path degrades to "no
// trigger" and nothing here ever blocks the pipeline.
type NewsCorrelator struct {
	endpoint     string
	apiKey       string
	lookbackDays int
	normalizer   *processing.Normalizer
	client       *http.Client
}

// newsSearchResponse mirrors the subset of the news API payload we read
type newsSearchResponse struct {
	Articles []newsArticle `json:"articles"`
}

type newsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

// NewNewsCorrelator creates a news correlator. An empty API key disables
// correlation; every lookup returns no trigger.
func NewNewsCorrelator(endpoint, apiKey string, lookbackDays int) *NewsCorrelator {
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	return &NewsCorrelator{
		endpoint:     endpoint,
		apiKey:       apiKey,
		lookbackDays: lookbackDays,
		normalizer:   processing.NewNormalizer(),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FindTrigger searches for the news article most likely to have triggered a
// curiosity spike around the given week. Returns nil when no API key is
// configured, no keywords can be extracted, or the search yields nothing.
func (nc *NewsCorrelator) FindTrigger(ctx context.Context, question string, weekStart time.Time) *NewsTrigger {
	if nc.apiKey == "" {
		return nil
	}

	keywords := nc.extractKeywords(question)
	if len(keywords) == 0 {
		return nil
	}

	articles, err := nc.searchNews(ctx, keywords,
		weekStart.AddDate(0, 0, -nc.lookbackDays),
		weekStart.AddDate(0, 0, 7),
	)
	if err != nil {
		log.Printf("⚠️  News correlation error: %v", err)
		return nil
	}
	if len(articles) == 0 {
		return nil
	}

	best := articles[0]
	return &NewsTrigger{
		Headline:       best.Title,
		Source:         best.Source.Name,
		URL:            best.URL,
		PublishedAt:    best.PublishedAt,
		RelevanceScore: calcRelevance(question, &best),
	}
}

// BatchCorrelate looks up a trigger for each signal sequentially and attaches
// the result, which may stay nil
func (nc *NewsCorrelator) BatchCorrelate(ctx context.Context, signals []*CuriositySignal, weekStart time.Time) {
	for _, signal := range signals {
		signal.NewsTrigger = nc.FindTrigger(ctx, signal.CanonicalQuestion, weekStart)
	}
}

// searchNews queries the news API for articles in the date window
func (nc *NewsCorrelator) searchNews(ctx context.Context, keywords []string, from, to time.Time) ([]newsArticle, error) {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = fmt.Sprintf("%q", kw)
	}

	params := url.Values{}
	params.Set("q", strings.Join(quoted, " OR "))
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	params.Set("sortBy", "relevancy")
	params.Set("pageSize", "10")
	params.Set("language", "en")
	params.Set("apiKey", nc.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET",
		nc.endpoint+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := nc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("news service returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload newsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode news response: %w", err)
	}

	return payload.Articles, nil
}

// extractKeywords pulls up to five search terms from a question: known AI
// entities, any quoted phrases, and only if neither matched, the literal
// "AI" plus up to three capitalized sequences
func (nc *NewsCorrelator) extractKeywords(question string) []string {
	keywords := nc.normalizer.ExtractKeyEntities(question)

	for _, m := range quotedPhrase.FindAllStringSubmatch(question, -1) {
		keywords = append(keywords, m[1])
	}

	if len(keywords) == 0 {
		keywords = []string{"AI"}
		caps := capitalizedSeq.FindAllStringSubmatch(question, -1)
		for i, m := range caps {
			if i >= 3 {
				break
			}
			keywords = append(keywords, m[1])
		}
	}

	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	return keywords
}

// calcRelevance scores term overlap between a question and an article.
// Terms are question words of four or more characters; title matches count
// double. Normalized to [0,1].
func calcRelevance(question string, article *newsArticle) float64 {
	title := strings.ToLower(article.Title)
	description := strings.ToLower(article.Description)

	terms := questionTerm.FindAllString(strings.ToLower(question), -1)
	unique := make(map[string]bool, len(terms))
	for _, t := range terms {
		unique[t] = true
	}

	matches := 0
	for term := range unique {
		if strings.Contains(title, term) {
			matches += 2
		}
		if strings.Contains(description, term) {
			matches += 1
		}
	}

	denom := len(unique)
	if denom == 0 {
		denom = 1
	}

	score := float64(matches) / float64(denom)
	if score > 1.0 {
		score = 1.0
	}
	return score
}
