package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Subreddits monitored for AI questions
var defaultSubreddits = []string{
	"ChatGPT",
	"artificial",
	"MachineLearning",
	"LocalLLaMA",
	"ClaudeAI",
	"singularity",
	"OpenAI",
	"Bard",
	"midjourney",
	"StableDiffusion",
}

// RedditIngester fetches question posts from AI-related subreddits using the
// public JSON listing endpoints.
type RedditIngester struct {
	baseURL           string
	subreddits        []string
	postsPerSubreddit int
	minTitleLength    int
	userAgent         string
	client            *http.Client
}

// redditListing mirrors the subset of the Reddit listing payload we read
type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Permalink   string  `json:"permalink"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewRedditIngester creates a Reddit ingester for the default subreddit set
func NewRedditIngester(userAgent string, postsPerSubreddit, minTitleLength int, timeout time.Duration) *RedditIngester {
	return &RedditIngester{
		baseURL:           "https://www.reddit.com",
		subreddits:        defaultSubreddits,
		postsPerSubreddit: postsPerSubreddit,
		minTitleLength:    minTitleLength,
		userAgent:         userAgent,
		client:            newHTTPClient(timeout),
	}
}

// Platform returns the platform tag for Reddit questions
func (r *RedditIngester) Platform() string {
	return "reddit"
}

// Ingest fetches hot and new posts from every configured subreddit, keeping
// posts that read as questions and were created after since. A failing
// subreddit is logged and skipped.
func (r *RedditIngester) Ingest(ctx context.Context, since time.Time) ([]IngestedQuestion, error) {
	var questions []IngestedQuestion
	seen := make(map[string]bool)

	for _, subreddit := range r.subreddits {
		for _, listing := range []string{"hot", "new"} {
			posts, err := r.fetchListing(ctx, subreddit, listing)
			if err != nil {
				log.Printf("⚠️  Error fetching r/%s %s: %v", subreddit, listing, err)
				continue
			}

			for _, q := range posts {
				if q.ExternalCreatedAt != nil && q.ExternalCreatedAt.Before(since) {
					continue
				}
				if seen[q.ExternalID] {
					continue
				}
				seen[q.ExternalID] = true
				questions = append(questions, q)
			}
		}
	}

	return questions, nil
}

// fetchListing fetches one listing page for a subreddit
func (r *RedditIngester) fetchListing(ctx context.Context, subreddit, listing string) ([]IngestedQuestion, error) {
	url := fmt.Sprintf("%s/r/%s/%s.json?limit=%d",
		r.baseURL, subreddit, listing, r.postsPerSubreddit/2)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload redditListing
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	var questions []IngestedQuestion
	for _, child := range payload.Data.Children {
		post := child.Data

		title := cleanTitle(post.Title)
		if len(title) < r.minTitleLength || !looksLikeQuestion(title) {
			continue
		}

		createdAt := time.Unix(int64(post.CreatedUTC), 0).UTC()
		questions = append(questions, IngestedQuestion{
			ExternalID:        post.ID,
			Platform:          "reddit",
			RawText:           title,
			SourceURL:         "https://reddit.com" + post.Permalink,
			Upvotes:           post.Score,
			Comments:          post.NumComments,
			ExternalCreatedAt: &createdAt,
		})
	}

	return questions, nil
}
