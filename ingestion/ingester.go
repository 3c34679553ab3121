// Package ingestion fetches raw questions from public platforms.
//
// Each source is a thin HTTP client behind the Ingester interface. Sources
// are best-effort: a failing source is logged and skipped, and a source may
// return a subset of its window on partial failure. Completeness is never
// guaranteed.
package ingestion

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// IngestedQuestion is one raw question record fetched from a platform
type IngestedQuestion struct {
	ExternalID        string     `json:"external_id"`
	Platform          string     `json:"platform"`
	RawText           string     `json:"raw_text"`
	SourceURL         string     `json:"source_url"`
	Upvotes           int        `json:"upvotes"`
	Comments          int        `json:"comments"`
	Views             int        `json:"views"`
	ExternalCreatedAt *time.Time `json:"external_created_at,omitempty"`
}

// Ingester fetches questions from one platform
type Ingester interface {
	// Platform returns the platform tag attached to every question
	Platform() string

	// Ingest fetches questions created after since. A partial result with a
	// nil error is valid; sources never guarantee completeness.
	Ingest(ctx context.Context, since time.Time) ([]IngestedQuestion, error)
}

// questionPatterns flag titles that read as questions
var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(what|why|how|when|where|who|which|can|could|would|should|will|is|are|do|does|has|have)\b`),
	regexp.MustCompile(`\?\s*$`),
	regexp.MustCompile(`(?i)^\s*\[question\]`),
	regexp.MustCompile(`(?i)^\s*\[help\]`),
	regexp.MustCompile(`(?i)^\s*eli5`),
}

// looksLikeQuestion reports whether a title structurally reads as a question
func looksLikeQuestion(text string) bool {
	for _, p := range questionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// cleanTitle does basic whitespace cleanup on a fetched title
func cleanTitle(text string) string {
	return strings.TrimSpace(text)
}

// newHTTPClient builds an HTTP client with connection pooling tuned for
// repeated small API calls
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
