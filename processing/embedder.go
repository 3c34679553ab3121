package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"curiosity-intelligence/cache"
)

// Embedder generates embedding vectors through an OpenAI-compatible
// embeddings endpoint.
type Embedder struct {
	endpoint  string
	apiKey    string
	model     string
	batchSize int
	cache     *cache.EmbeddingCache
	client    *http.Client
}

// embeddingRequest is the request body for the embeddings endpoint
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse is the response body from the embeddings endpoint.
// Items carry an index because the service may return them out of
// submission order.
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder creates a new embedder. embCache may be nil to disable caching.
func NewEmbedder(endpoint, apiKey, model string, batchSize int, embCache *cache.EmbeddingCache) *Embedder {
	if batchSize <= 0 {
		batchSize = 100
	}

	// Connection pooling tuned for repeated batch calls
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
	}

	return &Embedder{
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		batchSize: batchSize,
		cache:     embCache,
		client: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
	}
}

// Embed generates an embedding for a single text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, preserving input order in the
// output regardless of the order the service returns results in. Batches are
// all-or-nothing: a partial batch failure fails the whole call and the caller
// retries.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	vectors := make([][]float64, len(texts))

	// Serve what we can from cache
	var missing []int
	for i, text := range texts {
		if e.cache != nil {
			if v, ok := e.cache.Get(ctx, e.model, text); ok {
				vectors[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}

	// Request the rest in batches
	for start := 0; start < len(missing); start += e.batchSize {
		end := start + e.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batchIdx := missing[start:end]

		batch := make([]string, len(batchIdx))
		for i, idx := range batchIdx {
			batch[i] = texts[idx]
		}

		batchVectors, err := e.embedRequest(ctx, batch)
		if err != nil {
			return nil, err
		}

		for i, idx := range batchIdx {
			vectors[idx] = batchVectors[i]
			if e.cache != nil {
				if err := e.cache.Set(ctx, e.model, texts[idx], batchVectors[i]); err != nil {
					log.Printf("⚠️  Failed to cache embedding: %v", err)
				}
			}
		}
	}

	return vectors, nil
}

// embedRequest sends one batch to the embeddings endpoint and restores
// submission order by the reported index
func (e *Embedder) embedRequest(ctx context.Context, batch []string) ([][]float64, error) {
	reqBody := embeddingRequest{
		Model: e.model,
		Input: batch,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.endpoint+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(payload.Data) != len(batch) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(payload.Data), len(batch))
	}

	vectors := make([][]float64, len(batch))
	for _, item := range payload.Data {
		if item.Index < 0 || item.Index >= len(batch) {
			return nil, fmt.Errorf("embedding service returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding service returned no vector for index %d", i)
		}
	}

	return vectors, nil
}

// CosineSimilarity returns the cosine similarity of two vectors in [-1,1].
// A zero vector yields 0.0 rather than dividing by zero.
func CosineSimilarity(a, b []float64) float64 {
	var dot, magA, magB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, x := range a {
		magA += x * x
	}
	for _, x := range b {
		magB += x * x
	}

	if magA == 0 || magB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
