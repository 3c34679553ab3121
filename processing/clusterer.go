package processing

import (
	"math"
	"sort"
	"time"

	models "curiosity-intelligence/database/models_pkg"
	"curiosity-intelligence/ingestion"
)

// Question is an ingested question carrying its normalized text and
// embedding through the pipeline
type Question struct {
	ingestion.IngestedQuestion
	NormalizedText string
	Embedding      []float64
}

// QuestionCluster is a group of semantically equivalent questions from one run
type QuestionCluster struct {
	ClusterID         int
	CanonicalQuestion string
	Questions         []Question
	Centroid          []float64
	PlatformCounts    map[string]int
	TotalEngagement   int
	EarliestSeen      *time.Time
	LatestSeen        *time.Time
}

// CrossPlatformCount returns the number of distinct platforms in the cluster
func (c *QuestionCluster) CrossPlatformCount() int {
	return len(c.PlatformCounts)
}

// HistoricalKey returns the normalized canonical-question prefix used to
// match this cluster against a prior run
func (c *QuestionCluster) HistoricalKey() string {
	return models.HistoricalKey(c.CanonicalQuestion)
}

// ClusterMatch pairs a cluster with its similarity to a query vector
type ClusterMatch struct {
	Cluster    *QuestionCluster
	Similarity float64
}

// Clusterer groups question embeddings with density-based clustering.
// Sparse groups and true outliers are treated as noise and never appear in
// the output; there is no fixed cluster count.
type Clusterer struct {
	minClusterSize int
	minSamples     int
	epsilon        float64
}

// NewClusterer creates a clusterer.
// minClusterSize is the member floor below which a dense group is still
// discarded; minSamples is the neighbor count that makes a point a core
// point; epsilon is the Euclidean neighborhood radius.
func NewClusterer(minClusterSize, minSamples int, epsilon float64) *Clusterer {
	if minClusterSize < 2 {
		minClusterSize = 2
	}
	if minSamples < 1 {
		minSamples = 1
	}
	return &Clusterer{
		minClusterSize: minClusterSize,
		minSamples:     minSamples,
		epsilon:        epsilon,
	}
}

const noiseLabel = -1

// Cluster groups questions by their embeddings. Questions without an
// embedding are ignored. Fewer questions than the minimum cluster size yields
// an empty list, never an error. Output is sorted by descending total
// engagement; ties break by cluster id, stable within one run.
func (c *Clusterer) Cluster(questions []Question) []QuestionCluster {
	// Only points with embeddings participate
	var points []Question
	for _, q := range questions {
		if len(q.Embedding) > 0 {
			points = append(points, q)
		}
	}

	if len(points) < c.minClusterSize {
		return []QuestionCluster{}
	}

	labels := c.dbscan(points)

	// Group members by label, dropping noise
	groups := make(map[int][]Question)
	for i, label := range labels {
		if label == noiseLabel {
			continue
		}
		groups[label] = append(groups[label], points[i])
	}

	var clusters []QuestionCluster
	for label, members := range groups {
		if len(members) < c.minClusterSize {
			continue
		}
		clusters = append(clusters, buildCluster(label, members))
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].TotalEngagement != clusters[j].TotalEngagement {
			return clusters[i].TotalEngagement > clusters[j].TotalEngagement
		}
		return clusters[i].ClusterID < clusters[j].ClusterID
	})

	return clusters
}

// dbscan labels each point with a cluster id, or noiseLabel for points
// outside every dense region. Small epsilon with a modest core threshold
// keeps clusters granular rather than merging neighbors into superclusters.
func (c *Clusterer) dbscan(points []Question) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = noiseLabel
	}
	visited := make([]bool, n)

	nextLabel := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := c.regionQuery(points, i)
		if len(neighbors) < c.minSamples {
			continue // stays noise unless claimed as a border point later
		}

		labels[i] = nextLabel
		c.expandCluster(points, labels, visited, neighbors, nextLabel)
		nextLabel++
	}

	return labels
}

// expandCluster grows a cluster from a core point's neighborhood
func (c *Clusterer) expandCluster(points []Question, labels []int, visited []bool, seeds []int, label int) {
	for k := 0; k < len(seeds); k++ {
		idx := seeds[k]

		if labels[idx] == noiseLabel {
			labels[idx] = label
		}

		if visited[idx] {
			continue
		}
		visited[idx] = true

		neighbors := c.regionQuery(points, idx)
		if len(neighbors) >= c.minSamples {
			seeds = append(seeds, neighbors...)
		}
	}
}

// regionQuery returns indices of all points within epsilon of point i,
// including i itself
func (c *Clusterer) regionQuery(points []Question, i int) []int {
	var neighbors []int
	for j := range points {
		if euclideanDistance(points[i].Embedding, points[j].Embedding) <= c.epsilon {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// buildCluster computes the centroid, canonical member, and aggregates for
// one group of members
func buildCluster(label int, members []Question) QuestionCluster {
	dim := len(members[0].Embedding)

	// Centroid: coordinate-wise mean of member embeddings
	centroid := make([]float64, dim)
	for _, m := range members {
		for d := 0; d < dim && d < len(m.Embedding); d++ {
			centroid[d] += m.Embedding[d]
		}
	}
	for d := range centroid {
		centroid[d] /= float64(len(members))
	}

	// Canonical question: the member nearest the centroid
	canonicalIdx := 0
	bestDist := math.Inf(1)
	for i, m := range members {
		if dist := euclideanDistance(m.Embedding, centroid); dist < bestDist {
			bestDist = dist
			canonicalIdx = i
		}
	}

	platformCounts := make(map[string]int)
	totalEngagement := 0
	var earliest, latest *time.Time
	for _, m := range members {
		platform := m.Platform
		if platform == "" {
			platform = "unknown"
		}
		platformCounts[platform]++
		totalEngagement += m.Upvotes + m.Comments

		// Members without a timestamp are excluded from the time range
		if m.ExternalCreatedAt == nil {
			continue
		}
		t := *m.ExternalCreatedAt
		if earliest == nil || t.Before(*earliest) {
			earliest = &t
		}
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}

	return QuestionCluster{
		ClusterID:         label,
		CanonicalQuestion: members[canonicalIdx].NormalizedText,
		Questions:         members,
		Centroid:          centroid,
		PlatformCounts:    platformCounts,
		TotalEngagement:   totalEngagement,
		EarliestSeen:      earliest,
		LatestSeen:        latest,
	}
}

// FindSimilar ranks clusters by cosine similarity of their centroid to the
// query vector, descending, truncated to topK. Clusters without a centroid
// are excluded rather than scored as zero.
func (c *Clusterer) FindSimilar(query []float64, clusters []QuestionCluster, topK int) []ClusterMatch {
	var matches []ClusterMatch
	for i := range clusters {
		if len(clusters[i].Centroid) == 0 {
			continue
		}
		matches = append(matches, ClusterMatch{
			Cluster:    &clusters[i],
			Similarity: CosineSimilarity(query, clusters[i].Centroid),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// euclideanDistance returns the L2 distance over the shared prefix of a and b
func euclideanDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
