package indexer

import "math"

// Embeddable is anything that can be clustered by its embedding vector,
// keyed by a stable identifier used to report cluster membership.
type Embeddable interface {
	ClusterKey() string
	ClusterVector() []float32
}

// Cluster is a greedily-grown group of embeddable items sharing a running
// centroid.
type Cluster struct {
	Centroid []float32
	Members  []string
}

// GreedyCluster performs the greedy incremental clustering shared by
// phenomenon and root-cause construction: items are visited in the order
// given (callers must pre-sort for reproducibility), and each item joins
// the existing cluster with the highest cosine similarity to its centroid
// if that similarity is at or above threshold, else starts a new singleton
// cluster. The centroid is updated as an incremental mean.
func GreedyCluster(items []Embeddable, threshold float64) []Cluster {
	var clusters []Cluster

	for _, item := range items {
		vec := item.ClusterVector()
		bestIdx := -1
		bestSim := -1.0

		for i, c := range clusters {
			sim := cosineSimilarity(vec, c.Centroid)
			if sim > bestSim {
				bestSim = sim
				bestIdx = i
			}
		}

		if bestIdx >= 0 && bestSim >= threshold {
			c := &clusters[bestIdx]
			n := len(c.Members) + 1
			c.Centroid = incrementalMean(c.Centroid, vec, n)
			c.Members = append(c.Members, item.ClusterKey())
			continue
		}

		clusters = append(clusters, Cluster{
			Centroid: append([]float32{}, vec...),
			Members:  []string{item.ClusterKey()},
		})
	}

	return clusters
}

// incrementalMean computes c_new = (c_old*(n-1) + e) / n element-wise.
func incrementalMean(centroid, e []float32, n int) []float32 {
	out := make([]float32, len(centroid))
	for i := range centroid {
		out[i] = (centroid[i]*float32(n-1) + e[i]) / float32(n)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
