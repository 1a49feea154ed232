package indexer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/embeddings"
	"github.com/dbdiag/dbdiag/internal/llm"
)

// anomalyItem adapts an AnomalyRecord to the Embeddable interface for clustering.
type anomalyItem struct {
	rec       AnomalyRecord
	embedding []float32
}

func (a anomalyItem) ClusterKey() string      { return a.rec.ID }
func (a anomalyItem) ClusterVector() []float32 { return a.embedding }

// BuildPhenomena runs phenomenon construction (spec §4.1.1): embeds every
// anomaly description, greedily clusters by cosine similarity, and emits
// one canonical Phenomenon per cluster. Anomalies must already be sorted
// in (ticket_id, index) lexicographic order by the caller for reproducible
// rebuilds.
func BuildPhenomena(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, provider llm.Provider, anomalies []AnomalyRecord, onProgress ProgressFunc) ([]Phenomenon, error) {
	if len(anomalies) == 0 {
		return nil, nil
	}

	texts := make([]string, len(anomalies))
	for i, a := range anomalies {
		texts[i] = a.Description
	}

	batcher := NewBatcher(cfg.MaxConcurrency, embedder, onProgress)
	embedded, err := batcher.EmbedAll(ctx, texts, "embedding anomalies")
	if err != nil {
		return nil, fmt.Errorf("embedding anomalies: %w", err)
	}

	items := make([]Embeddable, len(anomalies))
	byKey := make(map[string]anomalyItem, len(anomalies))
	for i, a := range anomalies {
		it := anomalyItem{rec: a, embedding: embedded[i]}
		items[i] = it
		byKey[a.ID] = it
	}

	clusters := GreedyCluster(items, cfg.ClusterThreshold)

	now := time.Now()
	phenomena := make([]Phenomenon, 0, len(clusters))
	for i, c := range clusters {
		descs := make([]string, 0, len(c.Members))
		var observationMethod string
		for _, key := range c.Members {
			it := byKey[key]
			descs = append(descs, it.rec.Description)
			if len(it.rec.ObservationMethod) > len(observationMethod) {
				observationMethod = it.rec.ObservationMethod
			}
		}

		description := descs[0]
		if len(descs) > 1 {
			merged, err := mergePhenomenonDescription(ctx, provider, cfg.Model, descs)
			if err != nil {
				return nil, fmt.Errorf("merging phenomenon description for cluster %d: %w", i, err)
			}
			description = merged
		}

		phenomena = append(phenomena, Phenomenon{
			ID:                formatID("P", i+1),
			Description:       description,
			ObservationMethod: observationMethod,
			SourceAnomalyIDs:  append([]string{}, c.Members...),
			ClusterSize:       len(c.Members),
			Embedding:         c.Centroid,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	return phenomena, nil
}

type mergedDescription struct {
	Description string `json:"description"`
}

func mergePhenomenonDescription(ctx context.Context, provider llm.Provider, model string, descs []string) (string, error) {
	req := llm.CompletionRequest{Model: model, Messages: buildMergePhenomenonMessages(descs), MaxTokens: 512}
	var out mergedDescription
	if err := llm.CompleteSchema(ctx, provider, req, `{"description": string}`, &out); err != nil {
		return "", err
	}
	if out.Description == "" {
		return "", fmt.Errorf("merge returned empty description")
	}
	return out.Description, nil
}

// formatID generates a zero-padded identifier like "P-0001", falling back
// to an unpadded suffix past 9999.
func formatID(prefix string, n int) string {
	if n <= 9999 {
		return fmt.Sprintf("%s-%04d", prefix, n)
	}
	return fmt.Sprintf("%s-%d", prefix, n)
}

// sortAnomalies orders anomalies in (ticket_id, index) lexicographic order,
// the mandatory iteration order for reproducible clustering (spec §4.1.4).
func sortAnomalies(anomalies []AnomalyRecord) {
	sort.Slice(anomalies, func(i, j int) bool {
		if anomalies[i].TicketID != anomalies[j].TicketID {
			return anomalies[i].TicketID < anomalies[j].TicketID
		}
		return anomalies[i].Index < anomalies[j].Index
	})
}
