// Package retriever maps a free-text problem description to a ranked list
// of relevant phenomena, and supports the ticket-description similarity
// search used by the Hyb dialogue variant.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/dbdiag/dbdiag/internal/knowledge"
	"github.com/dbdiag/dbdiag/internal/vectordb"
)

const vectorCandidatePool = 50

// Scored pairs a standardized phenomenon with its final retrieval score.
type Scored struct {
	Phenomenon knowledge.PhenomenonRecord
	Score      float64
}

// Retriever implements spec §4.2 over the knowledge store's vector index
// and standardized tables.
type Retriever struct {
	store  *knowledge.Store
	vector vectordb.VectorStore
}

// New creates a Retriever backed by the given knowledge store and vector
// index.
func New(store *knowledge.Store, vector vectordb.VectorStore) *Retriever {
	return &Retriever{store: store, vector: vector}
}

// Retrieve implements spec §4.2's `retrieve`: vector search for a
// candidate pool, keyword filtering, then a weighted rerank that rewards
// novel (not-yet-excluded) phenomena.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, excludedIDs map[string]bool) ([]Scored, error) {
	if topK <= 0 {
		topK = 10
	}
	if excludedIDs == nil {
		excludedIDs = map[string]bool{}
	}

	phenomenonType := vectordb.DocTypePhenomenon
	results, err := r.vector.Search(ctx, query, vectorCandidatePool, &vectordb.SearchFilter{Type: &phenomenonType})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	vectorSim := make(map[string]float64, len(results))
	for i, res := range results {
		ids[i] = res.Document.Metadata.EntityID
		vectorSim[res.Document.Metadata.EntityID] = float64(res.Similarity)
	}

	phenomena, err := r.store.GetPhenomenaByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading candidate phenomena: %w", err)
	}

	queryTokens := tokenize(query)

	type candidate struct {
		phenomenon knowledge.PhenomenonRecord
		hits       int
		fraction   float64
	}
	candidates := make([]candidate, 0, len(phenomena))
	for _, p := range phenomena {
		text := p.Description + " " + p.ObservationMethod
		hits := keywordHits(queryTokens, text)
		fraction := 0.0
		if len(queryTokens) > 0 {
			fraction = float64(hits) / float64(len(queryTokens))
			if fraction > 1 {
				fraction = 1
			}
		}
		candidates = append(candidates, candidate{phenomenon: p, hits: hits, fraction: fraction})
	}

	survivors := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.hits >= 1 {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) < topK {
		survivors = candidates
	}

	scored := make([]Scored, 0, len(survivors))
	for _, c := range survivors {
		novelty := 1.0
		if excludedIDs[c.phenomenon.ID] {
			novelty = 0.3
		}
		final := 0.5*c.fraction + 0.3*vectorSim[c.phenomenon.ID] + 0.2*novelty
		scored = append(scored, Scored{Phenomenon: c.phenomenon, Score: final})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// SearchByTicketDescription implements spec §4.2's Hyb-only
// `search_by_ticket_description`: semantic search over ticket-description
// embeddings, returning the top_k matching ticket ids.
func (r *Retriever) SearchByTicketDescription(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 5
	}

	ticketType := vectordb.DocTypeTicketDescription
	results, err := r.vector.Search(ctx, query, topK, &vectordb.SearchFilter{Type: &ticketType})
	if err != nil {
		return nil, fmt.Errorf("vector search over ticket descriptions: %w", err)
	}

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.Document.Metadata.EntityID
	}
	return ids, nil
}

// GetPhenomenaByTicketIDs implements spec §4.2's
// `get_phenomena_by_ticket_ids`: the union of phenomena associated with
// any of the given tickets, deduplicated.
func (r *Retriever) GetPhenomenaByTicketIDs(ctx context.Context, ticketIDs []string) ([]knowledge.PhenomenonRecord, error) {
	return r.store.GetPhenomenaByTicketIDs(ctx, ticketIDs)
}
