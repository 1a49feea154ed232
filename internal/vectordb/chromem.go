package vectordb

import (
	"context"
	"fmt"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/dbdiag/dbdiag/internal/embeddings"
)

const collectionName = "dbdiag"

// ChromemStore implements VectorStore using chromem-go, holding the
// embeddings for phenomena, root causes, and raw ticket/anomaly
// descriptions in one collection distinguished by a type field.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	embedFunc  chromem.EmbeddingFunc
}

// NewChromemStore creates a new in-memory ChromemStore.
func NewChromemStore(embedder embeddings.Embedder) (*ChromemStore, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: col,
		embedder:   embedder,
		embedFunc:  ef,
	}, nil
}

func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromDocs[i] = chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: metadataToMap(doc.Metadata),
		}
	}

	return s.collection.AddDocuments(ctx, chromDocs, 1)
}

func (s *ChromemStore) Search(ctx context.Context, query string, limit int, filter *SearchFilter) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	// chromem-go requires nResults <= collection size.
	if count := s.collection.Count(); limit > count && count > 0 {
		limit = count
	} else if count == 0 {
		return nil, nil
	}

	where := buildWhereClause(filter)

	results, err := s.collection.Query(ctx, query, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: mapToMetadata(r.Metadata),
			},
			Similarity: r.Similarity,
		}
	}

	return searchResults, nil
}

func (s *ChromemStore) GetByEntityID(ctx context.Context, entityID string) ([]Document, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	where := map[string]string{"entity_id": entityID}

	results, err := s.collection.Query(ctx, entityID, count, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query by entity id: %w", err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: mapToMetadata(r.Metadata),
		}
	}

	return docs, nil
}

func (s *ChromemStore) DeleteByEntityID(ctx context.Context, entityID string) error {
	where := map[string]string{"entity_id": entityID}
	return s.collection.Delete(ctx, where, nil)
}

func (s *ChromemStore) Persist(ctx context.Context, dir string) error {
	return s.db.ExportToFile(dir+"/chromem.gob.gz", true, "")
}

func (s *ChromemStore) Load(ctx context.Context, dir string) error {
	err := s.db.ImportFromFile(dir+"/chromem.gob.gz", "")
	if err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection reference after import.
	col := s.db.GetCollection(collectionName, s.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	s.collection = col
	return nil
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

// metadataToMap converts DocumentMetadata to a flat map[string]string for chromem.
func metadataToMap(m DocumentMetadata) map[string]string {
	return map[string]string{
		"entity_id":    m.EntityID,
		"type":         string(m.Type),
		"content_hash": m.ContentHash,
		"last_updated": m.LastUpdated.Format(time.RFC3339),
	}
}

// mapToMetadata converts a flat map[string]string back to DocumentMetadata.
func mapToMetadata(m map[string]string) DocumentMetadata {
	lastUpdated, _ := time.Parse(time.RFC3339, m["last_updated"])

	return DocumentMetadata{
		EntityID:    m["entity_id"],
		Type:        DocumentType(m["type"]),
		ContentHash: m["content_hash"],
		LastUpdated: lastUpdated,
	}
}

// buildWhereClause converts a SearchFilter to a chromem where clause.
func buildWhereClause(filter *SearchFilter) map[string]string {
	if filter == nil {
		return nil
	}

	where := make(map[string]string)
	if filter.Type != nil {
		where["type"] = string(*filter.Type)
	}

	if len(where) == 0 {
		return nil
	}
	return where
}
