package knowledge

import (
	"github.com/dbdiag/dbdiag/internal/confidence"
	"github.com/dbdiag/dbdiag/internal/db"
	"github.com/dbdiag/dbdiag/internal/vectordb"
)

// Store is the knowledge-graph store: raw tickets/anomalies and the
// standardized phenomena/root-cause tables built from them, plus the
// vector index used for retrieval.
type Store struct {
	db         *db.DB
	vector     vectordb.VectorStore
	confidence *confidence.Store
}

// NewStore creates a Store backed by the given database and vector index.
func NewStore(database *db.DB, vector vectordb.VectorStore) *Store {
	return &Store{db: database, vector: vector}
}

// SetConfidenceStore attaches a confidence.Store that RebuildIndex records
// per-entity provenance metadata into. Optional: a Store with no
// confidence store attached rebuilds without recording provenance.
func (s *Store) SetConfidenceStore(store *confidence.Store) {
	s.confidence = store
}
