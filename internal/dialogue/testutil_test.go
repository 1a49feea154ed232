package dialogue

import (
	"context"
	"testing"
	"time"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/db"
	"github.com/dbdiag/dbdiag/internal/knowledge"
	"github.com/dbdiag/dbdiag/internal/llm"
	"github.com/dbdiag/dbdiag/internal/retriever"
	"github.com/dbdiag/dbdiag/internal/vectordb"
)

// fakeVectorStore returns a fixed, caller-supplied set of results
// regardless of query text. Tests that don't care about retriever
// behavior leave it empty, which makes Retrieve a no-op.
type fakeVectorStore struct {
	byType map[vectordb.DocumentType][]vectordb.SearchResult
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{byType: map[vectordb.DocumentType][]vectordb.SearchResult{}}
}

func (f *fakeVectorStore) AddDocuments(ctx context.Context, docs []vectordb.Document) error { return nil }
func (f *fakeVectorStore) Search(ctx context.Context, query string, limit int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	var typ vectordb.DocumentType
	if filter != nil && filter.Type != nil {
		typ = *filter.Type
	}
	results := f.byType[typ]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
func (f *fakeVectorStore) GetByEntityID(ctx context.Context, entityID string) ([]vectordb.Document, error) {
	return nil, nil
}
func (f *fakeVectorStore) DeleteByEntityID(ctx context.Context, entityID string) error { return nil }
func (f *fakeVectorStore) Persist(ctx context.Context, dir string) error              { return nil }
func (f *fakeVectorStore) Load(ctx context.Context, dir string) error                 { return nil }
func (f *fakeVectorStore) Count() int                                                 { return 0 }

// fakeLLMProvider returns a canned response regardless of input, unless
// Err is set.
type fakeLLMProvider struct {
	Response string
	Err      error
}

func (f *fakeLLMProvider) Name() string { return "fake" }
func (f *fakeLLMProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &llm.CompletionResponse{Content: f.Response}, nil
}

func newTestManagerDeps(t *testing.T) (*knowledge.Store, *db.DB, *fakeVectorStore) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	vector := newFakeVectorStore()
	store := knowledge.NewStore(database, vector)
	return store, database, vector
}

func testDialogueConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.TopKHypotheses = 3
	cfg.TopNRecommend = 3
	cfg.DiagnosisThreshold = 0.80
	cfg.ModerateThreshold = 0.50
	cfg.TurnBudget = 5 * time.Second
	return cfg
}

func newTestRetriever(store *knowledge.Store, vector *fakeVectorStore) *retriever.Retriever {
	return retriever.New(store, vector)
}

func seedPhenomenon(t *testing.T, database *db.DB, id, description string) {
	t.Helper()
	if _, err := database.ExecContext(context.Background(),
		`INSERT INTO phenomena (id, description, observation_method, cluster_size) VALUES (?, ?, '', 1)`,
		id, description); err != nil {
		t.Fatalf("seeding phenomenon %s: %v", id, err)
	}
}

func seedRootCause(t *testing.T, database *db.DB, id, description, solution string) {
	t.Helper()
	if _, err := database.ExecContext(context.Background(),
		`INSERT INTO root_causes (id, description, solution, ticket_count) VALUES (?, ?, ?, 0)`,
		id, description, solution); err != nil {
		t.Fatalf("seeding root cause %s: %v", id, err)
	}
}

func seedLink(t *testing.T, database *db.DB, phenomenonID, rootCauseID string, ticketCount int) {
	t.Helper()
	if _, err := database.ExecContext(context.Background(),
		`INSERT INTO phenomenon_root_cause (phenomenon_id, root_cause_id, ticket_count) VALUES (?, ?, ?)`,
		phenomenonID, rootCauseID, ticketCount); err != nil {
		t.Fatalf("seeding link %s/%s: %v", phenomenonID, rootCauseID, err)
	}
}

func seedTicketPhenomenon(t *testing.T, database *db.DB, ticketID, phenomenonID, rootCauseID string) {
	t.Helper()
	if _, err := database.ExecContext(context.Background(),
		`INSERT INTO raw_tickets (ticket_id, description) VALUES (?, '') ON CONFLICT(ticket_id) DO NOTHING`,
		ticketID); err != nil {
		t.Fatalf("seeding raw ticket %s: %v", ticketID, err)
	}
	if _, err := database.ExecContext(context.Background(),
		`INSERT INTO tickets (ticket_id, description, root_cause_id) VALUES (?, '', ?)
			ON CONFLICT(ticket_id) DO UPDATE SET root_cause_id = excluded.root_cause_id`,
		ticketID, rootCauseID); err != nil {
		t.Fatalf("seeding ticket %s: %v", ticketID, err)
	}
	if _, err := database.ExecContext(context.Background(),
		`INSERT INTO ticket_phenomena (ticket_id, phenomenon_id, raw_anomaly_id) VALUES (?, ?, ?)`,
		ticketID, phenomenonID, ticketID+"_anomaly_0"); err != nil {
		t.Fatalf("seeding ticket_phenomena %s/%s: %v", ticketID, phenomenonID, err)
	}
}
