package knowledge

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/confidence"
	"github.com/dbdiag/dbdiag/internal/llm"
	"github.com/dbdiag/dbdiag/internal/vectordb"
)

// hashEmbedder produces small deterministic vectors from text length and
// byte sum, enough to exercise clustering without a real embedding model.
type hashEmbedder struct{ dim int }

func (h hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, h.dim)
		var sum float32
		for _, b := range []byte(t) {
			sum += float32(b)
		}
		for j := range vec {
			vec[j] = sum + float32(j)
		}
		out[i] = vec
	}
	return out, nil
}

func (h hashEmbedder) Dimensions() int { return h.dim }
func (h hashEmbedder) Name() string    { return "hash-test" }

type stubMergeProvider struct{}

func (stubMergeProvider) Name() string { return "stub-merge" }

func (stubMergeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	content := req.Messages[len(req.Messages)-1].Content
	switch {
	case strings.Contains(content, "remediation steps"):
		return &llm.CompletionResponse{Content: `{"solution": "merged solution"}`}, nil
	case strings.Contains(content, "root-cause explanations"):
		return &llm.CompletionResponse{Content: `{"description": "merged root cause"}`}, nil
	default:
		return &llm.CompletionResponse{Content: `{"description": "merged phenomenon"}`}, nil
	}
}

// fakeVectorStore counts added documents without doing real embedding.
type fakeVectorStore struct {
	docs    []vectordb.Document
	deleted []string
}

func (f *fakeVectorStore) AddDocuments(ctx context.Context, docs []vectordb.Document) error {
	f.docs = append(f.docs, docs...)
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, query string, limit int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) GetByEntityID(ctx context.Context, entityID string) ([]vectordb.Document, error) {
	return nil, nil
}
func (f *fakeVectorStore) DeleteByEntityID(ctx context.Context, entityID string) error {
	f.deleted = append(f.deleted, entityID)
	f.docs = slices.DeleteFunc(f.docs, func(d vectordb.Document) bool { return d.ID == entityID })
	return nil
}
func (f *fakeVectorStore) Persist(ctx context.Context, dir string) error               { return nil }
func (f *fakeVectorStore) Load(ctx context.Context, dir string) error                  { return nil }
func (f *fakeVectorStore) Count() int                                                  { return len(f.docs) }

func testRebuildConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxConcurrency = 2
	cfg.ClusterThreshold = 0.85
	return cfg
}

func TestRebuildIndexPopulatesStandardizedTables(t *testing.T) {
	store := newTestStore(t)
	vector := &fakeVectorStore{}
	store.vector = vector
	ctx := context.Background()

	payload := []byte(`[
		{"ticket_id": "T-0001", "description": "dashboard slow", "root_cause": "missing index", "solution": "add index",
		 "anomalies": [{"description": "query latency high", "observation_method": "slow query log", "why_relevant": "observed"}]},
		{"ticket_id": "T-0002", "description": "report slow", "root_cause": "missing index", "solution": "add index",
		 "anomalies": [{"description": "connection spike", "observation_method": "pg_stat_activity", "why_relevant": "observed"}]}
	]`)
	if _, err := store.ImportTickets(ctx, payload); err != nil {
		t.Fatalf("ImportTickets: %v", err)
	}

	result, err := store.RebuildIndex(ctx, testRebuildConfig(), hashEmbedder{dim: 4}, stubMergeProvider{}, nil)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if result.Phenomena == 0 {
		t.Error("expected at least one phenomenon")
	}
	if result.RootCauses != 1 {
		t.Errorf("RootCauses = %d, want 1 (both tickets share the same root cause text)", result.RootCauses)
	}
	if result.Tickets != 2 {
		t.Errorf("Tickets = %d, want 2", result.Tickets)
	}

	if len(vector.docs) == 0 {
		t.Error("expected vector store to receive documents")
	}

	phenomena, err := store.GetAllPhenomena(ctx)
	if err != nil {
		t.Fatalf("GetAllPhenomena: %v", err)
	}
	if len(phenomena) != result.Phenomena {
		t.Errorf("GetAllPhenomena returned %d, rebuild reported %d", len(phenomena), result.Phenomena)
	}

	var linked int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_anomalies WHERE phenomenon_id IS NOT NULL`).Scan(&linked); err != nil {
		t.Fatalf("counting linked anomalies: %v", err)
	}
	if linked != 2 {
		t.Errorf("linked anomalies = %d, want 2", linked)
	}
}

func TestRebuildIndexIsDestructiveAndIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`[{"ticket_id": "T-0001", "description": "slow dashboard", "root_cause": "missing index", "solution": "add index",
		"anomalies": [{"description": "query latency high"}]}]`)
	if _, err := store.ImportTickets(ctx, payload); err != nil {
		t.Fatalf("ImportTickets: %v", err)
	}

	cfg := testRebuildConfig()
	first, err := store.RebuildIndex(ctx, cfg, hashEmbedder{dim: 4}, stubMergeProvider{}, nil)
	if err != nil {
		t.Fatalf("first RebuildIndex: %v", err)
	}

	second, err := store.RebuildIndex(ctx, cfg, hashEmbedder{dim: 4}, stubMergeProvider{}, nil)
	if err != nil {
		t.Fatalf("second RebuildIndex: %v", err)
	}

	if first.Phenomena != second.Phenomena || first.RootCauses != second.RootCauses || first.Tickets != second.Tickets {
		t.Errorf("rebuild is not idempotent: first=%+v second=%+v", first, second)
	}

	var phenomenaCount int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM phenomena`).Scan(&phenomenaCount); err != nil {
		t.Fatalf("counting phenomena: %v", err)
	}
	if phenomenaCount != second.Phenomena {
		t.Errorf("stale phenomena rows left behind: table has %d, rebuild reported %d", phenomenaCount, second.Phenomena)
	}
}

func TestRebuildIndexWithNoVectorStoreSucceeds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`[{"ticket_id": "T-0001", "description": "slow dashboard", "root_cause": "missing index", "solution": "add index",
		"anomalies": [{"description": "query latency high"}]}]`)
	if _, err := store.ImportTickets(ctx, payload); err != nil {
		t.Fatalf("ImportTickets: %v", err)
	}

	if _, err := store.RebuildIndex(ctx, testRebuildConfig(), hashEmbedder{dim: 4}, stubMergeProvider{}, nil); err != nil {
		t.Fatalf("RebuildIndex with nil vector store: %v", err)
	}
}

func TestRebuildIndexEvictsStaleVectorsOnRebuild(t *testing.T) {
	store := newTestStore(t)
	vector := &fakeVectorStore{}
	store.vector = vector
	ctx := context.Background()

	firstPayload := []byte(`[{"ticket_id": "T-0001", "description": "dashboard slow", "root_cause": "missing index", "solution": "add index",
		"anomalies": [{"description": "query latency high"}]}]`)
	if _, err := store.ImportTickets(ctx, firstPayload); err != nil {
		t.Fatalf("ImportTickets: %v", err)
	}
	if _, err := store.RebuildIndex(ctx, testRebuildConfig(), hashEmbedder{dim: 4}, stubMergeProvider{}, nil); err != nil {
		t.Fatalf("first RebuildIndex: %v", err)
	}

	firstPhenomena, err := store.GetAllPhenomena(ctx)
	if err != nil {
		t.Fatalf("GetAllPhenomena: %v", err)
	}
	if len(firstPhenomena) == 0 {
		t.Fatal("expected at least one phenomenon after first rebuild")
	}
	firstIDs := make([]string, len(firstPhenomena))
	for i, p := range firstPhenomena {
		firstIDs[i] = p.ID
	}
	// Phenomenon ids are renumbered from P-0001 on every rebuild, so a stale
	// vector is recognized by its id together with its first-rebuild content.
	firstContent := make(map[string]string, len(vector.docs))
	for _, d := range vector.docs {
		firstContent[d.ID] = d.Content
	}

	secondPayload := []byte(`[{"ticket_id": "T-0002", "description": "replica lag growing", "root_cause": "network partition", "solution": "failover",
		"anomalies": [{"description": "replication lag spike"}]}]`)
	if _, err := store.ImportTickets(ctx, secondPayload); err != nil {
		t.Fatalf("ImportTickets: %v", err)
	}
	if _, err := store.RebuildIndex(ctx, testRebuildConfig(), hashEmbedder{dim: 4}, stubMergeProvider{}, nil); err != nil {
		t.Fatalf("second RebuildIndex: %v", err)
	}

	for _, id := range firstIDs {
		if !slices.Contains(vector.deleted, id) {
			t.Errorf("expected stale entity %s to be evicted from the vector store, deleted=%v", id, vector.deleted)
		}
		for _, d := range vector.docs {
			if d.ID == id && d.Content == firstContent[id] {
				t.Errorf("stale document for entity %s still present in vector store after rebuild", id)
			}
		}
	}
}

func TestRebuildIndexRecordsConfidence(t *testing.T) {
	store := newTestStore(t)
	confStore := confidence.NewStore(store.db)
	store.SetConfidenceStore(confStore)
	ctx := context.Background()

	payload := []byte(`[
		{"ticket_id": "T-0001", "description": "dashboard slow", "root_cause": "missing index", "solution": "add index",
		 "anomalies": [{"description": "query latency high"}]},
		{"ticket_id": "T-0002", "description": "report slow", "root_cause": "missing index on orders", "solution": "add index",
		 "anomalies": [{"description": "connection spike"}]}
	]`)
	if _, err := store.ImportTickets(ctx, payload); err != nil {
		t.Fatalf("ImportTickets: %v", err)
	}

	result, err := store.RebuildIndex(ctx, testRebuildConfig(), hashEmbedder{dim: 4}, stubMergeProvider{}, nil)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if result.RootCauses != 1 {
		t.Fatalf("RootCauses = %d, want 1 (the two distinct root cause texts cluster together)", result.RootCauses)
	}

	rootCauses, err := store.GetAllRootCauses(ctx)
	if err != nil {
		t.Fatalf("GetAllRootCauses: %v", err)
	}
	if len(rootCauses) != 1 {
		t.Fatalf("expected 1 root cause, got %d", len(rootCauses))
	}
	mergedRootCause := rootCauses[0]
	if mergedRootCause.ClusterSize <= 1 {
		t.Fatalf("expected merged root cause to have ClusterSize > 1, got %d", mergedRootCause.ClusterSize)
	}

	rcMeta, err := confStore.Get(ctx, confidence.EntityRootCauseDescription, mergedRootCause.ID)
	if err != nil {
		t.Fatalf("Get root cause confidence: %v", err)
	}
	if rcMeta == nil {
		t.Fatal("expected confidence metadata for merged root cause, got none")
	}
	if rcMeta.Confidence != confidence.LevelAIInferred {
		t.Errorf("merged root cause confidence = %s, want %s", rcMeta.Confidence, confidence.LevelAIInferred)
	}
	if rcMeta.Source != confidence.SourceLLMMerge {
		t.Errorf("merged root cause source = %s, want %s", rcMeta.Source, confidence.SourceLLMMerge)
	}

	solutionMeta, err := confStore.Get(ctx, confidence.EntitySolution, mergedRootCause.ID)
	if err != nil {
		t.Fatalf("Get solution confidence: %v", err)
	}
	if solutionMeta == nil {
		t.Fatal("expected confidence metadata for solution, got none")
	}
	if solutionMeta.Confidence != confidence.LevelAIInferred {
		t.Errorf("merged solution confidence = %s, want %s", solutionMeta.Confidence, confidence.LevelAIInferred)
	}

	phenomena, err := store.GetAllPhenomena(ctx)
	if err != nil {
		t.Fatalf("GetAllPhenomena: %v", err)
	}
	for _, p := range phenomena {
		meta, err := confStore.Get(ctx, confidence.EntityPhenomenonDescription, p.ID)
		if err != nil {
			t.Fatalf("Get phenomenon confidence for %s: %v", p.ID, err)
		}
		if meta == nil {
			t.Fatalf("expected confidence metadata for phenomenon %s, got none", p.ID)
		}
		wantLevel := confidence.LevelAutoDetected
		wantSource := confidence.SourceClustering
		if p.ClusterSize > 1 {
			wantLevel = confidence.LevelAIInferred
			wantSource = confidence.SourceLLMMerge
		}
		if meta.Confidence != wantLevel {
			t.Errorf("phenomenon %s confidence = %s, want %s (cluster size %d)", p.ID, meta.Confidence, wantLevel, p.ClusterSize)
		}
		if meta.Source != wantSource {
			t.Errorf("phenomenon %s source = %s, want %s", p.ID, meta.Source, wantSource)
		}
	}
}
