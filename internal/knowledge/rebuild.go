package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/confidence"
	"github.com/dbdiag/dbdiag/internal/embeddings"
	"github.com/dbdiag/dbdiag/internal/indexer"
	"github.com/dbdiag/dbdiag/internal/llm"
	"github.com/dbdiag/dbdiag/internal/vectordb"
)

// RebuildResult summarizes a completed index rebuild.
type RebuildResult struct {
	Phenomena  int
	RootCauses int
	Tickets    int
	Duration   string
}

// RebuildIndex runs the full offline pipeline of spec §4.1, holding the
// store's exclusive lock for the duration so online readers never observe
// a partially-rebuilt graph. The standardized tables are destructively
// replaced inside a single transaction (delete, then insert); if the
// replacement fails the transaction rolls back and the prior standardized
// tables are left untouched. The vector index and confidence metadata are
// updated after that transaction commits.
func (s *Store) RebuildIndex(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, provider llm.Provider, onProgress indexer.ProgressFunc) (*RebuildResult, error) {
	s.db.Lock()
	defer s.db.Unlock()

	anomalies, err := s.loadAnomalies(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading raw anomalies: %w", err)
	}

	rawTickets, err := s.loadRawTickets(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading raw tickets: %w", err)
	}

	staleEntityIDs, err := s.loadIndexedEntityIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading prior vector index entity ids: %w", err)
	}

	result, err := indexer.Run(ctx, cfg, embedder, provider, anomalies, rawTickets, onProgress)
	if err != nil {
		return nil, fmt.Errorf("running index pipeline: %w", err)
	}

	if err := s.swapStandardizedTables(ctx, result); err != nil {
		return nil, fmt.Errorf("swapping standardized tables: %w", err)
	}

	if err := s.reindexVectorStore(ctx, result, staleEntityIDs); err != nil {
		return nil, fmt.Errorf("rebuilding vector index: %w", err)
	}

	if err := s.recordConfidence(ctx, result); err != nil {
		return nil, fmt.Errorf("recording confidence metadata: %w", err)
	}

	return &RebuildResult{
		Phenomena:  len(result.Phenomena),
		RootCauses: len(result.RootCauses),
		Tickets:    len(result.Tickets),
		Duration:   result.Duration.String(),
	}, nil
}

func (s *Store) loadAnomalies(ctx context.Context) ([]indexer.AnomalyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, idx, description, observation_method, why_relevant
		FROM raw_anomalies ORDER BY ticket_id, idx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []indexer.AnomalyRecord
	for rows.Next() {
		var a indexer.AnomalyRecord
		if err := rows.Scan(&a.ID, &a.TicketID, &a.Index, &a.Description, &a.ObservationMethod, &a.WhyRelevant); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) loadRawTickets(ctx context.Context) ([]indexer.RawTicketInput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket_id, description, root_cause_text, solution
		FROM raw_tickets ORDER BY ticket_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []indexer.RawTicketInput
	for rows.Next() {
		var t indexer.RawTicketInput
		if err := rows.Scan(&t.TicketID, &t.Description, &t.RootCauseText, &t.Solution); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// loadIndexedEntityIDs returns every phenomenon and ticket id currently
// backing a vector document, captured before swapStandardizedTables
// destructively replaces the standardized tables. reindexVectorStore uses
// this list to evict every prior vector before adding the rebuilt ones.
func (s *Store) loadIndexedEntityIDs(ctx context.Context) ([]string, error) {
	var ids []string

	phenomenonRows, err := s.db.QueryContext(ctx, `SELECT id FROM phenomena`)
	if err != nil {
		return nil, err
	}
	defer phenomenonRows.Close()
	for phenomenonRows.Next() {
		var id string
		if err := phenomenonRows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := phenomenonRows.Err(); err != nil {
		return nil, err
	}

	ticketRows, err := s.db.QueryContext(ctx, `SELECT ticket_id FROM tickets`)
	if err != nil {
		return nil, err
	}
	defer ticketRows.Close()
	for ticketRows.Next() {
		var id string
		if err := ticketRows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, ticketRows.Err()
}

// swapStandardizedTables replaces the standardized tables with the rebuild
// result inside one transaction.
func (s *Store) swapStandardizedTables(ctx context.Context, result *indexer.BuildResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM phenomenon_root_cause`,
		`DELETE FROM ticket_phenomena`,
		`DELETE FROM tickets`,
		`DELETE FROM root_causes`,
		`DELETE FROM phenomena`,
		`UPDATE raw_anomalies SET phenomenon_id = NULL`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing standardized tables: %w", err)
		}
	}

	for _, p := range result.Phenomena {
		embeddingJSON, err := json.Marshal(p.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO phenomena (id, description, observation_method, cluster_size, embedding)
			VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Description, p.ObservationMethod, p.ClusterSize, string(embeddingJSON),
		); err != nil {
			return fmt.Errorf("inserting phenomenon %s: %w", p.ID, err)
		}

		for _, anomalyID := range p.SourceAnomalyIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE raw_anomalies SET phenomenon_id = ? WHERE id = ?`, p.ID, anomalyID); err != nil {
				return fmt.Errorf("linking anomaly %s to phenomenon %s: %w", anomalyID, p.ID, err)
			}
		}
	}

	for _, rc := range result.RootCauses {
		embeddingJSON, err := json.Marshal(rc.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO root_causes (id, description, solution, cluster_size, ticket_count, embedding)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rc.ID, rc.Description, rc.Solution, rc.ClusterSize, rc.TicketCount, string(embeddingJSON),
		); err != nil {
			return fmt.Errorf("inserting root cause %s: %w", rc.ID, err)
		}
	}

	for _, t := range result.Tickets {
		var rootCauseID interface{}
		if t.RootCauseID != "" {
			rootCauseID = t.RootCauseID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (ticket_id, description, root_cause_id, solution)
			VALUES (?, ?, ?, ?)`,
			t.TicketID, t.Description, rootCauseID, t.Solution,
		); err != nil {
			return fmt.Errorf("inserting ticket %s: %w", t.TicketID, err)
		}
	}

	for _, tp := range result.TicketPhenomena {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ticket_phenomena (ticket_id, phenomenon_id, why_relevant, raw_anomaly_id)
			VALUES (?, ?, ?, ?)`,
			tp.TicketID, tp.PhenomenonID, tp.WhyRelevant, tp.RawAnomalyID,
		); err != nil {
			return fmt.Errorf("inserting ticket_phenomena row: %w", err)
		}
	}

	for _, prc := range result.PhenomenonRootCauses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO phenomenon_root_cause (phenomenon_id, root_cause_id, ticket_count)
			VALUES (?, ?, ?)`,
			prc.PhenomenonID, prc.RootCauseID, prc.TicketCount,
		); err != nil {
			return fmt.Errorf("inserting phenomenon_root_cause row: %w", err)
		}
	}

	return tx.Commit()
}

// reindexVectorStore repopulates the vector index with phenomenon and
// ticket-description documents for retrieval, once the standardized tables
// have been swapped in. staleEntityIDs are evicted first so a destructive
// rebuild that drops or renumbers phenomena/tickets doesn't leave orphaned
// vectors surfacing in retriever.Retrieve's candidate pool.
func (s *Store) reindexVectorStore(ctx context.Context, result *indexer.BuildResult, staleEntityIDs []string) error {
	if s.vector == nil {
		return nil
	}

	for _, id := range staleEntityIDs {
		if err := s.vector.DeleteByEntityID(ctx, id); err != nil {
			return fmt.Errorf("evicting stale vector entity %s: %w", id, err)
		}
	}

	var docs []vectordb.Document
	for _, p := range result.Phenomena {
		docs = append(docs, vectordb.Document{
			ID:      p.ID,
			Content: p.Description,
			Metadata: vectordb.DocumentMetadata{
				EntityID: p.ID,
				Type:     vectordb.DocTypePhenomenon,
			},
		})
	}
	for _, t := range result.Tickets {
		docs = append(docs, vectordb.Document{
			ID:      t.TicketID,
			Content: t.Description,
			Metadata: vectordb.DocumentMetadata{
				EntityID: t.TicketID,
				Type:     vectordb.DocTypeTicketDescription,
			},
		})
	}

	if len(docs) == 0 {
		return nil
	}
	return s.vector.AddDocuments(ctx, docs)
}

// recordConfidence attributes provenance to every phenomenon and root-cause
// description the rebuild produced. A cluster of one member is a direct,
// unmerged description (clustering only); a cluster of more than one had
// its description synthesized by the LLM merge step and is graded
// ai_inferred so operators know which descriptions to double check.
func (s *Store) recordConfidence(ctx context.Context, result *indexer.BuildResult) error {
	if s.confidence == nil {
		return nil
	}

	for _, p := range result.Phenomena {
		meta := confidence.Metadata{
			EntityType: confidence.EntityPhenomenonDescription,
			EntityID:   p.ID,
			Confidence: confidence.LevelAutoDetected,
			Source:     confidence.SourceClustering,
		}
		if p.ClusterSize > 1 {
			meta.Confidence = confidence.LevelAIInferred
			meta.Source = confidence.SourceLLMMerge
			meta.SourceDetail = fmt.Sprintf("merged from %d anomaly observations", p.ClusterSize)
		}
		if err := s.confidence.Set(ctx, meta); err != nil {
			return fmt.Errorf("recording confidence for phenomenon %s: %w", p.ID, err)
		}
	}

	for _, rc := range result.RootCauses {
		meta := confidence.Metadata{
			EntityType: confidence.EntityRootCauseDescription,
			EntityID:   rc.ID,
			Confidence: confidence.LevelAutoDetected,
			Source:     confidence.SourceClustering,
		}
		if rc.ClusterSize > 1 {
			meta.Confidence = confidence.LevelAIInferred
			meta.Source = confidence.SourceLLMMerge
			meta.SourceDetail = fmt.Sprintf("merged from %d raw root-cause descriptions", rc.ClusterSize)
		}
		if err := s.confidence.Set(ctx, meta); err != nil {
			return fmt.Errorf("recording confidence for root cause %s: %w", rc.ID, err)
		}

		solutionMeta := confidence.Metadata{
			EntityType: confidence.EntitySolution,
			EntityID:   rc.ID,
			Confidence: confidence.LevelAutoDetected,
			Source:     confidence.SourceClustering,
		}
		if rc.ClusterSize > 1 {
			solutionMeta.Confidence = confidence.LevelAIInferred
			solutionMeta.Source = confidence.SourceLLMMerge
		}
		if err := s.confidence.Set(ctx, solutionMeta); err != nil {
			return fmt.Errorf("recording confidence for root cause %s solution: %w", rc.ID, err)
		}
	}

	return nil
}
