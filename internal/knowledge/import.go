package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
)

// RawTicketJSON is the wire format for one element of the raw-ticket import
// array (spec §6.1).
type RawTicketJSON struct {
	TicketID    string                 `json:"ticket_id"`
	Metadata    map[string]interface{} `json:"metadata"`
	Description string                 `json:"description"`
	RootCause   string                 `json:"root_cause"`
	Solution    string                 `json:"solution"`
	Anomalies   []RawAnomalyJSON       `json:"anomalies"`
}

// RawAnomalyJSON is one anomaly entry nested under a raw ticket.
type RawAnomalyJSON struct {
	Description       string `json:"description"`
	ObservationMethod string `json:"observation_method"`
	WhyRelevant       string `json:"why_relevant"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	TicketsImported   int
	AnomaliesImported int
}

// ImportTickets appends rows to the raw tables from a JSON array matching
// RawTicketJSON. Import is an upsert: existing raw_tickets rows with the
// same ticket_id are overwritten and their anomalies replaced, matching the
// teacher's upsert-by-primary-key pattern; tickets absent from the payload
// are kept.
func (s *Store) ImportTickets(ctx context.Context, data []byte) (*ImportResult, error) {
	var tickets []RawTicketJSON
	if err := json.Unmarshal(data, &tickets); err != nil {
		return nil, fmt.Errorf("parsing raw ticket import: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	result := &ImportResult{}
	for _, t := range tickets {
		metadataJSON, err := json.Marshal(t.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshalling metadata for %s: %w", t.TicketID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO raw_tickets (ticket_id, description, root_cause_text, solution, metadata)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(ticket_id) DO UPDATE SET
				description = excluded.description,
				root_cause_text = excluded.root_cause_text,
				solution = excluded.solution,
				metadata = excluded.metadata`,
			t.TicketID, t.Description, t.RootCause, t.Solution, string(metadataJSON),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting raw ticket %s: %w", t.TicketID, err)
		}
		result.TicketsImported++

		if _, err := tx.ExecContext(ctx, `DELETE FROM raw_anomalies WHERE ticket_id = ?`, t.TicketID); err != nil {
			return nil, fmt.Errorf("clearing prior anomalies for %s: %w", t.TicketID, err)
		}

		for i, a := range t.Anomalies {
			anomalyID := fmt.Sprintf("%s_anomaly_%d", t.TicketID, i)
			_, err := tx.ExecContext(ctx, `
				INSERT INTO raw_anomalies (id, ticket_id, idx, description, observation_method, why_relevant)
				VALUES (?, ?, ?, ?, ?, ?)`,
				anomalyID, t.TicketID, i, a.Description, a.ObservationMethod, a.WhyRelevant,
			)
			if err != nil {
				return nil, fmt.Errorf("inserting anomaly %s: %w", anomalyID, err)
			}
			result.AnomaliesImported++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}

	return result, nil
}
