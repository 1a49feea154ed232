package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PhenomenonRecord is a standardized phenomenon as read from the store.
type PhenomenonRecord struct {
	ID                string
	Description       string
	ObservationMethod string
	ClusterSize       int
}

// RootCauseRecord is a standardized root cause as read from the store.
type RootCauseRecord struct {
	ID          string
	Description string
	Solution    string
	ClusterSize int
	TicketCount int
}

// PhenomenonRootCauseRecord is one phenomenon/root-cause association with
// its per-pair ticket count.
type PhenomenonRootCauseRecord struct {
	PhenomenonID string
	RootCauseID  string
	TicketCount  int
}

// GetPhenomenonByID returns a single phenomenon, or nil if absent.
func (s *Store) GetPhenomenonByID(ctx context.Context, id string) (*PhenomenonRecord, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, description, observation_method, cluster_size FROM phenomena WHERE id = ?`, id)
	var p PhenomenonRecord
	if err := row.Scan(&p.ID, &p.Description, &p.ObservationMethod, &p.ClusterSize); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetPhenomenaByIDs returns the phenomena matching the given ids, in no
// particular order; missing ids are silently omitted (a missing row is
// treated as empty, never an error, per the knowledge-store reader
// contract).
func (s *Store) GetPhenomenaByIDs(ctx context.Context, ids []string) ([]PhenomenonRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.db.RLock()
	defer s.db.RUnlock()

	placeholders, args := placeholdersFor(ids)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, description, observation_method, cluster_size FROM phenomena WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhenomenonRecord
	for rows.Next() {
		var p PhenomenonRecord
		if err := rows.Scan(&p.ID, &p.Description, &p.ObservationMethod, &p.ClusterSize); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetAllPhenomena returns every standardized phenomenon in the store.
func (s *Store) GetAllPhenomena(ctx context.Context) ([]PhenomenonRecord, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, description, observation_method, cluster_size FROM phenomena`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhenomenonRecord
	for rows.Next() {
		var p PhenomenonRecord
		if err := rows.Scan(&p.ID, &p.Description, &p.ObservationMethod, &p.ClusterSize); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetAllRootCauses returns every standardized root cause in the store.
func (s *Store) GetAllRootCauses(ctx context.Context) ([]RootCauseRecord, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, description, solution, cluster_size, ticket_count FROM root_causes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RootCauseRecord
	for rows.Next() {
		var rc RootCauseRecord
		if err := rows.Scan(&rc.ID, &rc.Description, &rc.Solution, &rc.ClusterSize, &rc.TicketCount); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// GetAllAssociations returns every phenomenon/root-cause association in the
// store, used to render the full knowledge graph.
func (s *Store) GetAllAssociations(ctx context.Context) ([]PhenomenonRootCauseRecord, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT phenomenon_id, root_cause_id, ticket_count FROM phenomenon_root_cause`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhenomenonRootCauseRows(rows)
}

// GetRootCauseByID returns a single root cause, or nil if absent.
func (s *Store) GetRootCauseByID(ctx context.Context, id string) (*RootCauseRecord, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, description, solution, cluster_size, ticket_count FROM root_causes WHERE id = ?`, id)
	var rc RootCauseRecord
	if err := row.Scan(&rc.ID, &rc.Description, &rc.Solution, &rc.ClusterSize, &rc.TicketCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rc, nil
}

// GetRootCausesByPhenomenonID returns every root cause associated with the
// given phenomenon, via phenomenon_root_cause.
func (s *Store) GetRootCausesByPhenomenonID(ctx context.Context, phenomenonID string) ([]PhenomenonRootCauseRecord, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT phenomenon_id, root_cause_id, ticket_count FROM phenomenon_root_cause WHERE phenomenon_id = ?`, phenomenonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhenomenonRootCauseRows(rows)
}

// GetPhenomenaByRootCauseID returns every phenomenon associated with the
// given root cause, via phenomenon_root_cause.
func (s *Store) GetPhenomenaByRootCauseID(ctx context.Context, rootCauseID string) ([]PhenomenonRootCauseRecord, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT phenomenon_id, root_cause_id, ticket_count FROM phenomenon_root_cause WHERE root_cause_id = ?`, rootCauseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhenomenonRootCauseRows(rows)
}

func scanPhenomenonRootCauseRows(rows *sql.Rows) ([]PhenomenonRootCauseRecord, error) {
	var out []PhenomenonRootCauseRecord
	for rows.Next() {
		var r PhenomenonRootCauseRecord
		if err := rows.Scan(&r.PhenomenonID, &r.RootCauseID, &r.TicketCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetMaxTicketCount returns the maximum ticket_count across every
// phenomenon_root_cause row in the corpus, used to normalize popularity
// scoring. Returns 0 if the table is empty.
func (s *Store) GetMaxTicketCount(ctx context.Context) (int, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(ticket_count) FROM phenomenon_root_cause`).Scan(&max); err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

// GetTicketIDsForPhenomenonRootCause returns the distinct ticket ids that
// exhibit the given phenomenon and resolve to the given root cause.
func (s *Store) GetTicketIDsForPhenomenonRootCause(ctx context.Context, phenomenonID, rootCauseID string) ([]string, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tp.ticket_id
		FROM ticket_phenomena tp
		JOIN tickets t ON t.ticket_id = tp.ticket_id
		WHERE tp.phenomenon_id = ? AND t.root_cause_id = ?`, phenomenonID, rootCauseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPhenomenaByTicketIDs returns the union of phenomena associated with
// any of the given tickets, deduplicated.
func (s *Store) GetPhenomenaByTicketIDs(ctx context.Context, ticketIDs []string) ([]PhenomenonRecord, error) {
	if len(ticketIDs) == 0 {
		return nil, nil
	}
	s.db.RLock()
	defer s.db.RUnlock()

	placeholders, args := placeholdersFor(ticketIDs)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT p.id, p.description, p.observation_method, p.cluster_size
		FROM phenomena p
		JOIN ticket_phenomena tp ON tp.phenomenon_id = p.id
		WHERE tp.ticket_id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhenomenonRecord
	for rows.Next() {
		var p PhenomenonRecord
		if err := rows.Scan(&p.ID, &p.Description, &p.ObservationMethod, &p.ClusterSize); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func placeholdersFor(values []string) (string, []interface{}) {
	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}

// SaveSession upserts the opaque JSON blob for a session.
func (s *Store) SaveSession(ctx context.Context, sessionID string, state []byte) error {
	s.db.RLock()
	defer s.db.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, state, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		sessionID, string(state))
	return err
}

// LoadSession returns the opaque JSON blob for a session, or nil if absent.
func (s *Store) LoadSession(ctx context.Context, sessionID string) ([]byte, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE session_id = ?`, sessionID).Scan(&state)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return []byte(state), nil
}
