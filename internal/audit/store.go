package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dbdiag/dbdiag/internal/db"
)

// Store writes and reads audit_entries rows.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Log inserts a new audit entry. If entry.ID is empty a UUID is generated.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	affected, err := json.Marshal(entry.AffectedEntities)
	if err != nil {
		return fmt.Errorf("marshalling affected entities: %w", err)
	}

	s.db.Lock()
	defer s.db.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, actor_type, actor_id, action, scope, scope_id, summary, detail, affected_entities
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.ActorType),
		entry.ActorID,
		string(entry.Action),
		string(entry.Scope),
		entry.ScopeID,
		entry.Summary,
		entry.Detail,
		string(affected),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// QueryFilter controls which audit entries Query returns.
type QueryFilter struct {
	Action  Action
	ScopeID string
	Limit   int
}

// Query returns audit entries matching the filter, most recent first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	query := `SELECT id, timestamp, actor_type, actor_id, action, scope, scope_id, summary, detail, affected_entities FROM audit_entries`
	var (
		clauses []string
		args    []any
	)
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.ScopeID != "" {
		clauses = append(clauses, "scope_id = ?")
		args = append(args, filter.ScopeID)
	}
	if len(clauses) > 0 {
		query += " WHERE "
		for i, c := range clauses {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                         Entry
		actorType, action, scope string
		ts                       string
		affectedJSON             string
	)
	if err := rows.Scan(&e.ID, &ts, &actorType, &e.ActorID, &action, &scope, &e.ScopeID, &e.Summary, &e.Detail, &affectedJSON); err != nil {
		return Entry{}, err
	}
	e.ActorType = ActorType(actorType)
	e.Action = Action(action)
	e.Scope = Scope(scope)
	if t, err := time.Parse(time.DateTime, ts); err == nil {
		e.Timestamp = t
	}
	if err := json.Unmarshal([]byte(affectedJSON), &e.AffectedEntities); err != nil {
		e.AffectedEntities = nil
	}
	return e, nil
}
