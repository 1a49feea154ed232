// Package audit records an operator-inspectable trail of index rebuilds
// and dialogue-turn state transitions, backed by the audit_entries table
// that internal/db creates alongside the knowledge store.
package audit

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Action names a recorded state transition.
type Action string

const (
	ActionRebuildIndex     Action = "rebuild_index"
	ActionConfirmPhenomenon Action = "confirm_phenomenon"
	ActionDenyPhenomenon   Action = "deny_phenomenon"
	ActionDiagnosis        Action = "diagnosis"
)

// Scope names what an entry's scope_id identifies.
type Scope string

const (
	ScopeKnowledgeGraph Scope = "knowledge_graph"
	ScopeSession        Scope = "session"
)

// Entry is a single audit trail record.
type Entry struct {
	ID               string
	Timestamp        time.Time
	ActorType        ActorType
	ActorID          string
	Action           Action
	Scope            Scope
	ScopeID          string
	Summary          string
	Detail           string
	AffectedEntities []string
}
