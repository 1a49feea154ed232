// Package dialogue implements the online diagnosis turn loop: the
// hypothesis tracker, recommender, feedback parser, and the manager that
// ties them together into start_conversation/continue_conversation (spec
// §4.3–§4.6).
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dbdiag/dbdiag/internal/knowledge"
)

// ConfirmedPhenomenon records a user's confirmation of a recommended
// phenomenon, with their free-text description of what they observed.
type ConfirmedPhenomenon struct {
	PhenomenonID  string    `json:"phenomenon_id"`
	ResultSummary string    `json:"result_summary"`
	Timestamp     time.Time `json:"timestamp"`
}

// DeniedPhenomenon records a user's denial of a recommended phenomenon.
type DeniedPhenomenon struct {
	PhenomenonID string    `json:"phenomenon_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// RecommendedPhenomenon is one entry in the append-only history of every
// phenomenon the manager has ever suggested, tagged with the turn it was
// suggested on.
type RecommendedPhenomenon struct {
	PhenomenonID string    `json:"phenomenon_id"`
	Turn         int       `json:"turn"`
	Timestamp    time.Time `json:"timestamp"`
}

// DialogueTurn is one message in the conversation transcript.
type DialogueTurn struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Hypothesis is a (root cause, confidence, supporting evidence) tuple,
// recomputed from scratch on every turn by the Tracker.
type Hypothesis struct {
	RootCauseID          string   `json:"root_cause_id"`
	RootCauseDescription string   `json:"root_cause_description"`
	Confidence           float64  `json:"confidence"`
	SupportingPhenomenonIDs []string `json:"supporting_phenomenon_ids"`
	SupportingTicketIDs     []string `json:"supporting_ticket_ids"`
	MissingPhenomena        []string `json:"missing_phenomena"`
}

// SessionState is the entire per-conversation working memory, persisted as
// one opaque JSON blob (spec §3.3).
type SessionState struct {
	SessionID string    `json:"session_id"`
	UserProblem string  `json:"user_problem"`
	CreatedAt time.Time `json:"created_at"`

	ConfirmedPhenomena    []ConfirmedPhenomenon   `json:"confirmed_phenomena"`
	DeniedPhenomena       []DeniedPhenomenon      `json:"denied_phenomena"`
	RecommendedPhenomena  []RecommendedPhenomenon `json:"recommended_phenomena"`
	ActiveHypotheses      []Hypothesis            `json:"active_hypotheses"`
	DialogueHistory       []DialogueTurn          `json:"dialogue_history"`

	// Hyb-only.
	HybridCandidatePhenomenonIDs []string `json:"hybrid_candidate_phenomenon_ids,omitempty"`
	NewObservations              []string `json:"new_observations,omitempty"`
}

// NewSessionState creates a fresh session for the given user problem.
func NewSessionState(sessionID, userProblem string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:   sessionID,
		UserProblem: userProblem,
		CreatedAt:   now,
	}
}

func confirmedIDSet(s *SessionState) map[string]bool {
	out := make(map[string]bool, len(s.ConfirmedPhenomena))
	for _, c := range s.ConfirmedPhenomena {
		out[c.PhenomenonID] = true
	}
	return out
}

func deniedIDSet(s *SessionState) map[string]bool {
	out := make(map[string]bool, len(s.DeniedPhenomena))
	for _, d := range s.DeniedPhenomena {
		out[d.PhenomenonID] = true
	}
	return out
}

// isPending reports whether a phenomenon has neither been confirmed nor
// denied yet in this session.
func (s *SessionState) isPending(phenomenonID string) bool {
	for _, c := range s.ConfirmedPhenomena {
		if c.PhenomenonID == phenomenonID {
			return false
		}
	}
	for _, d := range s.DeniedPhenomena {
		if d.PhenomenonID == phenomenonID {
			return false
		}
	}
	return true
}

// confirm marks a phenomenon confirmed. Per spec §3.3's invariant, a
// phenomenon already denied cannot be confirmed in the same session; the
// call is a no-op in that case.
func (s *SessionState) confirm(phenomenonID, resultSummary string, now time.Time) {
	for _, d := range s.DeniedPhenomena {
		if d.PhenomenonID == phenomenonID {
			return
		}
	}
	for i, c := range s.ConfirmedPhenomena {
		if c.PhenomenonID == phenomenonID {
			s.ConfirmedPhenomena[i].ResultSummary = resultSummary
			s.ConfirmedPhenomena[i].Timestamp = now
			return
		}
	}
	s.ConfirmedPhenomena = append(s.ConfirmedPhenomena, ConfirmedPhenomenon{
		PhenomenonID: phenomenonID, ResultSummary: resultSummary, Timestamp: now,
	})
}

// deny marks a phenomenon denied, superseding any prior recommendation.
// Per spec §3.3, deny supersedes a pending recommendation but not an
// already-confirmed phenomenon.
func (s *SessionState) deny(phenomenonID string, now time.Time) {
	for _, c := range s.ConfirmedPhenomena {
		if c.PhenomenonID == phenomenonID {
			return
		}
	}
	for _, d := range s.DeniedPhenomena {
		if d.PhenomenonID == phenomenonID {
			return
		}
	}
	s.DeniedPhenomena = append(s.DeniedPhenomena, DeniedPhenomenon{PhenomenonID: phenomenonID, Timestamp: now})
}

// lastRecommendedPhenomenonIDs returns the phenomenon ids from the most
// recent batch of recommendations, in the order they were recommended —
// used to resolve fast-path numeric indices ("1确认 2否定").
func (s *SessionState) lastRecommendedPhenomenonIDs() []string {
	if len(s.RecommendedPhenomena) == 0 {
		return nil
	}
	lastTurn := s.RecommendedPhenomena[len(s.RecommendedPhenomena)-1].Turn
	var ids []string
	for _, r := range s.RecommendedPhenomena {
		if r.Turn == lastTurn {
			ids = append(ids, r.PhenomenonID)
		}
	}
	return ids
}

// pendingFromLastRecommendation returns the subset of the last
// recommendation's phenomena that are still neither confirmed nor denied.
func (s *SessionState) pendingFromLastRecommendation() []string {
	var pending []string
	for _, id := range s.lastRecommendedPhenomenonIDs() {
		if s.isPending(id) {
			pending = append(pending, id)
		}
	}
	return pending
}

// SessionStore persists SessionState blobs through the knowledge store.
type SessionStore struct {
	store *knowledge.Store
}

// NewSessionStore creates a SessionStore backed by the given knowledge
// store.
func NewSessionStore(store *knowledge.Store) *SessionStore {
	return &SessionStore{store: store}
}

// Load returns the session state for id, or nil if no session exists yet.
func (ss *SessionStore) Load(ctx context.Context, id string) (*SessionState, error) {
	raw, err := ss.store.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	if raw == nil {
		return nil, nil
	}
	var state SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("session %s blob is corrupt: %w", id, err)
	}
	return &state, nil
}

// Save persists the session state as its opaque JSON blob.
func (ss *SessionStore) Save(ctx context.Context, state *SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling session %s: %w", state.SessionID, err)
	}
	if err := ss.store.SaveSession(ctx, state.SessionID, raw); err != nil {
		return fmt.Errorf("saving session %s: %w", state.SessionID, err)
	}
	return nil
}
