package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dbdiag/dbdiag/internal/audit"
	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/knowledge"
	"github.com/dbdiag/dbdiag/internal/llm"
	"github.com/dbdiag/dbdiag/internal/retriever"
)

// ResponseKind names the category of a turn's response.
type ResponseKind string

const (
	KindRecommend   ResponseKind = "recommend"
	KindDiagnosis   ResponseKind = "diagnosis"
	KindAskInitial  ResponseKind = "ask_initial_info"
	KindAskMoreInfo ResponseKind = "ask_more_info"
	KindStatus      ResponseKind = "status"
	KindError       ResponseKind = "error"
)

// Response is what the dialogue manager emits for one turn.
type Response struct {
	Kind ResponseKind `json:"kind"`

	Message   string                        `json:"message,omitempty"`
	Phenomena []RecommendedPhenomenonChoice `json:"phenomena,omitempty"`

	RootCauseID   string   `json:"root_cause_id,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	Diagnosis     string   `json:"diagnosis,omitempty"`
	CitedTickets  []string `json:"cited_tickets,omitempty"`
}

// Manager implements spec §4.5's turn loop over a Tracker, Recommender,
// Responder, and the Hyb-only candidate-expansion behavior, serializing
// turns per session per spec §5.
type Manager struct {
	sessions    *SessionStore
	store       *knowledge.Store
	tracker     *Tracker
	recommender *Recommender
	responder   *Responder
	retriever   *retriever.Retriever
	behavior    variantBehavior
	cfg         *config.Config
	audit       *audit.Store

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// SetAuditStore attaches an audit trail. Optional: a Manager with no audit
// store attached simply skips logging, for tests and for callers that don't
// need an operator-inspectable trail.
func (m *Manager) SetAuditStore(store *audit.Store) {
	m.audit = store
}

func (m *Manager) logAudit(ctx context.Context, entry audit.Entry) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(ctx, entry); err != nil {
		fmt.Printf("dialogue: failed to write audit entry: %v\n", err)
	}
}

// logFeedbackAudit records one audit entry per phenomenon newly confirmed
// or denied during this turn's feedback parsing (fast path or LLM
// extraction), comparing state's confirmed/denied slices before and after.
func (m *Manager) logFeedbackAudit(ctx context.Context, sessionID string, state *SessionState, confirmedBefore, deniedBefore int) {
	for _, c := range state.ConfirmedPhenomena[confirmedBefore:] {
		m.logAudit(ctx, audit.Entry{
			ActorType: audit.ActorUser, ActorID: sessionID,
			Action: audit.ActionConfirmPhenomenon, Scope: audit.ScopeSession, ScopeID: sessionID,
			Summary:          fmt.Sprintf("confirmed phenomenon %s", c.PhenomenonID),
			AffectedEntities: []string{c.PhenomenonID},
		})
	}
	for _, d := range state.DeniedPhenomena[deniedBefore:] {
		m.logAudit(ctx, audit.Entry{
			ActorType: audit.ActorUser, ActorID: sessionID,
			Action: audit.ActionDenyPhenomenon, Scope: audit.ScopeSession, ScopeID: sessionID,
			Summary:          fmt.Sprintf("denied phenomenon %s", d.PhenomenonID),
			AffectedEntities: []string{d.PhenomenonID},
		})
	}
}

// NewManager wires a dialogue Manager from its components.
func NewManager(store *knowledge.Store, ret *retriever.Retriever, llmProvider llm.Provider, cfg *config.Config, variant config.Variant) *Manager {
	return &Manager{
		sessions:    NewSessionStore(store),
		store:       store,
		tracker:     NewTracker(store, ret),
		recommender: NewRecommender(store, cfg.DiagnosisThreshold, cfg.ModerateThreshold, cfg.TopNRecommend),
		responder:   NewResponder(llmProvider, cfg.Model),
		retriever:   ret,
		behavior:    behaviorFor(variant),
		cfg:         cfg,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(sessionID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// StartConversation implements spec §4.5.1.
func (m *Manager) StartConversation(ctx context.Context, sessionID, userProblem string) (*Response, error) {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.TurnBudget)
	defer cancel()

	now := time.Now()
	state := NewSessionState(sessionID, userProblem, now)
	state.DialogueHistory = append(state.DialogueHistory, DialogueTurn{Role: "user", Content: userProblem, Timestamp: now})

	if m.behavior.useHybridRetrieval {
		if err := m.expandHybridCandidates(ctx, state, userProblem); err != nil {
			return &Response{Kind: KindError, Message: "retrieval temporarily unavailable"}, nil
		}
	}

	resp, err := m.advanceTurn(ctx, state)
	if err != nil {
		return &Response{Kind: KindError, Message: err.Error()}, nil
	}

	if err := m.sessions.Save(ctx, state); err != nil {
		return &Response{Kind: KindError, Message: "failed to persist session"}, nil
	}
	return resp, nil
}

// ContinueConversation implements spec §4.5.2. On any fatal error, the
// loaded session is never saved, so the user's message is not recorded as
// processed and a retry behaves identically.
func (m *Manager) ContinueConversation(ctx context.Context, sessionID, userMessage string) (*Response, error) {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.TurnBudget)
	defer cancel()

	state, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return &Response{Kind: KindError, Message: err.Error()}, nil
	}
	if state == nil {
		return &Response{Kind: KindError, Message: fmt.Sprintf("no such session: %s", sessionID)}, nil
	}

	now := time.Now()
	state.DialogueHistory = append(state.DialogueHistory, DialogueTurn{Role: "user", Content: userMessage, Timestamp: now})

	confirmedBefore, deniedBefore := len(state.ConfirmedPhenomena), len(state.DeniedPhenomena)

	parsed := ApplyFastPathFeedback(state, userMessage, now)
	if !parsed.Handled && m.behavior.useLLMFeedbackExtraction {
		if handled := m.extractFeedbackWithLLM(ctx, state, userMessage, now); !handled {
			return &Response{Kind: KindError, Message: "could not understand your reply; please answer using \"1 confirm\" / \"2 deny\" style feedback"}, nil
		}
	}

	m.logFeedbackAudit(ctx, sessionID, state, confirmedBefore, deniedBefore)

	if m.behavior.useHybridRetrieval && len(state.NewObservations) > 0 {
		query := strings.Join(state.NewObservations, " ")
		if err := m.expandHybridCandidates(ctx, state, query); err != nil {
			return &Response{Kind: KindError, Message: "retrieval temporarily unavailable"}, nil
		}
		state.NewObservations = nil
	}

	resp, err := m.advanceTurn(ctx, state)
	if err != nil {
		return &Response{Kind: KindError, Message: err.Error()}, nil
	}

	if err := m.sessions.Save(ctx, state); err != nil {
		return &Response{Kind: KindError, Message: "failed to persist session"}, nil
	}
	return resp, nil
}

// advanceTurn recomputes hypotheses, asks the recommender for the next
// action, records any new recommendation in history, and (on diagnosis)
// generates the final response. It mutates state but never saves it.
func (m *Manager) advanceTurn(ctx context.Context, state *SessionState) (*Response, error) {
	hyps, err := m.tracker.UpdateHypotheses(ctx, state, m.behavior.variant, m.cfg.TopKHypotheses)
	if err != nil {
		return nil, fmt.Errorf("updating hypotheses: %w", err)
	}
	state.ActiveHypotheses = hyps

	decision, err := m.recommender.RecommendNextAction(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("computing recommendation: %w", err)
	}

	var resp *Response
	switch decision.Action {
	case ActionAskInitial:
		resp = &Response{Kind: KindAskInitial, Message: "Describe the problem you're observing to begin diagnosis."}
	case ActionAskMoreInfo:
		resp = &Response{Kind: KindAskMoreInfo, Message: "Confidence is too low to recommend further checks or conclude a diagnosis; please describe any other observations."}
	case ActionRecommend:
		turn := len(state.DialogueHistory)/2 + 1
		now := time.Now()
		for _, choice := range decision.Phenomena {
			state.RecommendedPhenomena = append(state.RecommendedPhenomena, RecommendedPhenomenon{
				PhenomenonID: choice.Phenomenon.ID, Turn: turn, Timestamp: now,
			})
		}
		resp = &Response{Kind: KindRecommend, Phenomena: decision.Phenomena, Message: "Please confirm or deny the following observations."}
	case ActionDiagnosis:
		top := decision.TopHypothesis
		rc, err := m.store.GetRootCauseByID(ctx, top.RootCauseID)
		if err != nil {
			return nil, fmt.Errorf("loading root cause %s: %w", top.RootCauseID, err)
		}
		solution := ""
		if rc != nil {
			solution = rc.Solution
		}
		markdown, err := m.responder.Generate(ctx, state, *top, solution)
		if err != nil {
			resp = &Response{Kind: KindAskMoreInfo, Message: "Reached a confident diagnosis but could not generate a written summary; please ask again."}
			break
		}
		resp = &Response{
			Kind: KindDiagnosis, RootCauseID: top.RootCauseID, Confidence: top.Confidence,
			Diagnosis: markdown, CitedTickets: top.SupportingTicketIDs,
		}
		m.logAudit(ctx, audit.Entry{
			ActorType: audit.ActorSystem, ActorID: state.SessionID,
			Action: audit.ActionDiagnosis, Scope: audit.ScopeSession, ScopeID: state.SessionID,
			Summary:          fmt.Sprintf("diagnosed %s at confidence %.2f", top.RootCauseID, top.Confidence),
			AffectedEntities: []string{top.RootCauseID},
		})
	}

	state.DialogueHistory = append(state.DialogueHistory, DialogueTurn{Role: "assistant", Content: responseSummary(resp), Timestamp: time.Now()})
	return resp, nil
}

func responseSummary(r *Response) string {
	if r.Diagnosis != "" {
		return r.Diagnosis
	}
	return r.Message
}

// Status summarizes a session's current hypotheses without advancing the
// turn, for the /status command of the chat wire protocol. It returns
// KindError if the session does not exist.
func (m *Manager) Status(ctx context.Context, sessionID string) (*Response, error) {
	state, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return &Response{Kind: KindError, Message: err.Error()}, nil
	}
	if state == nil {
		return &Response{Kind: KindError, Message: fmt.Sprintf("no such session: %s", sessionID)}, nil
	}

	if len(state.ActiveHypotheses) == 0 {
		return &Response{Kind: KindStatus, Message: fmt.Sprintf(
			"Problem: %s\nConfirmed: %d, Denied: %d\nNo hypotheses ranked yet.",
			state.UserProblem, len(state.ConfirmedPhenomena), len(state.DeniedPhenomena),
		)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", state.UserProblem)
	fmt.Fprintf(&b, "Confirmed: %d, Denied: %d\n", len(state.ConfirmedPhenomena), len(state.DeniedPhenomena))
	b.WriteString("Ranked hypotheses:\n")
	for i, h := range state.ActiveHypotheses {
		fmt.Fprintf(&b, "%d. %s (confidence %.2f)\n", i+1, h.RootCauseDescription, h.Confidence)
	}
	return &Response{Kind: KindStatus, Message: b.String()}, nil
}

// expandHybridCandidates searches ticket descriptions for query, resolves
// the matching tickets' phenomena, and unions them (deduplicated) into
// state's hybrid candidate pool.
func (m *Manager) expandHybridCandidates(ctx context.Context, state *SessionState, query string) error {
	ticketIDs, err := m.retriever.SearchByTicketDescription(ctx, query, 5)
	if err != nil {
		return fmt.Errorf("searching ticket descriptions: %w", err)
	}
	if len(ticketIDs) == 0 {
		return nil
	}
	phenomena, err := m.retriever.GetPhenomenaByTicketIDs(ctx, ticketIDs)
	if err != nil {
		return fmt.Errorf("resolving phenomena for tickets: %w", err)
	}

	existing := make(map[string]bool, len(state.HybridCandidatePhenomenonIDs))
	for _, id := range state.HybridCandidatePhenomenonIDs {
		existing[id] = true
	}
	for _, p := range phenomena {
		if !existing[p.ID] {
			existing[p.ID] = true
			state.HybridCandidatePhenomenonIDs = append(state.HybridCandidatePhenomenonIDs, p.ID)
		}
	}
	return nil
}
