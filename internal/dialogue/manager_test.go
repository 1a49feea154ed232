package dialogue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dbdiag/dbdiag/internal/config"
)

func TestStartConversationEmptyCorpusAsksInitialInfo(t *testing.T) {
	store, _, vector := newTestManagerDeps(t)
	cfg := testDialogueConfig()
	cfg.TurnBudget = 5 * time.Second
	llmProvider := &fakeLLMProvider{Response: "## Observed phenomena\n## Reasoning chain\n## Remediation\n## Cited tickets\n"}
	mgr := NewManager(store, newTestRetriever(store, vector), llmProvider, cfg, config.VariantGAR)

	resp, err := mgr.StartConversation(context.Background(), "sess-1", "the database is slow")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if resp.Kind != KindAskInitial {
		t.Errorf("Kind = %s, want %s", resp.Kind, KindAskInitial)
	}
}

func TestStartConversationWithoutRetrievalAsksInitialInfo(t *testing.T) {
	store, database, vector := newTestManagerDeps(t)
	seedPhenomenon(t, database, "P-0001", "connection pool exhaustion")
	seedRootCause(t, database, "RC-0001", "pool too small", "raise max connections")
	seedLink(t, database, "P-0001", "RC-0001", 1)
	seedTicketPhenomenon(t, database, "T-0001", "P-0001", "RC-0001")

	cfg := testDialogueConfig()
	cfg.TurnBudget = 5 * time.Second
	llmProvider := &fakeLLMProvider{Response: "## Observed phenomena\n## Reasoning chain\n## Remediation\n## Cited tickets\n"}
	mgr := NewManager(store, newTestRetriever(store, vector), llmProvider, cfg, config.VariantGAR)

	resp, err := mgr.StartConversation(context.Background(), "sess-2", "connections are maxed out")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	// With no retrieval (fake vector store returns nothing) and no confirmed
	// phenomena yet, the tracker has no candidates either, so this should
	// fall back to ask_initial_info rather than crash.
	if resp.Kind != KindAskInitial {
		t.Errorf("Kind = %s, want %s (no candidates reachable without retrieval or confirmation)", resp.Kind, KindAskInitial)
	}
}

func TestContinueConversationUnknownSessionIsError(t *testing.T) {
	store, _, vector := newTestManagerDeps(t)
	cfg := testDialogueConfig()
	cfg.TurnBudget = 5 * time.Second
	mgr := NewManager(store, newTestRetriever(store, vector), &fakeLLMProvider{}, cfg, config.VariantGAR)

	resp, err := mgr.ContinueConversation(context.Background(), "no-such-session", "1确认")
	if err != nil {
		t.Fatalf("ContinueConversation: %v", err)
	}
	if resp.Kind != KindError {
		t.Errorf("Kind = %s, want %s", resp.Kind, KindError)
	}
}

func TestContinueConversationConfirmDrivesDiagnosis(t *testing.T) {
	store, database, vector := newTestManagerDeps(t)
	ctx := context.Background()

	seedPhenomenon(t, database, "P-0001", "connection pool exhaustion")
	seedRootCause(t, database, "RC-0001", "pool too small", "raise max connections")
	seedLink(t, database, "P-0001", "RC-0001", 1)
	seedTicketPhenomenon(t, database, "T-0001", "P-0001", "RC-0001")

	cfg := testDialogueConfig()
	cfg.TurnBudget = 5 * time.Second
	llmProvider := &fakeLLMProvider{Response: "## Observed phenomena\n- P-0001\n## Reasoning chain\npool exhaustion confirmed\n## Remediation\nraise max connections\n## Cited tickets\n- T-0001\n"}
	mgr := NewManager(store, newTestRetriever(store, vector), llmProvider, cfg, config.VariantGAR)

	// Seed a session directly with P-0001 already recommended, to exercise
	// the fast-path confirm -> re-ranked hypotheses -> diagnosis path
	// without depending on retrieval.
	session := NewSessionState("sess-3", "connections are maxed out", time.Now())
	session.RecommendedPhenomena = append(session.RecommendedPhenomena, RecommendedPhenomenon{
		PhenomenonID: "P-0001", Turn: 1, Timestamp: time.Now(),
	})
	if err := mgr.sessions.Save(ctx, session); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	resp, err := mgr.ContinueConversation(ctx, "sess-3", "1确认")
	if err != nil {
		t.Fatalf("ContinueConversation: %v", err)
	}
	if resp.Kind != KindDiagnosis {
		t.Fatalf("Kind = %s, want %s (confirmed the only phenomenon of a single-phenomenon root cause)", resp.Kind, KindDiagnosis)
	}
	if resp.RootCauseID != "RC-0001" {
		t.Errorf("RootCauseID = %s, want RC-0001", resp.RootCauseID)
	}
	if !strings.Contains(resp.Diagnosis, "Cited tickets") {
		t.Errorf("expected diagnosis markdown to retain its Cited tickets section, got %q", resp.Diagnosis)
	}
}

func TestContinueConversationDoesNotAdvanceStateOnUnknownSession(t *testing.T) {
	store, _, vector := newTestManagerDeps(t)
	cfg := testDialogueConfig()
	cfg.TurnBudget = 5 * time.Second
	mgr := NewManager(store, newTestRetriever(store, vector), &fakeLLMProvider{}, cfg, config.VariantGAR)

	if _, err := mgr.ContinueConversation(context.Background(), "ghost", "1确认"); err != nil {
		t.Fatalf("ContinueConversation: %v", err)
	}
	state, err := mgr.sessions.Load(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != nil {
		t.Error("expected no session to have been created for an unknown session id")
	}
}
