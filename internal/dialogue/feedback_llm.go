package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dbdiag/dbdiag/internal/llm"
)

const feedbackSystemPrompt = `You extract structured feedback from a database operator's reply during an incident diagnosis dialogue. You are given a list of pending phenomena (observations the system asked the operator to check). For each one, judge whether the operator's reply confirms it was observed, denies it, or says nothing about it. Separately, extract any concrete new technical observation the operator mentions that is not one of the pending phenomena; ignore small talk and filler.`

const feedbackUserTemplate = `Pending phenomena (id: description):
%s

Operator's reply:
%s

Respond with JSON only:
{"feedback": {"<phenomenon_id>": "confirmed"|"denied"|"unknown"}, "new_observations": ["..."]}`

const feedbackSchemaDescription = `{"feedback": {"<phenomenon_id>": "confirmed"|"denied"|"unknown"}, "new_observations": [string]}`

type feedbackExtraction struct {
	Feedback        map[string]string `json:"feedback"`
	NewObservations []string          `json:"new_observations"`
}

// extractFeedbackWithLLM implements spec §4.5.2's slow path: a
// schema-constrained LLM call scoped to the phenomena pending from the
// last recommendation. On two consecutive malformed responses (handled
// internally by llm.CompleteSchema's one repair retry) or a transport
// error, it returns false so the caller can fall back to an
// ask-for-clarification response without advancing session state.
func (m *Manager) extractFeedbackWithLLM(ctx context.Context, state *SessionState, message string, now time.Time) bool {
	pending := state.pendingFromLastRecommendation()
	if len(pending) == 0 {
		return false
	}

	phenomena, err := m.store.GetPhenomenaByIDs(ctx, pending)
	if err != nil {
		return false
	}
	if len(phenomena) == 0 {
		return false
	}

	var list strings.Builder
	for _, p := range phenomena {
		fmt.Fprintf(&list, "%s: %s\n", p.ID, p.Description)
	}

	req := llm.CompletionRequest{
		Model:       m.cfg.Model,
		Temperature: 0.1,
		MaxTokens:   1024,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: feedbackSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(feedbackUserTemplate, list.String(), message)},
		},
	}

	var extraction feedbackExtraction
	if err := llm.CompleteSchema(ctx, m.responder.provider, req, feedbackSchemaDescription, &extraction); err != nil {
		return false
	}

	for phenomenonID, verdict := range extraction.Feedback {
		switch verdict {
		case "confirmed":
			state.confirm(phenomenonID, message, now)
		case "denied":
			state.deny(phenomenonID, now)
		}
	}
	state.NewObservations = append(state.NewObservations, extraction.NewObservations...)
	return true
}
