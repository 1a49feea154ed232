package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbdiag/dbdiag/internal/llm"
)

const responseSystemPrompt = `You are a senior database reliability engineer writing the conclusion of a diagnosis session for another engineer. Be precise, cite only the tickets given to you, and do not invent remediation steps beyond the supplied solution.`

const responseTemplate = `Root cause: %s (confidence %.0f%%)

Confirmed observations:
%s

Solution on file:
%s

Tickets that support this root cause: %s

Write the final diagnosis as Markdown with exactly these sections, in order:
## Observed phenomena
## Reasoning chain
## Remediation
## Cited tickets

"Cited tickets" must only reference ticket ids from the list above.`

// Responder generates the free-form Markdown diagnosis summary emitted
// when the dialogue manager reaches a terminal diagnosis (spec §4.6).
type Responder struct {
	provider llm.Provider
	model    string
}

// NewResponder creates a Responder using the given LLM provider and model.
func NewResponder(provider llm.Provider, model string) *Responder {
	return &Responder{provider: provider, model: model}
}

// Generate builds the diagnosis prompt from the terminal hypothesis and
// session state, calls the LLM, and post-filters any cited ticket id that
// isn't in the hypothesis's supporting ticket set.
func (r *Responder) Generate(ctx context.Context, session *SessionState, top Hypothesis, solution string) (string, error) {
	var observed strings.Builder
	for _, c := range session.ConfirmedPhenomena {
		summary := c.ResultSummary
		if summary == "" {
			summary = "confirmed"
		}
		fmt.Fprintf(&observed, "- %s: %s\n", c.PhenomenonID, summary)
	}
	if observed.Len() == 0 {
		observed.WriteString("- (none explicitly confirmed; diagnosis reached on moderate confidence)\n")
	}

	prompt := fmt.Sprintf(responseTemplate,
		top.RootCauseDescription, top.Confidence*100,
		observed.String(), solution, strings.Join(top.SupportingTicketIDs, ", "))

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: responseSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("generating diagnosis response: %w", err)
	}

	return filterCitations(resp.Content, top.SupportingTicketIDs), nil
}

// filterCitations drops every "Cited tickets" line item that mentions none
// of the ids in allowed. A line item that mentions an allowed id is kept
// whole, even when it also names an id outside allowed. Other sections are
// passed through unchanged.
func filterCitations(markdown string, allowed []string) string {
	allowedSet := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = true
	}

	lines := strings.Split(markdown, "\n")
	inCited := false
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			inCited = strings.EqualFold(strings.TrimPrefix(trimmed, "## "), "Cited tickets")
			out = append(out, line)
			continue
		}
		if inCited && strings.HasPrefix(trimmed, "-") {
			if !lineMentionsOnlyAllowed(trimmed, allowedSet) {
				continue
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func lineMentionsOnlyAllowed(line string, allowed map[string]bool) bool {
	if len(allowed) == 0 {
		return false
	}
	for id := range allowed {
		if strings.Contains(line, id) {
			return true
		}
	}
	// No recognized ticket id mentioned at all; keep conservative lines
	// that don't look like a citation (e.g. prose) but drop bullet items
	// that claim a ticket we don't recognize.
	return false
}
