package indexer

import (
	"fmt"
	"strings"

	"github.com/dbdiag/dbdiag/internal/llm"
)

const mergeSystemPrompt = `You are a database reliability engineer canonicalizing incident reports. Be precise and factual. Do not invent details that are not present in the source text.`

const mergePhenomenonTemplate = `These descriptions all describe the same observable database condition, reported by different tickets:

%s

Produce a single canonical description that:
- preserves the key metric being described
- removes specific numeric thresholds (say "exceeds threshold" rather than "65%%")
- is exactly one sentence

Return JSON: {"description": "..."}`

const mergeRootCauseTemplate = `These root-cause explanations all describe the same underlying issue, reported by different tickets:

%s

Produce a single canonical root-cause description, one sentence, preserving the technical substance.

Return JSON: {"description": "..."}`

const mergeSolutionTemplate = `These remediation steps were applied for the same root cause across different tickets:

%s

Deduplicate overlapping steps, preserve every distinct remediation action, and merge into one coherent solution.

Return JSON: {"solution": "..."}`

func numberedList(items []string) string {
	var b strings.Builder
	for i, s := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return b.String()
}

// buildMergePhenomenonMessages builds the LLM request to canonicalize a
// cluster of anomaly descriptions into one phenomenon description.
func buildMergePhenomenonMessages(descriptions []string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: mergeSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(mergePhenomenonTemplate, numberedList(descriptions))},
	}
}

// buildMergeRootCauseMessages builds the LLM request to canonicalize a
// cluster of root-cause texts into one root-cause description.
func buildMergeRootCauseMessages(texts []string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: mergeSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(mergeRootCauseTemplate, numberedList(texts))},
	}
}

// buildMergeSolutionMessages builds the LLM request to merge a cluster's
// solutions into one deduplicated solution.
func buildMergeSolutionMessages(solutions []string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: mergeSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(mergeSolutionTemplate, numberedList(solutions))},
	}
}
