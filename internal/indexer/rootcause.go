package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/embeddings"
	"github.com/dbdiag/dbdiag/internal/llm"
)

// rawTicketInput is the subset of a raw ticket needed for root-cause dedup.
type rawTicketInput struct {
	TicketID      string
	Description   string
	RootCauseText string
	Solution      string
}

type rawRootCauseItem struct {
	rc        RawRootCause
	embedding []float32
}

func (r rawRootCauseItem) ClusterKey() string       { return r.rc.Text }
func (r rawRootCauseItem) ClusterVector() []float32 { return r.embedding }

// DedupeRootCauses extracts unique root_cause_text strings from raw tickets
// (exact string match), building one RawRootCause per distinct text (spec
// §4.1.2 step 1). Ordering is by first-seen ticket id for determinism.
func DedupeRootCauses(tickets []rawTicketInput) []RawRootCause {
	order := make([]string, 0)
	byText := make(map[string]*RawRootCause)

	for _, t := range tickets {
		if t.RootCauseText == "" {
			continue
		}
		rc, ok := byText[t.RootCauseText]
		if !ok {
			rc = &RawRootCause{Text: t.RootCauseText, Solution: t.Solution}
			byText[t.RootCauseText] = rc
			order = append(order, t.RootCauseText)
		}
		rc.SourceTicketIDs = append(rc.SourceTicketIDs, t.TicketID)
		rc.TicketCount++
	}

	out := make([]RawRootCause, 0, len(order))
	for _, text := range order {
		out = append(out, *byText[text])
	}
	return out
}

// BuildRootCauses runs root-cause construction (spec §4.1.2): embeds every
// distinct raw root-cause text, clusters with the same algorithm and
// threshold used for phenomena, and emits one canonical RootCause per
// cluster.
func BuildRootCauses(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, provider llm.Provider, raw []RawRootCause, onProgress ProgressFunc) ([]RootCause, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	texts := make([]string, len(raw))
	for i, r := range raw {
		texts[i] = r.Text
	}

	batcher := NewBatcher(cfg.MaxConcurrency, embedder, onProgress)
	embedded, err := batcher.EmbedAll(ctx, texts, "embedding root causes")
	if err != nil {
		return nil, fmt.Errorf("embedding root causes: %w", err)
	}

	items := make([]Embeddable, len(raw))
	byKey := make(map[string]rawRootCauseItem, len(raw))
	for i, r := range raw {
		it := rawRootCauseItem{rc: r, embedding: embedded[i]}
		items[i] = it
		byKey[r.Text] = it
	}

	clusters := GreedyCluster(items, cfg.ClusterThreshold)

	now := time.Now()
	rootCauses := make([]RootCause, 0, len(clusters))
	for i, c := range clusters {
		descs := make([]string, 0, len(c.Members))
		solutions := make([]string, 0, len(c.Members))
		ticketCount := 0
		for _, key := range c.Members {
			it := byKey[key]
			descs = append(descs, it.rc.Text)
			if it.rc.Solution != "" {
				solutions = append(solutions, it.rc.Solution)
			}
			ticketCount += it.rc.TicketCount
		}

		description := descs[0]
		solution := ""
		if len(solutions) > 0 {
			solution = solutions[0]
		}

		if len(descs) > 1 {
			merged, err := mergeRootCauseDescription(ctx, provider, cfg.Model, descs)
			if err != nil {
				return nil, fmt.Errorf("merging root cause description for cluster %d: %w", i, err)
			}
			description = merged

			if len(solutions) > 1 {
				mergedSolution, err := mergeSolutions(ctx, provider, cfg.Model, solutions)
				if err != nil {
					return nil, fmt.Errorf("merging root cause solution for cluster %d: %w", i, err)
				}
				solution = mergedSolution
			}
		}

		rootCauses = append(rootCauses, RootCause{
			ID:                    formatID("RC", i+1),
			Description:           description,
			Solution:               solution,
			SourceRawRootCauseIDs: append([]string{}, c.Members...),
			ClusterSize:           len(c.Members),
			TicketCount:           ticketCount,
			Embedding:             c.Centroid,
			CreatedAt:             now,
			UpdatedAt:             now,
		})
	}

	return rootCauses, nil
}

type mergedSolution struct {
	Solution string `json:"solution"`
}

func mergeRootCauseDescription(ctx context.Context, provider llm.Provider, model string, descs []string) (string, error) {
	req := llm.CompletionRequest{Model: model, Messages: buildMergeRootCauseMessages(descs), MaxTokens: 512}
	var out mergedDescription
	if err := llm.CompleteSchema(ctx, provider, req, `{"description": string}`, &out); err != nil {
		return "", err
	}
	if out.Description == "" {
		return "", fmt.Errorf("merge returned empty description")
	}
	return out.Description, nil
}

func mergeSolutions(ctx context.Context, provider llm.Provider, model string, solutions []string) (string, error) {
	req := llm.CompletionRequest{Model: model, Messages: buildMergeSolutionMessages(solutions), MaxTokens: 768}
	var out mergedSolution
	if err := llm.CompleteSchema(ctx, provider, req, `{"solution": string}`, &out); err != nil {
		return "", err
	}
	if out.Solution == "" {
		return "", fmt.Errorf("merge returned empty solution")
	}
	return out.Solution, nil
}
