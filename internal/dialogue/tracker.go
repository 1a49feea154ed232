package dialogue

import (
	"context"
	"fmt"
	"sort"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/knowledge"
	"github.com/dbdiag/dbdiag/internal/retriever"
)

// retrievalTopK is the candidate pool size for the tracker's own retrieval
// call, fixed by spec §4.3 independently of the recommender's top_k.
const retrievalTopK = 20

// Tracker recomputes the ranked set of candidate root causes for a
// session from scratch on every turn. It is stateless: it takes a session
// and returns hypotheses, and never mutates session or storage itself.
type Tracker struct {
	store     *knowledge.Store
	retriever *retriever.Retriever
}

// NewTracker creates a Tracker over the given knowledge store and
// retriever.
func NewTracker(store *knowledge.Store, ret *retriever.Retriever) *Tracker {
	return &Tracker{store: store, retriever: ret}
}

// UpdateHypotheses implements spec §4.3: gather candidate root causes from
// confirmed phenomena, free-text retrieval, and (Hyb) the session's hybrid
// candidate pool; score each by the deterministic confidence formula; sort
// and truncate to topK.
func (t *Tracker) UpdateHypotheses(ctx context.Context, session *SessionState, variant config.Variant, topK int) ([]Hypothesis, error) {
	confirmed := confirmedIDSet(session)
	denied := deniedIDSet(session)

	candidatePhenomenonIDs := map[string]bool{}
	for id := range confirmed {
		candidatePhenomenonIDs[id] = true
	}

	retrieved, err := t.retriever.Retrieve(ctx, session.UserProblem, retrievalTopK, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieving candidate phenomena: %w", err)
	}
	for _, r := range retrieved {
		candidatePhenomenonIDs[r.Phenomenon.ID] = true
	}

	if variant == config.VariantHyb {
		for _, id := range session.HybridCandidatePhenomenonIDs {
			candidatePhenomenonIDs[id] = true
		}
	}

	// supportingByRC collects, per candidate root cause, the phenomena from
	// candidatePhenomenonIDs that this session's path has actually touched
	// (used for the frequency term, distinct from R_p below).
	supportingByRC := map[string][]string{}
	for pid := range candidatePhenomenonIDs {
		links, err := t.store.GetRootCausesByPhenomenonID(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("loading root causes for phenomenon %s: %w", pid, err)
		}
		for _, link := range links {
			supportingByRC[link.RootCauseID] = append(supportingByRC[link.RootCauseID], pid)
		}
	}

	hypotheses := make([]Hypothesis, 0, len(supportingByRC))
	for rootCauseID, supporting := range supportingByRC {
		rc, err := t.store.GetRootCauseByID(ctx, rootCauseID)
		if err != nil {
			return nil, fmt.Errorf("loading root cause %s: %w", rootCauseID, err)
		}
		if rc == nil {
			continue
		}

		relatedLinks, err := t.store.GetPhenomenaByRootCauseID(ctx, rootCauseID)
		if err != nil {
			return nil, fmt.Errorf("loading phenomena for root cause %s: %w", rootCauseID, err)
		}
		relatedIDs := make([]string, 0, len(relatedLinks))
		for _, link := range relatedLinks {
			relatedIDs = append(relatedIDs, link.PhenomenonID)
		}

		confidence := computeConfidence(relatedIDs, supporting, confirmed, denied)

		supportingTicketIDs, err := t.collectSupportingTicketIDs(ctx, relatedIDs, confirmed, rootCauseID)
		if err != nil {
			return nil, err
		}

		hypotheses = append(hypotheses, Hypothesis{
			RootCauseID:             rootCauseID,
			RootCauseDescription:   rc.Description,
			Confidence:              confidence,
			SupportingPhenomenonIDs: intersect(relatedIDs, confirmed),
			SupportingTicketIDs:     supportingTicketIDs,
			MissingPhenomena:        t.missingPhenomenaDescriptions(ctx, relatedIDs, confirmed, denied),
		})
	}

	sort.SliceStable(hypotheses, func(i, j int) bool { return hypotheses[i].Confidence > hypotheses[j].Confidence })
	if topK <= 0 {
		topK = 3
	}
	if len(hypotheses) > topK {
		hypotheses = hypotheses[:topK]
	}
	return hypotheses, nil
}

// computeConfidence implements spec §4.3's deterministic confidence
// formula: 0.6 progress + 0.2 frequency + 0.2 relevance, scaled down by a
// per-denial penalty.
func computeConfidence(relatedIDs, supporting []string, confirmed, denied map[string]bool) float64 {
	if len(relatedIDs) == 0 {
		return 0
	}

	confirmedRelevant := countMembers(relatedIDs, confirmed)
	deniedRelevant := countMembers(relatedIDs, denied)

	progress := float64(confirmedRelevant) / float64(maxInt(len(relatedIDs), 1))
	frequency := float64(len(supporting)) / 5
	if frequency > 1 {
		frequency = 1
	}
	relevance := 0.5
	if confirmedRelevant > 0 {
		relevance = 1.0
	}

	base := 0.6*progress + 0.2*frequency + 0.2*relevance

	penalty := float64(deniedRelevant) * 0.15
	if penalty > 0.9 {
		penalty = 0.9
	}
	confidence := base * (1 - penalty)

	return clamp01(confidence)
}

// collectSupportingTicketIDs unions the tickets behind every confirmed
// phenomenon of this root cause.
func (t *Tracker) collectSupportingTicketIDs(ctx context.Context, relatedIDs []string, confirmed map[string]bool, rootCauseID string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, pid := range relatedIDs {
		if !confirmed[pid] {
			continue
		}
		ids, err := t.store.GetTicketIDsForPhenomenonRootCause(ctx, pid, rootCauseID)
		if err != nil {
			return nil, fmt.Errorf("loading tickets for %s/%s: %w", pid, rootCauseID, err)
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// missingPhenomenaDescriptions returns human-readable descriptions of the
// root cause's phenomena that are neither confirmed nor denied, capped at
// 3 entries over the first 5 related phenomena.
func (t *Tracker) missingPhenomenaDescriptions(ctx context.Context, relatedIDs []string, confirmed, denied map[string]bool) []string {
	var missingIDs []string
	limit := relatedIDs
	if len(limit) > 5 {
		limit = limit[:5]
	}
	for _, pid := range limit {
		if !confirmed[pid] && !denied[pid] {
			missingIDs = append(missingIDs, pid)
		}
	}
	if len(missingIDs) == 0 {
		return nil
	}
	phenomena, err := t.store.GetPhenomenaByIDs(ctx, missingIDs)
	if err != nil {
		return nil
	}
	descByID := make(map[string]string, len(phenomena))
	for _, p := range phenomena {
		descByID[p.ID] = p.Description
	}
	var out []string
	for _, pid := range missingIDs {
		if len(out) >= 3 {
			break
		}
		if d, ok := descByID[pid]; ok {
			out = append(out, d)
		}
	}
	return out
}

func intersect(ids []string, set map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}

func countMembers(ids []string, set map[string]bool) int {
	n := 0
	for _, id := range ids {
		if set[id] {
			n++
		}
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
