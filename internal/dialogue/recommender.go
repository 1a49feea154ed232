package dialogue

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dbdiag/dbdiag/internal/knowledge"
)

// Action names the decision the recommender reached for a turn.
type Action string

const (
	ActionRecommend   Action = "recommend"
	ActionDiagnosis   Action = "diagnosis"
	ActionAskInitial  Action = "ask_initial_info"
	ActionAskMoreInfo Action = "ask_more_info"
)

// RecommendedPhenomenonChoice is one phenomenon the recommender suggests
// asking about next, with a human-readable justification.
type RecommendedPhenomenonChoice struct {
	Phenomenon knowledge.PhenomenonRecord
	Score      float64
	Reason     string
}

// Decision is the recommender's verdict for a turn.
type Decision struct {
	Action      Action
	Phenomena   []RecommendedPhenomenonChoice
	TopHypothesis *Hypothesis
}

// Recommender implements spec §4.4: the decision policy and the 4-factor
// phenomenon-scoring formula used when the policy calls for a
// recommendation.
type Recommender struct {
	store              *knowledge.Store
	diagnosisThreshold float64
	moderateThreshold  float64
	topN               int
}

// NewRecommender creates a Recommender over the given knowledge store with
// the configured thresholds and recommendation width.
func NewRecommender(store *knowledge.Store, diagnosisThreshold, moderateThreshold float64, topN int) *Recommender {
	if topN <= 0 {
		topN = 3
	}
	return &Recommender{store: store, diagnosisThreshold: diagnosisThreshold, moderateThreshold: moderateThreshold, topN: topN}
}

// RecommendNextAction implements spec §4.4's decision policy.
func (r *Recommender) RecommendNextAction(ctx context.Context, session *SessionState) (*Decision, error) {
	if len(session.ActiveHypotheses) == 0 {
		return &Decision{Action: ActionAskInitial}, nil
	}

	top := session.ActiveHypotheses[0]
	if top.Confidence >= r.diagnosisThreshold {
		return &Decision{Action: ActionDiagnosis, TopHypothesis: &top}, nil
	}

	choices, err := r.scorePhenomena(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(choices) > 0 {
		return &Decision{Action: ActionRecommend, Phenomena: choices, TopHypothesis: &top}, nil
	}

	if top.Confidence >= r.moderateThreshold {
		return &Decision{Action: ActionDiagnosis, TopHypothesis: &top}, nil
	}
	return &Decision{Action: ActionAskMoreInfo, TopHypothesis: &top}, nil
}

// scorePhenomena implements spec §4.4's phenomenon-scoring step.
func (r *Recommender) scorePhenomena(ctx context.Context, session *SessionState) ([]RecommendedPhenomenonChoice, error) {
	confirmed := confirmedIDSet(session)
	denied := deniedIDSet(session)

	maxTicketCount, err := r.store.GetMaxTicketCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading max ticket count: %w", err)
	}
	if maxTicketCount == 0 {
		maxTicketCount = 1
	}

	top := session.ActiveHypotheses[0]
	var second *Hypothesis
	if len(session.ActiveHypotheses) > 1 {
		second = &session.ActiveHypotheses[1]
	}

	// candidateRPs[phenomenonID] = ordered set of hypotheses (by rank in
	// active_hypotheses) that are tied to this phenomenon.
	type candidateData struct {
		phenomenon knowledge.PhenomenonRecord
		rps        []int // indices into session.ActiveHypotheses
		bestTicketCountByRC map[int]int
	}
	candidates := map[string]*candidateData{}

	for hIdx, h := range session.ActiveHypotheses {
		links, err := r.store.GetPhenomenaByRootCauseID(ctx, h.RootCauseID)
		if err != nil {
			return nil, fmt.Errorf("loading phenomena for %s: %w", h.RootCauseID, err)
		}
		for _, link := range links {
			if confirmed[link.PhenomenonID] || denied[link.PhenomenonID] {
				continue
			}
			c, ok := candidates[link.PhenomenonID]
			if !ok {
				p, err := r.store.GetPhenomenonByID(ctx, link.PhenomenonID)
				if err != nil {
					return nil, fmt.Errorf("loading phenomenon %s: %w", link.PhenomenonID, err)
				}
				if p == nil {
					continue
				}
				c = &candidateData{phenomenon: *p, bestTicketCountByRC: map[int]int{}}
				candidates[link.PhenomenonID] = c
			}
			c.rps = append(c.rps, hIdx)
			if link.TicketCount > c.bestTicketCountByRC[hIdx] {
				c.bestTicketCountByRC[hIdx] = link.TicketCount
			}
		}
	}

	topPhenomenaIDs, err := r.relatedPhenomenonIDs(ctx, top.RootCauseID)
	if err != nil {
		return nil, err
	}
	topConfirmedCount := countMembers(topPhenomenaIDs, confirmed)
	topTotal := maxInt(len(topPhenomenaIDs), 1)

	choices := make([]RecommendedPhenomenonChoice, 0, len(candidates))
	for _, c := range candidates {
		popularity, err := r.popularity(ctx, c.phenomenon.ID, maxTicketCount)
		if err != nil {
			return nil, err
		}
		specificity := 1.0 / float64(maxInt(len(c.rps), 1))

		hypothesisPriority := 0.0
		bestHIdx := -1
		for _, hIdx := range c.rps {
			h := session.ActiveHypotheses[hIdx]
			tc := c.bestTicketCountByRC[hIdx]
			priority := h.Confidence * (0.7 + 0.3*math.Sqrt(float64(tc)/float64(maxTicketCount)))
			if priority > hypothesisPriority {
				hypothesisPriority = priority
				bestHIdx = hIdx
			}
		}

		inTop := containsInt(c.rps, 0)
		confirmationGain := 0.0
		if inTop {
			confirmationGain = 1 - float64(topConfirmedCount)/float64(topTotal)
		}

		discrimination := discriminationPower(c.rps, second != nil)
		informationGain := 0.6*confirmationGain + 0.4*discrimination

		score := 0.15*popularity + 0.20*specificity + 0.40*hypothesisPriority + 0.25*informationGain

		reason := "supports a leading hypothesis"
		if bestHIdx >= 0 && bestHIdx < len(session.ActiveHypotheses) {
			reason = fmt.Sprintf("most useful for confirming or refuting %s", session.ActiveHypotheses[bestHIdx].RootCauseID)
		}

		choices = append(choices, RecommendedPhenomenonChoice{Phenomenon: c.phenomenon, Score: score, Reason: reason})
	}

	sort.Slice(choices, func(i, j int) bool { return choices[i].Score > choices[j].Score })
	if len(choices) > r.topN {
		choices = choices[:r.topN]
	}
	return choices, nil
}

// discriminationPower scores a candidate by whether it falls inside the
// top two hypotheses' R_p sets (spec §4.4).
func discriminationPower(rps []int, hasSecond bool) float64 {
	if !hasSecond {
		return 0
	}
	in1 := containsInt(rps, 0)
	in2 := containsInt(rps, 1)
	switch {
	case in1 && !in2:
		return 1.0
	case !in1 && in2:
		return 0.8
	case in1 && in2:
		return 0.2
	default:
		return 0.1
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// popularity computes spec §4.4's popularity(p): the maximum, over every
// (p, r) pair in the corpus, of ticket_count(p,r)/maxTicketCount. Unlike
// specificity and hypothesisPriority, it is not scoped to the candidate's
// R_p (the current active hypotheses' root causes) — it is a corpus-wide
// measure of how often this phenomenon has historically mattered.
func (r *Recommender) popularity(ctx context.Context, phenomenonID string, maxTicketCount int) (float64, error) {
	rows, err := r.store.GetRootCausesByPhenomenonID(ctx, phenomenonID)
	if err != nil {
		return 0, fmt.Errorf("loading root causes for %s: %w", phenomenonID, err)
	}
	popularity := 0.0
	for _, row := range rows {
		pop := float64(row.TicketCount) / float64(maxTicketCount)
		if pop > popularity {
			popularity = pop
		}
	}
	return popularity, nil
}

func (r *Recommender) relatedPhenomenonIDs(ctx context.Context, rootCauseID string) ([]string, error) {
	links, err := r.store.GetPhenomenaByRootCauseID(ctx, rootCauseID)
	if err != nil {
		return nil, fmt.Errorf("loading phenomena for %s: %w", rootCauseID, err)
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.PhenomenonID)
	}
	return ids, nil
}
