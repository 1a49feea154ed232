package indexer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/embeddings"
	"github.com/dbdiag/dbdiag/internal/llm"
)

// RawTicketInput mirrors a raw ticket row for pipeline consumption. It is
// exported so callers outside this package (the knowledge store) can feed
// the pipeline without importing an internal type.
type RawTicketInput = rawTicketInput

// Run executes the full offline index-build pipeline (spec §4.1): phenomenon
// construction, root-cause construction, and association construction, in
// that order. Anomalies and tickets are sorted into the mandatory
// (ticket_id, index) lexicographic order before clustering so rebuilds are
// reproducible.
func Run(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, provider llm.Provider, anomalies []AnomalyRecord, tickets []RawTicketInput, onProgress ProgressFunc) (*BuildResult, error) {
	start := time.Now()

	sortAnomalies(anomalies)
	sort.SliceStable(tickets, func(i, j int) bool { return tickets[i].TicketID < tickets[j].TicketID })

	phenomena, err := BuildPhenomena(ctx, cfg, embedder, provider, anomalies, onProgress)
	if err != nil {
		return nil, fmt.Errorf("building phenomena: %w", err)
	}

	rawRootCauses := DedupeRootCauses(tickets)
	rootCauses, err := BuildRootCauses(ctx, cfg, embedder, provider, rawRootCauses, onProgress)
	if err != nil {
		return nil, fmt.Errorf("building root causes: %w", err)
	}

	ticketPhenomena, processedTickets, phenomenonRootCauses := BuildAssociations(anomalies, phenomena, tickets, rootCauses)

	return &BuildResult{
		Phenomena:            phenomena,
		RootCauses:           rootCauses,
		Tickets:              processedTickets,
		TicketPhenomena:      ticketPhenomena,
		PhenomenonRootCauses: phenomenonRootCauses,
		AnomaliesClustered:   len(anomalies),
		RootCausesDeduped:    len(rawRootCauses),
		Duration:             time.Since(start),
	}, nil
}
