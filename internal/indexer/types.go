package indexer

import "time"

// AnomalyRecord is the subset of a raw anomaly needed for clustering.
type AnomalyRecord struct {
	ID                string
	TicketID          string
	Index             int
	Description       string
	ObservationMethod string
	WhyRelevant       string
}

// RawRootCause is a deduplicated root-cause text pulled from raw tickets,
// carrying the set of tickets that reported it verbatim.
type RawRootCause struct {
	Text            string
	Solution        string
	SourceTicketIDs []string
	TicketCount     int
}

// Phenomenon is a standardized, clustered description of an observable
// database condition.
type Phenomenon struct {
	ID                string
	Description       string
	ObservationMethod string
	SourceAnomalyIDs  []string
	ClusterSize       int
	Embedding         []float32
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RootCause is a standardized, clustered explanation supported by phenomena.
type RootCause struct {
	ID                   string
	Description          string
	Solution             string
	SourceRawRootCauseIDs []string
	ClusterSize          int
	TicketCount          int
	Embedding            []float32
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Ticket is the processed view of a raw ticket once its root cause is resolved.
type Ticket struct {
	TicketID    string
	Description string
	RootCauseID string
	Solution    string
}

// TicketPhenomenon associates a ticket with a phenomenon observed in it.
type TicketPhenomenon struct {
	TicketID     string
	PhenomenonID string
	WhyRelevant  string
	RawAnomalyID string
}

// PhenomenonRootCause associates a phenomenon with a root cause it supports,
// counting how many tickets exhibit both.
type PhenomenonRootCause struct {
	PhenomenonID string
	RootCauseID  string
	TicketCount  int
}

// BuildResult summarizes the outcome of a full index rebuild.
type BuildResult struct {
	Phenomena             []Phenomenon
	RootCauses            []RootCause
	Tickets               []Ticket
	TicketPhenomena       []TicketPhenomenon
	PhenomenonRootCauses  []PhenomenonRootCause
	AnomaliesClustered    int
	RootCausesDeduped     int
	InputTokens           int
	OutputTokens           int
	Duration              time.Duration
	Errors                []error
}

// ProgressFunc is called during batch processing to report progress.
type ProgressFunc func(processed int, total int, stage string)
