package indexer

// BuildAssociations runs association construction (spec §4.1.3) given the
// already-clustered phenomena, root causes, and the raw anomalies/tickets
// they were built from.
func BuildAssociations(anomalies []AnomalyRecord, phenomena []Phenomenon, tickets []rawTicketInput, rootCauses []RootCause) ([]TicketPhenomenon, []Ticket, []PhenomenonRootCause) {
	phenomenonByAnomaly := make(map[string]string, len(anomalies))
	for _, p := range phenomena {
		for _, anomalyID := range p.SourceAnomalyIDs {
			phenomenonByAnomaly[anomalyID] = p.ID
		}
	}

	anomalyByID := make(map[string]AnomalyRecord, len(anomalies))
	for _, a := range anomalies {
		anomalyByID[a.ID] = a
	}

	rootCauseByText := make(map[string]string, len(rootCauses))
	for _, rc := range rootCauses {
		for _, text := range rc.SourceRawRootCauseIDs {
			rootCauseByText[text] = rc.ID
		}
	}

	var ticketPhenomena []TicketPhenomenon
	for anomalyID, phenomenonID := range phenomenonByAnomaly {
		a := anomalyByID[anomalyID]
		ticketPhenomena = append(ticketPhenomena, TicketPhenomenon{
			TicketID:     a.TicketID,
			PhenomenonID: phenomenonID,
			WhyRelevant:  a.WhyRelevant,
			RawAnomalyID: a.ID,
		})
	}

	var processedTickets []Ticket
	for _, t := range tickets {
		processedTickets = append(processedTickets, Ticket{
			TicketID:    t.TicketID,
			Description: t.Description,
			RootCauseID: rootCauseByText[t.RootCauseText],
			Solution:    t.Solution,
		})
	}

	rootCauseOf := make(map[string]string, len(processedTickets))
	for _, t := range processedTickets {
		rootCauseOf[t.TicketID] = t.RootCauseID
	}

	ticketsByPair := make(map[[2]string]map[string]bool)
	for _, tp := range ticketPhenomena {
		rc, ok := rootCauseOf[tp.TicketID]
		if !ok || rc == "" {
			continue
		}
		key := [2]string{tp.PhenomenonID, rc}
		if ticketsByPair[key] == nil {
			ticketsByPair[key] = make(map[string]bool)
		}
		ticketsByPair[key][tp.TicketID] = true
	}

	var phenomenonRootCauses []PhenomenonRootCause
	for pair, ticketSet := range ticketsByPair {
		phenomenonRootCauses = append(phenomenonRootCauses, PhenomenonRootCause{
			PhenomenonID: pair[0],
			RootCauseID:  pair[1],
			TicketCount:  len(ticketSet),
		})
	}

	return ticketPhenomena, processedTickets, phenomenonRootCauses
}
