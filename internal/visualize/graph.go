// Package visualize renders the standardized phenomenon/root-cause
// knowledge graph as a mermaid diagram embedded in a static HTML page,
// per spec §6.2's visualize command.
package visualize

import (
	"fmt"

	"github.com/dbdiag/dbdiag/internal/diagrams"
	"github.com/dbdiag/dbdiag/internal/knowledge"
)

// BuildGraph turns the knowledge store's phenomena, root causes, and their
// associations into the generic component/relationship shape that
// diagrams.ArchitectureDiagramWithDirection renders. Edge labels carry the
// ticket count backing each association, so a reader can see at a glance
// which root causes are common versus rare for a given phenomenon.
func BuildGraph(phenomena []knowledge.PhenomenonRecord, rootCauses []knowledge.RootCauseRecord, associations []knowledge.PhenomenonRootCauseRecord) ([]diagrams.Component, []diagrams.Relationship) {
	components := make([]diagrams.Component, 0, len(phenomena)+len(rootCauses))
	for _, p := range phenomena {
		components = append(components, diagrams.Component{
			Name:        "P_" + p.ID,
			Description: truncate(p.Description, 80),
		})
	}
	for _, rc := range rootCauses {
		components = append(components, diagrams.Component{
			Name:        "R_" + rc.ID,
			Description: truncate(rc.Description, 80),
		})
	}

	relationships := make([]diagrams.Relationship, 0, len(associations))
	for _, a := range associations {
		relationships = append(relationships, diagrams.Relationship{
			From:  "P_" + a.PhenomenonID,
			To:    "R_" + a.RootCauseID,
			Label: fmt.Sprintf("%d tickets", a.TicketCount),
		})
	}

	return components, relationships
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
