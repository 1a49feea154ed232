package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dbdiag/dbdiag/internal/db"
	"github.com/dbdiag/dbdiag/internal/diagrams"
	"github.com/dbdiag/dbdiag/internal/knowledge"
	"github.com/dbdiag/dbdiag/internal/visualize"
)

var (
	visualizeLayout string
	visualizeOut    string
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize",
	Short: "Emit an HTML page showing the phenomenon/root-cause knowledge graph",
	Long:  `Renders every phenomenon and root cause in the standardized graph, and the associations between them, as a mermaid diagram embedded in a standalone HTML page.`,
	RunE:  runVisualize,
}

func init() {
	visualizeCmd.Flags().StringVar(&visualizeLayout, "layout", "TD", "mermaid graph direction: TD, LR, BT, or RL")
	visualizeCmd.Flags().StringVarP(&visualizeOut, "out", "o", "dbdiag-graph.html", "output HTML file path")
	rootCmd.AddCommand(visualizeCmd)
}

func runVisualize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.DataDir, cfg.KnowledgeDB)
	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening knowledge store: %w", err)
	}
	defer database.Close()

	store := knowledge.NewStore(database, nil)
	ctx := context.Background()

	phenomena, err := store.GetAllPhenomena(ctx)
	if err != nil {
		return dataError(fmt.Errorf("loading phenomena: %w", err))
	}
	rootCauses, err := store.GetAllRootCauses(ctx)
	if err != nil {
		return dataError(fmt.Errorf("loading root causes: %w", err))
	}
	associations, err := store.GetAllAssociations(ctx)
	if err != nil {
		return dataError(fmt.Errorf("loading associations: %w", err))
	}

	if len(phenomena) == 0 && len(rootCauses) == 0 {
		return dataError(fmt.Errorf("knowledge graph is empty; run `dbdiag rebuild-index` first"))
	}

	components, relationships := visualize.BuildGraph(phenomena, rootCauses, associations)
	diagram := diagrams.ArchitectureDiagramWithDirection(components, relationships, visualizeLayout)

	html, err := visualize.RenderPage(diagram, len(phenomena), len(rootCauses))
	if err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}

	if err := os.WriteFile(visualizeOut, []byte(html), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", visualizeOut, err)
	}

	fmt.Printf("Wrote knowledge graph (%d phenomena, %d root causes) to %s\n", len(phenomena), len(rootCauses), visualizeOut)
	return nil
}
