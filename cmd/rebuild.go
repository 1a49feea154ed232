package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dbdiag/dbdiag/internal/audit"
	"github.com/dbdiag/dbdiag/internal/confidence"
	"github.com/dbdiag/dbdiag/internal/db"
	"github.com/dbdiag/dbdiag/internal/knowledge"
	"github.com/dbdiag/dbdiag/internal/progress"
	"github.com/dbdiag/dbdiag/internal/vectordb"
)

var rebuildIndexCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Run the full offline index-build pipeline",
	Long:  `Clusters raw anomalies into phenomena, dedupes and clusters raw root-cause text into root causes, and rebuilds the phenomenon/root-cause association tables. Destructive: the standardized graph is entirely replaced.`,
	RunE:  runRebuildIndex,
}

func init() {
	rootCmd.AddCommand(rebuildIndexCmd)
}

func runRebuildIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return err
	}

	llmProvider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.DataDir, cfg.KnowledgeDB)
	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening knowledge store: %w", err)
	}
	defer database.Close()

	vectorDir := filepath.Join(cfg.DataDir, "vectordb")
	store, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	if err := store.Load(context.Background(), vectorDir); err != nil && verbose {
		fmt.Printf("no existing vector store found at %s (fresh rebuild)\n", vectorDir)
	}

	knowledgeStore := knowledge.NewStore(database, store)
	knowledgeStore.SetConfidenceStore(confidence.NewStore(database))

	reporter := progress.NewReporter()
	started := false
	result, err := knowledgeStore.RebuildIndex(context.Background(), cfg, embedder, llmProvider, func(processed, total int, stage string) {
		if !started {
			reporter.Start(total)
			started = true
		}
		reporter.Update(processed, stage)
	})
	if started {
		reporter.Finish()
	}
	if err != nil {
		return upstreamError(fmt.Errorf("rebuilding index: %w", err))
	}

	if err := store.Persist(context.Background(), vectorDir); err != nil {
		return fmt.Errorf("persisting vector store: %w", err)
	}

	auditStore := audit.NewStore(database)
	if logErr := auditStore.Log(context.Background(), audit.Entry{
		ActorType: audit.ActorSystem, ActorID: "rebuild-index",
		Action: audit.ActionRebuildIndex, Scope: audit.ScopeKnowledgeGraph, ScopeID: "default",
		Summary: fmt.Sprintf("rebuilt %d phenomena, %d root causes from %d tickets in %s", result.Phenomena, result.RootCauses, result.Tickets, result.Duration),
	}); logErr != nil && verbose {
		fmt.Printf("warning: failed to write audit entry: %v\n", logErr)
	}

	fmt.Println()
	fmt.Println("Index rebuild complete.")
	fmt.Printf("  Phenomena:  %d\n", result.Phenomena)
	fmt.Printf("  Root causes: %d\n", result.RootCauses)
	fmt.Printf("  Tickets:    %d\n", result.Tickets)
	fmt.Printf("  Duration:   %s\n", result.Duration)
	return nil
}
