package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dbdiag/dbdiag/internal/db"
	"github.com/dbdiag/dbdiag/internal/knowledge"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Append rows to the raw ticket tables",
	Long:  `Reads a JSON array of raw tickets (spec §6.1's wire format) and appends or upserts them into the raw tables. Does not touch the standardized graph; run rebuild-index afterward.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	dbPath := filepath.Join(cfg.DataDir, cfg.KnowledgeDB)
	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening knowledge store: %w", err)
	}
	defer database.Close()

	store := knowledge.NewStore(database, nil)
	result, err := store.ImportTickets(context.Background(), data)
	if err != nil {
		return dataError(fmt.Errorf("importing tickets: %w", err))
	}

	fmt.Printf("Imported %d tickets, %d anomalies.\n", result.TicketsImported, result.AnomaliesImported)
	fmt.Println("Run `dbdiag rebuild-index` to rebuild the standardized knowledge graph.")
	return nil
}
