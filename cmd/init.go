package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/db"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Configure dbdiag and create the knowledge store schema",
	Long:  `Runs an interactive wizard to configure dbdiag, writes a .dbdiag.yml file, and creates or migrates the knowledge store schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.RunWizard()
		if err != nil {
			return err
		}

		dbPath := filepath.Join(cfg.DataDir, cfg.KnowledgeDB)
		database, err := db.Open(dbPath)
		if err != nil {
			return fmt.Errorf("creating knowledge store: %w", err)
		}
		defer database.Close()

		fmt.Printf("Knowledge store ready at %s\n", dbPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
