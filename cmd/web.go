package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dbdiag/dbdiag/internal/audit"
	"github.com/dbdiag/dbdiag/internal/confidence"
	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/db"
	"github.com/dbdiag/dbdiag/internal/dialogue"
	"github.com/dbdiag/dbdiag/internal/knowledge"
	"github.com/dbdiag/dbdiag/internal/retriever"
	"github.com/dbdiag/dbdiag/internal/server"
	"github.com/dbdiag/dbdiag/internal/vectordb"
)

var (
	webHost string
	webPort int
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Launch the WebSocket/HTTP diagnosis server",
	Long:  `Starts the /ws/chat dialogue server (spec §6.3) backed by the GAR diagnosis engine.`,
	RunE:  runWeb,
}

func init() {
	webCmd.Flags().StringVar(&webHost, "host", "0.0.0.0", "host to bind")
	webCmd.Flags().IntVar(&webPort, "port", 8080, "port to listen on")
	rootCmd.AddCommand(webCmd)
}

func runWeb(cmd *cobra.Command, args []string) error {
	mgr, database, closeFn, err := buildDialogueManager(config.VariantGAR)
	if err != nil {
		return err
	}
	defer closeFn()

	srv := server.New(server.Config{Host: webHost, Port: webPort, AllowAll: true}, mgr)
	confidence.RegisterRoutes(srv.Router(), confidence.NewStore(database))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		srv.Shutdown(context.Background())
	}()

	fmt.Fprintf(os.Stderr, "dbdiag web server starting on %s:%d\n", webHost, webPort)
	return srv.Start()
}

// buildDialogueManager wires a dialogue.Manager from config, used by both
// the web and cli commands. The returned close func releases the opened
// database and must be called once the manager is no longer needed.
func buildDialogueManager(variant config.Variant) (*dialogue.Manager, *db.DB, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	llmProvider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	dbPath := filepath.Join(cfg.DataDir, cfg.KnowledgeDB)
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening knowledge store: %w", err)
	}

	vectorDir := filepath.Join(cfg.DataDir, "vectordb")
	vectorStore, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		database.Close()
		return nil, nil, nil, fmt.Errorf("creating vector store: %w", err)
	}
	if err := vectorStore.Load(context.Background(), vectorDir); err != nil && verbose {
		fmt.Fprintf(os.Stderr, "no existing vector store at %s: %v\n", vectorDir, err)
	}

	store := knowledge.NewStore(database, vectorStore)
	ret := retriever.New(store, vectorStore)
	mgr := dialogue.NewManager(store, ret, llmProvider, cfg, variant)
	mgr.SetAuditStore(audit.NewStore(database))

	return mgr, database, func() { database.Close() }, nil
}
