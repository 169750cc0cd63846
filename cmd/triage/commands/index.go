package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moolen/triage/internal/index"
	"github.com/moolen/triage/internal/ingest"
	"github.com/moolen/triage/internal/inventory"
	"github.com/moolen/triage/internal/models"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Ingest the knowledge base into the vector index",
	Long: `Index chunks the markdown documents in the knowledge directory, embeds
them, and writes the fragments to the configured pgvector database. Without
a database_url this validates the ingestion and prints a summary; in-memory
mode re-ingests at startup anyway.`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	inv, err := inventory.Load(cfg.InventoryPath)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return err
	}

	builder := ingest.NewBuilder(embedder, inventory.NewDetector(inv, cfg.EnableFuzzyMatching))
	fragments, err := builder.BuildDir(ctx, cfg.KnowledgeDir)
	if err != nil {
		return err
	}

	if cfg.DatabaseURL != "" {
		pg, err := index.NewPgIndex(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.ReplaceAll(ctx, fragments); err != nil {
			return fmt.Errorf("writing fragments: %w", err)
		}
	}

	byKind := make(map[models.SourceKind]int)
	for _, f := range fragments {
		byKind[f.SourceKind]++
	}
	fmt.Printf("indexed %d fragments from %s\n", len(fragments), cfg.KnowledgeDir)
	for _, kind := range []models.SourceKind{models.SourceIncident, models.SourceRunbook, models.SourceServer, models.SourceContact} {
		if byKind[kind] > 0 {
			fmt.Printf("  %-10s %d\n", kind, byKind[kind])
		}
	}
	if cfg.DatabaseURL == "" {
		fmt.Println("no database_url configured; fragments validated but not persisted")
	}
	return nil
}
