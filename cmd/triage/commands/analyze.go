package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moolen/triage/internal/inventory"
	"github.com/moolen/triage/internal/pipeline"
	"github.com/moolen/triage/internal/render"
)

var (
	analyzeJSON        bool
	analyzePlain       bool
	analyzeSingleAgent bool
	analyzeWidth       int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Diagnose an incident from a log snippet",
	Long: `Analyze reads a log or error snippet from the given file (or stdin) and
produces a structured incident report: detected systems, root cause, impact,
recommended actions, and matching incidents and runbooks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Emit the report as JSON")
	analyzeCmd.Flags().BoolVar(&analyzePlain, "plain", false, "Emit plain markdown without terminal styling")
	analyzeCmd.Flags().BoolVar(&analyzeSingleAgent, "single-agent", false, "Run the single generalist agent instead of the specialist set")
	analyzeCmd.Flags().IntVar(&analyzeWidth, "width", 0, "Terminal width for rendering (0 = default)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if analyzeSingleAgent {
		cfg.EnableMultiAgent = false
	}

	input, err := readInput(args)
	if err != nil {
		return err
	}
	if len(input) == 0 {
		return fmt.Errorf("no input: pass a file or pipe log text to stdin")
	}

	inv, err := inventory.Load(cfg.InventoryPath)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	handle, err := buildIndex(ctx, cfg, embedder, inventory.NewDetector(inv, cfg.EnableFuzzyMatching))
	if err != nil {
		return err
	}
	defer handle.close()

	prov, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}

	rep, err := pipeline.New(cfg, inv, embedder, handle.index, prov).Analyze(ctx, string(input))
	if err != nil {
		return err
	}

	switch {
	case analyzeJSON:
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case analyzePlain:
		fmt.Print(render.Markdown(rep))
	default:
		fmt.Print(render.Terminal(rep, analyzeWidth))
	}
	return nil
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("reading input file: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return data, nil
}
