package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/moolen/triage/internal/index"
	"github.com/moolen/triage/internal/ingest"
	"github.com/moolen/triage/internal/inventory"
	"github.com/moolen/triage/internal/lifecycle"
	"github.com/moolen/triage/internal/mcp"
	"github.com/moolen/triage/internal/models"
	"github.com/moolen/triage/internal/pipeline"
	"github.com/moolen/triage/internal/retrieve"
	"github.com/moolen/triage/internal/tracing"
)

const knowledgeDebounce = 500 * time.Millisecond

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the diagnosis pipeline over the Model Context Protocol",
	Long: `Mcp exposes analyze_incident and search_knowledge as MCP tools over
stdio. Protocol messages go to stdout; logs go to stderr.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
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
	detector := inventory.NewDetector(inv, cfg.EnableFuzzyMatching)
	handle, err := buildIndex(ctx, cfg, embedder, detector)
	if err != nil {
		return err
	}
	defer handle.close()

	prov, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}

	manager := lifecycle.NewManager()

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		TLSCAPath:   cfg.Tracing.TLSCAPath,
		TLSInsecure: cfg.Tracing.TLSInsecure,
	})
	if err != nil {
		return err
	}
	manager.Register(tp)

	if cfg.WatchKnowledgeDir && handle.store != nil {
		builder := ingest.NewBuilder(embedder, detector)
		manager.Register(&watcherComponent{
			store: handle.store,
			dir:   cfg.KnowledgeDir,
			rebuild: func(ctx context.Context) ([]*models.KnowledgeFragment, error) {
				return builder.BuildDir(ctx, cfg.KnowledgeDir)
			},
		})
	}
	if cfg.MetricsAddr != "" {
		manager.Register(&metricsComponent{addr: cfg.MetricsAddr})
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), lifecycle.DefaultShutdownTimeout)
		defer cancel()
		_ = manager.Stop(shutdownCtx)
	}()

	p := pipeline.New(cfg, inv, embedder, handle.index, prov)
	searcher := retrieve.New(embedder, handle.index)
	return mcp.NewServer(p, searcher, Version, cfg.TopK).ServeStdio()
}

// watcherComponent rebuilds the in-memory index snapshot when the
// knowledge-base directory changes.
type watcherComponent struct {
	store   *index.Store
	dir     string
	rebuild index.RebuildFunc
	cancel  context.CancelFunc
	done    chan struct{}
}

func (w *watcherComponent) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		_ = w.store.Watch(watchCtx, w.dir, knowledgeDebounce, w.rebuild)
	}()
	return nil
}

func (w *watcherComponent) Stop(ctx context.Context) error {
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *watcherComponent) Name() string { return "knowledge watcher" }

// metricsComponent serves Prometheus metrics over HTTP.
type metricsComponent struct {
	addr   string
	server *http.Server
}

func (m *metricsComponent) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{Addr: m.addr, Handler: mux}
	go func() {
		_ = m.server.ListenAndServe()
	}()
	return nil
}

func (m *metricsComponent) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *metricsComponent) Name() string { return "metrics server" }
