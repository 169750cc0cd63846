// Package pipeline runs one incident diagnosis end to end: redaction,
// entity detection, log parsing, retrieval, multi-agent reasoning,
// consensus, and report synthesis. One Pipeline serves many invocations;
// it holds no per-request state.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moolen/triage/internal/agent/multiagent"
	"github.com/moolen/triage/internal/agent/provider"
	"github.com/moolen/triage/internal/config"
	"github.com/moolen/triage/internal/consensus"
	"github.com/moolen/triage/internal/index"
	"github.com/moolen/triage/internal/inventory"
	"github.com/moolen/triage/internal/logging"
	"github.com/moolen/triage/internal/logparse"
	"github.com/moolen/triage/internal/models"
	"github.com/moolen/triage/internal/redact"
	"github.com/moolen/triage/internal/report"
	"github.com/moolen/triage/internal/retrieve"
)

// focusLines bounds how much of the log feeds the retrieval query.
const focusLines = 20

// Pipeline is the end-to-end incident analyzer.
type Pipeline struct {
	config       *config.Config
	redactor     *redact.Redactor
	detector     *inventory.EntityDetector
	retriever    *retrieve.Retriever
	orchestrator *multiagent.Orchestrator
	engine       *consensus.Engine
	synthesizer  *report.Synthesizer
	tracer       trace.Tracer
	logger       *logging.Logger
}

// New wires the pipeline stages. The redactor is disabled for local
// backends since the text never leaves the machine.
func New(cfg *config.Config, inv *inventory.Inventory, embedder index.Embedder, idx index.VectorIndex, prov provider.Provider) *Pipeline {
	redactor := redact.Disabled()
	if cfg.EnableSanitization && !provider.Local(cfg.Backend) {
		redactor = redact.New(redact.WithKnownNames(inv.ContactNames()))
	}

	return &Pipeline{
		config:       cfg,
		redactor:     redactor,
		detector:     inventory.NewDetector(inv, cfg.EnableFuzzyMatching),
		retriever:    retrieve.New(embedder, idx),
		orchestrator: multiagent.New(prov, multiagent.Config{AgentTimeout: cfg.AgentTimeout()}),
		engine:       consensus.New(consensus.Config{ContradictionThreshold: cfg.ContradictionThreshold}),
		synthesizer:  report.New(inv, report.Config{LowConfidenceThreshold: cfg.LowConfidenceThreshold}),
		tracer:       otel.Tracer("triage/pipeline"),
		logger:       logging.GetLogger("pipeline"),
	}
}

// Analyze turns one raw log snippet into an incident report.
func (p *Pipeline) Analyze(ctx context.Context, rawText string) (*models.IncidentReport, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.analyze")
	defer span.End()

	query := p.prepareQuery(ctx, rawText)
	parsed := logparse.Parse(query.RedactedText)

	retrieval, err := p.retrieveStage(ctx, query)
	if err != nil {
		analysesTotal.WithLabelValues(outcomeRetrievalUnavailable).Inc()
		return nil, err
	}

	findings, err := p.analyzeStage(ctx, query, retrieval)
	if err != nil {
		analysesTotal.WithLabelValues(outcomeAnalysisUnavailable).Inc()
		return nil, err
	}

	var consensusResult *models.ConsensusResult
	if p.config.EnableMultiAgent {
		cr := p.engine.Consensus(findings)
		consensusResult = &cr
		for _, role := range cr.DegradedRoles {
			degradedAgentsTotal.WithLabelValues(string(role)).Inc()
		}
	}

	rep := p.synthesizer.Synthesize(query, retrieval, findings, consensusResult, &parsed)
	analysesTotal.WithLabelValues(outcomeSuccess).Inc()
	span.SetAttributes(
		attribute.String("report.id", rep.ID),
		attribute.Float64("report.confidence", rep.Confidence),
	)
	return rep, nil
}

// prepareQuery redacts the input and detects referenced systems.
func (p *Pipeline) prepareQuery(ctx context.Context, rawText string) *models.Query {
	_, span := p.tracer.Start(ctx, "pipeline.prepare")
	defer span.End()
	start := time.Now()

	redacted := p.redactor.Redact(rawText)
	detected := p.detector.Detect(redacted.RedactedText)

	stageDuration.WithLabelValues("prepare").Observe(time.Since(start).Seconds())
	p.logger.DebugWithFields("query prepared",
		logging.Field("redactions", len(redacted.Audit)),
		logging.Field("detected_systems", len(detected)),
	)
	return &models.Query{
		RawText:         rawText,
		RedactedText:    redacted.RedactedText,
		RestoreMap:      redacted.RestoreMap,
		DetectedSystems: detected,
		Timestamp:       time.Now(),
	}
}

func (p *Pipeline) retrieveStage(ctx context.Context, query *models.Query) (*models.RetrievalResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()
	start := time.Now()

	focus := logparse.FocusQuery(query.RedactedText, focusLines)
	retrieval, err := p.retriever.Retrieve(ctx, focus, query.DetectedSystems, p.config.TopK)
	stageDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.fragments", len(retrieval.Fragments)))
	return retrieval, nil
}

func (p *Pipeline) analyzeStage(ctx context.Context, query *models.Query, retrieval *models.RetrievalResult) ([]models.AgentFinding, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.agents")
	defer span.End()
	start := time.Now()

	findings, err := p.orchestrator.Analyze(ctx, query, retrieval, p.config.EnableMultiAgent)
	stageDuration.WithLabelValues("agents").Observe(time.Since(start).Seconds())
	return findings, err
}
