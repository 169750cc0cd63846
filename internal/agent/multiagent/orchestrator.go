package multiagent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moolen/triage/internal/agent/provider"
	"github.com/moolen/triage/internal/logging"
	"github.com/moolen/triage/internal/models"
)

const (
	// DefaultAgentTimeout bounds one reasoning-backend call.
	DefaultAgentTimeout = 30 * time.Second
	// minSuccessfulAgents is the threshold below which multi-agent
	// analysis fails instead of degrading.
	minSuccessfulAgents = 2
	// agentRetries is the number of retries after a failed call.
	agentRetries = 1
)

// Config tunes the orchestrator.
type Config struct {
	// AgentTimeout bounds each individual backend call.
	AgentTimeout time.Duration
}

// Orchestrator runs the reasoning agents over a query and its retrieved
// context.
type Orchestrator struct {
	provider provider.Provider
	config   Config
	logger   *logging.Logger
}

// New creates an Orchestrator over the given reasoning backend.
func New(p provider.Provider, cfg Config) *Orchestrator {
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = DefaultAgentTimeout
	}
	return &Orchestrator{
		provider: p,
		config:   cfg,
		logger:   logging.GetLogger("multiagent"),
	}
}

// Analyze runs the agents and returns their findings sorted by role name.
//
// Multi-agent mode runs all four specialist roles concurrently; a role
// whose call fails after retry yields a degraded finding. If fewer than
// two roles succeed the whole analysis fails with ErrAnalysisUnavailable.
// Single-agent mode runs the generalist role only.
func (o *Orchestrator) Analyze(ctx context.Context, query *models.Query, retrieval *models.RetrievalResult, multiAgent bool) ([]models.AgentFinding, error) {
	if !multiAgent {
		finding, err := o.runAgent(ctx, models.RoleGeneralist, query, retrieval)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrAnalysisUnavailable, err)
		}
		return []models.AgentFinding{finding}, nil
	}

	roles := models.SpecialistRoles()
	findings := make([]models.AgentFinding, len(roles))
	agentErrs := make([]error, len(roles))

	g, gctx := errgroup.WithContext(ctx)
	for i, role := range roles {
		g.Go(func() error {
			finding, err := o.runAgent(gctx, role, query, retrieval)
			if err != nil {
				// Degrade locally; only the success count decides
				// whether the analysis survives.
				agentErrs[i] = err
				findings[i] = models.DegradedFinding(role)
				return nil
			}
			findings[i] = finding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Cancellation discards partial findings instead of reporting them.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	succeeded := 0
	for _, f := range findings {
		if !f.Degraded {
			succeeded++
		}
	}
	if succeeded < minSuccessfulAgents {
		return nil, fmt.Errorf("%w: %d of %d agents succeeded: %v",
			models.ErrAnalysisUnavailable, succeeded, len(roles), errors.Join(agentErrs...))
	}

	models.SortFindings(findings)
	o.logger.InfoWithFields("multi-agent analysis complete",
		logging.Field("succeeded", succeeded),
		logging.Field("degraded", len(roles)-succeeded),
	)
	return findings, nil
}

// runAgent executes one role with a per-call timeout and a single retry.
func (o *Orchestrator) runAgent(ctx context.Context, role models.AgentRole, query *models.Query, retrieval *models.RetrievalResult) (models.AgentFinding, error) {
	spec := roleSpecs[role]
	userPrompt := buildUserPrompt(spec, query, retrieval)

	var lastErr error
	for attempt := 0; attempt <= agentRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.AgentFinding{}, models.NewAgentError(role, err, true)
		}

		callCtx, cancel := context.WithTimeout(ctx, o.config.AgentTimeout)
		output, err := o.provider.Complete(callCtx, spec.system, userPrompt)
		cancel()
		if err != nil {
			timeout := errors.Is(err, context.DeadlineExceeded)
			lastErr = models.NewAgentError(role, err, timeout)
			o.logger.WarnWithFields("agent call failed",
				logging.Field("role", string(role)),
				logging.Field("attempt", attempt+1),
				logging.Field("error", err.Error()),
			)
			continue
		}

		finding, err := parseFinding(spec, output, retrieval)
		if err != nil {
			lastErr = models.NewAgentError(role, err, false)
			continue
		}
		return finding, nil
	}
	return models.AgentFinding{}, lastErr
}
