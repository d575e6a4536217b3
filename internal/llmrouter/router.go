// Package llmrouter maps a task class to a concrete provider fallback chain,
// assembles prompts, and validates structured responses. It is grounded on
// the teacher's mcp.Client/AIClient provider-hook pattern
// (SynapseStrike/mcp/architect_client.go, localai_client.go,
// localfunc_client.go), reduced to one shared request-building code path
// in HTTPProvider with no per-provider hook for URL/body/parse customization.
package llmrouter

import (
	"context"
	"time"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
	"github.com/axiomtrader/assistant/internal/metrics"
	"github.com/axiomtrader/assistant/internal/obs"
)

// TaskClass is the abstract LLM workload size.
type TaskClass string

const (
	TaskLightweight TaskClass = "lightweight"
	TaskStandard    TaskClass = "standard"
	TaskComplex     TaskClass = "complex"
)

// ContextBlocks carries the structured inputs a PromptSpec renders into a
// provider-specific request.
type ContextBlocks struct {
	Quote      *domain.Quote
	Indicators *domain.Snapshot
	Anomaly    *domain.AnomalyEvent
	NewsSummary string
	Positions  []domain.Position
}

// PromptSpec is the structured prompt the router renders per-provider.
type PromptSpec struct {
	SystemRole      string
	TaskDescription string
	Context         ContextBlocks
}

// Response is the structured, schema-validated return from a provider.
type Response struct {
	Decisions []domain.Advice
	RawText   string
}

// Provider is implemented by each concrete LLM backend.
type Provider interface {
	Name() string
	SupportsTaskClass(TaskClass) bool
	Complete(ctx context.Context, spec PromptSpec) (Response, error)
}

// Router carries provider handles and the task-class fallback map,
// constructed once at startup and passed explicitly (spec.md §9: no global
// singleton LLM handle).
type Router struct {
	providers map[string]Provider
	taskMap   map[TaskClass][]string
	budget    time.Duration
}

// New builds a Router from a registry of providers and a task-class ->
// provider-name fallback chain.
func New(providers []Provider, taskMap map[TaskClass][]string, budget time.Duration) *Router {
	reg := make(map[string]Provider, len(providers))
	for _, p := range providers {
		reg[p.Name()] = p
	}
	return &Router{providers: reg, taskMap: taskMap, budget: budget}
}

// SelectTaskClass applies the upgrade rules from spec.md §4.4: standard is
// escalated to complex when any of the listed conditions hold.
func SelectTaskClass(base TaskClass, anomalySeverity domain.Severity, priceChange5mPct float64, relevantNewsCount int, isMarketOverview bool) TaskClass {
	if base != TaskStandard {
		return base
	}
	if anomalySeverity >= domain.SeverityCritical ||
		priceChange5mPct >= 0.05 ||
		relevantNewsCount >= 50 ||
		isMarketOverview {
		return TaskComplex
	}
	return base
}

// Complete tries each provider registered for the task class in order until
// one returns a well-formed response, honoring the router's total
// wall-clock budget. Malformed responses and provider errors both trigger
// fallback to the next provider.
func (r *Router) Complete(ctx context.Context, class TaskClass, spec PromptSpec) (Response, error) {
	chain := r.taskMap[class]
	if len(chain) == 0 {
		return Response{}, apperr.Wrap(apperr.ConfigurationError, "no providers configured for task class %q", class)
	}

	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	logger := obs.Component("llmrouter")

	var lastErr error
	for _, name := range chain {
		p, ok := r.providers[name]
		if !ok || !p.SupportsTaskClass(class) {
			continue
		}
		resp, err := p.Complete(ctx, spec)
		if err != nil {
			lastErr = err
			metrics.LLMCallsTotal.WithLabelValues(string(class), name, outcomeFor(err)).Inc()
			logger.Warn().Str("provider", name).Str("task_class", string(class)).Err(err).Msg("provider failed, trying next")
			if ctx.Err() != nil {
				return Response{}, apperr.Wrap(apperr.AnalysisTimeout, "llm call budget exceeded for task class %q", class)
			}
			continue
		}
		if len(resp.Decisions) == 0 {
			lastErr = apperr.Wrap(apperr.TransientUpstream, "provider %s returned no decisions", name)
			metrics.LLMCallsTotal.WithLabelValues(string(class), name, "malformed").Inc()
			continue
		}
		metrics.LLMCallsTotal.WithLabelValues(string(class), name, "ok").Inc()
		return resp, nil
	}

	if ctx.Err() != nil {
		return Response{}, apperr.Wrap(apperr.AnalysisTimeout, "llm call budget exceeded for task class %q", class)
	}
	if lastErr == nil {
		lastErr = apperr.Wrap(apperr.ConfigurationError, "no provider in chain supports task class %q", class)
	}
	return Response{}, lastErr
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	default:
		return "error"
	}
}
