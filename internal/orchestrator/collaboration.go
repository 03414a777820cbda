package orchestrator

import (
	"context"
	"sync"

	"github.com/marketwatch/fraudmesh/internal/agent"
	"github.com/marketwatch/fraudmesh/internal/platform/errs"
)

// RunSequential has each named agent reason in turn, each seeing the prior
// agent's report merged into its input under "previousResult".
func (o *Orchestrator) RunSequential(ctx context.Context, agentNames []string, input map[string]any) ([]agent.Report, error) {
	reports := make([]agent.Report, 0, len(agentNames))
	current := input

	for _, name := range agentNames {
		a, ok := o.ByName(name)
		if !ok {
			return reports, errs.NewNotFound("agent %q not registered", name)
		}
		report, err := a.Reason(ctx, current)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)

		next := make(map[string]any, len(input)+1)
		for k, v := range input {
			next[k] = v
		}
		next["previousResult"] = map[string]any{
			"recommendation": report.Recommendation,
			"score":          report.Score,
		}
		current = next
	}
	return reports, nil
}

// RunParallel fans the same input out to every named agent concurrently and
// fans their reports back in, preserving agentNames' order.
func (o *Orchestrator) RunParallel(ctx context.Context, agentNames []string, input map[string]any) ([]agent.Report, error) {
	reports := make([]agent.Report, len(agentNames))
	errsOut := make([]error, len(agentNames))

	var wg sync.WaitGroup
	for i, name := range agentNames {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			a, ok := o.ByName(name)
			if !ok {
				errsOut[i] = errs.NewNotFound("agent %q not registered", name)
				return
			}
			report, err := a.Reason(ctx, input)
			reports[i] = report
			errsOut[i] = err
		}(i, name)
	}
	wg.Wait()

	for _, err := range errsOut {
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// RunConsensus fans out in parallel and returns the majority decision by
// string-equality on each report's Recommendation, per spec.md §4.I.
func (o *Orchestrator) RunConsensus(ctx context.Context, agentNames []string, input map[string]any) (string, []agent.Report, error) {
	reports, err := o.RunParallel(ctx, agentNames, input)
	if err != nil {
		return "", reports, err
	}

	decisions := make([]string, 0, len(reports))
	for _, r := range reports {
		decisions = append(decisions, r.Recommendation)
	}

	winner, hasMajority := agent.Consensus(decisions)
	if !hasMajority {
		return "", reports, errs.NewConflict("no majority decision among %d agents", len(reports))
	}
	return winner, reports, nil
}
