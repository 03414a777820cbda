package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// investigatorRoleSuffix marks agents whose role ends in this suffix as
// investigator-class, per spec.md §4.G ("always append one ML-query tool and
// one similar-case lookup for investigator-class agents").
const investigatorRoleSuffix = "investigator"

// ToolMLQuery and ToolSimilarCases are the fixed tool names every
// investigator-class agent's plan always appends, per spec.md §4.G.
// Exported so callers wiring an agent's tool registry (internal/platform/container)
// can register handlers under the exact names the planner reaches for.
const (
	ToolMLQuery      = "ml_query"
	ToolSimilarCases = "similar_case_lookup"
)

const (
	toolMLQuery      = ToolMLQuery
	toolSimilarCases = ToolSimilarCases
)

// Report is the structured output of a completed reasoning cycle.
type Report struct {
	SellerID       string
	Score          float64
	Recommendation string
	Factors        []string
	Evidence       []ActionResult
	Chain          []Step
	Confidence     float64
}

// Reason runs the Base Agent's five-phase cognition cycle over input. ctx
// bounds any suspension point inside tool execution (per spec.md §5).
func (a *Agent) Reason(ctx context.Context, input map[string]any) (Report, error) {
	cot := newChainOfThought()

	strategy := a.think(cot, input)
	actions := a.plan(cot, strategy, input)
	results := a.act(ctx, cot, actions)
	report := a.observeCycle(cot, input, results)
	a.reflect(cot, input, report)

	return report, nil
}

// think builds a domain-specific understanding of the input and proposes a
// strategy: a list of tool names to call.
func (a *Agent) think(cot *ChainOfThought, input map[string]any) []string {
	a.setStatus(StatusThinking)

	cot.AddObservation(fmt.Sprintf("received input for reasoning cycle: %v", keysOf(input)), input)

	a.mu.RLock()
	strategy := make([]string, 0, len(a.tools))
	for name := range a.tools {
		strategy = append(strategy, name)
	}
	a.mu.RUnlock()
	sort.Strings(strategy)

	a.memory.Observe(input)
	if episodes := a.memory.Recall(input); len(episodes) > 0 {
		cot.AddEvidence(fmt.Sprintf("recalled %d similar past episode(s)", len(episodes)), 0.6, "")
	}

	cot.AddHypothesis("strategy: invoke "+fmt.Sprint(strategy), 0.5)

	return strategy
}

// plan materialises the tool strategy into concrete actions, always
// appending the ML-query and similar-case-lookup tools for investigator-class
// agents, per spec.md §4.G.
func (a *Agent) plan(cot *ChainOfThought, strategy []string, input map[string]any) []Action {
	a.setStatus(StatusPlanning)

	actions := make([]Action, 0, len(strategy)+2)
	for _, tool := range strategy {
		actions = append(actions, Action{Tool: tool, Params: input})
	}

	if isInvestigatorRole(a.Role) {
		actions = append(actions,
			Action{Tool: toolMLQuery, Params: input},
			Action{Tool: toolSimilarCases, Params: input},
		)
	}

	cot.AddAnalysis(fmt.Sprintf("planned %d action(s)", len(actions)), 0.7)
	return actions
}

func isInvestigatorRole(role string) bool {
	return len(role) >= len(investigatorRoleSuffix) && role[len(role)-len(investigatorRoleSuffix):] == investigatorRoleSuffix
}

// act executes every planned action. A missing tool, a panicking tool and a
// cancelled ctx are each converted into a failed ToolResult rather than an
// error return, so evidence collection always completes.
func (a *Agent) act(ctx context.Context, cot *ChainOfThought, actions []Action) []ActionResult {
	a.setStatus(StatusExecuting)

	results := make([]ActionResult, 0, len(actions))
	for _, action := range actions {
		select {
		case <-ctx.Done():
			results = append(results, ActionResult{Action: action, Result: ToolResult{Success: false, Error: ctx.Err().Error()}})
			continue
		default:
		}

		result := a.invoke(action)
		results = append(results, ActionResult{Action: action, Result: result})
		cot.AddAction(fmt.Sprintf("executed %s: success=%t", action.Tool, result.Success), map[string]any{"tool": action.Tool})
	}
	return results
}

func (a *Agent) invoke(action Action) (result ToolResult) {
	a.mu.RLock()
	tool, ok := a.tools[action.Tool]
	a.mu.RUnlock()
	if !ok {
		return ToolResult{Success: false, Error: "unknown tool: " + action.Tool}
	}

	defer func() {
		if r := recover(); r != nil {
			result = ToolResult{Success: false, Error: fmt.Sprintf("tool %s panicked: %v", action.Tool, r)}
		}
	}()
	return tool.Handler(action.Params)
}

// observeCycle analyses collected evidence, computes a composite risk score
// from the fixed risk-factor table, and assembles the structured report.
func (a *Agent) observeCycle(cot *ChainOfThought, input map[string]any, results []ActionResult) Report {
	a.setStatus(StatusInvestigating)

	var score float64
	var factors []string
	for _, r := range results {
		if !r.Result.Success {
			continue
		}
		for factor, weight := range riskFactorWeights {
			if triggered, _ := r.Result.Data[factor].(bool); triggered {
				score += weight
				factors = append(factors, factor)
			}
		}
	}
	if score > 100 {
		score = 100
	}

	recommendation := recommendationFor(score, factors)
	cot.AddInference(fmt.Sprintf("composite score %.1f, factors=%v", score, factors), 0.8)
	cot.AddConclusion("recommendation: "+recommendation, confidenceFor(recommendation))

	sellerID, _ := input["sellerId"].(string)

	report := Report{
		SellerID:       sellerID,
		Score:          score,
		Recommendation: recommendation,
		Factors:        factors,
		Evidence:       results,
		Chain:          cot.Steps(),
		Confidence:     confidenceFor(recommendation),
	}

	if recommendation == RecommendationBlock || recommendation == RecommendationReview {
		a.appendDetection(Detection{
			DetectionID:     uuid.NewString(),
			SellerID:        sellerID,
			Score:           score,
			Recommendation:  recommendation,
			Factors:         factors,
			Report:          reportToMap(report),
			CreatedAt:       time.Now(),
		})
	}

	return report
}

func confidenceFor(recommendation string) float64 {
	switch recommendation {
	case RecommendationBlock:
		return 0.9
	case RecommendationReview:
		return 0.7
	case RecommendationMonitor:
		return 0.5
	default:
		return 0.3
	}
}

// reflect persists the chain-of-thought trace, logs the prediction for later
// self-correction review, and calibrates confidence from past accuracy.
func (a *Agent) reflect(cot *ChainOfThought, input map[string]any, report Report) {
	a.memory.Remember(input, reportToMap(report))

	predictionID := uuid.NewString()
	a.corrections.LogPrediction(predictionID, report.Recommendation, report.Confidence)

	calibrated := a.calibrator.Calibrate(report.Confidence)
	cot.add(StepValidation, fmt.Sprintf("calibrated confidence %.2f -> %.2f", report.Confidence, calibrated), calibrated, nil, nil, nil)

	a.setStatus(StatusIdle)
}

func reportToMap(r Report) map[string]any {
	return map[string]any{
		"sellerId":       r.SellerID,
		"score":          r.Score,
		"recommendation": r.Recommendation,
		"factors":        r.Factors,
		"confidence":     r.Confidence,
	}
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
