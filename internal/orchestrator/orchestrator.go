// Package orchestrator implements the agent registry, workflow executor, and
// capability-based help-request router that sits above the individual Base
// Agents, per spec.md §4.I.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marketwatch/fraudmesh/internal/agent"
	"github.com/marketwatch/fraudmesh/internal/platform/errs"
	"github.com/marketwatch/fraudmesh/internal/platform/logging"
)

// helpRoutingInterval is the fixed drain cadence for pending help requests,
// per spec.md §4.I.
const helpRoutingInterval = 100 * time.Millisecond

// Orchestrator owns the agent registry and runs the help-request routing
// loop. It holds no global state beyond what's passed in at construction,
// per the single-explicit-container convention in spec.md §9.
type Orchestrator struct {
	mu        sync.RWMutex
	byID      map[string]*agent.Agent
	byRole    map[string][]*agent.Agent
	byName    map[string]*agent.Agent
	messenger *agent.Messenger
	log       zerolog.Logger

	executions sync.Map // executionId -> *Execution
}

func New(messenger *agent.Messenger, base zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		byID:      make(map[string]*agent.Agent),
		byRole:    make(map[string][]*agent.Agent),
		byName:    make(map[string]*agent.Agent),
		messenger: messenger,
		log:       logging.Component(base, "orchestrator"),
	}
}

// Register adds an agent to the registry, indexed by id, role, and name.
func (o *Orchestrator) Register(a *agent.Agent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byID[a.AgentID] = a
	o.byName[a.Name] = a
	o.byRole[a.Role] = append(o.byRole[a.Role], a)
}

func (o *Orchestrator) ByID(id string) (*agent.Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.byID[id]
	return a, ok
}

func (o *Orchestrator) ByRole(role string) []*agent.Agent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*agent.Agent(nil), o.byRole[role]...)
}

func (o *Orchestrator) ByName(name string) (*agent.Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.byName[name]
	return a, ok
}

// RunHelpRouting drains pending help requests every 100ms, selecting any
// agent advertising the requested capability (preferring IDLE) and
// delivering a unicast help message; it runs until ctx is cancelled.
func (o *Orchestrator) RunHelpRouting(ctx context.Context) {
	ticker := time.NewTicker(helpRoutingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.routeOnce()
		}
	}
}

func (o *Orchestrator) routeOnce() {
	pending := o.messenger.DrainPendingHelpRequests()
	for _, req := range pending {
		candidates := o.messenger.AgentsWithCapability(req.Capability)
		if len(candidates) == 0 {
			o.log.Warn().Str("capability", req.Capability).Msg("no agent advertises requested capability")
			continue
		}
		target := candidates[0]
		if err := o.messenger.Unicast("orchestrator", target.AgentID, map[string]any{
			"kind":          "help_request",
			"correlationId": req.CorrelationID,
			"from":          req.From,
			"payload":       req.Payload,
		}); err != nil {
			o.log.Error().Err(err).Msg("failed to route help request")
		}
	}
}

// RespondHelp is the convenience surface a responding agent calls once it
// has produced an answer to a routed help request.
func (o *Orchestrator) RespondHelp(correlationID, responderID string, payload map[string]any) bool {
	return o.messenger.RespondHelp(correlationID, responderID, payload)
}

// ExecutionStatus is a workflow execution's lifecycle state.
type ExecutionStatus string

const (
	ExecutionRunning        ExecutionStatus = "RUNNING"
	ExecutionAwaitingHuman  ExecutionStatus = "AWAITING_HUMAN"
	ExecutionCompleted      ExecutionStatus = "COMPLETED"
	ExecutionFailed         ExecutionStatus = "FAILED"
)

// StepResult is what a workflow step produces; a result signalling
// NeedsHumanReview suspends the execution.
type StepResult struct {
	Output            map[string]any
	NeedsHumanReview  bool
	Err               error
}

// Step declares one workflow step, per spec.md §4.I.
type Step struct {
	Name            string
	Agent           string // agent name
	InputMapper     func(input map[string]any, previousResults []StepResult) map[string]any
	OutputMapper    func(report agent.Report) StepResult
	ContinueOnError bool
}

// Workflow is an ordered sequence of steps executed against the agent
// registry.
type Workflow struct {
	Name  string
	Steps []Step
}

// Execution tracks one in-flight (or suspended, or finished) workflow run.
type Execution struct {
	ID              string
	Workflow        string
	Status          ExecutionStatus
	Results         []StepResult
	SuspendedAt     int
	HumanDecision   map[string]any
}

// ExecuteWorkflow runs steps sequentially, threading {input, previousResults}.
// A step whose result signals NeedsHumanReview transitions the execution to
// AWAITING_HUMAN and returns immediately; resolution is by ResolveEscalation.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, wf Workflow, input map[string]any) (*Execution, error) {
	exec := &Execution{ID: uuid.NewString(), Workflow: wf.Name, Status: ExecutionRunning}
	o.executions.Store(exec.ID, exec)

	o.runFrom(ctx, wf, exec, input, 0)
	return exec, nil
}

func (o *Orchestrator) runFrom(ctx context.Context, wf Workflow, exec *Execution, input map[string]any, startIdx int) {
	for i := startIdx; i < len(wf.Steps); i++ {
		step := wf.Steps[i]

		a, ok := o.ByName(step.Agent)
		if !ok {
			result := StepResult{Err: errs.NewNotFound("agent %q not registered", step.Agent)}
			exec.Results = append(exec.Results, result)
			if !step.ContinueOnError {
				exec.Status = ExecutionFailed
				return
			}
			continue
		}

		stepInput := input
		if step.InputMapper != nil {
			stepInput = step.InputMapper(input, exec.Results)
		}

		report, err := a.Reason(ctx, stepInput)
		var result StepResult
		if err != nil {
			result = StepResult{Err: err}
		} else if step.OutputMapper != nil {
			result = step.OutputMapper(report)
		} else {
			result = StepResult{Output: map[string]any{
				"recommendation": report.Recommendation,
				"score":          report.Score,
			}}
		}

		exec.Results = append(exec.Results, result)

		if result.Err != nil && !step.ContinueOnError {
			exec.Status = ExecutionFailed
			return
		}

		if result.NeedsHumanReview {
			exec.Status = ExecutionAwaitingHuman
			exec.SuspendedAt = i + 1
			return
		}
	}
	exec.Status = ExecutionCompleted
}

// ResolveEscalation resumes a suspended workflow execution with a human
// decision, continuing from the step after the one that suspended it.
func (o *Orchestrator) ResolveEscalation(ctx context.Context, wf Workflow, executionID string, humanDecision map[string]any) error {
	v, ok := o.executions.Load(executionID)
	if !ok {
		return errs.NewNotFound("execution %q not found", executionID)
	}
	exec := v.(*Execution)
	if exec.Status != ExecutionAwaitingHuman {
		return errs.NewConflict("execution %q is not awaiting human review", executionID)
	}

	exec.HumanDecision = humanDecision
	exec.Status = ExecutionRunning
	o.runFrom(ctx, wf, exec, humanDecision, exec.SuspendedAt)
	return nil
}

// GetExecution returns a snapshot of an execution's current state.
func (o *Orchestrator) GetExecution(executionID string) (*Execution, bool) {
	v, ok := o.executions.Load(executionID)
	if !ok {
		return nil, false
	}
	return v.(*Execution), true
}
