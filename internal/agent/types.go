// Package agent implements the Base Agent cognition loop: a uniform
// think→plan→act→observe→reflect cycle shared by every specialised
// fraud-detection agent, plus the memory, chain-of-thought, confidence
// calibration, and inter-agent messaging it depends on.
package agent

import (
	"sync"
	"time"
)

// Status is an agent's current lifecycle state, surfaced to the orchestrator
// for help-request routing preference (IDLE agents are preferred).
type Status string

const (
	StatusIdle         Status = "IDLE"
	StatusThinking     Status = "THINKING"
	StatusPlanning     Status = "PLANNING"
	StatusExecuting    Status = "EXECUTING"
	StatusInvestigating Status = "INVESTIGATING"
)

const maxDetections = 200

// ToolResult is the uniform return shape every tool handler produces. Tools
// never panic; failures are surfaced here instead.
type ToolResult struct {
	Success bool
	Data    map[string]any
	Error   string
}

// ToolHandler is a first-class registry value — no inheritance, no dynamic
// dispatch beyond a plain map lookup.
type ToolHandler func(params map[string]any) ToolResult

// Tool pairs a handler with a human-readable description used by Think when
// assembling a strategy.
type Tool struct {
	Description string
	Handler     ToolHandler
}

// Detection is one structured finding an agent emits from a reasoning cycle.
type Detection struct {
	DetectionID string
	SellerID    string
	Score       float64
	Recommendation string
	Factors     []string
	Report      map[string]any
	CreatedAt   time.Time
}

// Recommendation thresholds, per spec.md §4.G.
const (
	RecommendationBlock   = "BLOCK"
	RecommendationReview  = "REVIEW"
	RecommendationMonitor = "MONITOR"
	RecommendationApprove = "APPROVE"
)

// riskFactorWeights is the fixed risk-factor table driving Observe's
// composite score, per spec.md §4.G.
var riskFactorWeights = map[string]float64{
	"IMPOSSIBLE_TRAVEL":        35,
	"FRAUD_NETWORK_CONNECTION": 40,
	"BLOCKLIST_MATCH":          45,
	"VELOCITY_SPIKE":           25,
	"DEVICE_MISMATCH":          20,
	"NEW_PAYOUT_ACCOUNT":       15,
	"SHARED_IDENTIFIER":        30,
	"BUST_OUT_PATTERN":         50,
}

// criticalFactors force a BLOCK recommendation regardless of composite score.
var criticalFactors = map[string]struct{}{
	"BLOCKLIST_MATCH":  {},
	"BUST_OUT_PATTERN": {},
}

func recommendationFor(score float64, factors []string) string {
	for _, f := range factors {
		if _, critical := criticalFactors[f]; critical {
			return RecommendationBlock
		}
	}
	switch {
	case score > 85:
		return RecommendationBlock
	case score > 60:
		return RecommendationReview
	case score > 30:
		return RecommendationMonitor
	default:
		return RecommendationApprove
	}
}

// Action is one planned tool invocation.
type Action struct {
	Tool   string
	Params map[string]any
}

// ActionResult pairs an executed action with its tool result.
type ActionResult struct {
	Action Action
	Result ToolResult
}

// Agent is the Base Agent every specialised agent embeds. It owns its own
// tool registry, memory, chain-of-thought builder, calibrator, and messenger
// handle; all state is protected by mu so a reasoning cycle and a concurrent
// status read never race.
type Agent struct {
	mu sync.RWMutex

	AgentID      string
	Name         string
	Role         string
	Capabilities map[string]struct{}
	Status       Status

	tools       map[string]Tool
	memory      *Memory
	calibrator  *Calibrator
	corrections *SelfCorrectionLog
	messenger   *Messenger

	detections []Detection
}

// New constructs a Base Agent. capabilities is the fixed set the orchestrator
// matches help requests against.
func New(agentID, name, role string, capabilities []string, messenger *Messenger) *Agent {
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	a := &Agent{
		AgentID:      agentID,
		Name:         name,
		Role:         role,
		Capabilities: caps,
		Status:       StatusIdle,
		tools:        make(map[string]Tool),
		memory:       newMemory(),
		calibrator:   newCalibrator(),
		corrections:  newSelfCorrectionLog(),
		messenger:    messenger,
	}
	if messenger != nil {
		messenger.register(a)
	}
	return a
}

// RegisterTool adds a tool to the agent's registry by name.
func (a *Agent) RegisterTool(name string, tool Tool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools[name] = tool
}

func (a *Agent) setStatus(s Status) {
	a.mu.Lock()
	a.Status = s
	a.mu.Unlock()
}

// CurrentStatus returns the agent's status without racing a running cycle.
func (a *Agent) CurrentStatus() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Status
}

// HasCapability reports whether the agent advertises the named capability.
func (a *Agent) HasCapability(capability string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.Capabilities[capability]
	return ok
}

// Detections returns a snapshot of the ring-buffered detection history.
func (a *Agent) Detections() []Detection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Detection(nil), a.detections...)
}

func (a *Agent) appendDetection(d Detection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detections = append(a.detections, d)
	if len(a.detections) > maxDetections {
		a.detections = a.detections[len(a.detections)-maxDetections:]
	}
}
