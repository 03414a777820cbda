// Package container wires every long-lived component the daemon depends on
// into one explicit struct, per spec.md §9's "no hidden module-level state"
// requirement. cmd/fraudmeshd builds exactly one Container and passes its
// handles down to the API layer and the background loops.
package container

import (
	"github.com/rs/zerolog"

	"github.com/marketwatch/fraudmesh/internal/agent"
	"github.com/marketwatch/fraudmesh/internal/featurestore"
	"github.com/marketwatch/fraudmesh/internal/graph"
	"github.com/marketwatch/fraudmesh/internal/knowledge"
	"github.com/marketwatch/fraudmesh/internal/orchestrator"
	"github.com/marketwatch/fraudmesh/internal/platform/logging"
	"github.com/marketwatch/fraudmesh/internal/platform/metrics"
	"github.com/marketwatch/fraudmesh/internal/riskprofile"
	"github.com/marketwatch/fraudmesh/internal/scheduler"
	"github.com/marketwatch/fraudmesh/internal/streaming"
)

// Config is the subset of runtime configuration the container needs to build
// its components; cmd/fraudmeshd populates this from cobra flags/viper.
type Config struct {
	LogLevel  string
	LogPretty bool

	CrossDomainScanInterval    string
	CrossDomainEventThreshold  int
	PolicyEvolutionScanInterval   string
	PolicyEvolutionEventThreshold int
}

// Container owns every shared component in the system. Nothing in this
// module reaches for package-level state; everything flows from here.
type Container struct {
	Log     zerolog.Logger
	Metrics *metrics.Registry

	Engine     *streaming.Engine
	Store      *featurestore.Store
	Graph      *graph.Graph
	RiskEngine *riskprofile.Engine
	Knowledge  *knowledge.Store

	Messenger    *agent.Messenger
	Orchestrator *orchestrator.Orchestrator

	CrossDomainAgent    *agent.Agent
	PolicyEvolutionAgent *agent.Agent

	CrossDomainScheduler    *scheduler.Scheduler
	PolicyEvolutionScheduler *scheduler.Scheduler
}

// New builds the full dependency graph. Agent tool registration is delegated
// to registerCrossDomainTools/registerPolicyEvolutionTools so each agent's
// toolset stays next to its own construction.
func New(cfg Config) (*Container, error) {
	log := logging.New(cfg.LogLevel, cfg.LogPretty)
	reg := metrics.New()

	engine := streaming.New(log, reg)
	store := featurestore.New(reg)
	g := graph.New()
	riskEngine := riskprofile.New(reg)
	kb := knowledge.New()

	messenger := agent.NewMessenger()
	orch := orchestrator.New(messenger, log)

	crossDomain := agent.New("agent-cross-domain-1", "cross-domain-investigator", "cross_domain_investigator",
		[]string{"cross_domain_detection", "network_analysis"}, messenger)
	registerCrossDomainTools(crossDomain, g, riskEngine, kb)
	orch.Register(crossDomain)

	policyEvolution := agent.New("agent-policy-evolution-1", "policy-evolution-analyst", "policy_evolution_analyst",
		[]string{"policy_evolution_analysis"}, messenger)
	registerPolicyEvolutionTools(policyEvolution, riskEngine, kb)
	orch.Register(policyEvolution)

	crossDomainInterval, err := parseDurationOrDefault(cfg.CrossDomainScanInterval, defaultScanInterval)
	if err != nil {
		return nil, err
	}
	policyEvolutionInterval, err := parseDurationOrDefault(cfg.PolicyEvolutionScanInterval, defaultScanInterval)
	if err != nil {
		return nil, err
	}

	crossDomainThreshold := cfg.CrossDomainEventThreshold
	if crossDomainThreshold <= 0 {
		crossDomainThreshold = defaultEventThreshold
	}
	policyEvolutionThreshold := cfg.PolicyEvolutionEventThreshold
	if policyEvolutionThreshold <= 0 {
		policyEvolutionThreshold = defaultEventThreshold
	}

	crossDomainScheduler := scheduler.New(crossDomain, engine, kb, reg, log, scheduler.Config{
		ScanInterval:               crossDomainInterval,
		EventAccelerationThreshold: crossDomainThreshold,
		SubscribedTopics:           []string{"transactions.scored", "risk.events"},
	})

	policyEvolutionScheduler := scheduler.New(policyEvolution, engine, kb, reg, log, scheduler.Config{
		ScanInterval:               policyEvolutionInterval,
		EventAccelerationThreshold: policyEvolutionThreshold,
		SubscribedTopics:           []string{"agent.actions", "alerts.created"},
	})

	return &Container{
		Log:                      log,
		Metrics:                  reg,
		Engine:                   engine,
		Store:                    store,
		Graph:                    g,
		RiskEngine:               riskEngine,
		Knowledge:                kb,
		Messenger:                messenger,
		Orchestrator:             orch,
		CrossDomainAgent:         crossDomain,
		PolicyEvolutionAgent:     policyEvolution,
		CrossDomainScheduler:     crossDomainScheduler,
		PolicyEvolutionScheduler: policyEvolutionScheduler,
	}, nil
}
