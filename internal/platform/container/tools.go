package container

import (
	"fmt"
	"time"

	"github.com/marketwatch/fraudmesh/internal/agent"
	"github.com/marketwatch/fraudmesh/internal/graph"
	"github.com/marketwatch/fraudmesh/internal/knowledge"
	"github.com/marketwatch/fraudmesh/internal/riskprofile"
)

const (
	defaultScanInterval  = 5 * time.Second
	defaultEventThreshold = 20
)

func parseDurationOrDefault(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing scan interval %q: %w", raw, err)
	}
	return d, nil
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

// registerCrossDomainTools equips the cross-domain investigator with the
// graph and risk-profile tools a network-pattern investigation needs, plus
// the ML-query/similar-case-lookup tools spec.md §4.G requires every
// investigator-class agent to carry.
func registerCrossDomainTools(a *agent.Agent, g *graph.Graph, riskEngine *riskprofile.Engine, kb *knowledge.Store) {
	a.RegisterTool("check_blocklist", agent.Tool{
		Description: "checks whether the seller's graph node carries a watchlist or rejected-entity signal",
		Handler: func(params map[string]any) agent.ToolResult {
			sellerID := stringParam(params, "sellerId")
			node := g.GetNode(sellerID)
			if node == nil {
				return agent.ToolResult{Success: true, Data: map[string]any{"BLOCKLIST_MATCH": false}}
			}
			watchlisted, _ := node.Properties["watchlistMatch"].(bool)
			rejected, _ := node.Properties["status"].(string)
			return agent.ToolResult{Success: true, Data: map[string]any{
				"BLOCKLIST_MATCH": watchlisted || rejected == "REJECTED",
			}}
		},
	})

	a.RegisterTool("investigate_network", agent.Tool{
		Description: "walks the identity graph up to 3 hops for fraud-network evidence",
		Handler: func(params map[string]any) agent.ToolResult {
			sellerID := stringParam(params, "sellerId")
			evidence := g.Investigate(sellerID, 3, 0.5)
			connected := false
			for _, e := range evidence {
				if len(e.RiskSignals) > 0 {
					connected = true
					break
				}
			}
			return agent.ToolResult{Success: true, Data: map[string]any{
				"FRAUD_NETWORK_CONNECTION": connected,
				"evidence":                 evidence,
			}}
		},
	})

	a.RegisterTool("check_risk_profile", agent.Tool{
		Description: "reads the seller's current composite risk tier",
		Handler: func(params map[string]any) agent.ToolResult {
			sellerID := stringParam(params, "sellerId")
			profile := riskEngine.GetProfile(sellerID)
			if profile == nil {
				return agent.ToolResult{Success: true, Data: map[string]any{}}
			}
			return agent.ToolResult{Success: true, Data: map[string]any{
				"compositeScore": profile.CompositeScore,
				"riskTier":       string(profile.RiskTier),
			}}
		},
	})

	a.RegisterTool(agent.ToolMLQuery, agent.Tool{
		Description: "stand-in for the external ML scoring collaborator",
		Handler: func(params map[string]any) agent.ToolResult {
			return agent.ToolResult{Success: true, Data: map[string]any{"mlScore": 0.0}}
		},
	})

	a.RegisterTool(agent.ToolSimilarCases, agent.Tool{
		Description: "searches the knowledge base for similar past decisions",
		Handler: func(params map[string]any) agent.ToolResult {
			sellerID := stringParam(params, "sellerId")
			results := kb.Search("fraud network bust out", knowledge.SearchOptions{
				Namespace: knowledge.NamespaceDecisions,
				SellerID:  sellerID,
				Limit:     5,
			})
			return agent.ToolResult{Success: true, Data: map[string]any{"similarCases": results}}
		},
	})
}

// registerPolicyEvolutionTools equips the policy-evolution analyst with
// knowledge-base-driven rule-drift detection.
func registerPolicyEvolutionTools(a *agent.Agent, riskEngine *riskprofile.Engine, kb *knowledge.Store) {
	a.RegisterTool("review_recent_rules", agent.Tool{
		Description: "pulls the most recently added rule entries for drift review",
		Handler: func(params map[string]any) agent.ToolResult {
			results := kb.Search("", knowledge.SearchOptions{Namespace: knowledge.NamespaceRules, Limit: 10})
			return agent.ToolResult{Success: true, Data: map[string]any{"rules": results}}
		},
	})

	a.RegisterTool("check_risk_profile", agent.Tool{
		Description: "reads the seller's current composite risk tier",
		Handler: func(params map[string]any) agent.ToolResult {
			sellerID := stringParam(params, "sellerId")
			profile := riskEngine.GetProfile(sellerID)
			if profile == nil {
				return agent.ToolResult{Success: true, Data: map[string]any{}}
			}
			return agent.ToolResult{Success: true, Data: map[string]any{
				"compositeScore": profile.CompositeScore,
				"riskTier":       string(profile.RiskTier),
			}}
		},
	})
}
