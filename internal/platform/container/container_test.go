package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWiresEveryComponentAndAgentsCanReason(t *testing.T) {
	c, err := New(Config{LogLevel: "error"})
	require.NoError(t, err)
	require.NotNil(t, c.Engine)
	require.NotNil(t, c.Store)
	require.NotNil(t, c.Graph)
	require.NotNil(t, c.RiskEngine)
	require.NotNil(t, c.Knowledge)
	require.NotNil(t, c.Orchestrator)

	report, err := c.CrossDomainAgent.Reason(context.Background(), map[string]any{"sellerId": "S1"})
	require.NoError(t, err)
	require.NotEmpty(t, report.Recommendation)

	report, err = c.PolicyEvolutionAgent.Reason(context.Background(), map[string]any{"sellerId": "S1"})
	require.NoError(t, err)
	require.NotEmpty(t, report.Recommendation)
}

func TestNewDefaultsScanIntervalsWhenUnset(t *testing.T) {
	c, err := New(Config{LogLevel: "error"})
	require.NoError(t, err)
	require.NotNil(t, c.CrossDomainScheduler)
	require.NotNil(t, c.PolicyEvolutionScheduler)
}

func TestNewRejectsMalformedScanInterval(t *testing.T) {
	_, err := New(Config{LogLevel: "error", CrossDomainScanInterval: "not-a-duration"})
	require.Error(t, err)
}

func TestRegisteredAgentsAreDiscoverableByOrchestrator(t *testing.T) {
	c, err := New(Config{LogLevel: "error"})
	require.NoError(t, err)

	a, ok := c.Orchestrator.ByID("agent-cross-domain-1")
	require.True(t, ok)
	require.Equal(t, c.CrossDomainAgent, a)
}
