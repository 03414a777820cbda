package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAgent(role string) *Agent {
	return New("a1", "Cross-Domain Agent", role, []string{"cross_domain_detection"}, NewMessenger())
}

func TestReasonCycleProducesBlockRecommendationOnCriticalFactor(t *testing.T) {
	a := newTestAgent("cross_domain_investigator")
	a.RegisterTool("check_blocklist", Tool{
		Description: "checks the shared blocklist",
		Handler: func(params map[string]any) ToolResult {
			return ToolResult{Success: true, Data: map[string]any{"BLOCKLIST_MATCH": true}}
		},
	})
	a.RegisterTool(toolMLQuery, Tool{Handler: func(params map[string]any) ToolResult {
		return ToolResult{Success: true, Data: map[string]any{}}
	}})
	a.RegisterTool(toolSimilarCases, Tool{Handler: func(params map[string]any) ToolResult {
		return ToolResult{Success: true, Data: map[string]any{}}
	}})

	report, err := a.Reason(context.Background(), map[string]any{"sellerId": "S1"})
	require.NoError(t, err)
	require.Equal(t, RecommendationBlock, report.Recommendation)
	require.Contains(t, report.Factors, "BLOCKLIST_MATCH")
	require.Equal(t, StatusIdle, a.CurrentStatus())
}

func TestReasonCycleApprovesWithNoSignal(t *testing.T) {
	a := newTestAgent("cross_domain_detector")
	a.RegisterTool("noop", Tool{Handler: func(params map[string]any) ToolResult {
		return ToolResult{Success: true, Data: map[string]any{}}
	}})

	report, err := a.Reason(context.Background(), map[string]any{"sellerId": "S2"})
	require.NoError(t, err)
	require.Equal(t, RecommendationApprove, report.Recommendation)
}

func TestToolPanicIsConvertedToFailedResult(t *testing.T) {
	a := newTestAgent("cross_domain_detector")
	a.RegisterTool("explodes", Tool{Handler: func(params map[string]any) ToolResult {
		panic("boom")
	}})

	report, err := a.Reason(context.Background(), map[string]any{"sellerId": "S3"})
	require.NoError(t, err)
	require.Len(t, report.Evidence, 1)
	require.False(t, report.Evidence[0].Result.Success)
	require.Contains(t, report.Evidence[0].Result.Error, "panicked")
}

func TestInvestigatorRoleAlwaysGetsMLQueryAndSimilarCaseLookup(t *testing.T) {
	a := newTestAgent("policy_evolution_investigator")
	a.RegisterTool(toolMLQuery, Tool{Handler: func(params map[string]any) ToolResult { return ToolResult{Success: true} }})
	a.RegisterTool(toolSimilarCases, Tool{Handler: func(params map[string]any) ToolResult { return ToolResult{Success: true} }})

	report, err := a.Reason(context.Background(), map[string]any{"sellerId": "S4"})
	require.NoError(t, err)

	var sawMLQuery, sawSimilar bool
	for _, e := range report.Evidence {
		if e.Action.Tool == toolMLQuery {
			sawMLQuery = true
		}
		if e.Action.Tool == toolSimilarCases {
			sawSimilar = true
		}
	}
	require.True(t, sawMLQuery)
	require.True(t, sawSimilar)
}

func TestChainOfThoughtValidateAdjustsConfidenceWithinBound(t *testing.T) {
	cot := newChainOfThought()
	h := cot.AddHypothesis("seller is laundering returns", 0.5)
	cot.AddEvidence("three linked accounts share a bank", 1.0, h.StepID)
	cot.AddEvidence("device fingerprint overlap confirmed", 1.0, h.StepID)

	v := cot.Validate(h.StepID)
	require.LessOrEqual(t, v.Confidence, 0.8)
	require.GreaterOrEqual(t, v.Confidence, 0.5)
}

func TestCalibratorReturnsEmpiricalAccuracyForBin(t *testing.T) {
	c := newCalibrator()
	for i := 0; i < 8; i++ {
		c.Record(0.9, true)
	}
	for i := 0; i < 2; i++ {
		c.Record(0.9, false)
	}
	require.InDelta(t, 0.8, c.Calibrate(0.9), 0.0001)
}

func TestCalibratorFallsBackToPredictedWhenBinEmpty(t *testing.T) {
	c := newCalibrator()
	require.InDelta(t, 0.42, c.Calibrate(0.42), 0.0001)
}

func TestMemoryRecallsByPatternSignature(t *testing.T) {
	m := newMemory()
	m.Remember(map[string]any{"domain": "payout", "riskScore": 90.0}, map[string]any{"recommendation": "BLOCK"})

	episodes := m.Recall(map[string]any{"domain": "payout", "riskScore": 88.0})
	require.Len(t, episodes, 1)
	require.Equal(t, "BLOCK", episodes[0].Outcome["recommendation"])

	episodes = m.Recall(map[string]any{"domain": "payout", "riskScore": 5.0})
	require.Empty(t, episodes)
}

func TestMessengerHelpRequestTimesOutWithoutResponse(t *testing.T) {
	m := NewMessenger()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := m.RequestHelp(ctx, "a1", "network_analysis", nil, 50*time.Millisecond)
	require.Error(t, err)
}

func TestMessengerHelpRequestIsCorrelatedToResponse(t *testing.T) {
	m := NewMessenger()

	go func() {
		for {
			pending := m.DrainPendingHelpRequests()
			for _, req := range pending {
				m.RespondHelp(req.CorrelationID, "responder", map[string]any{"answer": 42})
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	resp, err := m.RequestHelp(context.Background(), "a1", "network_analysis", nil, time.Second)
	require.NoError(t, err)
	require.Equal(t, 42, resp.Payload["answer"])
}

func TestConsensusRequiresStrictMajority(t *testing.T) {
	winner, ok := Consensus([]string{"BLOCK", "BLOCK", "MONITOR"})
	require.True(t, ok)
	require.Equal(t, "BLOCK", winner)

	_, ok = Consensus([]string{"BLOCK", "MONITOR"})
	require.False(t, ok)
}

func TestDetectionsRingBufferCapsAt200(t *testing.T) {
	a := newTestAgent("cross_domain_detector")
	for i := 0; i < 250; i++ {
		a.appendDetection(Detection{DetectionID: "d"})
	}
	require.Len(t, a.Detections(), 200)
}
