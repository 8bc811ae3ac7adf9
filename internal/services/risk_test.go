package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volpulse/volpulse/internal/models"
)

func TestHedgeRatioSteps(t *testing.T) {
	guard := NewRiskGuard(newTestConfig(), newTestLogger())

	tests := []struct {
		name     string
		dvol     float64
		skewZ    float64
		hasSkewZ bool
		drawdown float64
		ratio    float64
	}{
		{name: "calm market stays at the floor", dvol: 45, drawdown: -0.01, ratio: 0.2},
		{name: "elevated dvol", dvol: 58, drawdown: -0.01, ratio: 0.5},
		{name: "extreme dvol", dvol: 70, drawdown: -0.01, ratio: 0.8},
		{name: "skew deviation", dvol: 45, skewZ: 2.5, hasSkewZ: true, drawdown: -0.01, ratio: 0.7},
		{name: "skew ignored without z", dvol: 45, skewZ: 2.5, hasSkewZ: false, drawdown: -0.01, ratio: 0.2},
		{name: "drawdown breach fully hedges", dvol: 45, drawdown: -0.07, ratio: 1.0},
		{name: "drawdown overrides dvol step", dvol: 70, drawdown: -0.07, ratio: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := guard.HedgeRatio(tt.dvol, tt.skewZ, tt.hasSkewZ, tt.drawdown)
			assert.InDelta(t, tt.ratio, plan.Ratio, 1e-9)
			assert.NotEmpty(t, plan.Reasons)
		})
	}
}

func TestKillSwitch(t *testing.T) {
	guard := NewRiskGuard(newTestConfig(), newTestLogger())

	tripped, reason := guard.KillSwitch(-0.12, 50, 0.1)
	assert.True(t, tripped)
	assert.Contains(t, reason, "drawdown")

	tripped, reason = guard.KillSwitch(-0.01, 80, 0.1)
	assert.True(t, tripped)
	assert.Contains(t, reason, "DVOL")

	tripped, reason = guard.KillSwitch(-0.01, 50, 0.9)
	assert.True(t, tripped)
	assert.Contains(t, reason, "margin")

	tripped, reason = guard.KillSwitch(-0.01, 50, 0.1)
	assert.False(t, tripped)
	assert.Empty(t, reason)
}

func TestMaxContracts(t *testing.T) {
	guard := NewRiskGuard(newTestConfig(), newTestLogger())

	assert.InDelta(t, 0.10, guard.MaxContracts(0), 1e-9)
	assert.InDelta(t, 0.05, guard.MaxContracts(0.15), 1e-9)
	assert.InDelta(t, 0.0, guard.MaxContracts(0.25), 1e-9)
}

func TestEstimateMargin(t *testing.T) {
	guard := NewRiskGuard(newTestConfig(), newTestLogger())

	// OTM put: no intrinsic buffer, risk factor is 0.12 + 0.4*iv.
	margin := guard.EstimateMargin(66500, 56525, 0.016, 0.75, 0.10)

	assert.InDelta(t, 106.4, margin.PremiumUSD.InexactFloat64(), 0.01)
	assert.InDelta(t, 2899.4, margin.BaseMarginUSD.InexactFloat64(), 0.01)
	assert.InDelta(t, 3298.4, margin.ShockMarginUSD.InexactFloat64(), 0.01)
	assert.InDelta(t, 2793.0, margin.EstDrawdownUSD.InexactFloat64(), 0.01)

	// The shock scenario always needs at least the base margin.
	assert.True(t, margin.ShockMarginUSD.GreaterThan(margin.BaseMarginUSD))
}

func TestEstimateMarginDrawdownCappedByBalance(t *testing.T) {
	cfg := newTestConfig()
	cfg.Risk.AccountBalance = 1000
	guard := NewRiskGuard(cfg, newTestLogger())

	margin := guard.EstimateMargin(66500, 56525, 0.016, 0.75, 0.10)
	assert.InDelta(t, 1000.0, margin.EstDrawdownUSD.InexactFloat64(), 1e-9)
}

func TestDecide(t *testing.T) {
	guard := NewRiskGuard(newTestConfig(), newTestLogger())
	candidate := &models.Candidate{
		InstrumentName: "BTC-TEST-60000-P",
		Strike:         60000,
		PremiumBTC:     0.015,
		MarkIV:         0.75,
	}

	t.Run("kill switch suppresses margin sizing", func(t *testing.T) {
		metrics := models.MetricSet{SpotPrice: 66500, Dvol: 80, SpotChg1h: -0.03}
		decision := guard.Decide(metrics, 0, false, 0, candidate)

		assert.True(t, decision.KillSwitch)
		assert.NotEmpty(t, decision.KillReason)
		assert.Nil(t, decision.Margin)
	})

	t.Run("candidate gets a margin estimate", func(t *testing.T) {
		metrics := models.MetricSet{SpotPrice: 66500, Dvol: 66, SpotChg1h: -0.03}
		decision := guard.Decide(metrics, 0, false, 0, candidate)

		assert.False(t, decision.KillSwitch)
		require.NotNil(t, decision.Margin)
		assert.InDelta(t, 0.10, decision.MaxContractsBTC, 1e-9)
		assert.InDelta(t, 0.8, decision.Hedge.Ratio, 1e-9)
	})

	t.Run("no candidate means no margin block", func(t *testing.T) {
		metrics := models.MetricSet{SpotPrice: 66500, Dvol: 50, SpotChg1h: -0.01}
		decision := guard.Decide(metrics, 0, false, 0, nil)

		assert.False(t, decision.KillSwitch)
		assert.Nil(t, decision.Margin)
	})
}
