package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/volpulse/volpulse/internal/models"
)

func TestEvaluateEntryRule(t *testing.T) {
	detector := NewRegimeDetector(newTestConfig(), newTestLogger())

	tests := []struct {
		name      string
		metrics   models.MetricSet
		entry     bool
		slowBleed bool
	}{
		{
			name: "all conditions met",
			metrics: models.MetricSet{
				SpotChg1h: -0.03, DvolChg1h: 0.08,
				IVP: 85, IVR: 60, HasIVStats: true,
			},
			entry: true,
		},
		{
			name: "spot drop too shallow",
			metrics: models.MetricSet{
				SpotChg1h: -0.01, DvolChg1h: 0.08,
				IVP: 85, IVR: 60, HasIVStats: true,
			},
			entry: false,
		},
		{
			name: "no dvol pulse",
			metrics: models.MetricSet{
				SpotChg1h: -0.03, DvolChg1h: 0.01,
				IVP: 85, IVR: 60, HasIVStats: true,
			},
			entry: false,
		},
		{
			name: "iv gate fails on both stats",
			metrics: models.MetricSet{
				SpotChg1h: -0.03, DvolChg1h: 0.08,
				IVP: 50, IVR: 40, HasIVStats: true,
			},
			entry: false,
		},
		{
			name: "ivr alone satisfies the gate",
			metrics: models.MetricSet{
				SpotChg1h: -0.03, DvolChg1h: 0.08,
				IVP: 10, IVR: 60, HasIVStats: true,
			},
			entry: true,
		},
		{
			name: "thresholds met exactly",
			metrics: models.MetricSet{
				SpotChg1h: -0.025, DvolChg1h: 0.05,
				IVP: 71, IVR: 0, HasIVStats: true,
			},
			entry: true,
		},
		{
			name: "missing iv stats suppress entry",
			metrics: models.MetricSet{
				SpotChg1h: -0.03, DvolChg1h: 0.08,
				IVP: 100, IVR: 100, HasIVStats: false,
			},
			entry: false,
		},
		{
			name: "slow bleed without entry",
			metrics: models.MetricSet{
				SpotChg1h: -0.025, DvolChg1h: -0.01,
				IVP: 85, IVR: 60, HasIVStats: true,
			},
			entry:     false,
			slowBleed: true,
		},
		{
			name: "slow bleed evaluated without iv stats",
			metrics: models.MetricSet{
				SpotChg1h: -0.03, DvolChg1h: -0.02,
				HasIVStats: false,
			},
			entry:     false,
			slowBleed: true,
		},
		{
			name: "drop with rising dvol is not a bleed",
			metrics: models.MetricSet{
				SpotChg1h: -0.03, DvolChg1h: 0.08,
				IVP: 85, IVR: 60, HasIVStats: true,
			},
			entry:     true,
			slowBleed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := detector.Evaluate(tt.metrics)
			assert.Equal(t, tt.entry, signal.EntryTriggered, "entry")
			assert.Equal(t, tt.slowBleed, signal.SlowBleed, "slow bleed")
		})
	}
}
