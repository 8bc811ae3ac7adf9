package services

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/market"
	"github.com/volpulse/volpulse/internal/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		LogLevel:    "info",
		Market: config.MarketConfig{
			PollInterval:   "30s",
			DeribitBaseURL: "https://www.deribit.com/api/v2",
			Currency:       "BTC",
			HistoryDays:    365,
			TickRetention:  "2h",
			RequestTimeout: "10s",
		},
		Entry: config.EntryConfig{
			SpotDrop1h:   -0.025,
			DvolPulse1h:  0.05,
			IVPThreshold: 70.0,
			IVRThreshold: 50.0,
			MinHistory:   30,
		},
		SlowBleed: config.SlowBleedConfig{
			SpotDrop1h: -0.02,
			DvolMax1h:  0.0,
		},
		Scanner: config.ScannerConfig{
			DTEMinDays:      14.0,
			DTEMaxDays:      30.0,
			DeltaMin:        0.15,
			DeltaMax:        0.20,
			SkewTargetDelta: 0.20,
			TermNearDays:    7,
			TermFarDays:     30,
		},
		Regression: config.RegressionConfig{
			Lookback:       120,
			MinSamples:     5,
			SigmaThreshold: 2.0,
		},
		Risk: config.RiskConfig{
			AccountBalance:        22000.0,
			MaxSingleBTC:          0.10,
			MaxTotalBTC:           0.20,
			DvolElevated:          55.0,
			DvolExtreme:           65.0,
			KillDrawdown:          -0.10,
			KillDvol:              75.0,
			KillMarginUtilization: 0.85,
			HedgeFloor:            0.2,
		},
		Backtest: config.BacktestConfig{
			SpotDrop1h:  -0.03,
			DvolPulse1h: 0.10,
			HoldHours:   24,
			FeeBps:      10.0,
		},
	}
}

func newMetricInputs() MetricInputs {
	return MetricInputs{
		SpotTicks:   market.NewTickSeries(2 * time.Hour),
		DvolTicks:   market.NewTickSeries(2 * time.Hour),
		DvolHistory: market.NewRollingWindow(365),
		SpotHourly:  market.NewRollingWindow(72),
	}
}

func seedHistory(w *market.RollingWindow, n int, around float64) {
	values := make([]float64, n)
	for i := range values {
		values[i] = around * (0.9 + 0.2*float64(i)/float64(n))
	}
	w.Seed(values)
}

func TestComputeHourlyChanges(t *testing.T) {
	calc := NewMetricsCalculator(newTestConfig(), newTestLogger())
	in := newMetricInputs()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in.SpotTicks.Append(now.Add(-time.Hour), 100000)
	in.SpotTicks.Append(now, 97000)
	in.DvolTicks.Append(now.Add(-time.Hour), 50)
	in.DvolTicks.Append(now, 55)
	seedHistory(in.DvolHistory, 60, 50)

	set, err := calc.Compute(models.MarketSnapshot{
		Timestamp:   now,
		SpotPrice:   97000,
		Dvol:        55,
		RealizedVol: 0.45,
	}, in)
	require.NoError(t, err)

	assert.InDelta(t, -0.03, set.SpotChg1h, 1e-9)
	assert.InDelta(t, 0.10, set.DvolChg1h, 1e-9)
	assert.True(t, set.HasIVStats)
	assert.Equal(t, 0.45, set.RealizedVol)
	assert.InDelta(t, 0.55-0.45, set.VRP, 1e-9)
	assert.True(t, set.HasSlope)
	assert.InDelta(t, 5.0/3600.0, set.DvolSlope, 1e-9)
}

func TestComputeRejectsBadSnapshots(t *testing.T) {
	calc := NewMetricsCalculator(newTestConfig(), newTestLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		snapshot models.MarketSnapshot
	}{
		{
			name:     "non-positive spot",
			snapshot: models.MarketSnapshot{Timestamp: now, SpotPrice: 0, Dvol: 55},
		},
		{
			name:     "non-positive dvol",
			snapshot: models.MarketSnapshot{Timestamp: now, SpotPrice: 97000, Dvol: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Compute(tt.snapshot, newMetricInputs())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrData))
		})
	}
}

func TestComputeFailsWithoutHourBase(t *testing.T) {
	calc := NewMetricsCalculator(newTestConfig(), newTestLogger())
	in := newMetricInputs()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// No tick inside the trailing hour at all.
	_, err := calc.Compute(models.MarketSnapshot{Timestamp: now, SpotPrice: 97000, Dvol: 55}, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrData))

	// A zero base value is equally unusable.
	in.SpotTicks.Append(now.Add(-time.Hour), 0)
	in.SpotTicks.Append(now, 97000)
	_, err = calc.Compute(models.MarketSnapshot{Timestamp: now, SpotPrice: 97000, Dvol: 55}, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrData))
}

func TestComputeShortHistoryKeepsPartialMetrics(t *testing.T) {
	calc := NewMetricsCalculator(newTestConfig(), newTestLogger())
	in := newMetricInputs()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in.SpotTicks.Append(now.Add(-time.Hour), 100000)
	in.SpotTicks.Append(now, 97000)
	in.DvolTicks.Append(now.Add(-time.Hour), 50)
	in.DvolTicks.Append(now, 55)
	seedHistory(in.DvolHistory, 5, 50)

	set, err := calc.Compute(models.MarketSnapshot{Timestamp: now, SpotPrice: 97000, Dvol: 55}, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrData))

	// The 1h changes are still usable; only the percentile stats are missing.
	assert.False(t, set.HasIVStats)
	assert.InDelta(t, -0.03, set.SpotChg1h, 1e-9)
	assert.InDelta(t, 0.10, set.DvolChg1h, 1e-9)
}

func TestIVPercentile(t *testing.T) {
	history := make([]float64, 100)
	for i := range history {
		history[i] = float64(i + 1)
	}

	assert.InDelta(t, 70.0, ivPercentile(history, 70.5), 1e-9)
	assert.InDelta(t, 100.0, ivPercentile(history, 200), 1e-9)
	assert.InDelta(t, 0.0, ivPercentile(history, 0.5), 1e-9)

	// Ties take the middle of their run.
	assert.InDelta(t, 60.0, ivPercentile([]float64{1, 2, 2, 2, 3}, 2), 1e-9)
}

func TestIVRank(t *testing.T) {
	history := make([]float64, 100)
	for i := range history {
		history[i] = float64(i + 1)
	}

	assert.InDelta(t, (70.5-1)/99*100, ivRank(history, 70.5), 1e-9)
	assert.InDelta(t, 100.0, ivRank(history, 200), 1e-9)
	assert.InDelta(t, 0.0, ivRank(history, -10), 1e-9)

	// A flat window carries no rank information.
	assert.Equal(t, 0.0, ivRank([]float64{50, 50, 50}, 55))
}

func TestRealizedVolFromHourlyCloses(t *testing.T) {
	calc := NewMetricsCalculator(newTestConfig(), newTestLogger())
	hourly := market.NewRollingWindow(72)

	// Too few closes: fall back to the snapshot estimate.
	snapshot := models.MarketSnapshot{RealizedVol: 0.42}
	assert.Equal(t, 0.42, calc.realizedVol(snapshot, hourly))

	// Constant log returns have zero standard deviation.
	for i := 0; i < 30; i++ {
		hourly.Append(100 * math.Exp(0.001*float64(i)))
	}
	assert.InDelta(t, 0.0, calc.realizedVol(snapshot, hourly), 1e-9)
}
