package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/market"
	"github.com/volpulse/volpulse/internal/models"
)

// skewHistoryWindow bounds the rolling skew sample used for the skew
// z-score.
const skewHistoryWindow = 120

// spotHourlyWindow bounds the hourly spot closes kept for the realized vol
// estimate.
const spotHourlyWindow = 72

// MonitorStatus is a read-only view of the last evaluation, served by the
// status API.
type MonitorStatus struct {
	LastTickAt time.Time           `json:"last_tick_at"`
	Metrics    models.MetricSet    `json:"metrics"`
	Regime     models.RegimeSignal `json:"regime"`
	KillSwitch bool                `json:"kill_switch"`
	KillReason string              `json:"kill_reason,omitempty"`
	AlertsSent int                 `json:"alerts_sent"`
	Ticks      int                 `json:"ticks"`
	Skipped    int                 `json:"skipped"`
}

// Monitor drives the per-tick evaluation: snapshot, metrics, regime,
// mispricing, risk, scan, alert. Each snapshot is processed to completion
// before the next is accepted; a bad tick is skipped and logged, never
// fatal.
type Monitor struct {
	config    *config.Config
	logger    *logrus.Logger
	feed      market.Feed
	metrics   *MetricsCalculator
	regime    *RegimeDetector
	estimator *MispricingEstimator
	risk      *RiskGuard
	scanner   *OpportunityScanner
	emitter   *AlertEmitter

	spotTicks   *market.TickSeries
	dvolTicks   *market.TickSeries
	dvolHistory *market.RollingWindow
	spotHourly  *market.RollingWindow
	skewHistory *market.RollingWindow
	features    []FeatureRow

	lastDailyAppend  time.Time
	lastHourlyAppend time.Time

	mu     sync.RWMutex
	status MonitorStatus
}

// NewMonitor wires the evaluation pipeline around a market feed.
func NewMonitor(cfg *config.Config, feed market.Feed, emitter *AlertEmitter, logger *logrus.Logger) *Monitor {
	retention := cfg.Market.TickRetentionDuration()

	return &Monitor{
		config:      cfg,
		logger:      logger,
		feed:        feed,
		metrics:     NewMetricsCalculator(cfg, logger),
		regime:      NewRegimeDetector(cfg, logger),
		estimator:   NewMispricingEstimator(cfg, logger),
		risk:        NewRiskGuard(cfg, logger),
		scanner:     NewOpportunityScanner(cfg, logger),
		emitter:     emitter,
		spotTicks:   market.NewTickSeries(retention),
		dvolTicks:   market.NewTickSeries(retention),
		dvolHistory: market.NewRollingWindow(cfg.Market.HistoryDays),
		spotHourly:  market.NewRollingWindow(spotHourlyWindow),
		skewHistory: market.NewRollingWindow(skewHistoryWindow),
	}
}

// Seed loads the trailing DVOL history and, for the mock feed, a baseline
// tick one hour back so the first evaluation has a 1h base.
func (m *Monitor) Seed(ctx context.Context) error {
	history, err := m.feed.DvolHistory(ctx, m.config.Market.HistoryDays)
	if err != nil {
		return fmt.Errorf("failed to seed DVOL history: %w", err)
	}
	m.dvolHistory.Seed(history)
	m.logger.Infof("Seeded DVOL history with %d observations", m.dvolHistory.Len())
	return nil
}

// SeedBaseline records a pre-panic tick one hour before now. Used by mock
// mode so the very first cycle has a 1h change base.
func (m *Monitor) SeedBaseline(snapshot models.MarketSnapshot) {
	m.spotTicks.Append(snapshot.Timestamp, snapshot.SpotPrice)
	m.dvolTicks.Append(snapshot.Timestamp, snapshot.Dvol)
	m.spotHourly.Append(snapshot.SpotPrice)
	m.lastHourlyAppend = snapshot.Timestamp
}

// Run polls the feed until the context is cancelled. When once is true a
// single tick is processed.
func (m *Monitor) Run(ctx context.Context, once bool) error {
	if err := m.Seed(ctx); err != nil {
		return err
	}

	interval := m.config.Market.PollIntervalDuration()
	for {
		if err := m.Tick(ctx); err != nil {
			m.logger.Warnf("Tick skipped: %v", err)
		}
		if once {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Tick processes one snapshot to completion. Returns ErrData-wrapped errors
// for skippable ticks.
func (m *Monitor) Tick(ctx context.Context) error {
	snapshot, err := m.feed.Snapshot(ctx)
	if err != nil {
		m.recordSkip()
		return dataErrorf("snapshot failed: %v", err)
	}

	m.appendHistory(snapshot)

	metrics, err := m.metrics.Compute(snapshot, MetricInputs{
		SpotTicks:   m.spotTicks,
		DvolTicks:   m.dvolTicks,
		DvolHistory: m.dvolHistory,
		SpotHourly:  m.spotHourly,
	})
	if err != nil {
		m.recordSkip()
		return err
	}

	signal := m.regime.Evaluate(metrics)

	skew := m.scanner.AnalyzeSkew(snapshot.Options, m.skewHistory)
	term := m.scanner.AnalyzeTermStructure(snapshot.Options, snapshot.Timestamp)
	if skew.HasData {
		m.skewHistory.Append(skew.Skew)
	}
	if skew.HasData && term.HasData {
		m.appendFeature(FeatureRow{
			VRP:        metrics.VRP,
			Skew:       skew.Skew,
			TermSpread: term.IVSpread,
			Dvol:       metrics.Dvol,
		})
	}

	var fit *models.RegressionFit
	if fitted, err := m.estimator.Fit(m.features); err != nil {
		if !errors.Is(err, ErrModel) {
			return err
		}
		m.logger.Debugf("Mispricing estimate unavailable: %v", err)
	} else {
		fit = &fitted
	}

	decision := m.risk.Decide(metrics, skew.SkewZ, skew.HasZ, 0, nil)

	m.logger.WithFields(logrus.Fields{
		"spot":        metrics.SpotPrice,
		"dvol":        metrics.Dvol,
		"ivp":         metrics.IVP,
		"ivr":         metrics.IVR,
		"spot_chg_1h": metrics.SpotChg1h,
		"dvol_chg_1h": metrics.DvolChg1h,
		"entry":       signal.EntryTriggered,
		"slow_bleed":  signal.SlowBleed,
		"kill_switch": decision.KillSwitch,
	}).Info("Cycle evaluated")

	if signal.SlowBleed {
		alert := NewAlert(
			"Slow Bleed Trap",
			fmt.Sprintf("Spot down %.2f%% with DVOL %.2f%% (flat/down). Sell-side scanning blocked for this cycle.",
				metrics.SpotChg1h*100, metrics.DvolChg1h*100),
			metrics, signal)
		alert.Risk = &decision
		m.emitter.Emit(ctx, alert)
	}

	if signal.EntryTriggered && !signal.SlowBleed {
		m.handleEntry(ctx, snapshot, metrics, signal, skew, fit, decision)
	}

	m.recordStatus(metrics, signal, decision)
	return nil
}

// handleEntry runs the candidate scan and emits the entry alert, honoring
// the kill switch.
func (m *Monitor) handleEntry(ctx context.Context, snapshot models.MarketSnapshot, metrics models.MetricSet,
	signal models.RegimeSignal, skew models.SkewReport, fit *models.RegressionFit, decision models.RiskDecision) {

	if decision.KillSwitch {
		alert := NewAlert(
			"IV Pulse Entry (suppressed)",
			"Entry conditions met but the kill switch is active; no candidates scanned.",
			metrics, signal)
		alert.Risk = &decision
		alert.Fit = fit
		alert.Invalidation = decision.KillReason
		m.emitter.Emit(ctx, alert)
		return
	}

	candidates := m.scanner.Scan(snapshot.Options, snapshot.SpotPrice, metrics.RealizedVol, snapshot.Timestamp)
	if len(candidates) == 0 {
		m.logger.Info("Entry triggered but no candidates inside the DTE/delta universe")
		return
	}

	top := candidates[0]
	decision = m.risk.Decide(metrics, skew.SkewZ, skew.HasZ, 0, &top)

	alert := NewAlert(
		"IV Pulse Entry",
		fmt.Sprintf("Suggested: sell %s (delta %.2f, DTE %.1f)", top.InstrumentName, top.Delta, top.DTEDays),
		metrics, signal)
	alert.Candidates = candidates
	alert.Risk = &decision
	alert.Fit = fit
	m.emitter.Emit(ctx, alert)
}

// appendHistory records the snapshot into the intraday tick series and, on
// day/hour boundaries, the daily DVOL window and hourly spot closes.
func (m *Monitor) appendHistory(snapshot models.MarketSnapshot) {
	m.spotTicks.Append(snapshot.Timestamp, snapshot.SpotPrice)
	m.dvolTicks.Append(snapshot.Timestamp, snapshot.Dvol)

	if snapshot.Timestamp.Sub(m.lastDailyAppend) >= 24*time.Hour {
		m.dvolHistory.Append(snapshot.Dvol)
		m.lastDailyAppend = snapshot.Timestamp
	}
	if snapshot.Timestamp.Sub(m.lastHourlyAppend) >= time.Hour {
		m.spotHourly.Append(snapshot.SpotPrice)
		m.lastHourlyAppend = snapshot.Timestamp
	}
}

// appendFeature keeps the regression sample bounded to lookback+1 rows.
func (m *Monitor) appendFeature(row FeatureRow) {
	m.features = append(m.features, row)
	if limit := m.config.Regression.Lookback + 1; len(m.features) > limit {
		m.features = m.features[len(m.features)-limit:]
	}
}

func (m *Monitor) recordStatus(metrics models.MetricSet, signal models.RegimeSignal, decision models.RiskDecision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.LastTickAt = metrics.Timestamp
	m.status.Metrics = metrics
	m.status.Regime = signal
	m.status.KillSwitch = decision.KillSwitch
	m.status.KillReason = decision.KillReason
	m.status.AlertsSent = m.emitter.Sent()
	m.status.Ticks++
}

func (m *Monitor) recordSkip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Skipped++
	m.status.Ticks++
}

// Status returns a copy of the last evaluation state.
func (m *Monitor) Status() MonitorStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
