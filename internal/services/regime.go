package services

import (
	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/models"
)

// RegimeDetector is a stateless threshold evaluator over a MetricSet. All
// thresholds come from configuration; it holds no state across evaluations.
type RegimeDetector struct {
	entry     config.EntryConfig
	slowBleed config.SlowBleedConfig
	logger    *logrus.Logger
}

// NewRegimeDetector creates a detector bound to the configured thresholds.
func NewRegimeDetector(cfg *config.Config, logger *logrus.Logger) *RegimeDetector {
	return &RegimeDetector{
		entry:     cfg.Entry,
		slowBleed: cfg.SlowBleed,
		logger:    logger,
	}
}

// Evaluate applies the entry trigger and the slow-bleed suppressor to the
// current metrics.
//
// Entry fires only when all three conditions hold: spot 1h change at or
// below the drawdown threshold, DVOL 1h change at or above the pulse
// threshold, and IVP or IVR above its cutoff. Missing IV stats suppress the
// entry outright.
//
// Slow bleed fires when spot grinds down while DVOL stays flat or falls; it
// is evaluated independently of the entry trigger and blocks sell-side
// scanning for the cycle.
func (d *RegimeDetector) Evaluate(metrics models.MetricSet) models.RegimeSignal {
	signal := models.RegimeSignal{
		SlowBleed: metrics.SpotChg1h <= d.slowBleed.SpotDrop1h &&
			metrics.DvolChg1h <= d.slowBleed.DvolMax1h,
	}

	if !metrics.HasIVStats {
		return signal
	}

	ivGate := metrics.IVP > d.entry.IVPThreshold || metrics.IVR > d.entry.IVRThreshold
	signal.EntryTriggered = metrics.SpotChg1h <= d.entry.SpotDrop1h &&
		metrics.DvolChg1h >= d.entry.DvolPulse1h &&
		ivGate

	d.logger.WithFields(logrus.Fields{
		"entry":      signal.EntryTriggered,
		"slow_bleed": signal.SlowBleed,
		"spot_chg":   metrics.SpotChg1h,
		"dvol_chg":   metrics.DvolChg1h,
		"ivp":        metrics.IVP,
		"ivr":        metrics.IVR,
	}).Debug("Regime evaluated")

	return signal
}
