package services

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/models"
)

// RiskGuard computes the dynamic hedge ratio, evaluates the kill switch and
// enforces the static notional caps. It is stateless; every decision derives
// from the current metrics and configuration.
type RiskGuard struct {
	config config.RiskConfig
	logger *logrus.Logger
}

// NewRiskGuard creates a guard bound to the configured limits.
func NewRiskGuard(cfg *config.Config, logger *logrus.Logger) *RiskGuard {
	return &RiskGuard{
		config: cfg.Risk,
		logger: logger,
	}
}

// HedgeRatio computes the hedge sizing for the cycle as a monotonic stepped
// combination of DVOL level, skew deviation and drawdown magnitude, clamped
// to [0, 1]. skewZ is ignored when hasSkewZ is false.
func (g *RiskGuard) HedgeRatio(dvol, skewZ float64, hasSkewZ bool, drawdown float64) models.HedgePlan {
	ratio := g.config.HedgeFloor
	var reasons []string

	switch {
	case dvol >= g.config.DvolExtreme:
		ratio = math.Max(ratio, 0.8)
		reasons = append(reasons, fmt.Sprintf("DVOL extreme >= %.0f", g.config.DvolExtreme))
	case dvol >= g.config.DvolElevated:
		ratio = math.Max(ratio, 0.5)
		reasons = append(reasons, fmt.Sprintf("DVOL elevated >= %.0f", g.config.DvolElevated))
	}

	if hasSkewZ && math.Abs(skewZ) >= 2.0 {
		ratio = math.Max(ratio, 0.7)
		reasons = append(reasons, "skew 2-sigma deviation")
	}

	if drawdown <= -0.06 {
		ratio = 1.0
		reasons = append(reasons, "drawdown breach <= -6%")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "baseline")
	}

	return models.HedgePlan{
		Ratio:   math.Min(math.Max(ratio, 0), 1),
		Reasons: reasons,
	}
}

// KillSwitch evaluates the extreme-stress interrupt. When tripped, all
// candidate scans for the cycle are suppressed and the hedge ratio is
// ignored; the reason is attached to any emitted alert.
func (g *RiskGuard) KillSwitch(drawdown, dvol, marginUtilization float64) (bool, string) {
	if drawdown <= g.config.KillDrawdown {
		return true, fmt.Sprintf("kill-switch: drawdown %.2f%% <= %.2f%%", drawdown*100, g.config.KillDrawdown*100)
	}
	if dvol >= g.config.KillDvol {
		return true, fmt.Sprintf("kill-switch: DVOL panic %.1f >= %.1f", dvol, g.config.KillDvol)
	}
	if marginUtilization >= g.config.KillMarginUtilization {
		return true, fmt.Sprintf("kill-switch: margin utilization %.0f%% >= %.0f%%",
			marginUtilization*100, g.config.KillMarginUtilization*100)
	}
	return false, ""
}

// MaxContracts returns the BTC notional allowance for a new position given
// the open exposure: the smaller of the single-position cap and the
// remaining aggregate headroom, never negative.
func (g *RiskGuard) MaxContracts(openContractsBTC float64) float64 {
	remaining := math.Max(g.config.MaxTotalBTC-openContractsBTC, 0)
	return math.Max(math.Min(g.config.MaxSingleBTC, remaining), 0)
}

// EstimateMargin approximates the maintenance margin for selling contracts
// BTC of a put at the given strike and premium, plus a +20% IV shock
// variant. The estimated drawdown is bounded by the account balance.
// Money quantities are carried as decimals to keep the alert accounting
// exact.
func (g *RiskGuard) EstimateMargin(spot, strike, premiumBTC, iv, contractsBTC float64) models.MarginEstimate {
	premiumUSD := decimal.NewFromFloat(premiumBTC * spot * contractsBTC)
	base := maintenanceMargin(spot, strike, premiumBTC, iv, contractsBTC)
	shock := maintenanceMargin(spot, strike, premiumBTC, iv*1.2, contractsBTC)

	balance := decimal.NewFromFloat(g.config.AccountBalance)
	drawdown := base.Sub(premiumUSD)
	if drawdown.GreaterThan(balance) {
		drawdown = balance
	}

	return models.MarginEstimate{
		PremiumUSD:     premiumUSD,
		BaseMarginUSD:  base,
		ShockMarginUSD: shock,
		EstDrawdownUSD: drawdown,
	}
}

// Decide assembles the full risk verdict for a cycle. marginUtilization is
// the account's current margin usage fraction; topCandidate may be nil when
// no scan ran.
func (g *RiskGuard) Decide(metrics models.MetricSet, skewZ float64, hasSkewZ bool, marginUtilization float64, topCandidate *models.Candidate) models.RiskDecision {
	tripped, reason := g.KillSwitch(metrics.SpotChg1h, metrics.Dvol, marginUtilization)

	decision := models.RiskDecision{
		Hedge:           g.HedgeRatio(metrics.Dvol, skewZ, hasSkewZ, metrics.SpotChg1h),
		KillSwitch:      tripped,
		KillReason:      reason,
		MaxContractsBTC: g.MaxContracts(0),
	}

	if tripped {
		g.logger.WithFields(logrus.Fields{
			"reason": reason,
		}).Warn("Kill switch tripped, suppressing scans for this cycle")
		return decision
	}

	if topCandidate != nil {
		margin := g.EstimateMargin(
			metrics.SpotPrice,
			topCandidate.Strike,
			topCandidate.PremiumBTC,
			topCandidate.MarkIV,
			decision.MaxContractsBTC,
		)
		decision.Margin = &margin
	}

	return decision
}

// maintenanceMargin is a simple approximation: a risk component scaled by IV
// plus the premium, per BTC of notional.
func maintenanceMargin(spot, strike, premiumBTC, iv, contractsBTC float64) decimal.Decimal {
	intrinsicBuffer := math.Max(strike-spot, 0) / spot
	riskFactor := 0.12 + 0.4*iv + intrinsicBuffer
	marginPerBTC := spot*riskFactor + premiumBTC*spot
	return decimal.NewFromFloat(marginPerBTC * contractsBTC)
}
