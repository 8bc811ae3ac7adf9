package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegressionFit represents one evaluation of the VRP mispricing model.
// Derived per cycle; not retained across ticks except for diagnostics.
type RegressionFit struct {
	Coefficients []float64 `json:"coefficients"`
	ExpectedVRP  float64   `json:"expected_vrp"`
	Residual     float64   `json:"residual"`
	ResidualZ    float64   `json:"residual_z"`
	Mispricing   bool      `json:"mispricing"`
	SampleSize   int       `json:"sample_size"`
}

// HedgePlan represents the dynamic hedge sizing for the current cycle.
// Ratio is in [0, 1], where 1 means fully hedge directional exposure.
type HedgePlan struct {
	Ratio   float64  `json:"ratio"`
	Reasons []string `json:"reasons"`
}

// MarginEstimate represents the maintenance margin approximation for a
// proposed position, with a +20% IV shock variant.
type MarginEstimate struct {
	PremiumUSD     decimal.Decimal `json:"premium_usd"`
	BaseMarginUSD  decimal.Decimal `json:"base_margin_usd"`
	ShockMarginUSD decimal.Decimal `json:"shock_margin_usd"`
	EstDrawdownUSD decimal.Decimal `json:"est_drawdown_usd"`
}

// RiskDecision represents the risk verdict for one cycle: hedge plan,
// kill-switch state and position allowance.
type RiskDecision struct {
	Hedge           HedgePlan       `json:"hedge"`
	KillSwitch      bool            `json:"kill_switch"`
	KillReason      string          `json:"kill_reason,omitempty"`
	MaxContractsBTC float64         `json:"max_contracts_btc"`
	Margin          *MarginEstimate `json:"margin,omitempty"`
}

// SkewReport represents the put/call skew diagnostic for the current chain.
type SkewReport struct {
	Skew         float64 `json:"skew"`
	Signal       string  `json:"signal"`
	SkewZ        float64 `json:"skew_z"`
	HasZ         bool    `json:"has_z"`
	PricingError bool    `json:"pricing_error"`
	HasData      bool    `json:"has_data"`
}

// TermStructureReport represents the near/far tenor IV spread diagnostic.
type TermStructureReport struct {
	IVSpread float64 `json:"iv_spread"`
	Signal   string  `json:"signal"`
	NearIV   float64 `json:"near_iv"`
	FarIV    float64 `json:"far_iv"`
	HasData  bool    `json:"has_data"`
}

// Alert represents the payload emitted when a regime or risk event fires.
type Alert struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Regime       RegimeSignal   `json:"regime"`
	Metrics      MetricSet      `json:"metrics"`
	Candidates   []Candidate    `json:"candidates,omitempty"`
	Risk         *RiskDecision  `json:"risk,omitempty"`
	Fit          *RegressionFit `json:"fit,omitempty"`
	Invalidation string         `json:"invalidation,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
