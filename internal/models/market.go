package models

import (
	"time"
)

// OptionType identifies the side of an option contract.
type OptionType string

const (
	OptionTypePut  OptionType = "put"
	OptionTypeCall OptionType = "call"
)

// OptionQuote represents a single option contract quote from the chain.
// Premiums are quoted in BTC, per Deribit convention.
type OptionQuote struct {
	InstrumentName string     `json:"instrument_name"`
	Strike         float64    `json:"strike"`
	OptionType     OptionType `json:"option_type"`
	Expiry         time.Time  `json:"expiry"`
	Delta          float64    `json:"delta"`
	MarkIV         float64    `json:"mark_iv"`
	Bid            float64    `json:"bid"`
	Ask            float64    `json:"ask"`
}

// DTE returns days to expiry as of now.
func (q OptionQuote) DTE(now time.Time) float64 {
	return q.Expiry.Sub(now).Hours() / 24.0
}

// MidPremium returns the mid of bid/ask, falling back to the better side when
// one is missing.
func (q OptionQuote) MidPremium() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2.0
	}
	if q.Bid > q.Ask {
		return q.Bid
	}
	return q.Ask
}

// MarketSnapshot represents one polling tick of market state. Immutable once
// captured.
type MarketSnapshot struct {
	Timestamp   time.Time     `json:"timestamp"`
	SpotPrice   float64       `json:"spot_price"`
	Dvol        float64       `json:"dvol"`
	RealizedVol float64       `json:"realized_vol"`
	Options     []OptionQuote `json:"options,omitempty"`
}

// MetricSet represents the derived metrics for one evaluation cycle. Every
// field is a pure function of the snapshot and the rolling history window.
type MetricSet struct {
	Timestamp   time.Time `json:"timestamp"`
	SpotPrice   float64   `json:"spot_price"`
	Dvol        float64   `json:"dvol"`
	SpotChg1h   float64   `json:"spot_chg_1h"`
	DvolChg1h   float64   `json:"dvol_chg_1h"`
	IVP         float64   `json:"ivp"`
	IVR         float64   `json:"ivr"`
	RealizedVol float64   `json:"realized_vol"`
	VRP         float64   `json:"vrp"`
	DvolSlope   float64   `json:"dvol_slope"`
	// HasIVStats is false when the trailing DVOL window is too short for
	// IVP/IVR; the entry signal is suppressed in that case.
	HasIVStats bool `json:"has_iv_stats"`
	// HasSlope is false until the 24h tick window holds at least two points.
	HasSlope bool `json:"has_slope"`
}

// RegimeSignal represents the outcome of the threshold rules for one cycle.
type RegimeSignal struct {
	EntryTriggered bool `json:"entry_triggered"`
	SlowBleed      bool `json:"slow_bleed"`
}

// Candidate represents one scored option contract from a chain scan.
type Candidate struct {
	InstrumentName  string     `json:"instrument_name"`
	Strike          float64    `json:"strike"`
	OptionType      OptionType `json:"option_type"`
	Expiry          time.Time  `json:"expiry"`
	Delta           float64    `json:"delta"`
	MarkIV          float64    `json:"mark_iv"`
	PremiumBTC      float64    `json:"premium_btc"`
	DTEDays         float64    `json:"dte_days"`
	AnnualizedYield float64    `json:"annualized_yield"`
	SafetyMargin    float64    `json:"safety_margin"`
	VRP             float64    `json:"vrp"`
}
