package market

import (
	"math"
	"time"

	"github.com/volpulse/volpulse/internal/models"
)

// MockGenerator produces deterministic panic-regime snapshots for running the
// monitor without live market access.
type MockGenerator struct {
	BaseSpot float64
	BaseDvol float64
}

// NewMockGenerator creates a generator around typical BTC levels.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		BaseSpot: 70000.0,
		BaseDvol: 60.0,
	}
}

// DvolHistory returns a sinusoidal daily DVOL series of n points that keeps
// the current mock level near the top of its trailing window.
func (g *MockGenerator) DvolHistory(n int) []float64 {
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = g.BaseDvol * (0.85 + 0.15*(1+math.Sin(float64(i)/12.0))/2.0)
	}
	return values
}

// PanicSnapshot returns a snapshot with spot down 5%, DVOL up 10% and two
// put quotes around the target delta band.
func (g *MockGenerator) PanicSnapshot(now time.Time) models.MarketSnapshot {
	spot := g.BaseSpot * 0.95
	expiry := now.Add(21 * 24 * time.Hour)

	return models.MarketSnapshot{
		Timestamp:   now,
		SpotPrice:   spot,
		Dvol:        g.BaseDvol * 1.10,
		RealizedVol: 0.55,
		Options: []models.OptionQuote{
			{
				InstrumentName: "BTC-MOCK-85P",
				Strike:         spot * 0.85,
				OptionType:     models.OptionTypePut,
				Expiry:         expiry,
				Delta:          -0.18,
				MarkIV:         0.75,
				Bid:            0.015,
				Ask:            0.017,
			},
			{
				InstrumentName: "BTC-MOCK-90P",
				Strike:         spot * 0.90,
				OptionType:     models.OptionTypePut,
				Expiry:         expiry,
				Delta:          -0.22,
				MarkIV:         0.70,
				Bid:            0.012,
				Ask:            0.014,
			},
		},
	}
}

// BaselineSnapshot returns a calm pre-panic snapshot used to seed the tick
// series one hour before the first mock evaluation.
func (g *MockGenerator) BaselineSnapshot(now time.Time) models.MarketSnapshot {
	return models.MarketSnapshot{
		Timestamp:   now,
		SpotPrice:   g.BaseSpot,
		Dvol:        g.BaseDvol,
		RealizedVol: 0.50,
	}
}
