package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volpulse/volpulse/internal/market"
	"github.com/volpulse/volpulse/internal/models"
)

func putQuote(name string, strike, delta, markIV, bid, ask float64, expiry time.Time) models.OptionQuote {
	return models.OptionQuote{
		InstrumentName: name,
		Strike:         strike,
		OptionType:     models.OptionTypePut,
		Expiry:         expiry,
		Delta:          delta,
		MarkIV:         markIV,
		Bid:            bid,
		Ask:            ask,
	}
}

func callQuote(name string, strike, delta, markIV float64, expiry time.Time) models.OptionQuote {
	return models.OptionQuote{
		InstrumentName: name,
		Strike:         strike,
		OptionType:     models.OptionTypeCall,
		Expiry:         expiry,
		Delta:          delta,
		MarkIV:         markIV,
		Bid:            0.01,
		Ask:            0.012,
	}
}

func TestScanFiltersAndRanks(t *testing.T) {
	scanner := NewOpportunityScanner(newTestConfig(), newTestLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	spot := 66500.0

	chain := []models.OptionQuote{
		// Valid, highest annualized yield.
		putQuote("BTC-A", 56000, -0.18, 0.75, 0.015, 0.017, now.Add(20*24*time.Hour)),
		// Valid, lower yield.
		putQuote("BTC-B", 58000, -0.16, 0.70, 0.011, 0.013, now.Add(28*24*time.Hour)),
		// Wrong side.
		callQuote("BTC-C", 75000, 0.18, 0.65, now.Add(20*24*time.Hour)),
		// Delta outside the band.
		putQuote("BTC-D", 60000, -0.25, 0.72, 0.02, 0.022, now.Add(20*24*time.Hour)),
		// Too close to expiry.
		putQuote("BTC-E", 56000, -0.18, 0.80, 0.01, 0.012, now.Add(10*24*time.Hour)),
		// Too far out.
		putQuote("BTC-F", 56000, -0.18, 0.70, 0.02, 0.022, now.Add(45*24*time.Hour)),
		// No market.
		putQuote("BTC-G", 56000, -0.18, 0.70, 0, 0, now.Add(20*24*time.Hour)),
	}

	candidates := scanner.Scan(chain, spot, 0.55, now)
	require.Len(t, candidates, 2)

	assert.Equal(t, "BTC-A", candidates[0].InstrumentName)
	assert.Equal(t, "BTC-B", candidates[1].InstrumentName)
	assert.InDelta(t, 0.016*365/20, candidates[0].AnnualizedYield, 1e-9)
	assert.InDelta(t, (spot-56000)/spot, candidates[0].SafetyMargin, 1e-9)
	assert.InDelta(t, 0.75-0.55, candidates[0].VRP, 1e-9)
	assert.InDelta(t, 20.0, candidates[0].DTEDays, 1e-9)
}

func TestScanEmptyChain(t *testing.T) {
	scanner := NewOpportunityScanner(newTestConfig(), newTestLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Empty(t, scanner.Scan(nil, 66500, 0.55, now))
	assert.Empty(t, scanner.Scan([]models.OptionQuote{}, 66500, 0.55, now))
}

func TestAnalyzeSkew(t *testing.T) {
	scanner := NewOpportunityScanner(newTestConfig(), newTestLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(20 * 24 * time.Hour)

	t.Run("needs both sides of the chain", func(t *testing.T) {
		chain := []models.OptionQuote{
			putQuote("BTC-P", 56000, -0.19, 0.80, 0.015, 0.017, expiry),
		}
		report := scanner.AnalyzeSkew(chain, market.NewRollingWindow(120))
		assert.False(t, report.HasData)
		assert.Equal(t, "insufficient_data", report.Signal)
	})

	t.Run("wide put premium reads bearish", func(t *testing.T) {
		chain := []models.OptionQuote{
			putQuote("BTC-P", 56000, -0.19, 0.80, 0.015, 0.017, expiry),
			callQuote("BTC-C", 75000, 0.21, 0.60, expiry),
		}
		report := scanner.AnalyzeSkew(chain, market.NewRollingWindow(120))
		assert.True(t, report.HasData)
		assert.InDelta(t, 0.20, report.Skew, 1e-9)
		assert.Equal(t, SkewSignalBearishPuts, report.Signal)
		assert.False(t, report.HasZ)
	})

	t.Run("negative skew reads rich calls", func(t *testing.T) {
		chain := []models.OptionQuote{
			putQuote("BTC-P", 56000, -0.19, 0.55, 0.015, 0.017, expiry),
			callQuote("BTC-C", 75000, 0.21, 0.60, expiry),
		}
		report := scanner.AnalyzeSkew(chain, market.NewRollingWindow(120))
		assert.Equal(t, SkewSignalRichCalls, report.Signal)
	})

	t.Run("z-score against the rolling history", func(t *testing.T) {
		chain := []models.OptionQuote{
			putQuote("BTC-P", 56000, -0.19, 0.80, 0.015, 0.017, expiry),
			callQuote("BTC-C", 75000, 0.21, 0.60, expiry),
		}
		history := market.NewRollingWindow(120)
		history.Seed([]float64{0.02, 0.04, 0.05, 0.06, 0.08})

		report := scanner.AnalyzeSkew(chain, history)
		require.True(t, report.HasZ)
		assert.InDelta(t, 6.708, report.SkewZ, 0.01)
		assert.True(t, report.PricingError)
	})

	t.Run("flat history yields no z-score", func(t *testing.T) {
		chain := []models.OptionQuote{
			putQuote("BTC-P", 56000, -0.19, 0.80, 0.015, 0.017, expiry),
			callQuote("BTC-C", 75000, 0.21, 0.60, expiry),
		}
		history := market.NewRollingWindow(120)
		history.Seed([]float64{0.05, 0.05, 0.05, 0.05, 0.05})

		report := scanner.AnalyzeSkew(chain, history)
		assert.False(t, report.HasZ)
	})
}

func TestAnalyzeSkewPicksNearestDelta(t *testing.T) {
	scanner := NewOpportunityScanner(newTestConfig(), newTestLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(20 * 24 * time.Hour)

	chain := []models.OptionQuote{
		putQuote("BTC-P-FAR", 50000, -0.08, 0.95, 0.01, 0.012, expiry),
		putQuote("BTC-P-NEAR", 56000, -0.21, 0.80, 0.015, 0.017, expiry),
		callQuote("BTC-C-FAR", 90000, 0.05, 0.90, expiry),
		callQuote("BTC-C-NEAR", 75000, 0.19, 0.60, expiry),
	}

	report := scanner.AnalyzeSkew(chain, market.NewRollingWindow(120))
	require.True(t, report.HasData)
	assert.InDelta(t, 0.80-0.60, report.Skew, 1e-9)
}

func TestAnalyzeTermStructure(t *testing.T) {
	scanner := NewOpportunityScanner(newTestConfig(), newTestLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("near above far is a pulse", func(t *testing.T) {
		chain := []models.OptionQuote{
			putQuote("BTC-N1", 56000, -0.18, 0.90, 0.015, 0.017, now.Add(7*24*time.Hour)),
			putQuote("BTC-N2", 58000, -0.22, 0.80, 0.015, 0.017, now.Add(8*24*time.Hour)),
			putQuote("BTC-F1", 56000, -0.18, 0.70, 0.02, 0.022, now.Add(30*24*time.Hour)),
		}
		report := scanner.AnalyzeTermStructure(chain, now)
		require.True(t, report.HasData)
		assert.InDelta(t, 0.85, report.NearIV, 1e-9)
		assert.InDelta(t, 0.70, report.FarIV, 1e-9)
		assert.InDelta(t, 0.15, report.IVSpread, 1e-9)
		assert.Equal(t, TermSignalNearPulse, report.Signal)
	})

	t.Run("upward sloping curve is normal carry", func(t *testing.T) {
		chain := []models.OptionQuote{
			putQuote("BTC-N1", 56000, -0.18, 0.60, 0.015, 0.017, now.Add(7*24*time.Hour)),
			putQuote("BTC-F1", 56000, -0.18, 0.70, 0.02, 0.022, now.Add(30*24*time.Hour)),
		}
		report := scanner.AnalyzeTermStructure(chain, now)
		require.True(t, report.HasData)
		assert.Equal(t, TermSignalNormalCarry, report.Signal)
	})

	t.Run("missing tenor yields no report", func(t *testing.T) {
		chain := []models.OptionQuote{
			putQuote("BTC-N1", 56000, -0.18, 0.90, 0.015, 0.017, now.Add(7*24*time.Hour)),
		}
		report := scanner.AnalyzeTermStructure(chain, now)
		assert.False(t, report.HasData)
		assert.Equal(t, "insufficient_data", report.Signal)
	})
}
