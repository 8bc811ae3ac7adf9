package services

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/market"
	"github.com/volpulse/volpulse/internal/models"
)

// Skew and term-structure signal labels attached to scanner reports.
const (
	SkewSignalNeutral     = "neutral"
	SkewSignalBearishPuts = "bearish_put_premium"
	SkewSignalRichCalls   = "fomo_calls_rich"

	TermSignalNearPulse   = "near_term_pulse"
	TermSignalNormalCarry = "normal_carry"
)

// minSkewHistory is the number of skew observations needed before a z-score
// is attempted.
const minSkewHistory = 5

// OpportunityScanner filters an option-chain snapshot to the configured
// DTE/delta universe and ranks survivors by annualized premium yield and
// safety margin. It also produces the skew and term-structure diagnostics
// used by the mispricing model.
type OpportunityScanner struct {
	config config.ScannerConfig
	logger *logrus.Logger
}

// NewOpportunityScanner creates a scanner bound to the configured universe.
func NewOpportunityScanner(cfg *config.Config, logger *logrus.Logger) *OpportunityScanner {
	return &OpportunityScanner{
		config: cfg.Scanner,
		logger: logger,
	}
}

// Scan returns put candidates inside the DTE range and delta band with a
// positive mid premium, ordered best first by annualized yield then safety
// margin. An empty chain yields an empty result.
func (s *OpportunityScanner) Scan(chain []models.OptionQuote, spot, realizedVol float64, now time.Time) []models.Candidate {
	var candidates []models.Candidate
	for _, quote := range chain {
		if quote.OptionType != models.OptionTypePut {
			continue
		}

		absDelta := math.Abs(quote.Delta)
		if absDelta < s.config.DeltaMin || absDelta > s.config.DeltaMax {
			continue
		}

		dte := quote.DTE(now)
		if dte < s.config.DTEMinDays || dte > s.config.DTEMaxDays {
			continue
		}

		premium := quote.MidPremium()
		if premium <= 0 {
			continue
		}

		candidates = append(candidates, models.Candidate{
			InstrumentName:  quote.InstrumentName,
			Strike:          quote.Strike,
			OptionType:      quote.OptionType,
			Expiry:          quote.Expiry,
			Delta:           quote.Delta,
			MarkIV:          quote.MarkIV,
			PremiumBTC:      premium,
			DTEDays:         dte,
			AnnualizedYield: premium * 365.0 / math.Max(dte, 1e-6),
			SafetyMargin:    (spot - quote.Strike) / spot,
			VRP:             quote.MarkIV - realizedVol,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].AnnualizedYield != candidates[j].AnnualizedYield {
			return candidates[i].AnnualizedYield > candidates[j].AnnualizedYield
		}
		return candidates[i].SafetyMargin > candidates[j].SafetyMargin
	})

	return candidates
}

// AnalyzeSkew picks the nearest-to-target-delta put/call pair sharing an
// expiry, computes skew as put IV minus call IV, and scores it against the
// rolling skew history once at least minSkewHistory observations exist.
func (s *OpportunityScanner) AnalyzeSkew(chain []models.OptionQuote, history *market.RollingWindow) models.SkewReport {
	putIV, callIV, ok := nearestDeltaPair(chain, s.config.SkewTargetDelta)
	if !ok {
		return models.SkewReport{Signal: "insufficient_data"}
	}

	skew := putIV - callIV
	signal := SkewSignalNeutral
	if skew > 0.15 {
		signal = SkewSignalBearishPuts
	} else if skew < 0 {
		signal = SkewSignalRichCalls
	}

	report := models.SkewReport{
		Skew:    skew,
		Signal:  signal,
		HasData: true,
	}

	if history.Len() >= minSkewHistory {
		mean, errMean := stats.Mean(history.Values())
		std, errStd := stats.StandardDeviationSample(history.Values())
		if errMean == nil && errStd == nil && std > 0 {
			report.SkewZ = (skew - mean) / std
			report.HasZ = true
			report.PricingError = report.SkewZ >= 2.0
		}
	}

	return report
}

// AnalyzeTermStructure compares median IV around the near and far tenors.
// A positive spread (near above far) labels a near-term pulse, favoring
// shorter expiries.
func (s *OpportunityScanner) AnalyzeTermStructure(chain []models.OptionQuote, now time.Time) models.TermStructureReport {
	nearIV, nearOK := medianIVAround(chain, now, float64(s.config.TermNearDays), 2)
	farIV, farOK := medianIVAround(chain, now, float64(s.config.TermFarDays), 3)
	if !nearOK || !farOK {
		return models.TermStructureReport{Signal: "insufficient_data"}
	}

	spread := nearIV - farIV
	signal := TermSignalNormalCarry
	if spread > 0 {
		signal = TermSignalNearPulse
	}

	return models.TermStructureReport{
		IVSpread: spread,
		Signal:   signal,
		NearIV:   nearIV,
		FarIV:    farIV,
		HasData:  true,
	}
}

// nearestDeltaPair finds, per expiry, the put and call closest to the target
// delta, then returns the IVs of the first expiry holding both sides.
func nearestDeltaPair(chain []models.OptionQuote, targetDelta float64) (putIV, callIV float64, ok bool) {
	type best struct {
		distance float64
		markIV   float64
		found    bool
	}
	puts := make(map[time.Time]best)
	calls := make(map[time.Time]best)

	for _, quote := range chain {
		var target float64
		var side map[time.Time]best
		switch quote.OptionType {
		case models.OptionTypePut:
			target = -math.Abs(targetDelta)
			side = puts
		case models.OptionTypeCall:
			target = math.Abs(targetDelta)
			side = calls
		default:
			continue
		}

		distance := math.Abs(quote.Delta - target)
		cur, exists := side[quote.Expiry]
		if !exists || distance < cur.distance {
			side[quote.Expiry] = best{distance: distance, markIV: quote.MarkIV, found: true}
		}
	}

	// Iterate expiries in a stable order so repeated scans pick the same pair.
	expiries := make([]time.Time, 0, len(puts))
	for expiry := range puts {
		expiries = append(expiries, expiry)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	for _, expiry := range expiries {
		if call, exists := calls[expiry]; exists && call.found {
			return puts[expiry].markIV, call.markIV, true
		}
	}
	return 0, 0, false
}

// medianIVAround returns the median mark IV of contracts whose DTE is within
// windowDays of targetDays.
func medianIVAround(chain []models.OptionQuote, now time.Time, targetDays, windowDays float64) (float64, bool) {
	var ivs []float64
	for _, quote := range chain {
		if math.Abs(quote.DTE(now)-targetDays) <= windowDays {
			ivs = append(ivs, quote.MarkIV)
		}
	}
	if len(ivs) == 0 {
		return 0, false
	}

	median, err := stats.Median(ivs)
	if err != nil {
		return 0, false
	}
	return median, true
}
