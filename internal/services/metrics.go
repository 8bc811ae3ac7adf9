package services

import (
	"math"
	"sort"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/market"
	"github.com/volpulse/volpulse/internal/models"
)

// hoursPerYear annualizes hourly return volatility.
const hoursPerYear = 24 * 365

// realizedVolPeriod is the lookback, in hourly closes, for the realized vol
// estimate.
const realizedVolPeriod = 24

// MetricsCalculator turns a snapshot plus the rolling history buffers into a
// MetricSet. It holds no state of its own; every output is a pure function
// of its inputs.
type MetricsCalculator struct {
	config *config.Config
	logger *logrus.Logger
}

// NewMetricsCalculator creates a calculator bound to the loaded configuration.
func NewMetricsCalculator(cfg *config.Config, logger *logrus.Logger) *MetricsCalculator {
	return &MetricsCalculator{
		config: cfg,
		logger: logger,
	}
}

// MetricInputs bundles the rolling buffers owned by the monitor loop.
type MetricInputs struct {
	SpotTicks   *market.TickSeries
	DvolTicks   *market.TickSeries
	DvolHistory *market.RollingWindow
	SpotHourly  *market.RollingWindow
}

// Compute derives the MetricSet for one tick. It fails with ErrData when the
// snapshot is unusable: non-positive spot or DVOL, a zero base value for a
// percent change, or a trailing DVOL window shorter than entry.min_history.
func (m *MetricsCalculator) Compute(snapshot models.MarketSnapshot, in MetricInputs) (models.MetricSet, error) {
	if snapshot.SpotPrice <= 0 {
		return models.MetricSet{}, dataErrorf("non-positive spot price %v", snapshot.SpotPrice)
	}
	if snapshot.Dvol <= 0 {
		return models.MetricSet{}, dataErrorf("non-positive DVOL %v", snapshot.Dvol)
	}

	spotChg, err := m.changeOver(in.SpotTicks, snapshot, "spot")
	if err != nil {
		return models.MetricSet{}, err
	}
	dvolChg, err := m.changeOver(in.DvolTicks, snapshot, "dvol")
	if err != nil {
		return models.MetricSet{}, err
	}

	set := models.MetricSet{
		Timestamp:   snapshot.Timestamp,
		SpotPrice:   snapshot.SpotPrice,
		Dvol:        snapshot.Dvol,
		SpotChg1h:   spotChg,
		DvolChg1h:   dvolChg,
		RealizedVol: m.realizedVol(snapshot, in.SpotHourly),
	}
	set.VRP = snapshot.Dvol/100.0 - set.RealizedVol

	if in.DvolHistory.Len() >= m.config.Entry.MinHistory {
		set.IVP = ivPercentile(in.DvolHistory.Values(), snapshot.Dvol)
		set.IVR = ivRank(in.DvolHistory.Values(), snapshot.Dvol)
		set.HasIVStats = true
	} else {
		return set, dataErrorf("DVOL history has %d of %d required observations",
			in.DvolHistory.Len(), m.config.Entry.MinHistory)
	}

	if slope, ok := dvolSlope(in.DvolTicks.Points()); ok {
		set.DvolSlope = slope
		set.HasSlope = true
	}

	return set, nil
}

// changeOver computes cur/base - 1 over the trailing hour of the series.
func (m *MetricsCalculator) changeOver(ticks *market.TickSeries, snapshot models.MarketSnapshot, name string) (float64, error) {
	base, ok := ticks.BaseOver(snapshot.Timestamp, time.Hour)
	if !ok {
		return 0, dataErrorf("no %s observation inside the trailing hour", name)
	}
	if base.Value == 0 {
		return 0, dataErrorf("zero base %s value for 1h change", name)
	}
	latest, _ := ticks.Latest()
	return latest.Value/base.Value - 1.0, nil
}

// realizedVol estimates annualized realized volatility from the moving
// standard deviation of hourly log returns. When fewer than
// realizedVolPeriod+1 hourly closes are available it falls back to the
// feed-provided estimate on the snapshot.
func (m *MetricsCalculator) realizedVol(snapshot models.MarketSnapshot, hourly *market.RollingWindow) float64 {
	closes := hourly.Values()
	if len(closes) < realizedVolPeriod+1 {
		return snapshot.RealizedVol
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return snapshot.RealizedVol
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	std := volatility.NewMovingStdWithPeriod[float64](realizedVolPeriod)
	stds := helper.ChanToSlice(std.Compute(helper.SliceToChan(returns)))
	if len(stds) == 0 {
		return snapshot.RealizedVol
	}
	return stds[len(stds)-1] * math.Sqrt(hoursPerYear)
}

// ivPercentile returns the mid-rank percentile of cur within history, in
// [0, 100]. Ties are ranked at the middle of their run.
func ivPercentile(history []float64, cur float64) float64 {
	sorted := make([]float64, len(history))
	copy(sorted, history)
	sort.Float64s(sorted)

	n := len(sorted)
	left := sort.SearchFloat64s(sorted, cur)
	right := sort.Search(n, func(i int) bool { return sorted[i] > cur })

	rank := float64(right)
	if right != left {
		rank = (float64(left+1) + float64(right)) / 2.0
	}
	return rank / float64(n) * 100.0
}

// ivRank returns (cur - min) / (max - min) over the window, clamped to
// [0, 100]. A flat window yields 0.
func ivRank(history []float64, cur float64) float64 {
	min, err := stats.Min(history)
	if err != nil {
		return 0
	}
	max, err := stats.Max(history)
	if err != nil {
		return 0
	}
	if max == min {
		return 0
	}
	rank := (cur - min) / (max - min) * 100.0
	return math.Min(math.Max(rank, 0), 100)
}

// dvolSlope fits a line through the intraday DVOL points and returns its
// slope in index points per second. Needs at least two points.
func dvolSlope(points []market.TickPoint) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}

	first := points[0].Timestamp
	coords := make([]stats.Coordinate, 0, len(points))
	for _, p := range points {
		coords = append(coords, stats.Coordinate{
			X: p.Timestamp.Sub(first).Seconds(),
			Y: p.Value,
		})
	}
	if coords[len(coords)-1].X == 0 {
		return 0, true
	}

	fitted, err := stats.LinearRegression(coords)
	if err != nil || len(fitted) < 2 {
		return 0, false
	}
	last := fitted[len(fitted)-1]
	return (last.Y - fitted[0].Y) / (last.X - fitted[0].X), true
}
