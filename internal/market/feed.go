package market

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/models"
)

// Feed supplies market snapshots to the monitor loop. Implementations are
// the live Deribit-backed feed and the deterministic mock feed.
type Feed interface {
	// Snapshot captures the current market state: spot, DVOL, realized vol
	// estimate and the filtered put chain.
	Snapshot(ctx context.Context) (models.MarketSnapshot, error)
	// DvolHistory returns trailing daily DVOL closes, oldest first.
	DvolHistory(ctx context.Context, days int) ([]float64, error)
}

// LiveFeed captures snapshots from Deribit's public API.
type LiveFeed struct {
	client  *DeribitClient
	scanner config.ScannerConfig
	logger  *logrus.Logger
}

// NewLiveFeed creates a feed around a Deribit client, fetching puts inside
// the scanner's DTE range.
func NewLiveFeed(client *DeribitClient, scanner config.ScannerConfig, logger *logrus.Logger) *LiveFeed {
	return &LiveFeed{
		client:  client,
		scanner: scanner,
		logger:  logger,
	}
}

func (f *LiveFeed) Snapshot(ctx context.Context) (models.MarketSnapshot, error) {
	spot, err := f.client.GetIndexPrice(ctx)
	if err != nil {
		return models.MarketSnapshot{}, err
	}

	dvol, err := f.client.GetDvol(ctx)
	if err != nil {
		return models.MarketSnapshot{}, err
	}

	// Chain failures degrade the snapshot rather than failing the tick:
	// regime detection works without options, only scanning is skipped.
	chain, err := f.client.GetOptionChain(ctx, models.OptionTypePut, f.scanner.DTEMinDays, f.scanner.DTEMaxDays)
	if err != nil {
		f.logger.Warnf("Failed to fetch option chain, proceeding without it: %v", err)
		chain = nil
	}

	return models.MarketSnapshot{
		Timestamp: time.Now().UTC(),
		SpotPrice: spot,
		Dvol:      dvol,
		// Crude fallback estimate, replaced by the hourly-close based
		// calculation once enough spot history accumulates.
		RealizedVol: math.Max(dvol/100.0-0.1, 0),
		Options:     chain,
	}, nil
}

func (f *LiveFeed) DvolHistory(ctx context.Context, days int) ([]float64, error) {
	return f.client.GetDvolHistory(ctx, days)
}

// MockFeed replays the deterministic panic scenario.
type MockFeed struct {
	generator *MockGenerator
}

// NewMockFeed creates a feed around the mock generator.
func NewMockFeed(generator *MockGenerator) *MockFeed {
	return &MockFeed{generator: generator}
}

func (f *MockFeed) Snapshot(ctx context.Context) (models.MarketSnapshot, error) {
	return f.generator.PanicSnapshot(time.Now().UTC()), nil
}

func (f *MockFeed) DvolHistory(ctx context.Context, days int) ([]float64, error) {
	return f.generator.DvolHistory(days), nil
}
