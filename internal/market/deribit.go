package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/models"
)

// DeribitClient is a thin REST client for Deribit's public market data
// endpoints. No authentication is needed; every call is a GET against
// /public/*.
type DeribitClient struct {
	HTTPClient *http.Client
	BaseURL    string
	currency   string
	logger     *logrus.Logger
}

// NewDeribitClient creates a client from market configuration.
func NewDeribitClient(cfg *config.MarketConfig, logger *logrus.Logger) *DeribitClient {
	timeout := cfg.RequestTimeoutDuration()
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &DeribitClient{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimSuffix(cfg.DeribitBaseURL, "/"),
		currency:   cfg.Currency,
		logger:     logger,
	}
}

type indexPriceResult struct {
	IndexPrice float64 `json:"index_price"`
}

type volatilityIndexResult struct {
	Data [][]float64 `json:"data"`
}

type instrumentResult struct {
	InstrumentName      string  `json:"instrument_name"`
	OptionType          string  `json:"option_type"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"`
	Strike              float64 `json:"strike"`
}

type tickerResult struct {
	InstrumentName      string  `json:"instrument_name"`
	Strike              float64 `json:"strike"`
	OptionType          string  `json:"option_type"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"`
	MarkIV              float64 `json:"mark_iv"`
	BestBidPrice        float64 `json:"best_bid_price"`
	BestAskPrice        float64 `json:"best_ask_price"`
	Greeks              struct {
		Delta float64 `json:"delta"`
	} `json:"greeks"`
}

// GetIndexPrice returns the current spot index price for the configured
// currency.
func (c *DeribitClient) GetIndexPrice(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("index_name", strings.ToLower(c.currency)+"_usd")

	var result indexPriceResult
	if err := c.get(ctx, "public/get_index_price", params, &result); err != nil {
		return 0, err
	}
	return result.IndexPrice, nil
}

// GetDvol returns the latest volatility index close, sampled from the
// trailing six hours at hourly resolution.
func (c *DeribitClient) GetDvol(ctx context.Context) (float64, error) {
	end := time.Now()
	start := end.Add(-6 * time.Hour)

	closes, err := c.volatilityCloses(ctx, start, end, 3600)
	if err != nil {
		return 0, err
	}
	if len(closes) == 0 {
		return 0, fmt.Errorf("no volatility index data returned")
	}
	return closes[len(closes)-1], nil
}

// GetDvolHistory returns daily volatility index closes for the trailing
// number of days, oldest first.
func (c *DeribitClient) GetDvolHistory(ctx context.Context, days int) ([]float64, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)
	return c.volatilityCloses(ctx, start, end, 86400)
}

func (c *DeribitClient) volatilityCloses(ctx context.Context, start, end time.Time, resolutionSec int) ([]float64, error) {
	params := url.Values{}
	params.Set("currency", c.currency)
	params.Set("start_timestamp", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("end_timestamp", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("resolution", strconv.Itoa(resolutionSec))

	var result volatilityIndexResult
	if err := c.get(ctx, "public/get_volatility_index_data", params, &result); err != nil {
		return nil, err
	}

	// Each candle is [timestamp, open, high, low, close].
	closes := make([]float64, 0, len(result.Data))
	for _, candle := range result.Data {
		if len(candle) > 4 {
			closes = append(closes, candle[4])
		}
	}
	return closes, nil
}

// GetOptionChain returns quotes for non-expired options of the given type
// whose DTE falls inside [dteMin, dteMax] days. Individual ticker failures
// are logged and skipped so a single bad instrument cannot sink the tick.
func (c *DeribitClient) GetOptionChain(ctx context.Context, optionType models.OptionType, dteMin, dteMax float64) ([]models.OptionQuote, error) {
	params := url.Values{}
	params.Set("currency", c.currency)
	params.Set("kind", "option")
	params.Set("expired", "false")

	var instruments []instrumentResult
	if err := c.get(ctx, "public/get_instruments", params, &instruments); err != nil {
		return nil, err
	}

	now := time.Now()
	quotes := make([]models.OptionQuote, 0, len(instruments))
	for _, inst := range instruments {
		if optionType != "" && inst.OptionType != string(optionType) {
			continue
		}
		expiry := time.UnixMilli(inst.ExpirationTimestamp)
		dte := expiry.Sub(now).Hours() / 24.0
		if dte < dteMin || dte > dteMax {
			continue
		}

		quote, err := c.getTicker(ctx, inst.InstrumentName)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"instrument": inst.InstrumentName,
			}).Warnf("Failed to fetch ticker, skipping: %v", err)
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

func (c *DeribitClient) getTicker(ctx context.Context, instrument string) (models.OptionQuote, error) {
	params := url.Values{}
	params.Set("instrument_name", instrument)

	var result tickerResult
	if err := c.get(ctx, "public/ticker", params, &result); err != nil {
		return models.OptionQuote{}, err
	}

	return models.OptionQuote{
		InstrumentName: result.InstrumentName,
		Strike:         result.Strike,
		OptionType:     models.OptionType(result.OptionType),
		Expiry:         time.UnixMilli(result.ExpirationTimestamp),
		Delta:          result.Greeks.Delta,
		// Deribit quotes mark_iv in percentage points.
		MarkIV: result.MarkIV / 100.0,
		Bid:    result.BestBidPrice,
		Ask:    result.BestAskPrice,
	}, nil
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
}

func (c *DeribitClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	endpoint := fmt.Sprintf("%s/%s?%s", c.BaseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "volpulse/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("Error closing response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("deribit error (%d): %s", resp.StatusCode, string(respBody))
	}

	var envelope rpcEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response envelope: %w", err)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}
