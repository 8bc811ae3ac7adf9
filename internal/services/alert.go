package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/models"
)

// AlertEmitter delivers alerts over Telegram when a bot token and chat ID
// are configured, and falls back to logging the rendered payload otherwise.
// Delivery failures are never fatal; the monitor loop keeps running.
type AlertEmitter struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Logger
	sent   int
}

// NewAlertEmitter creates an emitter from Telegram configuration. An empty
// token leaves the emitter in log-only mode.
func NewAlertEmitter(cfg *config.TelegramConfig, logger *logrus.Logger) *AlertEmitter {
	emitter := &AlertEmitter{logger: logger}

	if cfg.BotToken == "" {
		return emitter
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		logger.Warnf("Invalid telegram chat ID %q, falling back to log-only alerts: %v", cfg.ChatID, err)
		return emitter
	}

	telegramBot, err := bot.New(cfg.BotToken)
	if err != nil {
		logger.Warnf("Failed to initialize telegram bot, falling back to log-only alerts: %v", err)
		return emitter
	}

	emitter.bot = telegramBot
	emitter.chatID = chatID
	return emitter
}

// NewAlert assembles an alert payload with a fresh ID.
func NewAlert(title, body string, metrics models.MetricSet, regime models.RegimeSignal) models.Alert {
	return models.Alert{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      body,
		Regime:    regime,
		Metrics:   metrics,
		CreatedAt: time.Now().UTC(),
	}
}

// Emit renders and delivers the alert. The rendered text is always logged;
// Telegram delivery happens when configured.
func (e *AlertEmitter) Emit(ctx context.Context, alert models.Alert) {
	text := RenderAlert(alert)
	e.sent++

	entry := e.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"title":    alert.Title,
	})

	if e.bot == nil {
		entry.Warn(text)
		return
	}

	_, err := e.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: e.chatID,
		Text:   text,
	})
	if err != nil {
		entry.Warnf("Failed to send telegram alert, payload follows: %v\n%s", err, text)
		return
	}
	entry.Info("Alert delivered via telegram")
}

// Sent returns the number of alerts emitted since startup.
func (e *AlertEmitter) Sent() int {
	return e.sent
}

// RenderAlert formats the alert payload as a multi-line text message.
func RenderAlert(alert models.Alert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s\n", alert.Title, alert.Body)
	fmt.Fprintf(&sb, "Spot %.0f, DVOL %.1f, IVP %.1f, IVR %.1f, Spot1h %.2f%%, DVOL1h %.2f%%\n",
		alert.Metrics.SpotPrice, alert.Metrics.Dvol, alert.Metrics.IVP, alert.Metrics.IVR,
		alert.Metrics.SpotChg1h*100, alert.Metrics.DvolChg1h*100)

	if alert.Fit != nil {
		fmt.Fprintf(&sb, "VRP %.2f vs expected %.2f (z=%.2f, mispricing=%t)\n",
			alert.Metrics.VRP, alert.Fit.ExpectedVRP, alert.Fit.ResidualZ, alert.Fit.Mispricing)
	}

	for i, c := range alert.Candidates {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, "#%d %s delta %.2f DTE %.1f yield %.2f%% safety %.2f%%\n",
			i+1, c.InstrumentName, c.Delta, c.DTEDays, c.AnnualizedYield*100, c.SafetyMargin*100)
	}

	if alert.Risk != nil {
		fmt.Fprintf(&sb, "Hedge %.2f (%s), max contracts %.2f BTC\n",
			alert.Risk.Hedge.Ratio, strings.Join(alert.Risk.Hedge.Reasons, ", "), alert.Risk.MaxContractsBTC)
		if alert.Risk.Margin != nil {
			fmt.Fprintf(&sb, "Margin %s USD (shock %s), est drawdown %s USD\n",
				alert.Risk.Margin.BaseMarginUSD.StringFixed(0),
				alert.Risk.Margin.ShockMarginUSD.StringFixed(0),
				alert.Risk.Margin.EstDrawdownUSD.StringFixed(0))
		}
	}

	if alert.Invalidation != "" {
		fmt.Fprintf(&sb, "INVALIDATED: %s\n", alert.Invalidation)
	}

	return strings.TrimRight(sb.String(), "\n")
}
