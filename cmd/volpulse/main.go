package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/volpulse/volpulse/internal/api"
	"github.com/volpulse/volpulse/internal/backtest"
	"github.com/volpulse/volpulse/internal/config"
	"github.com/volpulse/volpulse/internal/market"
	"github.com/volpulse/volpulse/internal/services"
)

var (
	flagMock      bool
	flagVerbose   bool
	flagOnce      bool
	flagCSVPath   string
	flagHoldHours int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "volpulse",
		Short: "BTC options panic-vol monitor and backtester",
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch spot/DVOL and alert on the panic-vol regime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor()
		},
	}
	monitorCmd.Flags().BoolVar(&flagMock, "mock", false, "Use deterministic mock market data")
	monitorCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Log at debug level")
	monitorCmd.Flags().BoolVar(&flagOnce, "once", false, "Run one evaluation cycle and exit")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the entry rule over hourly spot/DVOL rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest()
		},
	}
	backtestCmd.Flags().StringVar(&flagCSVPath, "csv", "", "CSV path with columns: spot,dvol (synthetic series when omitted)")
	backtestCmd.Flags().IntVar(&flagHoldHours, "hold-hours", 0, "Override the configured holding window")

	rootCmd.AddCommand(monitorCmd, backtestCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *logrus.Logger, error) {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if flagVerbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	return cfg, logger, nil
}

func runMonitor() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	var feed market.Feed
	if flagMock {
		generator := market.NewMockGenerator()
		feed = market.NewMockFeed(generator)
		logger.Info("Using mock market data")
	} else {
		client := market.NewDeribitClient(&cfg.Market, logger)
		feed = market.NewLiveFeed(client, cfg.Scanner, logger)
	}

	emitter := services.NewAlertEmitter(&cfg.Telegram, logger)
	monitor := services.NewMonitor(cfg, feed, emitter, logger)

	if flagMock {
		generator := market.NewMockGenerator()
		// 59m back keeps the baseline inside the 1h change window on the
		// first tick.
		monitor.SeedBaseline(generator.BaselineSnapshot(time.Now().UTC().Add(-59 * time.Minute)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Server.Enabled {
		go runStatusServer(ctx, cfg, monitor, logger)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down monitor...")
		cancel()
	}()

	if err := monitor.Run(ctx, flagOnce); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runStatusServer(ctx context.Context, cfg *config.Config, monitor *services.Monitor, logger *logrus.Logger) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, monitor)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Status server listening on port %d", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("Status server failed: %v", err)
	}
}

func runBacktest() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if flagHoldHours > 0 {
		cfg.Backtest.HoldHours = flagHoldHours
	}

	var rows []backtest.Row
	if flagCSVPath != "" {
		rows, err = backtest.LoadRows(flagCSVPath)
		if err != nil {
			return err
		}
	} else {
		rows = backtest.SyntheticRows(createSyntheticLength(cfg))
		logger.Info("No CSV provided, replaying the synthetic series")
	}

	runner := backtest.NewRunner(cfg, logger)
	result := runner.Run(rows)
	fmt.Print(backtest.Report(result))
	return nil
}

// createSyntheticLength sizes the synthetic run so several shock cycles fit
// inside the holding window.
func createSyntheticLength(cfg *config.Config) int {
	n := 300
	if minimum := cfg.Backtest.HoldHours * 4; n < minimum {
		n = minimum
	}
	return n
}
