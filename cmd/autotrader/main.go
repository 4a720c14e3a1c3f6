package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alejandrodnm/polypilot/config"
	"github.com/alejandrodnm/polypilot/internal/adapters/api"
	"github.com/alejandrodnm/polypilot/internal/adapters/notify"
	"github.com/alejandrodnm/polypilot/internal/adapters/polymarket"
	"github.com/alejandrodnm/polypilot/internal/adapters/storage"
	"github.com/alejandrodnm/polypilot/internal/application/engine"
	"github.com/alejandrodnm/polypilot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "fill orders in memory instead of the CLOB")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *dryRun {
		cfg.Venue.DryRun = true
	}
	setupLogger(cfg.Log)

	slog.Info("polypilot starting",
		"config", *configPath,
		"dry_run", cfg.Venue.DryRun,
		"dsn", cfg.Storage.DSN,
		"listen", cfg.API.ListenAddr,
	)

	store, err := storage.NewStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	creds := polymarket.NewEnvCredentialStore(nil)
	client := polymarket.NewClient(cfg.Venue.CLOBBase)

	var venue ports.OrderVenue
	if cfg.Venue.DryRun {
		venue = polymarket.NewSimVenue()
	} else {
		venue = polymarket.NewVenue(client, creds)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := notify.NewActivityHub()
	defer hub.Close()

	peaks := engine.NewPeakTracker()
	breakers := engine.NewBreakerBoard(store, cfg.Engine.BreakerMaxFailures, cfg.BreakerWindow())
	if err := breakers.Restore(ctx); err != nil {
		slog.Error("failed to restore breaker state", "err", err)
		os.Exit(1)
	}

	policy := engine.RetryPolicy{
		MaxAttempts: cfg.Engine.RetryMaxAttempts,
		BaseWait:    cfg.RetryBaseWait(),
		MaxWait:     cfg.RetryMaxWait(),
	}
	exec := engine.NewExecutor(store, store, venue, creds, hub, peaks, breakers, policy, cfg.SubmitTimeout())

	prices := polymarket.NewPriceFeed(cfg.Venue.WSBase, openTokenWatchlist(store))
	monitor := engine.NewMonitor(prices, store, store, peaks, exec)
	status := engine.NewStatus(store, store, breakers)
	server := api.NewServer(store, store, status, breakers)

	console := notify.NewConsole()

	var wg sync.WaitGroup

	runService(ctx, &wg, "price-feed", prices.Run)
	runService(ctx, &wg, "monitor", monitor.Run)
	runService(ctx, &wg, "api", func(ctx context.Context) error {
		return server.Run(ctx, cfg.API.ListenAddr)
	})

	if cfg.Venue.ScorerURL != "" {
		scorer := polymarket.NewScorerFeed(client, cfg.Venue.ScorerURL, cfg.ScorerPollInterval())
		buyer := engine.NewAutoBuyer(scorer, store, store, creds, exec)
		runService(ctx, &wg, "scorer-feed", scorer.Run)
		runService(ctx, &wg, "auto-buyer", buyer.Run)
	} else {
		slog.Warn("no scorer_url configured, auto-buy disabled")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		console.Follow(ctx, hub)
	}()

	// Daily summary at UTC midnight, matching the ledger's P&L day boundary.
	sched := cron.New(cron.WithLocation(time.UTC))
	_, err = sched.AddFunc("0 0 * * *", func() {
		wallets, err := status.Wallets(ctx)
		if err != nil {
			slog.Warn("daily summary failed", "err", err)
			return
		}
		slog.Info("daily summary", "wallets", len(wallets))
		console.PrintStatus(wallets)
	})
	if err != nil {
		slog.Error("failed to schedule daily summary", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	<-ctx.Done()
	slog.Info("shutting down, draining in-flight orders")
	wg.Wait()
	slog.Info("polypilot stopped cleanly")
}

// runService starts fn in a goroutine and logs its exit.
func runService(ctx context.Context, wg *sync.WaitGroup, name string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			slog.Error("service exited", "service", name, "err", err)
		}
	}()
}

// openTokenWatchlist builds the price-feed watchlist from every open
// position's outcome token.
func openTokenWatchlist(store *storage.Store) polymarket.WatchlistFunc {
	return func(ctx context.Context) ([]string, error) {
		all, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]struct{})
		var tokens []string
		for _, ws := range all {
			positions, err := store.OpenPositions(ctx, ws.WalletID)
			if err != nil {
				return nil, err
			}
			for _, p := range positions {
				if _, ok := seen[p.TokenID]; ok {
					continue
				}
				seen[p.TokenID] = struct{}{}
				tokens = append(tokens, p.TokenID)
			}
		}
		return tokens, nil
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
