// lappd is the Lappeleken game server daemon. It hosts game sessions over
// HTTP and WebSocket, polls live match data, and persists saved games.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/haakonros/lappeleken/pkg/api"
	"github.com/haakonros/lappeleken/pkg/config"
	"github.com/haakonros/lappeleken/pkg/entitle"
	"github.com/haakonros/lappeleken/pkg/footballdata"
	"github.com/haakonros/lappeleken/pkg/game"
	"github.com/haakonros/lappeleken/pkg/metrics"
	"github.com/haakonros/lappeleken/pkg/monitor"
	"github.com/haakonros/lappeleken/pkg/store"
	"github.com/haakonros/lappeleken/pkg/streaming"
)

var configPath = flag.String("config", "", "Path to config file (optional)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid config")
	}

	log := newLogger(cfg.Logging)
	log.Info("starting lappd")

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()

	source := newSource(cfg.Football, log)
	gate := entitle.NewGate(entitle.Plan(cfg.Entitlement.Plan))
	gm := metrics.NewGameMetrics()

	hub := streaming.NewHub(log)
	go hub.Run()

	monitors := monitor.NewManager(log)

	server := api.NewServer(api.Config{
		Addr:         cfg.Server.Addr,
		Logger:       log,
		Manager:      game.NewManager(),
		Store:        st,
		Gate:         gate,
		Monitors:     monitors,
		Source:       source,
		Hub:          hub,
		Metrics:      gm,
		PollInterval: cfg.Football.PollInterval,
	})

	// Nightly housekeeping: reset the live-match allowance and prune old
	// saves down to the configured count per session.
	c := cron.New()
	c.AddFunc("0 0 * * *", func() {
		gate.ResetDaily()
		deleted, err := st.Prune(cfg.Storage.KeepSaves)
		if err != nil {
			log.WithError(err).Error("save prune failed")
			return
		}
		log.WithField("deleted", deleted).Info("old saves pruned")
	})
	c.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		log.WithError(err).Error("http server failed")
	}

	monitors.StopAll()
	c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
	log.Info("goodbye")
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// newSource picks the live data source. Without an API token the daemon
// falls back to the built-in sample match so games stay playable.
func newSource(cfg config.FootballConfig, log *logrus.Logger) footballdata.Source {
	if cfg.Token == "" {
		log.Warn("no football API token configured, using built-in sample data")
		src := footballdata.NewStaticSource()

		// Drip the scripted events out so the sample match behaves live.
		go func() {
			for src.Advance() {
				time.Sleep(cfg.PollInterval)
			}
		}()
		return src
	}

	tier := footballdata.TierBasic
	if cfg.Tier == "enhanced" {
		tier = footballdata.TierEnhanced
	}
	client, err := footballdata.NewClient(cfg.Token,
		footballdata.WithBaseURL(cfg.BaseURL),
		footballdata.WithTier(tier),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to create football data client")
	}
	log.WithField("tier", tier.String()).Info("football data client ready")
	return client
}
