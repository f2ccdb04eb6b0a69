package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/goodtune/kclinic/internal/api"
	"github.com/goodtune/kclinic/internal/config"
	"github.com/goodtune/kclinic/internal/metrics"
	"github.com/goodtune/kclinic/internal/queue"
	"github.com/goodtune/kclinic/internal/remote"
	"github.com/goodtune/kclinic/internal/session"
	"github.com/goodtune/kclinic/internal/storage"
	"github.com/goodtune/kclinic/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// hydrateTimeout bounds the initial state load from storage
const hydrateTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start KClinic server",
	Long:  `Start the KClinic server with the session API, live push channel, queue listener and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting KClinic")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("location", storageLocation(cfg.Storage)).
		Msg("Storage initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session tracker; hydration runs in the background and /ready reports it
	tracker := session.NewTracker(store.State(), session.Config{
		StateKey:       cfg.Storage.StateKey,
		PersistTimeout: parseDuration(cfg.Tracker.PersistTimeout, session.DefaultPersistTimeout),
	}, logger)

	go func() {
		hydrateCtx, hydrateCancel := context.WithTimeout(ctx, hydrateTimeout)
		defer hydrateCancel()
		tracker.Hydrate(hydrateCtx)
	}()

	// Archive retention
	janitor, err := storage.NewJanitor(store.Archive(), cfg.Archive.RetentionDays, cfg.Archive.CleanupTime, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize archive janitor: %w", err)
	}
	janitor.Start()

	hub := api.NewHub(cfg.API.AllowedOrigins, logger)

	// Remote API client and queue event listener
	var (
		queueLister api.QueueLister
		listenerWG  sync.WaitGroup
	)
	if cfg.Remote.Enabled() {
		client, err := remote.NewClient(remote.Config{
			BaseURL:   cfg.Remote.BaseURL,
			Token:     cfg.Remote.Token,
			QueuePath: cfg.Remote.QueuePath,
			Timeout:   parseDuration(cfg.Remote.Timeout, 10*time.Second),
			Retries:   cfg.Remote.Retries,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize remote client: %w", err)
		}

		cached, err := remote.NewCachedClient(client, cfg.Remote.CacheSize, parseDuration(cfg.Remote.CacheTTL, 30*time.Second))
		if err != nil {
			return fmt.Errorf("failed to initialize remote query cache: %w", err)
		}
		queueLister = cached

		logger.Info().
			Str("base_url", cfg.Remote.BaseURL).
			Msg("Remote API client initialized")

		if cfg.Remote.EventsEnabled {
			listener := queue.NewListener(queue.Config{
				URL:          strings.TrimRight(cfg.Remote.BaseURL, "/") + cfg.Remote.EventsPath,
				Token:        cfg.Remote.Token,
				ReconnectMin: parseDuration(cfg.Remote.ReconnectMin, time.Second),
				ReconnectMax: parseDuration(cfg.Remote.ReconnectMax, 30*time.Second),
			}, cached, queue.MultiNotifier{hub, queue.LogNotifier{Logger: logger}}, logger)

			listenerWG.Add(1)
			go func() {
				defer listenerWG.Done()
				if err := listener.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("Queue listener stopped")
				}
			}()
		}
	}

	// API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(api.Config{
		ListenAddr:      apiAddr,
		JWTSecret:       cfg.API.JWTSecret,
		TokenExpiration: parseDuration(cfg.API.TokenExpiration, api.DefaultTokenExpiration),
		AllowedOrigins:  cfg.API.AllowedOrigins,
	}, tracker, store.Archive(), queueLister, hub, logger)

	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	// Metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	go systemd.RunWatchdog(ctx, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// systemd readiness waits for hydration
	select {
	case <-tracker.Hydrated():
		notifyReady(logger, cfg, tracker)
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Signal received before startup completed")
		if sig != syscall.SIGHUP {
			return shutdown(logger, cancel, &listenerWG, janitor, apiServer, metricsServer)
		}
		<-tracker.Hydrated()
		notifyReady(logger, cfg, tracker)
	}

	for {
		sig := <-sigChan

		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received; configuration is only read at startup, nothing to reload")
			continue
		}

		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	return shutdown(logger, cancel, &listenerWG, janitor, apiServer, metricsServer)
}

func notifyReady(logger zerolog.Logger, cfg *config.Config, tracker *session.Tracker) {
	snapshot := tracker.Snapshot()

	logger.Info().
		Int("active_sessions", len(snapshot.ActiveSessions)).
		Msg("KClinic startup complete")
	logger.Info().Msgf("API: http://%s:%d/api/v1", cfg.Server.BindAddress, cfg.Server.APIPort)
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}
	_ = systemd.NotifyStatus(fmt.Sprintf("%d active sessions restored", len(snapshot.ActiveSessions)))
}

func shutdown(logger zerolog.Logger, cancel context.CancelFunc, listenerWG *sync.WaitGroup, janitor *storage.Janitor, apiServer *api.Server, metricsServer *metrics.Server) error {
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stops the queue listener, watchdog and any pending hydration
	cancel()
	listenerWG.Wait()

	janitor.Stop()

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("KClinic stopped")

	return nil
}
