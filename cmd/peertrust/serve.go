package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"peertrust/internal/handler"
	"peertrust/internal/harness"
	"peertrust/internal/hub"
	"peertrust/internal/ingest"
	"peertrust/internal/service"
	"peertrust/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, transport ingest and opinion module",
	Long: `Start the trust engine. The first SIGINT or SIGTERM requests a graceful
stop: running aggregations finish and the module shuts down. A second signal
forces the stop and abandons running aggregations.`,
	RunE: runServe,
}

var (
	listenAddr string
	noWatch    bool
)

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload thresholds when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}
	log.Info("Starting peertrust...")
	log.Infof("Config:\n%s", cfg.Summary())

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open trust store: %w", err)
	}
	defer store.Close()

	// Initialize event bus
	eventBus := service.NewEventBus()

	// Initialize SSE hub
	sseHub := hub.New()
	go sseHub.Run(ctx)

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	defer eventBus.Unsubscribe(eventChan)
	go func() {
		for {
			select {
			case event := <-eventChan:
				sseHub.Broadcast(string(event.Type), event)
			case <-ctx.Done():
				return
			}
		}
	}()

	trustSvc, err := newTrustService(cfg, store, eventBus)
	if err != nil {
		return err
	}

	// Opinion module under the harness
	module := service.NewOpinionModule(trustSvc, cfg.Harness.InboxSize, cfg.Harness.PollInterval.Duration(), clock.New())
	h := harness.New(harness.Options{
		MaxConcurrentUnits: cfg.Harness.MaxConcurrentUnits,
		ShutdownTimeout:    cfg.Harness.ShutdownTimeout.Duration(),
	})
	token := harness.NewToken()
	harnessDone := make(chan error, 1)
	go func() {
		summary, err := h.Run(ctx, module, token)
		log.Infof("Opinion module stopped: %d completed, %d failed, %d abandoned",
			summary.Completed, summary.Failed, summary.Abandoned)
		harnessDone <- err
	}()

	// Transport ingest
	var sub *ingest.Subscriber
	if cfg.NATS.Enabled {
		sub = ingest.New(ingest.Config{
			URL:            cfg.NATS.URL,
			PeersSubject:   cfg.NATS.PeersSubject,
			ReportsSubject: cfg.NATS.ReportsSubject,
			QueueGroup:     cfg.NATS.QueueGroup,
			StoreTimeout:   cfg.Store.Timeout.Duration(),
		}, trustSvc, module)
		if err := sub.Start(); err != nil {
			token.Force()
			<-harnessDone
			return err
		}
	}

	// Reload thresholds and cache TTL on config change
	if cfgPath != "" && !noWatch {
		w := watcher.New(cfgPath, func() {
			if err := reloadSettings(cfgPath, trustSvc); err != nil {
				log.Warnf("Ignoring config change: %v", err)
			}
		})
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warnf("Config watcher stopped: %v", err)
			}
		}()
	}

	// HTTP API
	trustHandler := handler.NewTrustHandler(trustSvc)
	router := handler.NewRouter(trustHandler, sseHub, cfg.Server.MetricsPath)
	finalHandler := handler.Chain(router,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     finalHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		log.Infof("Received %s, stopping gracefully (signal again to force)", sig)
		token.RequestStop()
	case runErr = <-serverErr:
		log.Errorf("Server error: %v", runErr)
		token.RequestStop()
	case runErr = <-harnessDone:
		harnessDone <- runErr
	}

	// No new batches once stopping
	if sub != nil {
		if err := sub.Close(); err != nil {
			log.Warnf("Ingest close error: %v", err)
		}
	}

	// Wait for the harness, escalating on a second signal
	var harnessErr error
	for waiting := true; waiting; {
		select {
		case harnessErr = <-harnessDone:
			waiting = false
		case <-quit:
			log.Warn("Forcing stop")
			token.Force()
		}
	}
	if harnessErr != nil && !errors.Is(harnessErr, harness.ErrForced) {
		log.Errorf("Opinion module error: %v", harnessErr)
		if runErr == nil {
			runErr = harnessErr
		}
	}

	// Stops the hub, which disconnects SSE clients
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Server shutdown error: %v", err)
	}

	log.Info("Server stopped")
	return runErr
}
