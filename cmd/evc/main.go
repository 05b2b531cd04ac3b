// Package main runs the onboard supervision kernel. Telegrams, radio
// messages, odometry and driver actions are consumed from JetStream; brake
// commands, driver display status and faults are published every cycle.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/agile-defense/evc/pkg/agent"
	"github.com/agile-defense/evc/pkg/config"
	"github.com/agile-defense/evc/pkg/handler"
	"github.com/agile-defense/evc/pkg/kernel"
	natsutil "github.com/agile-defense/evc/pkg/nats"
	"github.com/agile-defense/evc/pkg/vbc"
)

func main() {
	flags := pflag.NewFlagSet("evc", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", os.Getenv("EVC_CONFIG"), "path to the YAML configuration")
	logLevel := flags.String("log-level", "", "override the configured log level")
	origins := flags.StringSlice("origins", []string{"localhost:3000", "127.0.0.1:3000"}, "accepted driver display origins")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evc: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	base, err := agent.NewBase(agent.Config{
		ID:       cfg.ID,
		Type:     agent.TypeEVC,
		NATSUrl:  cfg.Services.NATSUrl,
		OTELUrl:  cfg.Services.OTELUrl,
		LogLevel: cfg.LogLevel,
		Secret:   []byte(cfg.Services.Secret),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "evc: %v\n", err)
		os.Exit(1)
	}
	logger := *base.Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, base, *origins, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Onboard stopped with error")
	}
	logger.Info().Msg("Onboard shutdown complete")
}

func run(ctx context.Context, cfg config.Config, base *agent.Base, origins []string, logger zerolog.Logger) error {
	covers, err := vbc.Open(cfg.CoversPath, logger)
	if err != nil {
		return err
	}
	model, err := cfg.Model()
	if err != nil {
		return err
	}

	k := kernel.New(
		cfg.Context(covers, logger),
		model,
		kernel.Options{Supervision: cfg.Supervision, SpeedModel: cfg.SpeedModel},
		kernel.NewMetrics(base.Metrics()),
		logger,
	)

	if err := base.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		base.Stop(stopCtx)
	}()

	if err := natsutil.SetupStreams(ctx, base.JetStream()); err != nil {
		return err
	}

	hub := handler.NewWebSocketHub(base.NATS(), logger)
	server := &http.Server{
		Addr:         cfg.Services.HTTPAddr,
		Handler:      setupRouter(base, k, covers, hub, origins, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	pub := newPublisher(base.Publish, base.Envelope, logger)

	g, gCtx := errgroup.WithContext(ctx)

	for _, in := range inputs(base, k) {
		consumer, err := natsutil.SetupConsumer(gCtx, base.JetStream(), in.stream, in.consumer)
		if err != nil {
			return fmt.Errorf("failed to set up consumer %s: %w", in.consumer, err)
		}
		in := in
		g.Go(func() error {
			return base.Consume(gCtx, consumer, in.msgType, in.handle)
		})
	}

	g.Go(func() error {
		return pub.Run(gCtx)
	})

	g.Go(func() error {
		return k.Run(gCtx, cfg.Cycle, pub.Emit)
	})

	g.Go(func() error {
		hub.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("Shutting down HTTP server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupRouter(base *agent.Base, k *kernel.Kernel, covers *vbc.Store, hub *handler.WebSocketHub, origins []string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(handler.Correlation)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   httpOrigins(origins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", handler.CorrelationHeader},
		ExposedHeaders:   []string{handler.CorrelationHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := base.Health()
		status := http.StatusOK
		if !health.Healthy {
			status = http.StatusServiceUnavailable
		}
		handler.WriteJSON(w, status, health)
	})
	r.Handle("/metrics", promhttp.HandlerFor(base.Metrics(), promhttp.HandlerOpts{}))
	r.Handle("/ws", handler.NewWebSocketHandler(hub, origins, logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/status", handler.NewStatusHandler(k, base.ID(), logger).Routes())
		r.Mount("/covers", handler.NewCoverHandler(covers, logger).Routes())
	})

	return r
}

// httpOrigins turns websocket origin patterns into CORS origins
func httpOrigins(patterns []string) []string {
	out := make([]string, 0, 2*len(patterns))
	for _, p := range patterns {
		out = append(out, "http://"+p, "https://"+p)
	}
	return out
}
