// Package main runs the juridical recorder. It stores brake commands, faults
// and supervision transitions published by the onboard and serves them over
// HTTP.
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
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/agile-defense/evc/pkg/agent"
	"github.com/agile-defense/evc/pkg/handler"
	"github.com/agile-defense/evc/pkg/messages"
	natsutil "github.com/agile-defense/evc/pkg/nats"
	"github.com/agile-defense/evc/pkg/postgres"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// store is what the recorder writes to
type store interface {
	InsertBrakeCommand(ctx context.Context, r postgres.BrakeRow) error
	InsertFault(ctx context.Context, r postgres.FaultRow) error
	InsertTransition(ctx context.Context, r postgres.TransitionRow) error
}

func main() {
	flags := pflag.NewFlagSet("recorder", pflag.ExitOnError)
	id := flags.String("id", getEnv("RECORDER_ID", "recorder-1"), "process ID")
	natsURL := flags.String("nats-url", getEnv("NATS_URL", "nats://localhost:4222"), "NATS server")
	dbURL := flags.String("db-url", getEnv("DATABASE_URL", postgres.DefaultConfig().ConnectionString()), "PostgreSQL URL")
	addr := flags.String("http-addr", getEnv("HTTP_ADDR", ":8090"), "HTTP listen address")
	logLevel := flags.String("log-level", getEnv("LOG_LEVEL", "info"), "log level")
	secret := flags.String("secret", os.Getenv("EVC_SECRET"), "message signing secret")
	flags.Parse(os.Args[1:])

	base, err := agent.NewBase(agent.Config{
		ID:       *id,
		Type:     agent.TypeRecorder,
		NATSUrl:  *natsURL,
		DBUrl:    *dbURL,
		OTELUrl:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel: *logLevel,
		Secret:   []byte(*secret),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "recorder: %v\n", err)
		os.Exit(1)
	}
	logger := *base.Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, base, *addr, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Recorder stopped with error")
	}
	logger.Info().Msg("Recorder shutdown complete")
}

func run(ctx context.Context, base *agent.Base, addr string, logger zerolog.Logger) error {
	db, err := postgres.NewPoolFromURL(ctx, base.Config().DBUrl)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	if err := base.Start(ctx); err != nil {
		return err
	}
	defer base.Stop(context.Background())

	if err := natsutil.SetupStreams(ctx, base.JetStream()); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      setupRouter(base, db, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	for _, rec := range recorders(base, db, postgres.NewTransitions()) {
		consumer, err := natsutil.SetupConsumer(gCtx, base.JetStream(), rec.stream, rec.consumer)
		if err != nil {
			return fmt.Errorf("failed to set up consumer %s: %w", rec.consumer, err)
		}
		rec := rec
		g.Go(func() error {
			return base.Consume(gCtx, consumer, rec.msgType, rec.handle)
		})
	}

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// recorder binds a durable consumer to a table
type recorder struct {
	stream   string
	consumer string
	msgType  string
	handle   agent.Handler
}

type decoder interface {
	Decode(msg jetstream.Msg, into messages.Message) error
}

// recorders lists the consumers of the recorder. Supervision status is only
// stored when the mode, level or status changes; the consumer for it runs on
// one goroutine so the tracker needs no lock.
func recorders(d decoder, db store, transitions *postgres.Transitions) []recorder {
	return []recorder{
		{
			stream:   natsutil.StreamTrain,
			consumer: "recorder-train",
			msgType:  "brake_command",
			handle: func(ctx context.Context, msg jetstream.Msg) error {
				var m messages.BrakeCommand
				if err := d.Decode(msg, &m); err != nil {
					return err
				}
				return db.InsertBrakeCommand(ctx, postgres.NewBrakeRow(&m))
			},
		},
		{
			stream:   natsutil.StreamFaults,
			consumer: "recorder-faults",
			msgType:  "fault",
			handle: func(ctx context.Context, msg jetstream.Msg) error {
				var m messages.FaultReport
				if err := d.Decode(msg, &m); err != nil {
					return err
				}
				return db.InsertFault(ctx, postgres.NewFaultRow(&m))
			},
		},
		{
			stream:   natsutil.StreamDMI,
			consumer: "recorder-status",
			msgType:  "supervision_report",
			handle: func(ctx context.Context, msg jetstream.Msg) error {
				var m messages.SupervisionReport
				if err := d.Decode(msg, &m); err != nil {
					return err
				}
				row := postgres.NewTransitionRow(&m)
				if !transitions.Changed(row) {
					return nil
				}
				return db.InsertTransition(ctx, row)
			},
		},
	}
}

func setupRouter(base *agent.Base, db *postgres.Pool, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(handler.Correlation)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", handler.CorrelationHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			handler.WriteJSON(w, http.StatusServiceUnavailable, agent.HealthStatus{Status: "database unavailable", Details: err.Error()})
			return
		}
		health := base.Health()
		status := http.StatusOK
		if !health.Healthy {
			status = http.StatusServiceUnavailable
		}
		handler.WriteJSON(w, status, health)
	})
	r.Handle("/metrics", promhttp.HandlerFor(base.Metrics(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/records", handler.NewRecordHandler(db, logger).Routes())
	})

	return r
}
