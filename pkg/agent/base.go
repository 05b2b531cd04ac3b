package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/messages"
)

// ErrNotConnected is returned when publishing before Start
var ErrNotConnected = errors.New("not connected to NATS")

// Base provides common functionality for all processes
type Base struct {
	id      string
	kind    Type
	config  Config
	tracing func(context.Context) error

	// NATS
	nc *nats.Conn
	js jetstream.JetStream

	// Logging
	logger zerolog.Logger

	// Metrics
	registry      *prometheus.Registry
	messagesTotal *prometheus.CounterVec
	latencyHist   *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec

	// State
	running bool
	mu      sync.RWMutex
	cancel  context.CancelFunc
}

// NewBase creates a new base process with common setup
func NewBase(cfg Config) (*Base, error) {
	logger, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()

	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evc_messages_total",
			Help: "Total messages processed by the process",
		},
		[]string{"status", "message_type"},
	)

	latencyHist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evc_processing_latency_seconds",
			Help:    "Message processing latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"message_type"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evc_errors_total",
			Help: "Total errors encountered by the process",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(messagesTotal, latencyHist, errorsTotal)

	return &Base{
		id:            cfg.ID,
		kind:          cfg.Type,
		config:        cfg,
		logger:        logger,
		registry:      registry,
		messagesTotal: messagesTotal,
		latencyHist:   latencyHist,
		errorsTotal:   errorsTotal,
	}, nil
}

// setupLogging creates the process logger with the configured level
func setupLogging(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		l, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to parse log level: %w", err)
		}
		level = l
	}

	return zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("process_id", cfg.ID).
		Str("process_type", string(cfg.Type)).
		Logger(), nil
}

// ID returns the process ID
func (a *Base) ID() string {
	return a.id
}

// Type returns the process type
func (a *Base) Type() Type {
	return a.kind
}

// Config returns the process configuration
func (a *Base) Config() Config {
	return a.config
}

// Logger returns the process logger
func (a *Base) Logger() *zerolog.Logger {
	return &a.logger
}

// NATS returns the NATS connection
func (a *Base) NATS() *nats.Conn {
	return a.nc
}

// JetStream returns the JetStream context
func (a *Base) JetStream() jetstream.JetStream {
	return a.js
}

// Metrics returns the Prometheus registry
func (a *Base) Metrics() *prometheus.Registry {
	return a.registry
}

// RecordMessage records a processed message metric
func (a *Base) RecordMessage(status, msgType string) {
	a.messagesTotal.WithLabelValues(status, msgType).Inc()
}

// RecordLatency records processing latency
func (a *Base) RecordLatency(msgType string, duration time.Duration) {
	a.latencyHist.WithLabelValues(msgType).Observe(duration.Seconds())
}

// RecordError records an error metric
func (a *Base) RecordError(errorType string) {
	a.errorsTotal.WithLabelValues(errorType).Inc()
}

// Envelope returns a fresh envelope stamped with this process as source
func (a *Base) Envelope() messages.Envelope {
	return messages.NewEnvelope(a.id, string(a.kind))
}

// Connect establishes NATS connection
func (a *Base) Connect(ctx context.Context) error {
	a.logger.Info().Str("url", a.config.NATSUrl).Msg("Connecting to NATS")

	user, pass := credentials(a.kind)

	opts := []nats.Option{
		nats.Name(a.id),
		nats.UserInfo(user, pass),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			a.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			a.logger.Info().Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(a.config.NATSUrl, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	a.nc = nc

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	a.js = js
	a.logger.Info().Msg("Connected to NATS with JetStream")

	return nil
}

// credentials returns the NATS user of a process type
func credentials(t Type) (string, string) {
	// In production, these would come from secrets management
	creds := map[Type]struct{ user, pass string }{
		TypeEVC:       {"evc", "evc-secret"},
		TypeTrackside: {"trackside", "trackside-secret"},
		TypeRecorder:  {"recorder", "recorder-secret"},
	}

	if c, ok := creds[t]; ok {
		return c.user, c.pass
	}
	return "admin", "admin-secret"
}

// Health returns the health status
func (a *Base) Health() HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return HealthStatus{Healthy: false, Status: "stopped"}
	}

	if a.nc == nil || !a.nc.IsConnected() {
		return HealthStatus{Healthy: false, Status: "disconnected", Details: "NATS connection lost"}
	}

	return HealthStatus{Healthy: true, Status: "running"}
}

// Start sets up tracing and connects to NATS
func (a *Base) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("process already running")
	}
	a.running = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	shutdown, err := SetupTracing(ctx, a.config, a.logger)
	if err == nil {
		a.tracing = shutdown
		err = a.Connect(ctx)
	}
	if err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return err
	}

	a.logger.Info().Msg("Process started")
	return nil
}

// Stop gracefully stops the process
func (a *Base) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	a.logger.Info().Msg("Stopping process")

	if a.cancel != nil {
		a.cancel()
	}

	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.logger.Warn().Err(err).Msg("NATS drain failed")
		}
	}
	if a.tracing != nil {
		if err := a.tracing(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}

	a.running = false
	a.logger.Info().Msg("Process stopped")
	return nil
}

// EnsureStream creates a stream if it doesn't exist
func (a *Base) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	stream, err := a.js.Stream(ctx, cfg.Name)
	if err == nil {
		return stream, nil
	}

	stream, err = a.js.CreateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}

	a.logger.Info().Str("stream", cfg.Name).Msg("Created stream")
	return stream, nil
}

// Publish signs a message and publishes it on its subject
func (a *Base) Publish(ctx context.Context, msg messages.Message) error {
	if a.js == nil {
		return ErrNotConnected
	}

	data, err := messages.MarshalWithSignature(msg, a.config.Secret)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msg.Subject(), err)
	}

	if _, err := a.js.Publish(ctx, msg.Subject(), data); err != nil {
		a.RecordError("publish_error")
		return fmt.Errorf("failed to publish %s: %w", msg.Subject(), err)
	}
	return nil
}

// Handler processes one consumed message
type Handler func(ctx context.Context, msg jetstream.Msg) error

// Consume fetches batches from a consumer until ctx is done. Messages whose
// handler fails are negatively acknowledged for redelivery.
func (a *Base) Consume(ctx context.Context, consumer jetstream.Consumer, msgType string, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := consumer.Fetch(50, jetstream.FetchMaxWait(time.Second))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			a.logger.Error().Err(err).Str("message_type", msgType).Msg("Failed to fetch messages")
			a.RecordError("fetch_error")
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			start := time.Now()
			if err := handle(ctx, msg); err != nil {
				a.logger.Error().Err(err).Str("message_type", msgType).Msg("Failed to process message")
				a.RecordError("process_error")
				a.RecordMessage("error", msgType)
				msg.Nak()
				continue
			}
			msg.Ack()
			a.RecordMessage("success", msgType)
			a.RecordLatency(msgType, time.Since(start))
		}

		if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warn().Err(err).Str("message_type", msgType).Msg("Message batch error")
		}
	}
}

// Decode unmarshals a consumed message and checks its signature. Messages
// that fail either check are terminated so they are not redelivered.
func (a *Base) Decode(msg jetstream.Msg, into messages.Message) error {
	if err := json.Unmarshal(msg.Data(), into); err != nil {
		msg.Term()
		return fmt.Errorf("failed to unmarshal %s: %w", msg.Subject(), err)
	}
	if len(a.config.Secret) == 0 {
		return nil
	}
	ok, err := messages.Verify(into, a.config.Secret)
	if err != nil {
		msg.Term()
		return fmt.Errorf("failed to verify %s: %w", msg.Subject(), err)
	}
	if !ok {
		msg.Term()
		a.RecordError("signature_error")
		return fmt.Errorf("invalid signature on %s", msg.Subject())
	}
	return nil
}
