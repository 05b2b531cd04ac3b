// Package main plays a trackside scenario against a running onboard: it
// publishes odometry, balise telegrams and radio messages and follows the
// brake commands the onboard sends back
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/agile-defense/evc/pkg/agent"
	"github.com/agile-defense/evc/pkg/messages"
	natsutil "github.com/agile-defense/evc/pkg/nats"
	"github.com/agile-defense/evc/pkg/trackside"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flags := pflag.NewFlagSet("trackside", pflag.ExitOnError)
	scenarioPath := flags.StringP("scenario", "s", "scenarios/level1.yaml", "scenario to play")
	id := flags.String("id", getEnv("TRACKSIDE_ID", "trackside-1"), "process ID")
	natsURL := flags.String("nats-url", getEnv("NATS_URL", "nats://localhost:4222"), "NATS server")
	logLevel := flags.String("log-level", getEnv("LOG_LEVEL", "info"), "log level")
	secret := flags.String("secret", os.Getenv("EVC_SECRET"), "message signing secret")
	flags.Parse(os.Args[1:])

	scenario, err := trackside.Load(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackside: %v\n", err)
		os.Exit(1)
	}

	base, err := agent.NewBase(agent.Config{
		ID:       *id,
		Type:     agent.TypeTrackside,
		NATSUrl:  *natsURL,
		LogLevel: *logLevel,
		Secret:   []byte(*secret),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackside: %v\n", err)
		os.Exit(1)
	}
	logger := *base.Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := play(ctx, base, scenario, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Scenario failed")
	}
}

func play(ctx context.Context, base *agent.Base, scenario *trackside.Scenario, logger zerolog.Logger) error {
	if err := base.Start(ctx); err != nil {
		return err
	}
	defer base.Stop(context.Background())

	if err := natsutil.SetupStreams(ctx, base.JetStream()); err != nil {
		return err
	}

	run := trackside.NewRun(scenario)
	sub, err := base.NATS().Subscribe("train.brake.>", func(msg *nats.Msg) {
		var cmd messages.BrakeCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			logger.Warn().Err(err).Msg("Invalid brake command")
			return
		}
		run.Command(cmd)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to brake commands: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info().
		Str("scenario", scenario.Name).
		Int("balises", len(scenario.Balises)).
		Dur("tick", scenario.Tick).
		Msg("Scenario started")

	ticker := time.NewTicker(scenario.Tick)
	defer ticker.Stop()

	for !run.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, msg := range run.Tick() {
			msg.SetEnvelope(base.Envelope())
			if err := base.Publish(ctx, msg); err != nil {
				return err
			}
			base.RecordMessage("published", msg.Subject())
		}
	}

	logger.Info().
		Float64("front", run.Front()).
		Float64("speed", run.Speed()).
		Msg("Scenario finished")
	return nil
}
