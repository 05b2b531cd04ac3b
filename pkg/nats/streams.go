// Package natsutil provides NATS JetStream configuration and helpers
package natsutil

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Stream names
const (
	StreamBalise   = "BALISE"
	StreamRadio    = "RADIO"
	StreamOdometry = "ODOMETRY"
	StreamTrain    = "TRAIN"
	StreamDMI      = "DMI"
	StreamFaults   = "FAULTS"
)

// StreamConfigs defines all streams used between the onboard, the trackside
// and the recorder
var StreamConfigs = map[string]jetstream.StreamConfig{
	StreamBalise: {
		Name:              StreamBalise,
		Description:       "Telegrams read by the balise antenna",
		Subjects:          []string{"balise.>"},
		Retention:         jetstream.LimitsPolicy,
		MaxBytes:          256 * 1024 * 1024, // 256MB
		MaxAge:            24 * time.Hour,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: 10000,
	},
	StreamRadio: {
		Name:        StreamRadio,
		Description: "Radio messages exchanged with radio block centres",
		Subjects:    []string{"radio.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    256 * 1024 * 1024,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
	StreamOdometry: {
		Name:        StreamOdometry,
		Description: "Odometry readings of the train",
		Subjects:    []string{"odometry.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    128 * 1024 * 1024,
		MaxAge:      time.Hour,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
	StreamTrain: {
		Name:        StreamTrain,
		Description: "Brake commands sent to the train interface",
		Subjects:    []string{"train.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    512 * 1024 * 1024,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	},
	StreamDMI: {
		Name:        StreamDMI,
		Description: "Supervision status for and actions from the driver display",
		Subjects:    []string{"dmi.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    256 * 1024 * 1024,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
	StreamFaults: {
		Name:        StreamFaults,
		Description: "Faults detected by the onboard",
		Subjects:    []string{"fault.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    512 * 1024 * 1024,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	},
}

// ConsumerConfigs defines the durable consumers of each process
var ConsumerConfigs = map[string]jetstream.ConsumerConfig{
	"evc-balise": {
		Durable:       "evc-balise",
		Description:   "Onboard consumer for antenna telegrams",
		FilterSubject: "balise.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 1, // Telegrams must be processed in read order
	},
	"evc-radio": {
		Durable:       "evc-radio",
		Description:   "Onboard consumer for radio messages",
		FilterSubject: "radio.in.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 1,
	},
	"evc-odometry": {
		Durable:       "evc-odometry",
		Description:   "Onboard consumer for odometry readings",
		FilterSubject: "odometry.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Second,
		MaxDeliver:    1,
		MaxAckPending: 1,
	},
	"evc-driver": {
		Durable:       "evc-driver",
		Description:   "Onboard consumer for driver actions",
		FilterSubject: "dmi.driver.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 10,
	},
	"recorder-train": {
		Durable:       "recorder-train",
		Description:   "Recorder consumer for brake commands",
		FilterSubject: "train.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 500,
	},
	"recorder-faults": {
		Durable:       "recorder-faults",
		Description:   "Recorder consumer for faults",
		FilterSubject: "fault.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 500,
	},
	"recorder-status": {
		Durable:       "recorder-status",
		Description:   "Recorder consumer for supervision status",
		FilterSubject: "dmi.status.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 1000,
	},
}

// SetupStreams creates all required streams
func SetupStreams(ctx context.Context, js jetstream.JetStream) error {
	for name, cfg := range StreamConfigs {
		_, err := js.Stream(ctx, name)
		if err == nil {
			continue // Stream exists
		}

		_, err = js.CreateStream(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}
	}
	return nil
}

// SetupConsumer creates a consumer for a process
func SetupConsumer(ctx context.Context, js jetstream.JetStream, streamName, consumerName string) (jetstream.Consumer, error) {
	cfg := Consumer(consumerName)

	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("stream %s not found: %w", streamName, err)
	}

	consumer, err := stream.Consumer(ctx, cfg.Durable)
	if err == nil {
		return consumer, nil
	}

	return stream.CreateConsumer(ctx, cfg)
}

// Consumer returns the configuration of a named consumer, or a default one
func Consumer(name string) jetstream.ConsumerConfig {
	if cfg, ok := ConsumerConfigs[name]; ok {
		return cfg
	}
	return jetstream.ConsumerConfig{
		Durable:       name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 100,
	}
}
