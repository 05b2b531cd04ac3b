package main

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/agile-defense/evc/pkg/agent"
	"github.com/agile-defense/evc/pkg/balise"
	"github.com/agile-defense/evc/pkg/kernel"
	"github.com/agile-defense/evc/pkg/messages"
	natsutil "github.com/agile-defense/evc/pkg/nats"
)

// input binds a durable consumer to the kernel queue
type input struct {
	stream   string
	consumer string
	msgType  string
	handle   agent.Handler
}

// queue is where decoded inputs go
type queue interface {
	Enqueue(in kernel.Input)
}

// decoder checks and unmarshals a consumed message
type decoder interface {
	Decode(msg jetstream.Msg, into messages.Message) error
}

func inputs(d decoder, q queue) []input {
	return []input{
		{
			stream:   natsutil.StreamBalise,
			consumer: "evc-balise",
			msgType:  "balise_reading",
			handle: func(_ context.Context, msg jetstream.Msg) error {
				var m messages.BaliseReading
				if err := d.Decode(msg, &m); err != nil {
					return err
				}
				q.Enqueue(baliseInput(&m))
				return nil
			},
		},
		{
			stream:   natsutil.StreamRadio,
			consumer: "evc-radio",
			msgType:  "radio_message",
			handle: func(_ context.Context, msg jetstream.Msg) error {
				var m messages.RadioReceived
				if err := d.Decode(msg, &m); err != nil {
					return err
				}
				q.Enqueue(kernel.Input{Source: kernel.SourceRadio, Radio: m.Message})
				return nil
			},
		},
		{
			stream:   natsutil.StreamOdometry,
			consumer: "evc-odometry",
			msgType:  "odometry",
			handle: func(_ context.Context, msg jetstream.Msg) error {
				var m messages.OdometryReading
				if err := d.Decode(msg, &m); err != nil {
					return err
				}
				q.Enqueue(odometryInput(&m))
				return nil
			},
		},
		{
			stream:   natsutil.StreamDMI,
			consumer: "evc-driver",
			msgType:  "driver_command",
			handle: func(_ context.Context, msg jetstream.Msg) error {
				var m messages.DriverCommand
				if err := d.Decode(msg, &m); err != nil {
					return err
				}
				q.Enqueue(kernel.Input{Source: kernel.SourceDriver, Driver: kernel.DriverAction(m.Action)})
				return nil
			},
		},
	}
}

func baliseInput(m *messages.BaliseReading) kernel.Input {
	return kernel.Input{
		Source: kernel.SourceAntenna,
		Antenna: balise.AntennaEvent{
			Telegram:  m.Telegram,
			Odometer:  m.Odometer,
			Timestamp: m.ReadAt,
		},
	}
}

func odometryInput(m *messages.OdometryReading) kernel.Input {
	return kernel.Input{
		Source: kernel.SourceOdometry,
		Odometry: kernel.Odometry{
			EstFront:  m.EstFront,
			Speed:     m.Speed,
			Simulated: m.Simulated,
		},
	}
}
