package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/evc/pkg/kernel"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/supervision"
)

type fakeMsg struct {
	jetstream.Msg
	data []byte
}

func (m fakeMsg) Data() []byte { return m.data }

type jsonDecoder struct{}

func (jsonDecoder) Decode(msg jetstream.Msg, into messages.Message) error {
	return json.Unmarshal(msg.Data(), into)
}

type recordingQueue struct{ inputs []kernel.Input }

func (q *recordingQueue) Enqueue(in kernel.Input) { q.inputs = append(q.inputs, in) }

func TestInputsEnqueueDecodedMessages(t *testing.T) {
	q := &recordingQueue{}
	handlers := map[string]input{}
	for _, in := range inputs(jsonDecoder{}, q) {
		handlers[in.consumer] = in
	}
	require.Len(t, handlers, 4)

	send := func(consumer string, msg messages.Message) {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		require.NoError(t, handlers[consumer].handle(context.Background(), fakeMsg{data: data}))
	}

	send("evc-balise", &messages.BaliseReading{
		Telegram: messages.Telegram{Group: messages.GroupID{Country: 1, Group: 10}},
		Odometer: 120,
		ReadAt:   5000,
	})
	send("evc-odometry", &messages.OdometryReading{EstFront: 130, Speed: 12, Simulated: true})
	send("evc-radio", &messages.RadioReceived{Message: messages.RadioMessage{ID: 3, Session: "rbc-1"}})
	send("evc-driver", &messages.DriverCommand{Action: "ack_trip"})

	require.Len(t, q.inputs, 4)
	assert.Equal(t, kernel.SourceAntenna, q.inputs[0].Source)
	assert.Equal(t, 120.0, q.inputs[0].Antenna.Odometer)
	assert.Equal(t, int64(5000), q.inputs[0].Antenna.Timestamp)
	assert.Equal(t, kernel.Odometry{EstFront: 130, Speed: 12, Simulated: true}, q.inputs[1].Odometry)
	assert.Equal(t, 3, q.inputs[2].Radio.ID)
	assert.Equal(t, kernel.AckTrip, q.inputs[3].Driver)

	err := handlers["evc-radio"].handle(context.Background(), fakeMsg{data: []byte("{")})
	assert.Error(t, err)
	assert.Len(t, q.inputs, 4)
}

func subjects(msgs []messages.Message) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.Subject())
	}
	return out
}

func TestPublisherSendsBrakeChangesOnly(t *testing.T) {
	env := func() messages.Envelope { return messages.NewEnvelope("evc-1", "evc") }
	p := newPublisher(nil, env, zerolog.Nop())

	released := kernel.Output{Cycle: 1}
	assert.Equal(t, []string{"train.brake.released", "dmi.status.csm"}, subjects(p.messages(released)))

	released.Cycle = 2
	assert.Equal(t, []string{"dmi.status.csm"}, subjects(p.messages(released)))

	tripped := kernel.Output{
		Cycle:  3,
		Mode:   onboard.ModeTR.String(),
		Brake:  supervision.Brake{EmergencyBrake: true},
		Faults: []onboard.Fault{{Kind: onboard.FaultReadError}},
		Acks:   []onboard.Ack{{Session: "rbc-1", Message: 147}},
	}
	assert.Equal(t, []string{
		"train.brake.emergency",
		"fault.balise_read_error",
		"radio.out.rbc-1",
		"dmi.status.csm",
	}, subjects(p.messages(tripped)))
}

func TestPublisherRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	published := make(chan string, 8)
	p := newPublisher(func(_ context.Context, msg messages.Message) error {
		published <- msg.Subject()
		if msg.Subject() == "dmi.status.csm" {
			return errors.New("no responders")
		}
		return nil
	}, func() messages.Envelope { return messages.Envelope{} }, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Emit(kernel.Output{Cycle: 1})
	assert.Equal(t, "train.brake.released", <-published)
	assert.Equal(t, "dmi.status.csm", <-published)

	cancel()
	assert.NoError(t, <-done)
}
