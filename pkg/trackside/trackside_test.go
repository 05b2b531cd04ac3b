package trackside

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/evc/pkg/messages"
)

const scenarioYAML = `
name: level 1 approach
tick: 1s
stop: 400
train:
  start: 0
  speed: 20
  accel: 10
balises:
  - position: 150
    telegram:
      group: {nid_c: 1, nid_bg: 11}
      n_pig: 0
      n_total: 0
      m_version: 32
      m_mcount: 255
      packets:
        - nid_packet: 255
  - position: 50
    fail: true
    telegram:
      group: {nid_c: 1, nid_bg: 10}
      m_version: 32
radio:
  - position: 30
    message:
      nid_message: 16
      session: rbc-1
`

func kinds(msgs []messages.Message) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.Subject())
	}
	return out
}

func TestParse(t *testing.T) {
	s, err := Parse([]byte(scenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, time.Second, s.Tick)
	assert.Equal(t, 1.0, s.Train.Emergency)
	require.Len(t, s.Balises, 2)
	assert.Equal(t, 50.0, s.Balises[0].Position)
	assert.Equal(t, messages.GroupID{Country: 1, Group: 11}, s.Balises[1].telegram.Group)
	assert.Equal(t, 255, s.Balises[1].telegram.MCount)
	require.Len(t, s.Balises[1].telegram.Packets, 1)
	assert.Equal(t, messages.PacketEnd, s.Balises[1].telegram.Packets[0].ID)
	assert.Equal(t, "rbc-1", s.Radio[0].message.Session)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"malformed":    "name: [",
		"no_name":      "stop: 10",
		"no_stop":      "name: x",
		"bad_telegram": "name: x\nstop: 10\nbalises:\n  - position: 5\n    telegram: {n_pig: \"zero\"}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestRunPassesBalisesInOrder(t *testing.T) {
	s, err := Parse([]byte(scenarioYAML))
	require.NoError(t, err)
	r := NewRun(s)

	// 10, 30, 50 metres after accelerating at 10 m/s² to 20 m/s
	assert.Equal(t, []string{"odometry.unknown"}, kinds(r.Tick()))
	assert.Equal(t, []string{"odometry.unknown", "radio.in.rbc-1"}, kinds(r.Tick()))

	msgs := r.Tick()
	assert.Equal(t, 50.0, r.Front())
	require.Len(t, msgs, 2)
	reading := msgs[1].(*messages.BaliseReading)
	assert.True(t, reading.Telegram.ReadError)
	assert.Equal(t, 50.0, reading.Odometer)
	assert.Equal(t, int64(3000), reading.ReadAt)

	for i := 0; i < 5; i++ {
		msgs = r.Tick()
	}
	assert.Equal(t, 150.0, r.Front())
	require.Len(t, msgs, 2)
	assert.Equal(t, "balise.1.11", msgs[1].Subject())
	assert.False(t, r.Done())
}

func TestRunBrakes(t *testing.T) {
	s, err := Parse([]byte(scenarioYAML))
	require.NoError(t, err)
	r := NewRun(s)
	r.Tick()
	r.Tick()
	require.Equal(t, 20.0, r.Speed())

	r.Command(messages.BrakeCommand{ServiceBrake: true})
	r.Tick()
	assert.InDelta(t, 19.3, r.Speed(), 1e-9)

	r.Command(messages.BrakeCommand{TractionCutOff: true})
	r.Tick()
	assert.InDelta(t, 19.3, r.Speed(), 1e-9)

	r.Command(messages.BrakeCommand{EmergencyBrake: true})
	for i := 0; i < 30 && !r.Done(); i++ {
		r.Tick()
	}
	assert.Zero(t, r.Speed())
	assert.True(t, r.Done())
}

func TestLoadShippedScenario(t *testing.T) {
	s, err := Load("../../cmd/trackside/scenarios/level1.yaml")
	require.NoError(t, err)
	require.Len(t, s.Balises, 2)
	assert.Equal(t, 1, s.Balises[1].telegram.Pig)
	assert.Len(t, s.Balises[0].telegram.Packets, 4)
	assert.Equal(t, 1000.0, s.Balises[0].telegram.Packets[0].Field(messages.FieldEndSection))
}
