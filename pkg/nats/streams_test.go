package natsutil

import (
	"strings"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matches reports whether a subject filter selects a subject
func matches(filter, subject string) bool {
	f := strings.Split(filter, ".")
	s := strings.Split(subject, ".")
	for i, tok := range f {
		if tok == ">" {
			return len(s) > i
		}
		if i >= len(s) || (tok != "*" && tok != s[i]) {
			return false
		}
	}
	return len(f) == len(s)
}

func TestEveryConsumerFilterHasAStream(t *testing.T) {
	for name, c := range ConsumerConfigs {
		found := 0
		for _, s := range StreamConfigs {
			for _, subj := range s.Subjects {
				if strings.HasPrefix(c.FilterSubject, strings.TrimSuffix(subj, ">")) {
					found++
				}
			}
		}
		assert.Equal(t, 1, found, "consumer %s", name)
		assert.Equal(t, name, c.Durable)
		assert.Equal(t, jetstream.AckExplicitPolicy, c.AckPolicy)
	}
}

func TestSubjectsRouted(t *testing.T) {
	tests := []struct {
		subject  string
		consumer string
	}{
		{"balise.1.10", "evc-balise"},
		{"radio.in.rbc-1-7", "evc-radio"},
		{"odometry.train-1", "evc-odometry"},
		{"dmi.driver.ack_trip", "evc-driver"},
		{"train.brake.emergency", "recorder-train"},
		{"fault.group_incomplete", "recorder-faults"},
		{"dmi.status.csm", "recorder-status"},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			cfg, ok := ConsumerConfigs[tt.consumer]
			require.True(t, ok)
			assert.True(t, matches(cfg.FilterSubject, tt.subject))
		})
	}
	assert.False(t, matches(ConsumerConfigs["evc-radio"].FilterSubject, "radio.out.rbc-1-7"))
}

func TestDefaultConsumer(t *testing.T) {
	cfg := Consumer("replay")
	assert.Equal(t, "replay", cfg.Durable)
	assert.Equal(t, 3, cfg.MaxDeliver)
}
