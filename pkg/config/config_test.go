package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/targets"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Train, cfg.Train)

	model, err := cfg.Model()
	require.NoError(t, err)
	assert.InDelta(t, 0.9, model.Emergency.At(10), 1e-9)
	assert.InDelta(t, 0.6, model.Service.At(50), 1e-9)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
id: evc-42
cycle: 250ms
start:
  mode: FS
  level: N2
  version: 32
national:
  countries: [1, 2]
  release_emergency_brake_early: false
train:
  train_length: 400
supervision:
  hold_emergency_brake: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "evc-42", cfg.ID)
	assert.Equal(t, 250*time.Millisecond, cfg.Cycle)
	assert.Equal(t, 400.0, cfg.Train.TrainLength)
	assert.Equal(t, Default().Train.TDriver, cfg.Train.TDriver)
	assert.True(t, cfg.Supervision.HoldEmergencyBrake)

	c := cfg.Context(nil, zerolog.Nop())
	assert.Equal(t, onboard.ModeFS, c.Mode)
	assert.Equal(t, onboard.Level2, c.Level)
	assert.Equal(t, []int{1, 2}, c.National.Countries)
	assert.False(t, c.National.ReleaseEmergencyBrakeEarly)
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("NATS_URL", "nats://rbc:4222")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://rbc:4222", cfg.Services.NATSUrl)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown mode", "start: {mode: XX, level: N1, version: 32}"},
		{"unknown level", "start: {mode: SB, level: N9, version: 32}"},
		{"warning after driver reaction", "train: {t_warning: 9}"},
		{"no braking bands", "braking: {emergency: [], service: []}"},
		{"zero cycle", "cycle: 0s"},
		{"malformed", "id: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestInvalidStartIsSentinel(t *testing.T) {
	_, err := Load(writeConfig(t, "start: {mode: XX, level: N1, version: 32}"))
	assert.ErrorIs(t, err, ErrInvalidStart)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("../../cmd/evc/evc.yaml")
	require.NoError(t, err)
	assert.Equal(t, "FS", cfg.Start.Mode)
	assert.Equal(t, 44.0, cfg.Train.MaxSpeed)
	assert.Equal(t, targets.DefaultParams().TrainLength, cfg.Train.TrainLength)
	assert.Equal(t, []int{1}, cfg.National.Countries)
}
