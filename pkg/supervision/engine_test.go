package supervision

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/evc/pkg/targets"
)

const kmh = 1 / 3.6

func testModel(t *testing.T) *targets.Model {
	t.Helper()
	emergency, err := targets.NewDeceleration([]targets.Band{{UpTo: 20, Deceleration: 1.0}, {UpTo: 100, Deceleration: 0.8}})
	require.NoError(t, err)
	service, err := targets.NewDeceleration([]targets.Band{{UpTo: 100, Deceleration: 0.6}})
	require.NoError(t, err)
	return targets.NewModel(targets.DefaultParams(), emergency, service)
}

func testEngine(t *testing.T, o Options) (*Engine, *targets.Model) {
	m := testModel(t)
	return NewEngine(m, o, zerolog.Nop()), m
}

func ceilingInput(speed, ceiling float64) Input {
	return Input{
		Speed:        speed,
		EstFront:     100,
		MinSafeFront: 95,
		MaxSafeFront: 105,
		Targets:      targets.Snapshot{Ceiling: ceiling},
	}
}

func TestCeilingToTargetSpeed(t *testing.T) {
	e, m := testEngine(t, Options{})

	speed := 90 * kmh
	target := m.Compute(targets.Target{Kind: targets.KindMRSP, Location: 3000, Speed: 80 * kmh}, speed)
	front := (target.DI + target.DP) / 2
	target = m.Speeds(target, front)

	state := e.Update(Input{
		Speed:        speed,
		EstFront:     front,
		MinSafeFront: front,
		MaxSafeFront: front,
		Targets: targets.Snapshot{
			Targets: []targets.Target{target},
			Ceiling: 100 * kmh,
			Changed: true,
		},
	})

	assert.Equal(t, TargetSpeed, state.Monitoring)
	assert.Equal(t, Indication, state.Supervision)
	assert.False(t, state.Brake.Any())
	require.NotNil(t, state.MRDT)
	assert.InDelta(t, 80*kmh, state.TargetSpeed, 1e-9)
	assert.InDelta(t, 3000-front, state.TargetDist, 1e-9)
	assert.LessOrEqual(t, state.Permitted, 100*kmh)
}

func TestTargetSpeedEscalation(t *testing.T) {
	e, m := testEngine(t, Options{})

	speed := 90 * kmh
	target := m.Compute(targets.Target{Kind: targets.KindMRSP, Location: 3000, Speed: 40 * kmh}, speed)

	tests := []struct {
		name  string
		front float64
		want  Status
		brake Brake
	}{
		{"indication", (target.DI + target.DP) / 2, Indication, Brake{}},
		{"permitted", (target.DP + target.DW) / 2, Overspeed, Brake{}},
		{"warning", (target.DW + target.DSBI2) / 2, Warning, Brake{TractionCutOff: true}},
		{"service intervention", (target.DSBI2 + target.DEBI) / 2, Intervention, Brake{ServiceBrake: true, TractionCutOff: true}},
		{"emergency intervention", target.DEBI + 1, Intervention, Brake{ServiceBrake: true, EmergencyBrake: true, TractionCutOff: true}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := e.Update(Input{
				Speed:        speed,
				EstFront:     tt.front,
				MinSafeFront: tt.front,
				MaxSafeFront: tt.front,
				Targets: targets.Snapshot{
					Targets: []targets.Target{m.Speeds(target, tt.front)},
					Ceiling: 100 * kmh,
					Changed: i == 0,
				},
			})
			assert.Equal(t, TargetSpeed, state.Monitoring)
			assert.Equal(t, tt.want, state.Supervision)
			assert.Equal(t, tt.brake, state.Brake)
		})
	}
}

func TestProfileStepMargins(t *testing.T) {
	m := testModel(t)
	step := targets.Target{Kind: targets.KindMRSP, Location: 3000, Speed: 80 * kmh}
	front := 2990.0

	tests := []struct {
		name  string
		speed float64
		eb    bool
	}{
		{"within margin", 81 * kmh, false},
		{"beyond emergency margin", 90 * kmh, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(m, Options{}, zerolog.Nop())
			target := m.Speeds(m.Compute(step, tt.speed), front)
			state := e.Update(Input{
				Speed:        tt.speed,
				EstFront:     front,
				MinSafeFront: front,
				MaxSafeFront: front,
				Targets: targets.Snapshot{
					Targets: []targets.Target{target},
					Ceiling: 100 * kmh,
					Changed: true,
				},
			})
			assert.Equal(t, TargetSpeed, state.Monitoring)
			assert.Equal(t, tt.eb, state.Brake.EmergencyBrake)
			if !tt.eb {
				assert.False(t, state.Brake.Any())
				assert.LessOrEqual(t, state.Supervision, Overspeed)
				assert.Greater(t, target.VEBI, tt.speed)
			}
		})
	}
}

func TestCeilingStatuses(t *testing.T) {
	m := testModel(t)
	ceiling := 80 * kmh

	tests := []struct {
		name  string
		speed float64
		want  Status
		brake Brake
	}{
		{"below", ceiling - 1, None, Brake{}},
		{"overspeed", ceiling + 0.1, Overspeed, Brake{}},
		{"warning", ceiling + m.DVWarning(ceiling) + 0.1, Warning, Brake{}},
		{"service", ceiling + m.DVSbi(ceiling) + 0.1, Intervention, Brake{ServiceBrake: true}},
		{"emergency", ceiling + m.DVEbi(ceiling) + 0.1, Intervention, Brake{ServiceBrake: true, EmergencyBrake: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(m, Options{}, zerolog.Nop())
			state := e.Update(ceilingInput(tt.speed, ceiling))
			assert.Equal(t, CeilingSpeed, state.Monitoring)
			assert.Equal(t, tt.want, state.Supervision)
			assert.Equal(t, tt.brake, state.Brake)
		})
	}
}

func TestStandstillReleasesEmergencyBrake(t *testing.T) {
	ceiling := 80 * kmh

	t.Run("released", func(t *testing.T) {
		e, m := testEngine(t, Options{})
		state := e.Update(ceilingInput(ceiling+m.DVEbi(ceiling)+1, ceiling))
		require.Equal(t, Intervention, state.Supervision)
		require.True(t, state.Brake.EmergencyBrake)

		// Slowing down is not enough while the emergency brake is applied
		state = e.Update(ceilingInput(ceiling-5, ceiling))
		assert.Equal(t, Intervention, state.Supervision)
		assert.True(t, state.Brake.EmergencyBrake)

		state = e.Update(ceilingInput(0, ceiling))
		assert.Equal(t, None, state.Supervision)
		assert.False(t, state.Brake.Any())
	})

	t.Run("held until acknowledged", func(t *testing.T) {
		e, m := testEngine(t, Options{HoldEmergencyBrake: true})
		e.Update(ceilingInput(ceiling+m.DVEbi(ceiling)+1, ceiling))

		state := e.Update(ceilingInput(0, ceiling))
		assert.Equal(t, None, state.Supervision)
		assert.True(t, state.Brake.EmergencyBrake)
		assert.False(t, state.Brake.ServiceBrake)

		assert.False(t, e.AcknowledgeEmergencyBrake(1))
		assert.True(t, e.AcknowledgeEmergencyBrake(0))
		assert.False(t, e.Brake().EmergencyBrake)
	})

	t.Run("early release", func(t *testing.T) {
		e, m := testEngine(t, Options{ReleaseEmergencyBrakeEarly: true})
		e.Update(ceilingInput(ceiling+m.DVEbi(ceiling)+1, ceiling))

		state := e.Update(ceilingInput(ceiling-5, ceiling))
		assert.Equal(t, None, state.Supervision)
		assert.False(t, state.Brake.Any())
	})
}

func TestServiceBrakeReleasedBelowCeiling(t *testing.T) {
	e, m := testEngine(t, Options{})
	ceiling := 80 * kmh

	state := e.Update(ceilingInput(ceiling+m.DVSbi(ceiling)+0.2, ceiling))
	require.Equal(t, Intervention, state.Supervision)
	require.True(t, state.Brake.ServiceBrake)
	require.False(t, state.Brake.EmergencyBrake)

	// Still above the ceiling: no release
	state = e.Update(ceilingInput(ceiling+0.1, ceiling))
	assert.Equal(t, Intervention, state.Supervision)

	state = e.Update(ceilingInput(ceiling-0.1, ceiling))
	assert.Equal(t, None, state.Supervision)
	assert.False(t, state.Brake.Any())
}

func TestSupervisionMonotonic(t *testing.T) {
	e, _ := testEngine(t, Options{})
	ceiling := 80 * kmh
	rng := rand.New(rand.NewSource(7))

	prev := e.Supervision()
	for i := 0; i < 2000; i++ {
		speed := rng.Float64() * 30
		if rng.Intn(10) == 0 {
			speed = 0
		}
		state := e.Update(ceilingInput(speed, ceiling))
		if state.Supervision < prev {
			assert.Equal(t, state.Monitoring.Safe(), state.Supervision, "cycle %d: %s -> %s", i, prev, state.Supervision)
		}
		prev = state.Supervision
	}
}

func TestReleaseSpeedMonitoring(t *testing.T) {
	e, m := testEngine(t, Options{})

	track := targets.NewTrack(m.MaxSpeed)
	track.SetStatic(0, []targets.Step{{Location: 0, Speed: 30}}, 5000)
	track.Authority = &targets.Authority{EoA: 1000, SvL: 1100}

	var set targets.Set
	train := targets.Train{Speed: 2, EstFront: 900, MinSafeFront: 900, MaxSafeFront: 900, LRBG: 850}
	set.Update(track, train.MaxSafeFront)
	snap := m.Evaluate(&set, track, train)
	require.Greater(t, snap.Release, 0.0)
	require.Less(t, snap.StartRSM, 1000.0)

	front := snap.StartRSM + 1
	train.EstFront, train.MinSafeFront, train.MaxSafeFront = front, front, front
	snap = m.Evaluate(&set, track, train)
	snap.Changed = true

	in := Input{Speed: 2, EstFront: front, MinSafeFront: front, MaxSafeFront: front, Targets: snap}
	state := e.Update(in)
	assert.Equal(t, ReleaseSpeed, state.Monitoring)
	assert.Equal(t, Indication, state.Supervision)
	assert.Equal(t, snap.Release, state.Permitted)
	assert.False(t, state.Brake.Any())

	in.Speed = snap.Release + 1
	in.Targets.Changed = false
	state = e.Update(in)
	assert.Equal(t, ReleaseSpeed, state.Monitoring)
	assert.Equal(t, Intervention, state.Supervision)
	assert.True(t, state.Brake.EmergencyBrake)
}

func TestTargetSpeedBackToCeiling(t *testing.T) {
	e, m := testEngine(t, Options{})

	speed := 90 * kmh
	target := m.Compute(targets.Target{Kind: targets.KindMRSP, Location: 3000, Speed: 80 * kmh}, speed)
	front := (target.DI + target.DP) / 2
	in := Input{
		Speed: speed, EstFront: front, MinSafeFront: front, MaxSafeFront: front,
		Targets: targets.Snapshot{Targets: []targets.Target{m.Speeds(target, front)}, Ceiling: 100 * kmh, Changed: true},
	}
	require.Equal(t, TargetSpeed, e.Update(in).Monitoring)

	// The target is passed and dropped from the set
	in.EstFront, in.MinSafeFront, in.MaxSafeFront = 3300, 3300, 3300
	in.Speed = 75 * kmh
	in.Targets = targets.Snapshot{Ceiling: 80 * kmh, Changed: true}
	state := e.Update(in)
	assert.Equal(t, CeilingSpeed, state.Monitoring)
	assert.Equal(t, None, state.Supervision)
	assert.Nil(t, state.MRDT)
}

func TestSpeedModelAdvance(t *testing.T) {
	m := DefaultSpeedModel()

	assert.InDelta(t, 10.15, m.Advance(10, 20), 1e-9)
	assert.InDelta(t, 9.85, m.Advance(10, 10.5), 1e-9)
	assert.Equal(t, 0.0, m.Advance(0.1, 0))

	v := 0.0
	for i := 0; i < 500; i++ {
		v = m.Advance(v, 15)
	}
	assert.InDelta(t, 14, v, 0.3)
}

func TestResetClearsState(t *testing.T) {
	e, m := testEngine(t, Options{})
	ceiling := 80 * kmh
	e.Update(ceilingInput(ceiling+m.DVEbi(ceiling)+1, ceiling))
	require.True(t, e.Brake().EmergencyBrake)

	e.Reset()
	assert.Equal(t, CeilingSpeed, e.Monitoring())
	assert.Equal(t, None, e.Supervision())
	assert.False(t, e.Brake().Any())
}
