package simulator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneStep(t *testing.T) {
	tests := []struct {
		name string
		zone Zone
		want float64
	}{
		{"heating far below target", Zone{Temp: 25, Target: 60, ActuatorOn: true}, 27},
		{"cooling far above target", Zone{Temp: 25, Target: 4, ActuatorOn: true}, 23},
		{"small gap closes in one step", Zone{Temp: 59, Target: 60, ActuatorOn: true}, 60},
		{"idle drifts toward ambient", Zone{Temp: 65, Target: 60}, 63},
		{"idle cold drifts up", Zone{Temp: 5, Target: 4}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := tt.zone
			z.step(rand.New(rand.NewSource(1)))
			assert.InDelta(t, tt.want, z.Temp, 0.05)
			assert.GreaterOrEqual(t, z.Humidity, 0.0)
			assert.LessOrEqual(t, z.Humidity, 100.0)
		})
	}
}

func TestZoneStepSettledJitters(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	z := Zone{Temp: 60, Target: 60, Humidity: 40, ActuatorOn: true}
	for i := 0; i < 50; i++ {
		z.step(rng)
		assert.InDelta(t, 60, z.Temp, 1.0)
	}
}

func TestBatteryDrain(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	active := &Bag{Hot: Zone{Temp: 25, Target: 60, ActuatorOn: true}, Charge: 50}
	active.Step(rng)
	assert.Equal(t, 49.5, active.Charge)

	idle := &Bag{Hot: Zone{Temp: 25, Target: 60}, Charge: 50}
	idle.Step(rng)
	assert.Equal(t, 49.9, idle.Charge)

	coldOnly := &Bag{Hot: Zone{Temp: 25}, Cold: &Zone{Temp: 25, Target: 4, ActuatorOn: true}, Charge: 50}
	coldOnly.Step(rng)
	assert.Equal(t, 49.5, coldOnly.Charge)

	empty := &Bag{Hot: Zone{Temp: 25, ActuatorOn: true}, Charge: 0.2}
	empty.Step(rng)
	assert.Equal(t, 0.0, empty.Charge)

	charging := &Bag{Hot: Zone{Temp: 25}, Charge: 99.5, IsCharging: true}
	charging.Step(rng)
	assert.Equal(t, 100.0, charging.Charge)
}

func TestVoltageFollowsCharge(t *testing.T) {
	assert.Equal(t, 12.6, (&Bag{Charge: 100}).Voltage())
	assert.Equal(t, 10.5, (&Bag{Charge: 0}).Voltage())

	half := (&Bag{Charge: 50}).Voltage()
	require.Greater(t, half, 10.5)
	assert.Less(t, half, 12.6)
}
