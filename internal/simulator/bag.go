package simulator

import (
	"math"
	"math/rand"

	"github.com/septivank/smartbag-service/internal/device"
)

const (
	ambientTemp = 25.0

	maxStepPerTick = 2.0
	settledBand    = 0.5
	ambientPull    = 0.05

	activeDrain = 0.5
	idleDrain   = 0.1
	chargeRate  = 1.0

	emptyVoltage = 10.5
	fullVoltage  = 12.6
)

// Zone is the simulated physical state of one compartment
type Zone struct {
	Temp       float64
	Target     float64
	Humidity   float64
	ActuatorOn bool
}

// Bag is the simulated physical state of a bag
type Bag struct {
	Hot        Zone
	Cold       *Zone
	Charge     float64
	IsCharging bool
}

// NewBag starts from the state the server reported
func NewBag(d *device.Device) *Bag {
	b := &Bag{
		Hot: Zone{
			Temp:       d.HotZone.CurrentTemp,
			Target:     d.HotZone.TargetTemp,
			Humidity:   d.HotZone.Humidity,
			ActuatorOn: d.HotZone.HeaterOn,
		},
		Charge:     d.Battery.ChargeLevel,
		IsCharging: d.Battery.IsCharging,
	}
	if d.ColdZone != nil {
		b.Cold = &Zone{
			Temp:       d.ColdZone.CurrentTemp,
			Target:     d.ColdZone.TargetTemp,
			Humidity:   d.ColdZone.Humidity,
			ActuatorOn: d.ColdZone.CoolerOn,
		}
	}
	return b
}

// Apply takes the owner's latest settings without touching measured values
func (b *Bag) Apply(d *device.Device) {
	b.Hot.Target = d.HotZone.TargetTemp
	b.Hot.ActuatorOn = d.HotZone.HeaterOn
	if b.Cold != nil && d.ColdZone != nil {
		b.Cold.Target = d.ColdZone.TargetTemp
		b.Cold.ActuatorOn = d.ColdZone.CoolerOn
	}
}

// Step advances the bag by one tick
func (b *Bag) Step(rng *rand.Rand) {
	b.Hot.step(rng)
	active := b.Hot.ActuatorOn
	if b.Cold != nil {
		b.Cold.step(rng)
		active = active || b.Cold.ActuatorOn
	}

	switch {
	case b.IsCharging:
		b.Charge += chargeRate
	case active:
		b.Charge -= activeDrain
	default:
		b.Charge -= idleDrain
	}
	b.Charge = round1(clamp(b.Charge, 0, 100))
}

// Voltage is derived from the charge level
func (b *Bag) Voltage() float64 {
	return round1(emptyVoltage + (fullVoltage-emptyVoltage)*b.Charge/100)
}

func (z *Zone) step(rng *rand.Rand) {
	if z.ActuatorOn {
		diff := z.Target - z.Temp
		if math.Abs(diff) < settledBand {
			z.Temp += (rng.Float64() - 0.5) * 0.4
		} else {
			z.Temp += clamp(diff, -maxStepPerTick, maxStepPerTick)
		}
	} else {
		z.Temp += (ambientTemp - z.Temp) * ambientPull
	}
	z.Temp = round1(z.Temp)
	z.Humidity = round1(clamp(z.Humidity+(rng.Float64()-0.5)*2, 0, 100))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
