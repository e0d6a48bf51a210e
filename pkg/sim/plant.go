package sim

import (
	"sync"

	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/vehicle"
)

// PlantSource tags poses published by a Plant.
const PlantSource = "sim"

// Plant stands in for the water and the localization rig when the daemon
// runs without hardware. It is both the loop's pose source and an observer:
// after every tick it integrates the model with that tick's output.
type Plant struct {
	*pose.Store

	model   vehicle.Model
	dt      float64
	disturb Disturbance

	mu   sync.Mutex
	step int
}

// NewPlant publishes start and returns a plant stepping by dt.
func NewPlant(model vehicle.Model, dt float64, start pose.Pose, d Disturbance) *Plant {
	if d == nil {
		d = Calm
	}
	p := &Plant{Store: pose.NewStore(), model: model, dt: dt, disturb: d}
	p.Publish(start, PlantSource)
	return p
}

// Observe advances the model with the tick's rudder and tail amplitude.
func (p *Plant) Observe(s pilot.Snapshot) {
	cur, ok := p.Latest()
	if !ok {
		return
	}
	p.mu.Lock()
	i := p.step
	p.step++
	p.mu.Unlock()

	next := p.model.Advance(cur.Pose, s.Output.RudderAngle, s.Output.TailAmplitude, p.dt, p.disturb(i, s.Time))
	p.Publish(next, PlantSource)
}
