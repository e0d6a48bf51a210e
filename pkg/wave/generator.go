package wave

import "math"

// Generator evaluates joint angles. It carries no state; time is the only
// input that changes between ticks.
type Generator struct{}

// NewGenerator returns a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// JointsRadians returns one angle per joint in radians, index 0 nearest
// the head:
//
//	angle_i = dir * A * gain_i * sin(2π f t + m * i * φ)
//
// where m = -1 for head-to-tail propagation and +1 otherwise.
func (g *Generator) JointsRadians(t float64, p Params) []float64 {
	out := make([]float64, len(p.JointGain))
	g.fill(out, t, p)
	return out
}

// Joints returns the joint angles in degrees for the actuator contract.
func (g *Generator) Joints(t float64, p Params) []float64 {
	out := g.JointsRadians(t, p)
	for i := range out {
		out[i] = out[i] * 180.0 / math.Pi
	}
	return out
}

func (g *Generator) fill(out []float64, t float64, p Params) {
	amp := p.AmplitudeDeg * math.Pi / 180.0
	phase := p.PhaseShiftDeg * math.Pi / 180.0
	omega := 2 * math.Pi * p.FrequencyHz
	dir := float64(p.Direction)
	m := p.Direction.phaseMultiplier()

	for i, gain := range p.JointGain {
		out[i] = dir * amp * gain * math.Sin(omega*t+m*float64(i)*phase)
	}
}

// PhaseTerm returns the phase offset applied to joint i, in radians.
func PhaseTerm(i int, p Params) float64 {
	return p.Direction.phaseMultiplier() * float64(i) * p.PhaseShiftDeg * math.Pi / 180.0
}
