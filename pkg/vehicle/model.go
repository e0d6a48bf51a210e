// Package vehicle integrates the simplified bicycle model used when no
// external pose feed is available.
package vehicle

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-finbot/pkg/pose"
)

// Model is a kinematic bicycle: tail thrust sets forward speed, the rudder
// sets the turn rate.
type Model struct {
	ThrustCoeff float64 `json:"thrust_coeff" yaml:"thrust_coeff"` // k_t: speed per amplitude²
	MaxSpeed    float64 `json:"max_speed" yaml:"max_speed"`       // v_max (m/s)
	Wheelbase   float64 `json:"wheelbase" yaml:"wheelbase"`       // L: rudder to thrust point (m)
}

// DefaultModel returns k_t = 1, v_max = 1.5 m/s, L = 1 m.
func DefaultModel() Model {
	return Model{ThrustCoeff: 1.0, MaxSpeed: 1.5, Wheelbase: 1.0}
}

// Validate checks the model constants.
func (m Model) Validate() error {
	if !(m.ThrustCoeff >= 0) || math.IsInf(m.ThrustCoeff, 0) {
		return fmt.Errorf("vehicle: thrust_coeff %v must be >= 0", m.ThrustCoeff)
	}
	if !(m.MaxSpeed >= 0) || math.IsInf(m.MaxSpeed, 0) {
		return fmt.Errorf("vehicle: max_speed %v must be >= 0", m.MaxSpeed)
	}
	if !(m.Wheelbase > 0) || math.IsInf(m.Wheelbase, 0) {
		return fmt.Errorf("vehicle: wheelbase %v must be positive", m.Wheelbase)
	}
	return nil
}

// Speed returns v = clip(k_t * amplitude², 0, v_max).
func (m Model) Speed(tailAmplitude float64) float64 {
	v := m.ThrustCoeff * tailAmplitude * tailAmplitude
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > m.MaxSpeed {
		return m.MaxSpeed
	}
	return v
}

// Advance integrates one explicit Euler step of length dt. disturbance is
// added to y after the step, for robustness testing; pass 0 otherwise.
// A non-positive dt returns p unchanged.
func (m Model) Advance(p pose.Pose, rudderAngle, tailAmplitude, dt, disturbance float64) pose.Pose {
	if !(dt > 0) {
		return p
	}
	v := m.Speed(tailAmplitude)
	return pose.Pose{
		X:     p.X + v*math.Cos(p.Theta)*dt,
		Y:     p.Y + v*math.Sin(p.Theta)*dt + disturbance,
		Theta: pose.Wrap(p.Theta + (v/m.Wheelbase)*math.Tan(rudderAngle)*dt),
	}
}

// TurnRadius returns the steady turning radius for a rudder angle, or +Inf
// when the rudder is centered.
func (m Model) TurnRadius(rudderAngle float64) float64 {
	t := math.Tan(rudderAngle)
	if t == 0 {
		return math.Inf(1)
	}
	return math.Abs(m.Wheelbase / t)
}
