package pilot

import (
	"math"

	"github.com/teslashibe/go-finbot/pkg/control"
)

// Joystick mapping for manual drive.
const (
	ManualMaxSteerDeg  = 30.0
	ManualBaseFreqHz   = 0.8
	ManualFreqPerUnitY = 1.4
	ManualMinFreqHz    = 0.3
	ManualMaxFreqHz    = 1.5
	manualDeadZone     = 0.05
)

// Manual is a joystick deflection. X in [-1, 1] steers (+ = starboard),
// Y in [-0.5, 0.5] speeds the tail up or down.
type Manual struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both axes are finite.
func (m Manual) Valid() bool {
	return !math.IsNaN(m.X) && !math.IsInf(m.X, 0) && !math.IsNaN(m.Y) && !math.IsInf(m.Y, 0)
}

// Steering returns the rudder angle in radians, limited to maxSteering.
func (m Manual) Steering(maxSteering float64) float64 {
	rad := clamp(m.X, -1, 1) * ManualMaxSteerDeg * math.Pi / 180.0
	return clamp(rad, -maxSteering, maxSteering)
}

// Frequency returns the tail frequency for the Y axis. Inside the dead
// zone the configured base frequency is kept.
func (m Manual) Frequency(base float64) float64 {
	if math.Abs(m.Y) <= manualDeadZone {
		return base
	}
	return clamp(ManualBaseFreqHz+m.Y*ManualFreqPerUnitY, ManualMinFreqHz, ManualMaxFreqHz)
}

// output drives the tail at full amplitude with the joystick rudder.
func (m Manual) output(cfg control.Config) control.Output {
	amp := cfg.MaxTailAmplitude
	return control.Output{
		RudderAngle:    m.Steering(cfg.MaxSteering),
		TailAmplitude:  amp,
		ThrustEstimate: cfg.ThrustCoeff * amp * amp,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
