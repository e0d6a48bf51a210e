// Package wave generates the traveling-wave joint angles that drive the tail.
package wave

import (
	"errors"
	"fmt"
	"math"
)

// Direction selects which way the wave travels along the tail.
type Direction int

const (
	// HeadToTail propagates peaks from joint 0 toward the tail tip.
	HeadToTail Direction = 1
	// TailToHead reverses propagation.
	TailToHead Direction = -1
)

func (d Direction) String() string {
	switch d {
	case HeadToTail:
		return "head-to-tail"
	case TailToHead:
		return "tail-to-head"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// phaseMultiplier is the sign applied to the per-joint phase lag. Head-to-tail
// subtracts lag with joint index so crests move toward the tip.
func (d Direction) phaseMultiplier() float64 {
	if d == HeadToTail {
		return -1
	}
	return 1
}

// Firmware defaults for the six-joint tail.
const (
	DefaultAmplitudeDeg  = 25.0
	DefaultFrequencyHz   = 1.0
	DefaultPhaseShiftDeg = 30.0
	DefaultJoints        = 6
)

var (
	ErrDirection = errors.New("wave: direction must be +1 or -1")
	ErrFrequency = errors.New("wave: frequency must be finite and >= 0")
	ErrNoJoints  = errors.New("wave: at least one joint gain is required")
	ErrNonFinite = errors.New("wave: amplitude, phase shift and gains must be finite")
)

// Params configures the wave. Gains are user-tunable and deliberately not
// range-checked; values above 1 amplify a joint beyond the global amplitude.
type Params struct {
	AmplitudeDeg  float64   `json:"amplitude_deg" yaml:"amplitude_deg"`
	FrequencyHz   float64   `json:"frequency_hz" yaml:"frequency_hz"`
	PhaseShiftDeg float64   `json:"phase_shift_deg" yaml:"phase_shift_deg"`
	Direction     Direction `json:"direction" yaml:"direction"`
	JointGain     []float64 `json:"joint_gain" yaml:"joint_gain"`
}

// DefaultParams returns the tuned firmware wave: 25°, 1 Hz, 30° lag and
// gains rising from 0.2 at the head to 1.2 at the tip.
func DefaultParams() Params {
	return Params{
		AmplitudeDeg:  DefaultAmplitudeDeg,
		FrequencyHz:   DefaultFrequencyHz,
		PhaseShiftDeg: DefaultPhaseShiftDeg,
		Direction:     HeadToTail,
		JointGain:     []float64{0.2, 0.4, 0.6, 0.8, 1.0, 1.2},
	}
}

// CruiseParams is the gentler wave used by the manual drive dashboard.
func CruiseParams() Params {
	p := DefaultParams()
	p.AmplitudeDeg = 15
	p.FrequencyHz = 0.8
	p.PhaseShiftDeg = 60
	return p
}

// UniformGains returns n gains of 1.
func UniformGains(n int) []float64 {
	g := make([]float64, n)
	for i := range g {
		g[i] = 1
	}
	return g
}

// Joints returns the number of joints the params drive.
func (p Params) Joints() int {
	return len(p.JointGain)
}

// Validate checks the fields the generator cannot work around.
func (p Params) Validate() error {
	if p.Direction != HeadToTail && p.Direction != TailToHead {
		return ErrDirection
	}
	if math.IsNaN(p.FrequencyHz) || math.IsInf(p.FrequencyHz, 0) || p.FrequencyHz < 0 {
		return ErrFrequency
	}
	if len(p.JointGain) == 0 {
		return ErrNoJoints
	}
	if !finite(p.AmplitudeDeg) || !finite(p.PhaseShiftDeg) {
		return ErrNonFinite
	}
	for _, g := range p.JointGain {
		if !finite(g) {
			return ErrNonFinite
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clone returns a deep copy so callers can hand params across goroutines.
func (p Params) Clone() Params {
	c := p
	c.JointGain = append([]float64(nil), p.JointGain...)
	return c
}

// WithAmplitude returns a copy with the global amplitude replaced.
func (p Params) WithAmplitude(deg float64) Params {
	c := p.Clone()
	c.AmplitudeDeg = deg
	return c
}

// ScaleAmplitude maps a controller tail amplitude in [0, max] onto the
// configured wave envelope. Out-of-range inputs saturate.
func (p Params) ScaleAmplitude(tailAmplitude, maxTailAmplitude float64) Params {
	if maxTailAmplitude <= 0 {
		return p.WithAmplitude(0)
	}
	ratio := tailAmplitude / maxTailAmplitude
	if ratio < 0 || math.IsNaN(ratio) {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	return p.WithAmplitude(p.AmplitudeDeg * ratio)
}
