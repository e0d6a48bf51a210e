package control

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Config holds the controller gains and limits. Angles are radians.
type Config struct {
	Heading Gains `json:"heading" yaml:"heading"`
	Speed   Gains `json:"speed" yaml:"speed"`

	MaxSteering       float64 `json:"max_steering" yaml:"max_steering"`             // rudder limit (± rad)
	MaxTailAmplitude  float64 `json:"max_tail_amplitude" yaml:"max_tail_amplitude"` // amplitude limit
	LookaheadDistance float64 `json:"lookahead_distance" yaml:"lookahead_distance"` // ray length (m)

	// ArrivalRadius ends waypoint seeking once the robot is this close (m).
	// Zero disables it and the robot keeps circling the target.
	ArrivalRadius float64 `json:"arrival_radius" yaml:"arrival_radius"`

	// ThrustCoeff is k_t in thrust = k_t * amplitude², reported with each output.
	ThrustCoeff float64 `json:"thrust_coeff" yaml:"thrust_coeff"`
}

// DefaultConfig returns the path-following tuning.
func DefaultConfig() Config {
	return Config{
		Heading:           Gains{Kp: 3.0, Ki: 0.1, Kd: 0.8},
		Speed:             Gains{Kp: 1.2, Ki: 0.1, Kd: 0.6},
		MaxSteering:       30.0 * math.Pi / 180.0,
		MaxTailAmplitude:  1.5,
		LookaheadDistance: 1.5,
		ArrivalRadius:     0.3,
		ThrustCoeff:       1.0,
	}
}

// PathConfig is the tuning used for following a timed straight path.
func PathConfig() Config {
	return DefaultConfig()
}

// WaypointConfig returns the tuning used for live waypoint seeking, with a
// stronger heading integral and damping.
func WaypointConfig() Config {
	cfg := DefaultConfig()
	cfg.Heading.Ki = 0.5
	cfg.Heading.Kd = 1.0
	return cfg
}

// Validate reports every problem with the config in one error.
func (c Config) Validate() error {
	var problems []string
	if !c.Heading.finite() {
		problems = append(problems, "heading gains must be finite")
	}
	if !c.Speed.finite() {
		problems = append(problems, "speed gains must be finite")
	}
	if !(c.MaxSteering > 0 && c.MaxSteering < math.Pi/2) {
		problems = append(problems, fmt.Sprintf("max_steering %v outside (0, π/2)", c.MaxSteering))
	}
	if !(c.MaxTailAmplitude > 0) || math.IsInf(c.MaxTailAmplitude, 0) {
		problems = append(problems, fmt.Sprintf("max_tail_amplitude %v must be positive", c.MaxTailAmplitude))
	}
	if !(c.LookaheadDistance > 0) || math.IsInf(c.LookaheadDistance, 0) {
		problems = append(problems, fmt.Sprintf("lookahead_distance %v must be positive", c.LookaheadDistance))
	}
	if !(c.ArrivalRadius >= 0) || math.IsInf(c.ArrivalRadius, 0) {
		problems = append(problems, fmt.Sprintf("arrival_radius %v must be >= 0", c.ArrivalRadius))
	}
	if !(c.ThrustCoeff >= 0) || math.IsInf(c.ThrustCoeff, 0) {
		problems = append(problems, fmt.Sprintf("thrust_coeff %v must be >= 0", c.ThrustCoeff))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

var (
	// ErrInvalidConfig wraps every Config validation failure.
	ErrInvalidConfig = errors.New("control: invalid config")
	// ErrInvalidTarget wraps every Target validation failure.
	ErrInvalidTarget = errors.New("control: invalid target")
)
