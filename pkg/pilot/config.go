// Package pilot runs the fixed-cadence control loop: it reads the latest
// pose, steps the heading/speed controller, generates the tail wave and
// pushes one servo command per tick to the actuator sink.
package pilot

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/kinematics"
	"github.com/teslashibe/go-finbot/pkg/vehicle"
	"github.com/teslashibe/go-finbot/pkg/wave"
)

// StalePolicy decides what the loop commands when no fresh pose is available.
type StalePolicy string

const (
	// StaleNeutral centers the rudder and stops the tail.
	StaleNeutral StalePolicy = "neutral"
	// StaleHold repeats the last computed output.
	StaleHold StalePolicy = "hold"
)

var (
	// ErrInvalidDT is returned for a non-positive or non-finite timestep.
	ErrInvalidDT = errors.New("pilot: dt must be positive")
	// ErrInvalidConfig wraps every other validation failure.
	ErrInvalidConfig = errors.New("pilot: invalid config")
	// ErrUnknownPreset is returned by Preset for an unknown name.
	ErrUnknownPreset = errors.New("pilot: unknown preset")
	// ErrNoTarget is returned when an operation needs a target and none is set.
	ErrNoTarget = errors.New("pilot: no target set")
	// ErrJointCount is returned when new wave params would resize the tail.
	ErrJointCount = errors.New("pilot: joint count is fixed at startup")
)

// Config is everything the loop needs. DT is both the ticker period and the
// timestep the PID integral and derivative use, so the two always agree.
type Config struct {
	DT            float64                `json:"dt" yaml:"dt"` // seconds
	Control       control.Config         `json:"control" yaml:"control"`
	Wave          wave.Params            `json:"wave" yaml:"wave"`
	SegmentLength float64                `json:"segment_length" yaml:"segment_length"` // m
	Composition   kinematics.Composition `json:"composition" yaml:"composition"`
	Vehicle       vehicle.Model          `json:"vehicle" yaml:"vehicle"`

	// PoseTimeout is how old a pose may be before it counts as missing (s).
	// Zero never expires a pose.
	PoseTimeout float64     `json:"pose_timeout" yaml:"pose_timeout"`
	StalePolicy StalePolicy `json:"stale_policy" yaml:"stale_policy"`
}

// DefaultConfig is the simulation tuning: 10 Hz, path-following gains.
func DefaultConfig() Config {
	return Config{
		DT:            0.1,
		Control:       control.PathConfig(),
		Wave:          wave.DefaultParams(),
		SegmentLength: 1.0,
		Composition:   kinematics.Incremental,
		Vehicle:       vehicle.DefaultModel(),
		PoseTimeout:   0.5,
		StalePolicy:   StaleNeutral,
	}
}

// PoolConfig is the tuning for the physical robot: 20 Hz, waypoint gains,
// the gentler cruise wave and 6 cm tail links.
func PoolConfig() Config {
	cfg := DefaultConfig()
	cfg.DT = 0.05
	cfg.Control = control.WaypointConfig()
	cfg.Wave = wave.CruiseParams()
	cfg.SegmentLength = 0.06
	cfg.PoseTimeout = 0.3
	return cfg
}

var presets = map[string]func() Config{
	"default": DefaultConfig,
	"sim":     DefaultConfig,
	"pool":    PoolConfig,
}

// Preset returns a named configuration.
func Preset(name string) (Config, error) {
	if name == "" {
		name = "default"
	}
	fn, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("%w %q (have %s)", ErrUnknownPreset, name, strings.Join(PresetNames(), ", "))
	}
	return fn(), nil
}

// PresetNames lists the preset names in order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadConfig reads a YAML file. The optional top-level "preset" key picks
// the base configuration; every other key present overrides it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig for in-memory YAML.
func ParseConfig(data []byte) (Config, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg, err := Preset(head.Preset)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a configuration the loop cannot run. A bad DT is
// reported as ErrInvalidDT so startup can fail with a precise message.
func (c Config) Validate() error {
	if !(c.DT > 0) || math.IsInf(c.DT, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidDT, c.DT)
	}

	var problems []string
	if err := c.Control.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.Wave.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.Vehicle.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := kinematics.NewChain(c.SegmentLength, c.Composition); err != nil {
		problems = append(problems, err.Error())
	}
	if !(c.PoseTimeout >= 0) {
		problems = append(problems, fmt.Sprintf("pose_timeout %v must be >= 0", c.PoseTimeout))
	}
	switch c.StalePolicy {
	case StaleNeutral, StaleHold, "":
	default:
		problems = append(problems, fmt.Sprintf("stale_policy %q must be neutral or hold", c.StalePolicy))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
