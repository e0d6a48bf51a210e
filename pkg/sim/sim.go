// Package sim closes the loop offline: the heading/speed controller drives
// the bicycle model step by step so tunings can be checked without water.
package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/vehicle"
)

// ErrScenario wraps every scenario validation failure.
var ErrScenario = errors.New("sim: invalid scenario")

// Scenario is one closed-loop run.
type Scenario struct {
	Start       pose.Pose
	Target      *control.Target
	Steps       int
	DT          float64
	Control     control.Config
	Vehicle     vehicle.Model
	Disturbance Disturbance // nil means calm water

	// StopOnArrival ends the run at the first tick inside the arrival radius.
	StopOnArrival bool
}

// NewScenario returns a scenario with the default tuning and model.
func NewScenario(start pose.Pose, target *control.Target, steps int, dt float64) Scenario {
	return Scenario{
		Start:   start,
		Target:  target,
		Steps:   steps,
		DT:      dt,
		Control: control.DefaultConfig(),
		Vehicle: vehicle.DefaultModel(),
	}
}

// Validate checks that the scenario can run.
func (s Scenario) Validate() error {
	if s.Steps <= 0 {
		return fmt.Errorf("%w: steps %d must be positive", ErrScenario, s.Steps)
	}
	if !(s.DT > 0) || math.IsInf(s.DT, 0) {
		return fmt.Errorf("%w: dt %v must be positive", ErrScenario, s.DT)
	}
	if !s.Start.Valid() {
		return fmt.Errorf("%w: start pose is not finite", ErrScenario)
	}
	if err := s.Target.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrScenario, err)
	}
	if err := s.Vehicle.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrScenario, err)
	}
	return nil
}

// Step is one recorded tick: the pose the controller saw and what it did.
type Step struct {
	Index      int            `json:"i"`
	Time       float64        `json:"t"`
	Pose       pose.Pose      `json:"pose"`
	Output     control.Output `json:"output"`
	Distance   float64        `json:"distance"`    // to the destination
	CrossTrack float64        `json:"cross_track"` // signed, + = port of the reference line
}

// Result is a finished run.
type Result struct {
	Trace   []Step    `json:"trace"`
	Final   pose.Pose `json:"final"`
	Summary Summary   `json:"summary"`
}

// Run executes the scenario. Each step runs the controller on the current
// pose, then integrates the model with its output.
func Run(s Scenario) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	ctrl, err := control.New(s.Control)
	if err != nil {
		return Result{}, err
	}
	disturb := s.Disturbance
	if disturb == nil {
		disturb = Calm
	}

	line := referenceLine(s.Start, s.Target)
	var mem control.Memory
	p := s.Start
	trace := make([]Step, 0, s.Steps)

	for i := 0; i < s.Steps; i++ {
		t := float64(i) * s.DT
		out := ctrl.Step(p, s.Target, s.DT, &mem)
		trace = append(trace, Step{
			Index:      i,
			Time:       t,
			Pose:       p,
			Output:     out,
			Distance:   s.Target.Destination.Sub(p.Point()).Norm(),
			CrossTrack: line.crossTrack(p.Point()),
		})
		if out.Arrived && s.StopOnArrival {
			break
		}
		p = s.Vehicle.Advance(p, out.RudderAngle, out.TailAmplitude, s.DT, disturb(i, t))
	}

	res := Result{Trace: trace, Final: p}
	res.Summary = Summarize(trace, s.Target.Destination.Sub(p.Point()).Norm(), s.Control.MaxSteering)
	return res, nil
}

// segment is the line cross-track error is measured against: the path for
// path targets, start to destination for waypoints.
type segment struct {
	origin r2.Point
	dir    r2.Point // unit, zero when degenerate
}

func referenceLine(start pose.Pose, target *control.Target) segment {
	origin := start.Point()
	if target.Mode == control.ModePath {
		origin = target.Origin
	}
	d := target.Destination.Sub(origin)
	if d.Norm() == 0 {
		return segment{origin: origin}
	}
	return segment{origin: origin, dir: d.Normalize()}
}

func (s segment) crossTrack(p r2.Point) float64 {
	return s.dir.Cross(p.Sub(s.origin))
}
