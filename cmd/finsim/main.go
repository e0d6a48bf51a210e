// finsim runs a closed-loop scenario against the simulated vehicle and
// prints the trajectory summary as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/sim"
)

func main() {
	mode := flag.String("mode", "path", "target mode: path or waypoint")
	preset := flag.String("preset", "sim", "pilot preset supplying gains, dt and vehicle model")
	x := flag.Float64("x", 0, "start x (m)")
	y := flag.Float64("y", 2, "start y (m)")
	theta := flag.Float64("theta", 0, "start heading (rad)")
	originX := flag.Float64("origin-x", 0, "path origin x (m)")
	originY := flag.Float64("origin-y", 0, "path origin y (m)")
	destX := flag.Float64("dest-x", 20, "destination x (m)")
	destY := flag.Float64("dest-y", 0, "destination y (m)")
	duration := flag.Float64("duration", 20, "path duration (s)")
	steps := flag.Int("steps", 200, "ticks to simulate")
	dt := flag.Float64("dt", 0, "tick period (s); 0 keeps the preset's")
	stop := flag.Bool("stop", false, "stop at arrival (waypoint mode)")
	gustAt := flag.Int("gust-at", -1, "tick of a one-off lateral gust; negative disables")
	gustDY := flag.Float64("gust-dy", 1, "gust displacement (m)")
	swellAmp := flag.Float64("swell", 0, "lateral swell amplitude (m per tick)")
	swellPeriod := flag.Float64("swell-period", 5, "swell period (s)")
	noise := flag.Float64("noise", 0, "lateral noise sigma (m per tick)")
	seed := flag.Int64("seed", 1, "noise seed")
	trace := flag.Bool("trace", false, "include every tick in the output")
	flag.Parse()

	log.Init("warn")

	cfg, err := pilot.Preset(*preset)
	if err != nil {
		fatal(err)
	}
	if *dt > 0 {
		cfg.DT = *dt
	}

	start := pose.Pose{X: *x, Y: *y, Theta: *theta}
	origin := r2.Point{X: *originX, Y: *originY}
	target, err := newTarget(control.Mode(*mode), origin, r2.Point{X: *destX, Y: *destY}, *duration)
	if err != nil {
		fatal(err)
	}

	s := sim.NewScenario(start, target, *steps, cfg.DT)
	s.Control = cfg.Control
	s.Vehicle = cfg.Vehicle
	s.StopOnArrival = *stop

	var ds []sim.Disturbance
	if *gustAt >= 0 {
		ds = append(ds, sim.Gust(*gustAt, *gustDY))
	}
	if *swellAmp != 0 {
		ds = append(ds, sim.Swell(*swellAmp, *swellPeriod))
	}
	if *noise > 0 {
		ds = append(ds, sim.Noise(*seed, *noise))
	}
	if len(ds) > 0 {
		s.Disturbance = sim.Sum(ds...)
	}

	res, err := sim.Run(s)
	if err != nil {
		fatal(err)
	}
	if !*trace {
		res.Trace = nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fatal(err)
	}
}

// newTarget builds the scenario target. A path runs from origin, not from
// the start pose, so the start may sit off the line.
func newTarget(mode control.Mode, origin, dest r2.Point, duration float64) (*control.Target, error) {
	switch mode {
	case control.ModePath:
		return control.NewPathTarget(origin, dest, duration), nil
	case control.ModeWaypoint:
		return control.NewWaypointTarget(dest), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "finsim:", err)
	os.Exit(1)
}
