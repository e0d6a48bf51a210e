package main

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/sim"
)

func TestNewTarget(t *testing.T) {
	dest := r2.Point{X: 20}

	tg, err := newTarget(control.ModePath, r2.Point{}, dest, 20)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if tg.Origin != (r2.Point{}) || tg.Destination != dest || tg.Duration != 20 {
		t.Errorf("path target = %+v", tg)
	}

	tg, err = newTarget(control.ModeWaypoint, r2.Point{X: 5}, dest, 0)
	if err != nil || tg.Mode != control.ModeWaypoint || tg.Destination != dest {
		t.Errorf("waypoint target = %+v, %v", tg, err)
	}

	if _, err := newTarget("orbit", r2.Point{}, dest, 1); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestDefaultScenario_FollowsLineFromOrigin(t *testing.T) {
	tg, err := newTarget(control.ModePath, r2.Point{}, r2.Point{X: 20}, 20)
	if err != nil {
		t.Fatalf("newTarget: %v", err)
	}
	res, err := sim.Run(sim.NewScenario(pose.Pose{X: 0, Y: 2}, tg, 200, 0.1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Starting 2 m off y=0, the fish pulls back onto the line.
	if math.Abs(res.Final.Y) >= 1 || res.Final.X <= 15 {
		t.Errorf("final pose = %+v, want |y| < 1 and x > 15", res.Final)
	}
	if res.Summary.CrossTrackMaxAbs > 2+1e-9 {
		t.Errorf("max cross-track = %v, want <= 2", res.Summary.CrossTrackMaxAbs)
	}
}
