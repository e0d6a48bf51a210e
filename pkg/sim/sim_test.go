package sim

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/pose"
)

func TestRun_PathEndToEnd(t *testing.T) {
	target := control.NewPathTarget(r2.Point{X: 0, Y: 0}, r2.Point{X: 20, Y: 0}, 20)
	s := NewScenario(pose.Pose{X: 0, Y: 2, Theta: 0}, target, 200, 0.1)

	res, err := Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if math.Abs(res.Final.Y) >= 1 {
		t.Errorf("final y: got %v, want |y| < 1", res.Final.Y)
	}
	if res.Final.X <= 15 {
		t.Errorf("final x: got %v, want > 15", res.Final.X)
	}
	if len(res.Trace) != 200 {
		t.Errorf("trace len: got %d, want 200", len(res.Trace))
	}
	if res.Summary.Faults != 0 {
		t.Errorf("faults: got %d, want 0", res.Summary.Faults)
	}
	// The start is 2 m off the line; the max deviation is the start itself.
	if res.Summary.CrossTrackMaxAbs > 2+1e-9 {
		t.Errorf("max cross-track: got %v, want <= 2", res.Summary.CrossTrackMaxAbs)
	}
}

func TestRun_WaypointConverges(t *testing.T) {
	target := control.NewWaypointTarget(r2.Point{X: 10, Y: 0})
	s := NewScenario(pose.Pose{}, target, 200, 0.1)

	res, err := Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Summary.Arrived {
		t.Fatal("expected to arrive within 200 steps")
	}
	if res.Summary.FinalDistance > s.Control.ArrivalRadius {
		t.Errorf("final distance: got %v, want <= %v", res.Summary.FinalDistance, s.Control.ArrivalRadius)
	}
	for _, st := range res.Trace {
		if math.Abs(st.Output.HeadingError) > 1e-9 {
			t.Fatalf("step %d: heading error %v, want ~0 on a straight approach", st.Index, st.Output.HeadingError)
		}
	}

	means := WindowMeans(Distances(res.Trace), 20)
	for i := 1; i < len(means); i++ {
		if means[i] > means[i-1]+1e-9 {
			t.Errorf("window %d mean %v rose above window %d mean %v", i, means[i], i-1, means[i-1])
		}
	}
}

func TestRun_StopOnArrival(t *testing.T) {
	s := NewScenario(pose.Pose{}, control.NewWaypointTarget(r2.Point{X: 10, Y: 0}), 200, 0.1)
	s.StopOnArrival = true

	res, err := Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := res.Trace[len(res.Trace)-1]
	if !last.Output.Arrived {
		t.Error("last step should be the arrival")
	}
	if res.Summary.ArrivedStep != len(res.Trace)-1 {
		t.Errorf("ArrivedStep: got %d, want %d", res.Summary.ArrivedStep, len(res.Trace)-1)
	}
}

func TestRun_RecoversFromGust(t *testing.T) {
	target := control.NewPathTarget(r2.Point{}, r2.Point{X: 20, Y: 0}, 20)
	s := NewScenario(pose.Pose{}, target, 200, 0.1)
	s.Disturbance = Gust(50, 1.0)

	res, err := Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if math.Abs(res.Final.Y) >= 1 {
		t.Errorf("final y after gust: got %v, want |y| < 1", res.Final.Y)
	}
	if res.Summary.CrossTrackMaxAbs < 0.5 {
		t.Errorf("max cross-track %v: gust did not register", res.Summary.CrossTrackMaxAbs)
	}
}

func TestScenario_Validate(t *testing.T) {
	good := NewScenario(pose.Pose{}, control.NewWaypointTarget(r2.Point{X: 1}), 10, 0.1)
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"zero steps", func(s *Scenario) { s.Steps = 0 }},
		{"zero dt", func(s *Scenario) { s.DT = 0 }},
		{"nan start", func(s *Scenario) { s.Start.X = math.NaN() }},
		{"nil target", func(s *Scenario) { s.Target = nil }},
		{"bad vehicle", func(s *Scenario) { s.Vehicle.Wheelbase = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			tt.mutate(&s)
			if _, err := Run(s); !errors.Is(err, ErrScenario) {
				t.Errorf("got %v, want ErrScenario", err)
			}
		})
	}
}

func TestDisturbances(t *testing.T) {
	if Calm(3, 0.3) != 0 {
		t.Error("Calm should be zero")
	}
	if Constant(0.2)(7, 0.7) != 0.2 {
		t.Error("Constant should return its value")
	}
	g := Gust(5, 1)
	if g(4, 0) != 0 || g(5, 0) != 1 || g(6, 0) != 0 {
		t.Error("Gust should fire once at its step")
	}
	if v := Swell(1, 4)(0, 1); math.Abs(v-1) > 1e-12 {
		t.Errorf("Swell quarter period: got %v, want 1", v)
	}
	a, b := Noise(42, 0.1), Noise(42, 0.1)
	for i := 0; i < 5; i++ {
		if a(i, 0) != b(i, 0) {
			t.Fatal("Noise with the same seed should repeat")
		}
	}
	if Sum(Constant(1), Constant(2))(0, 0) != 3 {
		t.Error("Sum should add")
	}
}

func TestWindowMeans(t *testing.T) {
	got := WindowMeans([]float64{1, 3, 5, 7, 9}, 2)
	want := []float64{2, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if WindowMeans([]float64{1}, 0) != nil {
		t.Error("non-positive window should return nil")
	}
}

func TestPlant_DrivesLoop(t *testing.T) {
	cfg := pilot.DefaultConfig()
	plant := NewPlant(cfg.Vehicle, cfg.DT, pose.Pose{}, nil)
	loop, err := pilot.New(cfg, plant, nil, plant)
	if err != nil {
		t.Fatalf("pilot.New: %v", err)
	}
	if err := loop.SetTarget(control.NewWaypointTarget(r2.Point{X: 10, Y: 0})); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}

	for i := 0; i < 200; i++ {
		loop.Tick(time.Now())
	}

	s, _ := plant.Latest()
	dest := r2.Point{X: 10}
	if d := dest.Sub(s.Pose.Point()).Norm(); d > cfg.Control.ArrivalRadius {
		t.Errorf("distance after 200 ticks: got %v, want <= %v", d, cfg.Control.ArrivalRadius)
	}
	if s.Source != PlantSource {
		t.Errorf("source: got %q, want %q", s.Source, PlantSource)
	}
}
