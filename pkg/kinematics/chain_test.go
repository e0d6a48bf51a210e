package kinematics

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/pkg/debug"
	"github.com/teslashibe/go-finbot/pkg/pose"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func mustChain(t *testing.T, seg float64, mode Composition) *Chain {
	t.Helper()
	c, err := NewChain(seg, mode)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

func TestNewChain_Invalid(t *testing.T) {
	for _, seg := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := NewChain(seg, Incremental); !errors.Is(err, ErrSegmentLength) {
			t.Errorf("NewChain(%v) error = %v, want ErrSegmentLength", seg, err)
		}
	}
	if _, err := NewChain(1, "sideways"); err == nil {
		t.Error("unknown composition should fail")
	}
	c := mustChain(t, 1, "")
	if c.Mode != Incremental {
		t.Errorf("default mode = %q, want incremental", c.Mode)
	}
}

func TestForward_Straight(t *testing.T) {
	c := mustChain(t, 1, Incremental)
	pts := c.Forward(make([]float64, 6), pose.Pose{X: 2, Y: -1})
	if len(pts) != 7 {
		t.Fatalf("len = %d, want 7", len(pts))
	}
	for i, p := range pts {
		if !floatEquals(p.X, 2+float64(i)) || !floatEquals(p.Y, -1) {
			t.Errorf("point %d = %v", i, p)
		}
	}
}

func TestForward_IncrementalVsAbsolute(t *testing.T) {
	angles := []float64{math.Pi / 2, math.Pi / 2}

	inc := mustChain(t, 1, Incremental).Forward(angles, pose.Pose{})
	// up one, then bent back along -x
	if !floatEquals(inc[1].X, 0) || !floatEquals(inc[1].Y, 1) {
		t.Errorf("incremental p1 = %v", inc[1])
	}
	if !floatEquals(inc[2].X, -1) || !floatEquals(inc[2].Y, 1) {
		t.Errorf("incremental p2 = %v", inc[2])
	}

	abs := mustChain(t, 1, Absolute).Forward(angles, pose.Pose{})
	if !floatEquals(abs[2].X, 0) || !floatEquals(abs[2].Y, 2) {
		t.Errorf("absolute p2 = %v", abs[2])
	}
}

func TestForward_OriginHeading(t *testing.T) {
	c := mustChain(t, 0.5, Incremental)
	pts := c.Forward([]float64{0}, pose.Pose{Theta: math.Pi})
	if !floatEquals(pts[1].X, -0.5) || !floatEquals(pts[1].Y, 0) {
		t.Errorf("p1 = %v, want (-0.5, 0)", pts[1])
	}
}

func TestForward_LinkLengthInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, mode := range []Composition{Incremental, Absolute} {
		for _, seg := range []float64{1, 0.037, 12.5} {
			c := mustChain(t, seg, mode)
			for trial := 0; trial < 200; trial++ {
				angles := make([]float64, 1+rng.Intn(12))
				for i := range angles {
					angles[i] = (rng.Float64()*2 - 1) * 4 * math.Pi
				}
				origin := pose.Pose{X: rng.Float64() * 100, Y: rng.Float64() * 100, Theta: rng.Float64() * 10}
				pts := c.Forward(angles, origin)
				for i := 1; i < len(pts); i++ {
					d := pts[i].Sub(pts[i-1]).Norm()
					if math.Abs(d-seg) > 1e-9 {
						t.Fatalf("%s seg=%v link %d length %v", mode, seg, i, d)
					}
				}
				if dev := c.Verify(pts); dev > 1e-9 {
					t.Fatalf("Verify = %v", dev)
				}
			}
		}
	}
}

func TestForwardDegrees(t *testing.T) {
	c := mustChain(t, 1, Incremental)
	a := c.ForwardDegrees([]float64{90, -90}, pose.Pose{})
	b := c.Forward([]float64{math.Pi / 2, -math.Pi / 2}, pose.Pose{})
	for i := range a {
		if !floatEquals(a[i].X, b[i].X) || !floatEquals(a[i].Y, b[i].Y) {
			t.Errorf("point %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRenormalize_SmallDriftCorrected(t *testing.T) {
	c := mustChain(t, 1, Incremental)
	c.direction = func(angle, length float64) r2.Point {
		return polar(angle, length*(1+1e-9))
	}
	pts := c.Forward([]float64{0.3, -0.2, 0.1}, pose.Pose{})
	if dev := c.Verify(pts); dev > 1e-12 {
		t.Errorf("drift not corrected: %v", dev)
	}
}

func TestRenormalize_LargeDriftReportedInStrict(t *testing.T) {
	c := mustChain(t, 1, Incremental)
	c.direction = func(angle, length float64) r2.Point {
		return polar(angle, length*1.01)
	}

	debug.Strict = true
	defer func() { debug.Strict = false }()
	defer func() {
		if recover() == nil {
			t.Error("large drift should panic in strict mode")
		}
	}()
	c.Forward([]float64{0.1}, pose.Pose{})
}

func TestRenormalize_LargeDriftCorrectedInProduction(t *testing.T) {
	c := mustChain(t, 2, Incremental)
	c.direction = func(angle, length float64) r2.Point {
		return polar(angle, length*1.5)
	}
	pts := c.Forward([]float64{0.1, 0.2}, pose.Pose{})
	if dev := c.Verify(pts); dev > 1e-9 {
		t.Errorf("large drift not corrected: %v", dev)
	}
}

func TestRenormalize_DegenerateSkipped(t *testing.T) {
	c := mustChain(t, 1, Incremental)
	c.direction = func(float64, float64) r2.Point { return r2.Point{} }
	pts := c.Forward([]float64{0, 0}, pose.Pose{X: 3})
	for i, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			t.Fatalf("point %d is NaN", i)
		}
		if p.X != 3 || p.Y != 0 {
			t.Errorf("point %d = %v, want (3,0)", i, p)
		}
	}
}

func TestTailTip(t *testing.T) {
	if TailTip(nil) != (r2.Point{}) {
		t.Error("TailTip(nil) should be zero")
	}
	pts := mustChain(t, 1, Incremental).Forward([]float64{0, 0, 0}, pose.Pose{})
	if tip := TailTip(pts); !floatEquals(tip.X, 3) {
		t.Errorf("TailTip = %v", tip)
	}
}
