// Package kinematics computes tail joint positions by planar forward
// kinematics over rigid links of fixed length.
package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/pkg/debug"
	"github.com/teslashibe/go-finbot/pkg/pose"
)

// Composition selects how joint angles combine along the chain.
type Composition string

const (
	// Incremental treats each angle as a bend relative to the previous link.
	Incremental Composition = "incremental"
	// Absolute treats each angle as relative to the origin heading.
	Absolute Composition = "absolute"
)

const (
	// RenormalizeTolerance is the drift above which a link is rescaled.
	RenormalizeTolerance = 1e-12
	// DriftTolerance is the drift above which rescaling is reported as a
	// probable logic error rather than float noise.
	DriftTolerance = 1e-6
	// degenerateLength guards the rescale division.
	degenerateLength = 1e-15
)

// ErrSegmentLength is returned for a non-positive or non-finite link length.
var ErrSegmentLength = errors.New("kinematics: segment length must be positive")

// Chain is a serial chain of equal-length links anchored at the head.
type Chain struct {
	SegmentLength float64
	Mode          Composition

	// direction computes the unit-scaled displacement of a link; swapped in
	// tests to inject drift.
	direction func(angle, length float64) r2.Point
}

// NewChain returns a chain with the given link length and composition mode.
// An empty mode selects Incremental.
func NewChain(segmentLength float64, mode Composition) (*Chain, error) {
	if !(segmentLength > 0) || math.IsInf(segmentLength, 0) {
		return nil, fmt.Errorf("%w: %v", ErrSegmentLength, segmentLength)
	}
	switch mode {
	case "":
		mode = Incremental
	case Incremental, Absolute:
	default:
		return nil, fmt.Errorf("kinematics: unknown composition %q", mode)
	}
	return &Chain{SegmentLength: segmentLength, Mode: mode, direction: polar}, nil
}

func polar(angle, length float64) r2.Point {
	return r2.Point{X: math.Cos(angle), Y: math.Sin(angle)}.Mul(length)
}

// Forward returns the N+1 joint positions for N joint angles in radians.
// Position 0 is the origin; each following link starts at the previous
// position and leaves it at the composed angle. Every link is renormalized
// to exactly SegmentLength.
func (c *Chain) Forward(angles []float64, origin pose.Pose) []r2.Point {
	points := make([]r2.Point, len(angles)+1)
	points[0] = origin.Point()

	cum := origin.Theta
	for i, a := range angles {
		switch c.Mode {
		case Absolute:
			cum = origin.Theta + a
		default:
			cum += a
		}
		d := c.direction(cum, c.SegmentLength)
		points[i+1] = points[i].Add(c.renormalize(d, i))
	}
	return points
}

// ForwardDegrees is Forward for angles in degrees.
func (c *Chain) ForwardDegrees(anglesDeg []float64, origin pose.Pose) []r2.Point {
	rad := make([]float64, len(anglesDeg))
	for i, a := range anglesDeg {
		rad[i] = pose.Radians(a)
	}
	return c.Forward(rad, origin)
}

func (c *Chain) renormalize(d r2.Point, link int) r2.Point {
	length := d.Norm()
	drift := math.Abs(length - c.SegmentLength)
	if drift <= RenormalizeTolerance {
		return d
	}
	if length < degenerateLength {
		return d
	}
	if drift > DriftTolerance {
		debug.Violation("kinematics: link length drift",
			"link", link, "length", length, "want", c.SegmentLength, "drift", drift)
	}
	return d.Mul(c.SegmentLength / length)
}

// Verify returns the largest deviation of any link from SegmentLength.
func (c *Chain) Verify(points []r2.Point) float64 {
	worst := 0.0
	for i := 1; i < len(points); i++ {
		if dev := math.Abs(points[i].Sub(points[i-1]).Norm() - c.SegmentLength); dev > worst {
			worst = dev
		}
	}
	return worst
}

// TailTip returns the last position of a chain, or the zero point.
func TailTip(points []r2.Point) r2.Point {
	if len(points) == 0 {
		return r2.Point{}
	}
	return points[len(points)-1]
}
