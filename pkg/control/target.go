package control

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Mode selects how a Target is pursued.
type Mode string

const (
	// ModePath follows the line from Origin to Destination, with progress
	// scheduled linearly over Duration.
	ModePath Mode = "path"
	// ModeWaypoint steers straight at Destination.
	ModeWaypoint Mode = "waypoint"
)

// Target is read-only once handed to the controller; replace it whole to
// change course.
type Target struct {
	Mode        Mode
	Origin      r2.Point
	Destination r2.Point
	Duration    float64 // seconds to traverse the path (ModePath only)
}

// NewPathTarget returns a path from origin to destination traversed in
// duration seconds.
func NewPathTarget(origin, destination r2.Point, duration float64) *Target {
	return &Target{Mode: ModePath, Origin: origin, Destination: destination, Duration: duration}
}

// NewWaypointTarget returns a point to seek.
func NewWaypointTarget(p r2.Point) *Target {
	return &Target{Mode: ModeWaypoint, Destination: p}
}

// Validate checks that the target can be pursued.
func (t *Target) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil", ErrInvalidTarget)
	}
	if !finitePoint(t.Destination) || !finitePoint(t.Origin) {
		return fmt.Errorf("%w: coordinates must be finite", ErrInvalidTarget)
	}
	switch t.Mode {
	case ModeWaypoint:
		return nil
	case ModePath:
		if t.Destination.Sub(t.Origin).Norm() == 0 {
			return fmt.Errorf("%w: path origin equals destination", ErrInvalidTarget)
		}
		if !(t.Duration > 0) || math.IsInf(t.Duration, 0) {
			return fmt.Errorf("%w: path duration %v must be positive", ErrInvalidTarget, t.Duration)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidTarget, t.Mode)
	}
}

// Length returns the path length, or 0 for a waypoint.
func (t *Target) Length() float64 {
	if t.Mode != ModePath {
		return 0
	}
	return t.Destination.Sub(t.Origin).Norm()
}

func finitePoint(p r2.Point) bool {
	return isFinite(p.X) && isFinite(p.Y)
}
