// Package pose defines the planar robot pose and a lock-free store for
// publishing it from a sensing goroutine to the control loop.
package pose

import (
	"math"

	"github.com/golang/geo/r2"
)

// Pose is a planar position in meters and a global heading in radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Point returns the position as an r2.Point.
func (p Pose) Point() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// Valid reports whether every field is a finite number.
func (p Pose) Valid() bool {
	return finite(p.X) && finite(p.Y) && finite(p.Theta)
}

// Heading returns theta wrapped to (-π, π].
func (p Pose) Heading() float64 {
	return Wrap(p.Theta)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Wrap maps an angle to (-π, π] using atan2, so comparisons never see
// an unbounded heading.
func Wrap(a float64) float64 {
	w := math.Atan2(math.Sin(a), math.Cos(a))
	if w <= -math.Pi {
		return math.Pi
	}
	return w
}

// AngleDiff returns the signed difference to - from, wrapped to (-π, π].
func AngleDiff(to, from float64) float64 {
	return Wrap(to - from)
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
