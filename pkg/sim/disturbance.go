package sim

import (
	"math"
	"math/rand"
)

// Disturbance returns the lateral offset (m) added to y after step i at
// time t. Implementations must be deterministic for a given seed.
type Disturbance func(i int, t float64) float64

// Calm adds nothing.
func Calm(int, float64) float64 { return 0 }

// Constant pushes the robot sideways by dy every step, like a steady current.
func Constant(dy float64) Disturbance {
	return func(int, float64) float64 { return dy }
}

// Gust applies a single push of dy at step `at`.
func Gust(at int, dy float64) Disturbance {
	return func(i int, _ float64) float64 {
		if i == at {
			return dy
		}
		return 0
	}
}

// Swell is a sinusoidal push of the given amplitude (m) and period (s).
func Swell(amplitude, period float64) Disturbance {
	if period <= 0 {
		return Calm
	}
	return func(_ int, t float64) float64 {
		return amplitude * math.Sin(2*math.Pi*t/period)
	}
}

// Noise adds zero-mean gaussian pushes with standard deviation sigma.
func Noise(seed int64, sigma float64) Disturbance {
	rng := rand.New(rand.NewSource(seed))
	return func(int, float64) float64 {
		return rng.NormFloat64() * sigma
	}
}

// Sum adds several disturbances together.
func Sum(ds ...Disturbance) Disturbance {
	return func(i int, t float64) float64 {
		var total float64
		for _, d := range ds {
			total += d(i, t)
		}
		return total
	}
}
