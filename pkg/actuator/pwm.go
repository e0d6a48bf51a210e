// Package actuator maps control output to hobby-servo pulse widths and
// delivers per-tick commands to the actuation bridge without blocking the
// control loop.
package actuator

import "math"

// Hobby-servo pulse convention: 1500µs centered, ±500µs per 90°.
const (
	CenterPulseUs = 1500.0
	PulsePer90Us  = 500.0
	MinPulseUs    = 1000.0
	MaxPulseUs    = 2000.0
)

// PulseWidth returns 1500 + (deg/90)*500 µs, saturated to [1000, 2000].
// NaN yields the center pulse; ±Inf saturate like any other angle.
func PulseWidth(angleDeg float64) float64 {
	if math.IsNaN(angleDeg) {
		return CenterPulseUs
	}
	pw := CenterPulseUs + (angleDeg/90.0)*PulsePer90Us
	if pw < MinPulseUs {
		return MinPulseUs
	}
	if pw > MaxPulseUs {
		return MaxPulseUs
	}
	return pw
}

// AngleFromPulse inverts PulseWidth for pulses inside the servo range.
func AngleFromPulse(pulseUs float64) float64 {
	return (pulseUs - CenterPulseUs) / PulsePer90Us * 90.0
}
