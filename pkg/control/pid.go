// Package control implements the heading/speed controller: a lookahead
// heading error and a progress error, each fed to a clamped PID loop.
package control

import "math"

// Gains are the PID coefficients of one loop.
type Gains struct {
	Kp float64 `json:"kp" yaml:"kp"`
	Ki float64 `json:"ki" yaml:"ki"`
	Kd float64 `json:"kd" yaml:"kd"`
}

func (g Gains) finite() bool {
	return isFinite(g.Kp) && isFinite(g.Ki) && isFinite(g.Kd)
}

// Eval computes one PID step for error e over dt. It returns the raw
// (unclamped) output and the updated integral; the caller commits state.
//
//	out = Kp*e + Ki*∫e dt + Kd*(e - prev)/dt
//
// The integral accumulates unconditionally. There is no anti-windup beyond
// the clamp the caller applies to out.
func (g Gains) Eval(e, dt, integral, prev float64) (out, nextIntegral float64) {
	nextIntegral = integral + e*dt
	p := g.Kp * e
	i := g.Ki * nextIntegral
	d := g.Kd * (e - prev) / dt
	return p + i + d, nextIntegral
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
