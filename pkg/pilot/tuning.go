package pilot

import (
	"math"

	"github.com/teslashibe/go-finbot/pkg/control"
)

// TuningParams holds the controller parameters adjustable while running.
// Angles are degrees here since they come from the dashboard.
type TuningParams struct {
	HeadingKp float64 `json:"heading_kp"`
	HeadingKi float64 `json:"heading_ki"`
	HeadingKd float64 `json:"heading_kd"`
	SpeedKp   float64 `json:"speed_kp"`
	SpeedKi   float64 `json:"speed_ki"`
	SpeedKd   float64 `json:"speed_kd"`

	MaxSteeringDeg    float64 `json:"max_steering_deg"`
	MaxTailAmplitude  float64 `json:"max_tail_amplitude"`
	LookaheadDistance float64 `json:"lookahead_distance"`
	ArrivalRadius     float64 `json:"arrival_radius"`

	SegmentLength float64 `json:"segment_length"` // tail link length (m)
}

func tuningFromConfig(c control.Config) TuningParams {
	return TuningParams{
		HeadingKp:         c.Heading.Kp,
		HeadingKi:         c.Heading.Ki,
		HeadingKd:         c.Heading.Kd,
		SpeedKp:           c.Speed.Kp,
		SpeedKi:           c.Speed.Ki,
		SpeedKd:           c.Speed.Kd,
		MaxSteeringDeg:    c.MaxSteering * 180.0 / math.Pi,
		MaxTailAmplitude:  c.MaxTailAmplitude,
		LookaheadDistance: c.LookaheadDistance,
		ArrivalRadius:     c.ArrivalRadius,
	}
}

// apply returns c with every positive field of p written over it.
func (p TuningParams) apply(c control.Config) control.Config {
	set := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	set(&c.Heading.Kp, p.HeadingKp)
	set(&c.Heading.Ki, p.HeadingKi)
	set(&c.Heading.Kd, p.HeadingKd)
	set(&c.Speed.Kp, p.SpeedKp)
	set(&c.Speed.Ki, p.SpeedKi)
	set(&c.Speed.Kd, p.SpeedKd)
	if p.MaxSteeringDeg > 0 {
		c.MaxSteering = p.MaxSteeringDeg * math.Pi / 180.0
	}
	set(&c.MaxTailAmplitude, p.MaxTailAmplitude)
	set(&c.LookaheadDistance, p.LookaheadDistance)
	set(&c.ArrivalRadius, p.ArrivalRadius)
	return c
}

// GetTuningParams returns the controller tuning that the next tick will use.
func (l *Loop) GetTuningParams() TuningParams {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p := tuningFromConfig(l.ctrlCfg)
	p.SegmentLength = l.segLen
	return p
}

// SetTuningParams updates the controller at runtime. Only positive values
// are applied; the result is validated before it reaches the loop.
func (l *Loop) SetTuningParams(p TuningParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := p.apply(l.ctrlCfg)
	if err := next.Validate(); err != nil {
		return err
	}
	l.ctrlCfg = next
	l.ctrlDirty = true
	if p.SegmentLength > 0 && !math.IsInf(p.SegmentLength, 0) && p.SegmentLength != l.segLen {
		l.segLen = p.SegmentLength
		l.chainDirty = true
	}
	return nil
}
