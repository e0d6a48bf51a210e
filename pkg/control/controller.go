package control

import (
	"math"
	"time"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/pose"
)

// Output is one tick's command. Values are already clamped.
type Output struct {
	RudderAngle    float64 `json:"rudder_angle"`    // rad, ±MaxSteering
	TailAmplitude  float64 `json:"tail_amplitude"`  // [0, MaxTailAmplitude]
	ThrustEstimate float64 `json:"thrust_estimate"` // k_t * amplitude²

	HeadingError float64 `json:"heading_error"`
	SpeedError   float64 `json:"speed_error"`

	Neutral bool `json:"neutral,omitempty"` // no target or no usable pose
	Arrived bool `json:"arrived,omitempty"` // inside the waypoint arrival radius
	Fault   bool `json:"fault,omitempty"`   // previous output repeated after a numeric fault
}

// NeutralOutput centers the rudder and stops the tail.
func NeutralOutput() Output {
	return Output{Neutral: true}
}

// Memory is the PID state carried between ticks. One Memory belongs to one
// control loop; it is zeroed only by Reset.
type Memory struct {
	IntegralTheta  float64 `json:"integral_theta"`
	IntegralSpeed  float64 `json:"integral_speed"`
	PrevThetaError float64 `json:"prev_theta_error"`
	PrevSpeedError float64 `json:"prev_speed_error"`

	// Elapsed is the path time used to schedule desired progress (s).
	Elapsed float64 `json:"elapsed"`

	last Output
}

// Reset zeroes all accumulated state.
func (m *Memory) Reset() {
	*m = Memory{}
}

// Last returns the most recent valid output, the zero Output before the first step.
func (m *Memory) Last() Output {
	return m.last
}

// Controller computes rudder and tail amplitude from pose and target.
// It holds configuration only; all state lives in the Memory passed to
// Step, so one Controller may serve several independent loops.
type Controller struct {
	cfg      Config
	faultLog *log.Throttle
}

// New returns a Controller for a validated config.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, faultLog: log.NewThrottle(5 * time.Second)}, nil
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// SetConfig replaces the configuration. Callers must not race it with Step.
func (c *Controller) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// Step runs one control tick. A nil target or an unusable pose yields a
// neutral output without touching memory. A non-positive dt or a non-finite
// PID result repeats the last valid output flagged as a fault.
func (c *Controller) Step(p pose.Pose, target *Target, dt float64, mem *Memory) Output {
	if target == nil || !p.Valid() {
		return NeutralOutput()
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return c.fault(mem, "invalid dt", "dt", dt)
	}

	headingErr, speedErr, dist := c.trackingErrors(p, target, mem.Elapsed)
	if target.Mode == ModeWaypoint && c.cfg.ArrivalRadius > 0 && dist <= c.cfg.ArrivalRadius {
		out := NeutralOutput()
		out.Arrived = true
		out.HeadingError = headingErr
		return out
	}

	rudder, integralTheta := c.cfg.Heading.Eval(headingErr, dt, mem.IntegralTheta, mem.PrevThetaError)
	amp, integralSpeed := c.cfg.Speed.Eval(speedErr, dt, mem.IntegralSpeed, mem.PrevSpeedError)
	if !isFinite(rudder) || !isFinite(amp) || !isFinite(integralTheta) || !isFinite(integralSpeed) {
		return c.fault(mem, "non-finite PID output",
			"heading_error", headingErr, "speed_error", speedErr, "rudder", rudder, "amplitude", amp)
	}

	mem.IntegralTheta, mem.PrevThetaError = integralTheta, headingErr
	mem.IntegralSpeed, mem.PrevSpeedError = integralSpeed, speedErr
	mem.Elapsed += dt

	out := Output{
		RudderAngle:   clamp(rudder, -c.cfg.MaxSteering, c.cfg.MaxSteering),
		TailAmplitude: clamp(amp, 0, c.cfg.MaxTailAmplitude),
		HeadingError:  headingErr,
		SpeedError:    speedErr,
	}
	out.ThrustEstimate = c.cfg.ThrustCoeff * out.TailAmplitude * out.TailAmplitude
	mem.last = out
	return out
}

func (c *Controller) fault(mem *Memory, msg string, args ...any) Output {
	if ok, dropped := c.faultLog.Allow(); ok {
		log.Warn("control: "+msg+", repeating last output", append(args, "suppressed", dropped)...)
	}
	out := mem.last
	out.Fault = true
	return out
}

// trackingErrors returns the heading error, the speed error and the distance to
// the destination.
func (c *Controller) trackingErrors(p pose.Pose, target *Target, elapsed float64) (heading, speed, dist float64) {
	pos := p.Point()
	look := c.cfg.LookaheadDistance

	rayA := r2.Point{X: math.Cos(p.Theta), Y: math.Sin(p.Theta)}.Mul(look)

	var aim r2.Point
	switch target.Mode {
	case ModePath:
		dir := target.Destination.Sub(target.Origin).Normalize()
		progress := pos.Sub(target.Origin).Dot(dir)
		aim = target.Origin.Add(dir.Mul(progress + look))

		desired := target.Length() * clamp(elapsed/target.Duration, 0, 1)
		speed = desired - progress
	default:
		toTarget := target.Destination.Sub(pos)
		desiredTheta := math.Atan2(toTarget.Y, toTarget.X)
		speed = toTarget.Norm() * math.Cos(desiredTheta-p.Theta)
		aim = target.Destination
	}
	dist = target.Destination.Sub(pos).Norm()

	rayB := aim.Sub(pos).Normalize().Mul(look)
	heading = pose.AngleDiff(math.Atan2(rayB.Y, rayB.X), math.Atan2(rayA.Y, rayA.X))
	return heading, speed, dist
}
