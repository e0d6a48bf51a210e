package actuator

import (
	"math"
	"time"
)

// Command is one tick's servo frame. Servo 0 is the rudder (head); servos
// 1..N are the tail joints from head to tip.
type Command struct {
	Seq       uint64    `json:"seq"`
	Time      float64   `json:"t"` // loop time (s)
	RudderDeg float64   `json:"rudder_deg"`
	JointDeg  []float64 `json:"joint_deg"`
	PWM       []float64 `json:"pwm"`
	Thrust    float64   `json:"thrust"`
	Neutral   bool      `json:"neutral,omitempty"`

	At time.Time `json:"-"` // wall time the command was built
}

// NewCommand builds a command from a rudder angle in radians and joint
// angles in degrees, computing every pulse width.
func NewCommand(seq uint64, t, rudderRad float64, jointDeg []float64, thrust float64) Command {
	rudderDeg := rudderRad * 180.0 / math.Pi
	pwm := make([]float64, len(jointDeg)+1)
	pwm[0] = PulseWidth(rudderDeg)
	for i, a := range jointDeg {
		pwm[i+1] = PulseWidth(a)
	}
	return Command{
		Seq:       seq,
		Time:      t,
		RudderDeg: rudderDeg,
		JointDeg:  append([]float64(nil), jointDeg...),
		PWM:       pwm,
		Thrust:    thrust,
		At:        time.Now(),
	}
}

// NeutralCommand centers every servo of a tail with the given joint count.
func NeutralCommand(seq uint64, t float64, joints int) Command {
	cmd := NewCommand(seq, t, 0, make([]float64, joints), 0)
	cmd.Neutral = true
	return cmd
}
