package pilot

import (
	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/protocol"
)

// Drive is what produced a tick's output.
type Drive string

const (
	DriveIdle   Drive = "idle"   // no target; neutral output
	DriveAuto   Drive = "auto"   // controller tracking a target
	DriveManual Drive = "manual" // joystick override
)

// Snapshot is the observable result of one tick. It is built fresh every
// tick and never mutated afterwards, so observers may keep it.
type Snapshot struct {
	Seq   uint64  `json:"seq"`
	Time  float64 `json:"t"` // loop time (s)
	Drive Drive   `json:"drive"`

	Pose      protocol.PoseData    `json:"pose"`
	PoseFresh bool                 `json:"pose_fresh"`
	Target    *protocol.TargetData `json:"target,omitempty"`

	Output control.Output `json:"output"`
	Memory control.Memory `json:"memory"`

	AmplitudeDeg float64              `json:"amplitude_deg"` // wave amplitude after scaling
	FrequencyHz  float64              `json:"frequency_hz"`
	JointDeg     []float64            `json:"joint_deg"`
	PWM          []float64            `json:"pwm"`
	Chain        []protocol.PointData `json:"chain"` // tail joint positions, head first
}

// Observer receives every snapshot on the loop goroutine. Implementations
// must return quickly and never block.
type Observer interface {
	Observe(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

// Observe calls f.
func (f ObserverFunc) Observe(s Snapshot) { f(s) }

func poseData(p pose.Pose) protocol.PoseData {
	return protocol.PoseData{X: p.X, Y: p.Y, Theta: p.Theta}
}

func pointsData(pts []r2.Point) []protocol.PointData {
	out := make([]protocol.PointData, len(pts))
	for i, p := range pts {
		out[i] = protocol.PointData{X: p.X, Y: p.Y}
	}
	return out
}
