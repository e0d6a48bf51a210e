package telemetry

import (
	"math"

	"github.com/teslashibe/go-finbot/pkg/pilot"
)

// FrameFromSnapshot extracts the actuator frame of a loop tick.
func FrameFromSnapshot(s pilot.Snapshot) Frame {
	return Frame{
		Seq:       s.Seq,
		Time:      s.Time,
		RudderDeg: s.Output.RudderAngle * 180.0 / math.Pi,
		JointDeg:  s.JointDeg,
		PWM:       s.PWM,
	}
}

// SnapshotRecorder records every tick of a pilot loop as a frame and
// logs drive changes, arrivals and faults as events. It is a pilot.Observer
// and must only be fed from the loop goroutine.
type SnapshotRecorder struct {
	*Recorder

	lastDrive   pilot.Drive
	lastArrived bool
	lastFault   bool
}

// NewSnapshotRecorder wraps r.
func NewSnapshotRecorder(r *Recorder) *SnapshotRecorder {
	return &SnapshotRecorder{Recorder: r}
}

// Observe records one snapshot without blocking.
func (r *SnapshotRecorder) Observe(s pilot.Snapshot) {
	r.Frame(FrameFromSnapshot(s))

	if s.Drive != r.lastDrive {
		r.Event(s.Time, "drive", map[string]any{"from": r.lastDrive, "to": s.Drive, "target": s.Target})
		r.lastDrive = s.Drive
	}
	if s.Output.Arrived && !r.lastArrived {
		r.Event(s.Time, "arrived", s.Pose)
	}
	r.lastArrived = s.Output.Arrived
	if s.Output.Fault && !r.lastFault {
		r.Event(s.Time, "fault", s.Output)
	}
	r.lastFault = s.Output.Fault
}
