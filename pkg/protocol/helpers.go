package protocol

import (
	"fmt"
	"time"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/wave"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPoseMessage creates a pose message
func NewPoseMessage(p pose.Pose) (*Message, error) {
	return NewMessage(TypePose, PoseData{X: p.X, Y: p.Y, Theta: p.Theta})
}

// NewTargetMessage creates a target message
func NewTargetMessage(t *control.Target) (*Message, error) {
	return NewMessage(TypeTarget, TargetFromControl(t))
}

// NewAckMessage creates an ack message
func NewAckMessage(msgCount, seq uint64) (*Message, error) {
	return NewMessage(TypeAck, AckData{Status: "ok", MsgCount: msgCount, Seq: seq})
}

// NewErrorMessage creates an error message
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Error: err.Error()})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage answers a ping
func NewPongMessage(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// =============================================================================
// Conversions to core types
// =============================================================================

// Pose converts to a pose.Pose, rejecting non-finite values.
func (d PoseData) Pose() (pose.Pose, error) {
	p := pose.Pose{X: d.X, Y: d.Y, Theta: d.Theta}
	if !p.Valid() {
		return pose.Pose{}, fmt.Errorf("pose must be finite: %+v", d)
	}
	return p, nil
}

func (d PointData) point() r2.Point {
	return r2.Point{X: d.X, Y: d.Y}
}

// Target converts to a validated control.Target. A path without an origin
// starts at from.
func (d TargetData) Target(from pose.Pose) (*control.Target, error) {
	var t *control.Target
	switch control.Mode(d.Mode) {
	case control.ModeWaypoint:
		t = control.NewWaypointTarget(d.Destination.point())
	case control.ModePath:
		origin := from.Point()
		if d.Origin != nil {
			origin = d.Origin.point()
		}
		t = control.NewPathTarget(origin, d.Destination.point(), d.Duration)
	default:
		return nil, fmt.Errorf("unknown target mode %q", d.Mode)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// TargetFromControl converts a control.Target for the wire.
func TargetFromControl(t *control.Target) TargetData {
	if t == nil {
		return TargetData{}
	}
	d := TargetData{
		Mode:        string(t.Mode),
		Destination: PointData{X: t.Destination.X, Y: t.Destination.Y},
		Duration:    t.Duration,
	}
	if t.Mode == control.ModePath {
		d.Origin = &PointData{X: t.Origin.X, Y: t.Origin.Y}
	}
	return d
}

// Apply returns base with the set fields of d applied, validated.
func (d WaveData) Apply(base wave.Params) (wave.Params, error) {
	p := base.Clone()
	if d.AmplitudeDeg != nil {
		p.AmplitudeDeg = *d.AmplitudeDeg
	}
	if d.FrequencyHz != nil {
		p.FrequencyHz = *d.FrequencyHz
	}
	if d.PhaseShiftDeg != nil {
		p.PhaseShiftDeg = *d.PhaseShiftDeg
	}
	if d.Direction != nil {
		p.Direction = wave.Direction(*d.Direction)
	}
	if len(d.JointGain) > 0 {
		if len(d.JointGain) != len(base.JointGain) {
			return base, fmt.Errorf("joint_gain has %d entries, tail has %d joints", len(d.JointGain), len(base.JointGain))
		}
		p.JointGain = append([]float64(nil), d.JointGain...)
	}
	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}
