package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/wave"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "pose message",
			msgType: TypePose,
			data:    PoseData{X: 1, Y: 2, Theta: 0.5},
		},
		{
			name:    "manual message",
			msgType: TypeManual,
			data:    ManualData{X: 0.5, Y: 0.1},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeTelemetry,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"pose","ts":1,"data":{"x":1.5,"y":-2,"theta":0.25}}`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	var pd PoseData
	if err := msg.ParseData(&pd); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if pd != (PoseData{X: 1.5, Y: -2, Theta: 0.25}) {
		t.Errorf("PoseData = %+v", pd)
	}

	for _, bad := range []string{`not json`, `{"ts":1}`} {
		if _, err := ParseMessage([]byte(bad)); err == nil {
			t.Errorf("ParseMessage(%q) should fail", bad)
		}
	}
}

func TestParseData_Empty(t *testing.T) {
	msg := &Message{Type: TypeReset}
	var rd ResetData
	if err := msg.ParseData(&rd); err != nil {
		t.Errorf("ParseData on empty data = %v", err)
	}
	if rd.Pose != nil {
		t.Error("expected no pose")
	}
}

func TestPongAnswersPing(t *testing.T) {
	ping := PingData{ID: "abc", Timestamp: 1000}
	msg, err := NewPongMessage(ping)
	if err != nil {
		t.Fatal(err)
	}
	var pong PongData
	if err := msg.ParseData(&pong); err != nil {
		t.Fatal(err)
	}
	if pong.ID != "abc" || pong.PingTS != 1000 || pong.LatencyMs != pong.PongTS-1000 {
		t.Errorf("pong = %+v", pong)
	}
}

func TestPoseData_Pose(t *testing.T) {
	p, err := PoseData{X: 1, Y: 2, Theta: 3}.Pose()
	if err != nil || p != (pose.Pose{X: 1, Y: 2, Theta: 3}) {
		t.Errorf("Pose() = %+v, %v", p, err)
	}
	if _, err := (PoseData{X: math.NaN()}).Pose(); err == nil {
		t.Error("NaN pose accepted")
	}
}

func TestTargetData_Target(t *testing.T) {
	from := pose.Pose{X: 1, Y: 2}
	tests := []struct {
		name    string
		data    TargetData
		wantErr bool
		check   func(*testing.T, *control.Target)
	}{
		{
			name: "waypoint",
			data: TargetData{Mode: "waypoint", Destination: PointData{X: 10}},
			check: func(t *testing.T, tg *control.Target) {
				if tg.Mode != control.ModeWaypoint || tg.Destination != (r2.Point{X: 10}) {
					t.Errorf("target = %+v", tg)
				}
			},
		},
		{
			name: "path from current pose",
			data: TargetData{Mode: "path", Destination: PointData{X: 20}, Duration: 30},
			check: func(t *testing.T, tg *control.Target) {
				if tg.Origin != (r2.Point{X: 1, Y: 2}) {
					t.Errorf("origin = %v, want current position", tg.Origin)
				}
			},
		},
		{
			name: "path with origin",
			data: TargetData{Mode: "path", Origin: &PointData{}, Destination: PointData{X: 20}, Duration: 30},
			check: func(t *testing.T, tg *control.Target) {
				if tg.Origin != (r2.Point{}) || tg.Duration != 30 {
					t.Errorf("target = %+v", tg)
				}
			},
		},
		{name: "path without duration", data: TargetData{Mode: "path", Destination: PointData{X: 20}}, wantErr: true},
		{name: "unknown mode", data: TargetData{Mode: "orbit"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, err := tt.data.Target(from)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Target() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, tg)
			}
		})
	}
}

func TestTargetFromControl(t *testing.T) {
	d := TargetFromControl(control.NewPathTarget(r2.Point{X: 1}, r2.Point{X: 5}, 4))
	if d.Mode != "path" || d.Origin == nil || d.Origin.X != 1 || d.Destination.X != 5 || d.Duration != 4 {
		t.Errorf("TargetFromControl = %+v", d)
	}
	if TargetFromControl(nil).Mode != "" {
		t.Error("nil target should give empty data")
	}
}

func TestWaveData_Apply(t *testing.T) {
	base := wave.DefaultParams()
	amp, dir := 10.0, -1

	got, err := WaveData{AmplitudeDeg: &amp, Direction: &dir}.Apply(base)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.AmplitudeDeg != 10 || got.Direction != wave.TailToHead {
		t.Errorf("Apply = %+v", got)
	}
	if got.FrequencyHz != base.FrequencyHz {
		t.Error("unset field changed")
	}

	bad := 0
	if _, err := (WaveData{Direction: &bad}).Apply(base); !errors.Is(err, wave.ErrDirection) {
		t.Errorf("direction 0 error = %v", err)
	}
	nan := math.NaN()
	if _, err := (WaveData{AmplitudeDeg: &nan}).Apply(base); !errors.Is(err, wave.ErrNonFinite) {
		t.Errorf("NaN amplitude error = %v", err)
	}
	if _, err := (WaveData{JointGain: []float64{1, 2}}).Apply(base); err == nil {
		t.Error("gain count mismatch should fail")
	}
}
