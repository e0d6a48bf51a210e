// Package protocol defines the JSON websocket messages exchanged between the
// control core, pose sources, the actuator bridge and dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Pose source → core
	TypePose MessageType = "pose" // Localization fix

	// Operator → core
	TypeTarget MessageType = "target" // New path or waypoint
	TypeReset  MessageType = "reset"  // Zero controller memory, re-seed pose
	TypeManual MessageType = "manual" // Joystick drive
	TypeWave   MessageType = "wave"   // Wave parameter update
	TypeTuning MessageType = "tuning" // Gain and limit update

	// Core → actuator bridge
	TypeCommand MessageType = "command" // Per-tick servo frame

	// Actuator bridge → core
	TypeAck MessageType = "ack" // Bridge receipt

	// Core → dashboards
	TypeTelemetry MessageType = "telemetry" // Per-tick loop snapshot
	TypeError     MessageType = "error"     // Rejected request

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Inbound Message Types
// =============================================================================

// PoseData is a localization fix in meters and radians.
type PoseData struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// PointData is a planar point in meters.
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TargetData selects a path ("path") or a point to seek ("waypoint").
type TargetData struct {
	Mode        string     `json:"mode"`
	Origin      *PointData `json:"origin,omitempty"`
	Destination PointData  `json:"destination"`
	Duration    float64    `json:"duration,omitempty"` // seconds, path mode
}

// ResetData optionally re-seeds the pose when the controller is reset.
type ResetData struct {
	Pose *PoseData `json:"pose,omitempty"`
}

// ManualData is a joystick deflection. X steers, Y sets tail frequency.
// Release hands control back to the controller.
type ManualData struct {
	X       float64 `json:"x"` // -1..1, + = starboard
	Y       float64 `json:"y"` // -0.5..0.5
	Release bool    `json:"release,omitempty"`
}

// WaveData updates the tail wave. Nil fields are left unchanged.
type WaveData struct {
	AmplitudeDeg  *float64  `json:"amplitude_deg,omitempty"`
	FrequencyHz   *float64  `json:"frequency_hz,omitempty"`
	PhaseShiftDeg *float64  `json:"phase_shift_deg,omitempty"`
	Direction     *int      `json:"direction,omitempty"`
	JointGain     []float64 `json:"joint_gain,omitempty"`
}

// =============================================================================
// Outbound Message Types
// =============================================================================

// AckData is the actuator bridge's receipt for a command.
type AckData struct {
	Status   string `json:"status"`
	MsgCount uint64 `json:"msg_count"`
	Seq      uint64 `json:"seq,omitempty"`
}

// ErrorData explains why a request was rejected.
type ErrorData struct {
	Error string `json:"error"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
