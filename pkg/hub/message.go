// Package hub fans loop telemetry out to dashboard viewers. One goroutine
// owns the viewer set; publishers never wait on a socket.
package hub

import "github.com/gofiber/websocket/v2"

// Message is one telemetry payload shared by every viewer. Data must not
// be modified after Broadcast.
type Message struct {
	Data  []byte
	Frame bool // binary telemetry frame rather than a JSON snapshot
}

// NewJSONMessage wraps an encoded JSON snapshot.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewBinaryMessage wraps an encoded telemetry frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Data: data, Frame: true}
}

func (m Message) opcode() int {
	if m.Frame {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
