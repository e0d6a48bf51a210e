package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout = 5 * time.Second
	viewerIdle   = 60 * time.Second    // no pong for this long closes the viewer
	keepalive    = viewerIdle * 9 / 10 // ping interval
	readLimit    = 4 * 1024            // viewers only send pongs and close frames

	// viewerQueue holds about six seconds of telemetry at 20 Hz before the
	// viewer counts as too slow and is evicted.
	viewerQueue = 128
)

// viewer is one dashboard connection. The hub closes queue to detach it.
type viewer struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan Message
}

// attach registers a connection with the hub. After the hub has stopped
// the viewer is born detached.
func attach(h *Hub, conn *websocket.Conn) *viewer {
	v := &viewer{hub: h, conn: conn, queue: make(chan Message, viewerQueue)}
	select {
	case h.register <- v:
	case <-h.done:
		close(v.queue)
	}
	return v
}

// serve streams telemetry to the viewer until either side hangs up.
func (v *viewer) serve() {
	go v.stream()
	v.awaitClose()
}

// awaitClose reads only to see pongs and the disconnect, then detaches.
func (v *viewer) awaitClose() {
	defer func() {
		select {
		case v.hub.unregister <- v:
		case <-v.hub.done:
		}
		v.conn.Close()
	}()

	v.conn.SetReadLimit(readLimit)
	v.conn.SetReadDeadline(time.Now().Add(viewerIdle))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(viewerIdle))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// stream owns every write to the connection.
func (v *viewer) stream() {
	ping := time.NewTicker(keepalive)
	defer func() {
		ping.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-v.queue:
			if !ok {
				v.write(websocket.CloseMessage, nil)
				return
			}
			if v.write(msg.opcode(), msg.Data) != nil {
				return
			}
		case <-ping.C:
			if v.write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (v *viewer) write(opcode int, data []byte) error {
	v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return v.conn.WriteMessage(opcode, data)
}
