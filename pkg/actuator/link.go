package actuator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/protocol"
)

const (
	linkWriteWait     = 200 * time.Millisecond
	linkHandshake     = 3 * time.Second
	linkRetryInterval = time.Second
	// Commands older than this are not worth sending after a stall.
	linkMaxCommandAge = 500 * time.Millisecond
)

// LinkStats reports link activity.
type LinkStats struct {
	Connected  bool   `json:"connected"`
	Sent       uint64 `json:"sent"`
	Superseded uint64 `json:"superseded"`
	Stale      uint64 `json:"stale"`
	Acked      uint64 `json:"acked"`
	Reconnects uint64 `json:"reconnects"`
}

// Link streams commands to the microcontroller bridge over a websocket.
// The bridge answers each command with an ack and recenters its servos on
// its own when commands stop arriving.
type Link struct {
	url    string
	dialer *websocket.Dialer
	box    *mailbox
	retry  time.Duration

	connected  atomic.Bool
	sent       atomic.Uint64
	superseded atomic.Uint64
	stale      atomic.Uint64
	acked      atomic.Uint64
	reconnects atomic.Uint64
}

// NewLink creates a link to the bridge at url (ws:// or wss://).
func NewLink(url string) *Link {
	return &Link{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: linkHandshake},
		box:    newMailbox(),
		retry:  linkRetryInterval,
	}
}

// Send queues cmd for the writer. It never blocks; an unsent older command
// is replaced.
func (l *Link) Send(cmd Command) error {
	if !l.connected.Load() {
		return ErrNotConnected
	}
	if l.box.put(cmd) {
		l.superseded.Add(1)
	}
	return nil
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		Connected:  l.connected.Load(),
		Sent:       l.sent.Load(),
		Superseded: l.superseded.Load(),
		Stale:      l.stale.Load(),
		Acked:      l.acked.Load(),
		Reconnects: l.reconnects.Load(),
	}
}

// Run keeps the link connected until ctx is cancelled.
func (l *Link) Run(ctx context.Context) error {
	for {
		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err == nil {
			log.Info("actuator link connected", "url", l.url)
			err = l.serve(ctx, conn)
			l.reconnects.Add(1)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("actuator link down, retrying", "url", l.url, "error", err, "retry", l.retry)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func (l *Link) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	// Drop anything queued while disconnected.
	select {
	case <-l.box.ch:
	default:
	}
	l.connected.Store(true)
	defer l.connected.Store(false)

	readErr := make(chan error, 1)
	go func() {
		readErr <- l.readLoop(conn)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(linkWriteWait))
			return ctx.Err()
		case err := <-readErr:
			return err
		case cmd := <-l.box.ch:
			if !fresh(cmd, linkMaxCommandAge) {
				l.stale.Add(1)
				continue
			}
			if err := l.write(conn, cmd); err != nil {
				return err
			}
			l.sent.Add(1)
		}
	}
}

func (l *Link) write(conn *websocket.Conn, cmd Command) error {
	msg, err := protocol.NewMessage(protocol.TypeCommand, cmd)
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(linkWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write command %d: %w", cmd.Seq, err)
	}
	return nil
}

func (l *Link) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			log.Debug("actuator link: ignoring malformed message", "error", err)
			continue
		}
		if msg.Type == protocol.TypeAck {
			l.acked.Add(1)
		}
	}
}
