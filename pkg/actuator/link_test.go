package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-finbot/pkg/protocol"
)

// fakeBridge acks every command it receives.
type fakeBridge struct {
	mu       sync.Mutex
	received []Command
}

func (b *fakeBridge) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		var count uint64
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil || msg.Type != protocol.TypeCommand {
				continue
			}
			var cmd Command
			if err := msg.ParseData(&cmd); err != nil {
				continue
			}
			b.mu.Lock()
			b.received = append(b.received, cmd)
			b.mu.Unlock()

			count++
			ack, _ := protocol.NewAckMessage(count, cmd.Seq)
			raw, _ := ack.Bytes()
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}
}

func (b *fakeBridge) commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Command(nil), b.received...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLink_SendBeforeConnect(t *testing.T) {
	l := NewLink("ws://127.0.0.1:1/bridge")
	if err := l.Send(Command{Seq: 1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before connect = %v, want ErrNotConnected", err)
	}
}

func TestLink_DeliversCommandsAndCountsAcks(t *testing.T) {
	bridge := &fakeBridge{}
	srv := httptest.NewServer(bridge.handler(t))
	defer srv.Close()

	l := NewLink("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return l.Stats().Connected })

	cmd := NewCommand(42, 4.2, 0.1, []float64{1, 2, 3}, 0.5)
	if err := l.Send(cmd); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return l.Stats().Acked >= 1 })

	got := bridge.commands()
	if len(got) != 1 || got[0].Seq != 42 || len(got[0].PWM) != 4 {
		t.Fatalf("bridge received %+v", got)
	}
	if got[0].PWM[0] != cmd.PWM[0] {
		t.Errorf("rudder pwm = %v, want %v", got[0].PWM[0], cmd.PWM[0])
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if l.Stats().Connected {
		t.Error("link still reports connected after shutdown")
	}
}

func TestLink_StaleCommandSkipped(t *testing.T) {
	bridge := &fakeBridge{}
	srv := httptest.NewServer(bridge.handler(t))
	defer srv.Close()

	l := NewLink("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()
	waitFor(t, 2*time.Second, func() bool { return l.Stats().Connected })

	old := NewCommand(1, 0, 0, nil, 0)
	old.At = time.Now().Add(-time.Minute)
	_ = l.Send(old)

	waitFor(t, 2*time.Second, func() bool { return l.Stats().Stale == 1 })
	if n := len(bridge.commands()); n != 0 {
		t.Errorf("bridge received %d stale commands", n)
	}
}

func TestLinkStats_JSON(t *testing.T) {
	raw, err := json.Marshal(LinkStats{Connected: true, Sent: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"sent":3`) {
		t.Errorf("stats JSON = %s", raw)
	}
}
