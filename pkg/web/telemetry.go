package web

import (
	"context"
	"sync"

	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/hub"
	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/protocol"
	"github.com/teslashibe/go-finbot/pkg/telemetry"
)

// Telemetry publishes loop snapshots to dashboards: JSON snapshots on
// /ws/telemetry and protowire frames on /ws/frames. It is a pilot.Observer.
type Telemetry struct {
	json   *hub.Hub
	frames *hub.Hub
	every  uint64
	n      uint64 // loop goroutine only
}

// NewTelemetry publishes every nth tick; n < 1 publishes all of them.
func NewTelemetry(n int) *Telemetry {
	if n < 1 {
		n = 1
	}
	return &Telemetry{
		json:   hub.New("telemetry"),
		frames: hub.New("frames"),
		every:  uint64(n),
	}
}

// Run serves both hubs until ctx is done.
func (t *Telemetry) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); t.json.Run(ctx) }()
	go func() { defer wg.Done(); t.frames.Run(ctx) }()
	wg.Wait()
}

// Observe queues the snapshot for connected clients. Nothing is encoded
// when nobody is listening.
func (t *Telemetry) Observe(s pilot.Snapshot) {
	t.n++
	if (t.n-1)%t.every != 0 {
		return
	}
	if t.json.ClientCount() > 0 {
		msg, err := protocol.NewMessage(protocol.TypeTelemetry, s)
		if err != nil {
			log.Warn("telemetry encode failed", "error", err)
		} else if data, err := msg.Bytes(); err == nil {
			t.json.Broadcast(hub.NewJSONMessage(data))
		}
	}
	if t.frames.ClientCount() > 0 {
		t.frames.BroadcastBinary(telemetry.MarshalFrame(telemetry.FrameFromSnapshot(s)))
	}
}

// TelemetryStats are the counters of both hubs.
type TelemetryStats struct {
	JSON   hub.Stats `json:"json"`
	Frames hub.Stats `json:"frames"`
}

// Stats returns the counters of both hubs.
func (t *Telemetry) Stats() TelemetryStats {
	return TelemetryStats{JSON: t.json.Stats(), Frames: t.frames.Stats()}
}
