package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-finbot/internal/log"
)

// broadcastBuffer is how many messages may wait for the run loop.
const broadcastBuffer = 256

// Stats are the hub's counters.
type Stats struct {
	Clients   int    `json:"clients"`
	Broadcast uint64 `json:"broadcast"`
	Dropped   uint64 `json:"dropped"` // broadcast queue full
	Evicted   uint64 `json:"evicted"` // slow viewers disconnected
}

// Hub tracks the connected viewers of one telemetry stream. Broadcast never
// blocks, so the control loop can publish every tick.
type Hub struct {
	name string

	// Owned by Run; mu guards reads from other goroutines.
	viewers map[*viewer]bool
	mu      sync.RWMutex

	broadcast  chan Message
	register   chan *viewer
	unregister chan *viewer

	done chan struct{}

	running atomic.Bool
	sent    atomic.Uint64
	dropped atomic.Uint64
	evicted atomic.Uint64
	dropLog *log.Throttle
}

// New creates a hub. name only appears in logs.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		viewers:    make(map[*viewer]bool),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
		done:       make(chan struct{}),
		dropLog:    log.NewThrottle(5 * time.Second),
	}
}

// Run owns the viewer set until ctx is done, then disconnects everyone.
// It must be called once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for v := range h.viewers {
				delete(h.viewers, v)
				close(v.queue)
			}
			h.mu.Unlock()
			return

		case v := <-h.register:
			h.mu.Lock()
			h.viewers[v] = true
			count := len(h.viewers)
			h.mu.Unlock()
			log.Info("telemetry viewer connected", "hub", h.name, "clients", count)

		case v := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.viewers[v]; ok {
				delete(h.viewers, v)
				close(v.queue)
			}
			count := len(h.viewers)
			h.mu.Unlock()
			log.Info("telemetry viewer disconnected", "hub", h.name, "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for v := range h.viewers {
				select {
				case v.queue <- message:
				default:
					// Queue full: evict the viewer, the others keep streaming.
					close(v.queue)
					delete(h.viewers, v)
					h.evicted.Add(1)
					log.Warn("telemetry viewer evicted", "hub", h.name)
				}
			}
			h.mu.Unlock()
			h.sent.Add(1)
		}
	}
}

// Broadcast queues msg for every viewer, dropping it when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		if ok, n := h.dropLog.Allow(); ok {
			log.Warn("hub broadcast queue full, dropping", "hub", h.name, "suppressed", n)
		}
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts a binary payload.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// Handler upgrades a dashboard connection and streams to it.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		attach(h, c).serve()
	})
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Stats returns the hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:   h.ClientCount(),
		Broadcast: h.sent.Load(),
		Dropped:   h.dropped.Load(),
		Evicted:   h.evicted.Load(),
	}
}
