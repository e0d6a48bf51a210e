// Package ingest accepts localization fixes and operator commands from
// websocket clients (the camera rig, a joystick page, scripts) and hands
// them to the pose store and the pilot loop.
package ingest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/protocol"
	"github.com/teslashibe/go-finbot/pkg/wave"
)

// ErrNoPilot is reported to clients that send commands to a pose-only endpoint.
var ErrNoPilot = errors.New("ingest: no pilot attached")

// Pilot is the part of the control loop the endpoint drives. *pilot.Loop
// implements it.
type Pilot interface {
	SetTarget(*control.Target) error
	Reset(seed *pose.Pose) error
	SetManual(pilot.Manual) error
	SetAuto()
	Wave() wave.Params
	SetWave(wave.Params) error
	SetTuningParams(pilot.TuningParams) error
}

// Publisher receives poses. *pose.Store implements it.
type Publisher interface {
	Publish(p pose.Pose, source string) uint64
	Latest() (pose.Sample, bool)
}

// Source is one connected client.
type Source struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	poses    uint64
}

// Send writes a message to the client.
func (s *Source) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Source) touch(isPose bool) {
	s.mu.Lock()
	s.lastSeen = time.Now()
	if isPose {
		s.poses++
	}
	s.mu.Unlock()
}

// SourceInfo describes a connected client.
type SourceInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Poses     uint64    `json:"poses"`
}

// Stats are the endpoint counters.
type Stats struct {
	Sources          int    `json:"sources"`
	MessagesReceived uint64 `json:"messages_received"`
	PosesAccepted    uint64 `json:"poses_accepted"`
	Rejected         uint64 `json:"rejected"`
}

// Server manages pose-source connections.
type Server struct {
	poses Publisher
	pilot Pilot

	mu      sync.RWMutex
	sources map[string]*Source

	messagesReceived atomic.Uint64
	posesAccepted    atomic.Uint64
	rejected         atomic.Uint64
	rejectLog        *log.Throttle
}

// NewServer creates an endpoint publishing to poses. p may be nil, in which
// case only pose and ping messages are accepted.
func NewServer(poses Publisher, p Pilot) *Server {
	return &Server{
		poses:     poses,
		pilot:     p,
		sources:   make(map[string]*Source),
		rejectLog: log.NewThrottle(5 * time.Second),
	}
}

// RegisterRoutes registers the pose websocket on app.
func (s *Server) RegisterRoutes(app fiber.Router) {
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	app.Get("/ws/pose", upgrade, websocket.New(s.handleSource))
	app.Get("/ws/pose/:id", upgrade, websocket.New(s.handleSource))
}

// handleSource serves one client until it disconnects.
func (s *Server) handleSource(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	src := &Source{ID: id, Conn: c, Connected: time.Now(), lastSeen: time.Now()}

	s.mu.Lock()
	if old, ok := s.sources[id]; ok {
		old.Conn.Close()
	}
	s.sources[id] = src
	count := len(s.sources)
	s.mu.Unlock()
	log.Info("pose source connected", "id", id, "sources", count)

	// Memory from before a reconnect describes a different situation.
	if s.pilot != nil {
		if err := s.pilot.Reset(nil); err != nil {
			log.Warn("ingest: reset on connect failed", "error", err)
		}
	}

	defer func() {
		s.mu.Lock()
		if s.sources[id] == src {
			delete(s.sources, id)
		}
		count := len(s.sources)
		s.mu.Unlock()
		log.Info("pose source disconnected", "id", id, "sources", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			log.Debug("pose source read ended", "id", id, "error", err)
			return
		}
		s.messagesReceived.Add(1)
		s.handleMessage(src, data)
	}
}

// handleMessage applies one message and answers commands with an ack or
// an error.
func (s *Server) handleMessage(src *Source, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.reject(src, err)
		return
	}

	switch msg.Type {
	case protocol.TypePose:
		var d protocol.PoseData
		if err := msg.ParseData(&d); err != nil {
			s.reject(src, fmt.Errorf("pose: %w", err))
			return
		}
		p, err := d.Pose()
		if err != nil {
			s.reject(src, err)
			return
		}
		s.poses.Publish(p, src.ID)
		s.posesAccepted.Add(1)
		src.touch(true)
		return

	case protocol.TypePing:
		var ping protocol.PingData
		_ = msg.ParseData(&ping)
		if pong, err := protocol.NewPongMessage(ping); err == nil {
			src.Send(pong)
		}
		src.touch(false)
		return
	}

	src.touch(false)
	if s.pilot == nil {
		s.reject(src, ErrNoPilot)
		return
	}
	if err := s.command(msg); err != nil {
		s.reject(src, err)
		return
	}
	if ack, err := protocol.NewAckMessage(s.messagesReceived.Load(), 0); err == nil {
		src.Send(ack)
	}
}

func (s *Server) command(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeTarget:
		var d protocol.TargetData
		if err := msg.ParseData(&d); err != nil {
			return fmt.Errorf("target: %w", err)
		}
		var from pose.Pose
		if cur, ok := s.poses.Latest(); ok {
			from = cur.Pose
		}
		t, err := d.Target(from)
		if err != nil {
			return err
		}
		return s.pilot.SetTarget(t)

	case protocol.TypeReset:
		var d protocol.ResetData
		if err := msg.ParseData(&d); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		if d.Pose == nil {
			return s.pilot.Reset(nil)
		}
		p, err := d.Pose.Pose()
		if err != nil {
			return err
		}
		return s.pilot.Reset(&p)

	case protocol.TypeManual:
		var d protocol.ManualData
		if err := msg.ParseData(&d); err != nil {
			return fmt.Errorf("manual: %w", err)
		}
		if d.Release {
			s.pilot.SetAuto()
			return nil
		}
		return s.pilot.SetManual(pilot.Manual{X: d.X, Y: d.Y})

	case protocol.TypeWave:
		var d protocol.WaveData
		if err := msg.ParseData(&d); err != nil {
			return fmt.Errorf("wave: %w", err)
		}
		p, err := d.Apply(s.pilot.Wave())
		if err != nil {
			return err
		}
		return s.pilot.SetWave(p)

	case protocol.TypeTuning:
		var d pilot.TuningParams
		if err := msg.ParseData(&d); err != nil {
			return fmt.Errorf("tuning: %w", err)
		}
		return s.pilot.SetTuningParams(d)

	default:
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}
}

func (s *Server) reject(src *Source, err error) {
	s.rejected.Add(1)
	if ok, n := s.rejectLog.Allow(); ok {
		log.Warn("ingest: message rejected", "source", src.ID, "error", err, "suppressed", n)
	}
	if m, merr := protocol.NewErrorMessage(err); merr == nil {
		src.Send(m)
	}
}

// SourceCount returns the number of connected clients.
func (s *Server) SourceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// Sources describes every connected client.
func (s *Server) Sources() []SourceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(s.sources))
	for _, src := range s.sources {
		src.mu.Lock()
		infos = append(infos, SourceInfo{
			ID:        src.ID,
			Connected: src.Connected,
			LastSeen:  src.lastSeen,
			Poses:     src.poses,
		})
		src.mu.Unlock()
	}
	return infos
}

// Stats returns the endpoint counters.
func (s *Server) Stats() Stats {
	return Stats{
		Sources:          s.SourceCount(),
		MessagesReceived: s.messagesReceived.Load(),
		PosesAccepted:    s.posesAccepted.Load(),
		Rejected:         s.rejected.Load(),
	}
}
