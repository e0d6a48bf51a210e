// Package web serves the REST control and tuning API and the telemetry
// websockets used by the dashboard.
package web

import (
	"context"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/control"
	"github.com/teslashibe/go-finbot/pkg/ingest"
	"github.com/teslashibe/go-finbot/pkg/pilot"
)

// Pilot is the control loop as seen by the API. *pilot.Loop implements it.
type Pilot interface {
	ingest.Pilot
	Latest() (pilot.Snapshot, bool)
	Stats() pilot.Stats
	GetTuningParams() pilot.TuningParams
	Target() *control.Target
	Manual() (pilot.Manual, bool)
	DT() float64
}

// Config wires the server to the rest of the daemon.
type Config struct {
	Addr      string
	Pilot     Pilot
	Poses     ingest.Publisher
	Telemetry *Telemetry     // nil disables the telemetry websockets
	Ingest    *ingest.Server // nil disables /ws/pose
	AccessLog bool

	// Status adds fields to GET /api/status, e.g. actuator link counters.
	Status func() fiber.Map
}

// Server is the HTTP API server.
type Server struct {
	app *fiber.App
	cfg Config
}

// NewServer builds the app and registers every route.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg}

	app := fiber.New(fiber.Config{
		AppName:               "finbot",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/wave", s.handleGetWave)
	api.Put("/wave", s.handlePutWave)
	api.Get("/tuning", s.handleGetTuning)
	api.Put("/tuning", s.handlePutTuning)
	api.Get("/target", s.handleGetTarget)
	api.Put("/target", s.handlePutTarget)
	api.Delete("/target", s.handleDeleteTarget)
	api.Post("/reset", s.handleReset)
	api.Get("/pose", s.handleGetPose)
	api.Post("/pose", s.handlePostPose)
	api.Post("/manual", s.handleManual)
	api.Post("/auto", s.handleAuto)
	api.Get("/sources", s.handleSources)

	if cfg.Telemetry != nil {
		app.Use("/ws/telemetry", requireUpgrade)
		app.Use("/ws/frames", requireUpgrade)
		app.Get("/ws/telemetry", cfg.Telemetry.json.Handler())
		app.Get("/ws/frames", cfg.Telemetry.frames.Handler())
	}
	if cfg.Ingest != nil {
		cfg.Ingest.RegisterRoutes(app)
	}

	s.app = app
	return s
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// errorHandler renders every error as {"error": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and blocks.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("web listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks.
func (s *Server) Serve(ln net.Listener) error {
	log.Info("web api listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
