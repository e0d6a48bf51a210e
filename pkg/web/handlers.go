package web

import (
	"math"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/protocol"
)

// poseSourceHTTP tags poses posted to /api/pose.
const poseSourceHTTP = "http"

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}

// parseBody decodes a JSON body. An empty body leaves v untouched.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return badRequest(err)
	}
	return nil
}

func statusOK(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus reports the loop state and every subsystem's counters.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	p := s.cfg.Pilot
	status := fiber.Map{
		"dt":    p.DT(),
		"stats": p.Stats(),
	}
	if snap, ok := p.Latest(); ok {
		status["drive"] = snap.Drive
		status["snapshot"] = snap
	}
	if t := p.Target(); t != nil {
		status["target"] = protocol.TargetFromControl(t)
	}
	if m, ok := p.Manual(); ok {
		status["manual"] = m
	}
	if s.cfg.Telemetry != nil {
		status["telemetry"] = s.cfg.Telemetry.Stats()
	}
	if s.cfg.Ingest != nil {
		status["ingest"] = s.cfg.Ingest.Stats()
	}
	if s.cfg.Status != nil {
		for k, v := range s.cfg.Status() {
			status[k] = v
		}
	}
	return c.JSON(status)
}

func (s *Server) handleGetWave(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Pilot.Wave())
}

// handlePutWave applies the fields present in the body to the current wave.
func (s *Server) handlePutWave(c *fiber.Ctx) error {
	var d protocol.WaveData
	if err := parseBody(c, &d); err != nil {
		return err
	}
	p, err := d.Apply(s.cfg.Pilot.Wave())
	if err != nil {
		return badRequest(err)
	}
	if err := s.cfg.Pilot.SetWave(p); err != nil {
		return badRequest(err)
	}
	return c.JSON(p)
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Pilot.GetTuningParams())
}

// handlePutTuning applies every positive field of the body.
func (s *Server) handlePutTuning(c *fiber.Ctx) error {
	var p pilot.TuningParams
	if err := parseBody(c, &p); err != nil {
		return err
	}
	if err := s.cfg.Pilot.SetTuningParams(p); err != nil {
		return badRequest(err)
	}
	return c.JSON(s.cfg.Pilot.GetTuningParams())
}

func (s *Server) handleGetTarget(c *fiber.Ctx) error {
	t := s.cfg.Pilot.Target()
	if t == nil {
		return fiber.NewError(fiber.StatusNotFound, pilot.ErrNoTarget.Error())
	}
	return c.JSON(protocol.TargetFromControl(t))
}

// handlePutTarget sets a path or waypoint. A path without an origin starts
// at the current pose.
func (s *Server) handlePutTarget(c *fiber.Ctx) error {
	var d protocol.TargetData
	if err := parseBody(c, &d); err != nil {
		return err
	}
	var from pose.Pose
	if cur, ok := s.cfg.Poses.Latest(); ok {
		from = cur.Pose
	}
	t, err := d.Target(from)
	if err != nil {
		return badRequest(err)
	}
	if err := s.cfg.Pilot.SetTarget(t); err != nil {
		return badRequest(err)
	}
	return c.JSON(protocol.TargetFromControl(t))
}

func (s *Server) handleDeleteTarget(c *fiber.Ctx) error {
	if err := s.cfg.Pilot.SetTarget(nil); err != nil {
		return err
	}
	return statusOK(c)
}

// handleReset zeroes controller memory, optionally re-seeding the pose.
func (s *Server) handleReset(c *fiber.Ctx) error {
	var d protocol.ResetData
	if err := parseBody(c, &d); err != nil {
		return err
	}
	var seed *pose.Pose
	if d.Pose != nil {
		p, err := d.Pose.Pose()
		if err != nil {
			return badRequest(err)
		}
		seed = &p
	}
	if err := s.cfg.Pilot.Reset(seed); err != nil {
		return badRequest(err)
	}
	return statusOK(c)
}

func (s *Server) handleGetPose(c *fiber.Ctx) error {
	cur, ok := s.cfg.Poses.Latest()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no pose received yet")
	}
	return c.JSON(fiber.Map{
		"pose":   cur.Pose,
		"seq":    cur.Seq,
		"source": cur.Source,
		"age_ms": time.Since(cur.At).Milliseconds(),
	})
}

func (s *Server) handlePostPose(c *fiber.Ctx) error {
	var d protocol.PoseData
	if err := parseBody(c, &d); err != nil {
		return err
	}
	p, err := d.Pose()
	if err != nil {
		return badRequest(err)
	}
	seq := s.cfg.Poses.Publish(p, poseSourceHTTP)
	return c.JSON(fiber.Map{"status": "ok", "seq": seq})
}

// handleManual drives the robot from a joystick; release returns to auto.
func (s *Server) handleManual(c *fiber.Ctx) error {
	var d protocol.ManualData
	if err := parseBody(c, &d); err != nil {
		return err
	}
	if d.Release {
		s.cfg.Pilot.SetAuto()
		return statusOK(c)
	}
	m := pilot.Manual{X: d.X, Y: d.Y}
	if err := s.cfg.Pilot.SetManual(m); err != nil {
		return badRequest(err)
	}
	return c.JSON(fiber.Map{
		"status":       "ok",
		"steering_deg": m.Steering(s.cfg.Pilot.GetTuningParams().MaxSteeringDeg*math.Pi/180.0) * 180.0 / math.Pi,
	})
}

func (s *Server) handleAuto(c *fiber.Ctx) error {
	s.cfg.Pilot.SetAuto()
	return statusOK(c)
}

func (s *Server) handleSources(c *fiber.Ctx) error {
	if s.cfg.Ingest == nil {
		return fiber.NewError(fiber.StatusNotFound, "pose ingest disabled")
	}
	return c.JSON(fiber.Map{
		"sources": s.cfg.Ingest.Sources(),
		"count":   s.cfg.Ingest.SourceCount(),
	})
}
