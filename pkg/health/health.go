// Package health exposes the daemon's liveness over the standard gRPC
// health protocol (grpc.health.v1), driven by the control loop's snapshots.
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/pilot"
)

// Service names reported besides the overall ("") status.
const (
	ServicePilot = "finbot.pilot" // loop is ticking
	ServicePose  = "finbot.pose"  // loop sees a fresh pose
)

// Source is the loop as seen by the health checker. *pilot.Loop implements it.
type Source interface {
	Latest() (pilot.Snapshot, bool)
}

// Server evaluates loop health and serves it over gRPC.
type Server struct {
	src       Source
	staleness time.Duration
	grpc      *grpc.Server
	hs        *health.Server

	mu       sync.Mutex
	lastSeq  uint64
	lastMove time.Time
	ticked   bool
}

// New creates a health server. The loop counts as stalled when its sequence
// number has not advanced for staleness.
func New(src Source, staleness time.Duration) *Server {
	if staleness <= 0 {
		staleness = time.Second
	}
	s := &Server{
		src:       src,
		staleness: staleness,
		grpc:      grpc.NewServer(),
		hs:        health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.hs)
	for _, svc := range []string{"", ServicePilot, ServicePose} {
		s.hs.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// Check evaluates the loop at now and publishes the result. The overall
// status is SERVING only when the loop ticks and the pose is fresh.
func (s *Server) Check(now time.Time) healthpb.HealthCheckResponse_ServingStatus {
	snap, ok := s.src.Latest()

	s.mu.Lock()
	if ok && (!s.ticked || snap.Seq != s.lastSeq) {
		s.lastSeq = snap.Seq
		s.lastMove = now
		s.ticked = true
	}
	running := s.ticked && now.Sub(s.lastMove) <= s.staleness
	s.mu.Unlock()

	fresh := running && snap.PoseFresh
	s.hs.SetServingStatus(ServicePilot, servingStatus(running))
	s.hs.SetServingStatus(ServicePose, servingStatus(fresh))
	overall := servingStatus(fresh)
	s.hs.SetServingStatus("", overall)
	return overall
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Run re-evaluates health every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last healthpb.HealthCheckResponse_ServingStatus = -1
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if st := s.Check(now); st != last {
				log.Info("health changed", "status", st.String())
				last = st
			}
		}
	}
}

// Serve accepts gRPC connections on ln and blocks.
func (s *Server) Serve(ln net.Listener) error {
	log.Info("grpc health listening", "addr", ln.Addr().String())
	if err := s.grpc.Serve(ln); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and blocks.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(ln)
}

// Stop marks every service NOT_SERVING and stops the gRPC server,
// letting in-flight calls finish.
func (s *Server) Stop() {
	s.hs.Shutdown()
	s.grpc.GracefulStop()
}
