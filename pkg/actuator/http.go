package actuator

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-finbot/internal/httpc"
	"github.com/teslashibe/go-finbot/internal/log"
)

// HTTPSink posts commands to a bridge exposing POST /api/servos. It is the
// fallback for bridges without websocket support; one request is in flight
// at a time and newer commands replace queued ones.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	box      *mailbox
	errLog   *log.Throttle

	sent       atomic.Uint64
	superseded atomic.Uint64
	failed     atomic.Uint64
}

// NewHTTPSink creates a sink for the bridge at baseURL (e.g. http://192.168.4.1).
func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/servos",
		client:   httpc.NewClient(timeout),
		box:      newMailbox(),
		errLog:   log.NewThrottle(5 * time.Second),
	}
}

// Send queues cmd without blocking.
func (s *HTTPSink) Send(cmd Command) error {
	if s.box.put(cmd) {
		s.superseded.Add(1)
	}
	return nil
}

// Run posts queued commands until ctx is cancelled.
func (s *HTTPSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.box.ch:
			if !fresh(cmd, linkMaxCommandAge) {
				continue
			}
			if err := httpc.PostJSON(ctx, s.client, s.endpoint, cmd); err != nil {
				s.failed.Add(1)
				if ok, dropped := s.errLog.Allow(); ok {
					log.Warn("actuator http post failed", "error", err, "suppressed", dropped)
				}
				continue
			}
			s.sent.Add(1)
		}
	}
}

// Stats returns sent, superseded and failed counts.
func (s *HTTPSink) Stats() (sent, superseded, failed uint64) {
	return s.sent.Load(), s.superseded.Load(), s.failed.Load()
}
