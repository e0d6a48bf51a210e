package actuator

import (
	"errors"
	"time"
)

var (
	// ErrNotConnected is returned when the bridge link is down; the command
	// is discarded.
	ErrNotConnected = errors.New("actuator: bridge not connected")
)

// Sink accepts one command per tick. Send must never block: a slow bridge
// loses commands, and the next tick supersedes them.
type Sink interface {
	Send(cmd Command) error
}

// Discard is a Sink that accepts and drops every command.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(Command) error { return nil }

// Tee fans a command out to several sinks.
type Tee []Sink

// Send delivers cmd to every sink and joins their errors.
func (t Tee) Send(cmd Command) error {
	var errs []error
	for _, s := range t {
		if err := s.Send(cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// mailbox holds at most one pending command. Putting into a full mailbox
// replaces the stale command so the writer always sees the newest one.
type mailbox struct {
	ch chan Command
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan Command, 1)}
}

// put stores cmd and reports whether an unsent command was replaced.
func (m *mailbox) put(cmd Command) (replaced bool) {
	for {
		select {
		case m.ch <- cmd:
			return replaced
		default:
		}
		select {
		case <-m.ch:
			replaced = true
		default:
		}
	}
}

// fresh reports whether cmd is still worth sending.
func fresh(cmd Command, maxAge time.Duration) bool {
	return maxAge <= 0 || cmd.At.IsZero() || time.Since(cmd.At) <= maxAge
}
