package telemetry

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	eventsFile   = "events.jsonl.sz"
	framesFile   = "frames.bin.zst"
	manifestFile = "manifest.json"

	// frameHeaderLen is seq(8) + captured unix ns(8) + payload length(4).
	frameHeaderLen = 20
	queueDepth     = 256
)

// ErrClosed is returned when writing to a closed recorder.
var ErrClosed = errors.New("telemetry: recorder closed")

// Manifest describes a recording directory.
type Manifest struct {
	Version    int     `json:"version"`
	RunID      string  `json:"run_id"`
	CreatedAt  string  `json:"created_at"`
	DT         float64 `json:"dt"`
	Joints     int     `json:"joints"`
	EventsPath string  `json:"events_path"`
	FramesPath string  `json:"frames_path"`
}

// Event is one line of the event log.
type Event struct {
	Time       float64         `json:"t"`
	CapturedAt string          `json:"captured_at"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type record struct {
	frame *Frame
	event *Event
}

// Recorder writes frames and events from a background goroutine. Frame and
// Event never block the caller; when the writer falls behind, records are
// dropped and counted.
type Recorder struct {
	dir      string
	manifest Manifest
	now      func() time.Time

	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder

	queue   chan record
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
	werr    error

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder creates root/<run-id>/ with a manifest and opens both streams.
func NewRecorder(root string, runID uuid.UUID, dt float64, joints int, clock func() time.Time) (*Recorder, error) {
	if root == "" {
		return nil, fmt.Errorf("telemetry: recording root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	dir := filepath.Join(root, runID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	manifest := Manifest{
		Version:    1,
		RunID:      runID.String(),
		CreatedAt:  clock().UTC().Format(time.RFC3339Nano),
		DT:         dt,
		Joints:     joints,
		EventsPath: eventsFile,
		FramesPath: framesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	eventFile, err := os.Create(filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	frameFile, err := os.Create(filepath.Join(dir, framesFile))
	if err != nil {
		eventFile.Close()
		return nil, fmt.Errorf("create frame log: %w", err)
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}

	r := &Recorder{
		dir:         dir,
		manifest:    manifest,
		now:         clock,
		eventFile:   eventFile,
		eventStream: snappy.NewBufferedWriter(eventFile),
		frameFile:   frameFile,
		frameStream: frameStream,
		queue:       make(chan record, queueDepth),
		done:        make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Directory returns the recording directory.
func (r *Recorder) Directory() string {
	return r.dir
}

// Manifest returns the manifest written at creation.
func (r *Recorder) Manifest() Manifest {
	return r.manifest
}

// Frame queues a frame.
func (r *Recorder) Frame(f Frame) {
	f.JointDeg = append([]float64(nil), f.JointDeg...)
	f.PWM = append([]float64(nil), f.PWM...)
	r.enqueue(record{frame: &f})
}

// Event queues an event whose payload is marshaled to JSON.
func (r *Recorder) Event(t float64, kind string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			r.dropped.Add(1)
			return
		}
		raw = data
	}
	r.enqueue(record{event: &Event{
		Time:       t,
		CapturedAt: r.now().UTC().Format(time.RFC3339Nano),
		Kind:       kind,
		Payload:    raw,
	}})
}

func (r *Recorder) enqueue(rec record) {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Stats returns the number of records written and dropped.
func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		var err error
		if rec.frame != nil {
			err = r.writeFrame(*rec.frame)
		} else {
			err = r.writeEvent(*rec.event)
		}
		if err != nil {
			if r.werr == nil {
				r.werr = err
			}
			r.dropped.Add(1)
			continue
		}
		r.written.Add(1)
	}
}

func (r *Recorder) writeFrame(f Frame) error {
	payload := MarshalFrame(f)
	header := make([]byte, frameHeaderLen)
	binary.LittleEndian.PutUint64(header[0:8], f.Seq)
	binary.LittleEndian.PutUint64(header[8:16], uint64(r.now().UnixNano()))
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(payload)))
	if _, err := r.frameStream.Write(header); err != nil {
		return err
	}
	_, err := r.frameStream.Write(payload)
	return err
}

func (r *Recorder) writeEvent(e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := r.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	return r.eventStream.Flush()
}

// Close drains queued records, flushes both streams and closes the files.
// It returns the first error encountered, including earlier write errors.
func (r *Recorder) Close() error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.queue)
	r.closeMu.Unlock()
	<-r.done

	firstErr := r.werr
	if err := r.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
