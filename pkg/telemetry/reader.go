package telemetry

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// ReadManifest loads the manifest of a recording directory.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// ReadFrames decodes every frame of a recording directory in write order.
func ReadFrames(dir string) ([]Frame, error) {
	f, err := os.Open(filepath.Join(dir, framesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer dec.Close()

	var frames []Frame
	header := make([]byte, frameHeaderLen)
	for {
		if _, err := io.ReadFull(dec, header); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, fmt.Errorf("read frame header: %w", err)
		}
		payload := make([]byte, binary.LittleEndian.Uint32(header[16:20]))
		if _, err := io.ReadFull(dec, payload); err != nil {
			return frames, fmt.Errorf("read frame payload: %w", err)
		}
		frame, err := UnmarshalFrame(payload)
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

// ReadEvents decodes every event of a recording directory.
func ReadEvents(dir string) ([]Event, error) {
	f, err := os.Open(filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(snappy.NewReader(f))
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return events, fmt.Errorf("parse event: %w", err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
