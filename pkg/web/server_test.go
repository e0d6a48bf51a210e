package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/protocol"
	"github.com/teslashibe/go-finbot/pkg/telemetry"
)

func newTestServer(t *testing.T) (*Server, *pilot.Loop, *pose.Store) {
	t.Helper()
	store := pose.NewStore()
	loop, err := pilot.New(pilot.DefaultConfig(), store, nil)
	if err != nil {
		t.Fatalf("pilot.New: %v", err)
	}
	srv := NewServer(Config{Pilot: loop, Poses: store, Telemetry: NewTelemetry(1)})
	return srv, loop, store
}

func do(t *testing.T, srv *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s %s: body %q is not a JSON object: %v", method, path, data, err)
		}
	}
	return resp.StatusCode, out
}

func TestStatus(t *testing.T) {
	srv, loop, store := newTestServer(t)
	store.Publish(pose.Pose{}, "test")
	loop.Tick(time.Now())

	code, body := do(t, srv, "GET", "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body["drive"] != string(pilot.DriveIdle) {
		t.Errorf("drive = %v, want idle", body["drive"])
	}
	for _, key := range []string{"dt", "stats", "snapshot", "telemetry"} {
		if _, ok := body[key]; !ok {
			t.Errorf("status missing %q", key)
		}
	}
}

func TestWave(t *testing.T) {
	srv, loop, _ := newTestServer(t)

	code, body := do(t, srv, "PUT", "/api/wave", `{"amplitude_deg": 10, "frequency_hz": 0.5}`)
	if code != http.StatusOK {
		t.Fatalf("PUT /api/wave = %d %v", code, body)
	}
	if got := loop.Wave(); got.AmplitudeDeg != 10 || got.FrequencyHz != 0.5 || got.PhaseShiftDeg != 30 {
		t.Errorf("wave after PUT = %+v", got)
	}

	code, body = do(t, srv, "PUT", "/api/wave", `{"direction": 3}`)
	if code != http.StatusBadRequest {
		t.Errorf("bad direction = %d, want 400", code)
	}
	if body["error"] == nil {
		t.Error("error response should carry an error field")
	}

	code, body = do(t, srv, "GET", "/api/wave", "")
	if code != http.StatusOK || body["amplitude_deg"] != 10.0 {
		t.Errorf("GET /api/wave = %d %v", code, body)
	}
}

func TestTuning(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code, body := do(t, srv, "PUT", "/api/tuning", `{"heading_kp": 4}`)
	if code != http.StatusOK {
		t.Fatalf("PUT /api/tuning = %d %v", code, body)
	}
	if body["heading_kp"] != 4.0 || body["speed_kp"] != 1.2 {
		t.Errorf("tuning after PUT = %v", body)
	}

	code, _ = do(t, srv, "PUT", "/api/tuning", `{"max_steering_deg": 120}`)
	if code != http.StatusBadRequest {
		t.Errorf("max_steering_deg 120 = %d, want 400", code)
	}

	code, _ = do(t, srv, "PUT", "/api/tuning", `not json`)
	if code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", code)
	}
}

func TestTarget(t *testing.T) {
	srv, loop, store := newTestServer(t)
	store.Publish(pose.Pose{}, "test")

	if code, _ := do(t, srv, "GET", "/api/target", ""); code != http.StatusNotFound {
		t.Errorf("GET without target = %d, want 404", code)
	}

	code, body := do(t, srv, "PUT", "/api/target", `{"mode":"waypoint","destination":{"x":5,"y":0}}`)
	if code != http.StatusOK {
		t.Fatalf("PUT /api/target = %d %v", code, body)
	}
	if loop.Target() == nil || loop.Target().Destination.X != 5 {
		t.Errorf("loop target = %+v", loop.Target())
	}

	// Path from the current pose (0,0) to (0,0) is degenerate.
	code, _ = do(t, srv, "PUT", "/api/target", `{"mode":"path","destination":{"x":0,"y":0},"duration":5}`)
	if code != http.StatusBadRequest {
		t.Errorf("degenerate path = %d, want 400", code)
	}

	code, body = do(t, srv, "GET", "/api/target", "")
	if code != http.StatusOK || body["mode"] != "waypoint" {
		t.Errorf("GET /api/target = %d %v", code, body)
	}

	if code, _ := do(t, srv, "DELETE", "/api/target", ""); code != http.StatusOK {
		t.Errorf("DELETE /api/target = %d", code)
	}
	if loop.Target() != nil {
		t.Error("target should be cleared")
	}
}

func TestPose(t *testing.T) {
	srv, _, store := newTestServer(t)

	if code, _ := do(t, srv, "GET", "/api/pose", ""); code != http.StatusNotFound {
		t.Errorf("GET before any pose = %d, want 404", code)
	}

	code, body := do(t, srv, "POST", "/api/pose", `{"x":1,"y":2,"theta":0.5}`)
	if code != http.StatusOK || body["seq"] != 1.0 {
		t.Fatalf("POST /api/pose = %d %v", code, body)
	}
	s, _ := store.Latest()
	if s.Pose != (pose.Pose{X: 1, Y: 2, Theta: 0.5}) || s.Source != poseSourceHTTP {
		t.Errorf("store = %+v", s)
	}

	code, body = do(t, srv, "GET", "/api/pose", "")
	if code != http.StatusOK || body["source"] != poseSourceHTTP {
		t.Errorf("GET /api/pose = %d %v", code, body)
	}
}

func TestReset(t *testing.T) {
	srv, loop, store := newTestServer(t)
	store.Publish(pose.Pose{}, "test")

	if code, _ := do(t, srv, "POST", "/api/reset", ""); code != http.StatusOK {
		t.Errorf("POST /api/reset empty = %d", code)
	}

	code, _ := do(t, srv, "POST", "/api/reset", `{"pose":{"x":4,"y":0,"theta":0}}`)
	if code != http.StatusOK {
		t.Fatalf("POST /api/reset with pose = %d", code)
	}
	snap := loop.Tick(time.Now())
	if snap.Pose.X != 4 || snap.Time != 0 {
		t.Errorf("after reset: pose %+v, t %v", snap.Pose, snap.Time)
	}
}

func TestManualAndAuto(t *testing.T) {
	srv, loop, _ := newTestServer(t)

	code, body := do(t, srv, "POST", "/api/manual", `{"x":0.5,"y":0.2}`)
	if code != http.StatusOK {
		t.Fatalf("POST /api/manual = %d %v", code, body)
	}
	if got := body["steering_deg"].(float64); math.Abs(got-15) > 1e-9 {
		t.Errorf("steering_deg = %v, want 15", got)
	}
	if m, ok := loop.Manual(); !ok || m.X != 0.5 {
		t.Errorf("loop manual = %+v %v", m, ok)
	}

	if code, _ := do(t, srv, "POST", "/api/auto", ""); code != http.StatusOK {
		t.Errorf("POST /api/auto = %d", code)
	}
	if _, ok := loop.Manual(); ok {
		t.Error("manual should be released")
	}
}

func TestSources_DisabledWithoutIngest(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if code, _ := do(t, srv, "GET", "/api/sources", ""); code != http.StatusNotFound {
		t.Errorf("GET /api/sources = %d, want 404", code)
	}
}

func TestTelemetry_SkipsWithoutClients(t *testing.T) {
	tel := NewTelemetry(1)
	tel.Observe(pilot.Snapshot{Seq: 1})
	if st := tel.Stats(); st.JSON.Dropped != 0 || st.Frames.Dropped != 0 {
		t.Errorf("stats = %+v", st)
	}
	if st := tel.Stats(); st.JSON.Broadcast != 0 || st.Frames.Broadcast != 0 {
		t.Errorf("nothing should be broadcast without clients: %+v", st)
	}
}

func TestTelemetry_StreamsSnapshots(t *testing.T) {
	srv, loop, store := newTestServer(t)
	store.Publish(pose.Pose{}, "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.cfg.Telemetry.Run(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	defer srv.Shutdown(context.Background())

	base := "ws://" + ln.Addr().String()
	jsonWS, _, err := websocket.DefaultDialer.Dial(base+"/ws/telemetry", nil)
	if err != nil {
		t.Fatalf("dial telemetry: %v", err)
	}
	defer jsonWS.Close()
	frameWS, _, err := websocket.DefaultDialer.Dial(base+"/ws/frames", nil)
	if err != nil {
		t.Fatalf("dial frames: %v", err)
	}
	defer frameWS.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.cfg.Telemetry.json.ClientCount() == 0 || srv.cfg.Telemetry.frames.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("clients never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	srv.cfg.Telemetry.Observe(loop.Tick(time.Now()))

	jsonWS.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := jsonWS.ReadMessage()
	if err != nil {
		t.Fatalf("read telemetry: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil || msg.Type != protocol.TypeTelemetry {
		t.Fatalf("telemetry message = %v %v", msg, err)
	}
	var snap pilot.Snapshot
	if err := msg.ParseData(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.PWM) != 7 {
		t.Errorf("snapshot pwm len = %d, want 7", len(snap.PWM))
	}

	frameWS.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := frameWS.ReadMessage()
	if err != nil || kind != websocket.BinaryMessage {
		t.Fatalf("read frame: kind %d err %v", kind, err)
	}
	f, err := telemetry.UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if len(f.PWM) != 7 {
		t.Errorf("frame pwm len = %d, want 7", len(f.PWM))
	}
}
