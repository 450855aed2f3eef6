package api

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/djsteinke/piCam/internal/camera"
	"github.com/djsteinke/piCam/internal/config"
	"github.com/djsteinke/piCam/internal/events"
	"github.com/djsteinke/piCam/internal/hub"
	"github.com/djsteinke/piCam/internal/mjpeg"
)

// fakeCamera is a test implementation of CameraPipeline.
type fakeCamera struct {
	mu          sync.Mutex
	state       camera.State
	lastFrameAt time.Time
	settings    config.CameraSettings
}

func (f *fakeCamera) State() camera.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeCamera) LastFrameAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFrameAt
}

func (f *fakeCamera) Settings() config.CameraSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeCamera) set(state camera.State, lastFrameAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.lastFrameAt = lastFrameAt
}

func newTestServer(t *testing.T) (*httptest.Server, *hub.FrameHub, *fakeCamera) {
	t.Helper()

	h := hub.New(slog.Default())
	cam := &fakeCamera{
		state:    camera.StateStarting,
		settings: config.DefaultCameraSettings(),
	}
	bus := events.New()
	broadcaster := mjpeg.NewBroadcaster(h, slog.Default(),
		mjpeg.WithWaitTimeout(50*time.Millisecond),
		mjpeg.WithBus(bus))

	server := NewServer(&Options{
		Hub:         h,
		Broadcaster: broadcaster,
		Camera:      cam,
		Bus:         bus,
	})

	ts := httptest.NewServer(server.mux)
	t.Cleanup(ts.Close)
	t.Cleanup(h.Close)
	return ts, h, cam
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", url, err)
		}
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	resp := getJSON(t, ts.URL+"/api/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Status != "ok" {
		t.Errorf("status field = %q, want %q", body.Status, "ok")
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var body struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
		Platform  string `json:"platform"`
	}
	resp := getJSON(t, ts.URL+"/api/version", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Version != "dev" {
		t.Errorf("version = %q, want %q", body.Version, "dev")
	}
	if body.GoVersion == "" || body.Platform == "" {
		t.Errorf("go_version %q and platform %q must be populated", body.GoVersion, body.Platform)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, h, cam := newTestServer(t)

	h.Publish([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	cam.set(camera.StateRunning, time.Now())

	var body struct {
		Ready        bool   `json:"ready"`
		FrameVersion uint64 `json:"frame_version"`
		Camera       struct {
			State          string `json:"state"`
			Width          int    `json:"width"`
			LastFrameAgeMs int64  `json:"last_frame_age_ms"`
		} `json:"camera"`
	}
	resp := getJSON(t, ts.URL+"/api/status", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Ready {
		t.Error("ready = false after a publish")
	}
	if body.FrameVersion != 1 {
		t.Errorf("frame_version = %d, want 1", body.FrameVersion)
	}
	if body.Camera.State != "running" {
		t.Errorf("camera state = %q, want %q", body.Camera.State, "running")
	}
	if body.Camera.Width != 640 {
		t.Errorf("camera width = %d, want 640", body.Camera.Width)
	}
	if body.Camera.LastFrameAgeMs < 0 {
		t.Errorf("last_frame_age_ms = %d, want >= 0", body.Camera.LastFrameAgeMs)
	}
}

func TestStatusReportsNoFrameYet(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var body struct {
		Ready  bool `json:"ready"`
		Camera struct {
			LastFrameAgeMs int64 `json:"last_frame_age_ms"`
		} `json:"camera"`
	}
	getJSON(t, ts.URL+"/api/status", &body)
	if body.Ready {
		t.Error("ready = true before any publish")
	}
	if body.Camera.LastFrameAgeMs != -1 {
		t.Errorf("last_frame_age_ms = %d, want -1", body.Camera.LastFrameAgeMs)
	}
}

func TestSnapshotNotReady(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestSnapshotReturnsLatestFrame(t *testing.T) {
	ts, h, _ := newTestServer(t)

	frame := []byte{0xFF, 0xD8, 0x42, 0xFF, 0xD9}
	h.Publish(frame)

	resp, err := http.Get(ts.URL + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != string(frame) {
		t.Errorf("body = %v, want %v", body, frame)
	}
}

func TestVideoFeedNotReady(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/video_feed")
	if err != nil {
		t.Fatalf("GET /video_feed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestVideoFeedStreamsFrames(t *testing.T) {
	ts, h, _ := newTestServer(t)

	frame := []byte{0xFF, 0xD8, 0x07, 0xFF, 0xD9}
	h.Publish(frame)

	resp, err := http.Get(ts.URL + "/video_feed")
	if err != nil {
		t.Fatalf("GET /video_feed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q, want multipart/x-mixed-replace", ct)
	}

	reader := multipart.NewReader(resp.Body, "frame")
	part, err := reader.NextPart()
	if err != nil {
		t.Fatalf("read first part: %v", err)
	}
	data, err := io.ReadAll(part)
	if err != nil {
		t.Fatalf("read part body: %v", err)
	}
	if string(data) != string(frame) {
		t.Errorf("part body = %v, want %v", data, frame)
	}
}

func TestIndexServesStreamPage(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "/video_feed") {
		t.Error("index page does not embed the video feed")
	}
	if !strings.Contains(string(body), `width="640"`) {
		t.Error("index page does not size the stream to the camera resolution")
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/health", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /api/health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", origin)
	}
}

func TestEventsStreamSendsInitialState(t *testing.T) {
	ts, _, cam := newTestServer(t)
	cam.set(camera.StateRunning, time.Now())

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	// The first event is a camera state snapshot for the new subscriber.
	scanner := bufio.NewScanner(resp.Body)
	deadline := time.After(5 * time.Second)
	found := make(chan string, 1)
	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data:") {
				found <- line
				return
			}
		}
	}()

	select {
	case line := <-found:
		if !strings.Contains(line, `"running"`) {
			t.Errorf("first event %q does not carry the camera state", line)
		}
	case <-deadline:
		t.Fatal("no SSE data received")
	}
}
