package events

// Event type constants for kelindar/event.
const (
	TypeCameraStateChanged uint32 = iota + 1
	TypeFrameStalled
	TypeClientConnected
	TypeClientDisconnected
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraStateChangedEvent is published when the camera pipeline changes state
// (starting, running, stopped, crashed).
type CameraStateChangedEvent struct {
	State     string `json:"state" example:"running" doc:"New pipeline state"`
	Detail    string `json:"detail,omitempty" doc:"Additional detail, e.g. exit reason"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraStateChanged }

// FrameStalledEvent is published when no frame has been captured for longer
// than the configured stale threshold.
type FrameStalledEvent struct {
	LastVersion  uint64 `json:"last_version" doc:"Version of the last published frame"`
	StalledForMs int64  `json:"stalled_for_ms" doc:"Milliseconds since the last frame"`
	Timestamp    string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameStalledEvent.
func (e FrameStalledEvent) Type() uint32 { return TypeFrameStalled }

// ClientConnectedEvent is published when an MJPEG stream client connects.
type ClientConnectedEvent struct {
	RemoteAddr string `json:"remote_addr" example:"192.168.1.20:51344" doc:"Client address"`
	Timestamp  string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClientConnectedEvent.
func (e ClientConnectedEvent) Type() uint32 { return TypeClientConnected }

// ClientDisconnectedEvent is published when an MJPEG stream client departs.
type ClientDisconnectedEvent struct {
	RemoteAddr string `json:"remote_addr" doc:"Client address"`
	DurationMs int64  `json:"duration_ms" doc:"Connection lifetime in milliseconds"`
	FramesSent uint64 `json:"frames_sent" doc:"Frames delivered to this client"`
	Timestamp  string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClientDisconnectedEvent.
func (e ClientDisconnectedEvent) Type() uint32 { return TypeClientDisconnected }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
