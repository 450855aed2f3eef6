package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/djsteinke/piCam/internal/events"
	"github.com/djsteinke/piCam/internal/logging"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	if s.eventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time event stream for camera pipeline state, frame stalls, and stream client activity",
		Tags:        []string{"events"},
	}, map[string]any{
		"camera-state-changed": events.CameraStateChangedEvent{},
		"frame-stalled":        events.FrameStalledEvent{},
		"client-connected":     events.ClientConnectedEvent{},
		"client-disconnected":  events.ClientDisconnectedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Event channel for this connection
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CameraStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameStalledEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ClientConnectedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ClientDisconnectedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial snapshot so a client knows the state it joined at
		if err := send.Data(events.CameraStateChangedEvent{
			State:     s.currentCameraState(),
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

func (s *Server) currentCameraState() string {
	if s.camera == nil {
		return "idle"
	}
	return string(s.camera.State())
}

// registerLogRoutes registers the log streaming SSE endpoint.
func (s *Server) registerLogRoutes() {
	if s.eventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Historical entries from the ring buffer first
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				event := events.LogEntryEvent{
					Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
					Level:      entry.Level,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}

		eventCh := make(chan any, 100) // larger buffer for logs

		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
