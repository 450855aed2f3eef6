// Package mjpeg streams frames from the hub to HTTP clients as
// multipart/x-mixed-replace parts.
//
// Each connection runs its own broadcast loop: block on the hub until a
// frame newer than the last one sent exists, write it as one part, repeat.
// A slow client simply skips the frames it missed; a failed write tears
// down that one connection and nothing else.
package mjpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/djsteinke/piCam/internal/events"
	"github.com/djsteinke/piCam/internal/hub"
	"github.com/djsteinke/piCam/internal/metrics"
)

const (
	// DefaultWaitTimeout bounds each hub wait so a dead connection is
	// detected even when no frames arrive.
	DefaultWaitTimeout = time.Second

	// DefaultStaleAfter is how long without a new frame before the loop
	// logs a warning. Individual wait timeouts are routine and never logged.
	DefaultStaleAfter = 10 * time.Second
)

// Broadcaster copies frames from a FrameHub to one client connection.
type Broadcaster struct {
	hub         *hub.FrameHub
	bus         *events.Bus
	logger      *slog.Logger
	waitTimeout time.Duration
	staleAfter  time.Duration

	clients atomic.Int64
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithWaitTimeout overrides the per-wait timeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.waitTimeout = d
		}
	}
}

// WithStaleAfter overrides the stall warning threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.staleAfter = d
		}
	}
}

// WithBus publishes client connect and disconnect events to bus.
func WithBus(bus *events.Bus) Option {
	return func(b *Broadcaster) {
		b.bus = bus
	}
}

// NewBroadcaster creates a Broadcaster reading from h.
func NewBroadcaster(h *hub.FrameHub, logger *slog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		hub:         h,
		logger:      logger,
		waitTimeout: DefaultWaitTimeout,
		staleAfter:  DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Serve streams frames to w until the context is cancelled, the hub
// closes, or a write fails. Returns nil on clean shutdown (context or hub
// closed) and the write error otherwise.
//
// New connections start at version 0, so a frame that was published
// before the client connected is delivered immediately rather than
// waiting for the next capture.
func (b *Broadcaster) Serve(ctx context.Context, w io.Writer) error {
	var sent uint64
	return b.serve(ctx, w, &sent)
}

// Clients returns the number of currently connected stream clients.
func (b *Broadcaster) Clients() int {
	return int(b.clients.Load())
}

func (b *Broadcaster) serve(ctx context.Context, w io.Writer, sent *uint64) error {
	flusher, _ := w.(http.Flusher)

	var lastSent uint64
	lastFrameAt := time.Now()
	staleWarned := false

	for {
		frame, version, timedOut, err := b.hub.WaitForNewer(ctx, lastSent, b.waitTimeout)
		switch {
		case errors.Is(err, hub.ErrClosed):
			b.logger.Debug("Hub closed, ending stream")
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			b.logger.Debug("Client context done, ending stream")
			return nil
		case err != nil:
			return err
		}

		if timedOut {
			// Routine liveness poll. Only escalate when the feed has been
			// quiet well past the configured threshold.
			if !staleWarned && time.Since(lastFrameAt) > b.staleAfter {
				b.logger.Warn("No frame received, feed may be stalled",
					"last_frame_age", time.Since(lastFrameAt).Round(time.Second),
					"last_version", lastSent)
				staleWarned = true
			}
			continue
		}

		if err := writePart(w, frame); err != nil {
			return fmt.Errorf("write frame %d: %w", version, err)
		}
		if flusher != nil {
			flusher.Flush()
		}

		if skipped := version - lastSent - 1; skipped > 0 {
			metrics.FramesSkipped(skipped)
		}
		metrics.FrameSent(len(frame))
		*sent++
		lastSent = version
		lastFrameAt = time.Now()
		staleWarned = false
	}
}

// ServeHTTP implements http.Handler for the video feed endpoint. It
// answers 503 when no frame has ever been published and otherwise streams
// until the client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !b.hub.Ready() {
		b.logger.Warn("Video feed requested but no frame available yet", "remote_addr", r.RemoteAddr)
		http.Error(w, "camera not ready", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "close")

	metrics.ClientConnected()
	b.clients.Add(1)
	defer func() {
		b.clients.Add(-1)
		metrics.ClientDisconnected()
	}()

	b.logger.Info("Stream client connected", "remote_addr", r.RemoteAddr)
	if b.bus != nil {
		b.bus.Publish(events.ClientConnectedEvent{
			RemoteAddr: r.RemoteAddr,
			Timestamp:  time.Now().Format(time.RFC3339),
		})
	}

	start := time.Now()
	var sent uint64
	if err := b.serve(r.Context(), w, &sent); err != nil {
		// Broken pipe from a departed client, not a server problem.
		b.logger.Debug("Stream write failed", "remote_addr", r.RemoteAddr, "error", err)
	}

	b.logger.Info("Stream client disconnected",
		"remote_addr", r.RemoteAddr,
		"duration", time.Since(start).Round(time.Second),
		"frames_sent", sent)
	if b.bus != nil {
		b.bus.Publish(events.ClientDisconnectedEvent{
			RemoteAddr: r.RemoteAddr,
			DurationMs: time.Since(start).Milliseconds(),
			FramesSent: sent,
			Timestamp:  time.Now().Format(time.RFC3339),
		})
	}
}
