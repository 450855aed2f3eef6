// Package hub provides the latest-frame cell shared between the camera
// pipeline and HTTP stream consumers.
//
// The hub holds exactly one frame at a time together with a monotonically
// increasing version counter. The producer overwrites the slot on every
// publish; consumers compare versions to detect unseen frames, so a slow
// consumer skips intermediate frames instead of buffering them. Memory
// stays bounded regardless of consumer count or speed.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by WaitForNewer after Close has been called.
var ErrClosed = errors.New("frame hub closed")

// FrameHub is a single-slot frame cell with broadcast wakeup.
// One producer calls Publish; any number of consumers call WaitForNewer.
// The zero value is not usable, use New.
type FrameHub struct {
	mu      sync.Mutex
	cond    *sync.Cond
	frame   []byte
	version uint64
	closed  bool
	logger  *slog.Logger
}

// New creates an open FrameHub with no frame and version 0.
func New(logger *slog.Logger) *FrameHub {
	h := &FrameHub{logger: logger}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish replaces the current frame, increments the version and wakes
// every blocked waiter. The hub takes ownership of frame; the caller must
// not modify it afterwards. Publishing on a closed hub is a no-op.
func (h *FrameHub) Publish(frame []byte) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.frame = frame
	h.version++
	h.cond.Broadcast()
	h.mu.Unlock()
}

// WaitForNewer blocks until a frame with version > sinceVersion exists,
// the timeout elapses, ctx is cancelled, or the hub is closed.
//
// On success it returns a consistent (frame, version) snapshot. Callers
// must treat the returned bytes as read-only: the same slice may be
// handed to other consumers concurrently. On timeout it returns
// (nil, current version, true, nil); a timeout is a liveness poll, not
// an error. After Close it returns ErrClosed. Context cancellation is
// reported as ctx.Err() and is observed no later than the timeout bound.
func (h *FrameHub) WaitForNewer(ctx context.Context, sinceVersion uint64, timeout time.Duration) ([]byte, uint64, bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// sync.Cond has no timed wait, so a helper goroutine broadcasts when
	// the timer fires or the context is cancelled. The timedOut flag is
	// read under the hub lock to keep the snapshot consistent.
	var timedOut bool
	wakeDone := make(chan struct{})
	defer close(wakeDone)
	go func() {
		select {
		case <-deadline.C:
			h.mu.Lock()
			timedOut = true
			h.cond.Broadcast()
			h.mu.Unlock()
		case <-ctx.Done():
			h.mu.Lock()
			h.cond.Broadcast()
			h.mu.Unlock()
		case <-wakeDone:
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		if h.closed {
			return nil, 0, false, ErrClosed
		}
		if h.version > sinceVersion {
			return h.frame, h.version, false, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, h.version, false, err
		}
		if timedOut {
			return nil, h.version, true, nil
		}
		h.cond.Wait()
	}
}

// Snapshot returns the current frame and version without blocking.
// The frame is nil until the first publish.
func (h *FrameHub) Snapshot() ([]byte, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame, h.version
}

// Version returns the current version counter.
func (h *FrameHub) Version() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// Ready reports whether at least one frame has been published.
func (h *FrameHub) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version > 0
}

// Close marks the hub closed and wakes all waiters so they observe
// ErrClosed instead of blocking forever. Close is idempotent.
func (h *FrameHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.frame = nil
	h.cond.Broadcast()
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Info("Frame hub closed")
	}
}
