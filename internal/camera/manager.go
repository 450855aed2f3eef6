// Package camera supervises the external MJPEG encoder subprocess and
// publishes each complete frame to the hub.
//
// The encoder (rpicam-vid by default) writes a continuous MJPEG byte
// stream to stdout. The manager splits that stream into JPEG frames,
// publishes them, restarts the encoder with backoff when it crashes, and
// swaps the command on the fly when the camera settings file changes.
package camera

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/djsteinke/piCam/internal/config"
	"github.com/djsteinke/piCam/internal/events"
	"github.com/djsteinke/piCam/internal/hub"
	"github.com/djsteinke/piCam/internal/metrics"
	"github.com/djsteinke/piCam/internal/process"
)

// State describes the camera pipeline lifecycle.
type State string

// Pipeline states.
const (
	StateIdle     State = "idle"     // Not started
	StateStarting State = "starting" // Encoder launched, no frame yet
	StateRunning  State = "running"  // Frames flowing
	StateStopped  State = "stopped"  // Shut down
	StateCrashed  State = "crashed"  // Encoder exited, restart pending
)

const (
	restartBackoffMin = time.Second
	restartBackoffMax = 30 * time.Second

	// staleCheckInterval is how often the stall monitor looks at the
	// last frame timestamp.
	staleCheckInterval = time.Second
)

// Manager runs the camera pipeline and feeds the frame hub.
type Manager struct {
	hub    *hub.FrameHub
	bus    *events.Bus
	logger *slog.Logger

	staleAfter time.Duration

	mu          sync.RWMutex
	settings    config.CameraSettings
	state       State
	lastFrameAt time.Time
	proc        *process.Process

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a Manager.
type Options struct {
	Hub      *hub.FrameHub
	Bus      *events.Bus
	Settings config.CameraSettings
	// StaleAfter is how long without a frame before a FrameStalled event
	// is published. Zero disables the stall monitor.
	StaleAfter    time.Duration
	Logger        *slog.Logger
	EncoderLogger *slog.Logger
}

// NewManager creates a camera manager. Call Start to launch the encoder.
func NewManager(opts *Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		hub:        opts.Hub,
		bus:        opts.Bus,
		logger:     opts.Logger,
		staleAfter: opts.StaleAfter,
		settings:   opts.Settings,
		state:      StateIdle,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	proc := process.NewProcess("camera", BuildCommand(opts.Settings), opts.Logger)
	proc.SetStdoutConsumer(m.consumeFrames)
	if opts.EncoderLogger != nil {
		proc.SetLogParser(opts.EncoderLogger, parseEncoderLine)
	}
	m.proc = proc
	return m
}

// Start launches the encoder supervision loop.
func (m *Manager) Start() {
	go m.supervise()
	if m.staleAfter > 0 {
		go m.monitorStalls()
	}
}

// Stop shuts down the encoder and waits for the supervision loop to end.
func (m *Manager) Stop() {
	m.cancel()
	m.proc.Shutdown()
	<-m.done
	m.setState(StateStopped, "")
}

// State returns the current pipeline state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastFrameAt returns when the most recent frame was published.
// The zero time means no frame has arrived yet.
func (m *Manager) LastFrameAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFrameAt
}

// Settings returns the active camera settings.
func (m *Manager) Settings() config.CameraSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// ApplySettings validates new settings and restarts the encoder when the
// resulting command differs from the running one.
func (m *Manager) ApplySettings(settings config.CameraSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	newCommand := BuildCommand(settings)

	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()

	if newCommand == m.proc.GetCommand() {
		m.logger.Debug("Camera settings unchanged, not restarting encoder")
		return nil
	}

	m.logger.Info("Camera settings changed, restarting encoder")
	m.proc.RequestRestart(newCommand)
	return nil
}

// supervise runs the encoder, restarting with backoff on unexpected exit.
func (m *Manager) supervise() {
	defer close(m.done)

	backoff := restartBackoffMin
	for {
		m.setState(StateStarting, "")

		exitCode := m.proc.RunWithRestart()

		if m.ctx.Err() != nil {
			return
		}

		m.setState(StateCrashed, "encoder exited")
		m.logger.Error("Encoder exited, restarting", "exit_code", exitCode, "backoff", backoff)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(backoff):
		}

		metrics.CameraRestarted()
		backoff = min(backoff*2, restartBackoffMax)
	}
}

// consumeFrames is the subprocess stdout consumer: split the MJPEG
// stream and publish every complete frame.
func (m *Manager) consumeFrames(r io.Reader) {
	err := splitFrames(r, func(frame []byte) {
		m.hub.Publish(frame)
		metrics.FramePublished(len(frame))

		m.mu.Lock()
		first := m.state != StateRunning
		m.state = StateRunning
		m.lastFrameAt = time.Now()
		m.mu.Unlock()

		if first {
			m.logger.Info("Camera pipeline producing frames", "frame_bytes", len(frame))
			m.publishState(StateRunning, "")
		}
	})
	if err != nil && m.ctx.Err() == nil {
		m.logger.Warn("Frame stream read error", "error", err)
	}
}

// monitorStalls watches the frame cadence and publishes a FrameStalled
// event when the feed goes quiet. One event per stall, not per check.
func (m *Manager) monitorStalls() {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	warned := false
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		last := m.lastFrameAt
		running := m.state == StateRunning
		m.mu.RUnlock()

		if !running || last.IsZero() {
			continue
		}

		stalled := time.Since(last)
		if stalled > m.staleAfter {
			if !warned {
				m.logger.Warn("Camera feed stalled", "last_frame_age", stalled.Round(time.Second))
				if m.bus != nil {
					m.bus.Publish(events.FrameStalledEvent{
						LastVersion:  m.hub.Version(),
						StalledForMs: stalled.Milliseconds(),
						Timestamp:    time.Now().Format(time.RFC3339),
					})
				}
				warned = true
			}
		} else {
			warned = false
		}
	}
}

func (m *Manager) setState(state State, detail string) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.mu.Unlock()

	if changed {
		m.publishState(state, detail)
	}
}

func (m *Manager) publishState(state State, detail string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.CameraStateChangedEvent{
		State:     string(state),
		Detail:    detail,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
