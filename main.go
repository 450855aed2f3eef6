package main

import (
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/djsteinke/piCam/cmd"
	"github.com/djsteinke/piCam/internal/api"
	"github.com/djsteinke/piCam/internal/camera"
	"github.com/djsteinke/piCam/internal/config"
	"github.com/djsteinke/piCam/internal/events"
	"github.com/djsteinke/piCam/internal/hub"
	"github.com/djsteinke/piCam/internal/logging"
	"github.com/djsteinke/piCam/internal/metrics/exporters"
	"github.com/djsteinke/piCam/internal/mjpeg"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8080" toml:"server.port" env:"SERVER_PORT"`

	// Camera settings
	CameraConfigFile string `help:"Camera settings file" default:"camera.toml" toml:"camera.config_file" env:"CAMERA_CONFIG_FILE"`
	CameraStaleSecs  int    `help:"Seconds without a frame before the feed is considered stalled" default:"10" toml:"camera.stale_seconds" env:"CAMERA_STALE_SECONDS"`

	// Stream settings
	StreamWaitTimeoutMs int `help:"Per-client wait timeout in milliseconds" default:"1000" toml:"stream.wait_timeout_ms" env:"STREAM_WAIT_TIMEOUT_MS"`

	// Metrics settings
	MetricsEnabled bool `help:"Enable Prometheus metrics endpoint" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera  string `help:"Camera pipeline logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingEncoder string `help:"Encoder subprocess logging level" default:"warning" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingStream  string `help:"Stream logging level" default:"info" toml:"logging.stream" env:"LOGGING_STREAM"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"camera":  opts.LoggingCamera,
				"encoder": opts.LoggingEncoder,
				"stream":  opts.LoggingStream,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Event bus for in-process event handling
		eventBus := events.New()

		// Bridge log entries onto the bus so /api/logs/stream sees them live
		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		settings, err := config.LoadCameraSettings(opts.CameraConfigFile)
		if err != nil {
			logger.Error("Failed to load camera settings, using defaults", "error", err)
			settings = config.DefaultCameraSettings()
		}

		staleAfter := time.Duration(opts.CameraStaleSecs) * time.Second

		frameHub := hub.New(logging.GetLogger("camera"))
		cameraManager := camera.NewManager(&camera.Options{
			Hub:           frameHub,
			Bus:           eventBus,
			Settings:      settings,
			StaleAfter:    staleAfter,
			Logger:        logging.GetLogger("camera"),
			EncoderLogger: logging.GetLogger("encoder"),
		})

		broadcaster := mjpeg.NewBroadcaster(frameHub, logging.GetLogger("stream"),
			mjpeg.WithWaitTimeout(time.Duration(opts.StreamWaitTimeoutMs)*time.Millisecond),
			mjpeg.WithStaleAfter(staleAfter),
			mjpeg.WithBus(eventBus))

		// Hot reload of camera settings
		watcher := config.NewWatcher(
			opts.CameraConfigFile,
			config.LoadCameraSettings,
			logger,
		)
		watcher.OnReload(func(fresh config.CameraSettings) {
			if applyErr := cameraManager.ApplySettings(fresh); applyErr != nil {
				logger.Warn("Rejected reloaded camera settings", "error", applyErr)
			}
		})

		apiOpts := &api.Options{
			Hub:         frameHub,
			Broadcaster: broadcaster,
			Camera:      cameraManager,
			Bus:         eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}

		server := api.NewServer(apiOpts)

		hooks.OnStart(func() {
			cameraManager.Start()

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Camera config watch unavailable", "error", watchErr, "file", opts.CameraConfigFile)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Error("Error stopping config watcher", "error", stopErr)
			}

			// Closing the hub releases every streaming client still blocked
			cameraManager.Stop()
			frameHub.Close()
		})
	})

	cli.Root().AddCommand(cmd.CreateCaptureCmd())

	cli.Run()
}
