// Package api exposes the HTTP surface: the MJPEG video feed, snapshot
// and index routes on a raw mux, and the JSON API plus SSE event stream
// through Huma v2.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/djsteinke/piCam/internal/api/models"
	"github.com/djsteinke/piCam/internal/camera"
	"github.com/djsteinke/piCam/internal/config"
	"github.com/djsteinke/piCam/internal/events"
	"github.com/djsteinke/piCam/internal/hub"
	"github.com/djsteinke/piCam/internal/logging"
	"github.com/djsteinke/piCam/internal/mjpeg"
	"github.com/djsteinke/piCam/internal/version"
)

// CameraPipeline is the slice of the capture pipeline the API reports on.
// *camera.Manager satisfies it.
type CameraPipeline interface {
	State() camera.State
	LastFrameAt() time.Time
	Settings() config.CameraSettings
}

// Options configures the API server.
type Options struct {
	Hub         *hub.FrameHub
	Broadcaster *mjpeg.Broadcaster
	Camera      CameraPipeline
	Bus         *events.Bus
	// PrometheusHandler, when non-nil, is mounted at GET /metrics.
	PrometheusHandler http.Handler
}

// Server hosts the HTTP API on a Go 1.22+ native mux with Huma v2.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	hub        *hub.FrameHub
	stream     *mjpeg.Broadcaster
	camera     CameraPipeline
	eventBus   *events.Bus
	logger     *slog.Logger
	startedAt  time.Time
}

// NewServer creates the API server and registers all routes.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	apiConfig := huma.DefaultConfig("piCam API", version.String())
	apiConfig.Info.Description = "Live MJPEG camera streaming API"
	// Empty servers list makes OpenAPI use relative paths, working with any host
	apiConfig.Servers = []*huma.Server{}

	humaAPI := humago.New(mux, apiConfig)

	server := &Server{
		api:       humaAPI,
		mux:       mux,
		hub:       opts.Hub,
		stream:    opts.Broadcaster,
		camera:    opts.Camera,
		eventBus:  opts.Bus,
		logger:    logging.GetLogger("api"),
		startedAt: time.Now(),
	}

	humaAPI.UseMiddleware(NewCORSMiddleware(corsConfig))
	humaAPI.UseMiddleware(HTTPLoggingMiddleware)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	server.registerStreamRoutes()

	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start starts the HTTP server on the specified address and blocks until
// it exits.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting piCam API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	return s.httpServer.ListenAndServe()
}

// Stop shuts down the server. Stream connections are long-lived, so this
// closes immediately instead of draining.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	if s.httpServer != nil {
		return s.httpServer.Close()
	}

	return nil
}

// registerRoutes sets up the JSON API endpoints.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		versionInfo := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   versionInfo.Version,
				GitCommit: versionInfo.GitCommit,
				BuildDate: versionInfo.BuildDate,
				GoVersion: versionInfo.GoVersion,
				Compiler:  versionInfo.Compiler,
				Platform:  versionInfo.Platform,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Get camera pipeline and stream status",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.statusData()}, nil
	})

	s.registerSSERoutes()
	s.registerLogRoutes()
}

func (s *Server) statusData() models.StatusData {
	data := models.StatusData{
		Ready:         s.hub.Ready(),
		FrameVersion:  s.hub.Version(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.stream != nil {
		data.StreamClients = s.stream.Clients()
	}
	if s.camera != nil {
		settings := s.camera.Settings()
		data.Camera = models.CameraStatusData{
			State:          string(s.camera.State()),
			Width:          settings.Width,
			Height:         settings.Height,
			Framerate:      settings.Framerate,
			Quality:        settings.Quality,
			LastFrameAgeMs: -1,
		}
		if last := s.camera.LastFrameAt(); !last.IsZero() {
			data.Camera.LastFrameAgeMs = time.Since(last).Milliseconds()
		}
	}
	return data
}
