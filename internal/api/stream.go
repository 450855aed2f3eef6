package api

import (
	"fmt"
	"net/http"

	"github.com/djsteinke/piCam/internal/config"
	"github.com/djsteinke/piCam/ui"
)

// registerStreamRoutes wires the raw mux routes that Huma cannot model:
// the multipart video feed, the snapshot image, and the index page.
func (s *Server) registerStreamRoutes() {
	if s.stream != nil {
		s.mux.Handle("GET /video_feed", s.stream)
	}
	s.mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /", s.handleIndex)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	settings := config.DefaultCameraSettings()
	if s.camera != nil {
		settings = s.camera.Settings()
	}
	ui.Handler(settings.Width, settings.Height).ServeHTTP(w, r)
}

// handleSnapshot serves the latest frame as a single JPEG image.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, version := s.hub.Snapshot()
	if frame == nil {
		http.Error(w, "camera not ready", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(frame); err != nil {
		s.logger.Debug("Snapshot write failed", "remote_addr", r.RemoteAddr, "frame_version", version, "error", err)
	}
}
