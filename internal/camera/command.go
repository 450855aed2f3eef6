package camera

import (
	"fmt"
	"strings"

	"github.com/djsteinke/piCam/internal/config"
)

// BuildCommand returns the encoder command line for the given settings.
// An explicit settings.Command wins; otherwise an rpicam-vid invocation
// is generated that writes an MJPEG stream to stdout.
func BuildCommand(settings config.CameraSettings) string {
	if settings.Command != "" {
		return settings.Command
	}

	parts := []string{
		"rpicam-vid",
		"--timeout", "0",
		"--nopreview",
		"--codec", "mjpeg",
		"--width", fmt.Sprintf("%d", settings.Width),
		"--height", fmt.Sprintf("%d", settings.Height),
		"--framerate", fmt.Sprintf("%d", settings.Framerate),
		"--quality", fmt.Sprintf("%d", settings.Quality),
		"--flush",
		"--output", "-",
	}
	if settings.Device != "" {
		parts = append(parts, "--camera", settings.Device)
	}
	return strings.Join(parts, " ")
}

// parseEncoderLine maps rpicam/libcamera stderr lines to log levels so
// encoder noise lands at the right severity.
func parseEncoderLine(line string) (level, msg string) {
	switch {
	case strings.Contains(line, "ERROR"), strings.Contains(line, "fatal"):
		return "error", line
	case strings.Contains(line, "WARN"):
		return "warning", line
	default:
		// rpicam-vid logs routine pipeline info to stderr
		return "debug", line
	}
}
