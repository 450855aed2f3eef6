package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// CameraSettings holds the capture pipeline configuration. It lives in its
// own TOML file so it can be hot-reloaded without restarting the server.
type CameraSettings struct {
	// Command overrides the generated encoder command entirely. The
	// command must write an MJPEG byte stream to stdout.
	Command string `toml:"command,omitempty" json:"command,omitempty"`

	Device    string `toml:"device,omitempty" json:"device,omitempty"`
	Width     int    `toml:"width" json:"width"`
	Height    int    `toml:"height" json:"height"`
	Framerate int    `toml:"framerate" json:"framerate"`
	// Quality is the JPEG quality, 1-100.
	Quality int `toml:"quality" json:"quality"`
}

// DefaultCameraSettings returns the settings used when no camera config
// file exists: 640x480 at 25 fps, quality 70.
func DefaultCameraSettings() CameraSettings {
	return CameraSettings{
		Width:     640,
		Height:    480,
		Framerate: 25,
		Quality:   70,
	}
}

// Validate checks settings for obviously broken values.
func (s CameraSettings) Validate() error {
	if s.Command != "" {
		return nil
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", s.Width, s.Height)
	}
	if s.Framerate <= 0 {
		return fmt.Errorf("invalid framerate %d", s.Framerate)
	}
	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("invalid jpeg quality %d (want 1-100)", s.Quality)
	}
	return nil
}

// LoadCameraSettings reads camera settings from a TOML file, filling in
// defaults for missing fields. A missing file yields the defaults.
func LoadCameraSettings(path string) (CameraSettings, error) {
	settings := DefaultCameraSettings()

	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read camera config: %w", err)
	}

	var raw struct {
		Camera CameraSettings `toml:"camera"`
	}
	raw.Camera = settings
	if err := toml.Unmarshal(data, &raw); err != nil {
		return settings, fmt.Errorf("failed to parse camera config: %w", err)
	}

	if err := raw.Camera.Validate(); err != nil {
		return settings, err
	}
	return raw.Camera, nil
}
