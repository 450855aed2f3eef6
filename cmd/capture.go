// Package cmd holds the auxiliary CLI commands.
package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/djsteinke/piCam/internal/camera"
	"github.com/djsteinke/piCam/internal/config"
	"github.com/djsteinke/piCam/internal/hub"
	"github.com/djsteinke/piCam/internal/logging"
)

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var cameraConfigFile string
	var timeout time.Duration
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "capture [output-file]",
		Short: "Capture a single JPEG frame to a file",
		Long: `Starts the camera pipeline, waits for the first complete frame, ` +
			`writes it to the given file, and exits.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			outputFile := args[0]

			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("capture")

			settings, err := config.LoadCameraSettings(cameraConfigFile)
			if err != nil {
				logger.Error("Failed to load camera settings", "error", err, "config", cameraConfigFile)
				os.Exit(1)
			}

			frameHub := hub.New(logger)
			manager := camera.NewManager(&camera.Options{
				Hub:           frameHub,
				Settings:      settings,
				Logger:        logger,
				EncoderLogger: logging.GetLogger("encoder"),
			})
			manager.Start()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			frame, version, timedOut, err := frameHub.WaitForNewer(ctx, 0, timeout)
			cancel()
			manager.Stop()

			if err != nil || timedOut {
				logger.Error("No frame captured before timeout", "timeout", timeout, "error", err)
				os.Exit(1)
			}

			if err := os.WriteFile(outputFile, frame, 0o644); err != nil {
				logger.Error("Failed to write output file", "file", outputFile, "error", err)
				os.Exit(1)
			}

			logger.Info("Frame captured", "file", outputFile, "bytes", len(frame), "frame_version", version)
		},
	}

	cmd.Flags().StringVar(&cameraConfigFile, "camera-config", "camera.toml", "Camera settings file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the first frame")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")

	return cmd
}
