// Package process provides subprocess lifecycle management for the camera
// encoder pipeline.
//
// Process wraps os/exec for single subprocess management:
//   - Graceful shutdown with SIGINT and configurable timeout
//   - Force kill with SIGKILL if graceful shutdown times out
//   - Binary stdout handed to a consumer callback (the frame splitter)
//   - Stderr line streaming with pluggable log parsing
//   - Restart support for configuration changes
//
// Example:
//
//	p := process.NewProcess("camera", "rpicam-vid -t 0 --codec mjpeg -o -", logger)
//	p.SetStdoutConsumer(func(r io.Reader) { splitFrames(r) })
//	exitCode := p.RunWithRestart()
package process
