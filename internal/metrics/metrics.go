// Package metrics provides Prometheus metrics for the camera pipeline and
// MJPEG stream clients.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "picam",
		Subsystem: "camera",
		Name:      "frames_published_total",
		Help:      "Total frames published by the camera pipeline",
	})

	frameBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "picam",
		Subsystem: "camera",
		Name:      "frame_bytes",
		Help:      "Size of the most recently published frame in bytes",
	})

	cameraRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "picam",
		Subsystem: "camera",
		Name:      "restarts_total",
		Help:      "Total camera pipeline restarts",
	})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "picam",
		Subsystem: "stream",
		Name:      "clients",
		Help:      "Currently connected MJPEG stream clients",
	})

	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "picam",
		Subsystem: "stream",
		Name:      "frames_sent_total",
		Help:      "Total multipart frames written to stream clients",
	})

	framesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "picam",
		Subsystem: "stream",
		Name:      "frames_skipped_total",
		Help:      "Frames dropped for slow consumers (publish outpaced the client)",
	})

	bytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "picam",
		Subsystem: "stream",
		Name:      "bytes_sent_total",
		Help:      "Total frame bytes written to stream clients",
	})
)

// FramePublished records one published frame of the given size.
func FramePublished(size int) {
	framesPublished.Inc()
	frameBytes.Set(float64(size))
}

// CameraRestarted records a camera pipeline restart.
func CameraRestarted() {
	cameraRestarts.Inc()
}

// ClientConnected records a new MJPEG stream client.
func ClientConnected() {
	streamClients.Inc()
}

// ClientDisconnected records a departed MJPEG stream client.
func ClientDisconnected() {
	streamClients.Dec()
}

// FrameSent records one multipart frame written to a client.
func FrameSent(size int) {
	framesSent.Inc()
	bytesSent.Add(float64(size))
}

// FramesSkipped records frames a slow consumer never saw.
func FramesSkipped(n uint64) {
	framesSkipped.Add(float64(n))
}
