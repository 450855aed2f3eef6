// Package models defines the request and response bodies for the HTTP API.
package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go version used to build"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Status models
type CameraStatusData struct {
	State          string `json:"state" example:"running" doc:"Camera pipeline state"`
	Width          int    `json:"width" example:"640" doc:"Capture width in pixels"`
	Height         int    `json:"height" example:"480" doc:"Capture height in pixels"`
	Framerate      int    `json:"framerate" example:"25" doc:"Capture framerate"`
	Quality        int    `json:"quality" example:"70" doc:"JPEG quality"`
	LastFrameAgeMs int64  `json:"last_frame_age_ms" example:"40" doc:"Milliseconds since the last captured frame, -1 if none yet"`
}

type StatusData struct {
	Ready         bool             `json:"ready" example:"true" doc:"Whether at least one frame has been published"`
	FrameVersion  uint64           `json:"frame_version" example:"1042" doc:"Version of the latest published frame"`
	StreamClients int              `json:"stream_clients" example:"2" doc:"Connected MJPEG stream clients"`
	UptimeSeconds int64            `json:"uptime_seconds" example:"3600" doc:"Server uptime in seconds"`
	Camera        CameraStatusData `json:"camera" doc:"Camera pipeline status"`
}

type StatusResponse struct {
	Body StatusData
}
