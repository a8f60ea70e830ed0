package api

import (
	"github.com/heimdex/heimdex-fetch/internal/jobs"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	UptimeS       int64  `json:"uptime_s"`
	EngineVersion string `json:"engine_version,omitempty"`
}

type RootResponse struct {
	Service   string            `json:"service"`
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// DownloadVideoRequest accepts resolution as a number or a numeric string.
type DownloadVideoRequest struct {
	VideoID    string  `json:"videoId"`
	Resolution any     `json:"resolution"`
	Title      *string `json:"title"`
}

// DownloadAudioRequest accepts quality as a number or a numeric string.
type DownloadAudioRequest struct {
	VideoID string  `json:"videoId"`
	Quality any     `json:"quality"`
	Title   *string `json:"title"`
}

type DispatchResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

type AllStatusResponse struct {
	Downloads map[string]jobs.Job `json:"downloads"`
}

type DeleteFileRequest struct {
	Filename *string `json:"filename"`
}

type DeleteFileResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
