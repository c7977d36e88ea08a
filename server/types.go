package server

import (
	"time"

	"tangled.org/atscan.net/martifact/internal/report"
)

// StatusResponse is the /status endpoint response
type StatusResponse struct {
	Server  ServerStatus  `json:"server"`
	Catalog CatalogStatus `json:"catalog"`
}

// ServerStatus contains server information
type ServerStatus struct {
	Version          string `json:"version"`
	WebSocketEnabled bool   `json:"websocket_enabled"`
	MaxUploadSize    int64  `json:"max_upload_size"`
	ChecksumScope    string `json:"checksum_scope"`
	UptimeSeconds    int    `json:"uptime_seconds"`
}

// CatalogStatus contains catalog statistics
type CatalogStatus struct {
	Count         int       `json:"count"`
	Valid         int       `json:"valid"`
	Invalid       int       `json:"invalid"`
	ArtifactNames int       `json:"artifact_names"`
	TotalSize     int64     `json:"total_size"`
	Persistent    bool      `json:"persistent"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InspectResponse is the POST /inspect response
type InspectResponse struct {
	ID     string         `json:"id"`
	Report *report.Report `json:"report"`
}

// ErrorResponse describes a failed request. Kind, Reason and Section are set
// for decode errors.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Section string         `json:"section,omitempty"`
	Index   *int           `json:"index,omitempty"`
	ID      string         `json:"id,omitempty"`
	Report  *report.Report `json:"report,omitempty"`
}

// WSMessage is sent to WebSocket clients. Type is "event", "report" or "error".
type WSMessage struct {
	Type    string                 `json:"type"`
	Level   string                 `json:"level,omitempty"`
	Section string                 `json:"section,omitempty"`
	Message string                 `json:"message,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	ID      string                 `json:"id,omitempty"`
	Report  *report.Report         `json:"report,omitempty"`
	Error   *report.ErrorInfo      `json:"error,omitempty"`
}

// RequestLog represents a logged HTTP request
type RequestLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	Duration   int64     `json:"duration_ms"`
	UserAgent  string    `json:"user_agent"`
	RemoteAddr string    `json:"remote_addr"`
}
