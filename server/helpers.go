package server

import (
	"errors"
	"fmt"
	"net/http"

	"tangled.org/atscan.net/martifact/internal/report"
	"tangled.org/atscan.net/martifact/internal/types"
)

// getScheme determines the HTTP scheme
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}

	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}

	if r.Header.Get("X-Forwarded-Ssl") == "on" {
		return "https"
	}

	return "http"
}

// getWSScheme determines the WebSocket scheme
func getWSScheme(r *http.Request) string {
	if getScheme(r) == "https" {
		return "wss"
	}
	return "ws"
}

// getBaseURL returns the base URL for HTTP
func getBaseURL(r *http.Request) string {
	return fmt.Sprintf("%s://%s", getScheme(r), r.Host)
}

// getWSURL returns the base URL for WebSocket
func getWSURL(r *http.Request) string {
	return fmt.Sprintf("%s://%s", getWSScheme(r), r.Host)
}

// formatNumber formats numbers with thousand separators
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

// errorStatus maps an inspection error to an HTTP status: 413 when the
// upload limit was hit, 400 for other body read failures, 422 for artifacts
// that do not decode
func errorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case types.KindOf(err) == types.KindIOFailure:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func newErrorResponse(err error) ErrorResponse {
	info := report.NewErrorInfo(err)
	resp := ErrorResponse{Error: info.Message, Index: info.Index}
	if info.Kind != "Error" {
		resp.Kind = info.Kind
		resp.Reason = info.Reason
		resp.Section = info.Section
	}
	return resp
}
