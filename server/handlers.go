package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"tangled.org/atscan.net/martifact/internal/catalog"
	"tangled.org/atscan.net/martifact/internal/report"
	"tangled.org/atscan.net/martifact/internal/types"
)

func (s *Server) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		baseURL := getBaseURL(r)

		var sb strings.Builder
		sb.WriteString("\nmartifact server\n\n")
		sb.WriteString("Inspects and verifies mender artifacts: version, manifest,\n")
		sb.WriteString("header and every payload checked against its manifest digest.\n\n")

		sb.WriteString("Server\n")
		sb.WriteString("━━━━━━\n")
		fmt.Fprintf(&sb, "  Version:        %s\n", s.config.Version)
		fmt.Fprintf(&sb, "  Uptime:         %s\n", time.Since(s.GetStartTime()).Round(time.Second))
		fmt.Fprintf(&sb, "  Inspections:    %s\n", formatNumber(s.catalog.Count()))
		fmt.Fprintf(&sb, "  Upload limit:   %s\n", report.FormatBytes(s.config.MaxUploadSize))
		fmt.Fprintf(&sb, "  Checksum scope: %s\n\n", s.config.Decode.ChecksumScope)

		sb.WriteString("API Endpoints\n")
		sb.WriteString("━━━━━━━━━━━━━\n")
		fmt.Fprintf(&sb, "  POST %s/inspect\n", baseURL)
		sb.WriteString("       Body: artifact bytes. Returns {\"id\", \"report\"}.\n")
		fmt.Fprintf(&sb, "  GET  %s/catalog.json\n", baseURL)
		fmt.Fprintf(&sb, "  GET  %s/catalog/{id}\n", baseURL)
		fmt.Fprintf(&sb, "  GET  %s/status\n", baseURL)
		if s.config.EnableWebSocket {
			fmt.Fprintf(&sb, "  WS   %s/ws\n", getWSURL(r))
			sb.WriteString("       Send the artifact as binary messages, then the text \"end\".\n")
		}
		sb.WriteString("\nExample\n")
		sb.WriteString("━━━━━━━\n")
		fmt.Fprintf(&sb, "  curl --data-binary @release.mender %s/inspect\n", baseURL)

		w.Write([]byte(sb.String()))
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := s.catalog.Stats()

		response := StatusResponse{
			Server: ServerStatus{
				Version:          s.config.Version,
				WebSocketEnabled: s.config.EnableWebSocket,
				MaxUploadSize:    s.config.MaxUploadSize,
				ChecksumScope:    s.config.Decode.ChecksumScope.String(),
				UptimeSeconds:    int(time.Since(s.GetStartTime()).Seconds()),
			},
			Catalog: CatalogStatus{
				Count:         stats["entry_count"].(int),
				Valid:         stats["valid_count"].(int),
				Invalid:       stats["invalid_count"].(int),
				ArtifactNames: stats["artifact_names"].(int),
				TotalSize:     stats["total_size"].(int64),
				Persistent:    s.config.CatalogPath != "",
				UpdatedAt:     stats["updated_at"].(time.Time),
			},
		}

		sendJSON(w, 200, response)
	}
}

func (s *Server) handleInspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)
		defer body.Close()

		source := r.URL.Query().Get("name")
		if source == "" {
			source = "upload"
		}

		rep, err := report.Inspect(r.Context(), body, source, s.decodeConfig(), report.Options{})
		entry := catalog.NewEntry(rep)

		if err != nil {
			status := errorStatus(err)
			if status == http.StatusUnprocessableEntity {
				s.record(entry)
			}
			s.log.Info("inspection failed", "source", source, "status", status,
				"kind", types.KindOf(err).String(), "error", err.Error())

			resp := newErrorResponse(err)
			if status == http.StatusUnprocessableEntity {
				resp.ID = entry.ID
				resp.Report = rep
			}
			sendJSON(w, status, resp)
			return
		}

		s.record(entry)
		s.log.Info("inspected", "id", entry.ID, "source", source,
			"artifact", rep.ArtifactName, "valid", rep.Valid, "payloads", len(rep.Payloads))

		sendJSON(w, 200, InspectResponse{ID: entry.ID, Report: rep})
	}
}

func (s *Server) handleCatalogJSON() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, 200, s.catalog.Snapshot())
	}
}

func (s *Server) handleCatalogEntry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := s.catalog.Get(r.PathValue("id"))
		if err != nil {
			sendJSON(w, 404, map[string]string{"error": err.Error()})
			return
		}
		sendJSON(w, 200, entry)
	}
}
