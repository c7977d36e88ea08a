package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"tangled.org/atscan.net/martifact/internal/catalog"
	"tangled.org/atscan.net/martifact/internal/report"
	"tangled.org/atscan.net/martifact/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// errUploadTooLarge is returned to the decoder when a WebSocket client sends
// more than the upload limit
var errUploadTooLarge = errors.New("upload exceeds size limit")

// handleWebSocket decodes an artifact streamed as binary messages. A text
// message "end" marks the end of the upload. Every decoder event is sent back
// as it happens, followed by a final report or error message.
func (s *Server) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.URL.Query().Get("name")
		if source == "" {
			source = "websocket"
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Error(err, "websocket upgrade failed")
			return
		}
		defer conn.Close()

		pr, pw := io.Pipe()
		go s.pumpUpload(conn, pw)

		cfg := s.decodeConfig()
		cfg.Observer = types.ObserverFunc(func(e types.Event) {
			msg := WSMessage{
				Type:    "event",
				Level:   e.Level.String(),
				Section: e.Section,
				Message: e.Message,
				Fields:  e.FieldMap(),
			}
			if err := writeWSMessage(conn, msg); err != nil {
				// Unblock the decoder; it sees the failure on its next read
				pr.CloseWithError(err)
			}
		})

		rep, err := report.Inspect(r.Context(), pr, source, cfg, report.Options{})
		// Stop the pump if the decoder finished before the upload did
		pr.CloseWithError(io.ErrClosedPipe)

		var final WSMessage
		if err != nil && errorStatus(err) != http.StatusUnprocessableEntity {
			final = WSMessage{Type: "error", Error: report.NewErrorInfo(err)}
		} else {
			entry := catalog.NewEntry(rep)
			s.record(entry)
			final = WSMessage{Type: "report", ID: entry.ID, Report: rep}
			if err != nil {
				final.Type = "error"
				final.Error = report.NewErrorInfo(err)
			}
		}

		if err := writeWSMessage(conn, final); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Error(err, "websocket write failed")
			}
			return
		}

		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
}

// pumpUpload copies binary messages into pw until the client sends "end",
// the upload limit is exceeded, or the connection fails. It is the only
// reader of conn.
func (s *Server) pumpUpload(conn *websocket.Conn, pw *io.PipeWriter) {
	var total int64
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.V(1).Info("websocket: client closed connection")
			}
			pw.CloseWithError(fmt.Errorf("websocket read: %w", err))
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			total += int64(len(data))
			if total > s.config.MaxUploadSize {
				pw.CloseWithError(errUploadTooLarge)
				return
			}
			if _, err := pw.Write(data); err != nil {
				return
			}
		case websocket.TextMessage:
			if strings.TrimSpace(string(data)) == "end" {
				pw.Close()
				return
			}
		}
	}
}

func writeWSMessage(conn *websocket.Conn, msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
