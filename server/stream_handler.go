package server

import (
	"net/http"
	"time"

	"wadio/core/broadcast"
	"wadio/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteWait = 10 * time.Second

// join registers a new listener pump.
func (s *Server) join(r *http.Request, transport string) (*broadcast.Pump, uuid.UUID) {
	pump := broadcast.NewPump(s.cfg.ListenerBuffer)
	id := s.deps.Registry.Add(pump)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ListenerJoined()
	}
	logger.Info("new listener",
		logger.String("listener", id.String()),
		logger.String("remote", r.RemoteAddr),
		logger.String("transport", transport),
		logger.Int("listeners", s.deps.Registry.Len()))
	return pump, id
}

// handleStream sends the live MP3 stream as one endless HTTP response.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})
	if err := rc.Flush(); err != nil {
		logger.Warn("stream response cannot be flushed", logger.ErrorField(err))
		return
	}

	pump, id := s.join(r, "http")
	defer s.deps.Registry.Remove(id)

	err := pump.Run(r.Context(), func(chunk []byte) error {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		return rc.Flush()
	})
	logger.Debug("stream ended", logger.String("listener", id.String()), logger.ErrorField(err))
}

// handleWebSocket sends each chunk as one binary websocket message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	pump, id := s.join(r, "websocket")
	defer s.deps.Registry.Remove(id)

	// listeners never send anything; a read error means they are gone
	conn.SetReadLimit(512)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				pump.Close()
				return
			}
		}
	}()

	err = pump.Run(r.Context(), func(chunk []byte) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(websocket.BinaryMessage, chunk)
	})
	if err == nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
	}
	logger.Debug("websocket stream ended", logger.String("listener", id.String()), logger.ErrorField(err))
}
