package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"wadio/core/catalog"
	"wadio/logger"
	"wadio/model"

	"github.com/samber/lo"
)

type messageResponse struct {
	Message string `json:"message"`
}

type trackResponse struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Length uint64 `json:"length"`
}

type currentResponse struct {
	trackResponse
	Elapsed uint64 `json:"elapsed"`
}

type tracksResponse struct {
	Tracks []trackResponse `json:"tracks"`
}

func toTrackResponse(t model.Track, _ int) trackResponse {
	return trackResponse{Name: t.Title, Artist: t.Artist, Album: t.Album, Length: t.Length}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write API response", logger.ErrorField(err))
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, messageResponse{Message: "Not found"})
}

// handleCurrent returns the playing track with its elapsed time.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	track, elapsed, ok := s.deps.Scheduler.NowPlaying()
	if !ok {
		writeJSON(w, http.StatusOK, messageResponse{Message: "No current song"})
		return
	}
	writeJSON(w, http.StatusOK, currentResponse{
		trackResponse: toTrackResponse(track, 0),
		Elapsed:       elapsed,
	})
}

// handleQueue returns the upcoming tracks, next first.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tracksResponse{
		Tracks: lo.Map(s.deps.Scheduler.Queue(), toTrackResponse),
	})
}

// handleHistory returns the played tracks, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tracksResponse{
		Tracks: lo.Map(s.deps.Scheduler.History(), toTrackResponse),
	})
}

// handleCover returns the current track's embedded picture. Without a track
// or a picture the response is an empty JPEG body. Tracks scanned without a
// picture are not reopened.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	mime, data := "image/jpeg", []byte(nil)

	if track, ok := s.deps.Scheduler.Current(); ok && track.HasCover && s.deps.Covers != nil {
		m, d, err := s.deps.Covers.Cover(track.Path)
		switch {
		case err == nil:
			mime, data = m, d
		case !errors.Is(err, catalog.ErrNoCover):
			logger.Warn("failed to read cover",
				logger.String("track", track.DisplayName()),
				logger.ErrorField(err))
		}
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
