package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// sseKeepAlive is how often an idle event stream gets a comment line so
// proxies do not close it.
var sseKeepAlive = 25 * time.Second

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.deps.Rooms.Create(r.Context())
	if err != nil {
		s.writeRoomError(w, r, err)
		return
	}
	s.metrics.RecordRoomCreated()
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.deps.Rooms.Get(r.Context(), r.PathValue("code"))
	if err != nil {
		s.writeRoomError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, room)
}

type roomUpdate struct {
	Content string `json:"content"`
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	var req roomUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	room, err := s.deps.Rooms.Update(r.Context(), r.PathValue("code"), req.Content)
	if err != nil {
		s.writeRoomError(w, r, err)
		return
	}
	s.metrics.RecordRoomUpdate()
	writeJSON(w, http.StatusOK, room)
}

// handleRoomEvents streams the room as server-sent events. The current
// state is sent first, then the latest state after every change. The
// stream ends when the room expires or the client goes away.
func (s *Server) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	room, err := s.deps.Rooms.Get(r.Context(), code)
	if err != nil {
		s.writeRoomError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	changes, cancel := s.deps.Rooms.Subscribe(code)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "room", room); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-changes:
			room, err := s.deps.Rooms.Get(r.Context(), code)
			if err != nil {
				_ = writeEvent(w, "closed", map[string]string{"code": code})
				flusher.Flush()
				return
			}
			if err := writeEvent(w, "room", room); err != nil {
				s.log.Debug("room stream closed", zap.String("room", code), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
