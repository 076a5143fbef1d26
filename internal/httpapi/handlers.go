package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teamdiff/draft-backend/internal/registry"
	"github.com/teamdiff/draft-backend/internal/room"
)

// RoomSnapshot serves a read-only view of a live session, for spectator
// pages and debugging. Sessions are created over the websocket, not here.
func RoomSnapshot(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "roomID")

		reply := make(chan *room.Room, 1)
		reg.Inbox() <- registry.Get{ID: id, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		view := make(chan room.View, 1)
		rm.Inbox() <- room.GetState{Reply: view}
		select {
		case v := <-view:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v.State)
		case <-time.After(2 * time.Second):
			// Room tore down between lookup and query.
			http.Error(w, "room not found", http.StatusNotFound)
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
