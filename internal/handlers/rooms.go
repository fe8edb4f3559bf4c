// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// ListRoomsHandler serves GET /rooms. With ?available=1 only joinable rooms are listed.
func ListRoomsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rooms := gs.Registry.GetAllRooms()
		switch r.URL.Query().Get("available") {
		case "1", "true":
			rooms = gs.Registry.GetAvailableRooms()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rooms); err != nil {
			gs.logger.Warnf("failed to encode room list: %v", err)
		}
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	ActiveGames int    `json:"activeGames"`
}

// HealthHandler serves GET /healthz.
func HealthHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:      "ok",
			Rooms:       gs.Registry.Len(),
			Connections: gs.Hub.Count(),
			ActiveGames: gs.ActiveGames(),
		})
	}
}
