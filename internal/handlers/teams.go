package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createTeamsRequest struct {
	NumOfTeams *int `json:"numOfTeams"`
}

// CreateTeams は着席中の対象プレイヤーをチームへ分割します
func (h *RoomHandler) CreateTeams(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in createTeamsRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	numTeams := 0
	if in.NumOfTeams != nil {
		numTeams = *in.NumOfTeams
	}

	teams, err := h.svc.CreateTeams(r.Context(), roomId, numTeams)
	if err != nil {
		log.Printf("Create teams error (roomId=%s, numOfTeams=%d): %v", roomId, numTeams, err)
		writeServiceError(w, err)
		return
	}
	h.events.Broadcast(roomId, "teams_created", map[string]any{"teams": teams})
	respondJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

// RotateLeader は指定チームのリーダーを交代します
func (h *RoomHandler) RotateLeader(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	teamId := normalizeID(chi.URLParam(r, "teamId"))
	if teamId == "" {
		respondError(w, http.StatusBadRequest, "teamId required")
		return
	}

	result, room, err := h.svc.RotateLeader(r.Context(), roomId, teamId)
	if err != nil {
		log.Printf("Rotate leader error (roomId=%s, teamId=%s): %v", roomId, teamId, err)
		writeServiceError(w, err)
		return
	}
	if result.Rotated {
		h.events.Broadcast(roomId, "leader_changed", map[string]any{
			"teamID":   teamId,
			"playerID": result.NewLeaderID,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"playerName_newLeader": result.NewLeaderName,
		"playerID_newLeader":   result.NewLeaderID,
		"new_leadersID":        result.LeaderIDs,
		"new_players":          room.Players,
	})
}
