package handlers

import (
	"log"
	"net/http"

	"github.com/gamelobby/lobby-server/internal/models"
	"github.com/gamelobby/lobby-server/internal/service"
	"github.com/go-chi/chi/v5"
)

type RoomHandler struct {
	svc    *service.RoomService
	events *LobbyHub // ロビーイベントの配信先（nil可）
}

func NewRoomHandler(s *service.RoomService, events *LobbyHub) *RoomHandler {
	return &RoomHandler{svc: s, events: events}
}

type createRoomRequest struct {
	NumPlayers any            `json:"numPlayers"` // 数値以外や省略はデフォルト値にフォールバック
	SetupData  map[string]any `json:"setupData"`
	Unlisted   bool           `json:"unlisted"`
}

type joinRequest struct {
	PlayerID   *int               `json:"playerID"`
	PlayerName string             `json:"playerName"`
	Data       *models.PlayerData `json:"data"`
}

func (r joinRequest) validate() error {
	if err := validatePlayerId(r.PlayerID); err != nil {
		return err
	}
	return validatePlayerName(r.PlayerName)
}

type leaveRequest struct {
	PlayerID    *int   `json:"playerID"`
	Credentials string `json:"credentials"`
}

func (r leaveRequest) validate() error {
	return validatePlayerId(r.PlayerID)
}

type updateRequest struct {
	PlayerID    *int               `json:"playerID"`
	Credentials string             `json:"credentials"`
	NewName     string             `json:"newName"`
	Data        *models.PlayerData `json:"data"`
}

func (r updateRequest) validate() error {
	return validatePlayerId(r.PlayerID)
}

type playAgainRequest struct {
	PlayerID    *int           `json:"playerID"`
	Credentials string         `json:"credentials"`
	NumPlayers  any            `json:"numPlayers"`
	SetupData   map[string]any `json:"setupData"`
	Unlisted    bool           `json:"unlisted"`
}

func (r playAgainRequest) validate() error {
	return validatePlayerId(r.PlayerID)
}

type rejoinRequest struct {
	PlayerName  string `json:"playerName"`
	Credentials string `json:"credentials"`
}

// Games は登録済みのゲーム名一覧を返します
func (h *RoomHandler) Games(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.GameNames())
}

// Create は新しいルームを作成します
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	gameName := normalizeID(chi.URLParam(r, "gameName"))
	if err := validateGameName(gameName); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in createRoomRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	id, err := h.svc.Create(r.Context(), gameName, intFrom(in.NumPlayers), in.SetupData, in.Unlisted)
	if err != nil {
		log.Printf("Create room error (game=%s): %v", gameName, err)
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"gameID": id})
}

// List は指定ゲームの公開ルーム一覧を返します
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	gameName := normalizeID(chi.URLParam(r, "gameName"))
	if err := validateGameName(gameName); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rooms, err := h.svc.List(r.Context(), gameName)
	if err != nil {
		log.Printf("List rooms error (game=%s): %v", gameName, err)
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// Get はルームの公開ビューを返します
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	room, err := h.svc.Get(r.Context(), roomId)
	if err != nil {
		log.Printf("Get room error (roomId=%s): %v", roomId, err)
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, room)
}

// Join はプレイヤーを着席させて資格情報を返します
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in joinRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusForbidden, err.Error())
		return
	}

	credentials, err := h.svc.Join(r.Context(), roomId, *in.PlayerID, in.PlayerName, in.Data)
	if err != nil {
		log.Printf("Join room error (roomId=%s, playerID=%d): %v", roomId, *in.PlayerID, err)
		writeServiceError(w, err)
		return
	}
	h.events.Broadcast(roomId, "player_joined", map[string]any{
		"playerID":   *in.PlayerID,
		"playerName": in.PlayerName,
	})
	respondJSON(w, http.StatusOK, map[string]any{"playerCredentials": credentials})
}

// Leave はプレイヤーを退出させます
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in leaveRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusForbidden, err.Error())
		return
	}

	if err := h.svc.Leave(r.Context(), roomId, *in.PlayerID, in.Credentials); err != nil {
		log.Printf("Leave room error (roomId=%s, playerID=%d): %v", roomId, *in.PlayerID, err)
		writeServiceError(w, err)
		return
	}
	h.events.Broadcast(roomId, "player_left", map[string]any{"playerID": *in.PlayerID})
	respondJSON(w, http.StatusOK, map[string]any{})
}

// Update は着席中プレイヤーの名前・ペイロードを更新します
func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in updateRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusForbidden, err.Error())
		return
	}

	err := h.svc.UpdatePlayer(r.Context(), roomId, *in.PlayerID, in.Credentials, in.NewName, in.Data)
	if err != nil {
		log.Printf("Update player error (roomId=%s, playerID=%d): %v", roomId, *in.PlayerID, err)
		writeServiceError(w, err)
		return
	}
	if in.NewName != "" {
		h.events.Broadcast(roomId, "player_renamed", map[string]any{
			"playerID": *in.PlayerID,
			"newName":  in.NewName,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{})
}

// Rename は旧クライアント向けの互換エンドポイントです
func (h *RoomHandler) Rename(w http.ResponseWriter, r *http.Request) {
	log.Printf("deprecated endpoint /rename used (roomId=%s), use /update instead", chi.URLParam(r, "roomId"))
	h.Update(w, r)
}

// PlayAgain は後続ルームを作成し、そのIDを返します（冪等）
func (h *RoomHandler) PlayAgain(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in playAgainRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusForbidden, err.Error())
		return
	}

	nextID, err := h.svc.PlayAgain(r.Context(), roomId, *in.PlayerID, in.Credentials, intFrom(in.NumPlayers), in.SetupData, in.Unlisted)
	if err != nil {
		log.Printf("PlayAgain error (roomId=%s, playerID=%d): %v", roomId, *in.PlayerID, err)
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"nextRoomID": nextID})
}

// Rejoin は発行済み資格情報の再検証を行います
func (h *RoomHandler) Rejoin(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in rejoinRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validatePlayerName(in.PlayerName); err != nil {
		respondError(w, http.StatusForbidden, err.Error())
		return
	}

	if err := h.svc.Rejoin(r.Context(), roomId, in.PlayerName, in.Credentials); err != nil {
		log.Printf("Rejoin error (roomId=%s, playerName=%s): %v", roomId, in.PlayerName, err)
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rejoined": true})
}
