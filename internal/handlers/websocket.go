package handlers

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gamelobby/lobby-server/internal/idgen"
	"github.com/gamelobby/lobby-server/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// LobbyHub はルームごとのWebSocket接続を管理します
// REST側の状態遷移が成功したあとの通知専用で、ルーム状態の真実は常にストア側にあります
type LobbyHub struct {
	rooms map[string]*wsRoom // ルームIDをキーとしたルームのマップ
	mu    sync.RWMutex       // 読み書きのロック
}

// wsRoom は1つのルームのWebSocket接続を保持します
type wsRoom struct {
	roomId  string
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// wsClient は1つのWebSocket接続を表します
type wsClient struct {
	playerId int
	conn     *websocket.Conn
	room     *wsRoom
	sendMu   sync.Mutex // WriteJSONの直列化
}

// LobbyEvent はクライアントへ配信するロビーイベントです
type LobbyEvent struct {
	EventID   string `json:"eventID"`   // 時系列順に並ぶ一意なID
	Type      string `json:"type"`      // イベント種別 (例: "player_joined", "leader_changed")
	Timestamp int64  `json:"timestamp"` // 発生時刻（Unixタイムスタンプ）
	Payload   any    `json:"payload"`   // イベントのペイロード
}

// NewLobbyHub は空のLobbyHubを作成します
func NewLobbyHub() *LobbyHub {
	return &LobbyHub{rooms: make(map[string]*wsRoom)}
}

// Broadcast はルーム内の全接続へイベントを配信します
// hubがnilの場合（WebSocket無効構成）は何もしません
func (hub *LobbyHub) Broadcast(roomId, eventType string, payload any) {
	if hub == nil {
		return
	}
	hub.mu.RLock()
	room := hub.rooms[roomId]
	hub.mu.RUnlock()
	if room == nil {
		return
	}

	event := LobbyEvent{
		EventID:   idgen.NewULID(),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}

	room.mu.RLock()
	clients := make([]*wsClient, 0, len(room.clients))
	for c := range room.clients {
		clients = append(clients, c)
	}
	room.mu.RUnlock()

	for _, c := range clients {
		c.sendMu.Lock()
		err := c.conn.WriteJSON(event)
		c.sendMu.Unlock()
		if err != nil {
			log.Printf("broadcast error (roomId=%s, playerID=%d): %v", roomId, c.playerId, err)
		}
	}
}

func (hub *LobbyHub) register(roomId string, playerId int, conn *websocket.Conn) *wsClient {
	hub.mu.Lock()
	room, ok := hub.rooms[roomId]
	if !ok {
		room = &wsRoom{roomId: roomId, clients: make(map[*wsClient]struct{})}
		hub.rooms[roomId] = room
	}
	hub.mu.Unlock()

	client := &wsClient{playerId: playerId, conn: conn, room: room}
	room.mu.Lock()
	room.clients[client] = struct{}{}
	room.mu.Unlock()
	return client
}

func (hub *LobbyHub) unregister(client *wsClient) {
	room := client.room
	room.mu.Lock()
	delete(room.clients, client)
	empty := len(room.clients) == 0
	room.mu.Unlock()

	// 最後の接続が切れたらルームエントリも片付ける
	if empty {
		hub.mu.Lock()
		if r, ok := hub.rooms[room.roomId]; ok && r == room {
			r.mu.RLock()
			stillEmpty := len(r.clients) == 0
			r.mu.RUnlock()
			if stillEmpty {
				delete(hub.rooms, room.roomId)
			}
		}
		hub.mu.Unlock()
	}
}

// WebSocketHandler はロビーイベント購読用のWebSocket接続を受け付けます
type WebSocketHandler struct {
	svc      *service.RoomService
	hub      *LobbyHub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler は新しいWebSocketHandlerを作成します
func NewWebSocketHandler(s *service.RoomService, hub *LobbyHub) *WebSocketHandler {
	return &WebSocketHandler{
		svc: s,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORSはルーター側のミドルウェアで制御する
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket は接続を検証してハブへ登録します
// 着席時に発行された資格情報をクエリパラメータで提示する必要があります
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	playerId, err := strconv.Atoi(r.URL.Query().Get("playerID"))
	if err != nil {
		respondError(w, http.StatusForbidden, "playerID required")
		return
	}
	credentials := r.URL.Query().Get("credentials")

	if err := h.svc.Authorize(r.Context(), roomId, playerId, credentials); err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error (roomId=%s): %v", roomId, err)
		return
	}

	client := h.hub.register(roomId, playerId, conn)
	log.Printf("websocket connected (roomId=%s, playerID=%d)", roomId, playerId)

	// 購読専用。切断を検知するためだけに読み続ける
	go func() {
		defer func() {
			h.hub.unregister(client)
			conn.Close()
			log.Printf("websocket disconnected (roomId=%s, playerID=%d)", roomId, playerId)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
