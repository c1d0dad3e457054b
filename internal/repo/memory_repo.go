package repo

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gamelobby/lobby-server/internal/models"
)

// MemoryRoomRepo はメモリ上のRoomRepo実装です
// 単一プロセス構成とテストで使用します。全操作をミューテックスで直列化するため
// MutateのアトミックなRead-Modify-Write契約はRedis実装と同等に成立します
type MemoryRoomRepo struct {
	mu     sync.Mutex
	rooms  map[string][]byte // roomID → JSON化したレコード
	states map[string][]byte // roomID → ルールエンジンの初期状態
	games  map[string][]string
}

func NewMemoryRoomRepo() *MemoryRoomRepo {
	return &MemoryRoomRepo{
		rooms:  make(map[string][]byte),
		states: make(map[string][]byte),
		games:  make(map[string][]string),
	}
}

func (mr *MemoryRoomRepo) CreateRoom(ctx context.Context, room models.Room, initialState json.RawMessage, ttlSec int) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if _, ok := mr.rooms[room.RoomID]; ok {
		return ErrRoomExists
	}
	b, err := json.Marshal(room)
	if err != nil {
		return err
	}
	mr.rooms[room.RoomID] = b
	if len(initialState) > 0 {
		mr.states[room.RoomID] = append([]byte(nil), initialState...)
	}
	mr.games[room.GameName] = append(mr.games[room.GameName], room.RoomID)
	return nil
}

func (mr *MemoryRoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, bool, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.getLocked(roomID)
}

func (mr *MemoryRoomRepo) getLocked(roomID string) (models.Room, bool, error) {
	b, ok := mr.rooms[roomID]
	if !ok {
		return models.Room{}, false, nil
	}
	var r models.Room
	if err := json.Unmarshal(b, &r); err != nil {
		return models.Room{}, false, err
	}
	return r, true, nil
}

func (mr *MemoryRoomRepo) Mutate(ctx context.Context, roomID string, fn func(*models.Room) (Action, error)) (models.Room, bool, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	room, found, err := mr.getLocked(roomID)
	if err != nil || !found {
		return models.Room{}, found, err
	}

	action, err := fn(&room)
	if err != nil {
		return models.Room{}, true, err
	}
	switch action {
	case ActionSave:
		b, err := json.Marshal(room)
		if err != nil {
			return models.Room{}, true, err
		}
		mr.rooms[roomID] = b
	case ActionDelete:
		mr.deleteLocked(roomID, room.GameName)
	}
	return room, true, nil
}

func (mr *MemoryRoomRepo) ListRooms(ctx context.Context, gameName string) ([]models.Room, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	res := make([]models.Room, 0, len(mr.games[gameName]))
	for _, id := range mr.games[gameName] {
		r, ok, err := mr.getLocked(id)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, r)
		}
	}
	return res, nil
}

func (mr *MemoryRoomRepo) DeleteRoom(ctx context.Context, roomID string) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	room, found, err := mr.getLocked(roomID)
	if err != nil {
		return err
	}
	if found {
		mr.deleteLocked(roomID, room.GameName)
	}
	return nil
}

func (mr *MemoryRoomRepo) deleteLocked(roomID, gameName string) {
	delete(mr.rooms, roomID)
	delete(mr.states, roomID)
	ids := mr.games[gameName]
	for i, id := range ids {
		if id == roomID {
			mr.games[gameName] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}
