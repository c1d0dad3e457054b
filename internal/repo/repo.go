// Package repo はルームレコードの永続化を担当します
package repo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gamelobby/lobby-server/internal/models"
)

var (
	ErrRoomExists = errors.New("room already exists")
	ErrTxConflict = errors.New("concurrent update conflict")
)

// Action はMutateのミューテータが決定する書き込み動作
type Action int

const (
	ActionNone   Action = iota // 変更なし（そのまま終了）
	ActionSave                 // 変更をレコードに書き戻す
	ActionDelete               // レコードを削除する
)

// RoomRepo はルームレコードの永続化インターフェース
// Mutateは取得・変更・書き戻しを1つのアトミックな操作として提供します
// 同一ルームへの並行リクエストの整合性はこの操作に依存します
type RoomRepo interface {
	CreateRoom(ctx context.Context, room models.Room, initialState json.RawMessage, ttlSec int) error
	GetRoom(ctx context.Context, roomID string) (models.Room, bool, error)
	Mutate(ctx context.Context, roomID string, fn func(*models.Room) (Action, error)) (models.Room, bool, error)
	ListRooms(ctx context.Context, gameName string) ([]models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
}
