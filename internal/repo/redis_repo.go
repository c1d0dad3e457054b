package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gamelobby/lobby-server/internal/models"
	"github.com/redis/go-redis/v9"
)

// mutateMaxRetries は楽観ロック衝突時の再試行回数
const mutateMaxRetries = 5

type RedisRoomRepo struct{ rdb *redis.Client }

func NewRedisRoomRepo(rdb *redis.Client) *RedisRoomRepo {
	return &RedisRoomRepo{rdb: rdb}
}

func roomKey(id string) string {
	return fmt.Sprintf("rooms:%s", id)
}
func stateKey(id string) string {
	return fmt.Sprintf("rooms:%s:state", id)
}
func gameKey(name string) string {
	return fmt.Sprintf("games:%s:rooms", name)
}

func sec(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func (rr *RedisRoomRepo) CreateRoom(ctx context.Context, room models.Room, initialState json.RawMessage, ttlSec int) error {
	b, err := json.Marshal(room)
	if err != nil {
		return err
	}
	d := sec(ttlSec)
	ok, err := rr.rdb.SetArgs(ctx, roomKey(room.RoomID), b, redis.SetArgs{Mode: "NX", TTL: d}).Result()
	if err != nil {
		return err
	}
	if ok != "OK" {
		return ErrRoomExists
	}
	pipe := rr.rdb.TxPipeline()
	if len(initialState) > 0 {
		pipe.Set(ctx, stateKey(room.RoomID), []byte(initialState), d) // ルールエンジンの初期状態
	}
	pipe.SAdd(ctx, gameKey(room.GameName), room.RoomID) // ゲームごとのルーム一覧に追加
	_, err = pipe.Exec(ctx)
	return err
}

func (rr *RedisRoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, bool, error) {
	val, err := rr.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if err == redis.Nil { // データがない
		return models.Room{}, false, nil
	}
	if err != nil { // エラー
		return models.Room{}, false, err
	}
	var r models.Room
	if err := json.Unmarshal(val, &r); err != nil {
		return models.Room{}, false, err
	}
	return r, true, nil
}

// Mutate はWATCHによる楽観ロックつきの取得・変更・書き戻しを行います
// 他のクライアントが同じルームを先に書き換えた場合は最初から再試行します
func (rr *RedisRoomRepo) Mutate(ctx context.Context, roomID string, fn func(*models.Room) (Action, error)) (models.Room, bool, error) {
	var (
		room  models.Room
		found bool
	)
	txf := func(tx *redis.Tx) error {
		room = models.Room{}
		found = false

		val, err := tx.Get(ctx, roomKey(roomID)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(val, &room); err != nil {
			return err
		}
		found = true

		action, err := fn(&room)
		if err != nil {
			return err
		}
		switch action {
		case ActionSave:
			b, err := json.Marshal(room)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, roomKey(roomID), b, redis.KeepTTL)
				return nil
			})
			return err
		case ActionDelete:
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, roomKey(roomID), stateKey(roomID))
				pipe.SRem(ctx, gameKey(room.GameName), roomID)
				return nil
			})
			return err
		default:
			return nil
		}
	}

	for i := 0; i < mutateMaxRetries; i++ {
		err := rr.rdb.Watch(ctx, txf, roomKey(roomID))
		if err == redis.TxFailedErr {
			continue // 書き込み競合、再試行
		}
		if err != nil {
			return models.Room{}, false, err
		}
		return room, found, nil
	}
	return models.Room{}, false, ErrTxConflict
}

func (rr *RedisRoomRepo) ListRooms(ctx context.Context, gameName string) ([]models.Room, error) {
	ids, err := rr.rdb.SMembers(ctx, gameKey(gameName)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}

	// 一括取得。期限切れで消えたルームはスキップ
	vals, err := rr.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]models.Room, 0, len(ids))
	for _, val := range vals {
		if val == nil {
			continue
		}
		b, ok := val.(string)
		if !ok {
			continue
		}
		var r models.Room
		if json.Unmarshal([]byte(b), &r) == nil {
			res = append(res, r)
		}
	}
	return res, nil
}

func (rr *RedisRoomRepo) DeleteRoom(ctx context.Context, roomID string) error {
	// Luaスクリプトでアトミックに処理
	// メタデータ・初期状態・ゲーム別一覧の3箇所を一括で消す
	script := `
		local room_key = KEYS[1]
		local state_key = KEYS[2]
		local room_id = ARGV[1]

		local raw = redis.call('GET', room_key)
		if raw then
			local room = cjson.decode(raw)
			if room.gameName then
				redis.call('SREM', 'games:' .. room.gameName .. ':rooms', room_id)
			end
		end

		redis.call('DEL', room_key, state_key)
		return 'OK'
	`

	return rr.rdb.Eval(ctx, script, []string{roomKey(roomID), stateKey(roomID)}, roomID).Err()
}
