// Package game はゲームルールエンジンとの連携部分を定義します
// ロビー本体はルールを解釈せず、初期状態の生成だけをエンジンに委譲します
package game

import (
	"encoding/json"
	"sort"
	"sync"
)

// Engine はゲーム定義からプレイ初期状態を生成するインターフェース
type Engine interface {
	// InitialState はルーム作成時のプレイ初期状態を生成します
	InitialState(numPlayers int, setup map[string]any) (json.RawMessage, error)
}

// Registry は名前で引けるゲーム定義の一覧を保持します
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry は空のRegistryを作成します
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register はゲーム定義を登録します（同名は上書き）
func (r *Registry) Register(name string, e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = e
}

// Get は名前に対応するエンジンを返します
func (r *Registry) Get(name string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	return e, ok
}

// Names は登録済みのゲーム名を名前順で返します
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FreeForAll はルール状態を持たない組み込みのゲーム定義です
// サーバーを単体で動かすときのデフォルトとして登録します
type FreeForAll struct{}

func (FreeForAll) InitialState(numPlayers int, setup map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
