// Package models はアプリケーションで使用するデータ構造を定義します
package models

// Role はスロットに着席したプレイヤーの役割を表します
// admin/playerの二値をタグ付きで持ち、両方・どちらでもない状態を排除します
type Role string

const (
	RoleAdmin  Role = "admin"  // 管理者（チーム分けの対象外）
	RolePlayer Role = "player" // 通常プレイヤー（チーム分けの対象）
)

// TeamAssignment はチーム編成後にプレイヤーへ付与される所属情報です
type TeamAssignment struct {
	TeamID string `json:"teamID"` // 所属チームのID
	Leader bool   `json:"leader"` // チームリーダーかどうか
}

// PlayerData はプレイヤーに紐づく任意のペイロードです
// 役割とチーム所属のほか、呼び出し側の独自データを保持します
type PlayerData struct {
	Role           Role            `json:"role,omitempty"`           // 役割（未指定はplayer扱い）
	TeamAssignment *TeamAssignment `json:"teamAssignment,omitempty"` // チーム所属（編成後のみ）
	Extra          map[string]any  `json:"extra,omitempty"`          // 呼び出し側の独自データ
}

// IsAdmin は役割がadminかどうかを返します
func (d *PlayerData) IsAdmin() bool {
	return d != nil && d.Role == RoleAdmin
}

// Player はルーム内の1スロットを表します
// Nameが空のスロットは空席です。NameとCredentialsは必ず同時に設定・解除されます
type Player struct {
	ID          int         `json:"id"`                    // スロット番号（0始まり、作成後不変）
	Name        string      `json:"name,omitempty"`        // プレイヤー名（空なら空席）
	Credentials string      `json:"credentials,omitempty"` // 着席時に発行される資格情報
	Data        *PlayerData `json:"data,omitempty"`        // 任意ペイロード
}

// Seated はこのスロットに誰かが着席しているかを返します
func (p *Player) Seated() bool {
	return p != nil && p.Name != ""
}

// Team はルーム内のチームを表します
// PlayerIDsは割り当て順を保持し、先頭がデフォルトのリーダーになります
type Team struct {
	TeamID    string `json:"teamID"`    // ルーム内で一意なチームID
	PlayerIDs []int  `json:"playerIDs"` // 所属プレイヤーのスロット番号（割り当て順）
}

// Room はゲームロビーの1インスタンスを表します
type Room struct {
	RoomID   string          `json:"roomID"`   // ルームの一意な識別子
	GameName string          `json:"gameName"` // このルームを生成したゲーム定義名
	Players  map[int]*Player `json:"players"`  // スロット番号 → プレイヤー
	// setupDataは空のマップでも「チーム編成の受け皿が設定されている」ことを
	// 意味するため、omitemptyを付けず永続化を経ても必ず残す
	SetupData  map[string]any `json:"setupData"`
	NextRoomID string         `json:"nextRoomID,omitempty"` // 「もう一度遊ぶ」で作られた後続ルームのID
	Unlisted   bool           `json:"unlisted,omitempty"`   // trueなら公開一覧から除外
	CreatedAt  int64          `json:"createdAt"`            // ルーム作成日時（Unixタイムスタンプ）
}

// NumPlayers はルームのスロット数を返します
func (r *Room) NumPlayers() int {
	return len(r.Players)
}

// SeatedCount は着席中のスロット数を返します
func (r *Room) SeatedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Seated() {
			n++
		}
	}
	return n
}

// PlayerByName は指定した名前で着席しているスロットを返します
// 見つからない場合はnilを返します
func (r *Room) PlayerByName(name string) *Player {
	for i := 0; i < len(r.Players); i++ {
		if p := r.Players[i]; p.Seated() && p.Name == name {
			return p
		}
	}
	return nil
}

// PlayerView は資格情報を除いた公開用のスロット情報です
type PlayerView struct {
	ID   int         `json:"id"`
	Name string      `json:"name,omitempty"`
	Data *PlayerData `json:"data,omitempty"`
}

// RoomView は資格情報を除いた公開用のルーム情報です
type RoomView struct {
	RoomID     string         `json:"roomID"`
	GameName   string         `json:"gameName"`
	Players    []PlayerView   `json:"players"`
	SetupData  map[string]any `json:"setupData"`
	NextRoomID string         `json:"nextRoomID,omitempty"`
	CreatedAt  int64          `json:"createdAt"`
}

// View は資格情報を取り除いた公開用ビューを作成します
// スロットは番号順に並びます
func (r *Room) View() RoomView {
	players := make([]PlayerView, 0, len(r.Players))
	for i := 0; i < len(r.Players); i++ {
		p := r.Players[i]
		players = append(players, PlayerView{ID: p.ID, Name: p.Name, Data: p.Data})
	}
	return RoomView{
		RoomID:     r.RoomID,
		GameName:   r.GameName,
		Players:    players,
		SetupData:  r.SetupData,
		NextRoomID: r.NextRoomID,
		CreatedAt:  r.CreatedAt,
	}
}
