// Package service はビジネスロジックを担当します
// ルームのライフサイクル（作成・参加・退出・後続ルーム）とチーム編成を提供します
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gamelobby/lobby-server/internal/game"
	"github.com/gamelobby/lobby-server/internal/idgen"
	"github.com/gamelobby/lobby-server/internal/models"
	"github.com/gamelobby/lobby-server/internal/repo"
)

// defaultNumPlayers はnumPlayers未指定時のスロット数
const defaultNumPlayers = 2

// RoomService はルーム管理のビジネスロジックを提供します
// 状態遷移は必ずrepo.Mutate経由で行い、検証がすべて通ってから書き込みます
type RoomService struct {
	repo   repo.RoomRepo    // データ永続化を担当するリポジトリ
	games  *game.Registry   // ゲーム定義の一覧
	idg    IDGenerator      // ルームID生成器
	creds  CredentialIssuer // 資格情報の発行器
	teams  *TeamFormation   // チーム編成エンジン
	ttlSec int              // ルームの有効期限（秒）
}

// IDGenerator はユニークなIDを生成するインターフェース
type IDGenerator interface {
	New() (string, error) // 新しいIDを生成
}

// roomIDGen はIDGeneratorの実装
type roomIDGen struct{}

// New は新しいルームIDを生成します
func (roomIDGen) New() (string, error) { return idgen.NewRoomID() }

// NewRoomIDGenerator は新しいRoomIDGeneratorを作成します
func NewRoomIDGenerator() IDGenerator {
	return roomIDGen{}
}

// NewRoomService は新しいRoomServiceを作成します
func NewRoomService(r repo.RoomRepo, games *game.Registry, idg IDGenerator, creds CredentialIssuer, teams *TeamFormation, ttlSec int) *RoomService {
	return &RoomService{repo: r, games: games, idg: idg, creds: creds, teams: teams, ttlSec: ttlSec}
}

// GameNames は登録済みのゲーム名一覧を返します
func (s *RoomService) GameNames() []string {
	return s.games.Names()
}

// Create は新しいルームを作成します
// 処理の流れ:
// 1. ゲーム定義を解決し、ルールエンジンに初期状態の生成を委譲
// 2. ユニークなルームIDを生成（重複チェック付き、最大10回リトライ)
// 3. 全スロット空席のルームを保存
// 戻り値: 生成されたルームID、エラー
func (s *RoomService) Create(ctx context.Context, gameName string, numPlayers int, setupData map[string]any, unlisted bool) (string, error) {
	engine, ok := s.games.Get(gameName)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownGame, gameName)
	}
	if numPlayers < 1 {
		numPlayers = defaultNumPlayers
	}

	// setupData未指定でもチーム編成の受け皿は常に用意しておく
	if setupData == nil {
		setupData = map[string]any{}
	}

	initialState, err := engine.InitialState(numPlayers, setupData)
	if err != nil {
		return "", fmt.Errorf("%w: game setup rejected: %v", ErrValidation, err)
	}

	players := make(map[int]*models.Player, numPlayers)
	for i := 0; i < numPlayers; i++ {
		players[i] = &models.Player{ID: i}
	}
	room := models.Room{
		GameName:  gameName,
		Players:   players,
		SetupData: setupData,
		Unlisted:  unlisted,
		CreatedAt: time.Now().Unix(),
	}

	// ID被りがあった場合、最大maxRetries回まで再生成を試みる
	const maxRetries = 10
	for i := 0; i < maxRetries; i++ {
		room.RoomID, err = s.idg.New()
		if err != nil {
			return "", err
		}
		err = s.repo.CreateRoom(ctx, room, initialState, s.ttlSec)
		if err == nil {
			return room.RoomID, nil
		}
		if !errors.Is(err, repo.ErrRoomExists) {
			return "", err
		}
	}
	return "", ErrRoomIDGenerationFailed
}

// List は指定ゲームの公開ルーム一覧を返します
// unlistedなルームは除外し、資格情報は取り除きます
func (s *RoomService) List(ctx context.Context, gameName string) ([]models.RoomView, error) {
	rooms, err := s.repo.ListRooms(ctx, gameName)
	if err != nil {
		return nil, err
	}
	views := make([]models.RoomView, 0, len(rooms))
	for i := range rooms {
		if rooms[i].Unlisted {
			continue
		}
		views = append(views, rooms[i].View())
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt != views[j].CreatedAt {
			return views[i].CreatedAt < views[j].CreatedAt
		}
		return views[i].RoomID < views[j].RoomID
	})
	return views, nil
}

// Get は指定されたルームの公開ビューを取得します
func (s *RoomService) Get(ctx context.Context, roomID string) (models.RoomView, error) {
	room, ok, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return models.RoomView{}, err
	}
	if !ok {
		return models.RoomView{}, ErrRoomNotFound
	}
	return room.View(), nil
}

// Join はプレイヤーを空席スロットへ着席させ、資格情報を発行して返します
func (s *RoomService) Join(ctx context.Context, roomID string, playerID int, playerName string, data *models.PlayerData) (string, error) {
	if playerName == "" {
		return "", fmt.Errorf("%w: playerName required", ErrValidation)
	}

	var credentials string
	_, found, err := s.repo.Mutate(ctx, roomID, func(room *models.Room) (repo.Action, error) {
		p, ok := room.Players[playerID]
		if !ok {
			return repo.ActionNone, ErrPlayerNotFound
		}
		if p.Seated() {
			return repo.ActionNone, ErrSlotTaken
		}
		c, err := s.creds.Issue()
		if err != nil {
			return repo.ActionNone, err
		}
		p.Name = playerName
		p.Credentials = c
		if data != nil {
			p.Data = data
		}
		credentials = c
		return repo.ActionSave, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrRoomNotFound
	}
	return credentials, nil
}

// Leave はプレイヤーをスロットから退出させます
// 最後の着席者が退出したルームは削除します（後続ルームがある場合は
// nextRoomIDの参照先として残し、TTLに回収を任せます）
func (s *RoomService) Leave(ctx context.Context, roomID string, playerID int, credentials string) error {
	_, found, err := s.repo.Mutate(ctx, roomID, func(room *models.Room) (repo.Action, error) {
		p, ok := room.Players[playerID]
		if !ok {
			return repo.ActionNone, ErrPlayerNotFound
		}
		if !ValidateCredentials(credentials, p.Credentials) {
			return repo.ActionNone, ErrCredentialMismatch
		}
		p.Name = ""
		p.Credentials = ""
		if p.Data != nil {
			p.Data.TeamAssignment = nil
		}
		if room.SeatedCount() == 0 && room.NextRoomID == "" {
			return repo.ActionDelete, nil
		}
		return repo.ActionSave, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrRoomNotFound
	}
	return nil
}

// UpdatePlayer は着席中プレイヤーの名前変更とペイロード更新を行います
// newNameとdataの少なくとも一方が必要です
func (s *RoomService) UpdatePlayer(ctx context.Context, roomID string, playerID int, credentials, newName string, data *models.PlayerData) error {
	if newName == "" && data == nil {
		return fmt.Errorf("%w: newName or data required", ErrValidation)
	}
	_, found, err := s.repo.Mutate(ctx, roomID, func(room *models.Room) (repo.Action, error) {
		p, ok := room.Players[playerID]
		if !ok {
			return repo.ActionNone, ErrPlayerNotFound
		}
		if !ValidateCredentials(credentials, p.Credentials) {
			return repo.ActionNone, ErrCredentialMismatch
		}
		if newName != "" {
			p.Name = newName
		}
		if data != nil {
			// 編成済みのチーム所属は呼び出し側の上書きから保護する
			if data.TeamAssignment == nil && p.Data != nil {
				data.TeamAssignment = p.Data.TeamAssignment
			}
			p.Data = data
		}
		return repo.ActionSave, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrRoomNotFound
	}
	return nil
}

// Authorize は指定スロットの資格情報を検証します（状態は変更しません）
func (s *RoomService) Authorize(ctx context.Context, roomID string, playerID int, credentials string) error {
	room, ok, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomNotFound
	}
	p, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !ValidateCredentials(credentials, p.Credentials) {
		return ErrCredentialMismatch
	}
	return nil
}

// Rejoin は発行済みの資格情報を名前の一致するスロットに対して再検証します
// 状態は変更せず、レコードをそのまま保存し直します
func (s *RoomService) Rejoin(ctx context.Context, roomID, playerName, credentials string) error {
	_, found, err := s.repo.Mutate(ctx, roomID, func(room *models.Room) (repo.Action, error) {
		p := room.PlayerByName(playerName)
		if p == nil {
			return repo.ActionNone, ErrNameNotFound
		}
		if !ValidateCredentials(credentials, p.Credentials) {
			return repo.ActionNone, ErrCredentialMismatch
		}
		return repo.ActionSave, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrRoomNotFound
	}
	return nil
}

// PlayAgain は「もう一度遊ぶ」のための後続ルームを作成します
// すでに後続ルームがある場合はそのIDをそのまま返します（冪等）
// 新ルームはnumPlayers指定がなければ現在の着席人数、setupData指定がなければ
// 現在のsetupDataを引き継ぎます
func (s *RoomService) PlayAgain(ctx context.Context, roomID string, playerID int, credentials string, numPlayers int, setupData map[string]any, unlisted bool) (string, error) {
	room, ok, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrRoomNotFound
	}
	p, ok := room.Players[playerID]
	if !ok {
		return "", ErrPlayerNotFound
	}
	if !ValidateCredentials(credentials, p.Credentials) {
		return "", ErrCredentialMismatch
	}
	if room.NextRoomID != "" {
		return room.NextRoomID, nil
	}

	if numPlayers < 1 {
		numPlayers = room.SeatedCount()
	}
	if setupData == nil {
		setupData = room.SetupData
	}
	nextID, err := s.Create(ctx, room.GameName, numPlayers, setupData, unlisted)
	if err != nil {
		return "", err
	}

	winner := nextID
	_, found, err := s.repo.Mutate(ctx, roomID, func(room *models.Room) (repo.Action, error) {
		p, ok := room.Players[playerID]
		if !ok {
			return repo.ActionNone, ErrPlayerNotFound
		}
		if !ValidateCredentials(credentials, p.Credentials) {
			return repo.ActionNone, ErrCredentialMismatch
		}
		if room.NextRoomID != "" {
			// 並行リクエストに先を越された。既存のIDを正とする
			winner = room.NextRoomID
			return repo.ActionNone, nil
		}
		room.NextRoomID = nextID
		return repo.ActionSave, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrRoomNotFound
	}
	if winner != nextID {
		// 作ってしまった余分なルームをロールバック
		_ = s.repo.DeleteRoom(ctx, nextID)
	}
	return winner, nil
}

// CreateTeams は着席中の対象プレイヤーをチームへ分割し、結果を保存します
func (s *RoomService) CreateTeams(ctx context.Context, roomID string, numTeams int) ([]models.Team, error) {
	var teams []models.Team
	_, found, err := s.repo.Mutate(ctx, roomID, func(room *models.Room) (repo.Action, error) {
		t, err := s.teams.FormTeams(room, numTeams)
		if err != nil {
			return repo.ActionNone, err
		}
		teams = t
		return repo.ActionSave, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrRoomNotFound
	}
	return teams, nil
}

// RotateLeader は指定チームのリーダーを交代し、結果とルームの公開ビューを返します
func (s *RoomService) RotateLeader(ctx context.Context, roomID, teamID string) (RotationResult, models.RoomView, error) {
	var result RotationResult
	room, found, err := s.repo.Mutate(ctx, roomID, func(room *models.Room) (repo.Action, error) {
		r, err := s.teams.RotateLeader(room, teamID)
		if err != nil {
			return repo.ActionNone, err
		}
		result = r
		if !r.Rotated {
			return repo.ActionNone, nil
		}
		return repo.ActionSave, nil
	})
	if err != nil {
		return RotationResult{}, models.RoomView{}, err
	}
	if !found {
		return RotationResult{}, models.RoomView{}, ErrRoomNotFound
	}
	return result, room.View(), nil
}
