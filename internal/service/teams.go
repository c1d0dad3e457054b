package service

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/gamelobby/lobby-server/internal/models"
)

// チーム編成の結果をsetupDataへ記録するときのキー
const (
	setupKeyTeams     = "teams"
	setupKeyAdminIDs  = "adminIDs"
	setupKeyPlayerIDs = "playerIDs"
	setupKeyLeaderIDs = "leaderIDs"
)

// TeamFormation はチーム分けとリーダー交代のロジックを提供します
// 状態を持たず、渡されたルームレコードだけを書き換えます
type TeamFormation struct {
	rng func(n int) int // [0,n)の乱数。テストでは固定値を注入
}

// NewTeamFormation はTeamFormationを作成します
// rngがnilの場合はmath/randを使用します
func NewTeamFormation(rng func(n int) int) *TeamFormation {
	if rng == nil {
		rng = rand.Intn
	}
	return &TeamFormation{rng: rng}
}

// RotationResult はリーダー交代の結果報告です
type RotationResult struct {
	Rotated       bool   // 実際に交代が起きたか（メンバー1人以下なら何もしない）
	NewLeaderID   int    // 交代後のリーダーのスロット番号
	NewLeaderName string // 交代後のリーダーのプレイヤー名
	LeaderIDs     []int  // 交代後の全チームのリーダー一覧（チーム順）
}

// FormTeams は着席中の対象プレイヤーをnumTeams個のチームへ分割します
// 対象はadmin以外の着席プレイヤーをスロット番号順に並べたもの。各チームは
// floor(n/numTeams)人ずつ順に埋め、余りはチーム0から1人ずつ追加します
// 各チームで最初に割り当てられたプレイヤーがリーダーになります
// 結果はプレイヤーごとのteamAssignmentとルームのsetupDataへ記録します
func (t *TeamFormation) FormTeams(room *models.Room, numTeams int) ([]models.Team, error) {
	if numTeams < 1 {
		return nil, fmt.Errorf("%w: numOfTeams required", ErrValidation)
	}
	if room.SetupData == nil {
		return nil, fmt.Errorf("%w: room has no setupData", ErrValidation)
	}

	// 対象プレイヤーの抽出はここで一度だけ行う
	eligible := make([]int, 0, len(room.Players))
	admins := make([]int, 0)
	for i := 0; i < len(room.Players); i++ {
		p := room.Players[i]
		if !p.Seated() {
			continue
		}
		if p.Data.IsAdmin() {
			admins = append(admins, i)
			continue
		}
		eligible = append(eligible, i)
	}

	teams := make([]models.Team, numTeams)
	for i := range teams {
		teams[i] = models.Team{TeamID: strconv.Itoa(i), PlayerIDs: []int{}}
	}

	base := len(eligible) / numTeams
	remainder := len(eligible) % numTeams

	cursor := 0
	for i := range teams {
		for j := 0; j < base; j++ {
			teams[i].PlayerIDs = append(teams[i].PlayerIDs, eligible[cursor])
			cursor++
		}
	}
	for i := 0; i < remainder; i++ {
		teams[i].PlayerIDs = append(teams[i].PlayerIDs, eligible[cursor])
		cursor++
	}

	leaderIDs := make([]int, 0, len(teams))
	for _, team := range teams {
		for idx, pid := range team.PlayerIDs {
			p := room.Players[pid]
			if p.Data == nil {
				p.Data = &models.PlayerData{}
			}
			p.Data.TeamAssignment = &models.TeamAssignment{TeamID: team.TeamID, Leader: idx == 0}
		}
		if len(team.PlayerIDs) > 0 {
			leaderIDs = append(leaderIDs, team.PlayerIDs[0])
		}
	}

	room.SetupData[setupKeyTeams] = teams
	room.SetupData[setupKeyAdminIDs] = admins
	room.SetupData[setupKeyPlayerIDs] = eligible
	room.SetupData[setupKeyLeaderIDs] = leaderIDs
	return teams, nil
}

// RotateLeader は指定チームの非リーダーから1人を無作為に選んで新リーダーにします
// メンバーが1人以下のチームでは何もせず、現状をそのまま報告します
func (t *TeamFormation) RotateLeader(room *models.Room, teamID string) (RotationResult, error) {
	teams, ok := teamsFromSetup(room)
	if !ok {
		return RotationResult{}, ErrTeamNotFound
	}
	var team *models.Team
	for i := range teams {
		if teams[i].TeamID == teamID {
			team = &teams[i]
			break
		}
	}
	if team == nil {
		return RotationResult{}, ErrTeamNotFound
	}

	// 退出済みのスロットはsetupData.teamsに残っていても交代の対象にしない
	current := currentLeader(room, *team)
	candidates := make([]int, 0, len(team.PlayerIDs))
	for _, pid := range team.PlayerIDs {
		if pid != current && room.Players[pid].Seated() {
			candidates = append(candidates, pid)
		}
	}
	if current < 0 || len(candidates) == 0 {
		// 交代相手がいない（1人以下、または他メンバーが退出済み）
		return RotationResult{
			Rotated:       false,
			NewLeaderID:   current,
			NewLeaderName: playerName(room, current),
			LeaderIDs:     leaderIDsOf(room, teams),
		}, nil
	}
	next := candidates[t.rng(len(candidates))]

	setLeaderFlag(room, current, teamID, false)
	setLeaderFlag(room, next, teamID, true)

	leaderIDs := leaderIDsOf(room, teams)
	room.SetupData[setupKeyLeaderIDs] = leaderIDs

	return RotationResult{
		Rotated:       true,
		NewLeaderID:   next,
		NewLeaderName: playerName(room, next),
		LeaderIDs:     leaderIDs,
	}, nil
}

// teamsFromSetup はsetupDataに記録されたチーム一覧を復元します
// 永続化を経由するとmap[string]anyになっているため、JSONを介して読み戻します
func teamsFromSetup(room *models.Room) ([]models.Team, bool) {
	if room.SetupData == nil {
		return nil, false
	}
	raw, ok := room.SetupData[setupKeyTeams]
	if !ok {
		return nil, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var teams []models.Team
	if json.Unmarshal(b, &teams) != nil {
		return nil, false
	}
	return teams, true
}

// currentLeader はチーム内の現リーダーを返します
// 退出でフラグが消えている場合は、着席中のメンバーの先頭をリーダーとみなします
// 着席中のメンバーがいないチームでは-1を返します
func currentLeader(room *models.Room, team models.Team) int {
	for _, pid := range team.PlayerIDs {
		p := room.Players[pid]
		if p.Seated() && p.Data != nil && p.Data.TeamAssignment != nil &&
			p.Data.TeamAssignment.TeamID == team.TeamID && p.Data.TeamAssignment.Leader {
			return pid
		}
	}
	for _, pid := range team.PlayerIDs {
		if room.Players[pid].Seated() {
			return pid
		}
	}
	return -1
}

func setLeaderFlag(room *models.Room, playerID int, teamID string, leader bool) {
	p := room.Players[playerID]
	if p == nil {
		return
	}
	if p.Data == nil {
		p.Data = &models.PlayerData{}
	}
	if p.Data.TeamAssignment == nil {
		p.Data.TeamAssignment = &models.TeamAssignment{TeamID: teamID}
	}
	p.Data.TeamAssignment.Leader = leader
}

func playerName(room *models.Room, playerID int) string {
	if p := room.Players[playerID]; p != nil {
		return p.Name
	}
	return ""
}

func leaderIDsOf(room *models.Room, teams []models.Team) []int {
	leaderIDs := make([]int, 0, len(teams))
	for _, team := range teams {
		if id := currentLeader(room, team); id >= 0 {
			leaderIDs = append(leaderIDs, id)
		}
	}
	return leaderIDs
}
