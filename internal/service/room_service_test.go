package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/gamelobby/lobby-server/internal/game"
	"github.com/gamelobby/lobby-server/internal/models"
	"github.com/gamelobby/lobby-server/internal/repo"
)

type fakeIDGen struct{ n int }

func (g *fakeIDGen) New() (string, error) {
	g.n++
	return fmt.Sprintf("room-%d", g.n), nil
}

type fakeIssuer struct{ n int }

func (f *fakeIssuer) Issue() (string, error) {
	f.n++
	return fmt.Sprintf("cred-%d", f.n), nil
}

type fakeEngine struct {
	err        error
	numPlayers int
	setup      map[string]any
}

func (e *fakeEngine) InitialState(numPlayers int, setup map[string]any) (json.RawMessage, error) {
	e.numPlayers = numPlayers
	e.setup = setup
	if e.err != nil {
		return nil, e.err
	}
	return json.RawMessage(`{"turn":0}`), nil
}

func newTestService(t *testing.T) (*RoomService, *repo.MemoryRoomRepo, *fakeEngine) {
	t.Helper()
	engine := &fakeEngine{}
	games := game.NewRegistry()
	games.Register("checkers", engine)

	store := repo.NewMemoryRoomRepo()
	svc := NewRoomService(store, games, &fakeIDGen{}, &fakeIssuer{}, NewTeamFormation(func(n int) int { return 0 }), 3600)
	return svc, store, engine
}

func mustCreate(t *testing.T, svc *RoomService, numPlayers int) string {
	t.Helper()
	id, err := svc.Create(context.Background(), "checkers", numPlayers, map[string]any{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return id
}

func mustJoin(t *testing.T, svc *RoomService, roomID string, playerID int, name string) string {
	t.Helper()
	creds, err := svc.Join(context.Background(), roomID, playerID, name, nil)
	if err != nil {
		t.Fatalf("join %s slot %d: %v", name, playerID, err)
	}
	return creds
}

func TestCreateRoomInitializesOpenSlots(t *testing.T) {
	svc, store, engine := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, 4)
	room, ok, err := store.GetRoom(ctx, id)
	if err != nil || !ok {
		t.Fatalf("get room: ok=%v err=%v", ok, err)
	}
	if room.NumPlayers() != 4 {
		t.Fatalf("expected 4 slots, got %d", room.NumPlayers())
	}
	for i := 0; i < 4; i++ {
		p, ok := room.Players[i]
		if !ok {
			t.Fatalf("missing slot %d", i)
		}
		if p.Seated() || p.Credentials != "" {
			t.Fatalf("slot %d should be open", i)
		}
	}
	if engine.numPlayers != 4 {
		t.Fatalf("rules engine saw %d players", engine.numPlayers)
	}
}

func TestCreateRoomDefaultsToTwoPlayers(t *testing.T) {
	svc, store, _ := newTestService(t)

	id := mustCreate(t, svc, 0)
	room, _, _ := store.GetRoom(context.Background(), id)
	if room.NumPlayers() != 2 {
		t.Fatalf("expected default of 2 slots, got %d", room.NumPlayers())
	}
}

func TestCreateRoomUnknownGame(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "no-such-game", 2, nil, false)
	if !errors.Is(err, ErrUnknownGame) {
		t.Fatalf("expected unknown game error, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown game should classify as validation, got %v", err)
	}
}

func TestCreateRoomEngineRejection(t *testing.T) {
	svc, _, engine := newTestService(t)
	engine.err = errors.New("bad setup")

	_, err := svc.Create(context.Background(), "checkers", 2, nil, false)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestJoinIssuesCredentialsAndRejectsTakenSlot(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)

	creds := mustJoin(t, svc, id, 0, "alice")
	if creds == "" {
		t.Fatal("expected credentials")
	}

	_, err := svc.Join(ctx, id, 0, "bob", nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// 先に着席した側の所有が保たれる
	room, _, _ := store.GetRoom(ctx, id)
	if room.Players[0].Name != "alice" || room.Players[0].Credentials != creds {
		t.Fatalf("slot 0 ownership changed: %+v", room.Players[0])
	}
}

func TestJoinValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)

	if _, err := svc.Join(ctx, id, 0, "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
	if _, err := svc.Join(ctx, "missing", 0, "alice", nil); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
	if _, err := svc.Join(ctx, id, 9, "alice", nil); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestLeaveClearsSlotAndDeletesEmptyRoom(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)

	credsA := mustJoin(t, svc, id, 0, "alice")
	credsB := mustJoin(t, svc, id, 1, "bob")

	if err := svc.Leave(ctx, id, 0, credsA); err != nil {
		t.Fatalf("leave: %v", err)
	}
	view, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("room should survive while bob is seated: %v", err)
	}
	if view.Players[0].Name != "" {
		t.Fatal("slot 0 should be cleared")
	}

	if err := svc.Leave(ctx, id, 1, credsB); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := svc.Get(ctx, id); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("empty room should be deleted, got %v", err)
	}
}

func TestLeaveRejectsWrongCredentials(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)
	mustJoin(t, svc, id, 0, "alice")

	if err := svc.Leave(ctx, id, 0, "wrong"); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	// 失敗した遷移は何も書き換えない
	room, _, _ := store.GetRoom(ctx, id)
	if !room.Players[0].Seated() {
		t.Fatal("failed leave must not clear the slot")
	}
}

func TestLeaveKeepsRoomWithSuccessor(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)
	creds := mustJoin(t, svc, id, 0, "alice")

	next, err := svc.PlayAgain(ctx, id, 0, creds, 0, nil, false)
	if err != nil {
		t.Fatalf("play again: %v", err)
	}

	if err := svc.Leave(ctx, id, 0, creds); err != nil {
		t.Fatalf("leave: %v", err)
	}
	// 後続ルームへのポインタを残すため、空でも削除しない
	view, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("room with successor should persist: %v", err)
	}
	if view.NextRoomID != next {
		t.Fatalf("expected nextRoomID %s, got %s", next, view.NextRoomID)
	}
}

func TestUpdatePlayer(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)
	creds := mustJoin(t, svc, id, 0, "alice")

	if err := svc.UpdatePlayer(ctx, id, 0, creds, "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error without newName/data, got %v", err)
	}
	if err := svc.UpdatePlayer(ctx, id, 0, "wrong", "alicia", nil); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	if err := svc.UpdatePlayer(ctx, id, 0, creds, "alicia", nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	room, _, _ := store.GetRoom(ctx, id)
	if room.Players[0].Name != "alicia" {
		t.Fatalf("expected renamed slot, got %q", room.Players[0].Name)
	}
	if room.Players[0].Credentials != creds {
		t.Fatal("credentials must survive a rename")
	}
}

func TestUpdatePlayerPreservesTeamAssignment(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)
	creds := mustJoin(t, svc, id, 0, "alice")
	mustJoin(t, svc, id, 1, "bob")

	if _, err := svc.CreateTeams(ctx, id, 2); err != nil {
		t.Fatalf("create teams: %v", err)
	}
	if err := svc.UpdatePlayer(ctx, id, 0, creds, "", &models.PlayerData{Extra: map[string]any{"color": "red"}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	room, _, _ := store.GetRoom(ctx, id)
	if room.Players[0].Data.TeamAssignment == nil {
		t.Fatal("team assignment lost on data update")
	}
	if room.Players[0].Data.Extra["color"] != "red" {
		t.Fatal("payload update not applied")
	}
}

func TestRejoin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)
	creds := mustJoin(t, svc, id, 0, "alice")

	if err := svc.Rejoin(ctx, id, "alice", creds); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if err := svc.Rejoin(ctx, id, "nobody", creds); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for unknown name, got %v", err)
	}
	if err := svc.Rejoin(ctx, id, "alice", "wrong"); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if err := svc.Rejoin(ctx, "missing", "alice", creds); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
}

func TestPlayAgainIsIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 4)
	credsA := mustJoin(t, svc, id, 0, "alice")
	credsB := mustJoin(t, svc, id, 1, "bob")

	first, err := svc.PlayAgain(ctx, id, 0, credsA, 0, nil, false)
	if err != nil {
		t.Fatalf("play again: %v", err)
	}
	second, err := svc.PlayAgain(ctx, id, 1, credsB, 9, map[string]any{"other": true}, true)
	if err != nil {
		t.Fatalf("second play again: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical nextRoomID, got %s and %s", first, second)
	}

	// 指定がなければ後続ルームは現在の着席人数を引き継ぐ
	next, ok, _ := store.GetRoom(ctx, first)
	if !ok {
		t.Fatal("successor room missing")
	}
	if next.NumPlayers() != 2 {
		t.Fatalf("expected successor with 2 slots, got %d", next.NumPlayers())
	}
	if next.GameName != "checkers" {
		t.Fatalf("expected same game, got %s", next.GameName)
	}
}

func TestPlayAgainRequiresAuthorization(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)
	mustJoin(t, svc, id, 0, "alice")

	if _, err := svc.PlayAgain(ctx, id, 0, "wrong", 0, nil, false); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, err := svc.PlayAgain(ctx, id, 5, "", 0, nil, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestListFiltersUnlistedRooms(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	listed := mustCreate(t, svc, 2)
	if _, err := svc.Create(ctx, "checkers", 2, nil, true); err != nil {
		t.Fatalf("create unlisted: %v", err)
	}

	views, err := svc.List(ctx, "checkers")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 || views[0].RoomID != listed {
		t.Fatalf("expected only listed room %s, got %+v", listed, views)
	}

	// unlistedでも直接アクセスは可能
	if _, err := svc.Get(ctx, listed); err != nil {
		t.Fatalf("get listed: %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 2)
	creds := mustJoin(t, svc, id, 0, "alice")

	if err := svc.Authorize(ctx, id, 0, creds); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := svc.Authorize(ctx, id, 0, "wrong"); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if err := svc.Authorize(ctx, id, 1, ""); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("open slot must never authorize, got %v", err)
	}
}

func TestCreateTeamsWithoutCallerSetupData(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	// setupDataを渡さずに作成しても、受け皿は用意されチーム編成は成功する
	id, err := svc.Create(ctx, "checkers", 4, nil, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	room, _, _ := store.GetRoom(ctx, id)
	if room.SetupData == nil {
		t.Fatal("expected a setupData container after persistence")
	}

	for i, name := range []string{"A", "B", "C", "D"} {
		mustJoin(t, svc, id, i, name)
	}
	teams, err := svc.CreateTeams(ctx, id, 2)
	if err != nil {
		t.Fatalf("create teams: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(teams))
	}
}

func TestRotateLeaderAfterMemberLeaves(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 4)
	var creds [4]string
	for i, name := range []string{"A", "B", "C", "D"} {
		creds[i] = mustJoin(t, svc, id, i, name)
	}
	if _, err := svc.CreateTeams(ctx, id, 2); err != nil {
		t.Fatalf("create teams: %v", err)
	}

	// チーム0 = [0,1]。非リーダーの1が退出すると交代相手がいない
	if err := svc.Leave(ctx, id, 1, creds[1]); err != nil {
		t.Fatalf("leave: %v", err)
	}
	result, _, err := svc.RotateLeader(ctx, id, "0")
	if err != nil {
		t.Fatalf("rotate leader: %v", err)
	}
	if result.Rotated {
		t.Fatal("expected no-op after the only candidate left")
	}
	if result.NewLeaderID != 0 {
		t.Fatalf("expected leader to stay 0, got %d", result.NewLeaderID)
	}

	// 空席スロットに所属が復活しない
	room, _, _ := store.GetRoom(ctx, id)
	if room.Players[1].Data != nil && room.Players[1].Data.TeamAssignment != nil {
		t.Fatal("departed slot must stay unassigned")
	}
}

// 4人ルームの結成からリーダー交代までの一連の流れ
func TestLobbyScenario(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, 4)
	for i, name := range []string{"A", "B", "C", "D"} {
		mustJoin(t, svc, id, i, name)
	}

	teams, err := svc.CreateTeams(ctx, id, 2)
	if err != nil {
		t.Fatalf("create teams: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(teams))
	}
	if teams[0].PlayerIDs[0] != 0 || teams[0].PlayerIDs[1] != 1 {
		t.Fatalf("expected team 0 = [0 1], got %v", teams[0].PlayerIDs)
	}
	if teams[1].PlayerIDs[0] != 2 || teams[1].PlayerIDs[1] != 3 {
		t.Fatalf("expected team 1 = [2 3], got %v", teams[1].PlayerIDs)
	}

	result, view, err := svc.RotateLeader(ctx, id, "0")
	if err != nil {
		t.Fatalf("rotate leader: %v", err)
	}
	if !result.Rotated || result.NewLeaderID != 1 {
		t.Fatalf("expected leader to move to slot 1, got %+v", result)
	}
	if view.Players[1].Data.TeamAssignment == nil || !view.Players[1].Data.TeamAssignment.Leader {
		t.Fatal("view should reflect the new leader")
	}

	// 交代はチーム0のリーダーフラグだけを動かす
	room, _, _ := store.GetRoom(ctx, id)
	leaders := 0
	for _, p := range room.Players {
		if p.Data != nil && p.Data.TeamAssignment != nil && p.Data.TeamAssignment.Leader {
			leaders++
		}
	}
	if leaders != 2 {
		t.Fatalf("expected one leader per team, got %d flags", leaders)
	}
	if ta := room.Players[2].Data.TeamAssignment; !ta.Leader {
		t.Fatal("team 1 leader must be untouched")
	}
}
