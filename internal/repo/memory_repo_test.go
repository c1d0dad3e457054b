package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gamelobby/lobby-server/internal/models"
)

func testRoom(id, gameName string) models.Room {
	return models.Room{
		RoomID:   id,
		GameName: gameName,
		Players: map[int]*models.Player{
			0: {ID: 0},
			1: {ID: 1},
		},
	}
}

func TestMemoryRepoCreateRejectsDuplicateID(t *testing.T) {
	mr := NewMemoryRoomRepo()
	ctx := context.Background()

	if err := mr.CreateRoom(ctx, testRoom("r1", "g"), json.RawMessage(`{}`), 60); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := mr.CreateRoom(ctx, testRoom("r1", "g"), nil, 60)
	if !errors.Is(err, ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
}

func TestMemoryRepoMutateSave(t *testing.T) {
	mr := NewMemoryRoomRepo()
	ctx := context.Background()
	if err := mr.CreateRoom(ctx, testRoom("r1", "g"), nil, 60); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, found, err := mr.Mutate(ctx, "r1", func(room *models.Room) (Action, error) {
		room.Players[0].Name = "alice"
		return ActionSave, nil
	})
	if err != nil || !found {
		t.Fatalf("mutate: found=%v err=%v", found, err)
	}

	room, ok, _ := mr.GetRoom(ctx, "r1")
	if !ok || room.Players[0].Name != "alice" {
		t.Fatalf("save not applied: %+v", room.Players[0])
	}
}

func TestMemoryRepoMutateErrorDiscardsChanges(t *testing.T) {
	mr := NewMemoryRoomRepo()
	ctx := context.Background()
	if err := mr.CreateRoom(ctx, testRoom("r1", "g"), nil, 60); err != nil {
		t.Fatalf("create: %v", err)
	}

	wantErr := errors.New("precondition failed")
	_, _, err := mr.Mutate(ctx, "r1", func(room *models.Room) (Action, error) {
		room.Players[0].Name = "mallory"
		return ActionNone, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	room, _, _ := mr.GetRoom(ctx, "r1")
	if room.Players[0].Name != "" {
		t.Fatal("failed mutator must not leak changes")
	}
}

func TestMemoryRepoMutateDelete(t *testing.T) {
	mr := NewMemoryRoomRepo()
	ctx := context.Background()
	if err := mr.CreateRoom(ctx, testRoom("r1", "g"), nil, 60); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, _, err := mr.Mutate(ctx, "r1", func(room *models.Room) (Action, error) {
		return ActionDelete, nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	if _, ok, _ := mr.GetRoom(ctx, "r1"); ok {
		t.Fatal("room should be gone")
	}
	rooms, _ := mr.ListRooms(ctx, "g")
	if len(rooms) != 0 {
		t.Fatalf("index should be empty, got %d rooms", len(rooms))
	}
}

func TestMemoryRepoMutateMissingRoom(t *testing.T) {
	mr := NewMemoryRoomRepo()
	_, found, err := mr.Mutate(context.Background(), "nope", func(room *models.Room) (Action, error) {
		t.Fatal("mutator must not run for a missing room")
		return ActionNone, nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestMemoryRepoListIsPerGame(t *testing.T) {
	mr := NewMemoryRoomRepo()
	ctx := context.Background()
	for _, r := range []models.Room{testRoom("r1", "chess"), testRoom("r2", "chess"), testRoom("r3", "go")} {
		if err := mr.CreateRoom(ctx, r, nil, 60); err != nil {
			t.Fatalf("create %s: %v", r.RoomID, err)
		}
	}

	rooms, err := mr.ListRooms(ctx, "chess")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 chess rooms, got %d", len(rooms))
	}

	if err := mr.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rooms, _ = mr.ListRooms(ctx, "chess")
	if len(rooms) != 1 || rooms[0].RoomID != "r2" {
		t.Fatalf("expected only r2 left, got %+v", rooms)
	}
}
