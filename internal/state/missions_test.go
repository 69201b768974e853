package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/marketradar/internal/types"
)

func TestMissionStore(t *testing.T) {
	dir := t.TempDir()
	store := NewMissionStore(dir)
	ctx := context.Background()

	handle := types.MissionHandle{ID: "abc12345-0000", Endpoint: "ws://localhost:8000/ws/abc12345-0000"}
	m, err := store.Create(ctx, handle, "preço do leite", "cli")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != "idle" || m.Goal != "preço do leite" {
		t.Errorf("unexpected mission %+v", m)
	}
	if _, err := os.Stat(filepath.Join(dir, "missions", "abc12345-0000")); err != nil {
		t.Errorf("expected mission dir: %v", err)
	}

	if _, err := store.Create(ctx, handle, "again", "cli"); err == nil {
		t.Error("expected duplicate create to fail")
	}

	got, err := store.Get(ctx, handle.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Status = "complete"
	got.Records = 4
	now := time.Now()
	got.EndedAt = &now
	if err := store.Update(ctx, got); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewMissionStore(dir).Get(ctx, handle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != "complete" || reloaded.Records != 4 || reloaded.EndedAt == nil {
		t.Errorf("update not persisted: %+v", reloaded)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Update(ctx, &types.MissionIndex{MissionID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
}

func TestMissionStoreListAndResolve(t *testing.T) {
	store := NewMissionStore(t.TempDir())
	ctx := context.Background()

	for _, id := range []types.MissionID{"aaa-1", "aab-2", "bbb-3"} {
		if _, err := store.Create(ctx, types.MissionHandle{ID: id}, "g", "cli"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	missions, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(missions) != 3 || missions[0].MissionID != "bbb-3" {
		t.Errorf("expected newest first, got %v", missions)
	}

	m, err := store.Resolve(ctx, "bb")
	if err != nil || m.MissionID != "bbb-3" {
		t.Errorf("expected bbb-3, got %v, %v", m, err)
	}
	if _, err := store.Resolve(ctx, "aa"); err == nil {
		t.Error("expected ambiguous prefix error")
	}
	if m, err := store.Resolve(ctx, "aaa-1"); err != nil || m.MissionID != "aaa-1" {
		t.Errorf("expected exact match, got %v, %v", m, err)
	}
	if _, err := store.Resolve(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
