package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
	"github.com/goodtune/kclinic/internal/storage/memory"
	"github.com/goodtune/kclinic/internal/storage/storagetest"
	"github.com/rs/zerolog"
)

func TestNewJanitorValidation(t *testing.T) {
	archive := memory.New().Archive()

	if _, err := storage.NewJanitor(archive, 365, "25:99", zerolog.Nop()); err == nil {
		t.Fatal("expected invalid cleanup time to fail")
	}
	if _, err := storage.NewJanitor(archive, 0, "03:00", zerolog.Nop()); err == nil {
		t.Fatal("expected zero retention to fail")
	}
}

func TestJanitorSweep(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	old := storagetest.FinishedSession("old", "doc1", "pt1", now.AddDate(0, 0, -400))
	recent := storagetest.FinishedSession("recent", "doc1", "pt1", now.AddDate(0, 0, -10))
	for _, s := range []storage.FinishedSession{old, recent} {
		if err := store.Archive().Record(ctx, s); err != nil {
			t.Fatalf("record %s: %v", s.ID, err)
		}
	}

	janitor, err := storage.NewJanitor(store.Archive(), 365, "03:00", zerolog.Nop())
	if err != nil {
		t.Fatalf("new janitor: %v", err)
	}

	deleted, err := janitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted session, got %d", deleted)
	}

	if _, err := store.Archive().Get(ctx, "recent"); err != nil {
		t.Fatalf("recent session should survive: %v", err)
	}
}

func TestJanitorStartStop(t *testing.T) {
	janitor, err := storage.NewJanitor(memory.New().Archive(), 30, "03:00", zerolog.Nop())
	if err != nil {
		t.Fatalf("new janitor: %v", err)
	}
	janitor.Start()
	janitor.Stop()
}
