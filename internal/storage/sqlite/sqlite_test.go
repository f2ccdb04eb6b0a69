package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goodtune/kclinic/internal/storage/storagetest"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kclinic.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return store, path
}

func TestStateStore(t *testing.T) {
	store, _ := openTestStore(t)
	defer func() { _ = store.Close() }()

	storagetest.RunStateStore(t, store.State())
}

func TestArchiveStore(t *testing.T) {
	store, _ := openTestStore(t)
	defer func() { _ = store.Close() }()

	storagetest.RunArchiveStore(t, store.Archive())
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store, path := openTestStore(t)
	if err := store.State().Save(context.Background(), "session-store", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	var version int
	if err := reopened.db.QueryRow("SELECT MAX(version) FROM migrations").Scan(&version); err != nil {
		t.Fatalf("read migration version: %v", err)
	}
	if version != len(getMigrations()) {
		t.Fatalf("expected version %d, got %d", len(getMigrations()), version)
	}

	data, err := reopened.State().Load(context.Background(), "session-store")
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if string(data) != `{"v":1}` {
		t.Fatalf("unexpected state after reopen: %s", data)
	}
}

func TestStateRevisionIncrements(t *testing.T) {
	store, _ := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.State().Save(ctx, "session-store", []byte(`{}`)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	var revision int
	if err := store.db.QueryRow("SELECT revision FROM state WHERE key = ?", "session-store").Scan(&revision); err != nil {
		t.Fatalf("read revision: %v", err)
	}
	if revision != 3 {
		t.Fatalf("expected revision 3, got %d", revision)
	}
}
