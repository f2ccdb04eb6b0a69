package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/kclinic/internal/config"
	"github.com/goodtune/kclinic/internal/storage"
	"github.com/goodtune/kclinic/internal/storage/storagetest"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestStateStore(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	storagetest.RunStateStore(t, store.State())
}

func TestArchiveStore(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	storagetest.RunArchiveStore(t, store.Archive())
}

func TestStateStore_Revision(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.State().Save(ctx, "session-store", []byte(`{}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if got := mr.HGet(stateKey("session-store"), "revision"); got != "3" {
		t.Errorf("Expected revision 3, got %q", got)
	}
	if got := mr.HGet(stateKey("session-store"), "updated_at"); got == "" {
		t.Error("Expected updated_at to be set")
	}
}

func TestArchiveStore_RecordSetsTTL(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	record := storagetest.FinishedSession("s1", "doc1", "pt1", time.Now())
	if err := store.Archive().Record(ctx, record); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if ttl := mr.TTL(archiveKey("s1")); ttl != archiveTTL {
		t.Errorf("Expected TTL %v, got %v", archiveTTL, ttl)
	}
}

func TestArchiveStore_RerecordMovesIndexes(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	archive := store.Archive()
	endedAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	if err := archive.Record(ctx, storagetest.FinishedSession("s1", "doc1", "pt1", endedAt)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := archive.Record(ctx, storagetest.FinishedSession("s1", "doc2", "pt2", endedAt)); err != nil {
		t.Fatalf("Re-record failed: %v", err)
	}

	// miniredis drops empty sorted sets
	if mr.Exists(practitionerIndex("doc1")) {
		t.Error("Expected doc1 index to be removed")
	}

	old, err := archive.List(ctx, storage.ArchiveFilter{PractitionerID: "doc1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("Expected no sessions for doc1, got %d", len(old))
	}

	moved, err := archive.List(ctx, storage.ArchiveFilter{PatientID: "pt2"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(moved) != 1 || moved[0].PractitionerID != "doc2" {
		t.Errorf("Expected s1 under doc2/pt2, got %+v", moved)
	}
}

func TestArchiveStore_ListDropsExpiredEntries(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	archive := store.Archive()
	endedAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	if err := archive.Record(ctx, storagetest.FinishedSession("s1", "doc1", "pt1", endedAt)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := archive.Record(ctx, storagetest.FinishedSession("s2", "doc1", "pt1", endedAt.Add(time.Hour))); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Simulate the hash expiring while the index entry survives
	mr.Del(archiveKey("s1"))

	sessions, err := archive.List(ctx, storage.ArchiveFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s2" {
		t.Fatalf("Expected only s2, got %+v", sessions)
	}

	members, err := mr.ZMembers(archiveByEnd)
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	if len(members) != 1 || members[0] != "s2" {
		t.Errorf("Expected dangling s1 to be removed from index, got %v", members)
	}
}

func TestArchiveStore_ListPagesPastExpiredEntries(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	archive := store.Archive()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("s%02d", i)
		if err := archive.Record(ctx, storagetest.FinishedSession(id, "doc1", "pt1", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record %s failed: %v", id, err)
		}
	}

	// The three newest hashes expire, leaving their index entries behind
	for _, id := range []string{"s09", "s08", "s07"} {
		mr.Del(archiveKey(id))
	}

	sessions, err := archive.List(ctx, storage.ArchiveFilter{PractitionerID: "doc1", Limit: 5})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	var got []string
	for _, s := range sessions {
		got = append(got, s.ID)
	}
	want := []string{"s06", "s05", "s04", "s03", "s02"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}

	members, err := mr.ZMembers(practitionerIndex("doc1"))
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	if len(members) != 7 {
		t.Errorf("Expected expired entries dropped from index, got %v", members)
	}
}
