package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestSaveStateScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	key := stateKey("session-store")

	for i, want := range []int64{1, 2} {
		rev, err := client.Eval(ctx, saveStateScript, []string{key}, `{"n":1}`, "2026-10-01T09:00:00Z").Int64()
		if err != nil {
			t.Fatalf("Script execution %d failed: %v", i, err)
		}
		if rev != want {
			t.Errorf("Expected revision %d, got %d", want, rev)
		}
	}

	if got := mr.HGet(key, "data"); got != `{"n":1}` {
		t.Errorf("Expected data to be stored, got %q", got)
	}
}

func TestRecordArchiveScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	tests := []struct {
		name         string
		practitioner string
		patient      string
		score        int64
		ttl          int64
		wantTTL      bool
	}{
		{name: "with ttl", practitioner: "doc1", patient: "pt1", score: 1000, ttl: 60, wantTTL: true},
		{name: "without ttl", practitioner: "doc1", patient: "pt1", score: 2000, ttl: 0, wantTTL: false},
		{name: "moved", practitioner: "doc2", patient: "pt2", score: 3000, ttl: 0, wantTTL: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr.FlushAll()

			id := "s-" + tt.name
			keys := []string{archiveKey(id), archiveByEnd, practitionerIndex(tt.practitioner), patientIndex(tt.patient)}
			err := client.Eval(ctx, recordArchiveScript, keys,
				id, tt.score, tt.ttl, keyPrefix,
				"id", id, "practitioner_id", tt.practitioner, "patient_id", tt.patient,
			).Err()
			if err != nil {
				t.Fatalf("Script execution failed: %v", err)
			}

			if got := mr.HGet(archiveKey(id), "practitioner_id"); got != tt.practitioner {
				t.Errorf("Expected practitioner_id %q, got %q", tt.practitioner, got)
			}

			score, err := client.ZScore(ctx, archiveByEnd, id).Result()
			if err != nil {
				t.Fatalf("ZScore failed: %v", err)
			}
			if int64(score) != tt.score {
				t.Errorf("Expected score %d, got %v", tt.score, score)
			}

			hasTTL := mr.TTL(archiveKey(id)) > 0
			if hasTTL != tt.wantTTL {
				t.Errorf("Expected TTL set=%v, got %v", tt.wantTTL, hasTTL)
			}
		})
	}
}

func TestRecordArchiveScript_ReplacesIndexes(t *testing.T) {
	client, _ := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	record := func(practitioner, patient string) {
		t.Helper()
		keys := []string{archiveKey("s1"), archiveByEnd, practitionerIndex(practitioner), patientIndex(patient)}
		err := client.Eval(ctx, recordArchiveScript, keys,
			"s1", 1000, 0, keyPrefix,
			"id", "s1", "practitioner_id", practitioner, "patient_id", patient,
		).Err()
		if err != nil {
			t.Fatalf("Script execution failed: %v", err)
		}
	}

	record("doc1", "pt1")
	record("doc2", "pt2")

	if n, _ := client.ZCard(ctx, practitionerIndex("doc1")).Result(); n != 0 {
		t.Errorf("Expected doc1 index to be empty, got %d entries", n)
	}
	if n, _ := client.ZCard(ctx, patientIndex("pt1")).Result(); n != 0 {
		t.Errorf("Expected pt1 index to be empty, got %d entries", n)
	}
	if n, _ := client.ZCard(ctx, practitionerIndex("doc2")).Result(); n != 1 {
		t.Errorf("Expected doc2 index to hold s1, got %d entries", n)
	}
	if n, _ := client.ZCard(ctx, archiveByEnd).Result(); n != 1 {
		t.Errorf("Expected a single by_end entry, got %d", n)
	}
}
