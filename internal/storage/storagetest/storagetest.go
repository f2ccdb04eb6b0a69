// Package storagetest holds behaviour checks shared by every storage backend.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
)

// FinishedSession builds an archive record ending at endedAt.
func FinishedSession(id, practitionerID, patientID string, endedAt time.Time) storage.FinishedSession {
	return storage.FinishedSession{
		ID:               id,
		PractitionerID:   practitionerID,
		PractitionerName: "Dr. " + practitionerID,
		PatientID:        patientID,
		PatientName:      "Patient " + patientID,
		TreatmentZoneID:  "zone-" + id,
		ZoneName:         "Jambes",
		SessionNumber:    2,
		TotalSessions:    6,
		LaserType:        "Alexandrite",
		StartedAt:        endedAt.Add(-10 * time.Minute).UTC(),
		EndedAt:          endedAt.UTC(),
		DurationSeconds:  540,
		TotalPausedMS:    60000,
		Notes:            "first\nsecond",
		PhotoCount:       1,
		Payload:          json.RawMessage(`{"practitionerId":"` + practitionerID + `"}`),
	}
}

// RunStateStore checks Load/Save semantics.
func RunStateStore(t *testing.T, states storage.StateStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := states.Load(ctx, "session-store"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("load missing key: expected ErrNotFound, got %v", err)
	}

	first := []byte(`{"activeSessions":{},"pendingZones":{}}`)
	if err := states.Save(ctx, "session-store", first); err != nil {
		t.Fatalf("save state: %v", err)
	}

	got, err := states.Load(ctx, "session-store")
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if string(got) != string(first) {
		t.Fatalf("expected %s, got %s", first, got)
	}

	second := []byte(`{"activeSessions":{"doc1":{}},"pendingZones":{}}`)
	if err := states.Save(ctx, "session-store", second); err != nil {
		t.Fatalf("overwrite state: %v", err)
	}
	got, err = states.Load(ctx, "session-store")
	if err != nil {
		t.Fatalf("load overwritten state: %v", err)
	}
	if string(got) != string(second) {
		t.Fatalf("expected %s after overwrite, got %s", second, got)
	}

	if _, err := states.Load(ctx, "other-key"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("keys must be independent, got %v", err)
	}
}

// RunArchiveStore checks Record/Get/List/DeleteBefore semantics.
func RunArchiveStore(t *testing.T, archive storage.ArchiveStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	records := []storage.FinishedSession{
		FinishedSession("a", "doc1", "pt1", base),
		FinishedSession("b", "doc1", "pt2", base.Add(1*time.Hour)),
		FinishedSession("c", "doc2", "pt1", base.Add(2*time.Hour)),
		FinishedSession("d", "doc2", "pt3", base.Add(48*time.Hour)),
	}
	for _, r := range records {
		if err := archive.Record(ctx, r); err != nil {
			t.Fatalf("record %s: %v", r.ID, err)
		}
	}

	got, err := archive.Get(ctx, "b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if got.PatientID != "pt2" || got.DurationSeconds != 540 || got.Notes != "first\nsecond" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.EndedAt.Equal(records[1].EndedAt) {
		t.Fatalf("expected ended_at %v, got %v", records[1].EndedAt, got.EndedAt)
	}
	if len(got.Payload) == 0 {
		t.Fatal("expected payload to round-trip")
	}

	if _, err := archive.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing: expected ErrNotFound, got %v", err)
	}

	all, err := archive.List(ctx, storage.ArchiveFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	assertIDs(t, "list all", all, "d", "c", "b", "a")

	byDoc, err := archive.List(ctx, storage.ArchiveFilter{PractitionerID: "doc1"})
	if err != nil {
		t.Fatalf("list by practitioner: %v", err)
	}
	assertIDs(t, "list doc1", byDoc, "b", "a")

	byPatient, err := archive.List(ctx, storage.ArchiveFilter{PatientID: "pt1"})
	if err != nil {
		t.Fatalf("list by patient: %v", err)
	}
	assertIDs(t, "list pt1", byPatient, "c", "a")

	limited, err := archive.List(ctx, storage.ArchiveFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	assertIDs(t, "list limit 2", limited, "d", "c")

	since := base.Add(30 * time.Minute)
	until := base.Add(3 * time.Hour)
	window, err := archive.List(ctx, storage.ArchiveFilter{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	assertIDs(t, "list window", window, "c", "b")

	deleted, err := archive.DeleteBefore(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted records, got %d", deleted)
	}

	remaining, err := archive.List(ctx, storage.ArchiveFilter{})
	if err != nil {
		t.Fatalf("list remaining: %v", err)
	}
	assertIDs(t, "list remaining", remaining, "d", "c")

	if _, err := archive.Get(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted record still readable: %v", err)
	}
}

func assertIDs(t *testing.T, label string, sessions []storage.FinishedSession, want ...string) {
	t.Helper()
	if len(sessions) != len(want) {
		ids := make([]string, len(sessions))
		for i, s := range sessions {
			ids[i] = s.ID
		}
		t.Fatalf("%s: expected %v, got %v", label, want, ids)
	}
	for i, s := range sessions {
		if s.ID != want[i] {
			t.Fatalf("%s: position %d expected %s, got %s", label, i, want[i], s.ID)
		}
	}
}
