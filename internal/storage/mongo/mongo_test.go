package mongo

import (
	"testing"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
	"github.com/goodtune/kclinic/internal/storage/storagetest"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDocumentConversion(t *testing.T) {
	endedAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	original := storagetest.FinishedSession("s1", "doc1", "pt1", endedAt)

	raw, err := bson.Marshal(toDocument(original))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded sessionDocument
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := decoded.toFinishedSession()
	if got.ID != original.ID || got.PractitionerID != original.PractitionerID || got.PatientID != original.PatientID {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if !got.EndedAt.Equal(original.EndedAt) || !got.StartedAt.Equal(original.StartedAt) {
		t.Fatalf("timestamps lost: started %v ended %v", got.StartedAt, got.EndedAt)
	}
	if got.TotalPausedMS != original.TotalPausedMS || got.Notes != original.Notes {
		t.Fatalf("accounting fields lost: %+v", got)
	}
	if string(got.Payload) != string(original.Payload) {
		t.Fatalf("payload lost: %s", got.Payload)
	}

	var keyed bson.M
	if err := bson.Unmarshal(raw, &keyed); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if keyed["_id"] != "s1" {
		t.Fatalf("expected _id to carry the session id, got %v", keyed["_id"])
	}
}

func TestFilterDocument(t *testing.T) {
	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	tests := []struct {
		name   string
		filter storage.ArchiveFilter
		keys   []string
	}{
		{name: "empty", filter: storage.ArchiveFilter{}, keys: nil},
		{name: "practitioner", filter: storage.ArchiveFilter{PractitionerID: "doc1"}, keys: []string{"practitionerId"}},
		{name: "patient and window", filter: storage.ArchiveFilter{PatientID: "pt1", Since: &since, Until: &until}, keys: []string{"patientId", "endedAt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := filterDocument(tt.filter)
			if len(query) != len(tt.keys) {
				t.Fatalf("expected %d keys, got %v", len(tt.keys), query)
			}
			for _, k := range tt.keys {
				if _, ok := query[k]; !ok {
					t.Fatalf("missing key %s in %v", k, query)
				}
			}
		})
	}

	window := filterDocument(storage.ArchiveFilter{Since: &since})["endedAt"].(bson.M)
	if _, ok := window["$lte"]; ok {
		t.Fatal("expected open upper bound")
	}
	if window["$gte"] != since {
		t.Fatalf("expected $gte %v, got %v", since, window["$gte"])
	}
}
