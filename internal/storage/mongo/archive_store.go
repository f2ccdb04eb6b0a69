package mongo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// sessionDocument is the BSON shape of a finished session
type sessionDocument struct {
	ID               string    `bson:"_id"`
	PractitionerID   string    `bson:"practitionerId"`
	PractitionerName string    `bson:"practitionerName,omitempty"`
	PatientID        string    `bson:"patientId"`
	PatientName      string    `bson:"patientName,omitempty"`
	TreatmentZoneID  string    `bson:"treatmentZoneId,omitempty"`
	ZoneName         string    `bson:"zoneName,omitempty"`
	SessionNumber    int       `bson:"sessionNumber"`
	TotalSessions    int       `bson:"totalSessions"`
	LaserType        string    `bson:"laserType,omitempty"`
	QueueEntryID     string    `bson:"queueEntryId,omitempty"`
	StartedAt        time.Time `bson:"startedAt"`
	EndedAt          time.Time `bson:"endedAt"`
	DurationSeconds  int64     `bson:"durationSeconds"`
	TotalPausedMS    int64     `bson:"totalPausedMs"`
	Notes            string    `bson:"notes,omitempty"`
	PhotoCount       int       `bson:"photoCount"`
	VoiceNoteCount   int       `bson:"voiceNoteCount"`
	SideEffectCount  int       `bson:"sideEffectCount"`
	Payload          string    `bson:"payload,omitempty"`
}

func toDocument(s storage.FinishedSession) sessionDocument {
	return sessionDocument{
		ID:               s.ID,
		PractitionerID:   s.PractitionerID,
		PractitionerName: s.PractitionerName,
		PatientID:        s.PatientID,
		PatientName:      s.PatientName,
		TreatmentZoneID:  s.TreatmentZoneID,
		ZoneName:         s.ZoneName,
		SessionNumber:    s.SessionNumber,
		TotalSessions:    s.TotalSessions,
		LaserType:        s.LaserType,
		QueueEntryID:     s.QueueEntryID,
		StartedAt:        s.StartedAt.UTC(),
		EndedAt:          s.EndedAt.UTC(),
		DurationSeconds:  s.DurationSeconds,
		TotalPausedMS:    s.TotalPausedMS,
		Notes:            s.Notes,
		PhotoCount:       s.PhotoCount,
		VoiceNoteCount:   s.VoiceNoteCount,
		SideEffectCount:  s.SideEffectCount,
		Payload:          string(s.Payload),
	}
}

func (d sessionDocument) toFinishedSession() storage.FinishedSession {
	s := storage.FinishedSession{
		ID:               d.ID,
		PractitionerID:   d.PractitionerID,
		PractitionerName: d.PractitionerName,
		PatientID:        d.PatientID,
		PatientName:      d.PatientName,
		TreatmentZoneID:  d.TreatmentZoneID,
		ZoneName:         d.ZoneName,
		SessionNumber:    d.SessionNumber,
		TotalSessions:    d.TotalSessions,
		LaserType:        d.LaserType,
		QueueEntryID:     d.QueueEntryID,
		StartedAt:        d.StartedAt.UTC(),
		EndedAt:          d.EndedAt.UTC(),
		DurationSeconds:  d.DurationSeconds,
		TotalPausedMS:    d.TotalPausedMS,
		Notes:            d.Notes,
		PhotoCount:       d.PhotoCount,
		VoiceNoteCount:   d.VoiceNoteCount,
		SideEffectCount:  d.SideEffectCount,
	}
	if d.Payload != "" {
		s.Payload = json.RawMessage(d.Payload)
	}
	return s
}

// filterDocument translates an ArchiveFilter into a BSON query
func filterDocument(f storage.ArchiveFilter) bson.M {
	query := bson.M{}
	if f.PractitionerID != "" {
		query["practitionerId"] = f.PractitionerID
	}
	if f.PatientID != "" {
		query["patientId"] = f.PatientID
	}
	if f.Since != nil || f.Until != nil {
		window := bson.M{}
		if f.Since != nil {
			window["$gte"] = f.Since.UTC()
		}
		if f.Until != nil {
			window["$lte"] = f.Until.UTC()
		}
		query["endedAt"] = window
	}
	return query
}

type archiveStore struct {
	sessions *mongo.Collection
}

func (s *archiveStore) ensureIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "endedAt", Value: -1}}},
		{Keys: bson.D{{Key: "practitionerId", Value: 1}, {Key: "endedAt", Value: -1}}},
		{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "endedAt", Value: -1}}},
	})
	return err
}

func (s *archiveStore) Record(ctx context.Context, session storage.FinishedSession) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": session.ID}, toDocument(session), opts)
	return err
}

func (s *archiveStore) Get(ctx context.Context, id string) (*storage.FinishedSession, error) {
	var doc sessionDocument
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	session := doc.toFinishedSession()
	return &session, nil
}

func (s *archiveStore) List(ctx context.Context, filter storage.ArchiveFilter) ([]storage.FinishedSession, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "endedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(filter.EffectiveLimit()))

	cursor, err := s.sessions.Find(ctx, filterDocument(filter), opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []sessionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	sessions := make([]storage.FinishedSession, 0, len(docs))
	for _, doc := range docs {
		sessions = append(sessions, doc.toFinishedSession())
	}
	return sessions, nil
}

func (s *archiveStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.sessions.DeleteMany(ctx, bson.M{"endedAt": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return int(result.DeletedCount), nil
}
