package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
)

type archiveStore struct {
	db *sql.DB
}

const archiveColumns = `id, practitioner_id, practitioner_name, patient_id, patient_name,
	treatment_zone_id, zone_name, session_number, total_sessions, laser_type, queue_entry_id,
	started_at, ended_at, duration_seconds, total_paused_ms, notes,
	photo_count, voice_note_count, side_effect_count, payload`

func (s *archiveStore) Record(ctx context.Context, session storage.FinishedSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO finished_sessions (`+archiveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID, session.PractitionerID, session.PractitionerName,
		session.PatientID, session.PatientName,
		session.TreatmentZoneID, session.ZoneName,
		session.SessionNumber, session.TotalSessions,
		session.LaserType, session.QueueEntryID,
		session.StartedAt.UnixNano(), session.EndedAt.UnixNano(),
		session.DurationSeconds, session.TotalPausedMS, session.Notes,
		session.PhotoCount, session.VoiceNoteCount, session.SideEffectCount,
		string(session.Payload),
	)
	return err
}

func (s *archiveStore) Get(ctx context.Context, id string) (*storage.FinishedSession, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+archiveColumns+" FROM finished_sessions WHERE id = ?", id)
	session, err := scanFinishedSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *archiveStore) List(ctx context.Context, filter storage.ArchiveFilter) ([]storage.FinishedSession, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.PractitionerID != "" {
		where = append(where, "practitioner_id = ?")
		args = append(args, filter.PractitionerID)
	}
	if filter.PatientID != "" {
		where = append(where, "patient_id = ?")
		args = append(args, filter.PatientID)
	}
	if filter.Since != nil {
		where = append(where, "ended_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Until != nil {
		where = append(where, "ended_at <= ?")
		args = append(args, filter.Until.UnixNano())
	}

	query := "SELECT " + archiveColumns + " FROM finished_sessions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ended_at DESC, id DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []storage.FinishedSession
	for rows.Next() {
		session, err := scanFinishedSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

func (s *archiveStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM finished_sessions WHERE ended_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFinishedSession(row rowScanner) (*storage.FinishedSession, error) {
	var (
		s                                        storage.FinishedSession
		practitionerName, patientName, zoneID    sql.NullString
		zoneName, laserType, queueEntryID, notes sql.NullString
		payload                                  sql.NullString
		startedAt, endedAt                       int64
	)
	err := row.Scan(
		&s.ID, &s.PractitionerID, &practitionerName, &s.PatientID, &patientName,
		&zoneID, &zoneName, &s.SessionNumber, &s.TotalSessions, &laserType, &queueEntryID,
		&startedAt, &endedAt, &s.DurationSeconds, &s.TotalPausedMS, &notes,
		&s.PhotoCount, &s.VoiceNoteCount, &s.SideEffectCount, &payload,
	)
	if err != nil {
		return nil, err
	}

	s.PractitionerName = practitionerName.String
	s.PatientName = patientName.String
	s.TreatmentZoneID = zoneID.String
	s.ZoneName = zoneName.String
	s.LaserType = laserType.String
	s.QueueEntryID = queueEntryID.String
	s.Notes = notes.String
	s.StartedAt = time.Unix(0, startedAt).UTC()
	s.EndedAt = time.Unix(0, endedAt).UTC()
	if payload.String != "" {
		s.Payload = json.RawMessage(payload.String)
	}
	return &s, nil
}
