package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
)

// archiveFields flattens a FinishedSession into HSET field/value pairs
func archiveFields(s storage.FinishedSession) []interface{} {
	return []interface{}{
		"id", s.ID,
		"practitioner_id", s.PractitionerID,
		"practitioner_name", s.PractitionerName,
		"patient_id", s.PatientID,
		"patient_name", s.PatientName,
		"treatment_zone_id", s.TreatmentZoneID,
		"zone_name", s.ZoneName,
		"session_number", strconv.Itoa(s.SessionNumber),
		"total_sessions", strconv.Itoa(s.TotalSessions),
		"laser_type", s.LaserType,
		"queue_entry_id", s.QueueEntryID,
		"started_at", s.StartedAt.Format(time.RFC3339Nano),
		"ended_at", s.EndedAt.Format(time.RFC3339Nano),
		"duration_seconds", strconv.FormatInt(s.DurationSeconds, 10),
		"total_paused_ms", strconv.FormatInt(s.TotalPausedMS, 10),
		"notes", s.Notes,
		"photo_count", strconv.Itoa(s.PhotoCount),
		"voice_note_count", strconv.Itoa(s.VoiceNoteCount),
		"side_effect_count", strconv.Itoa(s.SideEffectCount),
		"payload", string(s.Payload),
	}
}

// parseFinishedSession converts a Redis hash to FinishedSession
func parseFinishedSession(data map[string]string) (*storage.FinishedSession, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startedAt, err := time.Parse(time.RFC3339Nano, data["started_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	endedAt, err := time.Parse(time.RFC3339Nano, data["ended_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse ended_at: %w", err)
	}

	ints := map[string]int64{}
	for _, field := range []string{"session_number", "total_sessions", "duration_seconds", "total_paused_ms", "photo_count", "voice_note_count", "side_effect_count"} {
		raw := data[field]
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", field, err)
		}
		ints[field] = v
	}

	var payload json.RawMessage
	if p := data["payload"]; p != "" {
		payload = json.RawMessage(p)
	}

	return &storage.FinishedSession{
		ID:               data["id"],
		PractitionerID:   data["practitioner_id"],
		PractitionerName: data["practitioner_name"],
		PatientID:        data["patient_id"],
		PatientName:      data["patient_name"],
		TreatmentZoneID:  data["treatment_zone_id"],
		ZoneName:         data["zone_name"],
		SessionNumber:    int(ints["session_number"]),
		TotalSessions:    int(ints["total_sessions"]),
		LaserType:        data["laser_type"],
		QueueEntryID:     data["queue_entry_id"],
		StartedAt:        startedAt,
		EndedAt:          endedAt,
		DurationSeconds:  ints["duration_seconds"],
		TotalPausedMS:    ints["total_paused_ms"],
		Notes:            data["notes"],
		PhotoCount:       int(ints["photo_count"]),
		VoiceNoteCount:   int(ints["voice_note_count"]),
		SideEffectCount:  int(ints["side_effect_count"]),
		Payload:          payload,
	}, nil
}
