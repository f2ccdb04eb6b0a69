package storage

import (
	"encoding/json"
	"sort"
	"time"
)

// FinishedSession is the archived form of a completed treatment session.
type FinishedSession struct {
	ID               string          `json:"id"`
	PractitionerID   string          `json:"practitioner_id"`
	PractitionerName string          `json:"practitioner_name"`
	PatientID        string          `json:"patient_id"`
	PatientName      string          `json:"patient_name"`
	TreatmentZoneID  string          `json:"treatment_zone_id"`
	ZoneName         string          `json:"zone_name"`
	SessionNumber    int             `json:"session_number"`
	TotalSessions    int             `json:"total_sessions"`
	LaserType        string          `json:"laser_type"`
	QueueEntryID     string          `json:"queue_entry_id,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
	DurationSeconds  int64           `json:"duration_seconds"`
	TotalPausedMS    int64           `json:"total_paused_ms"`
	Notes            string          `json:"notes"`
	PhotoCount       int             `json:"photo_count"`
	VoiceNoteCount   int             `json:"voice_note_count"`
	SideEffectCount  int             `json:"side_effect_count"`
	Payload          json.RawMessage `json:"payload"` // full session snapshot as captured at end
}

// SortNewestFirst orders finished sessions by EndedAt descending, then ID.
func SortNewestFirst(sessions []FinishedSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].EndedAt.Equal(sessions[j].EndedAt) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].EndedAt.After(sessions[j].EndedAt)
	})
}
