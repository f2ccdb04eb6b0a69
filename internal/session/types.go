package session

// Photo references a captured image
type Photo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SideEffect records an adverse reaction observed during treatment
type SideEffect struct {
	Description string   `json:"description"`
	Severity    string   `json:"severity,omitempty"`
	Photos      []string `json:"photos"`
}

// Session is an in-progress treatment owned by one practitioner.
// Timestamps are milliseconds since the Unix epoch.
type Session struct {
	PractitionerID   string `json:"practitionerId"`
	PractitionerName string `json:"practitionerName"`
	PatientID        string `json:"patientId"`
	PatientName      string `json:"patientName"`
	TreatmentZoneID  string `json:"treatmentZoneId"`
	ZoneName         string `json:"zoneName"`
	SessionNumber    int    `json:"sessionNumber"`
	TotalSessions    int    `json:"totalSessions"`

	LaserType       string `json:"laserType"`
	SpotSize        string `json:"spotSize,omitempty"`
	Fluence         string `json:"fluence,omitempty"`
	PulseDurationMs string `json:"pulseDurationMs,omitempty"`
	FrequencyHz     string `json:"frequencyHz,omitempty"`

	StartedAt       int64  `json:"startedAt"`
	PausedAt        *int64 `json:"pausedAt,omitempty"`
	TotalPausedTime int64  `json:"totalPausedTime"`
	IsPaused        bool   `json:"isPaused"`

	Notes       string       `json:"notes"`
	Photos      []Photo      `json:"photos"`
	VoiceNotes  []string     `json:"voiceNotes"`
	SideEffects []SideEffect `json:"sideEffects"`

	Tolerance       string `json:"tolerance,omitempty"`
	Frequence       string `json:"frequence,omitempty"`
	EffetsImmediats string `json:"effetsImmediats,omitempty"`
	QueueEntryID    string `json:"queueEntryId,omitempty"`
}

// PendingZone is a queued treatment that has not started yet
type PendingZone struct {
	PatientID       string `json:"patientId"`
	PatientName     string `json:"patientName"`
	TreatmentZoneID string `json:"treatmentZoneId"`
	ZoneName        string `json:"zoneName"`
	SessionNumber   int    `json:"sessionNumber"`
	TotalSessions   int    `json:"totalSessions"`
	LaserType       string `json:"laserType"`
	SpotSize        string `json:"spotSize,omitempty"`
	Fluence         string `json:"fluence,omitempty"`
	PulseDurationMs string `json:"pulseDurationMs,omitempty"`
	FrequencyHz     string `json:"frequencyHz,omitempty"`
	QueueEntryID    string `json:"queueEntryId,omitempty"`
}

// SessionData carries the caller-supplied fields of a new session
type SessionData struct {
	PatientID       string `json:"patientId"`
	PatientName     string `json:"patientName"`
	TreatmentZoneID string `json:"treatmentZoneId"`
	ZoneName        string `json:"zoneName"`
	SessionNumber   int    `json:"sessionNumber"`
	TotalSessions   int    `json:"totalSessions"`
	LaserType       string `json:"laserType"`
	SpotSize        string `json:"spotSize,omitempty"`
	Fluence         string `json:"fluence,omitempty"`
	PulseDurationMs string `json:"pulseDurationMs,omitempty"`
	FrequencyHz     string `json:"frequencyHz,omitempty"`
	Tolerance       string `json:"tolerance,omitempty"`
	Frequence       string `json:"frequence,omitempty"`
	EffetsImmediats string `json:"effetsImmediats,omitempty"`
	QueueEntryID    string `json:"queueEntryId,omitempty"`
}

// SessionData converts a queued zone into the data needed to start it
func (z PendingZone) SessionData() SessionData {
	return SessionData{
		PatientID:       z.PatientID,
		PatientName:     z.PatientName,
		TreatmentZoneID: z.TreatmentZoneID,
		ZoneName:        z.ZoneName,
		SessionNumber:   z.SessionNumber,
		TotalSessions:   z.TotalSessions,
		LaserType:       z.LaserType,
		SpotSize:        z.SpotSize,
		Fluence:         z.Fluence,
		PulseDurationMs: z.PulseDurationMs,
		FrequencyHz:     z.FrequencyHz,
		QueueEntryID:    z.QueueEntryID,
	}
}

// SessionDetails updates the free-text observations; nil fields are left alone
type SessionDetails struct {
	Tolerance       *string `json:"tolerance,omitempty"`
	Frequence       *string `json:"frequence,omitempty"`
	EffetsImmediats *string `json:"effetsImmediats,omitempty"`
}

// EndResult is the final snapshot of an ended session
type EndResult struct {
	Session         Session `json:"session"`
	DurationSeconds int64   `json:"durationSeconds"`
	EndedAt         int64   `json:"endedAt"` // epoch ms, from the tracker clock
}

// State is the persisted shape of the tracker
type State struct {
	ActiveSessions map[string]Session       `json:"activeSessions"`
	PendingZones   map[string][]PendingZone `json:"pendingZones"`
}

func (s Session) clone() Session {
	c := s
	if s.PausedAt != nil {
		pausedAt := *s.PausedAt
		c.PausedAt = &pausedAt
	}
	c.Photos = append(make([]Photo, 0, len(s.Photos)), s.Photos...)
	c.VoiceNotes = append(make([]string, 0, len(s.VoiceNotes)), s.VoiceNotes...)
	c.SideEffects = make([]SideEffect, len(s.SideEffects))
	for i, se := range s.SideEffects {
		se.Photos = append(make([]string, 0, len(se.Photos)), se.Photos...)
		c.SideEffects[i] = se
	}
	return c
}

func cloneZones(zones []PendingZone) []PendingZone {
	return append(make([]PendingZone, 0, len(zones)), zones...)
}
