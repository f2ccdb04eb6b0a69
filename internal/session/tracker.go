package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/kclinic/internal/metrics"
	"github.com/goodtune/kclinic/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultStateKey is the storage key holding the tracker state
	DefaultStateKey = "session-store"

	// DefaultPersistTimeout bounds a single state write
	DefaultPersistTimeout = 2 * time.Second
)

// Config holds tracker configuration
type Config struct {
	StateKey       string
	PersistTimeout time.Duration
}

// Tracker owns the active treatment sessions and pending zone queues,
// both keyed by practitioner ID. Every mutation is written through to
// the state store; mutators on a missing session are no-ops reporting false.
type Tracker struct {
	sessions map[string]*Session
	pending  map[string][]PendingZone

	store          storage.StateStore
	stateKey       string
	persistTimeout time.Duration
	clock          Clock
	logger         zerolog.Logger
	mu             sync.RWMutex

	hydrateOnce sync.Once
	hydrated    chan struct{}
	// restored guards persist; set under mu once Hydrate has run
	restored bool
}

// NewTracker creates a tracker persisting to store. A nil store keeps state in memory only.
func NewTracker(store storage.StateStore, config Config, logger zerolog.Logger) *Tracker {
	if config.StateKey == "" {
		config.StateKey = DefaultStateKey
	}
	if config.PersistTimeout == 0 {
		config.PersistTimeout = DefaultPersistTimeout
	}

	return &Tracker{
		sessions:       make(map[string]*Session),
		pending:        make(map[string][]PendingZone),
		store:          store,
		stateKey:       config.StateKey,
		persistTimeout: config.PersistTimeout,
		clock:          RealClock{},
		logger:         logger.With().Str("component", "session-tracker").Logger(),
		hydrated:       make(chan struct{}),
	}
}

// SetClock sets the clock used for time accounting (for testing)
func (t *Tracker) SetClock(clock Clock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
}

func (t *Tracker) nowMillis() int64 {
	return t.clock.Now().UnixMilli()
}

// Hydrate loads the persisted state once, replacing the in-memory maps.
// The hydration signal fires even when loading fails; the tracker then starts empty.
// Writes made before Hydrate stay in memory and never reach the store.
func (t *Tracker) Hydrate(ctx context.Context) {
	t.hydrateOnce.Do(func() {
		defer close(t.hydrated)

		if t.store == nil {
			t.markRestored()
			return
		}

		state, err := t.load(ctx)
		if err != nil {
			t.logger.Error().Err(err).Str("key", t.stateKey).Msg("Failed to restore session state, starting empty")
			t.markRestored()
			return
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		t.restored = true

		t.sessions = make(map[string]*Session, len(state.ActiveSessions))
		for id, s := range state.ActiveSessions {
			s := s.clone()
			t.sessions[id] = &s
		}
		t.pending = make(map[string][]PendingZone, len(state.PendingZones))
		for id, zones := range state.PendingZones {
			if len(zones) > 0 {
				t.pending[id] = cloneZones(zones)
			}
		}
		t.updateGauges()

		t.logger.Info().
			Int("active_sessions", len(t.sessions)).
			Int("pending_queues", len(t.pending)).
			Msg("Session state restored")
	})
}

func (t *Tracker) markRestored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restored = true
}

func (t *Tracker) load(ctx context.Context) (State, error) {
	var state State

	data, err := t.store.Load(ctx, t.stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return state, err
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Hydrated returns a channel closed once hydration has completed
func (t *Tracker) Hydrated() <-chan struct{} {
	return t.hydrated
}

// IsHydrated reports whether hydration has completed
func (t *Tracker) IsHydrated() bool {
	select {
	case <-t.hydrated:
		return true
	default:
		return false
	}
}

// persist writes the current state through to the store. Callers hold t.mu.
// Failures are logged and dropped; memory stays authoritative.
// Before hydration nothing is written, so the stored state cannot be
// overwritten by a tracker that has not read it yet.
func (t *Tracker) persist() {
	t.updateGauges()

	if t.store == nil {
		return
	}
	if !t.restored {
		metrics.StatePersistFailures.Inc()
		t.logger.Warn().Str("key", t.stateKey).Msg("Session state not persisted, tracker not hydrated yet")
		return
	}

	data, err := json.Marshal(t.snapshotLocked())
	if err != nil {
		metrics.StatePersistFailures.Inc()
		t.logger.Error().Err(err).Msg("Failed to encode session state")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.persistTimeout)
	defer cancel()

	if err := t.store.Save(ctx, t.stateKey, data); err != nil {
		metrics.StatePersistFailures.Inc()
		t.logger.Error().Err(err).Str("key", t.stateKey).Msg("Failed to persist session state")
	}
}

func (t *Tracker) updateGauges() {
	metrics.ActiveSessions.Set(float64(len(t.sessions)))
	queued := 0
	for _, zones := range t.pending {
		queued += len(zones)
	}
	metrics.PendingZones.Set(float64(queued))
}

// SetPendingZones replaces the practitioner's queue; an empty list clears it
func (t *Tracker) SetPendingZones(practitionerID string, zones []PendingZone) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(zones) == 0 {
		delete(t.pending, practitionerID)
	} else {
		t.pending[practitionerID] = cloneZones(zones)
	}
	t.persist()

	t.logger.Debug().
		Str("practitioner_id", practitionerID).
		Int("zones", len(zones)).
		Msg("Pending zones replaced")
}

// PopNextZone removes and returns the head of the practitioner's queue
func (t *Tracker) PopNextZone(practitionerID string) (PendingZone, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	zones := t.pending[practitionerID]
	if len(zones) == 0 {
		return PendingZone{}, false
	}

	next := zones[0]
	if len(zones) == 1 {
		delete(t.pending, practitionerID)
	} else {
		t.pending[practitionerID] = cloneZones(zones[1:])
	}
	t.persist()

	return next, true
}

// PendingZones returns a copy of the practitioner's queue
func (t *Tracker) PendingZones(practitionerID string) []PendingZone {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneZones(t.pending[practitionerID])
}

// ClearPendingZones drops the practitioner's queue
func (t *Tracker) ClearPendingZones(practitionerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[practitionerID]; !ok {
		return
	}
	delete(t.pending, practitionerID)
	t.persist()
}

// StartSession creates a running session, replacing any session the practitioner already has
func (t *Tracker) StartSession(practitionerID, practitionerName string, data SessionData) Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if previous, ok := t.sessions[practitionerID]; ok {
		metrics.SessionsFinished.WithLabelValues("replaced").Inc()
		t.logger.Warn().
			Str("practitioner_id", practitionerID).
			Str("replaced_patient_id", previous.PatientID).
			Str("replaced_zone", previous.ZoneName).
			Msg("Starting a session over an active one, previous session discarded")
	}

	s := &Session{
		PractitionerID:   practitionerID,
		PractitionerName: practitionerName,
		PatientID:        data.PatientID,
		PatientName:      data.PatientName,
		TreatmentZoneID:  data.TreatmentZoneID,
		ZoneName:         data.ZoneName,
		SessionNumber:    data.SessionNumber,
		TotalSessions:    data.TotalSessions,
		LaserType:        data.LaserType,
		SpotSize:         data.SpotSize,
		Fluence:          data.Fluence,
		PulseDurationMs:  data.PulseDurationMs,
		FrequencyHz:      data.FrequencyHz,
		StartedAt:        t.nowMillis(),
		Photos:           []Photo{},
		VoiceNotes:       []string{},
		SideEffects:      []SideEffect{},
		Tolerance:        data.Tolerance,
		Frequence:        data.Frequence,
		EffetsImmediats:  data.EffetsImmediats,
		QueueEntryID:     data.QueueEntryID,
	}
	t.sessions[practitionerID] = s
	t.persist()

	metrics.SessionsStarted.Inc()
	t.logger.Info().
		Str("practitioner_id", practitionerID).
		Str("patient_id", data.PatientID).
		Str("zone", data.ZoneName).
		Msg("Session started")

	return s.clone()
}

// GetSession returns a copy of the practitioner's session
func (t *Tracker) GetSession(practitionerID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[practitionerID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// GetAllSessions returns copies of every active session keyed by practitioner ID
func (t *Tracker) GetAllSessions() map[string]Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make(map[string]Session, len(t.sessions))
	for id, s := range t.sessions {
		all[id] = s.clone()
	}
	return all
}

// GetSessionByPatient returns the patient's session. Should several practitioners
// hold one, the lowest practitioner ID wins and the conflict is logged.
func (t *Tracker) GetSessionByPatient(patientID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matches []string
	for _, id := range ids {
		if t.sessions[id].PatientID == patientID {
			matches = append(matches, id)
		}
	}

	if len(matches) == 0 {
		return Session{}, false
	}
	if len(matches) > 1 {
		metrics.PatientSessionConflicts.Inc()
		t.logger.Warn().
			Str("patient_id", patientID).
			Strs("practitioner_ids", matches).
			Msg("Patient has more than one active session")
	}
	return t.sessions[matches[0]].clone(), true
}

// TogglePause pauses a running session or resumes a paused one
func (t *Tracker) TogglePause(practitionerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[practitionerID]
	if !ok {
		return false
	}

	now := t.nowMillis()
	if s.IsPaused {
		if s.PausedAt != nil {
			s.TotalPausedTime += now - *s.PausedAt
		}
		s.PausedAt = nil
		s.IsPaused = false
	} else {
		s.PausedAt = &now
		s.IsPaused = true
	}
	t.persist()

	t.logger.Debug().
		Str("practitioner_id", practitionerID).
		Bool("paused", s.IsPaused).
		Int64("total_paused_ms", s.TotalPausedTime).
		Msg("Session pause toggled")

	return true
}

// mutate applies fn to the practitioner's session and persists the result
func (t *Tracker) mutate(practitionerID string, fn func(s *Session)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[practitionerID]
	if !ok {
		return false
	}
	fn(s)
	t.persist()
	return true
}

// AddNote appends a line to the session notes
func (t *Tracker) AddNote(practitionerID, note string) bool {
	return t.mutate(practitionerID, func(s *Session) {
		if s.Notes == "" {
			s.Notes = note
			return
		}
		s.Notes = strings.Join([]string{s.Notes, note}, "\n")
	})
}

// AddPhoto appends a photo reference
func (t *Tracker) AddPhoto(practitionerID string, photo Photo) bool {
	return t.mutate(practitionerID, func(s *Session) {
		s.Photos = append(s.Photos, photo)
	})
}

// RemovePhoto drops every photo with the given ID
func (t *Tracker) RemovePhoto(practitionerID, photoID string) bool {
	return t.mutate(practitionerID, func(s *Session) {
		kept := make([]Photo, 0, len(s.Photos))
		for _, p := range s.Photos {
			if p.ID != photoID {
				kept = append(kept, p)
			}
		}
		s.Photos = kept
	})
}

// AddVoiceNote appends a voice note reference
func (t *Tracker) AddVoiceNote(practitionerID, voiceNote string) bool {
	return t.mutate(practitionerID, func(s *Session) {
		s.VoiceNotes = append(s.VoiceNotes, voiceNote)
	})
}

// AddSideEffect appends an observed side effect
func (t *Tracker) AddSideEffect(practitionerID string, sideEffect SideEffect) bool {
	if sideEffect.Photos == nil {
		sideEffect.Photos = []string{}
	} else {
		sideEffect.Photos = append([]string(nil), sideEffect.Photos...)
	}
	return t.mutate(practitionerID, func(s *Session) {
		s.SideEffects = append(s.SideEffects, sideEffect)
	})
}

// UpdateDetails sets the free-text observations present in details
func (t *Tracker) UpdateDetails(practitionerID string, details SessionDetails) bool {
	return t.mutate(practitionerID, func(s *Session) {
		if details.Tolerance != nil {
			s.Tolerance = *details.Tolerance
		}
		if details.Frequence != nil {
			s.Frequence = *details.Frequence
		}
		if details.EffetsImmediats != nil {
			s.EffetsImmediats = *details.EffetsImmediats
		}
	})
}

// EndSession removes the session and returns its final snapshot and duration
func (t *Tracker) EndSession(practitionerID string) (EndResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[practitionerID]
	if !ok {
		return EndResult{}, false
	}

	now := t.nowMillis()
	result := EndResult{
		Session:         s.clone(),
		DurationSeconds: elapsedSeconds(s, now),
		EndedAt:         now,
	}
	delete(t.sessions, practitionerID)
	t.persist()

	metrics.SessionsFinished.WithLabelValues("ended").Inc()
	metrics.SessionDuration.Observe(float64(result.DurationSeconds))
	t.logger.Info().
		Str("practitioner_id", practitionerID).
		Str("patient_id", s.PatientID).
		Str("zone", s.ZoneName).
		Int64("duration_seconds", result.DurationSeconds).
		Msg("Session ended")

	return result, true
}

// ClearSession discards the session without a snapshot
func (t *Tracker) ClearSession(practitionerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[practitionerID]
	if !ok {
		return false
	}
	delete(t.sessions, practitionerID)
	t.persist()

	metrics.SessionsFinished.WithLabelValues("cleared").Inc()
	t.logger.Info().
		Str("practitioner_id", practitionerID).
		Str("patient_id", s.PatientID).
		Msg("Session cleared")

	return true
}

// ElapsedSeconds returns the session's running time with pauses excluded, or 0 without a session.
// Wall-clock steps backwards are not corrected and may yield a smaller or negative value.
func (t *Tracker) ElapsedSeconds(practitionerID string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[practitionerID]
	if !ok {
		return 0
	}
	return elapsedSeconds(s, t.nowMillis())
}

func elapsedSeconds(s *Session, now int64) int64 {
	elapsed := now - s.StartedAt - s.TotalPausedTime
	if s.IsPaused && s.PausedAt != nil {
		elapsed -= now - *s.PausedAt
	}
	return floorDiv(elapsed, 1000)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Snapshot returns a deep copy of the tracker state
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() State {
	state := State{
		ActiveSessions: make(map[string]Session, len(t.sessions)),
		PendingZones:   make(map[string][]PendingZone, len(t.pending)),
	}
	for id, s := range t.sessions {
		state.ActiveSessions[id] = s.clone()
	}
	for id, zones := range t.pending {
		state.PendingZones[id] = cloneZones(zones)
	}
	return state
}
