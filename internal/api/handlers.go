package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/kclinic/internal/session"
	"github.com/goodtune/kclinic/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const noSessionMessage = "No active session for practitioner"

// handleListSessions returns all active sessions, or the one belonging to ?patient_id=.
// Practitioner tokens only see their own session.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims, scoped := ClaimsFromContext(r.Context())
	scoped = scoped && claims.Role != RoleAdmin

	if patientID := r.URL.Query().Get("patient_id"); patientID != "" {
		var sess session.Session
		var ok bool
		if scoped {
			sess, ok = s.tracker.GetSession(claims.PractitionerID)
			ok = ok && sess.PatientID == patientID
		} else {
			sess, ok = s.tracker.GetSessionByPatient(patientID)
		}
		if !ok {
			writeError(w, http.StatusNotFound, "No active session for patient")
			return
		}
		writeJSON(w, http.StatusOK, sess)
		return
	}

	sessions := s.tracker.GetAllSessions()
	if scoped {
		for id := range sessions {
			if id != claims.PractitionerID {
				delete(sessions, id)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.tracker.GetSession(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, noSessionMessage)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req StartSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PatientID == "" || req.TreatmentZoneID == "" {
		writeError(w, http.StatusBadRequest, "patientId and treatmentZoneId are required")
		return
	}

	sess := s.tracker.StartSession(id, req.PractitionerName, req.SessionData)
	s.hub.Broadcast(MsgSessionStarted, sess)

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !s.tracker.ClearSession(id) {
		writeError(w, http.StatusNotFound, noSessionMessage)
		return
	}
	s.hub.Broadcast(MsgSessionCleared, map[string]string{"practitionerId": id})

	w.WriteHeader(http.StatusNoContent)
}

// handleEndSession ends the session and archives its final snapshot.
// An archive failure is logged but does not undo the end.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, ok := s.tracker.EndSession(id)
	if !ok {
		writeError(w, http.StatusNotFound, noSessionMessage)
		return
	}

	resp := EndSessionResponse{EndResult: result}
	finished, err := s.finishedSession(result)
	if err == nil {
		err = s.archive.Record(r.Context(), finished)
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("practitioner_id", id).
			Str("patient_id", result.Session.PatientID).
			Msg("Failed to archive finished session")
	} else {
		resp.ArchiveID = finished.ID
	}

	s.hub.Broadcast(MsgSessionEnded, result)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) finishedSession(result session.EndResult) (storage.FinishedSession, error) {
	payload, err := json.Marshal(result.Session)
	if err != nil {
		return storage.FinishedSession{}, err
	}

	sess := result.Session
	return storage.FinishedSession{
		ID:               uuid.NewString(),
		PractitionerID:   sess.PractitionerID,
		PractitionerName: sess.PractitionerName,
		PatientID:        sess.PatientID,
		PatientName:      sess.PatientName,
		TreatmentZoneID:  sess.TreatmentZoneID,
		ZoneName:         sess.ZoneName,
		SessionNumber:    sess.SessionNumber,
		TotalSessions:    sess.TotalSessions,
		LaserType:        sess.LaserType,
		QueueEntryID:     sess.QueueEntryID,
		StartedAt:        time.UnixMilli(sess.StartedAt).UTC(),
		EndedAt:          time.UnixMilli(result.EndedAt).UTC(),
		DurationSeconds:  result.DurationSeconds,
		TotalPausedMS:    sess.TotalPausedTime,
		Notes:            sess.Notes,
		PhotoCount:       len(sess.Photos),
		VoiceNoteCount:   len(sess.VoiceNotes),
		SideEffectCount:  len(sess.SideEffects),
		Payload:          payload,
	}, nil
}

func (s *Server) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !s.tracker.TogglePause(id) {
		writeError(w, http.StatusNotFound, noSessionMessage)
		return
	}

	sess, ok := s.tracker.GetSession(id)
	if !ok {
		// Ended concurrently
		writeError(w, http.StatusNotFound, noSessionMessage)
		return
	}
	if sess.IsPaused {
		s.hub.Broadcast(MsgSessionPaused, sess)
	} else {
		s.hub.Broadcast(MsgSessionResumed, sess)
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleElapsed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, ok := s.tracker.GetSession(id); !ok {
		writeError(w, http.StatusNotFound, noSessionMessage)
		return
	}

	writeJSON(w, http.StatusOK, ElapsedResponse{
		PractitionerID: id,
		ElapsedSeconds: s.tracker.ElapsedSeconds(id),
	})
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Note) == "" {
		writeError(w, http.StatusBadRequest, "note is required")
		return
	}
	s.respondMutation(w, r, func(id string) bool {
		return s.tracker.AddNote(id, req.Note)
	})
}

func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	var photo session.Photo
	if err := decodeJSON(r, &photo); err != nil || photo.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	s.respondMutation(w, r, func(id string) bool {
		return s.tracker.AddPhoto(id, photo)
	})
}

func (s *Server) handleRemovePhoto(w http.ResponseWriter, r *http.Request) {
	photoID := mux.Vars(r)["photoId"]
	s.respondMutation(w, r, func(id string) bool {
		return s.tracker.RemovePhoto(id, photoID)
	})
}

func (s *Server) handleAddVoiceNote(w http.ResponseWriter, r *http.Request) {
	var req VoiceNoteRequest
	if err := decodeJSON(r, &req); err != nil || req.VoiceNote == "" {
		writeError(w, http.StatusBadRequest, "voiceNote is required")
		return
	}
	s.respondMutation(w, r, func(id string) bool {
		return s.tracker.AddVoiceNote(id, req.VoiceNote)
	})
}

func (s *Server) handleAddSideEffect(w http.ResponseWriter, r *http.Request) {
	var sideEffect session.SideEffect
	if err := decodeJSON(r, &sideEffect); err != nil || strings.TrimSpace(sideEffect.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	s.respondMutation(w, r, func(id string) bool {
		return s.tracker.AddSideEffect(id, sideEffect)
	})
}

func (s *Server) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var details session.SessionDetails
	if err := decodeJSON(r, &details); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.respondMutation(w, r, func(id string) bool {
		return s.tracker.UpdateDetails(id, details)
	})
}

// respondMutation applies a session mutation and replies with the updated session, or 404 when there is none.
func (s *Server) respondMutation(w http.ResponseWriter, r *http.Request, apply func(id string) bool) {
	id := mux.Vars(r)["id"]

	if !apply(id) {
		writeError(w, http.StatusNotFound, noSessionMessage)
		return
	}
	sess, ok := s.tracker.GetSession(id)
	if !ok {
		writeError(w, http.StatusNotFound, noSessionMessage)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetPendingZones(w http.ResponseWriter, r *http.Request) {
	zones := s.tracker.PendingZones(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, PendingZonesRequest{Zones: zones})
}

func (s *Server) handleSetPendingZones(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req PendingZonesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.tracker.SetPendingZones(id, req.Zones)
	writeJSON(w, http.StatusOK, PendingZonesRequest{Zones: s.tracker.PendingZones(id)})
}

func (s *Server) handlePopNextZone(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.tracker.PopNextZone(mux.Vars(r)["id"])
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (s *Server) handleClearPendingZones(w http.ResponseWriter, r *http.Request) {
	s.tracker.ClearPendingZones(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// handleListArchive lists finished sessions. Practitioner tokens only see their own.
func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ArchiveFilter{
		PractitionerID: q.Get("practitioner_id"),
		PatientID:      q.Get("patient_id"),
	}

	if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Role != RoleAdmin {
		if filter.PractitionerID != "" && filter.PractitionerID != claims.PractitionerID {
			writeError(w, http.StatusForbidden, "Token not valid for this practitioner")
			return
		}
		filter.PractitionerID = claims.PractitionerID
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	for name, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
			return
		}
		*dst = &t
	}

	sessions, err := s.archive.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list archived sessions")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve archived sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	finished, err := s.archive.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Archived session not found")
			return
		}
		s.logger.Error().Err(err).Str("id", id).Msg("Failed to get archived session")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve archived session")
		return
	}

	if claims, ok := ClaimsFromContext(r.Context()); ok && !claims.CanActFor(finished.PractitionerID) {
		writeError(w, http.StatusNotFound, "Archived session not found")
		return
	}

	writeJSON(w, http.StatusOK, finished)
}

// handleQueue proxies the clinic's check-in queue for ?date=YYYY-MM-DD, defaulting to today.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "Remote API is not configured")
		return
	}

	day := s.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, day.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	entries, err := s.queue.ListQueue(r.Context(), day)
	if err != nil {
		s.logger.Error().Err(err).Str("date", day.Format("2006-01-02")).Msg("Failed to fetch queue")
		writeError(w, http.StatusBadGateway, "Failed to fetch queue from remote API")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":    day.Format("2006-01-02"),
		"entries": entries,
		"count":   len(entries),
	})
}
