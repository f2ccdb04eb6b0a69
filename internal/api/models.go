package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/goodtune/kclinic/internal/session"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr      string
	JWTSecret       string // empty disables authentication
	TokenExpiration time.Duration
	AllowedOrigins  []string
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// StartSessionRequest starts a session for the practitioner in the path.
type StartSessionRequest struct {
	PractitionerName string `json:"practitionerName"`
	session.SessionData
}

// NoteRequest appends a line to the session notes.
type NoteRequest struct {
	Note string `json:"note"`
}

// VoiceNoteRequest appends a voice note reference.
type VoiceNoteRequest struct {
	VoiceNote string `json:"voiceNote"`
}

// PendingZonesRequest replaces a practitioner's queue.
type PendingZonesRequest struct {
	Zones []session.PendingZone `json:"zones"`
}

// EndSessionResponse is the final snapshot plus the archive record it produced.
type EndSessionResponse struct {
	session.EndResult
	ArchiveID string `json:"archiveId,omitempty"`
}

// ElapsedResponse reports a session's running time.
type ElapsedResponse struct {
	PractitionerID string `json:"practitionerId"`
	ElapsedSeconds int64  `json:"elapsedSeconds"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
