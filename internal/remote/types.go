package remote

import (
	"fmt"
	"time"
)

// QueueEntry is one patient in the clinic's day queue
type QueueEntry struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patient_id"`
	PatientName string     `json:"patient_name"`
	DoctorID    string     `json:"doctor_id,omitempty"`
	DoctorName  string     `json:"doctor_name,omitempty"`
	Status      string     `json:"status"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}

// StatusError reports a non-2xx response from the remote API
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}
