package queue

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	// EventCheckIn announces a patient arriving at the front desk
	EventCheckIn = "patient_checked_in"

	// EventPing is a keep-alive with no payload
	EventPing = "ping"

	defaultEventType = "message"
)

// Event is one dispatched server-sent event
type Event struct {
	ID   string
	Type string
	Data string
}

// CheckIn is the payload of a patient_checked_in event
type CheckIn struct {
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

// eventReader splits an event stream into events. Comments are skipped,
// data lines are joined with newlines and a blank line dispatches. Frames
// carrying neither data nor an event name are not dispatched.
type eventReader struct {
	r     *bufio.Reader
	retry time.Duration // latest reconnection hint from the server
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{r: bufio.NewReader(r)}
}

// Next returns the next event. An unterminated trailing frame is dropped.
func (er *eventReader) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
	)

	for {
		line, err := er.r.ReadString('\n')
		if err != nil {
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !hasData && ev.Type == "" {
				ev = Event{}
				continue
			}
			if ev.Type == "" {
				ev.Type = defaultEventType
			}
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Type = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.Contains(value, "\x00") {
				ev.ID = value
			}
		case "retry":
			if ms, convErr := strconv.Atoi(value); convErr == nil && ms >= 0 {
				er.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}
