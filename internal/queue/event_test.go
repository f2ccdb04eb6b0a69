package queue

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestEventReader(t *testing.T) {
	stream := strings.Join([]string{
		": connected",
		"retry: 2500",
		"",
		"event: ping",
		"",
		"id: 41",
		"event: patient_checked_in",
		`data: {"patient_name":"Jeanne Martin",`,
		`data: "doctor_name":"Dr. X"}`,
		"",
		"data:plain message",
		"",
		"event: patient_checked_in",
		`data: {"patient_name":"trailing"}`,
	}, "\r\n")

	reader := newEventReader(strings.NewReader(stream))

	want := []Event{
		{Type: "ping"},
		{ID: "41", Type: "patient_checked_in", Data: "{\"patient_name\":\"Jeanne Martin\",\n\"doctor_name\":\"Dr. X\"}"},
		{Type: "message", Data: "plain message"},
	}
	for i, w := range want {
		got, err := reader.Next()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if got != w {
			t.Fatalf("event %d: got %+v, want %+v", i, got, w)
		}
	}

	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after unterminated frame, got %v", err)
	}
	if reader.retry != 2500*time.Millisecond {
		t.Fatalf("expected retry hint 2.5s, got %v", reader.retry)
	}
}

func TestEventReaderIgnoresInvalidFields(t *testing.T) {
	stream := "retry: soon\nid: bad\x00id\nunknown: x\ndata: ok\n\n"
	reader := newEventReader(strings.NewReader(stream))

	ev, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.ID != "" || ev.Data != "ok" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if reader.retry != 0 {
		t.Fatalf("expected invalid retry to be ignored, got %v", reader.retry)
	}
}
