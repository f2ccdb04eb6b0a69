package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/kclinic/internal/queue"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d live clients, got %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read live message: %v", err)
	}
	return msg
}

func TestLiveEvents(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	waitForClients(t, env.server.hub, 1)

	env.do(t, "POST", "/api/v1/practitioners/p1/session", startBody("pt1"), "")
	if msg := readMessage(t, conn); msg.Type != MsgSessionStarted || !strings.Contains(string(msg.Payload), `"patientId":"pt1"`) {
		t.Fatalf("unexpected message: %s %s", msg.Type, msg.Payload)
	}

	env.do(t, "POST", "/api/v1/practitioners/p1/session/pause", nil, "")
	if msg := readMessage(t, conn); msg.Type != MsgSessionPaused {
		t.Fatalf("expected %s, got %s", MsgSessionPaused, msg.Type)
	}
	env.do(t, "POST", "/api/v1/practitioners/p1/session/pause", nil, "")
	if msg := readMessage(t, conn); msg.Type != MsgSessionResumed {
		t.Fatalf("expected %s, got %s", MsgSessionResumed, msg.Type)
	}

	env.server.hub.NotifyCheckIn(queue.CheckIn{PatientName: "Sara B.", DoctorName: "Dr. Amal"})
	msg := readMessage(t, conn)
	if msg.Type != MsgPatientCheckedIn || !strings.Contains(string(msg.Payload), `"patient_name":"Sara B."`) {
		t.Fatalf("unexpected message: %s %s", msg.Type, msg.Payload)
	}

	env.do(t, "POST", "/api/v1/practitioners/p1/session/end", nil, "")
	if msg := readMessage(t, conn); msg.Type != MsgSessionEnded {
		t.Fatalf("expected %s, got %s", MsgSessionEnded, msg.Type)
	}

	env.server.hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after hub shutdown")
	}
	waitForClients(t, env.server.hub, 0)
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())

	slow := &client{send: make(chan []byte, 1)}
	fast := &client{send: make(chan []byte, 4)}
	if !hub.register(slow) || !hub.register(fast) {
		t.Fatal("register failed")
	}

	hub.Broadcast(MsgSessionCleared, map[string]string{"practitionerId": "p1"})
	hub.Broadcast(MsgSessionCleared, map[string]string{"practitionerId": "p2"})

	if hub.ClientCount() != 1 {
		t.Fatalf("expected slow client dropped, got %d clients", hub.ClientCount())
	}

	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Fatal("expected slow client's channel closed")
	}
	if len(fast.send) != 2 {
		t.Fatalf("expected fast client to receive both events, got %d", len(fast.send))
	}

	// Removing twice is harmless
	hub.unregister(slow)

	hub.Close()
	if hub.register(&client{send: make(chan []byte, 1)}) {
		t.Fatal("closed hub must refuse new clients")
	}
}

func TestHubCheckOrigin(t *testing.T) {
	hub := NewHub([]string{"https://clinic.example"}, zerolog.Nop())

	allowed := httptest.NewRequest("GET", "/api/v1/ws", nil)
	allowed.Header.Set("Origin", "https://clinic.example")
	if !hub.upgrader.CheckOrigin(allowed) {
		t.Fatal("expected configured origin to be allowed")
	}

	denied := httptest.NewRequest("GET", "/api/v1/ws", nil)
	denied.Header.Set("Origin", "https://evil.example")
	if hub.upgrader.CheckOrigin(denied) {
		t.Fatal("expected unknown origin to be rejected")
	}
}
