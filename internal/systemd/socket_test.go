package systemd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFromNamed(t *testing.T) {
	api, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer api.Close()

	listeners := fromNamed(map[string][]net.Listener{
		SocketAPI: {api},
		"unused":  {api},
	})

	if !listeners.Activated {
		t.Fatal("expected Activated")
	}
	if listeners.API != api {
		t.Fatal("expected api listener mapped")
	}
	if listeners.Metrics != nil {
		t.Fatal("expected no metrics listener")
	}
}

func TestGetListenersWithoutActivation(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if listeners.Activated || listeners.API != nil || listeners.Metrics != nil {
		t.Fatalf("expected no listeners, got %+v", listeners)
	}
}

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	if err := NotifyReady(); err != nil {
		t.Fatalf("NotifyReady: %v", err)
	}
	if err := NotifyStatus("testing"); err != nil {
		t.Fatalf("NotifyStatus: %v", err)
	}
	if err := NotifyStopping(); err != nil {
		t.Fatalf("NotifyStopping: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		RunWatchdog(ctx, zerolog.Nop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("RunWatchdog should return at once without WATCHDOG_USEC")
	}
}
