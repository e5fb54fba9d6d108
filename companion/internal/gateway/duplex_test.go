package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

// eventServer is a minimal duplex endpoint for tests. It records events
// emitted by the client and can push events back.
type eventServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []wire.Event
	seen     chan string
}

func newEventServer(t *testing.T) *eventServer {
	es := &eventServer{t: t, seen: make(chan string, 16)}
	es.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := es.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.mu.Lock()
		es.conn = conn
		es.mu.Unlock()
		for {
			var ev wire.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			es.mu.Lock()
			es.received = append(es.received, ev)
			es.mu.Unlock()
			es.seen <- ev.Name
		}
	}))
	t.Cleanup(es.srv.Close)
	return es
}

func (es *eventServer) url() string {
	return "ws" + strings.TrimPrefix(es.srv.URL, "http")
}

func (es *eventServer) push(name string, data any) {
	ev, err := wire.NewEvent(name, data)
	if err != nil {
		es.t.Fatalf("push: %v", err)
	}
	es.mu.Lock()
	conn := es.conn
	es.mu.Unlock()
	if conn == nil {
		es.t.Fatal("push: no connection")
	}
	if err := conn.WriteJSON(ev); err != nil {
		es.t.Fatalf("push: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDuplexConnectAndEmit(t *testing.T) {
	es := newEventServer(t)

	connected := make(chan struct{}, 1)
	d := NewDuplex(es.url(), Events{
		OnConnect: func() { connected <- struct{}{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect never fired")
	}
	waitFor(t, d.Connected)

	if err := d.Emit(wire.EventRegisterPatient, wire.RegisterPatient{PatientID: "p1"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case name := <-es.seen:
		if name != wire.EventRegisterPatient {
			t.Errorf("event = %q, want %q", name, wire.EventRegisterPatient)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received event")
	}
}

func TestDuplexQueuesWhileDisconnected(t *testing.T) {
	es := newEventServer(t)

	d := NewDuplex(es.url(), Events{})

	// Emit before Run: event sits in the buffer and is flushed on connect.
	if err := d.Emit(wire.EventWatchStatusUpdate, wire.WatchStatus{PatientID: "p1", BatteryLevel: 80}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case name := <-es.seen:
		if name != wire.EventWatchStatusUpdate {
			t.Errorf("event = %q", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("buffered event never flushed")
	}
}

func TestDuplexEmitNeverBlocksUnderContention(t *testing.T) {
	// No Run loop: nothing drains the buffer, so every emitter past capacity
	// races on the evict-then-requeue path.
	d := NewDuplex("ws://unused.invalid/socket", Events{})

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 4*eventBufSize; i++ {
					if err := d.Emit(wire.EventWatchStatusUpdate, wire.WatchStatus{PatientID: "p1", BatteryLevel: i % 100}); err != nil {
						t.Errorf("Emit: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit blocked with a full buffer")
	}
	if len(d.out) != eventBufSize {
		t.Errorf("queued = %d, want a full buffer of %d", len(d.out), eventBufSize)
	}
}

func TestDuplexDispatch(t *testing.T) {
	es := newEventServer(t)

	var mu sync.Mutex
	var startedWith int64
	stopped := false
	var patientID, patientName string
	got := make(chan string, 8)

	d := NewDuplex(es.url(), Events{
		OnStartMonitoring: func(id int64) {
			mu.Lock()
			startedWith = id
			mu.Unlock()
			got <- wire.EventStartMonitoring
		},
		OnStopMonitoring: func() {
			mu.Lock()
			stopped = true
			mu.Unlock()
			got <- wire.EventStopMonitoring
		},
		OnSetActivePatient: func(id, name string) {
			mu.Lock()
			patientID, patientName = id, name
			mu.Unlock()
			got <- wire.EventSetActivePatient
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	waitFor(t, d.Connected)

	es.push(wire.EventStartMonitoring, wire.StartMonitoring{SessionID: 77})
	es.push(wire.EventSetActivePatient, wire.SetActivePatient{ID: "p3", Name: "Ana"})
	es.push(wire.EventStopMonitoring, nil)

	for i := 0; i < 3; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 3 events dispatched", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if startedWith != 77 {
		t.Errorf("session id = %d, want 77", startedWith)
	}
	if !stopped {
		t.Error("stop not dispatched")
	}
	if patientID != "p3" || patientName != "Ana" {
		t.Errorf("patient = %q/%q", patientID, patientName)
	}
}

func TestDuplexReconnects(t *testing.T) {
	es := newEventServer(t)

	connects := make(chan struct{}, 4)
	d := NewDuplex(es.url(), Events{
		OnConnect: func() { connects <- struct{}{} },
	})
	d.dialFn = func(ctx context.Context, url string) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		return conn, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-connects:
	case <-time.After(2 * time.Second):
		t.Fatal("first connect never happened")
	}

	// Server-side drop forces a reconnect cycle.
	es.mu.Lock()
	es.conn.Close()
	es.mu.Unlock()

	select {
	case <-connects:
	case <-time.After(5 * time.Second):
		t.Fatal("no reconnect after server-side close")
	}
}
