package conn_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomchat/roomchat/internal/conn"
	"github.com/roomchat/roomchat/internal/conn/conntest"
	"github.com/roomchat/roomchat/internal/protocol"
)

func newConnected(t *testing.T) (*conn.Manager, *conntest.Dialer) {
	t.Helper()
	dialer := conntest.NewDialer()
	m := conn.NewManager(dialer, conn.Options{})
	t.Cleanup(m.Teardown)
	if _, err := m.Connect(context.Background(), "ws://chat.test/ws"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return m, dialer
}

func TestManager_Connect(t *testing.T) {
	t.Run("handle carries generated connection id", func(t *testing.T) {
		dialer := conntest.NewDialer()
		m := conn.NewManager(dialer, conn.Options{})
		defer m.Teardown()

		if m.Handle() != nil {
			t.Error("handle should be nil before connect")
		}

		h, err := m.Connect(context.Background(), "ws://chat.test/ws")
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		if h.ID() == "" || h.ID() != dialer.ConnectionID() {
			t.Errorf("connection id mismatch: handle=%q dialer=%q", h.ID(), dialer.ConnectionID())
		}
		if h.Endpoint() != "ws://chat.test/ws" {
			t.Errorf("unexpected endpoint %q", h.Endpoint())
		}
		if m.Handle() != h {
			t.Error("manager should expose the live handle")
		}
	})

	t.Run("second connect is rejected", func(t *testing.T) {
		m, dialer := newConnected(t)
		if _, err := m.Connect(context.Background(), "ws://chat.test/ws"); !errors.Is(err, conn.ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}
		if dialer.Dials() != 1 {
			t.Errorf("expected a single dial, got %d", dialer.Dials())
		}
	})

	t.Run("dial failure leaves manager reusable", func(t *testing.T) {
		dialer := conntest.NewDialer()
		dialer.Err = errors.New("connection refused")
		m := conn.NewManager(dialer, conn.Options{})
		defer m.Teardown()

		if _, err := m.Connect(context.Background(), "ws://chat.test/ws"); err == nil {
			t.Fatal("expected dial error")
		}
		if m.Handle() != nil {
			t.Error("no handle after failed dial")
		}

		dialer.Err = nil
		if _, err := m.Connect(context.Background(), "ws://chat.test/ws"); err != nil {
			t.Errorf("retry after failure should work: %v", err)
		}
	})

	t.Run("connect after teardown", func(t *testing.T) {
		m := conn.NewManager(conntest.NewDialer(), conn.Options{})
		m.Teardown()
		if _, err := m.Connect(context.Background(), "ws://chat.test/ws"); !errors.Is(err, conn.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestManager_On(t *testing.T) {
	m := conn.NewManager(conntest.NewDialer(), conn.Options{})
	defer m.Teardown()

	noop := func(json.RawMessage) {}

	sub, err := m.On(protocol.EventMessage, noop)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sub == nil {
		t.Fatal("expected a subscription")
	}

	if _, err := m.On(protocol.EventMessage, noop); !errors.Is(err, conn.ErrHandlerRegistered) {
		t.Errorf("expected ErrHandlerRegistered, got %v", err)
	}
	if _, err := m.On(protocol.EventTyping, nil); !errors.Is(err, conn.ErrNilHandler) {
		t.Errorf("expected ErrNilHandler, got %v", err)
	}

	sub.Release()
	sub.Release()
	if _, err := m.On(protocol.EventMessage, noop); err != nil {
		t.Errorf("register after release should succeed: %v", err)
	}

	m.Teardown()
	if _, err := m.On(protocol.EventNotification, noop); !errors.Is(err, conn.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestManager_StaleReleaseKeepsNewHandler(t *testing.T) {
	m, dialer := newConnected(t)

	old, _ := m.On(protocol.EventNotification, func(json.RawMessage) {})
	old.Release()

	got := make(chan string, 1)
	if _, err := m.On(protocol.EventNotification, func(data json.RawMessage) {
		s, _ := protocol.DecodeString(data)
		got <- s
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	old.Release()

	dialer.Conn.Inject(protocol.EventNotification, "still here")
	select {
	case s := <-got:
		if s != "still here" {
			t.Errorf("unexpected payload %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("new handler was removed by a stale release")
	}
}

func TestManager_DispatchOrder(t *testing.T) {
	m, dialer := newConnected(t)

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})

	record := func(prefix string) conn.Handler {
		return func(data json.RawMessage) {
			s, _ := protocol.DecodeString(data)
			mu.Lock()
			seen = append(seen, prefix+s)
			n := len(seen)
			mu.Unlock()
			if n == 5 {
				close(done)
			}
		}
	}
	m.On(protocol.EventNotification, record("n:"))
	m.On(protocol.EventTyping, record("t:"))

	dialer.Conn.Inject(protocol.EventNotification, "1")
	dialer.Conn.Inject(protocol.EventTyping, "Bob")
	dialer.Conn.InjectRaw([]byte(`{"event":"reaction"}`))
	dialer.Conn.Inject(protocol.EventJoinRoom, protocol.JoinRoomPayload{Room: "general"})
	dialer.Conn.Inject(protocol.EventNotification, "2")
	dialer.Conn.Inject(protocol.EventTyping, "")
	dialer.Conn.Inject(protocol.EventNotification, "3")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"n:1", "t:Bob", "n:2", "t:", "n:3"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("arrival order not preserved: got %v, want %v", seen, want)
		}
	}
}

func TestManager_Emit(t *testing.T) {
	t.Run("frames are written in order", func(t *testing.T) {
		m, dialer := newConnected(t)

		m.Emit(protocol.EventTyping, nil)
		m.Emit(protocol.EventSendMessage, protocol.SendMessagePayload{Room: "general", Message: "hi"})
		m.Emit(protocol.EventNotTyping, nil)

		if !dialer.Conn.WaitWritten(3, time.Second) {
			t.Fatal("timed out waiting for writes")
		}
		kinds := dialer.Conn.Kinds()
		want := []protocol.EventKind{protocol.EventTyping, protocol.EventSendMessage, protocol.EventNotTyping}
		for i := range want {
			if kinds[i] != want[i] {
				t.Fatalf("got %v, want %v", kinds, want)
			}
		}
	})

	t.Run("emit before connect is dropped", func(t *testing.T) {
		dialer := conntest.NewDialer()
		m := conn.NewManager(dialer, conn.Options{})
		defer m.Teardown()

		m.Emit(protocol.EventTyping, nil)
		m.Connect(context.Background(), "ws://chat.test/ws")
		m.Emit(protocol.EventNotTyping, nil)

		if !dialer.Conn.WaitWritten(1, time.Second) {
			t.Fatal("timed out waiting for write")
		}
		time.Sleep(20 * time.Millisecond)
		if kinds := dialer.Conn.Kinds(); len(kinds) != 1 || kinds[0] != protocol.EventNotTyping {
			t.Errorf("expected only notTyping, got %v", kinds)
		}
	})
}

func TestManager_Teardown(t *testing.T) {
	t.Run("idempotent and closes the connection", func(t *testing.T) {
		m, dialer := newConnected(t)

		m.Teardown()
		m.Teardown()

		if !dialer.Conn.IsClosed() {
			t.Error("connection should be closed")
		}
		if m.Handle() != nil {
			t.Error("handle should be gone after teardown")
		}
		select {
		case <-m.Done():
		default:
			t.Error("done channel should be closed")
		}
	})

	t.Run("teardown without connect", func(t *testing.T) {
		m := conn.NewManager(conntest.NewDialer(), conn.Options{})
		m.Teardown()
		m.Emit(protocol.EventTyping, nil)
	})

	t.Run("waits for in-flight handler and blocks later ones", func(t *testing.T) {
		m, dialer := newConnected(t)

		entered := make(chan struct{})
		release := make(chan struct{})
		var mu sync.Mutex
		calls := 0
		m.On(protocol.EventNotification, func(json.RawMessage) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				close(entered)
				<-release
			}
		})

		dialer.Conn.Inject(protocol.EventNotification, "first")
		<-entered

		tornDown := make(chan struct{})
		go func() {
			m.Teardown()
			close(tornDown)
		}()

		select {
		case <-tornDown:
			t.Fatal("teardown returned while a handler was running")
		case <-time.After(50 * time.Millisecond):
		}

		dialer.Conn.Inject(protocol.EventNotification, "late")
		close(release)

		select {
		case <-tornDown:
		case <-time.After(time.Second):
			t.Fatal("teardown did not finish")
		}

		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		if calls != 1 {
			t.Errorf("expected exactly one handler call, got %d", calls)
		}
	})
}

func TestWebSocketDialer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	cids := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cids <- r.URL.Query().Get(conn.ConnectionIDParam)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(data)
			if err != nil || env.Event != protocol.EventTyping {
				continue
			}
			reply, _ := protocol.Encode(protocol.EventNotification, "echo")
			ws.WriteMessage(mt, reply)
		}
	}))
	defer srv.Close()

	m := conn.NewManager(conn.NewWebSocketDialer(time.Second), conn.Options{})
	defer m.Teardown()

	got := make(chan string, 1)
	m.On(protocol.EventNotification, func(data json.RawMessage) {
		s, _ := protocol.DecodeString(data)
		got <- s
	})

	// http:// is rewritten to ws://.
	h, err := m.Connect(context.Background(), srv.URL+"/ws")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if cid := <-cids; cid != h.ID() {
		t.Errorf("server saw cid %q, want %q", cid, h.ID())
	}

	m.Emit(protocol.EventTyping, nil)
	select {
	case s := <-got:
		if s != "echo" {
			t.Errorf("unexpected reply %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from server")
	}
}

func TestWebSocketDialer_BadEndpoint(t *testing.T) {
	d := conn.NewWebSocketDialer(time.Second)
	if _, err := d.Dial(context.Background(), "://nope", "cid"); err == nil || !strings.Contains(err.Error(), "invalid endpoint") {
		t.Errorf("expected invalid endpoint error, got %v", err)
	}
}
