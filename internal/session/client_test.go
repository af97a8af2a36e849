package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/roomchat/roomchat/internal/conn"
	"github.com/roomchat/roomchat/internal/conn/conntest"
	"github.com/roomchat/roomchat/internal/model"
	"github.com/roomchat/roomchat/internal/protocol"
)

const waitTimeout = time.Second

func setupTestClient(t *testing.T) (*Client, *conntest.Dialer) {
	t.Helper()

	dialer := conntest.NewDialer()
	client, err := Start(context.Background(), dialer, Config{
		Endpoint: "ws://chat.test/ws",
		Rooms:    model.DefaultRoomSet(),
	})
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	t.Cleanup(client.Close)
	return client, dialer
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// barrier emits a typing event and returns the kinds written before it.
// Outbound frames are written in order, so anything emitted earlier shows up
// ahead of the barrier.
func barrier(t *testing.T, client *Client, dialer *conntest.Dialer) []protocol.EventKind {
	t.Helper()
	before := len(dialer.Conn.Written())
	client.EditDraft("barrier")
	if !dialer.Conn.WaitWritten(before+1, waitTimeout) {
		t.Fatal("barrier was not written")
	}
	kinds := dialer.Conn.Kinds()
	return kinds[:len(kinds)-1]
}

func TestStart(t *testing.T) {
	t.Run("fresh session is connected and not joined", func(t *testing.T) {
		client, dialer := setupTestClient(t)

		if client.Phase() != model.PhaseNotJoined {
			t.Errorf("expected connected, got %s", client.Phase())
		}
		if client.ConnectionID() == "" || client.ConnectionID() != dialer.ConnectionID() {
			t.Errorf("unexpected connection id %q", client.ConnectionID())
		}
		s := client.Session()
		if s.Room != model.RoomGeneral || s.Joined {
			t.Errorf("unexpected fresh session %+v", s)
		}
		if dialer.Endpoint() != "ws://chat.test/ws" {
			t.Errorf("unexpected endpoint %q", dialer.Endpoint())
		}
		if client.Endpoint() != "ws://chat.test/ws" {
			t.Errorf("unexpected client endpoint %q", client.Endpoint())
		}

		client.Close()
		if client.Endpoint() != "" {
			t.Errorf("closed session should report no endpoint, got %q", client.Endpoint())
		}
	})

	t.Run("dial failure", func(t *testing.T) {
		dialer := conntest.NewDialer()
		dialer.Err = errors.New("connection refused")

		_, err := Start(context.Background(), dialer, Config{Endpoint: "ws://chat.test/ws"})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("handlers registered twice on one manager", func(t *testing.T) {
		manager := conn.NewManager(conntest.NewDialer(), conn.Options{})
		defer manager.Teardown()

		if _, err := New(manager, model.DefaultRoomSet()); err != nil {
			t.Fatalf("first session: %v", err)
		}
		if _, err := New(manager, model.DefaultRoomSet()); !errors.Is(err, conn.ErrHandlerRegistered) {
			t.Errorf("expected ErrHandlerRegistered, got %v", err)
		}
	})

	t.Run("empty room set falls back to the default pair", func(t *testing.T) {
		manager := conn.NewManager(conntest.NewDialer(), conn.Options{})
		defer manager.Teardown()

		client, err := New(manager, model.RoomSet{})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if !client.Rooms().Contains(model.RoomRandom) {
			t.Error("expected default rooms")
		}
	})
}

func TestClient_JoinRoom(t *testing.T) {
	t.Run("Alice joins general", func(t *testing.T) {
		client, dialer := setupTestClient(t)

		client.SetUsername("alice")
		if client.Session().Username != "Alice" {
			t.Errorf("username should be capitalized, got %q", client.Session().Username)
		}

		if !client.JoinRoom() {
			t.Fatal("join should be sent")
		}

		s := client.Session()
		if !s.Joined || s.Username != "" || s.JoinedAs != "Alice" {
			t.Errorf("unexpected session after join: %+v", s)
		}
		if client.Phase() != model.PhaseJoined {
			t.Errorf("expected joined, got %s", client.Phase())
		}

		if !dialer.Conn.WaitWritten(1, waitTimeout) {
			t.Fatal("joinRoom was not written")
		}
		env := dialer.Conn.Written()[0]
		if env.Event != protocol.EventJoinRoom {
			t.Fatalf("expected joinRoom, got %s", env.Event)
		}
		var p protocol.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		want := protocol.JoinRoomPayload{Room: "general", Username: "Alice", ConnectionID: client.ConnectionID()}
		if p != want {
			t.Errorf("got %+v, want %+v", p, want)
		}
	})

	t.Run("empty username", func(t *testing.T) {
		client, dialer := setupTestClient(t)
		before := client.Session()

		if client.JoinRoom() {
			t.Error("join without username should be a no-op")
		}
		if client.Session() != before {
			t.Errorf("session changed: %+v", client.Session())
		}
		if kinds := barrier(t, client, dialer); len(kinds) != 0 {
			t.Errorf("expected nothing emitted, got %v", kinds)
		}
	})
}

func TestClient_LeaveRoom(t *testing.T) {
	client, dialer := setupTestClient(t)

	client.SetUsername("Alice")
	if err := client.SelectRoom(model.RoomRandom); err != nil {
		t.Fatalf("select: %v", err)
	}
	client.JoinRoom()
	dialer.Conn.WaitWritten(1, waitTimeout)
	client.EditDraft("unsent")

	client.LeaveRoom()

	s := client.Session()
	if s.Room != model.RoomGeneral || s.Joined || s.Draft != "" {
		t.Errorf("unexpected session after leave: %+v", s)
	}
	if client.Phase() != model.PhaseNotJoined {
		t.Errorf("leave keeps the connection open, got %s", client.Phase())
	}

	kinds := barrier(t, client, dialer)
	want := []protocol.EventKind{protocol.EventJoinRoom, protocol.EventTyping}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("leave should emit nothing, got %v", kinds)
	}
}

func TestClient_SelectRoom(t *testing.T) {
	client, _ := setupTestClient(t)

	if err := client.SelectRoom(model.Room("music")); !errors.Is(err, model.ErrUnknownRoom) {
		t.Errorf("expected ErrUnknownRoom, got %v", err)
	}
	if client.Session().Room != model.RoomGeneral {
		t.Error("room should be unchanged")
	}

	client.Close()
	if err := client.SelectRoom(model.RoomRandom); !errors.Is(err, model.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestClient_EditDraft(t *testing.T) {
	client, dialer := setupTestClient(t)

	client.EditDraft("h")
	client.EditDraft("")

	if !dialer.Conn.WaitWritten(2, waitTimeout) {
		t.Fatal("typing events were not written")
	}
	kinds := dialer.Conn.Kinds()
	if kinds[0] != protocol.EventTyping || kinds[1] != protocol.EventNotTyping {
		t.Errorf("expected typing then notTyping, got %v", kinds)
	}
	if client.Session().Draft != "" {
		t.Errorf("draft should be empty, got %q", client.Session().Draft)
	}
}

func TestClient_SendMessage(t *testing.T) {
	t.Run("broadcast", func(t *testing.T) {
		client, dialer := setupTestClient(t)

		client.EditDraft("hello")
		if !client.SendMessage() {
			t.Fatal("send should be emitted")
		}
		if client.Session().Draft != "" {
			t.Error("draft should be cleared after send")
		}
		if len(client.Messages()) != 0 {
			t.Error("nothing is appended locally before the server echoes")
		}

		if !dialer.Conn.WaitWritten(3, waitTimeout) {
			t.Fatal("frames were not written")
		}
		written := dialer.Conn.Written()
		if written[1].Event != protocol.EventSendMessage || written[2].Event != protocol.EventNotTyping {
			t.Fatalf("expected sendMessage then notTyping, got %v", dialer.Conn.Kinds())
		}
		var p protocol.SendMessagePayload
		json.Unmarshal(written[1].Data, &p)
		if p != (protocol.SendMessagePayload{Room: "general", Message: "hello"}) {
			t.Errorf("unexpected payload %+v", p)
		}
	})

	t.Run("private", func(t *testing.T) {
		client, dialer := setupTestClient(t)

		client.SelectRoom(model.RoomRandom)
		client.SetRecipient("Bob")
		client.EditDraft("psst")
		client.SendMessage()

		if !dialer.Conn.WaitWritten(2, waitTimeout) {
			t.Fatal("frames were not written")
		}
		var p protocol.SendMessagePayload
		json.Unmarshal(dialer.Conn.Written()[1].Data, &p)
		if p != (protocol.SendMessagePayload{Room: "random", Message: "psst", Recipient: "Bob"}) {
			t.Errorf("unexpected payload %+v", p)
		}
	})

	t.Run("empty draft is a no-op", func(t *testing.T) {
		client, dialer := setupTestClient(t)

		if client.SendMessage() {
			t.Error("empty draft should not be sent")
		}
		if kinds := barrier(t, client, dialer); len(kinds) != 0 {
			t.Errorf("expected nothing emitted, got %v", kinds)
		}
	})
}

func TestClient_InboundMessages(t *testing.T) {
	t.Run("message is appended and scroll fires", func(t *testing.T) {
		client, dialer := setupTestClient(t)
		t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

		dialer.Conn.Inject(protocol.EventMessage, model.Message{Sender: "Bob", Text: "hi", Time: t1})

		select {
		case <-client.ScrollSignal():
		case <-time.After(waitTimeout):
			t.Fatal("scroll signal did not fire")
		}

		ms := client.Messages()
		if len(ms) != 1 || ms[0].Sender != "Bob" || ms[0].Text != "hi" || !ms[0].Time.Equal(t1) {
			t.Errorf("unexpected log %+v", ms)
		}
	})

	t.Run("message and privateMessage keep arrival order", func(t *testing.T) {
		client, dialer := setupTestClient(t)

		dialer.Conn.Inject(protocol.EventMessage, model.Message{Sender: "Bob", Text: "1"})
		dialer.Conn.Inject(protocol.EventPrivateMessage, model.Message{Sender: "Carol", Text: "2", Recipient: "Alice"})
		dialer.Conn.Inject(protocol.EventMessage, model.Message{Sender: "Bob", Text: "3"})

		waitFor(t, func() bool { return len(client.Messages()) == 3 })
		ms := client.Messages()
		if ms[0].Text != "1" || ms[1].Text != "2" || ms[2].Text != "3" {
			t.Errorf("arrival order not preserved: %+v", ms)
		}
		if !ms[1].IsPrivate() {
			t.Error("private message should keep its recipient")
		}
	})

	t.Run("history replaces the log", func(t *testing.T) {
		client, dialer := setupTestClient(t)

		dialer.Conn.Inject(protocol.EventMessage, model.Message{Sender: "a", Text: "m0"})
		waitFor(t, func() bool { return len(client.Messages()) == 1 })

		dialer.Conn.Inject(protocol.EventHistory, []model.Message{
			{Sender: "b", Text: "m1"},
			{Sender: "c", Text: "m2"},
		})
		waitFor(t, func() bool {
			ms := client.Messages()
			return len(ms) == 2 && ms[0].Text == "m1" && ms[1].Text == "m2"
		})
	})

	t.Run("malformed payload is ignored", func(t *testing.T) {
		client, dialer := setupTestClient(t)

		dialer.Conn.InjectRaw([]byte(`{"event":"message","data":"not a message"}`))
		dialer.Conn.Inject(protocol.EventMessage, model.Message{Sender: "Bob", Text: "ok"})

		waitFor(t, func() bool { return len(client.Messages()) == 1 })
		if client.Messages()[0].Text != "ok" {
			t.Errorf("unexpected log %+v", client.Messages())
		}
	})
}

func TestClient_RemoteTyping(t *testing.T) {
	client, dialer := setupTestClient(t)

	dialer.Conn.Inject(protocol.EventTyping, "Bob")
	waitFor(t, func() bool { return client.Typing().String() == "Bob is typing..." })

	// Nothing clears it but an explicit notTyping.
	dialer.Conn.Inject(protocol.EventMessage, model.Message{Sender: "Bob", Text: "hi"})
	waitFor(t, func() bool { return len(client.Messages()) == 1 })
	if !client.Typing().Active() {
		t.Error("indicator should persist until notTyping")
	}

	dialer.Conn.Inject(protocol.EventNotTyping, nil)
	waitFor(t, func() bool { return !client.Typing().Active() })
}

func TestClient_Notifications(t *testing.T) {
	client, dialer := setupTestClient(t)

	dialer.Conn.Inject(protocol.EventNotification, "Bob has joined general")
	waitFor(t, func() bool { return client.notices.Len() == 1 })

	got := client.Notifications()
	if len(got) != 1 || got[0].Text != "Bob has joined general" || got[0].Level != NotificationSuccess {
		t.Errorf("unexpected notifications %+v", got)
	}
	if client.Notifications() != nil {
		t.Error("notifications should be drained")
	}
}

func TestClient_Close(t *testing.T) {
	client, dialer := setupTestClient(t)
	client.SetUsername("Alice")

	client.Close()
	client.Close()

	if !dialer.Conn.IsClosed() {
		t.Error("connection should be closed")
	}
	if client.Phase() != model.PhaseDisconnected {
		t.Errorf("expected disconnected, got %s", client.Phase())
	}
	select {
	case <-client.Done():
	default:
		t.Error("done should be closed")
	}

	// Intents after teardown are no-ops.
	before := client.Session()
	client.SetUsername("Mallory")
	client.EditDraft("late")
	if client.JoinRoom() || client.SendMessage() {
		t.Error("intents after close should not be sent")
	}
	client.LeaveRoom()
	if client.Session() != before {
		t.Errorf("session mutated after close: %+v", client.Session())
	}

	// Late inbound events cannot reach the state either.
	dialer.Conn.Inject(protocol.EventMessage, model.Message{Sender: "Bob", Text: "late"})
	client.dispatch(protocol.EventMessage, onMessage, json.RawMessage(`{"sender":"Bob","text":"late"}`))
	if len(client.Messages()) != 0 {
		t.Error("no message should be applied after close")
	}

	if err := client.Connect(context.Background(), "ws://chat.test/ws"); !errors.Is(err, model.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}
