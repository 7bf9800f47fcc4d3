package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, *url.URL) {
	t.Helper()
	hub := NewHub()
	srv := httptest.NewServer(NewHubHandler(hub))
	t.Cleanup(srv.Close)
	origin, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return hub, origin
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session event")
	}
	return Event{}
}

// nextMessage skips lifecycle events and returns the next inbound frame.
func nextMessage(t *testing.T, s *Session) ChatMessage {
	t.Helper()
	for {
		ev := nextEvent(t, s)
		if !s.HandleEvent(ev) {
			continue
		}
		if ev.Type == EventMessage {
			return ev.Message
		}
		if ev.Type == EventClosed {
			t.Fatal("handle closed while waiting for a message")
		}
	}
}

func openSession(t *testing.T, s *Session, name string, room RoomID) {
	t.Helper()
	if err := s.Connect(name, room, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.State() != StateConnecting {
		t.Fatalf("state after Connect = %v, want connecting", s.State())
	}
	for {
		ev := nextEvent(t, s)
		if !s.HandleEvent(ev) {
			continue
		}
		switch ev.Type {
		case EventOpen:
			if s.State() != StateOpen {
				t.Fatalf("state after open = %v, want open", s.State())
			}
			return
		case EventError, EventClosed:
			t.Fatalf("handle failed before opening: %+v", ev)
		}
	}
}

func TestConnectValidatesInputs(t *testing.T) {
	origin, _ := url.Parse("http://localhost:0")
	s := NewSession(origin)

	if err := s.Connect("  ", "1", false); !errors.Is(err, ErrMissingName) {
		t.Fatalf("error = %v, want ErrMissingName", err)
	}
	if err := s.Connect("alice", "  ", false); !errors.Is(err, ErrMissingRoom) {
		t.Fatalf("error = %v, want ErrMissingRoom", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v, validation failures must not change state", s.State())
	}
}

func TestStreamURL(t *testing.T) {
	origin, _ := url.Parse("http://example.com")
	s := NewSession(origin)

	target := s.streamURL("7", "Alice Smith", true)
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse stream url: %v", err)
	}
	if u.Scheme != "ws" || u.Path != "/ws" {
		t.Fatalf("target = %q", target)
	}
	q := u.Query()
	if q.Get("room_id") != "7" || q.Get("name") != "Alice Smith" || q.Get("gpt") != "true" {
		t.Fatalf("query = %q", u.RawQuery)
	}
	if !strings.Contains(target, "name=Alice+Smith") && !strings.Contains(target, "name=Alice%20Smith") {
		t.Fatalf("display name not escaped in %q", target)
	}

	secure, _ := url.Parse("https://example.com")
	if got := NewSession(secure).streamURL("1", "a", false); !strings.HasPrefix(got, "wss://") {
		t.Fatalf("https origin should dial wss, got %q", got)
	}
}

func TestSendIsNoopUnlessOpen(t *testing.T) {
	origin, _ := url.Parse("http://localhost:0")
	s := NewSession(origin)

	if s.Send("hello", "1") {
		t.Fatal("send from idle must be a no-op")
	}
	s.state = StateConnecting
	if s.Send("hello", "1") {
		t.Fatal("send while connecting must be a no-op")
	}
	s.state = StateClosed
	if s.Send("hello", "1") {
		t.Fatal("send after close must be a no-op")
	}
}

func TestSendRequiresContentAndRoom(t *testing.T) {
	_, origin := newTestHub(t)
	s := NewSession(origin)
	openSession(t, s, "alice", "1")

	if s.Send("", "1") {
		t.Fatal("empty content must be a no-op")
	}
	if s.Send("hello", "") {
		t.Fatal("send without a selected room must be a no-op")
	}
}

func TestStaleHandleEventsAreDiscarded(t *testing.T) {
	origin, _ := url.Parse("http://localhost:0")
	s := NewSession(origin)
	s.sid = 2
	s.state = StateOpen

	if s.HandleEvent(Event{SID: 1, Type: EventClosed}) {
		t.Fatal("stale event must report discarded")
	}
	if s.State() != StateOpen {
		t.Fatalf("state = %v, stale events must not mutate state", s.State())
	}
}

func TestErrorAndCloseConvergeInEitherOrder(t *testing.T) {
	origin, _ := url.Parse("http://localhost:0")

	for _, order := range [][]EventType{
		{EventError, EventClosed},
		{EventClosed, EventError},
	} {
		s := NewSession(origin)
		s.sid = 1
		s.state = StateConnecting
		for _, typ := range order {
			if !s.HandleEvent(Event{SID: 1, Type: typ, Err: errors.New("boom")}) {
				t.Fatalf("event %v unexpectedly discarded", typ)
			}
			if s.State() != StateClosed {
				t.Fatalf("state after %v = %v, want closed", typ, s.State())
			}
		}
	}
}

func TestDialFailureEmitsErrorThenClose(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	origin, _ := url.Parse(srv.URL)
	srv.Close()

	s := NewSession(origin)
	if err := s.Connect("alice", "1", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ev := nextEvent(t, s)
	if ev.Type != EventError || ev.Err == nil {
		t.Fatalf("first event = %+v, want an error event", ev)
	}
	s.HandleEvent(ev)
	ev = nextEvent(t, s)
	if ev.Type != EventClosed {
		t.Fatalf("second event = %+v, want closed", ev)
	}
	s.HandleEvent(ev)
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}
}

func TestSessionReceivesJoinNoticeAndEcho(t *testing.T) {
	_, origin := newTestHub(t)
	s := NewSession(origin)
	openSession(t, s, "alice", "1")

	join := nextMessage(t, s)
	if join.Type != KindJoin || join.Sender != SystemName {
		t.Fatalf("join notice = %+v", join)
	}
	if !strings.Contains(join.Content, "alice") {
		t.Fatalf("join content = %q", join.Content)
	}
	if join.Timestamp.IsZero() {
		t.Fatal("hub must assign a timestamp")
	}

	if !s.Send("hello <script>", "1") {
		t.Fatal("send on open handle failed")
	}
	echo := nextMessage(t, s)
	if echo.Type != KindMessage || echo.Sender != "alice" || echo.Content != "hello <script>" {
		t.Fatalf("echo = %+v", echo)
	}
	if echo.RoomID != "1" {
		t.Fatalf("echo room = %q, want 1", echo.RoomID)
	}
}

func TestReconnectAfterCloseRestartsLifecycle(t *testing.T) {
	_, origin := newTestHub(t)
	s := NewSession(origin)
	openSession(t, s, "alice", "1")
	firstSID := s.sid

	s.HandleEvent(Event{SID: s.sid, Type: EventClosed})
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}

	openSession(t, s, "alice", "2")
	if s.sid != firstSID+1 {
		t.Fatalf("sid = %d, want %d", s.sid, firstSID+1)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json at all"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","content":"ok","sender":"bob","room_id":"1"}`))
	}))
	t.Cleanup(srv.Close)
	origin, _ := url.Parse(srv.URL)

	s := NewSession(origin)
	if err := s.Connect("alice", "1", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ev := nextEvent(t, s)
	if ev.Type != EventOpen {
		t.Fatalf("first event = %+v, want open", ev)
	}
	s.HandleEvent(ev)

	msg := nextMessage(t, s)
	if msg.Content != "ok" || msg.Sender != "bob" {
		t.Fatalf("surviving frame = %+v, want the valid one only", msg)
	}
}
