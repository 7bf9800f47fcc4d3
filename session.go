package main

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// SessionState is the lifecycle of one stream handle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// EventType enumerates handle notifications.
type EventType int

const (
	EventOpen EventType = iota
	EventMessage
	EventError
	EventClosed
)

// Event is one lifecycle or data notification. SID identifies the handle
// that produced it; events from a superseded handle are discarded before
// they can touch shared state. A transport failure may surface as an
// EventError, an EventClosed, or both in either order.
type Event struct {
	SID     int
	Type    EventType
	Message ChatMessage
	Err     error

	conn *websocket.Conn
}

var (
	ErrMissingName = errors.New("display name is required")
	ErrMissingRoom = errors.New("room id is required")
)

const sessionEventBuffer = 64

// Session owns at most one live stream handle at a time. All fields are
// mutated only on the single UI goroutine; the dial and read goroutines
// communicate exclusively through the events channel, which preserves
// arrival order.
type Session struct {
	origin *url.URL
	dialer *websocket.Dialer
	events chan Event

	sid       int
	state     SessionState
	conn      *websocket.Conn
	name      string
	room      RoomID
	assistant bool
}

func NewSession(origin *url.URL) *Session {
	return &Session{
		origin: origin,
		dialer: websocket.DefaultDialer,
		events: make(chan Event, sessionEventBuffer),
		state:  StateIdle,
	}
}

// State returns the current handle state.
func (s *Session) State() SessionState { return s.state }

// Name returns the display name of the current session.
func (s *Session) Name() string { return s.name }

// Assistant reports whether the session joined in assistant mode.
func (s *Session) Assistant() bool { return s.assistant }

// Events is the ordered stream of handle notifications. Consume it from a
// single goroutine and route each event through HandleEvent.
func (s *Session) Events() <-chan Event { return s.events }

// Connect opens a new stream handle for the given identity and room. Empty
// inputs are rejected before any network action. Any previous handle is
// superseded: it gets closed and its remaining events carry a stale sid.
func (s *Session) Connect(name string, room RoomID, assistant bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(string(room)) == "" {
		return ErrMissingRoom
	}

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.sid++
	s.name = name
	s.room = room
	s.assistant = assistant
	s.state = StateConnecting

	target := s.streamURL(room, name, assistant)
	log.Debug().Int("sid", s.sid).Str("url", target).Msg("connecting")
	go s.dial(s.sid, target)
	return nil
}

// HandleEvent applies a handle notification to the session state. It must
// run on the same goroutine as Connect and Send. The return value reports
// whether the event belonged to the active handle; stale events are
// discarded without side effects on shared state.
func (s *Session) HandleEvent(ev Event) bool {
	if ev.SID != s.sid {
		// A superseded dial may still have produced a live socket.
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return false
	}

	switch ev.Type {
	case EventOpen:
		s.conn = ev.conn
		s.state = StateOpen
		go s.readLoop(ev.SID, ev.conn)
	case EventMessage:
		// no state transition; the payload is the caller's to render
	case EventError, EventClosed:
		// both may fire for one failure; converge on CLOSED exactly once
		if s.state != StateClosed {
			s.state = StateClosed
			if s.conn != nil {
				_ = s.conn.Close()
				s.conn = nil
			}
		}
	}
	return true
}

// Send transmits an ordinary message on the open handle. It is a silent
// no-op unless the content is non-empty, the handle is open and a room is
// selected; no frame leaves in any other state. The hub assigns timestamp
// and sender.
func (s *Session) Send(content string, room RoomID) bool {
	if content == "" || s.conn == nil || s.state != StateOpen || room == "" {
		return false
	}
	msg := ChatMessage{Type: KindMessage, Content: content, RoomID: room}
	if err := s.conn.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Msg("write frame")
		return false
	}
	return true
}

// Close tears down the active handle, if any. Used on application exit.
func (s *Session) Close() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.state == StateConnecting || s.state == StateOpen {
		s.state = StateClosed
	}
}

// streamURL combines the configured origin with the join query. The display
// name is URL-escaped by the Values encoder.
func (s *Session) streamURL(room RoomID, name string, assistant bool) string {
	u := *s.origin
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := url.Values{}
	q.Set("room_id", string(room))
	q.Set("name", name)
	q.Set("gpt", strconv.FormatBool(assistant))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Session) dial(sid int, target string) {
	conn, resp, err := s.dialer.Dial(target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		log.Warn().Err(err).Int("sid", sid).Msg("dial stream")
		s.events <- Event{SID: sid, Type: EventError, Err: err}
		s.events <- Event{SID: sid, Type: EventClosed}
		return
	}
	s.events <- Event{SID: sid, Type: EventOpen, conn: conn}
}

// readLoop decodes inbound frames in arrival order. Malformed frames are
// logged and dropped; they never surface to the user or kill the handle.
func (s *Session) readLoop(sid int, conn *websocket.Conn) {
	defer func() {
		s.events <- Event{SID: sid, Type: EventClosed}
	}()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.events <- Event{SID: sid, Type: EventError, Err: err}
			}
			return
		}
		var msg ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Debug().Err(err).Int("sid", sid).Msg("drop malformed frame")
			continue
		}
		s.events <- Event{SID: sid, Type: EventMessage, Message: msg}
	}
}
