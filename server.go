package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Reference hub implementing the wire contract the client consumes. Used by
// `roomchat serve` for local development and by the integration tests.

const (
	hubWriteWait    = 10 * time.Second
	hubPongWait     = 60 * time.Second
	hubPingInterval = 30 * time.Second
	hubSendBuffer   = 64
	maxMessageRunes = 2000
)

type hubClient struct {
	name      string
	assistant bool
	room      *hubRoom
	conn      *websocket.Conn
	send      chan []byte

	mu     sync.Mutex
	closed bool
}

type hubRoom struct {
	id      RoomID
	name    string
	clients map[*hubClient]struct{}
}

// Hub keeps the room directory and fans frames out to room members. Rooms
// are never deleted; an empty room just reports zero occupants.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[RoomID]*hubRoom
	nextID int
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[RoomID]*hubRoom)}
}

// NewHubHandler builds the hub's HTTP surface: the rooms API and the
// stream endpoint.
func NewHubHandler(h *Hub) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/rooms", h.handleListRooms)
	r.Post("/api/rooms", h.handleCreateRoom)
	r.Get("/ws", h.handleWS)
	return r
}

func (h *Hub) listRooms() []Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, Room{ID: room.id, Name: room.name, ClientCount: len(room.clients)})
	}
	// stable order for the directory UI
	sort.Slice(rooms, func(i, j int) bool { return lessRoomID(rooms[i].ID, rooms[j].ID) })
	return rooms
}

// lessRoomID orders hub-assigned numeric ids by value, so room 10 lists
// after room 2. Non-numeric ids (possible via join auto-create) sort after
// the numeric ones, lexicographically among themselves.
func lessRoomID(a, b RoomID) bool {
	ai, aerr := strconv.Atoi(string(a))
	bi, berr := strconv.Atoi(string(b))
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

func (h *Hub) createRoom(name string) (Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		if room.name == name {
			return Room{}, false
		}
	}
	h.nextID++
	id := RoomID(strconv.Itoa(h.nextID))
	h.rooms[id] = &hubRoom{id: id, name: name, clients: make(map[*hubClient]struct{})}
	log.Info().Str("room_id", string(id)).Str("name", name).Msg("room created")
	return Room{ID: id, Name: name}, true
}

// attach adds the client to the room, creating the room on first contact.
// A member with the same display name is superseded: the older connection
// is closed.
func (h *Hub) attach(c *hubClient, id RoomID) *hubRoom {
	h.mu.Lock()
	room, ok := h.rooms[id]
	if !ok {
		room = &hubRoom{id: id, name: "Room " + string(id), clients: make(map[*hubClient]struct{})}
		h.rooms[id] = room
	}
	var superseded *hubClient
	for member := range room.clients {
		if member.name == c.name {
			superseded = member
			delete(room.clients, member)
			break
		}
	}
	room.clients[c] = struct{}{}
	c.room = room
	h.mu.Unlock()

	if superseded != nil {
		superseded.close()
	}
	return room
}

func (h *Hub) detach(c *hubClient) {
	h.mu.Lock()
	room := c.room
	if room == nil {
		h.mu.Unlock()
		return
	}
	if _, ok := room.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room.clients, c)
	h.mu.Unlock()

	h.broadcast(room, ChatMessage{
		Type:      KindLeave,
		Content:   c.name + " left the room",
		Sender:    SystemName,
		RoomID:    room.id,
		Timestamp: time.Now().UTC(),
	})
}

// broadcast fans one frame out to every room member, the producer
// included: clients render only what the stream echoes back.
func (h *Hub) broadcast(room *hubRoom, msg ChatMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal frame")
		return
	}
	h.mu.RLock()
	members := make([]*hubClient, 0, len(room.clients))
	for member := range room.clients {
		members = append(members, member)
	}
	h.mu.RUnlock()
	for _, member := range members {
		member.push(frame)
	}
}

func (h *Hub) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, roomsEnvelope{Success: true, Data: h.listRooms()})
}

func (h *Hub) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, roomEnvelope{Success: false, Message: "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, roomEnvelope{Success: false, Message: "room name is required"})
		return
	}
	room, ok := h.createRoom(name)
	if !ok {
		writeJSON(w, http.StatusOK, roomEnvelope{Success: false, Message: "room name already taken"})
		return
	}
	writeJSON(w, http.StatusCreated, roomEnvelope{Success: true, Data: &room})
}

var hubUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	roomID := RoomID(strings.TrimSpace(r.URL.Query().Get("room_id")))
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	assistant := r.URL.Query().Get("gpt") == "true"
	if roomID == "" || name == "" {
		http.Error(w, "room_id and name are required", http.StatusBadRequest)
		return
	}

	conn, err := hubUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrade connection")
		return
	}

	client := &hubClient{
		name:      name,
		assistant: assistant,
		conn:      conn,
		send:      make(chan []byte, hubSendBuffer),
	}
	room := h.attach(client, roomID)
	go client.writePump()

	h.broadcast(room, ChatMessage{
		Type:      KindJoin,
		Content:   name + " joined the room",
		Sender:    SystemName,
		RoomID:    room.id,
		Timestamp: time.Now().UTC(),
	})

	client.readPump(h)
}

func (c *hubClient) readPump(h *Hub) {
	defer func() {
		h.detach(c)
		c.close()
	}()
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("user", c.name).Msg("read frame")
			}
			return
		}
		var msg ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Debug().Err(err).Str("user", c.name).Msg("drop malformed frame")
			continue
		}
		h.route(c, msg)
	}
}

// route handles one inbound frame. The hub assigns sender and timestamp;
// whatever the producer put there is not trusted.
func (h *Hub) route(c *hubClient, msg ChatMessage) {
	room := c.room
	if room == nil || msg.Type != KindMessage {
		return
	}
	if utf8.RuneCountInString(msg.Content) > maxMessageRunes {
		notice, err := json.Marshal(ChatMessage{
			Type:      KindSystem,
			Content:   "Message too long",
			Sender:    SystemName,
			RoomID:    room.id,
			Timestamp: time.Now().UTC(),
		})
		if err == nil {
			c.push(notice)
		}
		return
	}
	kind := KindMessage
	if c.assistant {
		kind = KindAssistant
	}
	h.broadcast(room, ChatMessage{
		Type:      kind,
		Content:   msg.Content,
		Sender:    c.name,
		RoomID:    room.id,
		Timestamp: time.Now().UTC(),
	})
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(hubPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *hubClient) push(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Debug().Str("user", c.name).Msg("drop frame, slow consumer")
	}
}

func (c *hubClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
