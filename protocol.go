package main

import (
	"encoding/json"
	"time"
)

// Wire protocol shared by the terminal client and the reference hub.
// Stream frames are JSON text payloads; the rooms API wraps everything in a
// success envelope.

// MessageKind tags a stream frame.
type MessageKind string

const (
	KindMessage   MessageKind = "message"
	KindSystem    MessageKind = "system"
	KindJoin      MessageKind = "join"
	KindLeave     MessageKind = "leave"
	KindAssistant MessageKind = "gpt"
)

// Canonical display names with reserved rendering.
const (
	SystemName    = "System"
	AssistantName = "GPT Assistant"
)

// RoomID is an opaque room identifier. Some producers emit it as a JSON
// number, so decoding accepts both forms and normalizes to a string.
type RoomID string

func (r *RoomID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RoomID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RoomID(n.String())
	return nil
}

// ChatMessage is one stream frame. The hub assigns Timestamp; outbound
// frames leave it zero and it is omitted on the wire. Sender is likewise
// hub-derived on outbound frames.
type ChatMessage struct {
	Type      MessageKind `json:"type"`
	Content   string      `json:"content"`
	Sender    string      `json:"sender,omitempty"`
	RoomID    RoomID      `json:"room_id"`
	Timestamp time.Time   `json:"timestamp,omitzero"`
}

// Room is one entry of the hub's room directory.
type Room struct {
	ID          RoomID `json:"id"`
	Name        string `json:"name"`
	ClientCount int    `json:"client_count"`
}

// roomsEnvelope is the GET /api/rooms response shape.
type roomsEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    []Room `json:"data"`
}

// roomEnvelope is the POST /api/rooms response shape. Message carries the
// human-readable reason when Success is false.
type roomEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *Room  `json:"data,omitempty"`
}

// createRoomRequest is the POST /api/rooms body.
type createRoomRequest struct {
	Name string `json:"name"`
}
