package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRoomIDAcceptsStringAndNumber(t *testing.T) {
	cases := []struct {
		payload string
		want    RoomID
	}{
		{`{"type":"message","content":"x","room_id":"7"}`, "7"},
		{`{"type":"message","content":"x","room_id":7}`, "7"},
		{`{"type":"message","content":"x","room_id":42}`, "42"},
	}
	for _, tc := range cases {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(tc.payload), &msg); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.payload, err)
		}
		if msg.RoomID != tc.want {
			t.Errorf("room id = %q, want %q", msg.RoomID, tc.want)
		}
	}
}

func TestRoomIDRejectsGarbage(t *testing.T) {
	var msg ChatMessage
	if err := json.Unmarshal([]byte(`{"room_id":{"a":1}}`), &msg); err == nil {
		t.Fatal("expected error for object-valued room_id")
	}
}

func TestOutboundFrameOmitsTimestampAndSender(t *testing.T) {
	frame, err := json.Marshal(ChatMessage{Type: KindMessage, Content: "hi", RoomID: "3"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	encoded := string(frame)
	if strings.Contains(encoded, "timestamp") {
		t.Fatalf("outbound frame carries a timestamp: %s", encoded)
	}
	if strings.Contains(encoded, "sender") {
		t.Fatalf("outbound frame carries a sender: %s", encoded)
	}
}
