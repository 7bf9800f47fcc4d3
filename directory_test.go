package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func newTestDirectory(t *testing.T, handler http.Handler) (*Directory, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return NewDirectory(base, srv.Client()), srv
}

func TestCreateRoomEmptyNameIssuesNoRequest(t *testing.T) {
	var requests atomic.Int32
	d, _ := newTestDirectory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))

	for _, name := range []string{"", "   ", "\t\n"} {
		if _, err := d.CreateRoom(context.Background(), name); !errors.Is(err, ErrEmptyRoomName) {
			t.Fatalf("CreateRoom(%q) error = %v, want ErrEmptyRoomName", name, err)
		}
	}
	if n := requests.Load(); n != 0 {
		t.Fatalf("server saw %d requests, want 0", n)
	}
}

func TestCreateRoomIssuesExactlyOneRequest(t *testing.T) {
	var requests atomic.Int32
	d, _ := newTestDirectory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Name != "Lobby" {
			t.Errorf("name = %q, want Lobby", req.Name)
		}
		writeJSON(w, http.StatusCreated, roomEnvelope{Success: true, Data: &Room{ID: "1", Name: "Lobby"}})
	}))

	room, err := d.CreateRoom(context.Background(), "Lobby")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID != "1" || room.Name != "Lobby" {
		t.Fatalf("room = %+v", room)
	}
	if n := requests.Load(); n != 1 {
		t.Fatalf("server saw %d requests, want 1", n)
	}
}

func TestCreateRoomRejectedSurfacesReason(t *testing.T) {
	d, _ := newTestDirectory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, roomEnvelope{Success: false, Message: "name taken"})
	}))
	d.SetRooms([]Room{{ID: "1", Name: "Lobby", ClientCount: 2}})

	_, err := d.CreateRoom(context.Background(), "Lobby")
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want *RejectedError", err)
	}
	if rejected.Reason != "name taken" {
		t.Fatalf("reason = %q, want %q", rejected.Reason, "name taken")
	}
	if len(d.Rooms()) != 1 || d.Rooms()[0].Name != "Lobby" {
		t.Fatalf("cache changed on failed create: %+v", d.Rooms())
	}
}

func TestFetchRoomsLeavesCacheUntouched(t *testing.T) {
	d, srv := newTestDirectory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, roomsEnvelope{Success: true, Data: []Room{{ID: "1", Name: "Lobby", ClientCount: 2}}})
	}))

	rooms, err := d.FetchRooms(context.Background())
	if err != nil {
		t.Fatalf("FetchRooms: %v", err)
	}
	d.SetRooms(rooms)

	// transport failure must not disturb the previous cache
	srv.Close()
	if _, err := d.FetchRooms(context.Background()); err == nil {
		t.Fatal("expected transport error after server close")
	}
	if len(d.Rooms()) != 1 || d.Rooms()[0].Name != "Lobby" {
		t.Fatalf("cache changed after failed fetch: %+v", d.Rooms())
	}
}

func TestSetRoomsReplacesWholesaleAndReanchorsSelection(t *testing.T) {
	base, _ := url.Parse("http://localhost:0")
	d := NewDirectory(base, nil)
	d.SetRooms([]Room{{ID: "1", Name: "Lobby", ClientCount: 2}, {ID: "2", Name: "Dev", ClientCount: 1}})
	d.Select(Room{ID: "2", Name: "Dev", ClientCount: 1})

	d.SetRooms([]Room{{ID: "2", Name: "Dev Chat", ClientCount: 5}})
	if len(d.Rooms()) != 1 {
		t.Fatalf("rooms = %+v, want the new list only", d.Rooms())
	}
	sel := d.Selected()
	if sel == nil || sel.Name != "Dev Chat" || sel.ClientCount != 5 {
		t.Fatalf("selection not re-anchored: %+v", sel)
	}
}

func TestSelectIsIdempotent(t *testing.T) {
	base, _ := url.Parse("http://localhost:0")
	d := NewDirectory(base, nil)
	lobby := Room{ID: "1", Name: "Lobby", ClientCount: 2}
	if !d.Select(lobby) {
		t.Fatal("first select should report a change")
	}
	if d.Select(lobby) {
		t.Fatal("re-selecting the current room should not report a change")
	}
	if d.Selected() == nil || d.Selected().ID != "1" {
		t.Fatalf("selection = %+v", d.Selected())
	}
}
