package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrEmptyRoomName is returned by CreateRoom before any request is issued.
var ErrEmptyRoomName = errors.New("room name is required")

// RejectedError is an application-level failure: the hub answered at the
// transport level but reported the operation failed, with a reason.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return "request rejected"
	}
	return e.Reason
}

// Directory caches the hub's room list and tracks the locally selected room.
// The cached list is a read-only copy, replaced wholesale on each refresh.
// Network calls never mutate the cache; the caller applies fetched results
// via SetRooms on the UI goroutine so no partial state is ever observable.
type Directory struct {
	base     *url.URL
	client   *http.Client
	rooms    []Room
	selected *Room
}

func NewDirectory(base *url.URL, client *http.Client) *Directory {
	if client == nil {
		client = http.DefaultClient
	}
	return &Directory{base: base, client: client}
}

// Rooms returns the cached room list.
func (d *Directory) Rooms() []Room {
	return d.rooms
}

// Selected returns the currently selected room, or nil.
func (d *Directory) Selected() *Room {
	return d.selected
}

// FetchRooms reads the room directory from the hub. The cache is left
// untouched; a failed fetch therefore never disturbs the previous list.
func (d *Directory) FetchRooms(ctx context.Context) ([]Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint(), nil)
	if err != nil {
		return nil, fmt.Errorf("build rooms request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()

	var envelope roomsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode rooms response: %w", err)
	}
	if !envelope.Success {
		return nil, &RejectedError{Reason: envelope.Message}
	}
	return envelope.Data, nil
}

// CreateRoom asks the hub for a new room. Empty and whitespace-only names
// are rejected locally without issuing a request.
func (d *Directory) CreateRoom(ctx context.Context, name string) (Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Room{}, ErrEmptyRoomName
	}

	body, err := json.Marshal(createRoomRequest{Name: name})
	if err != nil {
		return Room{}, fmt.Errorf("encode create request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(), bytes.NewReader(body))
	if err != nil {
		return Room{}, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	var envelope roomEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Room{}, fmt.Errorf("decode create response: %w", err)
	}
	if !envelope.Success || envelope.Data == nil {
		return Room{}, &RejectedError{Reason: envelope.Message}
	}
	return *envelope.Data, nil
}

// SetRooms replaces the cached list wholesale. The selection pointer is
// re-anchored to the fresh copy of the same room so occupant counts and
// authoritative names stay current; a selected room that vanished from the
// directory stays selected with its last known data.
func (d *Directory) SetRooms(rooms []Room) {
	d.rooms = rooms
	if d.selected == nil {
		return
	}
	for i := range d.rooms {
		if d.rooms[i].ID == d.selected.ID {
			d.selected = &d.rooms[i]
			return
		}
	}
}

// Select moves the selection pointer. It reports whether the selection
// actually changed; re-selecting the current room is a no-op for callers
// that would otherwise reconnect. Whether a select implies a join is the
// controller's call, made from the session state.
func (d *Directory) Select(room Room) bool {
	if d.selected != nil && d.selected.ID == room.ID {
		return false
	}
	selected := room
	d.selected = &selected
	log.Debug().Str("room_id", string(room.ID)).Msg("room selected")
	return true
}

func (d *Directory) endpoint() string {
	u := *d.base
	u.Path = "/api/rooms"
	u.RawQuery = ""
	return u.String()
}
