package main

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
)

const (
	requestTimeout  = 10 * time.Second
	maxComposeLines = 4
)

type screen int

const (
	screenLogin screen = iota
	screenChat
)

type focus int

const (
	focusName focus = iota
	focusRoomID
	focusGPT
	focusCompose
	focusRooms
	focusNewRoom
)

// messages delivered back into the update loop

type sessionEventMsg Event

type roomsFetchedMsg struct {
	rooms []Room
	err   error
}

type roomCreatedMsg struct {
	room Room
	err  error
}

// field is a minimal end-of-line editor, enough for names and room ids.
type field struct {
	value string
}

func (f *field) handleKey(msg tea.KeyMsg) {
	switch msg.Type {
	case tea.KeyRunes:
		f.value += string(msg.Runes)
	case tea.KeySpace:
		f.value += " "
	case tea.KeyBackspace:
		if f.value != "" {
			runes := []rune(f.value)
			f.value = string(runes[:len(runes)-1])
		}
	}
}

// App is the single application-state object. It owns the directory cache
// and the connection session, and it is the only mutator of either: every
// async result re-enters through Update on the bubbletea goroutine, so each
// handler leaves the state fully consistent before the next one runs.
type App struct {
	directory *Directory
	session   *Session
	gpt       bool

	screen screen
	focus  focus

	nameField    field
	roomField    field
	newRoomField field
	compose      field
	roomCursor   int

	transcript []RenderedUnit
	status     string
	connected  bool
	notice     string
	roomLabel  string

	width  int
	height int
}

func NewApp(directory *Directory, session *Session, name string, roomID string, gpt bool) *App {
	return &App{
		directory: directory,
		session:   session,
		gpt:       gpt,
		screen:    screenLogin,
		focus:     focusName,
		nameField: field{value: name},
		roomField: field{value: roomID},
		status:    "Disconnected",
		width:     80,
		height:    24,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.refreshCmd(), a.waitForEvent())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(msg)
	case sessionEventMsg:
		return a.handleSessionEvent(Event(msg))
	case roomsFetchedMsg:
		return a.handleRoomsFetched(msg)
	case roomCreatedMsg:
		return a.handleRoomCreated(msg)
	}
	return a, nil
}

// waitForEvent re-arms the single consumer of the session event stream.
// Handle events are therefore processed strictly in arrival order.
func (a *App) waitForEvent() tea.Cmd {
	events := a.session.Events()
	return func() tea.Msg {
		return sessionEventMsg(<-events)
	}
}

func (a *App) refreshCmd() tea.Cmd {
	d := a.directory
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		rooms, err := d.FetchRooms(ctx)
		return roomsFetchedMsg{rooms: rooms, err: err}
	}
}

func (a *App) createCmd(name string) tea.Cmd {
	d := a.directory
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		room, err := d.CreateRoom(ctx, name)
		return roomCreatedMsg{room: room, err: err}
	}
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		a.session.Close()
		return a, tea.Quit
	}
	if a.notice != "" {
		// blocking notice: the next keypress dismisses it
		a.notice = ""
		return a, nil
	}
	if a.screen == screenLogin {
		return a.handleLoginKey(msg)
	}
	return a.handleChatKey(msg)
}

func (a *App) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		switch a.focus {
		case focusName:
			a.focus = focusRoomID
		case focusRoomID:
			a.focus = focusGPT
		default:
			a.focus = focusName
		}
	case tea.KeyEnter:
		return a.submitJoin()
	case tea.KeySpace:
		if a.focus == focusGPT {
			a.gpt = !a.gpt
			return a, nil
		}
		a.loginField().handleKey(msg)
	case tea.KeyRunes, tea.KeyBackspace:
		a.loginField().handleKey(msg)
	}
	return a, nil
}

func (a *App) loginField() *field {
	if a.focus == focusRoomID {
		return &a.roomField
	}
	return &a.nameField
}

// submitJoin validates the form and opens a new session handle. Validation
// failures surface a notice and change no state.
func (a *App) submitJoin() (tea.Model, tea.Cmd) {
	name := strings.TrimSpace(a.nameField.value)
	roomID := RoomID(strings.TrimSpace(a.roomField.value))
	if err := a.session.Connect(name, roomID, a.gpt); err != nil {
		a.notice = "Please enter your name and room ID"
		return a, nil
	}
	a.connected = false
	a.status = "Connecting..."
	return a, nil
}

func (a *App) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		switch a.focus {
		case focusCompose:
			a.focus = focusRooms
		case focusRooms:
			a.focus = focusNewRoom
		default:
			a.focus = focusCompose
		}
	case tea.KeyCtrlR:
		return a, a.refreshCmd()
	case tea.KeyUp:
		if a.focus == focusRooms && a.roomCursor > 0 {
			a.roomCursor--
		}
	case tea.KeyDown:
		if a.focus == focusRooms && a.roomCursor < len(a.directory.Rooms())-1 {
			a.roomCursor++
		}
	case tea.KeyEnter:
		switch a.focus {
		case focusCompose:
			if msg.Alt {
				// modified Enter inserts a literal line break
				a.compose.value += "\n"
				return a, nil
			}
			a.submitMessage()
		case focusRooms:
			a.selectRoomAtCursor()
		case focusNewRoom:
			return a.submitCreate()
		}
	case tea.KeyRunes, tea.KeySpace, tea.KeyBackspace:
		switch a.focus {
		case focusCompose:
			a.compose.handleKey(msg)
		case focusNewRoom:
			a.newRoomField.handleKey(msg)
		}
	}
	return a, nil
}

// submitMessage sends the compose buffer. Send itself guards every
// precondition; the buffer is cleared only when a frame actually left.
func (a *App) submitMessage() {
	content := strings.TrimSpace(a.compose.value)
	var room RoomID
	if sel := a.directory.Selected(); sel != nil {
		room = sel.ID
	}
	if a.session.Send(content, room) {
		a.compose.value = ""
	}
}

// selectRoomAtCursor moves the selection pointer and, when no handle is
// open, delegates to the session for an implicit join. Re-selecting the
// current room on an open handle only re-renders.
func (a *App) selectRoomAtCursor() {
	rooms := a.directory.Rooms()
	if a.roomCursor < 0 || a.roomCursor >= len(rooms) {
		return
	}
	room := rooms[a.roomCursor]
	a.directory.Select(room)
	a.roomLabel = sanitizeText(room.Name)
	if a.session.State() != StateOpen {
		if err := a.session.Connect(a.session.Name(), room.ID, a.gpt); err != nil {
			a.notice = "Please enter your name and room ID"
			return
		}
		a.connected = false
		a.status = "Connecting..."
	}
}

func (a *App) submitCreate() (tea.Model, tea.Cmd) {
	name := strings.TrimSpace(a.newRoomField.value)
	if name == "" {
		// rejected locally, no request goes out
		a.notice = "Please enter a room name"
		return a, nil
	}
	return a, a.createCmd(name)
}

func (a *App) handleSessionEvent(ev Event) (tea.Model, tea.Cmd) {
	cmd := a.waitForEvent()
	if !a.session.HandleEvent(ev) {
		// superseded handle; nothing here may touch visible state
		return a, cmd
	}

	switch ev.Type {
	case EventOpen:
		a.connected = true
		a.status = "Connected"
		a.screen = screenChat
		a.focus = focusCompose
		a.notice = ""
		// fresh session starts with an empty transcript
		a.transcript = nil
		if sel := a.directory.Selected(); sel != nil {
			a.roomLabel = sanitizeText(sel.Name)
		} else {
			// authoritative name arrives with the next directory refresh
			a.roomLabel = "Room " + string(a.session.room)
		}
	case EventMessage:
		unit, err := Render(ev.Message)
		if err != nil {
			log.Debug().Err(err).Msg("drop unrenderable frame")
			break
		}
		a.transcript = append(a.transcript, unit)
	case EventError:
		a.connected = false
		a.status = "Disconnected"
		a.notice = "Failed to connect to chat server. Please try again."
	case EventClosed:
		a.connected = false
		a.status = "Disconnected"
	}
	return a, cmd
}

func (a *App) handleRoomsFetched(msg roomsFetchedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		// recoverable: the previous cache stays visible
		log.Warn().Err(msg.err).Msg("refresh rooms")
		return a, nil
	}
	a.directory.SetRooms(msg.rooms)
	if a.roomCursor >= len(msg.rooms) {
		a.roomCursor = len(msg.rooms) - 1
	}
	if a.roomCursor < 0 {
		a.roomCursor = 0
	}
	if sel := a.directory.Selected(); sel != nil && a.screen == screenChat {
		a.roomLabel = sanitizeText(sel.Name)
	}
	return a, nil
}

func (a *App) handleRoomCreated(msg roomCreatedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		var rejected *RejectedError
		if errors.As(msg.err, &rejected) {
			a.notice = "Failed to create room: " + rejected.Reason
		} else {
			log.Error().Err(msg.err).Msg("create room")
			a.notice = "Failed to create room"
		}
		return a, nil
	}
	a.newRoomField.value = ""
	a.directory.Select(msg.room)
	a.roomLabel = sanitizeText(msg.room.Name)
	if a.session.State() != StateOpen && strings.TrimSpace(a.session.Name()) != "" {
		if err := a.session.Connect(a.session.Name(), msg.room.ID, a.gpt); err == nil {
			a.connected = false
			a.status = "Connecting..."
		}
	}
	return a, a.refreshCmd()
}
