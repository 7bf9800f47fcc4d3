package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	focusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	connectedDot    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
	disconnectedDot = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("●")

	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("203")).
			Padding(0, 1)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	selectedRoomStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	roomInfoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func (a *App) View() string {
	if a.screen == screenLogin {
		return a.loginView()
	}
	return a.chatView()
}

func (a *App) loginView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("roomchat"))
	b.WriteString("\n\n")
	b.WriteString(a.formLine("Name", a.nameField.value, a.focus == focusName))
	b.WriteString("\n")
	b.WriteString(a.formLine("Room ID", a.roomField.value, a.focus == focusRoomID))
	b.WriteString("\n")
	toggle := "[ ]"
	if a.gpt {
		toggle = "[x]"
	}
	b.WriteString(a.formLine("Assistant", toggle, a.focus == focusGPT))
	b.WriteString("\n\n")
	b.WriteString(statusLine(a.connected, a.status))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("tab fields • space toggle • enter join • ctrl+c quit"))
	content := b.String()
	if a.notice != "" {
		content += "\n\n" + noticeStyle.Render(a.notice)
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(content)
}

func (a *App) formLine(label, value string, focused bool) string {
	marker := "  "
	style := labelStyle
	if focused {
		marker = "> "
		style = focusStyle
	}
	return fmt.Sprintf("%s%s %s", marker, style.Render(label+":"), value)
}

func statusLine(connected bool, status string) string {
	dot := disconnectedDot
	if connected {
		dot = connectedDot
	}
	return dot + " " + labelStyle.Render(status)
}

func (a *App) chatView() string {
	sidebarWidth := 28
	if a.width < 70 {
		sidebarWidth = 20
	}
	mainWidth := a.width - sidebarWidth - 6
	if mainWidth < 20 {
		mainWidth = 20
	}

	composeHeight := a.composeHeight()
	transcriptHeight := a.height - composeHeight - 7
	if transcriptHeight < 3 {
		transcriptHeight = 3
	}

	header := titleStyle.Render(a.roomLabel) + "  " + statusLine(a.connected, a.status)

	sidebar := paneStyle.Width(sidebarWidth).Render(a.roomsPane())
	transcript := paneStyle.Width(mainWidth).Height(transcriptHeight).Render(a.transcriptPane(mainWidth, transcriptHeight))
	compose := paneStyle.Width(mainWidth).Render(a.composePane())
	main := lipgloss.JoinVertical(lipgloss.Left, transcript, compose)

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
	help := helpStyle.Render("enter send • alt+enter newline • tab panes • ctrl+r refresh rooms • ctrl+c quit")

	out := lipgloss.JoinVertical(lipgloss.Left, header, body, help)
	if a.notice != "" {
		out = lipgloss.JoinVertical(lipgloss.Left, out, noticeStyle.Render(a.notice))
	}
	return out
}

// roomsPane lists the cached directory plus the new-room field. Room names
// come from the hub and go through the same neutralization path as message
// bodies before they reach the screen.
func (a *App) roomsPane() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Rooms"))
	b.WriteString("\n")
	rooms := a.directory.Rooms()
	if len(rooms) == 0 {
		b.WriteString(roomInfoStyle.Render("no rooms yet"))
		b.WriteString("\n")
	}
	selected := a.directory.Selected()
	for i, room := range rooms {
		marker := "  "
		if a.focus == focusRooms && i == a.roomCursor {
			marker = "> "
		}
		name := sanitizeText(room.Name)
		if selected != nil && selected.ID == room.ID {
			name = selectedRoomStyle.Render(name)
		}
		b.WriteString(marker + name + "\n")
		b.WriteString("  " + roomInfoStyle.Render(fmt.Sprintf("%d users • ID: %s", room.ClientCount, sanitizeText(string(room.ID)))) + "\n")
	}
	b.WriteString("\n")
	marker := "  "
	style := labelStyle
	if a.focus == focusNewRoom {
		marker = "> "
		style = focusStyle
	}
	b.WriteString(marker + style.Render("New room:") + " " + a.newRoomField.value)
	return b.String()
}

// transcriptPane shows the tail of the append-only transcript: the scroll
// position advances to the newest entry on every inbound message.
func (a *App) transcriptPane(width, height int) string {
	var lines []string
	for _, unit := range a.transcript {
		rendered := unit.String()
		lines = append(lines, strings.Split(rendered, "\n")...)
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return strings.Join(lines, "\n")
}

func (a *App) composePane() string {
	marker := "  "
	if a.focus == focusCompose {
		marker = "> "
	}
	value := a.compose.value
	if value == "" && a.focus == focusCompose {
		value = helpStyle.Render("type a message…")
	}
	return marker + strings.ReplaceAll(value, "\n", "\n  ")
}

// composeHeight auto-fits the compose box to its content, bounded to a
// maximum visible height.
func (a *App) composeHeight() int {
	lines := strings.Count(a.compose.value, "\n") + 1
	if lines > maxComposeLines {
		return maxComposeLines
	}
	return lines
}
