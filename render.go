package main

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// Category is the visual classification of a message. The same tag drives
// both the message line style and the avatar style.
type Category int

const (
	CategoryDefault Category = iota
	CategorySystem
	CategoryAssistant
)

// ErrEmptySender marks a frame whose sender cannot produce an avatar.
var ErrEmptySender = errors.New("message has no sender")

// Classify maps a message kind to its visual category. The mapping is
// total: unknown kinds fall through to the default bubble.
func Classify(kind MessageKind) Category {
	switch kind {
	case KindSystem, KindJoin, KindLeave:
		return CategorySystem
	case KindAssistant:
		return CategoryAssistant
	default:
		return CategoryDefault
	}
}

// AvatarGlyph derives the avatar letters for a sender. The two reserved
// display names map to fixed glyphs; everyone else gets their upper-cased
// first rune. The sender is neutralized first so a name starting with a
// control byte cannot smuggle one into the transcript; a sender that is
// empty, or control bytes only, is an error, not a silent default.
func AvatarGlyph(sender string) (string, error) {
	sender = sanitizeText(sender)
	switch sender {
	case "":
		return "", ErrEmptySender
	case AssistantName:
		return "AI", nil
	case SystemName:
		return "S", nil
	}
	r, _ := utf8.DecodeRuneInString(sender)
	return strings.ToUpper(string(r)), nil
}

// sanitizeText neutralizes terminal control and escape sequences in
// remote-sourced strings. Every byte that could move the cursor, restyle
// the screen or retitle the window is removed; printable text (including
// markup-looking characters) passes through literally. Newlines and tabs
// are kept as layout whitespace.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		case r >= 0x80 && r <= 0x9f:
			return -1
		}
		return r
	}, s)
}

// RenderedUnit is the presentation form of one message, decoupled from the
// surrounding layout so it can be built and asserted without a terminal.
type RenderedUnit struct {
	Category Category
	Glyph    string
	Sender   string
	Stamp    string
	Body     string
}

// Render converts an inbound message into its visual unit. It is a pure
// function of the message; appending the result to the transcript is the
// caller's side effect.
func Render(msg ChatMessage) (RenderedUnit, error) {
	glyph, err := AvatarGlyph(msg.Sender)
	if err != nil {
		return RenderedUnit{}, fmt.Errorf("render message: %w", err)
	}
	unit := RenderedUnit{
		Category: Classify(msg.Type),
		Glyph:    glyph,
		Sender:   sanitizeText(msg.Sender),
		Body:     sanitizeText(msg.Content),
	}
	if !msg.Timestamp.IsZero() {
		// viewer-local time of day
		unit.Stamp = msg.Timestamp.Local().Format("15:04:05")
	}
	return unit, nil
}

var (
	stampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	glyphStyle     = lipgloss.NewStyle().Bold(true)
	senderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	systemStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("243"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
)

// String renders the unit as one transcript line.
func (u RenderedUnit) String() string {
	var b strings.Builder
	if u.Stamp != "" {
		b.WriteString(stampStyle.Render("[" + u.Stamp + "]"))
		b.WriteString(" ")
	}
	switch u.Category {
	case CategorySystem:
		b.WriteString(systemStyle.Render(u.Body))
	case CategoryAssistant:
		b.WriteString(glyphStyle.Render("(" + u.Glyph + ")"))
		b.WriteString(" ")
		b.WriteString(assistantStyle.Render(u.Sender + ": " + u.Body))
	default:
		b.WriteString(glyphStyle.Render("(" + u.Glyph + ")"))
		b.WriteString(" ")
		b.WriteString(senderStyle.Render(u.Sender))
		b.WriteString(": ")
		b.WriteString(u.Body)
	}
	return b.String()
}
