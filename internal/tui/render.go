package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/metalagman/agency/internal/sdlc/state"
)

// Renderer turns transcript messages into terminal text. Agent replies
// are markdown and go through glamour; client and system lines stay plain.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer creates a renderer. style is a glamour standard style name
// ("dark", "light", "notty"); width <= 0 disables wrapping.
func NewRenderer(style string, width int) *Renderer {
	if style == "" {
		style = "dark"
	}
	if width < 0 {
		width = 0
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{md: md}
}

// Message renders one transcript entry with its speaker header.
func (r *Renderer) Message(m state.Message) string {
	speaker := m.Speaker()
	header := SpeakerStyle(speaker).Render(speaker)
	if m.Role != state.RoleAgent {
		return header + "\n" + m.Content + "\n"
	}
	return header + "\n" + r.Markdown(m.Content)
}

// Markdown renders content, falling back to the raw text.
func (r *Renderer) Markdown(content string) string {
	if r.md == nil {
		return content + "\n"
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content + "\n"
	}
	return strings.TrimLeft(out, "\n")
}
