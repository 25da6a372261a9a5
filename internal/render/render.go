// Package render turns a chat frame state into a still image on disk.
package render

import (
	"context"

	"github.com/ivlev/chatreel/internal/media"
)

// Bubble is one visible chat message.
type Bubble struct {
	Speaker string
	Text    string
	Primary bool
	Media   *media.Asset
}

// TypingBar is the primary user's compose bar. Text may carry a trailing cursor.
type TypingBar struct {
	Speaker string
	Text    string
}

// FrameState is everything visible at one instant.
type FrameState struct {
	Title     string
	Messages  []Bubble
	Indicator string
	Bar       *TypingBar
}

// With returns a copy of s with b appended to the visible messages.
func (s FrameState) With(b Bubble) FrameState {
	msgs := make([]Bubble, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	s.Messages = append(msgs, b)
	return s
}

// Renderer is the frame-rendering collaborator. Render must be safe to retry after a timeout.
type Renderer interface {
	Render(ctx context.Context, state FrameState) (string, error)
	Close() error
}
