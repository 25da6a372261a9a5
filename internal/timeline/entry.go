// Package timeline holds the ordered frame entries of one run and the builder that produces them.
package timeline

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/chatreel/internal/media"
)

type Kind string

const (
	KindMessage   Kind = "message"
	KindIndicator Kind = "typing_indicator"
	KindKeystroke Kind = "typing_bar_keystroke"
	KindMeme      Kind = "meme"
)

// Body is the kind-specific part of an entry: *Message, *TypingIndicator, *Keystroke or *Meme.
type Body interface {
	Kind() Kind
}

// Message is a sent chat message, optionally carrying a meme.
type Message struct {
	Text  string
	Media *media.Asset
}

// TypingIndicator is the generic "typing..." bubble of a non-primary speaker.
type TypingIndicator struct{}

// Keystroke is one typing-bar state of the primary user.
type Keystroke struct {
	Text      string
	Sound     bool
	SessionID string
}

// Meme is a meme sent without a caption.
type Meme struct {
	Media *media.Asset
}

func (*Message) Kind() Kind         { return KindMessage }
func (*TypingIndicator) Kind() Kind { return KindIndicator }
func (*Keystroke) Kind() Kind       { return KindKeystroke }
func (*Meme) Kind() Kind            { return KindMeme }

// Entry is one rendered frame and how long it stays on screen.
type Entry struct {
	Index    int
	Line     int
	Frame    string
	Duration float64
	Speaker  string
	Primary  bool
	Body     Body
}

func (e *Entry) Kind() Kind {
	return e.Body.Kind()
}

func (e *Entry) Text() string {
	switch b := e.Body.(type) {
	case *Message:
		return b.Text
	case *Keystroke:
		return b.Text
	}
	return ""
}

// Media returns the attached meme, if any.
func (e *Entry) Media() *media.Asset {
	switch b := e.Body.(type) {
	case *Message:
		return b.Media
	case *Meme:
		return b.Media
	}
	return nil
}

func (e *Entry) Sound() bool {
	k, ok := e.Body.(*Keystroke)
	return ok && k.Sound
}

func (e *Entry) SessionID() string {
	if k, ok := e.Body.(*Keystroke); ok {
		return k.SessionID
	}
	return ""
}

// Injectable reports whether a meme may be attached after the fact: plain text messages only.
func (e *Entry) Injectable() bool {
	m, ok := e.Body.(*Message)
	return ok && m.Media == nil && m.Text != ""
}

// AttachMedia is the only mutation allowed after an entry is stored.
func (e *Entry) AttachMedia(a *media.Asset) error {
	if a == nil {
		return errors.New("nil media")
	}
	if !e.Injectable() {
		return errors.Errorf("entry %d (%s) cannot take media", e.Index, e.Kind())
	}
	e.Body.(*Message).Media = a
	return nil
}

func (e *Entry) Validate() error {
	switch {
	case e.Body == nil:
		return errors.New("entry has no body")
	case e.Frame == "":
		return errors.Errorf("%s entry has no frame", e.Kind())
	case e.Duration <= 0:
		return errors.Errorf("%s entry has non-positive duration %f", e.Kind(), e.Duration)
	case e.Kind() == KindKeystroke && !e.Primary:
		return errors.Errorf("keystroke entry for non-primary speaker %q", e.Speaker)
	}
	return nil
}

// record is the flat persisted shape of an Entry.
type record struct {
	Index     int          `yaml:"index"`
	Line      int          `yaml:"line,omitempty"`
	Kind      Kind         `yaml:"kind"`
	Frame     string       `yaml:"frame"`
	Duration  float64      `yaml:"duration"`
	Speaker   string       `yaml:"speaker,omitempty"`
	Primary   bool         `yaml:"is_primary_user"`
	Text      string       `yaml:"text,omitempty"`
	Media     *media.Asset `yaml:"media,omitempty"`
	Sound     bool         `yaml:"sound,omitempty"`
	SessionID string       `yaml:"session_id,omitempty"`
}

func (e Entry) MarshalYAML() (any, error) {
	return record{
		Index:     e.Index,
		Line:      e.Line,
		Kind:      e.Kind(),
		Frame:     e.Frame,
		Duration:  e.Duration,
		Speaker:   e.Speaker,
		Primary:   e.Primary,
		Text:      e.Text(),
		Media:     e.Media(),
		Sound:     e.Sound(),
		SessionID: e.SessionID(),
	}, nil
}

func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	var r record
	if err := node.Decode(&r); err != nil {
		return err
	}

	var body Body
	switch r.Kind {
	case KindMessage:
		body = &Message{Text: r.Text, Media: r.Media}
	case KindIndicator:
		body = &TypingIndicator{}
	case KindKeystroke:
		body = &Keystroke{Text: r.Text, Sound: r.Sound, SessionID: r.SessionID}
	case KindMeme:
		if r.Media == nil {
			return errors.Errorf("line %d: meme entry without media", node.Line)
		}
		body = &Meme{Media: r.Media}
	default:
		return errors.Errorf("line %d: unknown entry kind %q", node.Line, r.Kind)
	}

	*e = Entry{
		Index:    r.Index,
		Line:     r.Line,
		Frame:    r.Frame,
		Duration: r.Duration,
		Speaker:  r.Speaker,
		Primary:  r.Primary,
		Body:     body,
	}
	return e.Validate()
}
