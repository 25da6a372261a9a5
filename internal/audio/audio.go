// Package audio derives keystroke and message sound cues from the edit list.
package audio

import (
	"github.com/ivlev/chatreel/internal/manifest"
)

// Cue is one continuous keystroke clip, in seconds from the start of the video.
type Cue struct {
	SessionID string
	Start     float64
	Duration  float64
}

// MessageDelay is how far into a message's hold its send or receive sound starts.
const MessageDelay = 0.5

// MessageCue is one send or receive sound, in seconds from the start of the video.
type MessageCue struct {
	Entry int
	Start float64
	Send  bool
}

// Sessions groups consecutive pairs sharing a typing session id into cues. Offsets follow the
// emitted pairs, so skipped entries and added delays are accounted for.
func Sessions(m *manifest.Manifest) []Cue {
	var cues []Cue
	t := 0.0
	var cur *Cue
	for _, p := range m.Pairs {
		switch {
		case p.SessionID == "":
			cur = nil
		case cur != nil && cur.SessionID == p.SessionID:
			cur.Duration += p.Duration
		default:
			cues = append(cues, Cue{SessionID: p.SessionID, Start: t, Duration: p.Duration})
			cur = &cues[len(cues)-1]
		}
		t += p.Duration
	}

	out := cues[:0]
	for _, c := range cues {
		if c.Duration > 0 {
			out = append(out, c)
		}
	}
	return out
}

// MessageCues places one sound per message or meme pair, MessageDelay into its hold. Pairs sent by
// the primary user get the send sound, the rest the receive sound. The closing card gets none.
func MessageCues(m *manifest.Manifest) []MessageCue {
	var cues []MessageCue
	t := 0.0
	for _, p := range m.Pairs {
		if p.Message {
			cues = append(cues, MessageCue{Entry: p.Entry, Start: t + MessageDelay, Send: p.Primary})
		}
		t += p.Duration
	}
	return cues
}
