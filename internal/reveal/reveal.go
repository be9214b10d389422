// Package reveal turns finished transcript lines into presentation steps:
// character-by-character frames and the animation cues shown around them.
//
// Everything here is pure data. Consumers decide how long to wait between
// frames; nothing in this package sleeps or touches the transcript.
package reveal

import (
	"iter"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/comedyhour/internal/transcript"
)

// Frame is one step of a reveal.
type Frame struct {
	// Text is the prefix of the line shown so far.
	Text string `json:"text"`

	// Delay is how long the consumer should wait before showing this frame.
	Delay time.Duration `json:"delay"`

	// Final marks the last frame, whose Text is the whole line.
	Final bool `json:"final"`
}

// Frames yields the growing prefixes of text, one rune at a time. The first
// frame holds the first rune. An empty text yields a single final frame.
func Frames(text string, delay time.Duration) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		if text == "" {
			yield(Frame{Final: true})
			return
		}
		for i := range text {
			_, size := utf8.DecodeRuneInString(text[i:])
			end := i + size
			if !yield(Frame{Text: text[:end], Delay: delay, Final: end == len(text)}) {
				return
			}
		}
	}
}

// Kind names an animation.
type Kind string

const (
	// KindTyping plays while a reply is being generated.
	KindTyping Kind = "typing"

	// KindLaughing plays after a line has been fully revealed.
	KindLaughing Kind = "laughing"
)

// Assets locates the animations.
type Assets struct {
	Typing   string
	Laughing string
	Duration time.Duration
}

// CueEvent tells the presenter to play an animation next to a speaker.
type CueEvent struct {
	Kind     Kind                `json:"kind"`
	Speaker  transcript.Identity `json:"speaker"`
	URL      string              `json:"url"`
	Duration time.Duration       `json:"duration"`
}

// Cue returns the animation event of the given kind for speaker. Unknown
// kinds yield an event without URL.
func (a Assets) Cue(kind Kind, speaker transcript.Identity) CueEvent {
	ev := CueEvent{Kind: kind, Speaker: speaker, Duration: a.Duration}
	switch kind {
	case KindTyping:
		ev.URL = a.Typing
	case KindLaughing:
		ev.URL = a.Laughing
	}
	return ev
}
