// Package termui prints the show to a terminal.
//
// Lines are prefixed with a coloured speaker label. On an interactive
// terminal each line is revealed character by character; when output is
// redirected the text is written in one go and colour is off. Lines from a
// streaming backend can instead be printed as they arrive with
// [Printer.Stream].
package termui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/MrWong99/comedyhour/internal/reveal"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

// palette is assigned to speakers in the order they are configured.
var palette = []color.Attribute{color.FgCyan, color.FgMagenta, color.FgYellow, color.FgGreen}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Speaker is a participant's label and position in the palette.
type Speaker struct {
	ID          transcript.Identity
	DisplayName string
}

// Printer writes transcript lines. It is not safe for concurrent use.
type Printer struct {
	w      io.Writer
	live   bool
	colour bool
	delay  time.Duration
	labels map[transcript.Identity]*color.Color
	names  map[transcript.Identity]string
	muted  *color.Color
	failed *color.Color
	// open is set while a streamed line is unfinished.
	open bool
}

// Option configures a [Printer].
type Option func(*Printer)

// WithLive turns character-by-character reveal on or off.
func WithLive(live bool) Option {
	return func(p *Printer) { p.live = live }
}

// WithColour turns ANSI colour on or off.
func WithColour(on bool) Option {
	return func(p *Printer) { p.colour = on }
}

// WithRevealDelay sets the pause between revealed characters.
func WithRevealDelay(d time.Duration) Option {
	return func(p *Printer) { p.delay = d }
}

// New creates a [Printer] for w. Live reveal and colour default to on when
// w is a terminal.
func New(w io.Writer, speakers []Speaker, opts ...Option) *Printer {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = IsTerminal(f)
	}
	p := &Printer{
		w:      w,
		live:   tty,
		colour: tty,
		delay:  30 * time.Millisecond,
		labels: make(map[transcript.Identity]*color.Color, len(speakers)),
		names:  make(map[transcript.Identity]string, len(speakers)),
		muted:  color.New(color.Faint, color.Italic),
		failed: color.New(color.FgRed),
	}
	for _, o := range opts {
		o(p)
	}
	for i, sp := range speakers {
		p.labels[sp.ID] = color.New(palette[i%len(palette)], color.Bold)
		p.names[sp.ID] = sp.DisplayName
	}
	for _, c := range append(p.colours(), p.muted, p.failed) {
		if p.colour {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *Printer) colours() []*color.Color {
	out := make([]*color.Color, 0, len(p.labels))
	for _, c := range p.labels {
		out = append(out, c)
	}
	return out
}

// Title prints a heading.
func (p *Printer) Title(title string) {
	fmt.Fprintf(p.w, "%s\n\n", title)
}

// Cue prints an animation cue as a muted stage direction.
func (p *Printer) Cue(ev reveal.CueEvent) {
	p.muted.Fprintf(p.w, "(%s is %s...)\n", p.name(ev.Speaker), ev.Kind)
}

// Error prints a failed action.
func (p *Printer) Error(err error) {
	p.failed.Fprintf(p.w, "! %v\n", err)
}

// Messages prints msgs in order. It stops early when ctx is cancelled.
func (p *Printer) Messages(ctx context.Context, msgs []transcript.Message) error {
	for _, m := range msgs {
		if err := p.Message(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Message prints one line.
func (p *Printer) Message(ctx context.Context, m transcript.Message) error {
	p.label(m.Speaker)

	if !p.live {
		fmt.Fprintln(p.w, m.Text)
		return nil
	}
	shown := 0
	for f := range reveal.Frames(m.Text, p.delay) {
		if err := sleep(ctx, f.Delay); err != nil {
			fmt.Fprintln(p.w)
			return err
		}
		fmt.Fprint(p.w, f.Text[shown:])
		shown = len(f.Text)
	}
	fmt.Fprintln(p.w)
	return nil
}

// Stream prints a line as it is generated. Fragments are written as they
// arrive and done finishes the line; a line with no visible text prints
// nothing. Its signature matches agent.LineFunc.
func (p *Printer) Stream(speaker transcript.Identity, text string, done bool) {
	if !p.open {
		text = strings.TrimLeftFunc(text, unicode.IsSpace)
		if text == "" {
			return
		}
		p.label(speaker)
		p.open = true
	}
	fmt.Fprint(p.w, text)
	if done {
		fmt.Fprintln(p.w)
		p.open = false
	}
}

func (p *Printer) label(id transcript.Identity) {
	label, ok := p.labels[id]
	if !ok {
		label = color.New(color.Bold)
		if !p.colour {
			label.DisableColor()
		}
	}
	label.Fprintf(p.w, "%s:", p.name(id))
	fmt.Fprint(p.w, " ")
}

func (p *Printer) name(id transcript.Identity) string {
	if n := p.names[id]; n != "" {
		return n
	}
	return string(id)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
