package reveal

import (
	"testing"
	"time"
)

func collect(text string, delay time.Duration) []Frame {
	var out []Frame
	for f := range Frames(text, delay) {
		out = append(out, f)
	}
	return out
}

func TestFrames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"ascii", "Hey", []string{"H", "He", "Hey"}},
		{"multibyte", "né🎭", []string{"n", "né", "né🎭"}},
		{"single", "!", []string{"!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := collect(tt.text, 30*time.Millisecond)
			if len(frames) != len(tt.want) {
				t.Fatalf("got %d frames, want %d", len(frames), len(tt.want))
			}
			for i, f := range frames {
				if f.Text != tt.want[i] {
					t.Errorf("frame %d = %q, want %q", i, f.Text, tt.want[i])
				}
				if f.Delay != 30*time.Millisecond {
					t.Errorf("frame %d delay = %v", i, f.Delay)
				}
				if f.Final != (i == len(frames)-1) {
					t.Errorf("frame %d final = %v", i, f.Final)
				}
			}
		})
	}
}

func TestFrames_Empty(t *testing.T) {
	t.Parallel()
	frames := collect("", time.Second)
	if len(frames) != 1 || !frames[0].Final || frames[0].Text != "" {
		t.Errorf("frames = %+v, want one empty final frame", frames)
	}
}

func TestFrames_StopsEarly(t *testing.T) {
	t.Parallel()
	n := 0
	for range Frames("a long punchline", 0) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("consumed %d frames, want 3", n)
	}
}

func TestAssets_Cue(t *testing.T) {
	t.Parallel()
	a := Assets{Typing: "typing.gif", Laughing: "laugh.gif", Duration: 1500 * time.Millisecond}

	tests := []struct {
		kind Kind
		url  string
	}{
		{KindTyping, "typing.gif"},
		{KindLaughing, "laugh.gif"},
		{Kind("clapping"), ""},
	}
	for _, tt := range tests {
		ev := a.Cue(tt.kind, "joe")
		if ev.URL != tt.url || ev.Speaker != "joe" || ev.Kind != tt.kind || ev.Duration != a.Duration {
			t.Errorf("Cue(%s) = %+v", tt.kind, ev)
		}
	}
}
