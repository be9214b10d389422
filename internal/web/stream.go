package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/comedyhour/internal/conversation"
	"github.com/MrWong99/comedyhour/internal/observe"
	"github.com/MrWong99/comedyhour/internal/reveal"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// Event types sent over /ws.
const (
	eventCue   = "cue"
	eventFrame = "frame"
	eventState = "state"
)

// streamEvent is one JSON message on the websocket.
type streamEvent struct {
	Type        string              `json:"type"`
	Seq         int                 `json:"seq,omitempty"`
	Speaker     transcript.Identity `json:"speaker,omitempty"`
	DisplayName string              `json:"display_name,omitempty"`
	Avatar      string              `json:"avatar,omitempty"`
	Frame       *reveal.Frame       `json:"frame,omitempty"`
	Cue         *reveal.CueEvent    `json:"cue,omitempty"`
	State       string              `json:"state,omitempty"`
}

// handleStream upgrades to a websocket and reveals every message after
// ?since=N as it is appended. The stream closes once the show has ended and
// everything has been revealed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = n
	}
	sess, err := s.session(w, r)
	if err != nil {
		observe.Logger(r.Context()).Error("session unavailable", "err", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// The client never sends anything; CloseRead handles pings and closes.
	ctx := conn.CloseRead(r.Context())
	err = s.stream(ctx, conn, sess, since)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "show ended")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
	default:
		observe.Logger(ctx).Debug("stream closed", "session_id", sess.ID(), "err", err)
	}
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, sess *conversation.Session, since int) error {
	for {
		// Grab the channel before reading so no append can slip between.
		changed := sess.Changed()

		if msgs := sess.Since(since); len(msgs) > 0 {
			if err := s.reveal(ctx, conn, msgs); err != nil {
				return err
			}
			since = msgs[len(msgs)-1].Seq
		}

		state := sess.State()
		if err := send(ctx, conn, streamEvent{Type: eventState, State: state.String()}); err != nil {
			return err
		}
		if state == conversation.StateEnded && sess.Since(since) == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// reveal plays msgs: a typing cue per line, the line itself frame by frame
// and one laughing cue after the last line.
func (s *Server) reveal(ctx context.Context, conn *websocket.Conn, msgs []transcript.Message) error {
	p := s.present()
	for _, m := range msgs {
		sp := p.speaker(m.Speaker)
		cue := p.Assets.Cue(reveal.KindTyping, m.Speaker)
		if err := send(ctx, conn, streamEvent{Type: eventCue, Seq: m.Seq, Speaker: m.Speaker, Cue: &cue}); err != nil {
			return err
		}
		for f := range reveal.Frames(m.Text, p.RevealDelay) {
			if err := sleep(ctx, f.Delay); err != nil {
				return err
			}
			ev := streamEvent{Type: eventFrame, Seq: m.Seq, Speaker: m.Speaker, Frame: &f}
			if f.Final {
				ev.DisplayName, ev.Avatar = sp.DisplayName, sp.Avatar
			}
			if err := send(ctx, conn, ev); err != nil {
				return err
			}
		}
	}
	last := msgs[len(msgs)-1]
	cue := p.Assets.Cue(reveal.KindLaughing, last.Speaker)
	return send(ctx, conn, streamEvent{Type: eventCue, Seq: last.Seq, Speaker: last.Speaker, Cue: &cue})
}

func send(ctx context.Context, conn *websocket.Conn, ev streamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
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
