package web

import (
	"bytes"
	"net/http"
	"net/url"

	"github.com/MrWong99/comedyhour/internal/conversation"
	"github.com/MrWong99/comedyhour/internal/observe"
)

type messageView struct {
	Seq         int
	Speaker     string
	DisplayName string
	Avatar      string
	Text        string
}

type pageData struct {
	Title         string
	Messages      []messageView
	State         string
	Ended         bool
	Error         string
	LastSeq       int
	RevealDelayMS int64
}

// handleIndex renders the transcript, starting the show on first visit.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	sess, err := s.session(w, r)
	if err != nil {
		log.Error("session unavailable", "err", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	flash := errorMessages[r.URL.Query().Get("error")]
	if sess.State() == conversation.StateNotStarted {
		if _, err := sess.Start(r.Context()); err != nil {
			log.Warn("opening exchange failed", "session_id", sess.ID(), "err", err)
			flash = errorMessages[errorCode(err)]
		}
	}

	p := s.present()
	state := sess.State()
	data := pageData{
		Title:         p.Title,
		State:         state.String(),
		Ended:         state == conversation.StateEnded,
		Error:         flash,
		RevealDelayMS: p.RevealDelay.Milliseconds(),
	}
	for _, m := range sess.Messages() {
		sp := p.speaker(m.Speaker)
		data.Messages = append(data.Messages, messageView{
			Seq:         m.Seq,
			Speaker:     string(m.Speaker),
			DisplayName: sp.DisplayName,
			Avatar:      sp.Avatar,
			Text:        m.Text,
		})
		data.LastSeq = m.Seq
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		log.Error("render page", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleForm runs a for a plain form post and redirects back to the page.
func (s *Server) handleForm(a action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(w, r)
		if err != nil {
			observe.Logger(r.Context()).Error("session unavailable", "err", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		target := "/"
		if _, err := a.run(r.Context(), sess); err != nil {
			observe.Logger(r.Context()).Warn("action failed", "session_id", sess.ID(), "err", err)
			target = "/?" + url.Values{"error": {errorCode(err)}}.Encode()
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}
