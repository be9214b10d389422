package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MrWong99/comedyhour/internal/observe"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

type actionResponse struct {
	State    string               `json:"state"`
	Messages []transcript.Message `json:"messages"`
	Error    string               `json:"error,omitempty"`
}

type transcriptResponse struct {
	State    string               `json:"state"`
	Started  bool                 `json:"started"`
	Messages []transcript.Message `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAction runs a and returns the messages it appended.
func (s *Server) handleAction(a action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(w, r)
		if err != nil {
			observe.Logger(r.Context()).Error("session unavailable", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "session unavailable"})
			return
		}
		msgs, err := a.run(r.Context(), sess)
		res := actionResponse{State: sess.State().String(), Messages: msgs}
		if res.Messages == nil {
			res.Messages = []transcript.Message{}
		}
		if err != nil {
			observe.Logger(r.Context()).Warn("action failed", "session_id", sess.ID(), "err", err)
			res.Error = errorMessages[errorCode(err)]
		}
		writeJSON(w, statusFor(err), res)
	}
}

// handleTranscript returns the messages after ?since=N.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be a non-negative integer"})
			return
		}
		since = n
	}
	sess, err := s.session(w, r)
	if err != nil {
		observe.Logger(r.Context()).Error("session unavailable", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "session unavailable"})
		return
	}
	msgs := sess.Since(since)
	if msgs == nil {
		msgs = []transcript.Message{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{
		State:    sess.State().String(),
		Started:  sess.Started(),
		Messages: msgs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
