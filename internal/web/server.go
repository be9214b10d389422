// Package web serves the comedy show in a browser.
//
// Every browser gets its own [conversation.Session], found through the
// comedyhour_session cookie. The HTML page works without JavaScript
// (plain form posts and redirects); when scripting is available the page
// also opens /ws and reveals new lines character by character.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/comedyhour/internal/conversation"
	"github.com/MrWong99/comedyhour/internal/health"
	"github.com/MrWong99/comedyhour/internal/observe"
	"github.com/MrWong99/comedyhour/internal/reveal"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

// CookieName is the cookie holding the browser's session id.
const CookieName = "comedyhour_session"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Sessions hands out the session belonging to a browser. Acquire returns the
// id to store in the cookie, which differs from id when a new session was
// created.
type Sessions interface {
	Acquire(ctx context.Context, id string) (*conversation.Session, string, error)
}

// Speaker is how one participant appears on screen.
type Speaker struct {
	DisplayName string
	Avatar      string
}

// Presentation holds the cosmetic settings of the page.
type Presentation struct {
	Title       string
	Speakers    map[transcript.Identity]Speaker
	Assets      reveal.Assets
	RevealDelay time.Duration
}

func (p Presentation) speaker(id transcript.Identity) Speaker {
	if sp, ok := p.Speakers[id]; ok {
		return sp
	}
	return Speaker{DisplayName: string(id)}
}

// Server is the HTTP front end.
type Server struct {
	sessions     Sessions
	present      func() Presentation
	health       *health.Handler
	metrics      *observe.Metrics
	metricsH     http.Handler
	secureCookie bool

	router chi.Router
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records HTTP request metrics into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsH = h }
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(s *Server) { s.secureCookie = secure }
}

// New builds the router. present is called on every render so that
// configuration reloads take effect without a restart.
func New(sessions Sessions, present func() Presentation, opts ...Option) *Server {
	s := &Server{sessions: sessions, present: present}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsH != nil {
		r.Handle("/metrics", s.metricsH)
	}

	r.Get("/", s.handleIndex)
	r.Post("/continue", s.handleForm(actionContinue))
	r.Post("/end", s.handleForm(actionEnd))
	r.Get("/ws", s.handleStream)

	r.Route("/api", func(r chi.Router) {
		r.Get("/transcript", s.handleTranscript)
		r.Post("/start", s.handleAction(actionStart))
		r.Post("/continue", s.handleAction(actionContinue))
		r.Post("/end", s.handleAction(actionEnd))
	})
	return r
}

// session resolves the caller's session and refreshes the cookie.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*conversation.Session, error) {
	var id string
	if c, err := r.Cookie(CookieName); err == nil {
		id = c.Value
	}
	sess, newID, err := s.sessions.Acquire(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if newID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    newID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess, nil
}

type action int

const (
	actionStart action = iota
	actionContinue
	actionEnd
)

func (a action) run(ctx context.Context, sess *conversation.Session) ([]transcript.Message, error) {
	switch a {
	case actionContinue:
		return sess.Continue(ctx)
	case actionEnd:
		return sess.End(ctx)
	default:
		return sess.Start(ctx)
	}
}

// errorCode classifies an action error for redirects and JSON bodies.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, conversation.ErrEnded):
		return "ended"
	case errors.Is(err, conversation.ErrBusy):
		return "busy"
	default:
		return "failed"
	}
}

// statusFor maps an action error to an HTTP status.
func statusFor(err error) int {
	switch errorCode(err) {
	case "":
		return http.StatusOK
	case "ended", "busy":
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

var errorMessages = map[string]string{
	"ended":  "The show is over.",
	"busy":   "The comedians are still talking, give them a moment.",
	"failed": "action failed, nothing appended",
}
