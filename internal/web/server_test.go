package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	agentmock "github.com/MrWong99/comedyhour/internal/agent/mock"
	"github.com/MrWong99/comedyhour/internal/conversation"
	"github.com/MrWong99/comedyhour/internal/health"
	"github.com/MrWong99/comedyhour/internal/reveal"
	"github.com/MrWong99/comedyhour/internal/session"
	"github.com/MrWong99/comedyhour/internal/transcript"
	"github.com/MrWong99/comedyhour/internal/web"
)

func testScript() conversation.Script {
	return conversation.Script{
		Initiator: "joe",
		Opening:   "I'm Joe. Cathy, let's keep the jokes rolling.",
		Continue:  conversation.Line{Speaker: "cathy", Text: "What's the last joke we talked about?"},
		Farewell:  conversation.Line{Speaker: "cathy", Text: "I gotta go."},
		MaxTurns:  2,
	}
}

func testPresentation() web.Presentation {
	return web.Presentation{
		Title: "Chatbot Comedy Hour 🎭",
		Speakers: map[transcript.Identity]web.Speaker{
			"joe":   {DisplayName: "Joe", Avatar: "/static/joe.svg"},
			"cathy": {DisplayName: "Cathy", Avatar: "/static/cathy.svg"},
		},
		Assets: reveal.Assets{Typing: "typing.gif", Laughing: "laughing.gif", Duration: time.Second},
	}
}

func newServer(t *testing.T, eng *agentmock.Engine) *web.Server {
	t.Helper()
	eng.PairResult = transcript.Pair{A: "joe", B: "cathy"}
	mgr := session.NewManager(func(_ context.Context, id string) (*conversation.Session, error) {
		return conversation.NewSession(conversation.NewDriver(eng), testScript(), conversation.WithSessionID(id))
	}, session.ManagerConfig{})
	return web.New(mgr, testPresentation,
		web.WithHealth(health.New()),
		web.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		})),
	)
}

// do sends a request with the given session cookie and returns the response
// and the cookie to use next.
func do(t *testing.T, h http.Handler, method, target, cookie string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: web.CookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == web.CookieName {
			cookie = c.Value
		}
	}
	return rec, cookie
}

type actionBody struct {
	State    string               `json:"state"`
	Messages []transcript.Message `json:"messages"`
	Error    string               `json:"error"`
}

type transcriptBody struct {
	State    string               `json:"state"`
	Started  bool                 `json:"started"`
	Messages []transcript.Message `json:"messages"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode JSON: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestIndex_FirstVisitStartsShow(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{}
	srv := newServer(t, eng)

	rec, cookie := do(t, srv, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if cookie == "" {
		t.Fatal("no session cookie set")
	}
	body := rec.Body.String()
	for _, want := range []string{"Chatbot Comedy Hour", "keep the jokes rolling", "/static/joe.svg", "Continue Conversation", "End Conversation"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	calls := eng.Calls()
	if len(calls) != 1 || calls[0].Initiator != "joe" || calls[0].Opening != testScript().Opening {
		t.Fatalf("calls = %+v, want one opening exchange from joe", calls)
	}

	// A second visit with the same cookie renders without another exchange.
	rec, _ = do(t, srv, http.MethodGet, "/", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if n := len(eng.Calls()); n != 1 {
		t.Fatalf("engine called %d times, want 1", n)
	}
}

func TestIndex_SeparateBrowsersGetSeparateShows(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{}
	srv := newServer(t, eng)

	_, a := do(t, srv, http.MethodGet, "/", "")
	_, b := do(t, srv, http.MethodGet, "/", "")
	if a == b {
		t.Fatal("two browsers share a session cookie")
	}
	if n := len(eng.Calls()); n != 2 {
		t.Fatalf("engine called %d times, want one opening per browser", n)
	}
}

func TestForms_RedirectAfterAction(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{}
	srv := newServer(t, eng)
	_, cookie := do(t, srv, http.MethodGet, "/", "")

	rec, _ := do(t, srv, http.MethodPost, "/continue", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("continue: status %d location %q, want 303 /", rec.Code, rec.Header().Get("Location"))
	}
	last := eng.Calls()[len(eng.Calls())-1]
	if last.Initiator != "cathy" || last.Opening != testScript().Continue.Text {
		t.Fatalf("continue exchange = %+v, want cathy's continue line", last)
	}

	rec, _ = do(t, srv, http.MethodPost, "/end", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("end: status %d location %q, want 303 /", rec.Code, rec.Header().Get("Location"))
	}

	rec, _ = do(t, srv, http.MethodPost, "/continue", cookie)
	if got := rec.Header().Get("Location"); got != "/?error=ended" {
		t.Fatalf("continue after end: location %q, want /?error=ended", got)
	}

	rec, _ = do(t, srv, http.MethodGet, "/?error=ended", cookie)
	body := rec.Body.String()
	if !strings.Contains(body, "The show is over.") {
		t.Error("ended page missing flash message")
	}
	if strings.Contains(body, "Continue Conversation") {
		t.Error("ended page still offers Continue")
	}
}

func TestAPI_Lifecycle(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{}
	srv := newServer(t, eng)

	rec, cookie := do(t, srv, http.MethodPost, "/api/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", rec.Code)
	}
	res := decode[actionBody](t, rec)
	if res.State != "awaiting_user_action" || len(res.Messages) != 1 || res.Messages[0].Speaker != "joe" {
		t.Fatalf("start = %+v, want joe's opening and awaiting_user_action", res)
	}

	rec, _ = do(t, srv, http.MethodPost, "/api/continue", cookie)
	res = decode[actionBody](t, rec)
	if rec.Code != http.StatusOK || len(res.Messages) != 1 || res.Messages[0].Speaker != "cathy" || res.Messages[0].Seq != 2 {
		t.Fatalf("continue = %d %+v, want cathy at seq 2", rec.Code, res)
	}

	rec, _ = do(t, srv, http.MethodPost, "/api/end", cookie)
	res = decode[actionBody](t, rec)
	if rec.Code != http.StatusOK || res.State != "ended" {
		t.Fatalf("end = %d %+v, want 200 ended", rec.Code, res)
	}

	rec, _ = do(t, srv, http.MethodPost, "/api/continue", cookie)
	if rec.Code != http.StatusConflict {
		t.Fatalf("continue after end status = %d, want 409", rec.Code)
	}
	res = decode[actionBody](t, rec)
	if res.Error == "" || len(res.Messages) != 0 {
		t.Fatalf("continue after end = %+v, want error and no messages", res)
	}

	rec, _ = do(t, srv, http.MethodGet, "/api/transcript", cookie)
	tr := decode[transcriptBody](t, rec)
	if len(tr.Messages) != 3 || !tr.Started || tr.State != "ended" {
		t.Fatalf("transcript = %+v, want 3 messages, started, ended", tr)
	}
}

func TestAPI_FailedExchangeAppendsNothing(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{Errs: []error{errors.New("llm down")}}
	srv := newServer(t, eng)

	rec, cookie := do(t, srv, http.MethodPost, "/api/start", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	res := decode[actionBody](t, rec)
	if res.Error != "action failed, nothing appended" {
		t.Errorf("error = %q", res.Error)
	}
	if res.State != "not_started" || len(res.Messages) != 0 {
		t.Fatalf("res = %+v, want not_started and no messages", res)
	}

	// The next attempt succeeds and starts the show.
	rec, _ = do(t, srv, http.MethodPost, "/api/start", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", rec.Code)
	}
}

func TestAPI_BusySession(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{Block: make(chan struct{}), Started: make(chan struct{}, 1)}
	srv := newServer(t, eng)
	_, cookie := do(t, srv, http.MethodGet, "/api/transcript", "")

	done := make(chan int, 1)
	go func() {
		rec, _ := do(t, srv, http.MethodPost, "/api/start", cookie)
		done <- rec.Code
	}()
	<-eng.Started

	rec, _ := do(t, srv, http.MethodPost, "/api/continue", cookie)
	if rec.Code != http.StatusConflict {
		t.Fatalf("concurrent continue status = %d, want 409", rec.Code)
	}
	close(eng.Block)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("blocked start status = %d, want 200", code)
	}
}

func TestAPI_TranscriptSince(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{}
	srv := newServer(t, eng)
	_, cookie := do(t, srv, http.MethodPost, "/api/start", "")
	do(t, srv, http.MethodPost, "/api/continue", cookie)

	rec, _ := do(t, srv, http.MethodGet, "/api/transcript?since=1", cookie)
	tr := decode[transcriptBody](t, rec)
	if len(tr.Messages) != 1 || tr.Messages[0].Seq != 2 {
		t.Fatalf("since=1 = %+v, want only seq 2", tr.Messages)
	}

	rec, _ = do(t, srv, http.MethodGet, "/api/transcript?since=5", cookie)
	tr = decode[transcriptBody](t, rec)
	if tr.Messages == nil || len(tr.Messages) != 0 {
		t.Fatalf("since=5 = %#v, want empty list", tr.Messages)
	}

	for _, bad := range []string{"-1", "abc"} {
		rec, _ = do(t, srv, http.MethodGet, "/api/transcript?since="+bad, cookie)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("since=%s status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestStaticAndOps(t *testing.T) {
	t.Parallel()
	srv := newServer(t, &agentmock.Engine{})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/static/joe.svg", http.StatusOK, "<svg"},
		{"/static/cathy.svg", http.StatusOK, "<svg"},
		{"/static/app.js", http.StatusOK, "WebSocket"},
		{"/static/missing.png", http.StatusNotFound, ""},
		{"/healthz", http.StatusOK, `"ok"`},
		{"/readyz", http.StatusOK, `"ok"`},
		{"/metrics", http.StatusOK, "# metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, _ := do(t, srv, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body missing %q", tt.wantBody)
			}
		})
	}
}
