package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
	"quiz-client/internal/infra/memory"
	"quiz-client/internal/transport/gateway"
)

type fixture struct {
	server  *httptest.Server
	session *app.SessionManager
	events  *app.Broadcaster
	store   *memory.TokenStore
	client  *http.Client
}

func newFixture(t *testing.T, backend http.Handler, initialize bool) *fixture {
	t.Helper()
	api := httptest.NewServer(backend)
	t.Cleanup(api.Close)

	store := memory.NewTokenStore()
	gw := gateway.New(api.URL, 5*time.Second, store)
	events := app.NewBroadcaster()
	session := app.NewSessionManager(store, gw, app.SessionConfig{Notifier: events, Navigator: events})
	gw.OnUnauthorized(session.Invalidate)
	t.Cleanup(session.Close)

	if initialize {
		if err := session.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}

	srv := NewServer(Deps{
		Session: session,
		Auth:    app.NewAuthenticator(gw, session, events),
		Views:   app.NewViews(gw, gw, gw, session),
		Admin:   app.NewAdminConsole(gw, session, nil),
		Quizzes: gw,
		Events:  events,
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &fixture{
		server:  ts,
		session: session,
		events:  events,
		store:   store,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestGuardedRouteShowsLoadingBeforeInitialize(t *testing.T) {
	f := newFixture(t, fakeBackend(t, regularUser()), false)

	resp := f.do(t, http.MethodGet, "/dashboard", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while loading, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz to render, got %d", resp.StatusCode)
	}
}

func TestAnonymousIsRedirectedToLogin(t *testing.T) {
	f := newFixture(t, fakeBackend(t, regularUser()), true)

	for _, path := range []string{"/dashboard", "/admin", "/profile", "/quiz/quiz-1", "/leaderboard/quiz-1"} {
		resp := f.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("%s: expected 303, got %d", path, resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != app.RouteLogin {
			t.Fatalf("%s: expected redirect to login, got %q", path, loc)
		}
	}
}

func TestGuardRedirectLandsOnLoginView(t *testing.T) {
	f := newFixture(t, fakeBackend(t, regularUser()), true)

	// the default client follows the 303
	resp, err := http.Get(f.server.URL + "/dashboard")
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != app.RouteLogin {
		t.Fatalf("expected login view after redirect, got %d at %s", resp.StatusCode, resp.Request.URL.Path)
	}
	if got := decodeBody[map[string]string](t, resp); got["view"] != "login" {
		t.Fatalf("expected login view, got %v", got)
	}

	if got := decodeBody[map[string]string](t, f.do(t, http.MethodGet, "/signup", nil)); got["view"] != "signup" {
		t.Fatalf("expected signup view, got %v", got)
	}
}

func TestResetPasswordModes(t *testing.T) {
	f := newFixture(t, fakeBackend(t, regularUser()), true)

	view := decodeBody[map[string]string](t, f.do(t, http.MethodGet, "/reset-password", nil))
	if view["view"] != "reset-password" || view["mode"] != "request" {
		t.Fatalf("expected request mode, got %v", view)
	}
	view = decodeBody[map[string]string](t, f.do(t, http.MethodGet, "/reset-password?token=abc", nil))
	if view["mode"] != "confirm" {
		t.Fatalf("expected confirm mode, got %v", view)
	}

	resp := f.do(t, http.MethodPost, "/reset-password", app.ResetRequestForm{Email: "alice@example.com"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected reset request accepted, got %d", resp.StatusCode)
	}

	body := map[string]string{"newPassword": "secret1", "confirmPassword": "secret1"}
	if resp := f.do(t, http.MethodPost, "/reset-password?token=stale", body); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected stale token rejected, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPost, "/reset-password?token=good", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected reset confirmed, got %d", resp.StatusCode)
	}
	if got := decodeBody[redirectResponse](t, resp); got.Redirect != app.RouteLogin {
		t.Fatalf("expected redirect to login, got %q", got.Redirect)
	}
}

func TestAdminIsSentAwayFromDashboard(t *testing.T) {
	f := newFixture(t, fakeBackend(t, adminUser()), true)

	login := f.do(t, http.MethodPost, "/login", app.LoginForm{UsernameOrEmail: "root", Password: "secret"})
	if got := decodeBody[redirectResponse](t, login); got.Redirect != app.RouteAdmin {
		t.Fatalf("expected admin landing, got %q", got.Redirect)
	}

	resp := f.do(t, http.MethodGet, "/dashboard", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != app.RouteAdmin {
		t.Fatalf("expected redirect to admin, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t, fakeBackend(t, regularUser()), true)

	resp := f.do(t, http.MethodPost, "/login", app.LoginForm{UsernameOrEmail: "alice", Password: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if f.session.IsAuthenticated() {
		t.Fatalf("expected no session after rejected login")
	}

	resp = f.do(t, http.MethodPost, "/login", app.LoginForm{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty form, got %d", resp.StatusCode)
	}
	body := decodeBody[errorResponse](t, resp)
	if body.Fields["usernameOrEmail"] == "" || body.Fields["password"] == "" {
		t.Fatalf("expected field errors, got %+v", body.Fields)
	}
}

func TestQuizAttemptFlow(t *testing.T) {
	f := newFixture(t, fakeBackend(t, regularUser()), true)

	login := f.do(t, http.MethodPost, "/login", app.LoginForm{UsernameOrEmail: "alice", Password: "secret"})
	if got := decodeBody[redirectResponse](t, login); got.Redirect != app.RouteDashboard {
		t.Fatalf("expected dashboard landing, got %q", got.Redirect)
	}

	view := decodeBody[app.AttemptView](t, f.do(t, http.MethodGet, "/quiz/quiz-1", nil))
	if view.State != "in_progress" || view.Total != 2 || view.Question == nil || view.Question.ID != "q1" {
		t.Fatalf("unexpected initial view %+v", view)
	}
	if view.CanSubmit {
		t.Fatalf("expected submit disabled before any answer")
	}

	view = decodeBody[app.AttemptView](t, f.do(t, http.MethodPost, "/quiz/quiz-1/answers", answerRequest{QuestionID: "q1", Option: 2}))
	if view.Selected != 2 || !view.CanSubmit {
		t.Fatalf("expected option 2 selected, got %+v", view)
	}

	view = decodeBody[app.AttemptView](t, f.do(t, http.MethodPost, "/quiz/quiz-1/submit", nil))
	if view.State != "completed" || view.Result == nil || view.Result.Score != 1 || view.Percent != 50 {
		t.Fatalf("expected 1/2 (50%%), got %+v", view)
	}

	view = decodeBody[app.AttemptView](t, f.do(t, http.MethodPost, "/quiz/quiz-1/retake", nil))
	if view.State != "in_progress" || view.Answered != 0 || view.Index != 0 {
		t.Fatalf("expected fresh attempt after retake, got %+v", view)
	}

	resp := f.do(t, http.MethodPost, "/quiz/quiz-1/submit", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 when nothing answered, got %d", resp.StatusCode)
	}

	if resp := f.do(t, http.MethodDelete, "/quiz/quiz-1", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on close, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodPost, "/quiz/quiz-1/next", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 after close, got %d", resp.StatusCode)
	}
}

func TestUnauthorizedBackendResponseEndsSession(t *testing.T) {
	f := newFixture(t, fakeBackend(t, regularUser(), "/user/attempts"), true)

	f.do(t, http.MethodPost, "/login", app.LoginForm{UsernameOrEmail: "alice", Password: "secret"})
	if !f.session.IsAuthenticated() {
		t.Fatalf("expected login to succeed")
	}

	resp := f.do(t, http.MethodGet, "/dashboard", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if f.store.Len() != 0 {
		t.Fatalf("expected storage cleared, %d keys left", f.store.Len())
	}

	resp = f.do(t, http.MethodGet, "/dashboard", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != app.RouteLogin {
		t.Fatalf("expected next guard check to redirect to login, got %d", resp.StatusCode)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	f := newFixture(t, fakeBackend(t, regularUser()), true)
	f.do(t, http.MethodPost, "/login", app.LoginForm{UsernameOrEmail: "alice", Password: "secret"})

	resp := f.do(t, http.MethodPost, "/logout", nil)
	if got := decodeBody[redirectResponse](t, resp); got.Redirect != app.RouteLogin {
		t.Fatalf("expected login redirect, got %q", got.Redirect)
	}
	if f.session.IsAuthenticated() || f.store.Len() != 0 {
		t.Fatalf("expected session and storage cleared")
	}
}

func regularUser() domain.User {
	return domain.User{ID: "u1", Username: "alice", Email: "alice@example.com", Roles: []string{"ROLE_USER"}}
}

func adminUser() domain.User {
	return domain.User{ID: "a1", Username: "root", Email: "root@example.com", Roles: []string{"ROLE_ADMIN"}}
}

// fakeBackend serves one two-question quiz whose answers are C then B. Paths
// listed in revoked answer 401 as if the token had been revoked.
func fakeBackend(t *testing.T, user domain.User, revoked ...string) *http.ServeMux {
	t.Helper()
	const token = "tok-1"
	correct := []string{"C", "B"}

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token || slices.Contains(revoked, r.URL.Path) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply(w, domain.AuthResponse{Token: token, User: user})
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/user/quizSubjects", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, []map[string]any{{"id": "quiz-1", "subject": "Arithmetic", "questionCount": 2}})
	}))
	mux.HandleFunc("/user/attempts", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, []map[string]any{})
	}))
	mux.HandleFunc("/user/quiz/quiz-1", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, []map[string]any{
			{"id": "q1", "questionText": "2 + 2?", "optionA": "3", "optionB": "5", "optionC": "4", "optionD": "22", "correctAnswer": "C"},
			{"id": "q2", "questionText": "3 * 3?", "optionA": "6", "optionB": "9", "optionC": "", "optionD": ""},
		})
	}))
	mux.HandleFunc("/user/solve/quiz-1", authed(func(w http.ResponseWriter, r *http.Request) {
		var answers []string
		if err := json.NewDecoder(r.Body).Decode(&answers); err != nil || len(answers) != len(correct) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		score := 0
		for i, a := range answers {
			if strings.EqualFold(a, correct[i]) {
				score++
			}
		}
		reply(w, map[string]int{"score": score})
	}))
	mux.HandleFunc("/auth/request-reset", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") == "" {
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/auth/reset-password", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Token != "good" {
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	return mux
}
