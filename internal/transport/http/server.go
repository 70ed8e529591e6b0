package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
)

var errNoAttempt = errors.New("no attempt in progress")

// Server exposes the client views over HTTP for a local browser or script.
type Server struct {
	session  *app.SessionManager
	auth     *app.Authenticator
	views    *app.Views
	admin    *app.AdminConsole
	quizzes  app.QuizSource
	ws       *WSHandler
	attempts *attemptRegistry
}

// Deps are the collaborators the server renders.
type Deps struct {
	Session *app.SessionManager
	Auth    *app.Authenticator
	Views   *app.Views
	Admin   *app.AdminConsole
	Quizzes app.QuizSource
	Events  *app.Broadcaster
}

func NewServer(d Deps) *Server {
	return &Server{
		session:  d.Session,
		auth:     d.Auth,
		views:    d.Views,
		admin:    d.Admin,
		quizzes:  d.Quizzes,
		ws:       NewWSHandler(d.Session, d.Events),
		attempts: newAttemptRegistry(),
	}
}

// Routes builds the router. Guarded routes go through the same decision the
// CLI uses.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", s.ws.ServeWS)

	r.Get(app.RouteHome, s.handleHome)
	r.Get("/session", s.handleSession)
	r.Get(app.RouteLogin, s.renderView("login"))
	r.Post(app.RouteLogin, s.handleLogin)
	r.Get(app.RouteSignup, s.renderView("signup"))
	r.Post(app.RouteSignup, s.handleSignup)
	r.Post("/logout", s.handleLogout)
	r.Get(app.RouteResetPassword, s.handleResetView)
	r.Post(app.RouteResetPassword, s.handleReset)

	r.With(s.guard(app.RouteDashboard)).Get(app.RouteDashboard, s.handleDashboard)
	r.With(s.guard(app.RouteProfile)).Get(app.RouteProfile, s.handleProfile)
	r.With(s.guard(app.RouteLeaderboard)).Get(app.RouteLeaderboard, s.handleLeaderboard)

	r.Route(app.RouteQuiz, func(r chi.Router) {
		r.Use(s.guard(app.RouteQuiz))
		r.Get("/", s.handleQuiz)
		r.Delete("/", s.handleQuizClose)
		r.Post("/answers", s.handleAnswer)
		r.Post("/next", s.quizAction(func(a *app.Attempt) error { return a.Next() }))
		r.Post("/previous", s.quizAction(func(a *app.Attempt) error { return a.Previous() }))
		r.Post("/retake", s.quizAction(func(a *app.Attempt) error { return a.Retake() }))
		r.Post("/submit", s.handleSubmit)
	})

	r.Route(app.RouteAdmin, func(r chi.Router) {
		r.Use(s.guard(app.RouteAdmin))
		r.Get("/", s.handleAdmin)
		r.Post("/quizzes", s.handleAddQuiz)
		r.Get("/quizzes/{quizId}", s.handleAdminQuiz)
		r.Delete("/quizzes/{quizId}", s.handleDeleteQuiz)
		r.Post("/quizzes/{quizId}/questions", s.handleAddQuestion)
		r.Put("/quizzes/{quizId}/questions/{questionId}", s.handleUpdateQuestion)
		r.Delete("/quizzes/{quizId}/questions/{questionId}", s.handleDeleteQuestion)
		r.Delete("/users/{userId}", s.handleDeleteUser)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"view": "not-found"})
	})
	return r
}

// guard applies the route decision. Non-GET requests count as a pointer
// interaction for the inactivity timer.
func (s *Server) guard(pattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := app.Guard(pattern, s.session.Snapshot())
			switch decision {
			case app.Render:
				if r.Method != http.MethodGet {
					s.session.Touch("pointerdown")
				}
				next.ServeHTTP(w, r)
			case app.ShowLoading:
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"view": "loading"})
			default:
				http.Redirect(w, r, decision.Target(), http.StatusSeeOther)
			}
		})
	}
}

type sessionResponse struct {
	Loading       bool         `json:"loading"`
	Authenticated bool         `json:"authenticated"`
	Admin         bool         `json:"admin"`
	User          *domain.User `json:"user,omitempty"`
	Home          string       `json:"home,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	resp := sessionResponse{
		Loading:       snap.Loading,
		Authenticated: snap.Authenticated,
		Admin:         snap.Admin,
		User:          snap.User,
	}
	if snap.User != nil {
		resp.Home = app.HomeFor(*snap.User)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	if snap.User != nil {
		http.Redirect(w, r, app.HomeFor(*snap.User), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"view": "home"})
}

type redirectResponse struct {
	Redirect string `json:"redirect"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form app.LoginForm
	if !decode(w, r, &form) {
		return
	}
	route, err := s.auth.Login(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: route})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var form app.SignupForm
	if !decode(w, r, &form) {
		return
	}
	route, err := s.auth.Signup(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: route})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: app.RouteLogin})
}

// renderView serves a public form view; the client fills it in and posts back.
func (s *Server) renderView(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"view": name})
	}
}

// resetMode is "confirm" when the request carries a reset token, else "request".
func resetMode(r *http.Request) string {
	if r.URL.Query().Get("token") != "" {
		return "confirm"
	}
	return "request"
}

func (s *Server) handleResetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"view": "reset-password", "mode": resetMode(r)})
}

// handleReset is the single reset-password route: with ?token= it sets the
// new password, without it it asks for the reset email.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if resetMode(r) == "confirm" {
		s.handleResetConfirm(w, r)
		return
	}
	s.handleResetRequest(w, r)
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var form app.ResetRequestForm
	if !decode(w, r, &form) {
		return
	}
	if err := s.auth.RequestReset(r.Context(), form); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Password reset link sent to your email"})
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var form app.ResetConfirmForm
	if !decode(w, r, &form) {
		return
	}
	form.Token = r.URL.Query().Get("token")
	if err := s.auth.ConfirmReset(r.Context(), form); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: app.RouteLogin})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.views.Dashboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	view, err := s.views.Profile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.views.Leaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleQuiz returns the attempt for the quiz, starting one if none is live.
func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "id")
	epoch := s.session.Epoch()
	if attempt, ok := s.attempts.get(quizID, epoch); ok {
		writeJSON(w, http.StatusOK, attempt.View())
		return
	}

	attempt := app.NewAttempt(quizID, s.quizzes, s.session)
	if err := attempt.Load(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.attempts.put(quizID, epoch, attempt)
	writeJSON(w, http.StatusOK, attempt.View())
}

func (s *Server) handleQuizClose(w http.ResponseWriter, r *http.Request) {
	s.attempts.drop(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	Option     int    `json:"option"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	s.quizAction(func(a *app.Attempt) error {
		return a.SelectAnswer(req.QuestionID, req.Option)
	})(w, r)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.quizAction(func(a *app.Attempt) error {
		_, err := a.Submit(r.Context())
		return err
	})(w, r)
}

func (s *Server) quizAction(fn func(*app.Attempt) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attempt, ok := s.attempts.get(chi.URLParam(r, "id"), s.session.Epoch())
		if !ok {
			writeError(w, errNoAttempt)
			return
		}
		if err := fn(attempt); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attempt.View())
	}
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	view, err := s.admin.Overview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAddQuiz(w http.ResponseWriter, r *http.Request) {
	var form app.QuizForm
	if !decode(w, r, &form) {
		return
	}
	quiz, err := s.admin.CreateQuiz(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (s *Server) handleAdminQuiz(w http.ResponseWriter, r *http.Request) {
	detail, err := s.admin.Quiz(r.Context(), chi.URLParam(r, "quizId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteQuiz(r.Context(), chi.URLParam(r, "quizId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	var form app.QuestionForm
	if !decode(w, r, &form) {
		return
	}
	q, err := s.admin.AddQuestion(r.Context(), chi.URLParam(r, "quizId"), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var form app.QuestionForm
	if !decode(w, r, &form) {
		return
	}
	q, err := s.admin.UpdateQuestion(r.Context(), chi.URLParam(r, "quizId"), chi.URLParam(r, "questionId"), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteQuestion(r.Context(), chi.URLParam(r, "quizId"), chi.URLParam(r, "questionId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteUser(r.Context(), chi.URLParam(r, "userId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// attemptRegistry holds one attempt per quiz for the current session epoch.
type attemptRegistry struct {
	mu      sync.Mutex
	entries map[string]attemptEntry
}

type attemptEntry struct {
	epoch   uint64
	attempt *app.Attempt
}

func newAttemptRegistry() *attemptRegistry {
	return &attemptRegistry{entries: make(map[string]attemptEntry)}
}

func (reg *attemptRegistry) get(quizID string, epoch uint64) (*app.Attempt, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.entries[quizID]
	if !ok {
		return nil, false
	}
	if e.epoch != epoch || e.attempt.State() == app.AttemptFailed {
		e.attempt.Close()
		delete(reg.entries, quizID)
		return nil, false
	}
	return e.attempt, true
}

func (reg *attemptRegistry) put(quizID string, epoch uint64, a *app.Attempt) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if old, ok := reg.entries[quizID]; ok {
		old.attempt.Close()
	}
	reg.entries[quizID] = attemptEntry{epoch: epoch, attempt: a}
}

func (reg *attemptRegistry) drop(quizID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if e, ok := reg.entries[quizID]; ok {
		e.attempt.Close()
		delete(reg.entries, quizID)
	}
}

type errorResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		aerr *domain.APIError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNotAuthenticated),
		errors.Is(err, domain.ErrSessionEnded):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), Redirect: app.RouteLogin})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidResetToken),
		errors.Is(err, domain.ErrOptionNotFound):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrNothingAnswered),
		errors.Is(err, errNoAttempt):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNetwork), errors.As(err, &aerr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		log.Printf("view server: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
