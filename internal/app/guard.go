package app

import (
	"net/url"

	"quiz-client/internal/domain"
)

// Client routes.
const (
	RouteHome          = "/"
	RouteLogin         = "/login"
	RouteSignup        = "/signup"
	RouteResetPassword = "/reset-password"
	RouteDashboard     = "/dashboard"
	RouteAdmin         = "/admin"
	RouteProfile       = "/profile"
	RouteQuiz          = "/quiz/{id}"
	RouteLeaderboard   = "/leaderboard/{id}"
	RouteNotFound      = "/not-found"
)

// Requirement declares who may see a view.
type Requirement struct {
	Authenticated bool
	Admin         bool // implies Authenticated
	NonAdmin      bool // implies Authenticated
}

func (r Requirement) guarded() bool {
	return r.Authenticated || r.Admin || r.NonAdmin
}

// Decision is the outcome of evaluating a route against the session.
type Decision int

const (
	Render Decision = iota
	ShowLoading
	RedirectLogin
	RedirectDashboard
	RedirectAdmin
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case ShowLoading:
		return "loading"
	case RedirectLogin:
		return "redirect-login"
	case RedirectDashboard:
		return "redirect-dashboard"
	case RedirectAdmin:
		return "redirect-admin"
	default:
		return "unknown"
	}
}

// Target is the route a redirect decision points at, empty otherwise.
func (d Decision) Target() string {
	switch d {
	case RedirectLogin:
		return RouteLogin
	case RedirectDashboard:
		return RouteDashboard
	case RedirectAdmin:
		return RouteAdmin
	default:
		return ""
	}
}

// Decide is the route guard. It is a pure function of its inputs.
// Public views render immediately; guarded views wait for initialization.
func Decide(req Requirement, snap Snapshot) Decision {
	if !req.guarded() {
		return Render
	}
	if snap.Loading {
		return ShowLoading
	}
	if !snap.Authenticated {
		return RedirectLogin
	}
	if req.Admin && !snap.Admin {
		return RedirectDashboard
	}
	if req.NonAdmin && snap.Admin {
		return RedirectAdmin
	}
	return Render
}

// Route is a client view and its access requirement.
type Route struct {
	Name        string
	Pattern     string
	Requirement Requirement
}

// Routes is the full client navigation surface.
var Routes = []Route{
	{Name: "home", Pattern: RouteHome},
	{Name: "login", Pattern: RouteLogin},
	{Name: "signup", Pattern: RouteSignup},
	{Name: "reset-password", Pattern: RouteResetPassword},
	{Name: "dashboard", Pattern: RouteDashboard, Requirement: Requirement{NonAdmin: true}},
	{Name: "admin", Pattern: RouteAdmin, Requirement: Requirement{Admin: true}},
	{Name: "profile", Pattern: RouteProfile, Requirement: Requirement{Authenticated: true}},
	{Name: "quiz", Pattern: RouteQuiz, Requirement: Requirement{Authenticated: true}},
	{Name: "leaderboard", Pattern: RouteLeaderboard, Requirement: Requirement{Authenticated: true}},
	{Name: "not-found", Pattern: RouteNotFound},
}

// RouteFor looks up a route by pattern. Unknown patterns resolve to not-found.
func RouteFor(pattern string) (Route, bool) {
	for _, r := range Routes {
		if r.Pattern == pattern {
			return r, true
		}
	}
	return Route{Name: "not-found", Pattern: RouteNotFound}, false
}

// Guard evaluates the route registered under pattern.
func Guard(pattern string, snap Snapshot) Decision {
	route, _ := RouteFor(pattern)
	return Decide(route.Requirement, snap)
}

// HomeFor is the landing route after login.
func HomeFor(user domain.User) string {
	switch {
	case user.IsAdmin():
		return RouteAdmin
	case user.HasRole(domain.RoleUser):
		return RouteDashboard
	default:
		return RouteNotFound
	}
}

func QuizPath(quizID string) string {
	return "/quiz/" + url.PathEscape(quizID)
}

func LeaderboardPath(quizID string) string {
	return "/leaderboard/" + url.PathEscape(quizID)
}
