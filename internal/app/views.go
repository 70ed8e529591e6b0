package app

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"quiz-client/internal/domain"
)

// QuizCatalog lists the quizzes available to users.
type QuizCatalog interface {
	QuizSubjects(ctx context.Context) ([]domain.QuizSummary, error)
}

// AttemptHistory lists the logged-in user's past attempts.
type AttemptHistory interface {
	Attempts(ctx context.Context) ([]domain.AttemptRecord, error)
}

// LeaderboardSource returns the leaderboard of one quiz.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
}

const recentAttemptLimit = 10

// Views builds the read-only user screens.
type Views struct {
	catalog QuizCatalog
	history AttemptHistory
	boards  LeaderboardSource
	session *SessionManager
}

func NewViews(catalog QuizCatalog, history AttemptHistory, boards LeaderboardSource, session *SessionManager) *Views {
	return &Views{catalog: catalog, history: history, boards: boards, session: session}
}

// RecentAttempt is an attempt row with its quiz subject resolved.
type RecentAttempt struct {
	QuizID      string    `json:"quizId"`
	Subject     string    `json:"subject"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Percent     int       `json:"percent"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// DashboardView is the user home screen.
type DashboardView struct {
	Greeting       string               `json:"greeting"`
	Quizzes        []domain.QuizSummary `json:"quizzes"`
	AttemptCount   int                  `json:"attemptCount"`
	AveragePercent int                  `json:"averagePercent"`
	Recent         []RecentAttempt      `json:"recent"`
}

// Dashboard fetches quizzes and attempts concurrently.
func (v *Views) Dashboard(ctx context.Context) (DashboardView, error) {
	user, ok := v.session.User()
	if !ok {
		return DashboardView{}, domain.ErrNotAuthenticated
	}
	epoch := v.session.Epoch()

	var (
		quizzes  []domain.QuizSummary
		attempts []domain.AttemptRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quizzes, err = v.catalog.QuizSubjects(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		attempts, err = v.history.Attempts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardView{}, err
	}
	if !v.session.Current(epoch) {
		return DashboardView{}, domain.ErrSessionEnded
	}

	return DashboardView{
		Greeting:       greeting(user.Username),
		Quizzes:        quizzes,
		AttemptCount:   len(attempts),
		AveragePercent: averagePercent(attempts),
		Recent:         recentAttempts(attempts, quizzes, recentAttemptLimit),
	}, nil
}

// ProfileView is the account screen.
type ProfileView struct {
	User           domain.User `json:"user"`
	Admin          bool        `json:"admin"`
	AttemptCount   int         `json:"attemptCount"`
	QuizzesTaken   int         `json:"quizzesTaken"`
	BestPercent    int         `json:"bestPercent"`
	AveragePercent int         `json:"averagePercent"`
}

func (v *Views) Profile(ctx context.Context) (ProfileView, error) {
	user, ok := v.session.User()
	if !ok {
		return ProfileView{}, domain.ErrNotAuthenticated
	}
	view := ProfileView{User: user, Admin: user.IsAdmin()}
	if view.Admin {
		// admins do not take quizzes
		return view, nil
	}

	epoch := v.session.Epoch()
	attempts, err := v.history.Attempts(ctx)
	if err != nil {
		return ProfileView{}, err
	}
	if !v.session.Current(epoch) {
		return ProfileView{}, domain.ErrSessionEnded
	}

	taken := make(map[string]struct{})
	for _, a := range attempts {
		taken[a.QuizID] = struct{}{}
		if p := a.Percent(); p > view.BestPercent {
			view.BestPercent = p
		}
	}
	view.AttemptCount = len(attempts)
	view.QuizzesTaken = len(taken)
	view.AveragePercent = averagePercent(attempts)
	return view, nil
}

// LeaderboardRow is a ranked leaderboard entry.
type LeaderboardRow struct {
	Rank        int       `json:"rank"`
	Username    string    `json:"username"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Percent     int       `json:"percent"`
	CompletedAt time.Time `json:"completedAt"`
}

type LeaderboardView struct {
	QuizID string           `json:"quizId"`
	Rows   []LeaderboardRow `json:"rows"`
}

// Leaderboard ranks entries in the order the backend returns them.
func (v *Views) Leaderboard(ctx context.Context, quizID string) (LeaderboardView, error) {
	epoch := v.session.Epoch()
	entries, err := v.boards.Leaderboard(ctx, quizID)
	if err != nil {
		return LeaderboardView{}, err
	}
	if !v.session.Current(epoch) {
		return LeaderboardView{}, domain.ErrSessionEnded
	}

	view := LeaderboardView{QuizID: quizID, Rows: make([]LeaderboardRow, 0, len(entries))}
	for i, e := range entries {
		view.Rows = append(view.Rows, LeaderboardRow{
			Rank:        i + 1,
			Username:    e.Username,
			Score:       e.Score,
			Total:       e.TotalQuestions,
			Percent:     domain.AttemptResult{Score: e.Score, Total: e.TotalQuestions}.Percent(),
			CompletedAt: e.CompletedAt,
		})
	}
	return view, nil
}

// Quizzes lists the available quizzes.
func (v *Views) Quizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	if !v.session.IsAuthenticated() {
		return nil, domain.ErrNotAuthenticated
	}
	epoch := v.session.Epoch()
	quizzes, err := v.catalog.QuizSubjects(ctx)
	if err != nil {
		return nil, err
	}
	if !v.session.Current(epoch) {
		return nil, domain.ErrSessionEnded
	}
	return quizzes, nil
}

// Attempts lists past attempts, newest first.
func (v *Views) Attempts(ctx context.Context) ([]RecentAttempt, error) {
	if !v.session.IsAuthenticated() {
		return nil, domain.ErrNotAuthenticated
	}
	epoch := v.session.Epoch()
	var (
		quizzes  []domain.QuizSummary
		attempts []domain.AttemptRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quizzes, err = v.catalog.QuizSubjects(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		attempts, err = v.history.Attempts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !v.session.Current(epoch) {
		return nil, domain.ErrSessionEnded
	}
	return recentAttempts(attempts, quizzes, len(attempts)), nil
}

func recentAttempts(attempts []domain.AttemptRecord, quizzes []domain.QuizSummary, limit int) []RecentAttempt {
	subjects := make(map[string]string, len(quizzes))
	for _, q := range quizzes {
		subjects[q.ID] = q.Subject
	}

	sorted := make([]domain.AttemptRecord, len(attempts))
	copy(sorted, attempts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AttemptedAt.After(sorted[j].AttemptedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	rows := make([]RecentAttempt, 0, len(sorted))
	for _, a := range sorted {
		subject, ok := subjects[a.QuizID]
		if !ok {
			subject = a.QuizSubject
		}
		if subject == "" {
			subject = "Unknown Quiz"
		}
		rows = append(rows, RecentAttempt{
			QuizID:      a.QuizID,
			Subject:     subject,
			Score:       a.Score,
			Total:       a.TotalQuestions,
			Percent:     a.Percent(),
			AttemptedAt: a.AttemptedAt,
		})
	}
	return rows
}

func averagePercent(attempts []domain.AttemptRecord) int {
	if len(attempts) == 0 {
		return 0
	}
	sum := 0
	for _, a := range attempts {
		sum += a.Percent()
	}
	return (sum + len(attempts)/2) / len(attempts)
}

func greeting(username string) string {
	if username == "" {
		return "Hello User"
	}
	r := []rune(username)
	r[0] = unicode.ToUpper(r[0])
	return "Hello " + strings.TrimSpace(string(r))
}
