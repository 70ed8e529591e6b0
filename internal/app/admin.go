package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"quiz-client/internal/domain"
)

// AdminAPI is the admin half of the backend contract.
type AdminAPI interface {
	AdminQuizzes(ctx context.Context) ([]domain.AdminQuiz, error)
	AddQuiz(ctx context.Context, subject string) (domain.AdminQuiz, error)
	DeleteQuiz(ctx context.Context, quizID string) error
	AdminQuiz(ctx context.Context, quizID string) (domain.QuizDetail, error)
	AddQuestion(ctx context.Context, quizID string, q domain.AdminQuestion) (domain.AdminQuestion, error)
	UpdateQuestion(ctx context.Context, quizID, questionID string, q domain.AdminQuestion) (domain.AdminQuestion, error)
	DeleteQuestion(ctx context.Context, quizID, questionID string) error
	Users(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// CatalogInvalidator drops cached quiz listings after they change.
type CatalogInvalidator interface {
	Invalidate()
}

// AdminConsole backs the admin view. Every call requires an admin session.
type AdminConsole struct {
	api     AdminAPI
	session *SessionManager
	catalog CatalogInvalidator
}

// NewAdminConsole wires the console; catalog may be nil when nothing is cached.
func NewAdminConsole(api AdminAPI, session *SessionManager, catalog CatalogInvalidator) *AdminConsole {
	return &AdminConsole{api: api, session: session, catalog: catalog}
}

// AdminView is the admin home screen.
type AdminView struct {
	Quizzes []domain.AdminQuiz `json:"quizzes"`
	Users   []domain.User      `json:"users"`
}

func (c *AdminConsole) Overview(ctx context.Context) (AdminView, error) {
	if err := c.authorize(); err != nil {
		return AdminView{}, err
	}
	epoch := c.session.Epoch()
	var view AdminView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		view.Quizzes, err = c.api.AdminQuizzes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		view.Users, err = c.api.Users(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return AdminView{}, err
	}
	if !c.session.Current(epoch) {
		return AdminView{}, domain.ErrSessionEnded
	}
	return view, nil
}

func (c *AdminConsole) CreateQuiz(ctx context.Context, form QuizForm) (domain.AdminQuiz, error) {
	if err := c.authorize(); err != nil {
		return domain.AdminQuiz{}, err
	}
	if err := form.Validate(); err != nil {
		return domain.AdminQuiz{}, err
	}
	quiz, err := c.api.AddQuiz(ctx, form.Subject)
	if err != nil {
		return domain.AdminQuiz{}, err
	}
	c.invalidate()
	return quiz, nil
}

func (c *AdminConsole) DeleteQuiz(ctx context.Context, quizID string) error {
	if err := c.authorize(); err != nil {
		return err
	}
	if err := c.api.DeleteQuiz(ctx, quizID); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

func (c *AdminConsole) Quiz(ctx context.Context, quizID string) (domain.QuizDetail, error) {
	if err := c.authorize(); err != nil {
		return domain.QuizDetail{}, err
	}
	epoch := c.session.Epoch()
	detail, err := c.api.AdminQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizDetail{}, err
	}
	if !c.session.Current(epoch) {
		return domain.QuizDetail{}, domain.ErrSessionEnded
	}
	return detail, nil
}

func (c *AdminConsole) AddQuestion(ctx context.Context, quizID string, form QuestionForm) (domain.AdminQuestion, error) {
	if err := c.authorize(); err != nil {
		return domain.AdminQuestion{}, err
	}
	if err := form.Validate(); err != nil {
		return domain.AdminQuestion{}, err
	}
	q, err := c.api.AddQuestion(ctx, quizID, form.Question())
	if err != nil {
		return domain.AdminQuestion{}, err
	}
	c.invalidate()
	return q, nil
}

func (c *AdminConsole) UpdateQuestion(ctx context.Context, quizID, questionID string, form QuestionForm) (domain.AdminQuestion, error) {
	if err := c.authorize(); err != nil {
		return domain.AdminQuestion{}, err
	}
	if err := form.Validate(); err != nil {
		return domain.AdminQuestion{}, err
	}
	q := form.Question()
	q.ID = questionID
	return c.api.UpdateQuestion(ctx, quizID, questionID, q)
}

func (c *AdminConsole) DeleteQuestion(ctx context.Context, quizID, questionID string) error {
	if err := c.authorize(); err != nil {
		return err
	}
	if err := c.api.DeleteQuestion(ctx, quizID, questionID); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

func (c *AdminConsole) Users(ctx context.Context) ([]domain.User, error) {
	if err := c.authorize(); err != nil {
		return nil, err
	}
	epoch := c.session.Epoch()
	users, err := c.api.Users(ctx)
	if err != nil {
		return nil, err
	}
	if !c.session.Current(epoch) {
		return nil, domain.ErrSessionEnded
	}
	return users, nil
}

func (c *AdminConsole) DeleteUser(ctx context.Context, userID string) error {
	if err := c.authorize(); err != nil {
		return err
	}
	return c.api.DeleteUser(ctx, userID)
}

func (c *AdminConsole) authorize() error {
	snap := c.session.Snapshot()
	if !snap.Authenticated {
		return domain.ErrNotAuthenticated
	}
	if !snap.Admin {
		return domain.ErrForbidden
	}
	return nil
}

func (c *AdminConsole) invalidate() {
	if c.catalog != nil {
		c.catalog.Invalidate()
	}
}
