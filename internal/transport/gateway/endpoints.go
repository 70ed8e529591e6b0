package gateway

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"quiz-client/internal/domain"
)

// wire shapes; timestamps arrive as zone-less ISO strings from the backend.

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type subjectRequest struct {
	Subject string `json:"subject"`
}

type quizSummaryWire struct {
	ID            string `json:"id"`
	Subject       string `json:"subject"`
	QuestionCount int    `json:"questionCount"`
	CreatedAt     string `json:"createdAt"`
}

type questionWire struct {
	ID            string `json:"id"`
	QuestionText  string `json:"questionText"`
	OptionA       string `json:"optionA"`
	OptionB       string `json:"optionB"`
	OptionC       string `json:"optionC"`
	OptionD       string `json:"optionD"`
	CorrectAnswer string `json:"correctAnswer"`
}

func (q questionWire) admin() domain.AdminQuestion {
	return domain.AdminQuestion{
		ID:            q.ID,
		QuestionText:  q.QuestionText,
		OptionA:       q.OptionA,
		OptionB:       q.OptionB,
		OptionC:       q.OptionC,
		OptionD:       q.OptionD,
		CorrectAnswer: q.CorrectAnswer,
	}
}

type scoreResponse struct {
	Score int `json:"score"`
}

type attemptWire struct {
	QuizID         string   `json:"quizId"`
	QuizSubject    string   `json:"quizSubject"`
	Score          int      `json:"score"`
	TotalQuestions int      `json:"totalQuestions"`
	Answers        []string `json:"answers"`
	AttemptedAt    string   `json:"attemptedAt"`
}

type leaderboardWire struct {
	Username       string `json:"username"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	CompletedAt    string `json:"completedAt"`
}

type quizDetailWire struct {
	ID            string         `json:"id"`
	Subject       string         `json:"subject"`
	QuestionCount int            `json:"questionCount"`
	CreatedAt     string         `json:"createdAt"`
	Questions     []questionWire `json:"questions"`
}

// Login authenticates with username or email.
func (c *Client) Login(ctx context.Context, username, password string) (domain.AuthResponse, error) {
	var resp domain.AuthResponse
	err := c.do(ctx, request{
		kind:   kindLogin,
		method: http.MethodPost,
		path:   "/auth/login",
		body:   loginRequest{Username: username, Password: password},
	}, &resp)
	return resp, err
}

func (c *Client) Signup(ctx context.Context, username, email, password string) (domain.AuthResponse, error) {
	var resp domain.AuthResponse
	err := c.do(ctx, request{
		kind:   kindLogin,
		method: http.MethodPost,
		path:   "/auth/signup",
		body:   signupRequest{Username: username, Email: email, Password: password},
	}, &resp)
	return resp, err
}

// Logout tells the backend to revoke token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, request{
		kind:   kindLogout,
		method: http.MethodPost,
		path:   "/auth/logout",
		body:   struct{}{},
		token:  token,
	}, nil)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, request{
		kind:   kindReset,
		method: http.MethodPost,
		path:   "/auth/request-reset",
		query:  url.Values{"email": []string{email}},
	}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, request{
		kind:   kindReset,
		method: http.MethodPost,
		path:   "/auth/reset-password",
		body:   resetRequest{Token: token, NewPassword: newPassword},
	}, nil)
}

func (c *Client) QuizSubjects(ctx context.Context) ([]domain.QuizSummary, error) {
	var wire []quizSummaryWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/user/quizSubjects"}, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.QuizSummary, 0, len(wire))
	for _, q := range wire {
		out = append(out, domain.QuizSummary{
			ID:            q.ID,
			Subject:       q.Subject,
			QuestionCount: q.QuestionCount,
			CreatedAt:     parseTimestamp(q.CreatedAt),
		})
	}
	return out, nil
}

// QuizQuestions fetches the question set of a quiz for an attempt. Empty
// options are dropped and the correct answer is never exposed.
func (c *Client) QuizQuestions(ctx context.Context, quizID string) (domain.QuestionSet, error) {
	var wire []questionWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/user/quiz/" + segment(quizID)}, &wire); err != nil {
		return nil, err
	}
	set := make(domain.QuestionSet, 0, len(wire))
	for _, q := range wire {
		set = append(set, q.admin().Question())
	}
	return set, nil
}

// SubmitAnswers posts the ordered letter payload and returns the score.
func (c *Client) SubmitAnswers(ctx context.Context, quizID string, answers []string) (int, error) {
	var resp scoreResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/user/solve/" + segment(quizID),
		body:   answers,
	}, &resp)
	return resp.Score, err
}

func (c *Client) Attempts(ctx context.Context) ([]domain.AttemptRecord, error) {
	var wire []attemptWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/user/attempts"}, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.AttemptRecord, 0, len(wire))
	for _, a := range wire {
		out = append(out, domain.AttemptRecord{
			QuizID:         a.QuizID,
			QuizSubject:    a.QuizSubject,
			Score:          a.Score,
			TotalQuestions: a.TotalQuestions,
			Answers:        a.Answers,
			AttemptedAt:    parseTimestamp(a.AttemptedAt),
		})
	}
	return out, nil
}

func (c *Client) Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	var wire []leaderboardWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/user/leaderboard/" + segment(quizID)}, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.LeaderboardEntry, 0, len(wire))
	for _, e := range wire {
		out = append(out, domain.LeaderboardEntry{
			Username:       e.Username,
			Score:          e.Score,
			TotalQuestions: e.TotalQuestions,
			CompletedAt:    parseTimestamp(e.CompletedAt),
		})
	}
	return out, nil
}

func (c *Client) AdminQuizzes(ctx context.Context) ([]domain.AdminQuiz, error) {
	var out []domain.AdminQuiz
	err := c.do(ctx, request{method: http.MethodGet, path: "/admin/quizzes"}, &out)
	return out, err
}

func (c *Client) AddQuiz(ctx context.Context, subject string) (domain.AdminQuiz, error) {
	var out domain.AdminQuiz
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/admin/addQuiz",
		body:   subjectRequest{Subject: subject},
	}, &out)
	return out, err
}

func (c *Client) DeleteQuiz(ctx context.Context, quizID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/admin/deleteQuiz/" + segment(quizID)}, nil)
}

func (c *Client) AdminQuiz(ctx context.Context, quizID string) (domain.QuizDetail, error) {
	var wire quizDetailWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/admin/quiz/" + segment(quizID)}, &wire); err != nil {
		return domain.QuizDetail{}, err
	}
	detail := domain.QuizDetail{
		ID:            wire.ID,
		Subject:       wire.Subject,
		QuestionCount: wire.QuestionCount,
		CreatedAt:     parseTimestamp(wire.CreatedAt),
		Questions:     make([]domain.AdminQuestion, 0, len(wire.Questions)),
	}
	for _, q := range wire.Questions {
		detail.Questions = append(detail.Questions, q.admin())
	}
	if detail.QuestionCount == 0 {
		detail.QuestionCount = len(detail.Questions)
	}
	return detail, nil
}

func (c *Client) AddQuestion(ctx context.Context, quizID string, q domain.AdminQuestion) (domain.AdminQuestion, error) {
	var out questionWire
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/admin/addQuestion/" + segment(quizID),
		body:   q,
	}, &out)
	return out.admin(), err
}

func (c *Client) UpdateQuestion(ctx context.Context, quizID, questionID string, q domain.AdminQuestion) (domain.AdminQuestion, error) {
	var out questionWire
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/admin/updateQuestion/" + segment(quizID) + "/" + segment(questionID),
		body:   q,
	}, &out)
	return out.admin(), err
}

func (c *Client) DeleteQuestion(ctx context.Context, quizID, questionID string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/admin/deleteQuestion/" + segment(quizID) + "/" + segment(questionID),
	}, nil)
}

func (c *Client) Users(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := c.do(ctx, request{method: http.MethodGet, path: "/admin/users"}, &out)
	return out, err
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/admin/users/" + segment(userID)}, nil)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
