package domain

import (
	"math"
	"strings"
	"time"
)

// Durable storage keys for the client session. All three are cleared together.
const (
	KeyToken  = "jwt"
	KeyUser   = "user"
	KeyExpiry = "jwt_expiry"
)

// SessionKeys lists every durable key owned by a session.
var SessionKeys = []string{KeyToken, KeyUser, KeyExpiry}

// Role names as understood by the client. The backend may prefix them with ROLE_.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is the authenticated profile returned by the backend.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the user carries role, ignoring case and a ROLE_ prefix.
func (u User) HasRole(role string) bool {
	want := normalizeRole(role)
	for _, r := range u.Roles {
		if normalizeRole(r) == want {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role set contains admin.
func (u User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	return strings.TrimPrefix(r, "role_")
}

// Session is the credential and identity held by the client for one login.
type Session struct {
	Token  string
	Expiry time.Time // zero when the token carries no expiry
	User   User
}

// AuthResponse is the body of /auth/login and /auth/signup.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// QuizSummary is a quiz as listed for users.
type QuizSummary struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	QuestionCount int       `json:"questionCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Question is an MCQ question as presented during an attempt. Letters holds
// the wire letter of each option; blank slots on the backend are skipped, so
// the letters need not be contiguous.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Letters []string `json:"letters,omitempty"`
}

// Letter returns the letter the backend expects for option i. Without a
// letter table options are lettered A, B, C... in order.
func (q Question) Letter(i int) string {
	if i < 0 || i >= len(q.Options) {
		return ""
	}
	if i < len(q.Letters) {
		return q.Letters[i]
	}
	return OptionLetter(i)
}

// OptionIndex finds the option labelled letter, ignoring case; -1 if none.
func (q Question) OptionIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return -1
	}
	for i := range q.Options {
		if q.Letter(i) == letter {
			return i
		}
	}
	return -1
}

// QuestionSet is an ordered sequence of questions; order is presentation order.
type QuestionSet []Question

// AttemptResult is the outcome of a submitted attempt.
type AttemptResult struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

// Percent returns the rounded score percentage.
func (r AttemptResult) Percent() int {
	return percent(r.Score, r.Total)
}

// AttemptRecord is a past attempt as returned by /user/attempts.
type AttemptRecord struct {
	QuizID         string    `json:"quizId"`
	QuizSubject    string    `json:"quizSubject"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Answers        []string  `json:"answers"`
	AttemptedAt    time.Time `json:"attemptedAt"`
}

// Percent returns the rounded score percentage of the attempt.
func (a AttemptRecord) Percent() int {
	return percent(a.Score, a.TotalQuestions)
}

// LeaderboardEntry is one row of a quiz leaderboard.
type LeaderboardEntry struct {
	Username       string    `json:"username"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	CompletedAt    time.Time `json:"completedAt"`
}

// AdminQuiz is a quiz as listed in the admin console.
type AdminQuiz struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

// AdminQuestion is the full authoring shape of a question, answer included.
type AdminQuestion struct {
	ID            string `json:"id,omitempty"`
	QuestionText  string `json:"questionText"`
	OptionA       string `json:"optionA"`
	OptionB       string `json:"optionB"`
	OptionC       string `json:"optionC"`
	OptionD       string `json:"optionD"`
	CorrectAnswer string `json:"correctAnswer"` // A/B/C/D
}

// Option is one answer choice and the letter slot it occupies.
type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Options returns the non-empty options in letter order, each keeping its
// own slot letter.
func (q AdminQuestion) Options() []Option {
	opts := make([]Option, 0, 4)
	for i, o := range []string{q.OptionA, q.OptionB, q.OptionC, q.OptionD} {
		if o != "" {
			opts = append(opts, Option{Letter: OptionLetter(i), Text: o})
		}
	}
	return opts
}

// Question converts the authoring shape to the attempt shape, dropping blank
// slots and the correct answer.
func (q AdminQuestion) Question() Question {
	opts := q.Options()
	out := Question{
		ID:      q.ID,
		Prompt:  q.QuestionText,
		Options: make([]string, 0, len(opts)),
		Letters: make([]string, 0, len(opts)),
	}
	for _, o := range opts {
		out.Options = append(out.Options, o.Text)
		out.Letters = append(out.Letters, o.Letter)
	}
	return out
}

// QuizDetail is a quiz with every question, as seen by admins.
type QuizDetail struct {
	ID            string          `json:"id"`
	Subject       string          `json:"subject"`
	QuestionCount int             `json:"questionCount"`
	CreatedAt     time.Time       `json:"createdAt"`
	Questions     []AdminQuestion `json:"questions"`
}

// OptionLetter maps an option index to its letter code; out of range yields "".
func OptionLetter(index int) string {
	if index < 0 || index >= 26 {
		return ""
	}
	return string(rune('A' + index))
}

func percent(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(total) * 100))
}
