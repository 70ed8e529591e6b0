package app

import (
	"context"
	"fmt"
	"sync"

	"quiz-client/internal/domain"
)

// QuizSource loads question sets and accepts submissions (the backend gateway in production).
type QuizSource interface {
	QuizQuestions(ctx context.Context, quizID string) (domain.QuestionSet, error)
	SubmitAnswers(ctx context.Context, quizID string, answers []string) (int, error)
}

// SessionEpochs lets an attempt drop responses that outlive their session.
type SessionEpochs interface {
	Epoch() uint64
	Current(epoch uint64) bool
}

// AttemptState is a stage of the attempt lifecycle.
type AttemptState int

const (
	AttemptLoading AttemptState = iota
	AttemptInProgress
	AttemptSubmitting
	AttemptCompleted
	AttemptFailed
)

func (s AttemptState) String() string {
	switch s {
	case AttemptLoading:
		return "loading"
	case AttemptInProgress:
		return "in_progress"
	case AttemptSubmitting:
		return "submitting"
	case AttemptCompleted:
		return "completed"
	case AttemptFailed:
		return "error"
	default:
		return "unknown"
	}
}

// Attempt drives one pass through a quiz: navigation, answer selection,
// submission and retake. It is owned by a single view.
type Attempt struct {
	quizID  string
	source  QuizSource
	session SessionEpochs

	mu        sync.Mutex
	state     AttemptState
	epoch     uint64
	questions domain.QuestionSet
	index     int
	answers   map[string]int
	result    *domain.AttemptResult
	err       error
	closed    bool
}

// NewAttempt creates an attempt in the Loading state. session may be nil when
// responses need no staleness check.
func NewAttempt(quizID string, source QuizSource, session SessionEpochs) *Attempt {
	a := &Attempt{
		quizID:  quizID,
		source:  source,
		session: session,
		state:   AttemptLoading,
		answers: make(map[string]int),
	}
	if session != nil {
		a.epoch = session.Epoch()
	}
	return a
}

func (a *Attempt) QuizID() string { return a.quizID }

// Load fetches the question set. An empty set counts as a failure.
func (a *Attempt) Load(ctx context.Context) error {
	a.mu.Lock()
	if a.state != AttemptLoading || a.closed {
		a.mu.Unlock()
		return domain.ErrInvalidState
	}
	a.mu.Unlock()

	questions, err := a.source.QuizQuestions(ctx, a.quizID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.live() {
		a.fail(domain.ErrSessionEnded)
		return domain.ErrSessionEnded
	}
	if err != nil {
		a.fail(err)
		return fmt.Errorf("load quiz %s: %w", a.quizID, err)
	}
	if len(questions) == 0 {
		a.fail(domain.ErrQuizNotFound)
		return fmt.Errorf("load quiz %s: %w", a.quizID, domain.ErrQuizNotFound)
	}
	a.questions = questions
	a.index = 0
	a.answers = make(map[string]int)
	a.state = AttemptInProgress
	return nil
}

// SelectAnswer records option for questionID, replacing any earlier choice.
// The current index is unchanged.
func (a *Attempt) SelectAnswer(questionID string, option int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != AttemptInProgress {
		return domain.ErrInvalidState
	}
	q, ok := a.question(questionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if option < 0 || option >= len(q.Options) {
		return domain.ErrOptionNotFound
	}
	a.answers[questionID] = option
	return nil
}

// Next moves forward one question; it is a no-op on the last one.
func (a *Attempt) Next() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != AttemptInProgress {
		return domain.ErrInvalidState
	}
	if a.index < len(a.questions)-1 {
		a.index++
	}
	return nil
}

// Previous moves back one question; it is a no-op on the first one.
func (a *Attempt) Previous() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != AttemptInProgress {
		return domain.ErrInvalidState
	}
	if a.index > 0 {
		a.index--
	}
	return nil
}

// CanSubmit reports whether submission is allowed: at least one answer, not
// necessarily all of them.
func (a *Attempt) CanSubmit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == AttemptInProgress && len(a.answers) > 0
}

// Payload returns the submission body: one letter per question in set order,
// "" for unanswered questions. Letters come from each question's slots.
func (a *Attempt) Payload() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payloadLocked()
}

func (a *Attempt) payloadLocked() []string {
	payload := make([]string, len(a.questions))
	for i, q := range a.questions {
		if option, ok := a.answers[q.ID]; ok {
			payload[i] = q.Letter(option)
		}
	}
	return payload
}

// Submit sends the answers. On failure the attempt returns to InProgress with
// its answers intact so the user can retry.
func (a *Attempt) Submit(ctx context.Context) (domain.AttemptResult, error) {
	a.mu.Lock()
	if a.state != AttemptInProgress {
		a.mu.Unlock()
		return domain.AttemptResult{}, domain.ErrInvalidState
	}
	if len(a.answers) == 0 {
		a.mu.Unlock()
		return domain.AttemptResult{}, domain.ErrNothingAnswered
	}
	payload := a.payloadLocked()
	total := len(a.questions)
	a.state = AttemptSubmitting
	a.mu.Unlock()

	score, err := a.source.SubmitAnswers(ctx, a.quizID, payload)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.live() {
		a.fail(domain.ErrSessionEnded)
		return domain.AttemptResult{}, domain.ErrSessionEnded
	}
	if err != nil {
		a.state = AttemptInProgress
		return domain.AttemptResult{}, fmt.Errorf("submit quiz %s: %w", a.quizID, err)
	}
	if score < 0 {
		score = 0
	}
	if score > total {
		score = total
	}
	result := domain.AttemptResult{Score: score, Total: total}
	a.result = &result
	a.state = AttemptCompleted
	return result, nil
}

// Retake restarts a completed attempt on the already loaded question set.
func (a *Attempt) Retake() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != AttemptCompleted {
		return domain.ErrInvalidState
	}
	a.index = 0
	a.answers = make(map[string]int)
	a.result = nil
	a.state = AttemptInProgress
	return nil
}

// Close tears the attempt down; late responses are discarded.
func (a *Attempt) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

func (a *Attempt) State() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Progress is (index+1)/total, for display only.
func (a *Attempt) Progress() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.questions) == 0 {
		return 0
	}
	return float64(a.index+1) / float64(len(a.questions))
}

// AttemptView is an immutable snapshot of an attempt for rendering.
type AttemptView struct {
	QuizID      string                `json:"quizId"`
	State       string                `json:"state"`
	Index       int                   `json:"index"`
	Total       int                   `json:"total"`
	Question    *domain.Question      `json:"question,omitempty"`
	Selected    int                   `json:"selected"` // -1 when unanswered
	Answered    int                   `json:"answered"`
	Progress    float64               `json:"progress"`
	HasPrevious bool                  `json:"hasPrevious"`
	HasNext     bool                  `json:"hasNext"`
	CanSubmit   bool                  `json:"canSubmit"`
	Result      *domain.AttemptResult `json:"result,omitempty"`
	Percent     int                   `json:"percent"`
	Error       string                `json:"error,omitempty"`
}

func (a *Attempt) View() AttemptView {
	a.mu.Lock()
	defer a.mu.Unlock()

	v := AttemptView{
		QuizID:   a.quizID,
		State:    a.state.String(),
		Index:    a.index,
		Total:    len(a.questions),
		Selected: -1,
		Answered: len(a.answers),
	}
	if a.err != nil {
		v.Error = a.err.Error()
	}
	if len(a.questions) > 0 {
		q := a.questions[a.index]
		v.Question = &q
		if option, ok := a.answers[q.ID]; ok {
			v.Selected = option
		}
		v.Progress = float64(a.index+1) / float64(len(a.questions))
		v.HasPrevious = a.index > 0
		v.HasNext = a.index < len(a.questions)-1
	}
	v.CanSubmit = a.state == AttemptInProgress && len(a.answers) > 0
	if a.result != nil {
		r := *a.result
		v.Result = &r
		v.Percent = r.Percent()
	}
	return v
}

func (a *Attempt) question(id string) (domain.Question, bool) {
	for _, q := range a.questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (a *Attempt) live() bool {
	return a.session == nil || a.session.Current(a.epoch)
}

func (a *Attempt) fail(err error) {
	a.state = AttemptFailed
	a.err = err
}
