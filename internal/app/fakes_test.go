package app_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
	"quiz-client/internal/infra/memory"
)

// fakeClock runs due timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	// leaky timers keep firing after Stop, like a callback already in flight
	leaky bool
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) app.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	if !t.clock.leaky {
		t.stopped = true
	}
	return active
}

// Advance moves time forward, firing timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// recorder captures notifications and navigations.
type recorder struct {
	mu     sync.Mutex
	notes  []app.Notification
	routes []string
}

func (r *recorder) Notify(n app.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) Navigate(to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, to)
}

func (r *recorder) snapshot() ([]app.Notification, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]app.Notification(nil), r.notes...), append([]string(nil), r.routes...)
}

type fakeRemote struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (f *fakeRemote) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return f.err
}

func (f *fakeRemote) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

type harness struct {
	clock   *fakeClock
	store   *memory.TokenStore
	remote  *fakeRemote
	events  *recorder
	session *app.SessionManager
}

func newHarness() *harness {
	h := &harness{
		clock:  newFakeClock(),
		store:  memory.NewTokenStore(),
		remote: &fakeRemote{},
		events: &recorder{},
	}
	h.session = app.NewSessionManagerWithClock(h.store, h.remote, app.SessionConfig{
		Notifier:  h.events,
		Navigator: h.events,
	}, h.clock.Now, h.clock.AfterFunc)
	return h
}

// loggedIn returns an initialized harness with user logged in.
func loggedIn(user domain.User) *harness {
	h := newHarness()
	ctx := context.Background()
	if err := h.session.Initialize(ctx); err != nil {
		panic(err)
	}
	if err := h.session.Login(ctx, "tok-"+user.Username, user); err != nil {
		panic(err)
	}
	return h
}

func alice() domain.User {
	return domain.User{ID: "u1", Username: "alice", Email: "alice@example.com", Roles: []string{"ROLE_USER"}}
}

func root() domain.User {
	return domain.User{ID: "a1", Username: "root", Email: "root@example.com", Roles: []string{"ROLE_ADMIN"}}
}

// fakeQuizzes is a QuizSource that grades against a fixed key.
type fakeQuizzes struct {
	mu        sync.Mutex
	questions domain.QuestionSet
	key       []string
	loadErr   error
	submitErr error
	loads     int
	submitted [][]string
	// score, when set, replaces the graded score
	score *int
	// during runs inside a call, before it returns
	during func()
}

func (f *fakeQuizzes) QuizQuestions(_ context.Context, _ string) (domain.QuestionSet, error) {
	f.mu.Lock()
	f.loads++
	during := f.during
	f.mu.Unlock()
	if during != nil {
		during()
	}
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.questions, nil
}

func (f *fakeQuizzes) SubmitAnswers(_ context.Context, _ string, answers []string) (int, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, append([]string(nil), answers...))
	during := f.during
	err := f.submitErr
	forced := f.score
	f.mu.Unlock()
	if during != nil {
		during()
	}
	if err != nil {
		return 0, err
	}
	if forced != nil {
		return *forced, nil
	}
	score := 0
	for i, a := range answers {
		if i < len(f.key) && a == f.key[i] {
			score++
		}
	}
	return score, nil
}

func twoQuestions() domain.QuestionSet {
	return domain.QuestionSet{
		{ID: "q1", Prompt: "2 + 2?", Options: []string{"3", "5", "4", "22"}},
		{ID: "q2", Prompt: "3 * 3?", Options: []string{"6", "9"}},
	}
}
