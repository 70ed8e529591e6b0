package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"quiz-client/internal/domain"
)

// DefaultInactivityTimeout is how long a session may sit idle before logout.
const DefaultInactivityTimeout = 15 * time.Minute

// TokenStore abstracts where the session is persisted (memory, file, Redis, Postgres).
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// RemoteLogout notifies the backend that a token is no longer in use.
type RemoteLogout interface {
	Logout(ctx context.Context, token string) error
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop() bool
}

// SessionConfig tunes the session manager; zero values pick defaults.
type SessionConfig struct {
	InactivityTimeout time.Duration
	// TeardownTimeout bounds the backend logout call made when a timer fires.
	TeardownTimeout time.Duration
	Notifier        Notifier
	Navigator       Navigator
}

// Snapshot is a point-in-time view of the session used for routing decisions.
type Snapshot struct {
	Loading       bool         `json:"loading"`
	Authenticated bool         `json:"authenticated"`
	Admin         bool         `json:"admin"`
	User          *domain.User `json:"user,omitempty"`
}

// SessionManager owns the authentication state of the client and the two
// auto-logout triggers (absolute expiry and inactivity).
type SessionManager struct {
	store             TokenStore
	remote            RemoteLogout
	notifier          Notifier
	navigator         Navigator
	inactivityTimeout time.Duration
	teardownTimeout   time.Duration
	now               func() time.Time
	afterFunc         func(time.Duration, func()) Timer

	initOnce sync.Once
	ready    chan struct{}

	// opMu serializes login/logout so storage writes never interleave.
	opMu sync.Mutex

	mu              sync.Mutex
	loading         bool
	session         *domain.Session
	epoch           uint64
	expiryTimer     Timer
	inactivityTimer Timer
}

func NewSessionManager(store TokenStore, remote RemoteLogout, cfg SessionConfig) *SessionManager {
	return NewSessionManagerWithClock(store, remote, cfg, time.Now, func(d time.Duration, f func()) Timer {
		return time.AfterFunc(d, f)
	})
}

// NewSessionManagerWithClock is for deterministic timer tests.
func NewSessionManagerWithClock(store TokenStore, remote RemoteLogout, cfg SessionConfig, now func() time.Time, afterFunc func(time.Duration, func()) Timer) *SessionManager {
	if cfg.InactivityTimeout == 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.TeardownTimeout == 0 {
		cfg.TeardownTimeout = 5 * time.Second
	}
	m := &SessionManager{
		store:             store,
		remote:            remote,
		notifier:          cfg.Notifier,
		navigator:         cfg.Navigator,
		inactivityTimeout: cfg.InactivityTimeout,
		teardownTimeout:   cfg.TeardownTimeout,
		now:               now,
		afterFunc:         afterFunc,
		ready:             make(chan struct{}),
		loading:           true,
	}
	if m.notifier == nil {
		m.notifier = discard{}
	}
	if m.navigator == nil {
		m.navigator = discard{}
	}
	return m
}

// Initialize restores a persisted session. Loading ends exactly once, after
// the check, whatever the outcome.
func (m *SessionManager) Initialize(ctx context.Context) error {
	var err error
	m.initOnce.Do(func() {
		err = m.restore(ctx)
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		close(m.ready)
	})
	return err
}

// Ready is closed once initialization has finished.
func (m *SessionManager) Ready() <-chan struct{} {
	return m.ready
}

func (m *SessionManager) restore(ctx context.Context) error {
	token, hasToken, err := m.store.Get(ctx, domain.KeyToken)
	if err != nil {
		return fmt.Errorf("read session token: %w", err)
	}
	raw, hasUser, err := m.store.Get(ctx, domain.KeyUser)
	if err != nil {
		return fmt.Errorf("read session user: %w", err)
	}
	hasToken = hasToken && token != ""
	hasUser = hasUser && raw != ""
	if !hasToken && !hasUser {
		return nil
	}
	if !hasToken || !hasUser {
		log.Printf("discarding incomplete session (token=%v user=%v)", hasToken, hasUser)
		return m.store.Delete(ctx, domain.SessionKeys...)
	}

	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		log.Printf("discarding unreadable session user: %v", err)
		return m.store.Delete(ctx, domain.SessionKeys...)
	}

	var expiry time.Time
	if rawExpiry, ok, err := m.store.Get(ctx, domain.KeyExpiry); err == nil && ok {
		if ms, err := strconv.ParseInt(rawExpiry, 10, 64); err == nil {
			expiry = time.UnixMilli(ms)
		}
	}

	m.mu.Lock()
	m.session = &domain.Session{Token: token, User: user}
	m.epoch++
	m.mu.Unlock()

	if !expiry.IsZero() {
		m.armExpiry(expiry)
	}
	return nil
}

// Login persists the token and user record and makes the session current.
// Timers are armed separately with ArmExpiry and StartInactivity.
func (m *SessionManager) Login(ctx context.Context, token string, user domain.User) error {
	if token == "" {
		return fmt.Errorf("login: empty token")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.store.Set(ctx, domain.KeyToken, token); err != nil {
		return fmt.Errorf("persist session token: %w", err)
	}
	if err := m.store.Set(ctx, domain.KeyUser, string(raw)); err != nil {
		if derr := m.store.Delete(ctx, domain.KeyToken); derr != nil {
			log.Printf("remove orphaned session token: %v", derr)
		}
		return fmt.Errorf("persist session user: %w", err)
	}
	if err := m.store.Delete(ctx, domain.KeyExpiry); err != nil {
		return fmt.Errorf("clear stale expiry: %w", err)
	}

	m.mu.Lock()
	m.stopTimersLocked()
	m.session = &domain.Session{Token: token, User: user}
	m.epoch++
	m.mu.Unlock()
	return nil
}

// Logout tells the backend (best effort), clears durable storage and drops
// the in-memory session. Calling it while logged out is harmless.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.logoutLocked(ctx)
}

func (m *SessionManager) logoutLocked(ctx context.Context) error {
	m.mu.Lock()
	var token string
	if m.session != nil {
		token = m.session.Token
		m.session = nil
		m.epoch++
	}
	m.stopTimersLocked()
	m.mu.Unlock()

	if token == "" {
		if stored, ok, err := m.store.Get(ctx, domain.KeyToken); err == nil && ok {
			token = stored
		}
	}
	if token != "" && m.remote != nil {
		if err := m.remote.Logout(ctx, token); err != nil {
			log.Printf("logout notification failed: %v", err)
		}
	}
	if err := m.store.Delete(ctx, domain.SessionKeys...); err != nil {
		return fmt.Errorf("clear session storage: %w", err)
	}
	return nil
}

// Invalidate drops the in-memory session without calling the backend. The
// gateway uses it after an unauthorized response has already cleared storage.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimersLocked()
	if m.session == nil {
		return
	}
	m.session = nil
	m.epoch++
	log.Printf("session invalidated by backend")
}

// ArmExpiry persists the absolute expiry and schedules logout for it. A
// previously armed expiry is replaced. An expiry in the past fires at once.
func (m *SessionManager) ArmExpiry(ctx context.Context, expiry time.Time) error {
	m.opMu.Lock()
	if !m.IsAuthenticated() {
		m.opMu.Unlock()
		return domain.ErrNotAuthenticated
	}
	if err := m.store.Set(ctx, domain.KeyExpiry, strconv.FormatInt(expiry.UnixMilli(), 10)); err != nil {
		m.opMu.Unlock()
		return fmt.Errorf("persist session expiry: %w", err)
	}
	m.opMu.Unlock()

	m.armExpiry(expiry)
	return nil
}

func (m *SessionManager) armExpiry(expiry time.Time) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	m.session.Expiry = expiry
	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}
	epoch := m.epoch
	delay := expiry.Sub(m.now())
	if delay > 0 {
		m.expiryTimer = m.afterFunc(delay, func() { m.expire(epoch) })
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.expire(epoch)
}

func (m *SessionManager) expire(epoch uint64) {
	m.endSession(epoch, Notification{
		Kind:    NoticeSessionExpired,
		Title:   "Session Expired",
		Message: "Please login again.",
	})
}

// StartInactivity arms the inactivity timer. It does nothing while logged out.
func (m *SessionManager) StartInactivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armInactivityLocked()
}

// Touch records user activity. Qualifying events re-arm the inactivity timer
// of a watched session; it reports whether the timer was reset.
func (m *SessionManager) Touch(event string) bool {
	if !IsActivityEvent(event) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.inactivityTimer == nil {
		return false
	}
	m.armInactivityLocked()
	return true
}

func (m *SessionManager) armInactivityLocked() {
	if m.inactivityTimer != nil {
		m.inactivityTimer.Stop()
		m.inactivityTimer = nil
	}
	if m.session == nil || m.inactivityTimeout <= 0 {
		return
	}
	epoch := m.epoch
	m.inactivityTimer = m.afterFunc(m.inactivityTimeout, func() {
		m.endSession(epoch, Notification{
			Kind:    NoticeInactivity,
			Title:   "Logged out",
			Message: "You've been logged out due to inactivity. Please log in again.",
		})
	})
}

// endSession logs out on behalf of a timer armed in epoch. Timers from an
// earlier session are ignored.
func (m *SessionManager) endSession(epoch uint64, note Notification) {
	m.opMu.Lock()
	if !m.Current(epoch) {
		m.opMu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.teardownTimeout)
	err := m.logoutLocked(ctx)
	cancel()
	m.opMu.Unlock()

	if err != nil {
		log.Printf("automatic logout: %v", err)
	}
	m.notifier.Notify(note)
	m.navigator.Navigate(RouteLogin)
}

func (m *SessionManager) stopTimersLocked() {
	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}
	if m.inactivityTimer != nil {
		m.inactivityTimer.Stop()
		m.inactivityTimer = nil
	}
}

// Close cancels both timers without ending the session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimersLocked()
}

// Snapshot returns the current routing-relevant state.
func (m *SessionManager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{Loading: m.loading}
	if m.session != nil {
		user := m.session.User
		snap.Authenticated = true
		snap.Admin = user.IsAdmin()
		snap.User = &user
	}
	return snap
}

func (m *SessionManager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

func (m *SessionManager) IsAdmin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.session.User.IsAdmin()
}

// User returns the logged-in user, if any.
func (m *SessionManager) User() (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.User{}, false
	}
	return m.session.User, true
}

// Expiry returns the armed absolute expiry, zero if none.
func (m *SessionManager) Expiry() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return time.Time{}
	}
	return m.session.Expiry
}

// Epoch identifies the current session; it changes on every login and logout.
func (m *SessionManager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Current reports whether epoch still names a live session. Callers use it to
// drop network responses that arrive after logout.
func (m *SessionManager) Current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.epoch == epoch
}

var activityEvents = map[string]struct{}{
	"pointermove": {},
	"mousemove":   {},
	"keydown":     {},
	"pointerdown": {},
	"mousedown":   {},
	"touchstart":  {},
}

// IsActivityEvent reports whether event resets the inactivity timer.
func IsActivityEvent(event string) bool {
	_, ok := activityEvents[event]
	return ok
}
