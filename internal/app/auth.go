package app

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quiz-client/internal/domain"
)

// AuthBackend is the subset of the gateway used by the auth views.
type AuthBackend interface {
	Login(ctx context.Context, username, password string) (domain.AuthResponse, error)
	Signup(ctx context.Context, username, email, password string) (domain.AuthResponse, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Authenticator composes the gateway with the session manager: it logs in,
// arms the expiry and inactivity triggers and picks the landing route.
type Authenticator struct {
	backend  AuthBackend
	session  *SessionManager
	notifier Notifier
}

func NewAuthenticator(backend AuthBackend, session *SessionManager, notifier Notifier) *Authenticator {
	if notifier == nil {
		notifier = discard{}
	}
	return &Authenticator{backend: backend, session: session, notifier: notifier}
}

// Login validates the form, authenticates and returns the landing route.
func (a *Authenticator) Login(ctx context.Context, form LoginForm) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}
	resp, err := a.backend.Login(ctx, form.UsernameOrEmail, form.Password)
	if err != nil {
		return "", err
	}
	route, err := a.establish(ctx, resp)
	if err != nil {
		return "", err
	}
	a.notifier.Notify(Notification{Kind: NoticeInfo, Title: "Success", Message: "Logged in successfully!"})
	return route, nil
}

// Signup registers a new account and logs it in.
func (a *Authenticator) Signup(ctx context.Context, form SignupForm) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}
	resp, err := a.backend.Signup(ctx, form.Username, form.Email, form.Password)
	if err != nil {
		return "", err
	}
	route, err := a.establish(ctx, resp)
	if err != nil {
		return "", err
	}
	a.notifier.Notify(Notification{Kind: NoticeInfo, Title: "Welcome", Message: "Account created successfully!"})
	return route, nil
}

func (a *Authenticator) establish(ctx context.Context, resp domain.AuthResponse) (string, error) {
	if err := a.session.Login(ctx, resp.Token, resp.User); err != nil {
		return "", err
	}
	if expiry, ok := TokenExpiry(resp.Token); ok {
		if err := a.session.ArmExpiry(ctx, expiry); err != nil {
			return "", err
		}
	}
	a.session.StartInactivity()
	return HomeFor(resp.User), nil
}

// Logout ends the session and announces it.
func (a *Authenticator) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.notifier.Notify(Notification{Kind: NoticeInfo, Title: "Logged out", Message: "You have been logged out."})
	return nil
}

// RequestReset asks the backend to email a reset link.
func (a *Authenticator) RequestReset(ctx context.Context, form ResetRequestForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return a.backend.RequestPasswordReset(ctx, form.Email)
}

// ConfirmReset sets a new password using the emailed token.
func (a *Authenticator) ConfirmReset(ctx context.Context, form ResetConfirmForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return a.backend.ResetPassword(ctx, form.Token, form.NewPassword)
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature;
// the backend remains the authority on validity.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
