package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidResetToken indicates an expired or unknown password reset token.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	// ErrUnauthorized is returned when the backend rejects the session token.
	ErrUnauthorized = errors.New("session is no longer authorized")
	// ErrForbidden is returned when the session lacks the privilege for a call.
	ErrForbidden = errors.New("forbidden")
	// ErrNetwork indicates the backend could not be reached.
	ErrNetwork = errors.New("backend unreachable")
	// ErrNotFound is returned for unknown resources.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthenticated is returned when an operation needs a session and there is none.
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrQuizNotFound indicates the quiz could not be loaded or has no questions.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID is not part of the loaded set.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates an option index outside the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidState is returned when an attempt operation is not valid in the current state.
	ErrInvalidState = errors.New("operation not allowed in current attempt state")
	// ErrNothingAnswered is returned when submitting an attempt with no answers.
	ErrNothingAnswered = errors.New("answer at least one question before submitting")
	// ErrSessionEnded is returned when a response arrives after the session it belongs to ended.
	ErrSessionEnded = errors.New("session ended before the response arrived")
)

// ValidationError carries per-field messages for client-side form checks.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// APIError is a non-2xx backend response not covered by a sentinel.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// IsAuthError reports whether err belongs to the authentication class
// (bad credentials or reset token). These leave state untouched.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInvalidResetToken)
}

// IsAuthorizationError reports whether err means the session was rejected.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
