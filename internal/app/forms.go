package app

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"quiz-client/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// LoginForm is the login view's input.
type LoginForm struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

func (f LoginForm) Validate() error {
	return check(f, map[string]string{
		"usernameOrEmail.required": "Username or email is required",
		"password.required":        "Password is required",
	})
}

// SignupForm is the registration view's input.
type SignupForm struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

func (f SignupForm) Validate() error {
	return check(f, map[string]string{
		"username.required":        "Username is required",
		"email.required":           "Email is required",
		"email.email":              "Invalid email address",
		"password.required":        "Password is required",
		"password.min":             "Password must be at least 6 characters",
		"confirmPassword.required": "Please confirm your password",
		"confirmPassword.eqfield":  "Passwords do not match",
	})
}

// ResetRequestForm asks for a password reset email.
type ResetRequestForm struct {
	Email string `json:"email" validate:"required,email"`
}

func (f ResetRequestForm) Validate() error {
	return check(f, map[string]string{
		"email.required": "Email is required",
		"email.email":    "Invalid email address",
	})
}

// ResetConfirmForm sets a new password with the token from the reset email.
type ResetConfirmForm struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

func (f ResetConfirmForm) Validate() error {
	return check(f, map[string]string{
		"token.required":           "Reset token is missing",
		"newPassword.required":     "Password is required",
		"newPassword.min":          "Password must be at least 6 characters",
		"confirmPassword.required": "Please confirm your password",
		"confirmPassword.eqfield":  "Passwords do not match",
	})
}

// QuizForm creates a quiz.
type QuizForm struct {
	Subject string `json:"subject" validate:"required"`
}

func (f QuizForm) Validate() error {
	return check(f, map[string]string{
		"subject.required": "Subject is required",
	})
}

// QuestionForm authors a question; CorrectIndex points into Options.
type QuestionForm struct {
	QuestionText string   `json:"questionText" validate:"required"`
	Options      []string `json:"options" validate:"min=2,max=4,dive,required"`
	CorrectIndex int      `json:"correctIndex" validate:"gte=0"`
}

func (f QuestionForm) Validate() error {
	err := check(f, map[string]string{
		"questionText.required": "Question text is required",
		"options.min":           "Provide at least 2 options",
		"options.max":           "Provide at most 4 options",
		"options.required":      "Options cannot be empty",
		"correctIndex.gte":      "Select the correct answer",
	})
	if err != nil {
		return err
	}
	if f.CorrectIndex >= len(f.Options) {
		return &domain.ValidationError{Fields: map[string]string{"correctIndex": "Select the correct answer"}}
	}
	return nil
}

// Question converts the form to the backend's authoring shape.
func (f QuestionForm) Question() domain.AdminQuestion {
	opts := make([]string, 4)
	copy(opts, f.Options)
	return domain.AdminQuestion{
		QuestionText:  strings.TrimSpace(f.QuestionText),
		OptionA:       opts[0],
		OptionB:       opts[1],
		OptionC:       opts[2],
		OptionD:       opts[3],
		CorrectAnswer: domain.OptionLetter(f.CorrectIndex),
	}
}

var indexSuffix = regexp.MustCompile(`\[\d+\]$`)

func check(form any, messages map[string]string) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := indexSuffix.ReplaceAllString(fe.Field(), "")
		msg, ok := messages[field+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %s check", fe.Tag())
		}
		if _, seen := fields[field]; !seen {
			fields[field] = msg
		}
	}
	return &domain.ValidationError{Fields: fields}
}
