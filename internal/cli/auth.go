package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quiz-client/internal/app"
)

// run builds a client for the command, calls fn and tears the client down.
func run(cmd *cobra.Command, opts *options, fn func(ctx context.Context, c *client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := newClient(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer c.close()
	return fn(ctx, c)
}

// prompter reads answers from the command's stdin, one line at a time.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// fill prompts for every empty value.
func (p *prompter) fill(fields ...promptField) error {
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		v, err := p.ask(f.label)
		if err != nil {
			return err
		}
		*f.value = v
	}
	return nil
}

type promptField struct {
	label string
	value *string
}

func newLoginCmd(opts *options) *cobra.Command {
	var form app.LoginForm
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with username or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newPrompter(cmd).fill(
				promptField{"Username or email", &form.UsernameOrEmail},
				promptField{"Password", &form.Password},
			); err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				route, err := c.auth.Login(ctx, form)
				if err != nil {
					return err
				}
				return printLanding(cmd.OutOrStdout(), c, route)
			})
		},
	}
	cmd.Flags().StringVarP(&form.UsernameOrEmail, "username", "u", "", "username or email")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newSignupCmd(opts *options) *cobra.Command {
	var form app.SignupForm
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newPrompter(cmd).fill(
				promptField{"Username", &form.Username},
				promptField{"Email", &form.Email},
				promptField{"Password", &form.Password},
				promptField{"Confirm password", &form.ConfirmPassword},
			); err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				route, err := c.auth.Signup(ctx, form)
				if err != nil {
					return err
				}
				return printLanding(cmd.OutOrStdout(), c, route)
			})
		},
	}
	cmd.Flags().StringVarP(&form.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&form.Email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "password")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm", "", "password confirmation")
	return cmd
}

func printLanding(w io.Writer, c *client, route string) error {
	user, _ := c.session.User()
	fmt.Fprintf(w, "Logged in as %s\n", user.Username)
	if exp := c.session.Expiry(); !exp.IsZero() {
		fmt.Fprintf(w, "Session expires %s\n", exp.Local().Format(time.RFC1123))
	}
	switch route {
	case app.RouteAdmin:
		fmt.Fprintln(w, "Next: quiz-client admin quizzes")
	case app.RouteDashboard:
		fmt.Fprintln(w, "Next: quiz-client dashboard")
	default:
		fmt.Fprintln(w, "This account has no role the client recognises.")
	}
	return nil
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				return c.auth.Logout(ctx)
			})
		},
	}
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				snap := c.session.Snapshot()
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), snap)
				}
				if snap.User == nil {
					return errLoginRequired
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s <%s>\n", snap.User.Username, snap.User.Email)
				fmt.Fprintf(w, "Roles: %s\n", strings.Join(snap.User.Roles, ", "))
				if exp := c.session.Expiry(); !exp.IsZero() {
					fmt.Fprintf(w, "Expires: %s\n", exp.Local().Format(time.RFC1123))
				}
				return nil
			})
		},
	}
}

func newResetPasswordCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Request or complete a password reset",
	}

	var request app.ResetRequestForm
	requestCmd := &cobra.Command{
		Use:   "request",
		Short: "Email a password reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newPrompter(cmd).fill(promptField{"Email", &request.Email}); err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.auth.RequestReset(ctx, request); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password reset link sent to your email")
				return nil
			})
		},
	}
	requestCmd.Flags().StringVarP(&request.Email, "email", "e", "", "account email")

	var confirm app.ResetConfirmForm
	confirmCmd := &cobra.Command{
		Use:   "confirm",
		Short: "Set a new password with the emailed token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newPrompter(cmd).fill(
				promptField{"Reset token", &confirm.Token},
				promptField{"New password", &confirm.NewPassword},
				promptField{"Confirm password", &confirm.ConfirmPassword},
			); err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.auth.ConfirmReset(ctx, confirm); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password updated; log in with the new password")
				return nil
			})
		},
	}
	confirmCmd.Flags().StringVar(&confirm.Token, "token", "", "reset token from the email")
	confirmCmd.Flags().StringVarP(&confirm.NewPassword, "password", "p", "", "new password")
	confirmCmd.Flags().StringVar(&confirm.ConfirmPassword, "confirm", "", "new password confirmation")

	cmd.AddCommand(requestCmd, confirmCmd)
	return cmd
}
