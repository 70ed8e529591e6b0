package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
)

const dateLayout = "2006-01-02 15:04"

func newDashboardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show available quizzes and recent attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.require(app.RouteDashboard); err != nil {
					return err
				}
				view, err := c.views.Dashboard(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), view)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s\n\n", view.Greeting)
				fmt.Fprintf(w, "Attempts: %d   Average: %d%%\n\n", view.AttemptCount, view.AveragePercent)
				printQuizzes(w, view.Quizzes)
				if len(view.Recent) > 0 {
					fmt.Fprintln(w)
					printAttempts(w, view.Recent)
				}
				return nil
			})
		},
	}
}

func newQuizzesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quizzes",
		Short: "List available quizzes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.require(app.RouteDashboard); err != nil {
					return err
				}
				quizzes, err := c.views.Quizzes(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), quizzes)
				}
				printQuizzes(cmd.OutOrStdout(), quizzes)
				return nil
			})
		},
	}
}

func newAttemptsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "attempts",
		Short: "List your past attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.require(app.RouteDashboard); err != nil {
					return err
				}
				attempts, err := c.views.Attempts(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), attempts)
				}
				printAttempts(cmd.OutOrStdout(), attempts)
				return nil
			})
		},
	}
}

func newLeaderboardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard <quizId>",
		Short: "Show the leaderboard of a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.require(app.RouteLeaderboard); err != nil {
					return err
				}
				view, err := c.views.Leaderboard(ctx, args[0])
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), view)
				}
				printLeaderboard(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
}

func newProfileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show your account and statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.require(app.RouteProfile); err != nil {
					return err
				}
				view, err := c.views.Profile(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), view)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Username: %s\nEmail:    %s\nRoles:    %s\n",
					view.User.Username, view.User.Email, strings.Join(view.User.Roles, ", "))
				if !view.Admin {
					fmt.Fprintf(w, "\nAttempts: %d\nQuizzes taken: %d\nBest: %d%%\nAverage: %d%%\n",
						view.AttemptCount, view.QuizzesTaken, view.BestPercent, view.AveragePercent)
				}
				return nil
			})
		},
	}
}

func newTakeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "take <quizId>",
		Short: "Take a quiz interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.require(app.RouteQuiz); err != nil {
					return err
				}
				c.session.StartInactivity()

				attempt := app.NewAttempt(args[0], c.gateway, c.session)
				defer attempt.Close()
				if err := attempt.Load(ctx); err != nil {
					return err
				}
				t := &taker{
					prompt:  newPrompter(cmd),
					session: c.session,
					views:   c.views,
					attempt: attempt,
				}
				return t.loop(ctx)
			})
		},
	}
}

// taker drives an attempt from line-based input. Every line read counts as
// keyboard activity.
type taker struct {
	prompt  *prompter
	session *app.SessionManager
	views   *app.Views
	attempt *app.Attempt
}

func (t *taker) loop(ctx context.Context) error {
	w := t.prompt.out
	for {
		view := t.attempt.View()
		var label string
		switch view.State {
		case app.AttemptCompleted.String():
			fmt.Fprintf(w, "\nQuiz complete: %d / %d (%d%%)\n", view.Result.Score, view.Result.Total, view.Percent)
			label = "[r]etake, [l]eaderboard, [q]uit"
		case app.AttemptInProgress.String():
			renderQuestion(w, view)
			label = "Answer (A-D), [n]ext, [p]revious, [s]ubmit, [q]uit"
		default:
			return fmt.Errorf("quiz %s: %s", view.QuizID, view.Error)
		}

		line, err := t.prompt.ask(label)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !t.session.IsAuthenticated() {
			return errLoginRequired
		}
		t.session.Touch("keydown")

		done, err := t.handle(ctx, view, strings.ToLower(line))
		if errors.Is(err, domain.ErrInvalidState) {
			fmt.Fprintln(w, "Not available right now.")
			continue
		}
		if done || err != nil {
			return err
		}
	}
}

func (t *taker) handle(ctx context.Context, view app.AttemptView, input string) (bool, error) {
	w := t.prompt.out
	switch input {
	case "q", "quit":
		return true, nil
	case "n", "next":
		return false, t.attempt.Next()
	case "p", "prev", "previous":
		return false, t.attempt.Previous()
	case "s", "submit":
		_, err := t.attempt.Submit(ctx)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNothingAnswered):
			fmt.Fprintln(w, "Answer at least one question before submitting.")
		case errors.Is(err, domain.ErrSessionEnded), domain.IsAuthorizationError(err):
			return true, err
		default:
			fmt.Fprintf(w, "Failed to submit quiz: %v\n", err)
		}
		return false, nil
	case "r", "retake":
		return false, t.attempt.Retake()
	case "l", "leaderboard":
		board, err := t.views.Leaderboard(ctx, view.QuizID)
		if err != nil {
			fmt.Fprintf(w, "Failed to load leaderboard: %v\n", err)
			return false, nil
		}
		printLeaderboard(w, board)
		return false, nil
	}

	if len(input) == 1 && view.Question != nil {
		option := view.Question.OptionIndex(input)
		if err := t.attempt.SelectAnswer(view.Question.ID, option); err != nil {
			fmt.Fprintf(w, "Invalid choice %q\n", strings.ToUpper(input))
		}
		return false, nil
	}
	fmt.Fprintf(w, "Unknown command %q\n", input)
	return false, nil
}

func renderQuestion(w io.Writer, view app.AttemptView) {
	const width = 20
	filled := int(view.Progress * width)
	fmt.Fprintf(w, "\nQuestion %d of %d [%s%s] %d answered\n",
		view.Index+1, view.Total,
		strings.Repeat("#", filled), strings.Repeat("-", width-filled),
		view.Answered)
	fmt.Fprintln(w, view.Question.Prompt)
	for i, opt := range view.Question.Options {
		marker := " "
		if i == view.Selected {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %s) %s\n", marker, view.Question.Letter(i), opt)
	}
}

func printQuizzes(w io.Writer, quizzes []domain.QuizSummary) {
	if len(quizzes) == 0 {
		fmt.Fprintln(w, "No quizzes available yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tQUESTIONS")
	for _, q := range quizzes {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", q.ID, q.Subject, q.QuestionCount)
	}
	tw.Flush()
}

func printAttempts(w io.Writer, attempts []app.RecentAttempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(w, "No attempts yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUIZ\tSCORE\tPERCENT\tDATE")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%d/%d\t%d%%\t%s\n", a.Subject, a.Score, a.Total, a.Percent, formatDate(a.AttemptedAt))
	}
	tw.Flush()
}

func printLeaderboard(w io.Writer, view app.LeaderboardView) {
	if len(view.Rows) == 0 {
		fmt.Fprintln(w, "No attempts yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSER\tSCORE\tPERCENT\tCOMPLETED")
	for _, r := range view.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%d%%\t%s\n", r.Rank, r.Username, r.Score, r.Total, r.Percent, formatDate(r.CompletedAt))
	}
	tw.Flush()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(dateLayout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
