package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
)

func newAdminCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage quizzes, questions and users (administrators only)",
	}
	cmd.AddCommand(
		newAdminQuizzesCmd(opts),
		newAdminAddQuizCmd(opts),
		newAdminDeleteQuizCmd(opts),
		newAdminShowQuizCmd(opts),
		newAdminQuestionCmd(opts, false),
		newAdminQuestionCmd(opts, true),
		newAdminDeleteQuestionCmd(opts),
		newAdminUsersCmd(opts),
		newAdminDeleteUserCmd(opts),
	)
	return cmd
}

// runAdmin is run with the admin route guard applied.
func runAdmin(cmd *cobra.Command, opts *options, fn func(ctx context.Context, c *client) error) error {
	return run(cmd, opts, func(ctx context.Context, c *client) error {
		if err := c.require(app.RouteAdmin); err != nil {
			return err
		}
		return fn(ctx, c)
	})
}

func newAdminQuizzesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quizzes",
		Short: "List all quizzes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, opts, func(ctx context.Context, c *client) error {
				view, err := c.admin.Overview(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), view.Quizzes)
				}
				w := cmd.OutOrStdout()
				if len(view.Quizzes) == 0 {
					fmt.Fprintln(w, "No quizzes yet.")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSUBJECT")
				for _, q := range view.Quizzes {
					fmt.Fprintf(tw, "%s\t%s\n", q.ID, q.Subject)
				}
				tw.Flush()
				fmt.Fprintf(w, "\n%d users registered\n", len(view.Users))
				return nil
			})
		},
	}
}

func newAdminAddQuizCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add-quiz <subject>",
		Short: "Create a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, opts, func(ctx context.Context, c *client) error {
				quiz, err := c.admin.CreateQuiz(ctx, app.QuizForm{Subject: args[0]})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created quiz %s (%s)\n", quiz.ID, quiz.Subject)
				return nil
			})
		},
	}
}

func newAdminDeleteQuizCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-quiz <quizId>",
		Short: "Delete a quiz and its questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.admin.DeleteQuiz(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted quiz %s\n", args[0])
				return nil
			})
		},
	}
}

func newAdminShowQuizCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show-quiz <quizId>",
		Short: "Show a quiz with its questions and answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, opts, func(ctx context.Context, c *client) error {
				detail, err := c.admin.Quiz(ctx, args[0])
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), detail)
				}
				printQuizDetail(cmd.OutOrStdout(), detail)
				return nil
			})
		},
	}
}

func printQuizDetail(w io.Writer, detail domain.QuizDetail) {
	fmt.Fprintf(w, "%s (%s), %d questions\n", detail.Subject, detail.ID, detail.QuestionCount)
	for i, q := range detail.Questions {
		fmt.Fprintf(w, "\n%d. [%s] %s\n", i+1, q.ID, q.QuestionText)
		for _, opt := range q.Options() {
			marker := " "
			if strings.EqualFold(opt.Letter, q.CorrectAnswer) {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %s) %s\n", marker, opt.Letter, opt.Text)
		}
	}
}

// newAdminQuestionCmd builds add-question, or update-question when update is set.
func newAdminQuestionCmd(opts *options, update bool) *cobra.Command {
	var (
		text    string
		choices []string
		correct string
	)
	use, short, nargs := "add-question <quizId>", "Add a question to a quiz", 1
	if update {
		use, short, nargs = "update-question <quizId> <questionId>", "Replace a question", 2
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := app.QuestionForm{
				QuestionText: text,
				Options:      choices,
				CorrectIndex: letterIndex(correct),
			}
			return runAdmin(cmd, opts, func(ctx context.Context, c *client) error {
				var (
					q   domain.AdminQuestion
					err error
				)
				if update {
					q, err = c.admin.UpdateQuestion(ctx, args[0], args[1], form)
				} else {
					q, err = c.admin.AddQuestion(ctx, args[0], form)
				}
				if err != nil {
					return err
				}
				verb := "Added"
				if update {
					verb = "Updated"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s question %s\n", verb, q.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "question text")
	cmd.Flags().StringArrayVarP(&choices, "option", "o", nil, "answer option, in order (2 to 4)")
	cmd.Flags().StringVarP(&correct, "correct", "c", "", "letter of the correct option")
	return cmd
}

// letterIndex maps A, B, C... to 0, 1, 2...; anything else yields -1.
func letterIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return -1
	}
	return int(letter[0] - 'A')
}

func newAdminDeleteQuestionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-question <quizId> <questionId>",
		Short: "Remove a question from a quiz",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.admin.DeleteQuestion(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted question %s\n", args[1])
				return nil
			})
		},
	}
}

func newAdminUsersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, opts, func(ctx context.Context, c *client) error {
				users, err := c.admin.Users(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), users)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLES")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, strings.Join(u.Roles, ","))
				}
				return tw.Flush()
			})
		},
	}
}

func newAdminDeleteUserCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <userId>",
		Short: "Delete a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, opts, func(ctx context.Context, c *client) error {
				if err := c.admin.DeleteUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])
				return nil
			})
		},
	}
}
