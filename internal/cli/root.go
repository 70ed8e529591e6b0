package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	opts := &options{}
	cmd := &cobra.Command{
		Use:          "quiz-client",
		Short:        "Command-line client for the quiz platform",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "backend base URL (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print views as JSON")

	cmd.AddCommand(
		newLoginCmd(opts),
		newSignupCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newResetPasswordCmd(opts),
		newDashboardCmd(opts),
		newQuizzesCmd(opts),
		newTakeCmd(opts),
		newAttemptsCmd(opts),
		newLeaderboardCmd(opts),
		newProfileCmd(opts),
		newAdminCmd(opts),
		NewServeCmd(opts),
		NewMigrateCmd(&opts.configPath),
	)
	return cmd
}
