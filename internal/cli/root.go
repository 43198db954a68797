package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/telemetry"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

// projectRoot is the local checkout holding the config, prompts and test
// cases. When set it is also analysed in place instead of a fresh clone.
var projectRoot string

var rootCmd = &cobra.Command{
	Use:   "beneissue",
	Short: "AI-powered GitHub issue automation",
	Long: `beneissue triages, analyses and fixes GitHub issues.

Each run walks a fixed workflow graph (intake, triage, analyze, fix,
post_comment, apply_labels) and checkpoints the issue state after every
node, so an interrupted or approved run picks up where it left off.

Configuration is read from .claude/skills/beneissue/beneissue-config.yml
and the environment (a .env file in the working directory is loaded first).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadDotEnv(cmd)
		return telemetry.Init(cmd.Context(), "beneissue", version)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(context.Background())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// loadDotEnv loads .env without overriding variables already set.
func loadDotEnv(cmd *cobra.Command) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: .env: %v\n", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project-root", "", "local checkout with the beneissue config (default: current directory)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(triageCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
