package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/policytest"
	"github.com/opendataloader-project/beneissue/internal/state"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the repository's triage and analysis policy cases",
	Long: `Runs the JSON cases in .claude/skills/beneissue/tests/cases against the
live triage and analysis stages and reports which expectations hold.
Exits non-zero when any case fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		caseFilter, _ := cmd.Flags().GetString("case")
		stage, _ := cmd.Flags().GetString("stage")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if stage != "" && stage != policytest.StageTriage && stage != policytest.StageAnalyze {
			return fmt.Errorf("invalid --stage %q: want triage or analyze", stage)
		}

		dir := filepath.Join(projectRoot, policytest.CasesDir)
		cases, err := policytest.Load(dir)
		if err != nil {
			return err
		}

		runner := &policytest.Runner{}
		if !dryRun {
			rt, cleanup, err := newRuntime(cmd, runtimeOpts{model: true})
			if err != nil {
				return err
			}
			defer cleanup()
			runner.Triage = rt.deps.Triage
			runner.Analyze = analyzeLocally(rt.deps.Analyze)
		}

		rep, err := runner.Run(cmd.Context(), cases, policytest.Options{Case: caseFilter, Stage: stage, DryRun: dryRun})
		if err != nil {
			return fmt.Errorf("%w in %s", err, dir)
		}
		rep.Print(cmd.OutOrStdout())
		if !rep.OK() {
			return fmt.Errorf("%d test case(s) failed", rep.Failed)
		}
		return nil
	},
}

// analyzeLocally points the synthetic case state at the local checkout so
// the agent reads this repository instead of cloning the placeholder repo.
func analyzeLocally(fn policytest.StageFunc) policytest.StageFunc {
	return func(ctx context.Context, s state.IssueState) (state.Update, error) {
		root := projectRoot
		if root == "" {
			root = "."
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return state.Update{}, err
		}
		s.ProjectRoot = abs
		return fn(ctx, s)
	}
}

func init() {
	testCmd.Flags().String("case", "", "run only cases whose file name contains this")
	testCmd.Flags().String("stage", "", "run only triage or analyze cases")
	testCmd.Flags().Bool("dry-run", false, "validate the case files without calling the model")
}
