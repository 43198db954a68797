package graph

import "github.com/opendataloader-project/beneissue/internal/state"

// Node names a stage of the workflow.
type Node string

const (
	Intake      Node = "intake"
	Triage      Node = "triage"
	Analyze     Node = "analyze"
	Fix         Node = "fix"
	PostComment Node = "post_comment"
	ApplyLabels Node = "apply_labels"
	End         Node = "__end__"
)

// Kind selects one of the fixed pipeline topologies.
type Kind string

const (
	KindTriage  Kind = "triage"
	KindAnalyze Kind = "analyze"
	KindFix     Kind = "fix"
	KindFull    Kind = "full"
)

// Policy decides what happens to an auto_eligible issue.
type Policy string

const (
	// PolicyApproval fixes only when the run was started by a fix command.
	PolicyApproval Policy = "approval"
	// PolicyAuto fixes every auto_eligible issue.
	PolicyAuto Policy = "auto"
	// policyHold never fixes; used by the analyze pipeline.
	policyHold Policy = "hold"
)

// CommandFix is the IssueState.Command value that approves a fix.
const CommandFix = "fix"

// RouteAfterIntake stops the run when the daily limit is exhausted.
func RouteAfterIntake(s state.IssueState) Node {
	if s.DailyLimitExceeded {
		return End
	}
	return Triage
}

// RouteAfterTriage sends valid issues to analysis and everything else,
// including unknown decisions, straight to labelling.
func RouteAfterTriage(s state.IssueState) Node {
	if s.TriageDecision == state.TriageValid {
		return Analyze
	}
	return ApplyLabels
}

// RouteAfterAnalyze routes on the fix decision. Unknown or missing
// decisions go to labelling.
func RouteAfterAnalyze(s state.IssueState, policy Policy) Node {
	switch s.FixDecision {
	case state.FixAutoEligible:
		switch {
		case policy == PolicyAuto:
			return Fix
		case policy == PolicyApproval && s.Command == CommandFix:
			return Fix
		}
		return PostComment
	case state.FixManualRequired, state.FixCommentOnly:
		return PostComment
	default:
		return ApplyLabels
	}
}

// RouteAfterFix labels a successful fix and explains a failed or missing one.
func RouteAfterFix(s state.IssueState) Node {
	if s.FixSucceeded() {
		return ApplyLabels
	}
	return PostComment
}
