package state

// Update is a partial IssueState returned by a node. A nil field means
// "not written by this node" and leaves the running value untouched.
type Update struct {
	IssueTitle         *string
	IssueBody          *string
	IssueLabels        []string
	IssueAuthor        *string
	ExistingIssues     []ExistingIssue
	CodebaseStructure  *string
	DailyRunCount      *int
	DailyLimitExceeded *bool

	TriageDecision  *TriageDecision
	TriageReason    *string
	DuplicateOf     *int
	TriageQuestions []string

	AnalysisSummary *string
	AffectedFiles   []string
	Score           *ScoreBreakdown
	Priority        *Priority
	StoryPoints     *int
	FixDecision     *FixDecision
	FixReason       *string
	FixApproach     *string
	CommentDraft    *string
	Assignee        *string

	FixSuccess *bool
	PRURL      *string
	FixError   *string

	LabelsToAdd    []string
	LabelsToRemove []string
	CommentToPost  *string

	// Token counts are added to the running totals, not overwritten.
	InputTokens  int64
	OutputTokens int64
}

// Ptr returns a pointer to v. Used to build Update literals.
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether u writes nothing.
func (u Update) IsEmpty() bool {
	return u.Fields() == nil && u.InputTokens == 0 && u.OutputTokens == 0
}

// Merge returns a copy of s with every field set on u overwritten.
// Slices are replaced wholesale (last writer wins per key); a nil slice
// on u is "not set", an empty non-nil slice overwrites with empty.
func (s IssueState) Merge(u Update) IssueState {
	out := s.Clone()

	setStr(&out.IssueTitle, u.IssueTitle)
	setStr(&out.IssueBody, u.IssueBody)
	setSlice(&out.IssueLabels, u.IssueLabels)
	setStr(&out.IssueAuthor, u.IssueAuthor)
	if u.ExistingIssues != nil {
		out.ExistingIssues = append([]ExistingIssue{}, u.ExistingIssues...)
	}
	setStr(&out.CodebaseStructure, u.CodebaseStructure)
	if u.DailyRunCount != nil {
		out.DailyRunCount = *u.DailyRunCount
	}
	if u.DailyLimitExceeded != nil {
		out.DailyLimitExceeded = *u.DailyLimitExceeded
	}

	if u.TriageDecision != nil {
		out.TriageDecision = *u.TriageDecision
	}
	setStr(&out.TriageReason, u.TriageReason)
	if u.DuplicateOf != nil {
		out.DuplicateOf = *u.DuplicateOf
	}
	setSlice(&out.TriageQuestions, u.TriageQuestions)

	setStr(&out.AnalysisSummary, u.AnalysisSummary)
	setSlice(&out.AffectedFiles, u.AffectedFiles)
	if u.Score != nil {
		score := *u.Score
		out.Score = &score
	}
	if u.Priority != nil {
		out.Priority = *u.Priority
	}
	if u.StoryPoints != nil {
		out.StoryPoints = *u.StoryPoints
	}
	if u.FixDecision != nil {
		out.FixDecision = *u.FixDecision
	}
	setStr(&out.FixReason, u.FixReason)
	setStr(&out.FixApproach, u.FixApproach)
	setStr(&out.CommentDraft, u.CommentDraft)
	setStr(&out.Assignee, u.Assignee)

	if u.FixSuccess != nil {
		ok := *u.FixSuccess
		out.FixSuccess = &ok
	}
	setStr(&out.PRURL, u.PRURL)
	setStr(&out.FixError, u.FixError)

	setSlice(&out.LabelsToAdd, u.LabelsToAdd)
	setSlice(&out.LabelsToRemove, u.LabelsToRemove)
	setStr(&out.CommentToPost, u.CommentToPost)

	out.InputTokens += u.InputTokens
	out.OutputTokens += u.OutputTokens
	return out
}

// Fields lists the state keys u writes, in declaration order. Used for logging.
func (u Update) Fields() []string {
	var f []string
	add := func(set bool, name string) {
		if set {
			f = append(f, name)
		}
	}
	add(u.IssueTitle != nil, "issue_title")
	add(u.IssueBody != nil, "issue_body")
	add(u.IssueLabels != nil, "issue_labels")
	add(u.IssueAuthor != nil, "issue_author")
	add(u.ExistingIssues != nil, "existing_issues")
	add(u.CodebaseStructure != nil, "codebase_structure")
	add(u.DailyRunCount != nil, "daily_run_count")
	add(u.DailyLimitExceeded != nil, "daily_limit_exceeded")
	add(u.TriageDecision != nil, "triage_decision")
	add(u.TriageReason != nil, "triage_reason")
	add(u.DuplicateOf != nil, "duplicate_of")
	add(u.TriageQuestions != nil, "triage_questions")
	add(u.AnalysisSummary != nil, "analysis_summary")
	add(u.AffectedFiles != nil, "affected_files")
	add(u.Score != nil, "score")
	add(u.Priority != nil, "priority")
	add(u.StoryPoints != nil, "story_points")
	add(u.FixDecision != nil, "fix_decision")
	add(u.FixReason != nil, "fix_reason")
	add(u.FixApproach != nil, "fix_approach")
	add(u.CommentDraft != nil, "comment_draft")
	add(u.Assignee != nil, "assignee")
	add(u.FixSuccess != nil, "fix_success")
	add(u.PRURL != nil, "pr_url")
	add(u.FixError != nil, "fix_error")
	add(u.LabelsToAdd != nil, "labels_to_add")
	add(u.LabelsToRemove != nil, "labels_to_remove")
	add(u.CommentToPost != nil, "comment_to_post")
	return f
}

func setStr(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setSlice(dst *[]string, src []string) {
	if src != nil {
		*dst = append([]string{}, src...)
	}
}
