package prompt

// builtinTemplates maps prompt name to content.
var builtinTemplates = map[string]string{
	Triage:          triageTemplate,
	Analyze:         analyzeTemplate,
	AnalyzeComplete: analyzeCompletionTemplate,
	Fix:             fixTemplate,
}

const triageTemplate = `You are triaging a new issue for {{project_name}}.
{{#if project_description}}
Project description: {{project_description}}
{{/if}}

## Repository Overview
{{readme}}

## Existing Issues
{{existing_issues}}

## Task
Classify the issue the user sends into exactly one decision:

- "valid": a clear, actionable bug report or feature request within the project's scope.
- "invalid": spam, off-topic, a support question, or out of scope.
- "duplicate": the same problem as one of the existing issues above. Set "duplicate_of" to that issue number.
- "needs_info": possibly valid, but missing what is needed to act (versions, steps to reproduce, expected behaviour). List what to ask in "questions".

Respond with ONLY a JSON object, no prose:

` + "```json" + `
{"decision": "valid", "reason": "one or two sentences", "duplicate_of": null, "questions": []}
` + "```" + `
`

const analyzeTemplate = `You are analyzing GitHub issue #{{issue_number}} in this repository to decide whether it can be fixed automatically.

## Issue
Title: {{issue_title}}

{{issue_body}}

## Instructions
1. Explore the repository with Read, Glob and Grep. Do not modify any file.
2. Find the files that would need to change and the approach you would take.
3. Score fix-eligibility:
   - scope (0-30): how small and contained the change is
   - risk (0-30): how unlikely the change is to break something else
   - verifiability (0-25): how easily the change can be tested
   - clarity (0-15): how clear the requirements are
   The total is the sum, 0-100.
4. Decide:
   - "auto_eligible" when total >= {{threshold}}
   - "manual_required" when the issue is real but needs a human
   - "comment_only" when a reply is enough (question, docs pointer, won't fix)
5. Pick a priority (P0 critical, P1 important, P2 nice to have) and story points (1, 2, 3, 5 or 8).
{{#if team}}
6. Suggest an assignee from the available team members: {{team}}. Otherwise use "{{repo_owner}}".
{{/if}}

Respond with the result as a single JSON code block:

` + "```json" + `
{
  "summary": "what is wrong and where",
  "affected_files": ["path/to/file"],
  "approach": "how to fix it",
  "score": {"total": 0, "scope": 0, "risk": 0, "verifiability": 0, "clarity": 0},
  "priority": "P1",
  "story_points": 2,
  "fix_decision": "auto_eligible",
  "reason": "why this decision",
  "comment_draft": "a reply for the reporter, or empty",
  "assignee": "{{repo_owner}}"
}
` + "```" + `
`

const analyzeCompletionTemplate = `You are assessing whether a GitHub issue in {{repo}} can be fixed automatically.
{{#if codebase_structure}}

## Codebase Structure
` + "```" + `
{{codebase_structure}}
` + "```" + `
{{/if}}

Score fix-eligibility:
- scope (0-30): how small and contained the change is
- risk (0-30): how unlikely the change is to break something else
- verifiability (0-25): how easily the change can be tested
- clarity (0-15): how clear the requirements are
The total is the sum, 0-100. Leave "fix_decision" empty; it is derived from the score.

Pick a priority (P0, P1, P2) and story points (1, 2, 3, 5 or 8).

Respond with ONLY a JSON object with the keys summary, affected_files, approach, score
(total, scope, risk, verifiability, clarity), priority, story_points, reason, comment_draft.
`

const fixTemplate = `Fix GitHub issue #{{issue_number}} in {{repo}}.

## Issue
{{issue_title}}

## Analysis
{{analysis_summary}}

## Affected Files
{{affected_files}}
{{#if fix_approach}}

## Suggested Approach
{{fix_approach}}
{{/if}}

## Instructions
1. Make the smallest change that fixes the issue.
2. Follow the existing code style.
3. Add or update tests where the project has them, and run them.
4. Do not create branches, commit, push or open pull requests. That is done for you.
5. If the fix turns out to be unsafe or unclear, make no changes and explain why.
`
