// Package labels maps workflow decisions to repository label names. Callers
// start from Default and override entries from config.
package labels

import (
	"fmt"
	"sort"

	"github.com/opendataloader-project/beneissue/internal/state"
)

// Def describes one label on the repository.
type Def struct {
	Name        string `yaml:"name" json:"name"`
	Color       string `yaml:"color" json:"color"`
	Description string `yaml:"description" json:"description"`
}

// Table is the decision-to-label mapping plus the definitions used by sync.
type Table struct {
	Triage       map[state.TriageDecision][]string
	Fix          map[state.FixDecision]string
	FixCompleted string
	FixFailed    string
	Priority     map[state.Priority]string
	StoryPoints  map[int]string
	Defs         []Def
}

// Default returns the stock label table.
func Default() *Table {
	t := &Table{
		Triage: map[state.TriageDecision][]string{
			state.TriageValid:     {"triage/valid"},
			state.TriageInvalid:   {"triage/invalid"},
			state.TriageDuplicate: {"triage/duplicate"},
			state.TriageNeedsInfo: {"triage/needs-info"},
		},
		Fix: map[state.FixDecision]string{
			state.FixAutoEligible:   "fix/auto-eligible",
			state.FixManualRequired: "fix/manual-required",
			state.FixCommentOnly:    "fix/comment-only",
		},
		FixCompleted: "fix/completed",
		FixFailed:    "fix/failed",
		Priority: map[state.Priority]string{
			state.PriorityP0: "P0",
			state.PriorityP1: "P1",
			state.PriorityP2: "P2",
		},
		StoryPoints: map[int]string{},
		Defs: []Def{
			{"triage/valid", "0E8A16", "Valid issue, ready for analysis"},
			{"triage/invalid", "E4E669", "Out of scope or not actionable"},
			{"triage/duplicate", "CFD3D7", "Duplicate of an existing issue"},
			{"triage/needs-info", "D876E3", "More information needed from the reporter"},
			{"fix/auto-eligible", "0E8A16", "Eligible for an automated fix"},
			{"fix/manual-required", "FBCA04", "Needs a human to fix"},
			{"fix/comment-only", "C5DEF5", "Answer with a comment, no code change"},
			{"fix/completed", "1D76DB", "Automated fix opened a pull request"},
			{"fix/failed", "B60205", "Automated fix failed"},
			{"P0", "B60205", "Critical: fix immediately"},
			{"P1", "D93F0B", "High: fix this cycle"},
			{"P2", "FBCA04", "Normal priority"},
		},
	}
	for _, n := range []int{1, 2, 3, 5, 8} {
		name := fmt.Sprintf("sp/%d", n)
		t.StoryPoints[n] = name
		t.Defs = append(t.Defs, Def{Name: name, Color: "C2E0C6", Description: fmt.Sprintf("Story points: %d", n)})
	}
	return t
}

// ForTriage returns the labels for a triage decision. Unknown decisions map to none.
func (t *Table) ForTriage(d state.TriageDecision) []string {
	names := t.Triage[d]
	if len(names) == 0 {
		return nil
	}
	return append([]string{}, names...)
}

// ForFix returns the label for a fix decision, falling back to "fix/<decision>".
func (t *Table) ForFix(d state.FixDecision) string {
	if name, ok := t.Fix[d]; ok {
		return name
	}
	if d == "" {
		return ""
	}
	return "fix/" + d.LabelSuffix()
}

// ForPriority returns the label for p, or "" when unmapped.
func (t *Table) ForPriority(p state.Priority) string {
	return t.Priority[p]
}

// ForStoryPoints returns the label for n story points, or "" when unmapped.
func (t *Table) ForStoryPoints(n int) string {
	return t.StoryPoints[n]
}

// Def returns the definition for name.
func (t *Table) Def(name string) (Def, bool) {
	for _, d := range t.Defs {
		if d.Name == name {
			return d, true
		}
	}
	return Def{}, false
}

// SetDef adds or replaces a definition.
func (t *Table) SetDef(def Def) {
	for i := range t.Defs {
		if t.Defs[i].Name == def.Name {
			t.Defs[i] = def
			return
		}
	}
	t.Defs = append(t.Defs, def)
}

// Names returns every defined label name, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Defs))
	for _, d := range t.Defs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// Union appends each of add to base unless already present. base is not modified.
func Union(base []string, add ...string) []string {
	out := append([]string{}, base...)
	seen := make(map[string]bool, len(out))
	for _, n := range out {
		seen[n] = true
	}
	for _, n := range add {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Subtract returns base without any of remove. base is not modified.
func Subtract(base []string, remove ...string) []string {
	drop := make(map[string]bool, len(remove))
	for _, n := range remove {
		drop[n] = true
	}
	out := []string{}
	for _, n := range base {
		if !drop[n] {
			out = append(out, n)
		}
	}
	return out
}
