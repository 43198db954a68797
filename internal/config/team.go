package config

import (
	"github.com/opendataloader-project/beneissue/internal/labels"
	"github.com/opendataloader-project/beneissue/internal/state"
)

// AvailableAssignee returns the first available team member. When
// specialties are given, the member must have at least one of them.
// Returns "" when nobody matches.
func (c *Config) AvailableAssignee(specialties ...string) string {
	for _, m := range c.Team {
		if !m.Available {
			continue
		}
		if len(specialties) > 0 && !overlaps(m.Specialties, specialties) {
			continue
		}
		return m.GitHubID
	}
	return ""
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}

// LabelTable returns the default label table with this config's overrides applied.
func (c *Config) LabelTable() *labels.Table {
	t := labels.Default()
	for decision, names := range c.Labels.Mapping.Triage {
		t.Triage[state.TriageDecision(decision)] = append([]string{}, names...)
	}
	for decision, name := range c.Labels.Mapping.Fix {
		switch decision {
		case "completed":
			t.FixCompleted = name
		case "failed":
			t.FixFailed = name
		default:
			t.Fix[state.FixDecision(decision)] = name
		}
	}
	for p, name := range c.Labels.Mapping.Priority {
		t.Priority[state.Priority(p)] = name
	}
	for n, name := range c.Labels.Mapping.StoryPoints {
		t.StoryPoints[n] = name
	}
	for _, d := range append(append([]LabelDef{}, c.Labels.Action...), c.Labels.Priority...) {
		t.SetDef(labels.Def{Name: d.Name, Color: d.Color, Description: d.Description})
	}
	return t
}
