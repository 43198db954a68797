package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	validPolicies   = map[string]bool{PolicyApproval: true, PolicyAuto: true}
	validStrategies = map[string]bool{StrategyAgent: true, StrategyCompletion: true}
	validBackends   = map[string]bool{BackendMemory: true, BackendFile: true, BackendPostgres: true}
)

// Validate checks a Config for semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	s := cfg.Scoring

	if s.Threshold < 0 || s.Threshold > 100 {
		errs = append(errs, ValidationError{Field: "scoring.threshold", Message: fmt.Sprintf("%d is outside 0-100", s.Threshold)})
	}
	if s.MidThreshold < 0 || s.MidThreshold > 100 {
		errs = append(errs, ValidationError{Field: "scoring.mid_threshold", Message: fmt.Sprintf("%d is outside 0-100", s.MidThreshold)})
	}
	if s.MidThreshold > s.Threshold {
		errs = append(errs, ValidationError{
			Field:   "scoring.mid_threshold",
			Message: fmt.Sprintf("%d must not exceed threshold %d", s.MidThreshold, s.Threshold),
		})
	}

	if !validPolicies[cfg.Fix.Policy] {
		errs = append(errs, ValidationError{Field: "fix.policy", Message: fmt.Sprintf("unknown policy %q (want approval or auto)", cfg.Fix.Policy)})
	}
	if !validStrategies[cfg.Analyze.Strategy] {
		errs = append(errs, ValidationError{Field: "analyze.strategy", Message: fmt.Sprintf("unknown strategy %q (want agent or completion)", cfg.Analyze.Strategy)})
	}
	if !validBackends[cfg.Checkpoint.Backend] {
		errs = append(errs, ValidationError{Field: "checkpoint.backend", Message: fmt.Sprintf("unknown backend %q", cfg.Checkpoint.Backend)})
	}
	if cfg.Checkpoint.Backend == BackendPostgres && cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{Field: "checkpoint.backend", Message: "postgres requires BENEISSUE_DATABASE_URL"})
	}
	if len(cfg.Agent.Command) == 0 || cfg.Agent.Command[0] == "" {
		errs = append(errs, ValidationError{Field: "agent.command", Message: "is required"})
	}

	for field, raw := range map[string]string{"analyze.timeout": cfg.Analyze.Timeout, "fix.timeout": cfg.Fix.Timeout} {
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", raw)})
		}
	}

	d := cfg.Limits.Daily
	if d.Triage < 0 || d.Analyze < 0 || d.Fix < 0 {
		errs = append(errs, ValidationError{Field: "limits.daily", Message: "limits must not be negative"})
	}

	for i, m := range cfg.Team {
		for j := i + 1; j < len(cfg.Team); j++ {
			if cfg.Team[j].GitHubID == m.GitHubID {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("team[%d].github_id", j),
					Message: fmt.Sprintf("duplicate member %q", m.GitHubID),
				})
			}
		}
	}

	for decision := range cfg.Labels.Mapping.Triage {
		if !validTriageKey(decision) {
			errs = append(errs, ValidationError{Field: "labels.mapping.triage." + decision, Message: "unknown triage decision"})
		}
	}
	return errs
}

func validTriageKey(k string) bool {
	switch k {
	case "valid", "invalid", "duplicate", "needs_info":
		return true
	}
	return false
}
