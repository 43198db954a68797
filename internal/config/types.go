package config

import "time"

// Config is the top-level structure parsed from beneissue-config.yml.
type Config struct {
	Version    string           `yaml:"version"`
	Project    ProjectConfig    `yaml:"project"`
	Models     ModelsConfig     `yaml:"models"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Team       []TeamMember     `yaml:"team"`
	Labels     LabelsConfig     `yaml:"labels"`
	Limits     LimitsConfig     `yaml:"limits"`
	Analyze    AnalyzeConfig    `yaml:"analyze"`
	Fix        FixConfig        `yaml:"fix"`
	Agent      AgentConfig      `yaml:"agent"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Git        GitConfig        `yaml:"git"`

	// Set from the environment only, never from the file.
	DatabaseURL string `yaml:"-"`
}

// ProjectConfig describes the repository being triaged.
type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ModelsConfig names the model used by each stage.
type ModelsConfig struct {
	Triage  string `yaml:"triage"`
	Analyze string `yaml:"analyze"`
	Fix     string `yaml:"fix"`
}

// ScoringConfig holds the eligibility thresholds and criteria weights.
type ScoringConfig struct {
	Threshold    int      `yaml:"threshold"`     // score >= threshold -> auto_eligible
	MidThreshold int      `yaml:"mid_threshold"` // score >= mid -> manual_required
	Criteria     Criteria `yaml:"criteria"`
}

// Criteria are the sub-score weights shown to the model.
type Criteria struct {
	Scope         int `yaml:"scope"`
	Risk          int `yaml:"risk"`
	Verifiability int `yaml:"verifiability"`
	Clarity       int `yaml:"clarity"`
}

// criterion accepts both `scope: 25` and `scope: {weight: 25}`.
type criterion struct {
	Weight int `yaml:"weight"`
}

// TeamMember is a possible assignee.
type TeamMember struct {
	GitHubID    string   `yaml:"github_id"`
	Available   bool     `yaml:"available"`
	Specialties []string `yaml:"specialties"`
}

// LabelsConfig holds label definitions and overrides of the decision mapping.
type LabelsConfig struct {
	Action   []LabelDef   `yaml:"action"`
	Priority []LabelDef   `yaml:"priority"`
	Mapping  LabelMapping `yaml:"mapping"`
}

// LabelMapping renames the labels used for each decision.
type LabelMapping struct {
	Triage      map[string][]string `yaml:"triage"`
	Fix         map[string]string   `yaml:"fix"` // also "completed" and "failed"
	Priority    map[string]string   `yaml:"priority"`
	StoryPoints map[int]string      `yaml:"story_points"`
}

// LabelDef is a label definition in the config file.
type LabelDef struct {
	Name        string `yaml:"name"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

// LimitsConfig holds rate limits.
type LimitsConfig struct {
	Daily DailyLimits `yaml:"daily"`
}

// DailyLimits caps automated runs per repository per day.
type DailyLimits struct {
	Triage  int `yaml:"triage"`
	Analyze int `yaml:"analyze"`
	Fix     int `yaml:"fix"`
}

// Analyze strategies.
const (
	StrategyAgent      = "agent"
	StrategyCompletion = "completion"
)

// AnalyzeConfig selects how analysis runs.
type AnalyzeConfig struct {
	Strategy string `yaml:"strategy"`
	Timeout  string `yaml:"timeout"`
}

// Fix policies decide what auto_eligible does next.
const (
	// PolicyApproval runs the fix node only for an explicit fix command.
	PolicyApproval = "approval"
	// PolicyAuto runs the fix node whenever analysis says auto_eligible.
	PolicyAuto = "auto"
)

// FixConfig controls the fix stage.
type FixConfig struct {
	Policy     string `yaml:"policy"`
	Timeout    string `yaml:"timeout"`
	BaseBranch string `yaml:"base_branch"`
}

// AgentConfig is the coding agent command prefix.
type AgentConfig struct {
	Command []string `yaml:"command"`
}

// Checkpoint backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// CheckpointConfig selects where checkpoints are kept.
type CheckpointConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// GitConfig is the identity used for fix commits.
type GitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// AnalyzeTimeout parses Analyze.Timeout. Call after applyDefaults.
func (c *Config) AnalyzeTimeout() time.Duration {
	return parseDurationOr(c.Analyze.Timeout, DefaultAnalyzeTimeout)
}

// FixTimeout parses Fix.Timeout. Call after applyDefaults.
func (c *Config) FixTimeout() time.Duration {
	return parseDurationOr(c.Fix.Timeout, DefaultFixTimeout)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
