package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SkillDir is the per-repository directory holding config, prompts and test cases.
const SkillDir = ".claude/skills/beneissue"

// FileName is the config file name inside SkillDir.
const FileName = "beneissue-config.yml"

// Defaults.
const (
	DefaultTriageModel    = "claude-haiku-4-5"
	DefaultAnalyzeModel   = "claude-sonnet-4-5"
	DefaultFixModel       = "claude-sonnet-4-5"
	DefaultScoreThreshold = 80
	DefaultMidThreshold   = 50
	DefaultDailyTriage    = 50
	DefaultDailyAnalyze   = 20
	DefaultDailyFix       = 5
	DefaultAnalyzeTimeout = 3 * time.Minute
	DefaultFixTimeout     = 5 * time.Minute
	DefaultBaseBranch     = "main"
	DefaultAuthorName     = "beneissue[bot]"
	DefaultAuthorEmail    = "beneissue[bot]@users.noreply.github.com"
)

// DefaultAgentCommand runs the coding agent without a global install.
var DefaultAgentCommand = []string{"npx", "-y", "@anthropic-ai/claude-code"}

// Path returns the config path for a project root.
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, SkillDir, FileName)
}

// Load reads and parses a config from the given YAML file path, then
// applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault loads the config under projectRoot. A missing file is not an
// error: the defaults (plus environment overrides) are returned.
func LoadDefault(projectRoot string) (*Config, error) {
	path := Path(projectRoot)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}
	return Load(path)
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

// applyDefaults fills every unset field.
func applyDefaults(cfg *Config) {
	if cfg.Models.Triage == "" {
		cfg.Models.Triage = DefaultTriageModel
	}
	if cfg.Models.Analyze == "" {
		cfg.Models.Analyze = DefaultAnalyzeModel
	}
	if cfg.Models.Fix == "" {
		cfg.Models.Fix = DefaultFixModel
	}

	s := &cfg.Scoring
	if s.Threshold == 0 {
		s.Threshold = DefaultScoreThreshold
	}
	if s.MidThreshold == 0 {
		s.MidThreshold = DefaultMidThreshold
	}
	if s.Criteria.Scope == 0 {
		s.Criteria.Scope = 30
	}
	if s.Criteria.Risk == 0 {
		s.Criteria.Risk = 30
	}
	if s.Criteria.Verifiability == 0 {
		s.Criteria.Verifiability = 25
	}
	if s.Criteria.Clarity == 0 {
		s.Criteria.Clarity = 15
	}

	// Members without an id can never be assigned.
	team := cfg.Team[:0]
	for _, m := range cfg.Team {
		if strings.TrimSpace(m.GitHubID) != "" {
			team = append(team, m)
		}
	}
	cfg.Team = team

	d := &cfg.Limits.Daily
	if d.Triage == 0 {
		d.Triage = DefaultDailyTriage
	}
	if d.Analyze == 0 {
		d.Analyze = DefaultDailyAnalyze
	}
	if d.Fix == 0 {
		d.Fix = DefaultDailyFix
	}

	if cfg.Analyze.Strategy == "" {
		cfg.Analyze.Strategy = StrategyAgent
	}
	if cfg.Analyze.Timeout == "" {
		cfg.Analyze.Timeout = DefaultAnalyzeTimeout.String()
	}
	if cfg.Fix.Policy == "" {
		cfg.Fix.Policy = PolicyApproval
	}
	if cfg.Fix.Timeout == "" {
		cfg.Fix.Timeout = DefaultFixTimeout.String()
	}
	if cfg.Fix.BaseBranch == "" {
		cfg.Fix.BaseBranch = DefaultBaseBranch
	}
	if len(cfg.Agent.Command) == 0 {
		cfg.Agent.Command = append([]string{}, DefaultAgentCommand...)
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = BackendFile
	}
	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = defaultCheckpointDir()
	}
	if cfg.Git.AuthorName == "" {
		cfg.Git.AuthorName = DefaultAuthorName
	}
	if cfg.Git.AuthorEmail == "" {
		cfg.Git.AuthorEmail = DefaultAuthorEmail
	}
}

// applyEnv applies BENEISSUE_* overrides on top of the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BENEISSUE_MODEL_TRIAGE"); v != "" {
		cfg.Models.Triage = v
	}
	if v := os.Getenv("BENEISSUE_MODEL_ANALYZE"); v != "" {
		cfg.Models.Analyze = v
	}
	if v := os.Getenv("BENEISSUE_MODEL_FIX"); v != "" {
		cfg.Models.Fix = v
	}
	if v := os.Getenv("BENEISSUE_SCORE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scoring.Threshold = n
		}
	}
	if v := os.Getenv("BENEISSUE_FIX_POLICY"); v != "" {
		cfg.Fix.Policy = v
	}
	if v := os.Getenv("BENEISSUE_CHECKPOINT_DIR"); v != "" {
		cfg.Checkpoint.Dir = v
	}
	if v := os.Getenv("BENEISSUE_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
		cfg.Checkpoint.Backend = BackendPostgres
	}
}

// defaultCheckpointDir returns ~/.beneissue/checkpoints, or a relative
// fallback when the home directory is unknown.
func defaultCheckpointDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".beneissue", "checkpoints")
	}
	return filepath.Join(home, ".beneissue", "checkpoints")
}

// UnmarshalYAML accepts each criterion as a bare int or as {weight: n}.
func (c *Criteria) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	targets := map[string]*int{
		"scope":         &c.Scope,
		"risk":          &c.Risk,
		"verifiability": &c.Verifiability,
		"clarity":       &c.Clarity,
	}
	for key, val := range raw {
		dst, ok := targets[key]
		if !ok {
			continue
		}
		if val.Kind == yaml.MappingNode {
			var cr criterion
			if err := val.Decode(&cr); err != nil {
				return fmt.Errorf("criteria.%s: %w", key, err)
			}
			*dst = cr.Weight
			continue
		}
		if err := val.Decode(dst); err != nil {
			return fmt.Errorf("criteria.%s: %w", key, err)
		}
	}
	return nil
}
