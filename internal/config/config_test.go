package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opendataloader-project/beneissue/internal/state"
)

const fullConfig = `
version: "1.0"
project:
  name: "test-project"
  description: "Test description"
models:
  triage: claude-sonnet-4
  analyze: claude-opus-4
scoring:
  threshold: 90
  criteria:
    scope: { weight: 25 }
    risk: { weight: 25 }
    clarity: 10
team:
  - github_id: "alice"
    available: false
    specialties: ["frontend", "react"]
  - github_id: "bob"
    available: true
    specialties: ["backend", "python"]
  - github_id: ""
    available: true
labels:
  action:
    - name: "fix/auto-eligible"
      color: "0E8A16"
      description: "Auto-fix eligible"
  priority:
    - name: "P0"
      color: "B60205"
      description: "Critical"
  mapping:
    triage:
      duplicate: ["duplicate"]
    priority:
      P1: "priority/p1"
limits:
  daily:
    triage: 10
fix:
  policy: auto
  timeout: 2m
`

// writeConfig writes content to <root>/.claude/skills/beneissue/beneissue-config.yml.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return root
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BENEISSUE_MODEL_TRIAGE", "BENEISSUE_MODEL_ANALYZE", "BENEISSUE_MODEL_FIX",
		"BENEISSUE_SCORE_THRESHOLD", "BENEISSUE_FIX_POLICY", "BENEISSUE_CHECKPOINT_DIR",
		"BENEISSUE_DATABASE_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefault_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadDefault(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.Models.Triage != DefaultTriageModel {
		t.Errorf("models.triage = %q, want %q", cfg.Models.Triage, DefaultTriageModel)
	}
	if cfg.Models.Fix != DefaultFixModel {
		t.Errorf("models.fix = %q, want %q", cfg.Models.Fix, DefaultFixModel)
	}
	if cfg.Scoring.Threshold != DefaultScoreThreshold {
		t.Errorf("scoring.threshold = %d, want %d", cfg.Scoring.Threshold, DefaultScoreThreshold)
	}
	if cfg.Scoring.MidThreshold != DefaultMidThreshold {
		t.Errorf("scoring.mid_threshold = %d, want %d", cfg.Scoring.MidThreshold, DefaultMidThreshold)
	}
	if cfg.Fix.Policy != PolicyApproval {
		t.Errorf("fix.policy = %q, want %q", cfg.Fix.Policy, PolicyApproval)
	}
	if cfg.Analyze.Strategy != StrategyAgent {
		t.Errorf("analyze.strategy = %q, want %q", cfg.Analyze.Strategy, StrategyAgent)
	}
	if cfg.AnalyzeTimeout() != 3*time.Minute {
		t.Errorf("analyze timeout = %v, want 3m", cfg.AnalyzeTimeout())
	}
	if cfg.FixTimeout() != 5*time.Minute {
		t.Errorf("fix timeout = %v, want 5m", cfg.FixTimeout())
	}
	if strings.Join(cfg.Agent.Command, " ") != "npx -y @anthropic-ai/claude-code" {
		t.Errorf("agent.command = %v", cfg.Agent.Command)
	}
	if cfg.Checkpoint.Backend != BackendFile {
		t.Errorf("checkpoint.backend = %q, want file", cfg.Checkpoint.Backend)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("defaults should validate, got %v", errs)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	clearEnv(t)
	root := writeConfig(t, fullConfig)

	cfg, err := LoadDefault(root)
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}

	if cfg.Project.Name != "test-project" {
		t.Errorf("project.name = %q, want %q", cfg.Project.Name, "test-project")
	}
	if cfg.Models.Triage != "claude-sonnet-4" {
		t.Errorf("models.triage = %q", cfg.Models.Triage)
	}
	if cfg.Models.Fix != DefaultFixModel {
		t.Errorf("models.fix = %q, want default", cfg.Models.Fix)
	}
	if cfg.Scoring.Threshold != 90 {
		t.Errorf("scoring.threshold = %d, want 90", cfg.Scoring.Threshold)
	}
	c := cfg.Scoring.Criteria
	if c.Scope != 25 || c.Risk != 25 || c.Clarity != 10 || c.Verifiability != 25 {
		t.Errorf("criteria = %+v", c)
	}
	if len(cfg.Team) != 2 {
		t.Fatalf("len(team) = %d, want 2 (empty id dropped)", len(cfg.Team))
	}
	if cfg.Team[0].GitHubID != "alice" || cfg.Team[0].Available {
		t.Errorf("team[0] = %+v", cfg.Team[0])
	}
	if len(cfg.Labels.Action) != 1 || cfg.Labels.Action[0].Name != "fix/auto-eligible" {
		t.Errorf("labels.action = %+v", cfg.Labels.Action)
	}
	if len(cfg.Labels.Priority) != 1 || cfg.Labels.Priority[0].Name != "P0" {
		t.Errorf("labels.priority = %+v", cfg.Labels.Priority)
	}
	if cfg.Limits.Daily.Triage != 10 {
		t.Errorf("limits.daily.triage = %d, want 10", cfg.Limits.Daily.Triage)
	}
	if cfg.Limits.Daily.Fix != DefaultDailyFix {
		t.Errorf("limits.daily.fix = %d, want default", cfg.Limits.Daily.Fix)
	}
	if cfg.Fix.Policy != PolicyAuto {
		t.Errorf("fix.policy = %q, want auto", cfg.Fix.Policy)
	}
	if cfg.FixTimeout() != 2*time.Minute {
		t.Errorf("fix timeout = %v, want 2m", cfg.FixTimeout())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	root := writeConfig(t, fullConfig)
	t.Setenv("BENEISSUE_MODEL_TRIAGE", "claude-haiku-4")
	t.Setenv("BENEISSUE_SCORE_THRESHOLD", "75")
	t.Setenv("BENEISSUE_FIX_POLICY", "approval")
	t.Setenv("BENEISSUE_DATABASE_URL", "postgres://localhost/beneissue")

	cfg, err := LoadDefault(root)
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.Models.Triage != "claude-haiku-4" {
		t.Errorf("models.triage = %q", cfg.Models.Triage)
	}
	if cfg.Scoring.Threshold != 75 {
		t.Errorf("scoring.threshold = %d, want 75", cfg.Scoring.Threshold)
	}
	if cfg.Fix.Policy != PolicyApproval {
		t.Errorf("fix.policy = %q", cfg.Fix.Policy)
	}
	if cfg.Checkpoint.Backend != BackendPostgres || cfg.DatabaseURL == "" {
		t.Errorf("database url should switch backend, got %q", cfg.Checkpoint.Backend)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	root := writeConfig(t, "scoring: [not, a, map")
	if _, err := LoadDefault(root); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Scoring.Threshold = 40
	cfg.Scoring.MidThreshold = 60
	cfg.Fix.Policy = "sometimes"
	cfg.Analyze.Strategy = "guess"
	cfg.Analyze.Timeout = "soon"
	cfg.Agent.Command = nil
	cfg.Labels.Mapping.Triage = map[string][]string{"spam": {"spam"}}

	errs := Validate(cfg)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{"scoring.mid_threshold", "fix.policy", "analyze.strategy", "analyze.timeout", "agent.command", "labels.mapping.triage.spam"} {
		if !fields[want] {
			t.Errorf("expected validation error for %s, got %v", want, errs)
		}
	}
}

func TestAvailableAssignee(t *testing.T) {
	cfg := &Config{Team: []TeamMember{
		{GitHubID: "alice", Available: true, Specialties: []string{"frontend"}},
		{GitHubID: "bob", Available: true, Specialties: []string{"backend", "python"}},
		{GitHubID: "carol", Available: false, Specialties: []string{"backend"}},
	}}

	if got := cfg.AvailableAssignee(); got != "alice" {
		t.Errorf("AvailableAssignee() = %q, want alice", got)
	}
	if got := cfg.AvailableAssignee("backend"); got != "bob" {
		t.Errorf("AvailableAssignee(backend) = %q, want bob", got)
	}
	if got := cfg.AvailableAssignee("rust"); got != "" {
		t.Errorf("AvailableAssignee(rust) = %q, want empty", got)
	}
	if got := (&Config{}).AvailableAssignee(); got != "" {
		t.Errorf("no team should give empty, got %q", got)
	}
}

func TestLabelTable_AppliesOverrides(t *testing.T) {
	clearEnv(t)
	root := writeConfig(t, fullConfig)
	cfg, err := LoadDefault(root)
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}

	tbl := cfg.LabelTable()
	if got := tbl.ForTriage(state.TriageDuplicate); len(got) != 1 || got[0] != "duplicate" {
		t.Errorf("duplicate labels = %v, want [duplicate]", got)
	}
	if got := tbl.ForTriage(state.TriageValid); len(got) != 1 || got[0] != "triage/valid" {
		t.Errorf("valid labels = %v, want default", got)
	}
	if got := tbl.ForPriority(state.PriorityP1); got != "priority/p1" {
		t.Errorf("P1 label = %q, want priority/p1", got)
	}
	def, ok := tbl.Def("fix/auto-eligible")
	if !ok || def.Description != "Auto-fix eligible" {
		t.Errorf("fix/auto-eligible def = %+v", def)
	}
}
