package extract

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type result struct {
	Summary       string   `json:"summary"`
	AffectedFiles []string `json:"affected_files"`
	FixDecision   string   `json:"fix_decision"`
}

func requireSummary(r *result) error {
	if r.Summary == "" {
		return errors.New("summary required")
	}
	return nil
}

func TestRecover_FencedBlockMatchesDirectParse(t *testing.T) {
	jsonText := `{"summary": "Null check missing", "affected_files": ["src/app.go"], "fix_decision": "auto_eligible"}`
	output := "I looked around the repository.\n\n```json\n" + jsonText + "\n```\n\nLet me know if you need more."

	var got, want map[string]any
	strategy, err := Recover(output, "summary", func(raw []byte) error { return json.Unmarshal(raw, &got) })
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if strategy != StrategyFenced {
		t.Errorf("strategy = %v, want fenced", strategy)
	}
	if err := json.Unmarshal([]byte(jsonText), &want); err != nil {
		t.Fatalf("direct parse: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recovered %v, want %v", got, want)
	}
}

func TestRecover_UntaggedFence(t *testing.T) {
	output := "```\n{\"summary\": \"x\"}\n```"
	r, strategy, err := Decode[result](output, "summary", requireSummary)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if strategy != StrategyFenced || r.Summary != "x" {
		t.Errorf("got %v %+v", strategy, r)
	}
}

func TestRecover_BraceScanRequiresMarker(t *testing.T) {
	output := `Progress: {"step": 1} then the answer {"summary": "found it", "affected_files": ["a.go"]} done`
	r, strategy, err := Decode[result](output, "summary", requireSummary)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if strategy != StrategyBraceScan {
		t.Errorf("strategy = %v, want brace-scan", strategy)
	}
	if r.Summary != "found it" || len(r.AffectedFiles) != 1 {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestRecover_BraceScanNested(t *testing.T) {
	output := `result: {"summary": "s", "score": {"total": 85, "scope": 25}} trailing`
	var got map[string]any
	strategy, err := Recover(output, "summary", func(raw []byte) error { return json.Unmarshal(raw, &got) })
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if strategy != StrategyBraceScan {
		t.Errorf("strategy = %v", strategy)
	}
	score, ok := got["score"].(map[string]any)
	if !ok || score["total"].(float64) != 85 {
		t.Errorf("nested score not recovered: %v", got)
	}
}

func TestRecover_SkipsCandidateFailingValidation(t *testing.T) {
	output := `{"summary": ""} and later {"summary": "real"}`
	r, _, err := Decode[result](output, "summary", requireSummary)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r.Summary != "real" {
		t.Errorf("summary = %q, want real", r.Summary)
	}
}

func TestRecover_WholeOutput(t *testing.T) {
	output := "  {\"Summary\": \"case-insensitive key\"}\n"
	r, strategy, err := Decode[result](output, "not-present", requireSummary)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if strategy != StrategyWhole {
		t.Errorf("strategy = %v, want whole", strategy)
	}
	if r.Summary != "case-insensitive key" {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestRecover_NothingFound(t *testing.T) {
	for _, output := range []string{"", "no json here", "{unbalanced", "```json\n{broken}\n```"} {
		_, strategy, err := Decode[result](output, "summary", requireSummary)
		if !errors.Is(err, ErrNoJSON) {
			t.Errorf("output %q: err = %v, want ErrNoJSON", output, err)
		}
		if strategy != StrategyNone {
			t.Errorf("output %q: strategy = %v", output, strategy)
		}
	}
}

func TestBraceCandidates(t *testing.T) {
	got := braceCandidates(`a {b {c} d} {e`)
	want := []string{"{b {c} d}", "{c}"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidates = %q, want %q", got, want)
	}
}

func TestPRURL(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"Created https://github.com/octo/widgets/pull/12\n", "https://github.com/octo/widgets/pull/12"},
		{`{"pr_url": "https://github.com/a/b/pull/3", "result": "ok"}`, "https://github.com/a/b/pull/3"},
		{"no url", ""},
		{"https://github.com/octo/widgets/issues/12", ""},
	}
	for _, tt := range tests {
		if got := PRURL(tt.output); got != tt.want {
			t.Errorf("PRURL(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}
