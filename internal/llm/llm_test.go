package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opendataloader-project/beneissue/internal/extract"
	"github.com/opendataloader-project/beneissue/internal/state"
)

type mockResult struct {
	resp *Response
	err  error
}

type mockTransport struct {
	calls   []Request
	results []mockResult
	idx     int
}

func (m *mockTransport) Send(ctx context.Context, req Request) (*Response, error) {
	m.calls = append(m.calls, req)
	if m.idx >= len(m.results) {
		return nil, errors.New("no more results")
	}
	r := m.results[m.idx]
	m.idx++
	return r.resp, r.err
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func text(s string) mockResult {
	return mockResult{resp: &Response{Text: s, Usage: Usage{InputTokens: 100, OutputTokens: 20}}}
}

func TestClassify_Duplicate(t *testing.T) {
	mock := &mockTransport{results: []mockResult{text(`{"decision": "duplicate", "reason": "same crash", "duplicate_of": 12}`)}}
	c := NewClient(mock)

	r, usage, err := c.Classify(context.Background(), "claude-haiku-4-5", "system", "Title: Crash on startup")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if r.Decision != state.TriageDuplicate || r.DuplicateOf != 12 {
		t.Errorf("result = %+v", r)
	}
	if usage.InputTokens != 100 || usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", usage)
	}
	if mock.calls[0].Model != "claude-haiku-4-5" || mock.calls[0].System != "system" {
		t.Errorf("request = %+v", mock.calls[0])
	}
}

func TestClassify_InvalidDecision(t *testing.T) {
	mock := &mockTransport{results: []mockResult{text(`{"decision": "spam", "reason": "ads"}`)}}
	_, usage, err := NewClient(mock).Classify(context.Background(), "m", "s", "u")
	if !errors.Is(err, ErrInvalidResult) {
		t.Fatalf("err = %v, want ErrInvalidResult", err)
	}
	if usage.InputTokens != 100 {
		t.Errorf("usage should be reported for an answered call, got %+v", usage)
	}
}

func TestClassify_NoRetry(t *testing.T) {
	mock := &mockTransport{results: []mockResult{{err: timeoutErr{}}, text(`{"decision": "valid", "reason": "ok"}`)}}
	if _, _, err := NewClient(mock).Classify(context.Background(), "m", "s", "u"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(mock.calls))
	}
}

func TestTriageResult_DropsDuplicateOfWhenNotDuplicate(t *testing.T) {
	r, err := ParseTriage(`{"decision": "valid", "reason": "ok", "duplicate_of": 3}`)
	if err != nil {
		t.Fatalf("ParseTriage: %v", err)
	}
	if r.DuplicateOf != 0 {
		t.Errorf("duplicate_of = %d, want 0", r.DuplicateOf)
	}
}

func TestAssess_RetriesTransientErrors(t *testing.T) {
	body := `{"summary": "Off by one", "affected_files": ["a.go"], "score": {"total": 85, "scope": 25, "risk": 25, "verifiability": 20, "clarity": 15}, "priority": "P1", "story_points": 2}`
	mock := &mockTransport{results: []mockResult{{err: timeoutErr{}}, text(body)}}
	c := NewClient(mock)
	c.SetMaxElapsed(10 * time.Second)

	r, usage, err := c.Assess(context.Background(), "m", "s", "u")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if len(mock.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(mock.calls))
	}
	if r.Score == nil || r.Score.Total != 85 || r.Priority != state.PriorityP1 {
		t.Errorf("result = %+v", r)
	}
	if usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestAssess_PermanentErrorStops(t *testing.T) {
	mock := &mockTransport{results: []mockResult{{err: errors.New("bad request")}, text(`{}`)}}
	if _, _, err := NewClient(mock).Assess(context.Background(), "m", "s", "u"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(mock.calls))
	}
}

func TestParseAnalysis_FromAgentProse(t *testing.T) {
	out := "I looked at the code.\n\n```json\n{\"summary\": \"Null check missing\", \"affected_files\": [\"src/x.go\"], \"fix_decision\": \"auto_eligible\", \"reason\": \"small\"}\n```\nDone."
	r, strategy, err := ParseAnalysis(out)
	if err != nil {
		t.Fatalf("ParseAnalysis: %v", err)
	}
	if strategy != extract.StrategyFenced {
		t.Errorf("strategy = %v, want fenced", strategy)
	}
	if r.FixDecision != state.FixAutoEligible || r.AffectedFiles[0] != "src/x.go" {
		t.Errorf("result = %+v", r)
	}
}

func TestAnalyzeResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		r       AnalyzeResult
		wantErr bool
	}{
		{"decision only", AnalyzeResult{Summary: "s", FixDecision: state.FixCommentOnly}, false},
		{"score only", AnalyzeResult{Summary: "s", Score: &state.ScoreBreakdown{Total: 40}}, false},
		{"empty summary", AnalyzeResult{FixDecision: state.FixCommentOnly}, true},
		{"neither", AnalyzeResult{Summary: "s"}, true},
		{"bad decision", AnalyzeResult{Summary: "s", FixDecision: "maybe"}, true},
		{"sub-score over max", AnalyzeResult{Summary: "s", Score: &state.ScoreBreakdown{Total: 50, Clarity: 20}}, true},
		{"bad priority", AnalyzeResult{Summary: "s", FixDecision: state.FixCommentOnly, Priority: "P9"}, true},
		{"bad story points", AnalyzeResult{Summary: "s", FixDecision: state.FixCommentOnly, StoryPoints: 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if isRetryable(context.Canceled) {
		t.Error("context.Canceled should not be retryable")
	}
	if !isRetryable(timeoutErr{}) {
		t.Error("net timeout should be retryable")
	}
	if isRetryable(errors.New("plain")) {
		t.Error("plain error should not be retryable")
	}
}

func TestNewAnthropicTransport_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropicTransport(""); !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("err = %v, want ErrAPIKeyRequired", err)
	}
}
