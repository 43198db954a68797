// Package graph runs the issue workflow: a fixed table of nodes and routing
// functions, executed strictly in sequence over one IssueState.
//
// Every node returns a partial update which is merged into the running
// state before the next routing decision. A node error aborts the run and
// is returned wrapped in a StageError; the graph never retries.
package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/opendataloader-project/beneissue/internal/checkpoint"
	"github.com/opendataloader-project/beneissue/internal/state"
	"github.com/opendataloader-project/beneissue/internal/telemetry"
)

// maxSteps bounds a run. The longest path visits six nodes.
const maxSteps = 16

// ErrStepLimit is returned when a run visits more nodes than any topology allows.
var ErrStepLimit = errors.New("step limit exceeded")

// NodeFunc is one stage. It must not mutate s.
type NodeFunc func(ctx context.Context, s state.IssueState) (state.Update, error)

// Nodes holds the stage implementations. Only the nodes used by the
// selected pipeline need to be set.
type Nodes struct {
	Intake      NodeFunc
	Triage      NodeFunc
	Analyze     NodeFunc
	Fix         NodeFunc
	PostComment NodeFunc
	ApplyLabels NodeFunc
}

func (n Nodes) byName() map[Node]NodeFunc {
	return map[Node]NodeFunc{
		Intake:      n.Intake,
		Triage:      n.Triage,
		Analyze:     n.Analyze,
		Fix:         n.Fix,
		PostComment: n.PostComment,
		ApplyLabels: n.ApplyLabels,
	}
}

// topology lists the nodes each pipeline contains.
var topology = map[Kind][]Node{
	KindTriage:  {Intake, Triage},
	KindAnalyze: {Intake, Triage, Analyze, PostComment, ApplyLabels},
	KindFix:     {Intake, Fix, PostComment, ApplyLabels},
	KindFull:    {Intake, Triage, Analyze, Fix, PostComment, ApplyLabels},
}

// Recorder receives the final state of every completed run.
type Recorder interface {
	Record(ctx context.Context, kind string, started time.Time, s state.IssueState) error
}

// StageError is a node failure with the stage attached.
type StageError struct {
	Stage Node
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Graph is a compiled pipeline.
type Graph struct {
	kind     Kind
	nodes    map[Node]NodeFunc
	policy   Policy
	store    checkpoint.Store
	recorder Recorder
	logger   *slog.Logger
	dryRun   bool
	progress io.Writer
}

// Option configures Build.
type Option func(*Graph)

// WithPolicy sets the approval policy for auto_eligible issues.
func WithPolicy(p Policy) Option { return func(g *Graph) { g.policy = p } }

// WithCheckpoints persists state after every node and enables resume.
func WithCheckpoints(s checkpoint.Store) Option { return func(g *Graph) { g.store = s } }

// WithRecorder records the final state of each run.
func WithRecorder(r Recorder) Option { return func(g *Graph) { g.recorder = r } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(g *Graph) { g.logger = l } }

// WithDryRun skips the action nodes. Checkpoints and recording are disabled.
func WithDryRun() Option { return func(g *Graph) { g.dryRun = true } }

// Build compiles the pipeline of the given kind.
func Build(kind Kind, nodes Nodes, opts ...Option) (*Graph, error) {
	members, ok := topology[kind]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", kind)
	}
	all := nodes.byName()
	g := &Graph{
		kind:   kind,
		nodes:  make(map[Node]NodeFunc, len(members)),
		policy: PolicyApproval,
	}
	for _, n := range members {
		if all[n] == nil {
			return nil, fmt.Errorf("pipeline %s: node %s not provided", kind, n)
		}
		g.nodes[n] = all[n]
	}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if g.dryRun {
		g.store = nil
		g.recorder = nil
	}
	return g, nil
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (g *Graph) SetProgress(w io.Writer) {
	g.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (g *Graph) logf(format string, args ...interface{}) {
	if g.progress != nil {
		fmt.Fprintf(g.progress, "  → "+format+"\n", args...)
	}
}

// next is the edge table.
func (g *Graph) next(from Node, s state.IssueState) Node {
	switch from {
	case Intake:
		if RouteAfterIntake(s) == End {
			return End
		}
		if g.kind == KindFix {
			return Fix
		}
		return Triage
	case Triage:
		if g.kind == KindTriage {
			return End
		}
		return RouteAfterTriage(s)
	case Analyze:
		policy := g.policy
		if g.kind == KindAnalyze {
			policy = policyHold
		}
		return RouteAfterAnalyze(s, policy)
	case Fix:
		return RouteAfterFix(s)
	case PostComment:
		return ApplyLabels
	}
	return End
}

func isAction(n Node) bool {
	return n == PostComment || n == ApplyLabels
}

// Invoke runs the pipeline and returns the final state. With a threadID and
// a checkpoint store, an unfinished run of the same pipeline resumes at the
// node that had not yet completed, from its checkpointed state. Any other
// run starts at intake from initial; the fix pipeline also takes the triage
// and analysis verdicts of the checkpoint.
//
// On error the returned state is the state before the failing node.
func (g *Graph) Invoke(ctx context.Context, initial state.IssueState, threadID string) (state.IssueState, error) {
	started := time.Now()
	s, entry, err := g.resume(ctx, initial, threadID)
	if err != nil {
		return initial, err
	}

	log := g.logger.With("pipeline", string(g.kind), "repo", s.Repo, "issue", s.IssueNumber)
	log.Info("run started", "entry", string(entry), "dry_run", g.dryRun)

	node := entry
	for steps := 0; node != End; steps++ {
		if steps >= maxSteps {
			return s, &StageError{Stage: node, Err: ErrStepLimit}
		}
		fn, ok := g.nodes[node]
		if !ok {
			return s, &StageError{Stage: node, Err: fmt.Errorf("not part of the %s pipeline", g.kind)}
		}

		if g.dryRun && isAction(node) {
			g.logf("%s: skipped (dry run)", node)
			node = g.next(node, s)
			continue
		}

		u, err := g.runNode(ctx, node, fn, s)
		if err != nil {
			log.Error("node failed", "node", string(node), "error", err)
			g.save(ctx, threadID, node, s)
			return s, &StageError{Stage: node, Err: err}
		}
		if !u.IsEmpty() {
			log.Debug("state updated", "node", string(node), "fields", u.Fields())
			s = s.Merge(u)
		}

		next := g.next(node, s)
		log.Debug("routed", "from", string(node), "to", string(next))
		g.save(ctx, threadID, next, s)
		node = next
	}

	log.Info("run finished", "elapsed", time.Since(started).Round(time.Millisecond).String())
	if g.recorder != nil {
		if err := g.recorder.Record(ctx, string(g.kind), started, s); err != nil {
			log.Warn("record run failed", "error", err)
		}
	}
	return s, nil
}

func (g *Graph) runNode(ctx context.Context, node Node, fn NodeFunc, s state.IssueState) (state.Update, error) {
	nodeMetricsOnce.Do(initNodeMetrics)
	attrs := []attribute.KeyValue{
		attribute.String("beneissue.node", string(node)),
		attribute.String("beneissue.pipeline", string(g.kind)),
	}
	ctx, span := telemetry.Tracer("github.com/opendataloader-project/beneissue/graph").Start(ctx, "beneissue.node."+string(node))
	defer span.End()
	span.SetAttributes(append(attrs,
		attribute.String("beneissue.repo", s.Repo),
		attribute.Int("beneissue.issue", s.IssueNumber),
	)...)

	g.logf("%s: running", node)
	start := time.Now()
	u, err := fn(ctx, s.Clone())
	elapsed := time.Since(start)
	if nodeMetrics.duration != nil {
		nodeMetrics.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logf("%s: failed after %s: %v", node, elapsed.Round(time.Millisecond), err)
		return state.Update{}, err
	}
	g.logf("%s: done in %s", node, elapsed.Round(time.Millisecond))
	return u, nil
}

// resume loads the checkpoint for threadID and picks the entry node.
func (g *Graph) resume(ctx context.Context, initial state.IssueState, threadID string) (state.IssueState, Node, error) {
	if threadID == "" || g.store == nil {
		return initial, Intake, nil
	}
	cp, err := g.store.Get(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return initial, Intake, nil
	}
	if err != nil {
		return initial, "", fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}

	if !cp.Completed && cp.Pipeline == string(g.kind) && cp.Next != "" {
		if _, ok := g.nodes[Node(cp.Next)]; ok {
			g.logf("resuming %s at %s", threadID, cp.Next)
			return applyInput(cp.State, initial), Node(cp.Next), nil
		}
	}

	// A new run owns its state. The fix pipeline has no triage or analyze
	// node, so it takes those verdicts from the previous run.
	if g.kind == KindFix {
		return cp.State.WithVerdicts(initial), Intake, nil
	}
	return initial, Intake, nil
}

// applyInput overlays the input fields of in onto base.
func applyInput(base, in state.IssueState) state.IssueState {
	out := base.Clone()
	out.Repo = in.Repo
	out.IssueNumber = in.IssueNumber
	if in.ProjectRoot != "" {
		out.ProjectRoot = in.ProjectRoot
	}
	out.Command = in.Command
	return out
}

// save writes a checkpoint. Failures are logged; a run never fails on them.
func (g *Graph) save(ctx context.Context, threadID string, next Node, s state.IssueState) {
	if g.store == nil || threadID == "" {
		return
	}
	cp := checkpoint.Checkpoint{
		ThreadID:  threadID,
		Pipeline:  string(g.kind),
		Completed: next == End,
		State:     s,
		UpdatedAt: time.Now().UTC(),
	}
	if next != End {
		cp.Next = string(next)
	}
	if err := g.store.Put(ctx, cp); err != nil {
		g.logger.Warn("save checkpoint failed", "thread", threadID, "error", err)
	}
}

var nodeMetrics struct {
	duration metric.Float64Histogram
}

var nodeMetricsOnce sync.Once

func initNodeMetrics() {
	m := telemetry.Meter("github.com/opendataloader-project/beneissue/graph")
	nodeMetrics.duration, _ = m.Float64Histogram("beneissue.node.duration",
		metric.WithDescription("Workflow node execution time"),
		metric.WithUnit("s"),
	)
}
