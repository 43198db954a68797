package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/agent"
	"github.com/opendataloader-project/beneissue/internal/artifact"
	"github.com/opendataloader-project/beneissue/internal/checkpoint"
	"github.com/opendataloader-project/beneissue/internal/config"
	"github.com/opendataloader-project/beneissue/internal/db"
	"github.com/opendataloader-project/beneissue/internal/github"
	"github.com/opendataloader-project/beneissue/internal/graph"
	"github.com/opendataloader-project/beneissue/internal/llm"
	"github.com/opendataloader-project/beneissue/internal/logging"
	"github.com/opendataloader-project/beneissue/internal/metrics"
	"github.com/opendataloader-project/beneissue/internal/nodes"
	"github.com/opendataloader-project/beneissue/internal/state"
	"github.com/opendataloader-project/beneissue/internal/workspace"
)

// runtime is everything a command needs to run a pipeline.
type runtime struct {
	cfg         *config.Config
	logger      *slog.Logger
	gh          *github.Client
	deps        *nodes.Deps
	store       checkpoint.Store
	db          *db.DB // nil unless BENEISSUE_DATABASE_URL is set
	transcripts *artifact.S3Store
}

type runtimeOpts struct {
	// model builds the Anthropic client; required by triage and analyze.
	model bool
}

// newRuntime loads the config and wires the collaborators. The returned
// cleanup closes the database, if one was opened.
func newRuntime(cmd *cobra.Command, opts runtimeOpts) (*runtime, func(), error) {
	ctx := cmd.Context()
	logger := logging.New(cmd.ErrOrStderr())

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, nil, fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	gh := github.NewClient(&github.ExecRunner{})
	rt := &runtime{cfg: cfg, logger: logger, gh: gh}
	rt.deps = &nodes.Deps{
		Host:  gh,
		Agent: agent.NewRunner(&agent.ExecRunner{}, cfg.Agent.Command),
		Workspaces: workspace.NewManager(&workspace.ExecGit{}, "", pushToken(), workspace.Author{
			Name:  cfg.Git.AuthorName,
			Email: cfg.Git.AuthorEmail,
		}),
		Config: cfg,
		Labels: cfg.LabelTable(),
		Logger: logger,
	}

	if opts.model {
		t, err := llm.NewAnthropicTransport("")
		if err != nil {
			return nil, nil, err
		}
		client := llm.NewClient(t)
		client.SetMaxElapsed(cfg.AnalyzeTimeout())
		rt.deps.Classifier = client
		rt.deps.Assessor = client
	}

	// Transcripts are best effort: a misconfigured bucket must not stop a run.
	if s3, err := artifact.NewFromEnv(); err != nil {
		logger.Warn("transcript store disabled", "error", err)
	} else if s3 != nil {
		rt.transcripts = s3
		rt.deps.Transcripts = s3
	}

	if err := rt.openStore(ctx); err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if rt.db != nil {
			rt.db.Close()
		}
	}
	return rt, cleanup, nil
}

// pushToken is the token embedded in clone URLs so fixes can be pushed.
func pushToken() string {
	if v := os.Getenv("BENEISSUE_TOKEN"); v != "" {
		return v
	}
	return os.Getenv("GH_TOKEN")
}

// openStore picks the checkpoint backend named by the config and wraps it
// in the LRU cache.
func (rt *runtime) openStore(ctx context.Context) error {
	var base checkpoint.Store
	switch rt.cfg.Checkpoint.Backend {
	case config.BackendMemory:
		base = checkpoint.NewMemory()
	case config.BackendPostgres:
		d, err := openDB(ctx, rt.cfg)
		if err != nil {
			return err
		}
		rt.db = d
		base = checkpoint.NewPostgres(d)
	default:
		dir := rt.cfg.Checkpoint.Dir
		if dir == "" {
			d, err := checkpoint.DefaultDir()
			if err != nil {
				return err
			}
			dir = d
		}
		base = checkpoint.NewFile(dir)
	}

	cached, err := checkpoint.NewCached(base, checkpoint.DefaultCacheSize)
	if err != nil {
		return err
	}
	rt.store = cached
	return nil
}

// openDB opens and migrates the database named by BENEISSUE_DATABASE_URL.
func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (rt *runtime) graphNodes() graph.Nodes {
	return graph.Nodes{
		Intake:      rt.deps.Intake,
		Triage:      rt.deps.Triage,
		Analyze:     rt.deps.Analyze,
		Fix:         rt.deps.Fix,
		PostComment: rt.deps.PostComment,
		ApplyLabels: rt.deps.ApplyLabels,
	}
}

// run builds the pipeline for kind and invokes it for in.
func (rt *runtime) run(cmd *cobra.Command, kind graph.Kind, in state.IssueState, dryRun bool) (state.IssueState, error) {
	opts := []graph.Option{
		graph.WithPolicy(graph.Policy(rt.cfg.Fix.Policy)),
		graph.WithLogger(rt.logger),
	}
	if dryRun {
		opts = append(opts, graph.WithDryRun())
	} else {
		opts = append(opts, graph.WithCheckpoints(rt.store))
		if rt.db != nil {
			opts = append(opts, graph.WithRecorder(metrics.NewRecorder(rt.db, rt.logger)))
		}
	}

	g, err := graph.Build(kind, rt.graphNodes(), opts...)
	if err != nil {
		return in, err
	}
	g.SetProgress(cmd.ErrOrStderr())
	return g.Invoke(cmd.Context(), in, in.Key())
}
