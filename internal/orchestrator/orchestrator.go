// Package orchestrator runs the pipeline graph for one task: list files,
// interpret the task, build context, then generate, apply and verify until
// verification passes or the retry budget is spent.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasnoah/autocoder/internal/classify"
	appctx "github.com/lucasnoah/autocoder/internal/context"
	"github.com/lucasnoah/autocoder/internal/db"
	"github.com/lucasnoah/autocoder/internal/fsys"
	"github.com/lucasnoah/autocoder/internal/modify"
	"github.com/lucasnoah/autocoder/internal/pipeline"
	"github.com/lucasnoah/autocoder/internal/task"
	"github.com/lucasnoah/autocoder/internal/verify"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeEscalated Outcome = "escalated"
	OutcomeAborted   Outcome = "aborted"
)

// Result is returned by Run.
type Result struct {
	Outcome Outcome         `json:"outcome"`
	Summary string          `json:"summary"`
	State   *pipeline.State `json:"state"`
}

// Deps are the collaborators of an Orchestrator. Recorder, Artifacts and
// Logger are optional.
type Deps struct {
	FS         fsys.FS
	Classifier *classify.Classifier
	Lists      *classify.Store
	Generator  *modify.Generator
	Applier    *modify.Applier
	Verifier   *verify.Verifier
	Recorder   db.Recorder
	Artifacts  *pipeline.Store
	Logger     *zap.Logger
}

// Options tunes a run.
type Options struct {
	MaxIterations int
	// MaxFileBytes truncates file bodies in the context; 0 disables.
	MaxFileBytes int
	Depth        classify.Depth
	// Refresh reclassifies even when persisted lists exist.
	Refresh bool
	// NewRunID overrides run id generation.
	NewRunID func() string
}

// Orchestrator executes the pipeline graph.
type Orchestrator struct {
	fs         fsys.FS
	classifier *classify.Classifier
	lists      *classify.Store
	assembler  *appctx.Assembler
	generator  *modify.Generator
	applier    *modify.Applier
	verifier   *verify.Verifier
	recorder   db.Recorder
	artifacts  *pipeline.Store
	log        *zap.Logger
	opts       Options
	progress   io.Writer // live progress output; nil = silent
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Recorder == nil {
		deps.Recorder = db.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Lists == nil {
		deps.Lists = classify.NewStore(deps.FS)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = pipeline.DefaultMaxIterations
	}
	if opts.Depth == "" {
		opts.Depth = classify.DepthTopLevel
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Orchestrator{
		fs:         deps.FS,
		classifier: deps.Classifier,
		lists:      deps.Lists,
		assembler:  appctx.NewAssembler(deps.FS),
		generator:  deps.Generator,
		applier:    deps.Applier,
		verifier:   deps.Verifier,
		recorder:   deps.Recorder,
		artifacts:  deps.Artifacts,
		log:        deps.Logger,
		opts:       opts,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "  → "+format+"\n", args...)
	}
}

// Graph builds the pipeline graph with this orchestrator's node handlers.
func (o *Orchestrator) Graph() *pipeline.Graph {
	return pipeline.NewGraph(pipeline.NodeInit).
		AddNode(pipeline.NodeInit, o.initNode).
		AddNode(pipeline.NodeListFiles, o.listFiles).
		AddNode(pipeline.NodeInterpretTask, o.interpretTask).
		AddNode(pipeline.NodeBuildContext, o.buildContext).
		AddNode(pipeline.NodeGenerate, o.generate).
		AddNode(pipeline.NodeApply, o.apply).
		AddNode(pipeline.NodeVerify, o.verify).
		AddEdge(pipeline.NodeInit, pipeline.NodeListFiles).
		AddEdge(pipeline.NodeListFiles, pipeline.NodeInterpretTask).
		AddEdge(pipeline.NodeInterpretTask, pipeline.NodeBuildContext).
		AddEdge(pipeline.NodeBuildContext, pipeline.NodeGenerate).
		AddEdge(pipeline.NodeGenerate, pipeline.NodeApply).
		AddEdge(pipeline.NodeApply, pipeline.NodeVerify).
		AddConditionalEdge(pipeline.NodeVerify, routeVerify)
}

// routeVerify ends the run on success, retries while budget remains and
// escalates otherwise.
func routeVerify(s *pipeline.State) pipeline.Transition {
	switch {
	case s.Verification != nil && s.Verification.Succeeded:
		return pipeline.Transition{To: pipeline.NodeDone}
	case s.Iteration < s.MaxIterations:
		return pipeline.Transition{To: pipeline.NodeGenerate, Retry: true}
	default:
		return pipeline.Transition{To: pipeline.NodeEscalated}
	}
}

// Run executes the graph for one task description. The returned error is
// reserved for a malformed graph; every run outcome, including failures,
// is described by Result.
func (o *Orchestrator) Run(ctx context.Context, description string) (*Result, error) {
	g := o.Graph()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline graph: %w", err)
	}

	st := pipeline.NewState(o.opts.NewRunID(), o.fs.Root(), description, o.opts.MaxIterations)
	o.logf("run %s started (max %d retries)", st.RunID, st.MaxIterations)
	o.log.Info("run started",
		zap.String("run_id", st.RunID),
		zap.String("root", st.ProjectRoot),
		zap.Int("max_iterations", st.MaxIterations))
	if err := o.recorder.StartRun(db.Run{
		ID:            st.RunID,
		ProjectRoot:   st.ProjectRoot,
		Description:   description,
		MaxIterations: st.MaxIterations,
		StartedAt:     st.StartedAt,
	}); err != nil {
		o.log.Warn("record run start", zap.Error(err))
	}

	node := g.Entry()
	for !node.Terminal() {
		if err := ctx.Err(); err != nil {
			st.Fail(node, pipeline.CategoryCancelled, err)
			o.event(st, "cancelled", node, err.Error())
			node = pipeline.NodeEscalated
			break
		}

		st.Current = node
		o.event(st, "enter", node, "")
		handler, _ := g.Handler(node)
		if err := handler(ctx, st); err != nil {
			if errors.Is(err, classify.ErrAborted) {
				st.Aborted = true
				o.event(st, "aborted", node, err.Error())
				node = pipeline.NodeAborted
				break
			}
			cat := categorize(ctx, err)
			st.Fail(node, cat, err)
			o.event(st, "error", node, fmt.Sprintf("%s: %v", cat, err))
			o.log.Warn("node failed",
				zap.String("node", string(node)),
				zap.String("category", string(cat)),
				zap.Error(err))
			node = pipeline.NodeEscalated
			break
		}

		t, err := g.Next(node, st)
		if err != nil {
			st.Fail(node, pipeline.CategoryInternal, err)
			node = pipeline.NodeEscalated
			break
		}
		if t.Retry {
			st.Iteration++
			o.logf("verification failed, retrying (%d/%d)", st.Iteration, st.MaxIterations)
			o.event(st, "retry", t.To, st.Verification.Summary)
		}
		node = t.To
	}

	st.Current = node
	res := &Result{Outcome: Outcome(st.Outcome()), Summary: Summarize(st), State: st}
	o.finish(st, res)
	return res, nil
}

func (o *Orchestrator) finish(st *pipeline.State, res *Result) {
	o.event(st, "finish", st.Current, string(res.Outcome))
	if err := o.recorder.FinishRun(st.RunID, string(res.Outcome), string(st.Task.Kind), st.Iteration, res.Summary); err != nil {
		o.log.Warn("record run finish", zap.Error(err))
	}
	if o.artifacts != nil {
		if err := o.artifacts.SaveState(st); err != nil {
			o.log.Warn("save run state", zap.Error(err))
		}
	}
	o.logf("run %s %s", st.RunID, res.Outcome)
	o.log.Info("run finished",
		zap.String("run_id", st.RunID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("iteration", st.Iteration))
}

func (o *Orchestrator) event(st *pipeline.State, event string, node pipeline.Node, detail string) {
	o.log.Debug("pipeline event",
		zap.String("run_id", st.RunID),
		zap.String("event", event),
		zap.String("node", string(node)),
		zap.Int("iteration", st.Iteration))
	if err := o.recorder.LogPipelineEvent(st.RunID, event, string(node), st.Iteration, detail); err != nil {
		o.log.Warn("record pipeline event", zap.Error(err))
	}
}

// Summarize renders the human-readable outcome of a finished state.
func Summarize(st *pipeline.State) string {
	attempts := st.Iteration + 1
	switch st.Current {
	case pipeline.NodeDone:
		return fmt.Sprintf("Task completed after %d attempt(s): %s", attempts, verificationText(st))
	case pipeline.NodeAborted:
		return "Aborted: the proposed file lists were not approved."
	case pipeline.NodeEscalated:
		if st.Error != nil {
			return fmt.Sprintf("Escalated at %s (%s error): %s", st.Error.Origin, st.Error.Category, st.Error.Message)
		}
		return fmt.Sprintf("Escalated after %d attempt(s); verification still failing:\n%s", attempts, verificationText(st))
	}
	return fmt.Sprintf("Run stopped at %s", st.Current)
}

func verificationText(st *pipeline.State) string {
	if st.Verification == nil {
		return "no verification result"
	}
	return strings.TrimSpace(st.Verification.Detail)
}

// Node handlers.

func (o *Orchestrator) initNode(ctx context.Context, st *pipeline.State) error {
	root, err := o.fs.Stat(".")
	if err != nil {
		return &environmentError{msg: fmt.Sprintf("project root %s is not accessible: %v", st.ProjectRoot, err)}
	}
	if !root.IsDir {
		return &environmentError{msg: fmt.Sprintf("project root %s is not a directory", st.ProjectRoot)}
	}
	st.AddTurn(pipeline.RoleSystem, "Project root: "+st.ProjectRoot)
	return nil
}

func (o *Orchestrator) listFiles(ctx context.Context, st *pipeline.State) error {
	var (
		res *classify.Result
		err error
	)
	if !o.opts.Refresh && o.lists.Exists() {
		res, err = o.lists.Load()
		if err != nil {
			return fmt.Errorf("load project lists: %w", err)
		}
		o.logf("using saved project lists (%d files)", len(res.Included))
	} else {
		if o.classifier == nil {
			return errors.New("no classifier configured and no saved project lists")
		}
		o.logf("classifying project files (%s)...", o.opts.Depth)
		res, err = o.classifier.Run(ctx, o.opts.Depth, o.lists)
		if err != nil {
			return err
		}
		o.logf("classified: %d included, %d excluded", len(res.Included), len(res.Excluded))
	}
	if len(res.Included) == 0 {
		o.log.Warn("no project files included", zap.String("run_id", st.RunID))
	}
	st.IncludedFiles = res.Included
	return nil
}

func (o *Orchestrator) interpretTask(ctx context.Context, st *pipeline.State) error {
	st.Task = task.Interpret(st.Description)
	st.AddTurn(pipeline.RoleSystem, task.Prompt(st.Task))
	o.logf("task: %s, targets %v, %d subtask(s)", st.Task.Kind, st.Task.TargetFiles, len(st.Task.Subtasks))
	return nil
}

func (o *Orchestrator) buildContext(ctx context.Context, st *pipeline.State) error {
	snap := o.assembler.Build(st.IncludedFiles).Truncate(o.opts.MaxFileBytes)
	for p, err := range snap.Unreadable {
		o.log.Warn("file unreadable while building context", zap.String("path", p), zap.Error(err))
	}
	st.Files = snap.Files
	st.Context = snap.Text
	st.Truncated = snap.Truncated
	o.logf("context built: %d files, %d bytes", len(snap.Paths), len(snap.Text))
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, st *pipeline.State) error {
	req := modify.Request{
		Context:     st.Context,
		Task:        st.Task,
		Truncated:   st.Truncated,
		Attempt:     st.Iteration,
		MaxAttempts: st.MaxIterations,
	}
	if st.Iteration > 0 && st.Verification != nil {
		req.Failure = st.Verification.Detail
		req.Changed = modify.ChangedContent(st.Files, st.Changed)
	}

	o.logf("generating modification (attempt %d)...", st.Iteration+1)
	gen, err := o.generator.Generate(ctx, req)
	if gen != nil {
		o.saveArtifact(st, func(attempt int) error {
			return o.artifacts.SavePrompt(st.RunID, attempt, gen.Prompt)
		})
	}
	if err != nil {
		return err
	}
	st.PendingModification = gen.Text
	st.AddTurn(pipeline.RoleAssistant, gen.Text)
	o.saveArtifact(st, func(attempt int) error {
		return o.artifacts.SaveResponse(st.RunID, attempt, gen.Text)
	})
	return nil
}

func (o *Orchestrator) apply(ctx context.Context, st *pipeline.State) error {
	res, err := o.applier.Apply(st.PendingModification, st.Task.TargetFiles, st.Files)
	if res != nil {
		st.Files = res.Files
		st.Changed = res.Changed
	}
	if err != nil {
		var pe *modify.ParseError
		if errors.As(err, &pe) {
			return err
		}
		return &environmentError{msg: err.Error(), err: err}
	}
	st.AddTurn(pipeline.RoleSystem, "Applied changes to: "+strings.Join(res.Changed, ", "))
	o.logf("applied changes to %d file(s): %v", len(res.Changed), res.Changed)
	return nil
}

func (o *Orchestrator) verify(ctx context.Context, st *pipeline.State) error {
	o.logf("running %s...", o.verifier.Command())
	r := o.verifier.Verify(ctx, st.ProjectRoot)
	st.Verification = &pipeline.Verification{
		Succeeded:   r.Succeeded,
		Detail:      r.Detail,
		Summary:     r.Summary,
		Environment: r.Environment,
		ExitCode:    r.ExitCode,
	}
	st.AddTurn(pipeline.RoleSystem, "Verification: "+r.Summary)

	if err := o.recorder.LogVerifyRun(db.VerifyRun{
		RunID:       st.RunID,
		Iteration:   st.Iteration,
		Command:     r.Command,
		Succeeded:   r.Succeeded,
		Environment: r.Environment,
		ExitCode:    r.ExitCode,
		DurationMs:  int(r.Duration.Milliseconds()),
		Summary:     r.Summary,
		Detail:      r.Detail,
	}); err != nil {
		o.log.Warn("record verification", zap.Error(err))
	}
	o.saveArtifact(st, func(attempt int) error {
		return o.artifacts.SaveVerification(st.RunID, attempt, st.Verification)
	})

	if r.Environment {
		return &environmentError{msg: r.Detail}
	}
	if r.Succeeded {
		st.Error = nil
		o.logf("verification passed: %s", r.Summary)
	} else {
		o.logf("verification failed: %s", r.Summary)
	}
	return nil
}

func (o *Orchestrator) saveArtifact(st *pipeline.State, save func(attempt int) error) {
	if o.artifacts == nil {
		return
	}
	if err := save(st.Iteration + 1); err != nil {
		o.log.Warn("save run artifact", zap.String("run_id", st.RunID), zap.Error(err))
	}
}
