package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/autocoder/internal/approval"
	"github.com/lucasnoah/autocoder/internal/classify"
	"github.com/lucasnoah/autocoder/internal/config"
	"github.com/lucasnoah/autocoder/internal/db"
	"github.com/lucasnoah/autocoder/internal/fsys"
	"github.com/lucasnoah/autocoder/internal/ignore"
	"github.com/lucasnoah/autocoder/internal/llm"
	"github.com/lucasnoah/autocoder/internal/logging"
	"github.com/lucasnoah/autocoder/internal/modify"
	"github.com/lucasnoah/autocoder/internal/orchestrator"
	"github.com/lucasnoah/autocoder/internal/pipeline"
	"github.com/lucasnoah/autocoder/internal/verify"
)

// env is what every project command needs: the resolved root, its config
// and a logger.
type env struct {
	root    string
	cfg     *config.Config
	cfgPath string
	files   *fsys.OS
	log     *zap.Logger
}

// openEnv resolves --root, loads the config and builds the logger. The
// cleanup func flushes the logger and closes any log file.
func openEnv() (*env, func(), error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve project root: %w", err)
	}
	files, err := fsys.NewOS(root)
	if err != nil {
		return nil, nil, fmt.Errorf("open project root: %w", err)
	}

	cfg, path, err := loadConfig(root)
	if err != nil {
		return nil, nil, err
	}

	var (
		out     io.Writer = os.Stderr
		logFile *os.File
	)
	if cfg.Log.File != "" {
		p := cfg.Log.File
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		logFile, err = logging.OpenFile(p)
		if err != nil {
			return nil, nil, err
		}
		out = logFile
	}
	log, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  out,
		Verbose: verbose,
	})
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		_ = log.Sync()
		if logFile != nil {
			logFile.Close()
		}
	}
	e := &env{root: root, cfg: cfg, cfgPath: path, files: files, log: log}
	log.Debug("environment ready", zap.String("root", root), zap.String("config", path))
	return e, cleanup, nil
}

// loadConfig honours --config, then falls back to the project and home
// config files.
func loadConfig(root string) (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		return cfg, configPath, err
	}
	return config.LoadDefault(root)
}

// matcher compiles the project's ignore rules.
func (e *env) matcher() (*ignore.Matcher, error) {
	policy := ignore.PolicyDefaultsWin
	if e.cfg.Ignore.Policy == "user-wins" {
		policy = ignore.PolicyUserWins
	}
	return classify.BuildMatcher(e.files, classify.MatcherOptions{
		Patterns:      e.cfg.Ignore.Patterns,
		SkipGitignore: e.cfg.Ignore.SkipGitignore,
		Ignore:        ignore.Options{Policy: policy},
	})
}

// llmClient builds the generation client from config, the environment and
// the project's .env file.
func (e *env) llmClient(ctx context.Context) (llm.Client, error) {
	dotenv, err := config.LoadDotEnv(e.root)
	if err != nil {
		e.log.Warn("ignoring unreadable .env", zap.Error(err))
	}
	key, source, err := config.ResolveAPIKey(e.cfg.LLM, config.EnvLookup(os.Getenv, dotenv))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrNoAPIKey, err)
	}
	e.log.Debug("resolved api key", zap.String("provider", e.cfg.LLM.Provider), zap.String("source", source))
	return llm.New(ctx, llm.Config{
		Provider: e.cfg.LLM.Provider,
		Model:    e.cfg.LLM.Model,
		APIKey:   key,
		BaseURL:  e.cfg.LLM.BaseURL,
		Timeout:  e.cfg.LLM.TimeoutDuration(),
		Logger:   e.log,
	})
}

// approver picks how proposals are reviewed. override wins over config.
func (e *env) approver(cmd *cobra.Command, override string) classify.Approver {
	mode := e.cfg.Classify.Approval
	if override != "" {
		mode = override
	}
	switch mode {
	case "auto":
		return classify.AutoAccept{}
	case "tui":
		return approval.NewTUI(cmd.InOrStdin(), cmd.OutOrStdout())
	default:
		return approval.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	}
}

// classifier wires the item classifier. With categorizer "none" or without
// a client every remaining item is proposed for inclusion.
func (e *env) classifier(cmd *cobra.Command, client llm.Client, approvalMode string) (*classify.Classifier, error) {
	m, err := e.matcher()
	if err != nil {
		return nil, err
	}
	if e.cfg.Classify.Categorizer == "none" {
		client = nil
	}
	opts := classify.Options{
		MaxTokens: e.cfg.LLM.MaxOutputTokens,
		Logger:    e.log,
	}
	if e.cfg.Classify.Source == "manifest" {
		if opts.Manifest, err = classify.ReadManifest(e.files); err != nil {
			return nil, err
		}
	}
	return classify.New(e.files, m, client, e.approver(cmd, approvalMode), opts), nil
}

func (e *env) verifier() *verify.Verifier {
	return verify.New(&verify.ExecRunner{}, verify.Options{
		Command: e.cfg.Verify.Command,
		Parser:  e.cfg.Verify.Parser,
		Timeout: e.cfg.Verify.TimeoutDuration(),
		Logger:  e.log,
	})
}

// history opens and migrates the configured run history database. Driver
// "none" returns a nil DB.
func (e *env) history() (*db.DB, func(), error) {
	if e.cfg.History.Driver == "none" {
		return nil, func() {}, nil
	}
	d, err := db.OpenDriver(e.cfg.History.Driver, e.cfg.History.DSN, e.root)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// requireHistory is history for commands that only read it.
func (e *env) requireHistory() (*db.DB, func(), error) {
	d, cleanup, err := e.history()
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, fmt.Errorf("run history is disabled (history.driver: none)")
	}
	return d, cleanup, nil
}

func (e *env) artifacts() *pipeline.Store {
	if !e.cfg.Pipeline.ArtifactsEnabled() {
		return nil
	}
	return pipeline.ProjectStore(e.root)
}

// runOptions are the task command's overrides.
type runOptions struct {
	maxIterations int
	refresh       bool
	approval      string
}

// newOrchestrator wires every pipeline collaborator. History failures are
// logged and the run continues without recording.
func (e *env) newOrchestrator(ctx context.Context, cmd *cobra.Command, ro runOptions) (*orchestrator.Orchestrator, func(), error) {
	client, err := e.llmClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	cls, err := e.classifier(cmd, client, ro.approval)
	if err != nil {
		return nil, nil, err
	}

	var recorder db.Recorder = db.Nop{}
	cleanup := func() {}
	d, closeDB, err := e.history()
	switch {
	case err != nil:
		e.log.Warn("run history unavailable", zap.Error(err))
	case d != nil:
		recorder = d
		cleanup = closeDB
	}

	maxIter := e.cfg.Pipeline.MaxIterations
	if ro.maxIterations > 0 {
		maxIter = ro.maxIterations
	}
	depth, err := classify.ParseDepth(e.cfg.Classify.Depth)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	orch := orchestrator.New(orchestrator.Deps{
		FS:         e.files,
		Classifier: cls,
		Lists:      classify.NewStore(e.files),
		Generator:  modify.NewGenerator(client, e.root, e.cfg.LLM.MaxOutputTokens, e.log),
		Applier:    modify.NewApplier(e.files, e.log),
		Verifier:   e.verifier(),
		Recorder:   recorder,
		Artifacts:  e.artifacts(),
		Logger:     e.log,
	}, orchestrator.Options{
		MaxIterations: maxIter,
		MaxFileBytes:  e.cfg.Context.MaxFileBytes,
		Depth:         depth,
		Refresh:       ro.refresh,
	})
	return orch, cleanup, nil
}

// writeJSON prints v as indented JSON.
func writeJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
