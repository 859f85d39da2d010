package modify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	appctx "github.com/lucasnoah/autocoder/internal/context"
	"github.com/lucasnoah/autocoder/internal/llm"
	"github.com/lucasnoah/autocoder/internal/prompt"
	"github.com/lucasnoah/autocoder/internal/task"
)

// Request carries everything one generation attempt needs.
type Request struct {
	Context   string
	Task      task.Task
	Truncated []string

	// Retry fields; Attempt 0 is the first try.
	Attempt     int
	MaxAttempts int
	Failure     string
	// Changed holds the current content of files written by the previous attempt.
	Changed map[string]string
}

// Generation is the rendered prompt and the service's reply.
type Generation struct {
	Prompt string
	Text   string
}

// Generator renders the generate/retry prompt and calls the service.
type Generator struct {
	client      llm.Client
	projectRoot string
	maxTokens   int
	log         *zap.Logger
}

// NewGenerator creates a Generator. projectRoot is used for template overrides.
func NewGenerator(client llm.Client, projectRoot string, maxTokens int, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{client: client, projectRoot: projectRoot, maxTokens: maxTokens, log: log}
}

// Prompt renders the prompt for req without calling the service.
func (g *Generator) Prompt(req Request) (string, error) {
	vars := prompt.Vars{
		"context": req.Context,
		"task":    task.Prompt(req.Task),
	}
	if req.Attempt == 0 {
		vars["truncated"] = strings.Join(req.Truncated, ", ")
		return prompt.LoadAndRender(prompt.Generate, g.projectRoot, vars)
	}
	vars["attempt"] = strconv.Itoa(req.Attempt + 1)
	vars["max_attempts"] = strconv.Itoa(req.MaxAttempts + 1)
	vars["failure"] = req.Failure
	vars["changed_files"] = ""
	if len(req.Changed) > 0 {
		vars["changed_files"] = appctx.Format(req.Changed)
	}
	return prompt.LoadAndRender(prompt.Retry, g.projectRoot, vars)
}

// Generate renders the prompt and returns the service reply. Call failures
// and empty replies come back as *llm.ServiceError.
func (g *Generator) Generate(ctx context.Context, req Request) (*Generation, error) {
	if g.client == nil {
		return nil, &llm.ServiceError{Provider: "none", Err: llm.ErrNoAPIKey}
	}
	p, err := g.Prompt(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	g.log.Debug("requesting modification",
		zap.Int("attempt", req.Attempt),
		zap.Int("prompt_bytes", len(p)),
		zap.Strings("targets", req.Task.TargetFiles))

	text, err := g.client.Complete(ctx, p, g.maxTokens)
	if err != nil {
		return &Generation{Prompt: p}, asServiceError(err)
	}
	if strings.TrimSpace(text) == "" {
		return &Generation{Prompt: p}, &llm.ServiceError{Provider: "generate", Err: llm.ErrEmptyResponse}
	}
	return &Generation{Prompt: p, Text: text}, nil
}

func asServiceError(err error) error {
	var se *llm.ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &llm.ServiceError{Provider: "generate", Err: err}
}
