// Package pipeline holds the state threaded through one run, the node graph
// that routes it, and the on-disk store for run artifacts.
package pipeline

import (
	"fmt"
	"time"

	"github.com/lucasnoah/autocoder/internal/task"
)

// DefaultMaxIterations bounds the generate/apply/verify retry loop.
const DefaultMaxIterations = 5

// Node names a step in the graph.
type Node string

const (
	NodeInit          Node = "init"
	NodeListFiles     Node = "list_files"
	NodeInterpretTask Node = "interpret_task"
	NodeBuildContext  Node = "build_context"
	NodeGenerate      Node = "generate"
	NodeApply         Node = "apply"
	NodeVerify        Node = "verify"

	NodeDone      Node = "done"
	NodeEscalated Node = "escalated"
	NodeAborted   Node = "aborted"
)

// Terminal reports whether n ends a run.
func (n Node) Terminal() bool {
	return n == NodeDone || n == NodeEscalated || n == NodeAborted
}

// Role tags a conversation turn.
type Role string

const (
	RoleHuman     Role = "human"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation log.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Category classifies node failures.
type Category string

const (
	CategoryEnvironment Category = "environment"
	CategoryService     Category = "service"
	CategoryStructural  Category = "structural"
	CategoryCancelled   Category = "cancelled"
	CategoryInternal    Category = "internal"
)

// NodeError records why a node failed.
type NodeError struct {
	Message  string   `json:"message"`
	Origin   Node     `json:"origin"`
	Category Category `json:"category"`
	// Context is the assembled context at the time of failure.
	Context string `json:"context,omitempty"`
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Origin, e.Category, e.Message)
}

// Verification is the outcome of the last Verify node.
type Verification struct {
	Succeeded   bool   `json:"succeeded"`
	Detail      string `json:"detail"`
	Summary     string `json:"summary,omitempty"`
	Environment bool   `json:"environment,omitempty"`
	ExitCode    int    `json:"exit_code"`
}

// State is the single record owned by the orchestrator for one run. Nodes
// receive it by pointer and update it in place.
type State struct {
	RunID        string `json:"run_id"`
	Description  string `json:"description"`
	ProjectRoot  string `json:"project_root"`
	Conversation []Turn `json:"conversation"`

	IncludedFiles []string          `json:"included_files"`
	Files         map[string]string `json:"-"`
	Context       string            `json:"-"`
	Truncated     []string          `json:"truncated,omitempty"`

	Task                task.Task     `json:"task"`
	PendingModification string        `json:"-"`
	Changed             []string      `json:"changed,omitempty"`
	Verification        *Verification `json:"verification,omitempty"`

	Iteration     int `json:"iteration"`
	MaxIterations int `json:"max_iterations"`

	Current Node       `json:"current"`
	Error   *NodeError `json:"error,omitempty"`
	Aborted bool       `json:"aborted,omitempty"`

	StartedAt string `json:"started_at"`
	UpdatedAt string `json:"updated_at"`
}

// NewState creates the state for a run. maxIterations <= 0 uses the default.
// The description becomes the first conversation turn.
func NewState(runID, projectRoot, description string, maxIterations int) *State {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	now := time.Now().UTC().Format(time.RFC3339)
	s := &State{
		RunID:         runID,
		Description:   description,
		ProjectRoot:   projectRoot,
		Files:         make(map[string]string),
		MaxIterations: maxIterations,
		Current:       NodeInit,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	s.AddTurn(RoleHuman, description)
	return s
}

// AddTurn appends to the conversation.
func (s *State) AddTurn(role Role, content string) {
	s.Conversation = append(s.Conversation, Turn{Role: role, Content: content})
}

// Fail records a node failure together with the current context.
func (s *State) Fail(origin Node, category Category, err error) {
	s.Error = &NodeError{
		Message:  err.Error(),
		Origin:   origin,
		Category: category,
		Context:  s.Context,
	}
}

// Outcome maps the current node to a run outcome.
func (s *State) Outcome() string {
	switch s.Current {
	case NodeDone:
		return "done"
	case NodeEscalated:
		return "escalated"
	case NodeAborted:
		return "aborted"
	}
	return "running"
}
