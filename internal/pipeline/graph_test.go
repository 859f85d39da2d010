package pipeline

import (
	"context"
	"strings"
	"testing"
)

func noop(context.Context, *State) error { return nil }

func TestGraph_NextPlainAndConditional(t *testing.T) {
	g := NewGraph(NodeInit).
		AddNode(NodeInit, noop).
		AddNode(NodeVerify, noop).
		AddEdge(NodeInit, NodeVerify).
		AddConditionalEdge(NodeVerify, func(s *State) Transition {
			if s.Verification != nil && s.Verification.Succeeded {
				return Transition{To: NodeDone}
			}
			return Transition{To: NodeInit, Retry: true}
		})
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	st := NewState("r", "/p", "x", 0)
	tr, err := g.Next(NodeInit, st)
	if err != nil || tr.To != NodeVerify || tr.Retry {
		t.Errorf("Next(init) = %+v, %v", tr, err)
	}

	tr, err = g.Next(NodeVerify, st)
	if err != nil || tr.To != NodeInit || !tr.Retry {
		t.Errorf("Next(verify, failed) = %+v, %v", tr, err)
	}

	st.Verification = &Verification{Succeeded: true}
	tr, err = g.Next(NodeVerify, st)
	if err != nil || tr.To != NodeDone {
		t.Errorf("Next(verify, ok) = %+v, %v", tr, err)
	}
}

func TestGraph_ValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph
		want  string
	}{
		{
			name:  "missing entry",
			build: func() *Graph { return NewGraph(NodeInit) },
			want:  "entry node init has no handler",
		},
		{
			name: "dangling node",
			build: func() *Graph {
				return NewGraph(NodeInit).AddNode(NodeInit, noop)
			},
			want: "node init has no outgoing edge",
		},
		{
			name: "unknown target",
			build: func() *Graph {
				return NewGraph(NodeInit).AddNode(NodeInit, noop).AddEdge(NodeInit, NodeApply)
			},
			want: "targets unknown node",
		},
		{
			name: "two outgoing edges",
			build: func() *Graph {
				return NewGraph(NodeInit).AddNode(NodeInit, noop).
					AddEdge(NodeInit, NodeDone).
					AddConditionalEdge(NodeInit, func(*State) Transition { return Transition{To: NodeDone} })
			},
			want: "already has an outgoing edge",
		},
		{
			name: "terminal handler",
			build: func() *Graph {
				return NewGraph(NodeInit).AddNode(NodeInit, noop).AddEdge(NodeInit, NodeDone).AddNode(NodeDone, noop)
			},
			want: "is terminal",
		},
		{
			name: "duplicate node",
			build: func() *Graph {
				return NewGraph(NodeInit).AddNode(NodeInit, noop).AddNode(NodeInit, noop).AddEdge(NodeInit, NodeDone)
			},
			want: "registered twice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestGraph_RouterToUnknownNode(t *testing.T) {
	g := NewGraph(NodeInit).
		AddNode(NodeInit, noop).
		AddConditionalEdge(NodeInit, func(*State) Transition { return Transition{To: NodeGenerate} })
	if _, err := g.Next(NodeInit, NewState("r", "/p", "x", 0)); err == nil {
		t.Fatal("expected error for router choosing unknown node")
	}
}

func TestNodeTerminal(t *testing.T) {
	for _, n := range []Node{NodeDone, NodeEscalated, NodeAborted} {
		if !n.Terminal() {
			t.Errorf("%s should be terminal", n)
		}
	}
	if NodeVerify.Terminal() {
		t.Error("verify should not be terminal")
	}
}

func TestNewStateDefaults(t *testing.T) {
	st := NewState("r", "/p", "do it", 0)
	if st.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want %d", st.MaxIterations, DefaultMaxIterations)
	}
	if st.Current != NodeInit || st.Outcome() != "running" {
		t.Errorf("Current/Outcome = %s/%s", st.Current, st.Outcome())
	}
	st.Current = NodeAborted
	if st.Outcome() != "aborted" {
		t.Errorf("Outcome = %s, want aborted", st.Outcome())
	}
}
