package graph

import (
	"context"
	"fmt"

	"smartdoc/internal/rag"

	"github.com/rs/zerolog/log"
	langgraph "github.com/smallnest/langgraphgo/graph"
)

const (
	NodeInput    = "input"
	NodeRetrieve = "retrieve"
)

type Answerer interface {
	Answer(ctx context.Context, question string) (rag.Result, error)
}

// Flow is the compiled question answering graph. It is safe for concurrent
// use as long as the Answerer is.
type Flow struct {
	runnable *langgraph.StateRunnable
	nodes    []string
}

// node adapts a typed State step to the untyped langgraph node signature.
// Each step gets its own copy of the state.
func node(fn func(ctx context.Context, s State) (State, error)) func(context.Context, interface{}) (interface{}, error) {
	return func(ctx context.Context, in interface{}) (interface{}, error) {
		s, ok := in.(State)
		if !ok {
			return nil, fmt.Errorf("unexpected state type %T", in)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := fn(ctx, s.clone())
		if err != nil {
			return nil, err
		}
		return out.clone(), nil
	}
}

// Build wires the question answering flow: input, then retrieve, then END.
func Build(answerer Answerer) (*Flow, error) {
	g := langgraph.NewStateGraph()

	g.AddNode(NodeInput, node(func(_ context.Context, s State) (State, error) {
		log.Info().Str("question", s.Question).Msg("Received question")
		return s, nil
	}))

	g.AddNode(NodeRetrieve, node(func(ctx context.Context, s State) (State, error) {
		res, err := answerer.Answer(ctx, s.Question)
		if err != nil {
			return State{}, err
		}
		return State{Question: s.Question, Docs: res.Docs, Answer: res.Answer}, nil
	}))

	g.AddEdge(NodeInput, NodeRetrieve)
	g.AddEdge(NodeRetrieve, langgraph.END)
	g.SetEntryPoint(NodeInput)

	runnable, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile flow: %w", err)
	}
	return &Flow{runnable: runnable, nodes: []string{NodeInput, NodeRetrieve}}, nil
}

// Nodes returns the node names in execution order.
func (f *Flow) Nodes() []string {
	return append([]string(nil), f.nodes...)
}

// Invoke runs the flow and returns the final state. The caller's state is
// never modified.
func (f *Flow) Invoke(ctx context.Context, initial State) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	out, err := f.runnable.Invoke(ctx, initial.clone())
	if err != nil {
		return State{}, err
	}
	final, ok := out.(State)
	if !ok {
		return State{}, fmt.Errorf("unexpected final state type %T", out)
	}
	return final.clone(), nil
}
