package graph

import (
	"context"
	"errors"
	"testing"

	"smartdoc/internal/models"
	"smartdoc/internal/rag"

	langgraph "github.com/smallnest/langgraphgo/graph"
	"github.com/stretchr/testify/require"
)

func TestNodeDoesNotShareState(t *testing.T) {
	mutate := node(func(_ context.Context, s State) (State, error) {
		s.Docs[0].Chunk.Content = "changed"
		s.Answer = "done"
		return s, nil
	})

	in := State{Question: "q", Docs: []models.ScoredChunk{{Chunk: models.Chunk{ChunkID: 1, Content: "orig"}}}}
	res, err := mutate(context.Background(), in)
	require.NoError(t, err)

	out := res.(State)
	require.Equal(t, "done", out.Answer)
	require.Equal(t, "changed", out.Docs[0].Chunk.Content)
	require.Equal(t, "orig", in.Docs[0].Chunk.Content)
	require.Empty(t, in.Answer)
}

func TestNodeRejectsForeignState(t *testing.T) {
	called := false
	n := node(func(_ context.Context, s State) (State, error) {
		called = true
		return s, nil
	})

	_, err := n(context.Background(), map[string]string{"question": "q"})
	require.ErrorContains(t, err, "unexpected state type")
	require.False(t, called)
}

func TestNodeRunsInsideLanggraph(t *testing.T) {
	g := langgraph.NewStateGraph()
	g.AddNode("answer", node(func(_ context.Context, s State) (State, error) {
		s.Answer = "echo: " + s.Question
		return s, nil
	}))
	g.AddEdge("answer", langgraph.END)
	g.SetEntryPoint("answer")

	r, err := g.Compile()
	require.NoError(t, err)

	out, err := r.Invoke(context.Background(), State{Question: "hi"})
	require.NoError(t, err)
	require.Equal(t, State{Question: "hi", Answer: "echo: hi"}, out)
}

type stubAnswerer struct {
	questions []string
	res       rag.Result
	err       error
}

func (s *stubAnswerer) Answer(_ context.Context, q string) (rag.Result, error) {
	s.questions = append(s.questions, q)
	return s.res, s.err
}

func TestBuildRunsInputThenRetrieve(t *testing.T) {
	docs := []models.ScoredChunk{{Chunk: models.Chunk{ChunkID: 2, Content: "evidence"}, Score: 0.7}}
	a := &stubAnswerer{res: rag.Result{Answer: "42", Docs: docs}}

	r, err := Build(a)
	require.NoError(t, err)
	require.Equal(t, []string{NodeInput, NodeRetrieve}, r.Nodes())

	for i := 0; i < 2; i++ {
		out, err := r.Invoke(context.Background(), State{Question: "meaning?"})
		require.NoError(t, err)
		require.Equal(t, State{Question: "meaning?", Docs: docs, Answer: "42"}, out)
	}
	require.Equal(t, []string{"meaning?", "meaning?"}, a.questions)

	out, err := r.Invoke(context.Background(), State{Question: "again"})
	require.NoError(t, err)
	out.Docs[0].Chunk.Content = "tampered"
	require.Equal(t, "evidence", docs[0].Chunk.Content)
}

func TestBuildPropagatesErrors(t *testing.T) {
	cause := errors.New("boom")
	r, err := Build(&stubAnswerer{err: cause})
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), State{Question: "q"})
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "node retrieve")
}

func TestInvokeHonoursCancellation(t *testing.T) {
	a := &stubAnswerer{}
	r, err := Build(a)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Invoke(ctx, State{Question: "q"})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, a.questions)
}
