package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

// constNode emits its "value" input.
type constNode struct{}

func (constNode) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:    "Const",
		Required: []nodes.Input{{Name: "value", Type: nodes.IntType, Min: nodes.Int(0), Max: nodes.Int(100)}},
		Outputs:  []nodes.Output{{Name: "value", Type: nodes.IntType}},
	}
}

func (constNode) Execute(_ context.Context, in nodes.Inputs) (*nodes.Result, error) {
	v, err := in.Int("value")
	if err != nil {
		return nil, err
	}
	return &nodes.Result{Outputs: []any{v}}, nil
}

type addNode struct{}

func (addNode) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class: "Add",
		Required: []nodes.Input{
			{Name: "a", Type: nodes.IntType},
			{Name: "b", Type: nodes.IntType, Default: 1},
		},
		Outputs: []nodes.Output{{Name: "sum", Type: nodes.IntType}},
	}
}

func (addNode) Execute(_ context.Context, in nodes.Inputs) (*nodes.Result, error) {
	a, err := in.Int("a")
	if err != nil {
		return nil, err
	}
	b, err := in.Int("b")
	if err != nil {
		return nil, err
	}
	return &nodes.Result{Outputs: []any{a + b}}, nil
}

type textNode struct{}

func (textNode) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:    "Text",
		Required: []nodes.Input{{Name: "text", Type: nodes.StringType}},
		Outputs:  []nodes.Output{{Name: "text", Type: nodes.StringType}},
	}
}

func (textNode) Execute(_ context.Context, in nodes.Inputs) (*nodes.Result, error) {
	s, err := in.String("text")
	return &nodes.Result{Outputs: []any{s}}, err
}

// sinkNode records what it receives, hidden inputs included.
type sinkNode struct {
	mu   sync.Mutex
	seen []nodes.Inputs
	err  error
}

func (*sinkNode) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:    "Sink",
		Required: []nodes.Input{{Name: "value", Type: nodes.IntType}},
		Hidden: []nodes.Input{
			{Name: "prompt", Type: nodes.PromptType},
			{Name: "extra_pnginfo", Type: nodes.ExtraPNGInfoType},
		},
		OutputNode: true,
	}
}

func (s *sinkNode) Execute(_ context.Context, in nodes.Inputs) (*nodes.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	s.seen = append(s.seen, in)

	v, _ := in.Int("value")
	return &nodes.Result{UI: map[string]any{"value": []any{v}}}, nil
}

type brokenNode struct{}

func (brokenNode) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:   "Broken",
		Outputs: []nodes.Output{{Name: "value", Type: nodes.IntType}},
	}
}

func (brokenNode) Execute(context.Context, nodes.Inputs) (*nodes.Result, error) {
	return &nodes.Result{}, nil
}

func newExecutor(t *testing.T, opts ...Option) (*WorkflowExecutor, *sinkNode) {
	t.Helper()

	sink := &sinkNode{}
	registry := nodes.NewRegistry()
	registry.MustRegister(constNode{}, addNode{}, textNode{}, sink, brokenNode{})
	return NewWorkflowExecutor(registry, opts...), sink
}

func mustParse(t *testing.T, prompt string) *Graph {
	t.Helper()

	g, err := Parse([]byte(prompt))
	must.NoError(t, err)
	return g
}

const chainPrompt = `{
	"1": {"class_type": "Const", "inputs": {"value": 40}, "_meta": {"title": "Forty"}},
	"2": {"class_type": "Add", "inputs": {"a": ["1", 0], "b": 2}},
	"10": {"class_type": "Sink", "inputs": {"value": ["2", 0]}},
	"3": {"class_type": "Const", "inputs": {"value": 5}}
}`

func TestParse(t *testing.T) {
	g := mustParse(t, `{
		"1": {"class_type": "Const", "inputs": {"value": 3, "ratio": 0.5, "name": "x", "tags": ["a", "b"]}},
		"2": {"class_type": "Add", "inputs": {"a": [1, 0], "b": ["1", 0]}, "_meta": {"title": "Sum"}}
	}`)

	must.MapLen(t, 2, g.Nodes)
	must.Eq(t, []string{"1", "2"}, g.IDs())

	first := g.Nodes["1"]
	must.EqOp(t, "Const", first.Class)
	must.EqOp(t, 3, first.Inputs["value"].(int))
	must.EqOp(t, 0.5, first.Inputs["ratio"].(float64))
	must.EqOp(t, "x", first.Inputs["name"].(string))
	must.Eq(t, []any{"a", "b"}, first.Inputs["tags"].([]any))
	must.MapEmpty(t, first.Links)

	second := g.Nodes["2"]
	must.EqOp(t, "Sum", second.Title)
	must.Eq(t, Link{NodeID: "1", Port: 0}, second.Links["a"])
	must.Eq(t, Link{NodeID: "1", Port: 0}, second.Links["b"])

	must.MapContainsKeys(t, g.Raw, []string{"1", "2"})
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`))
	must.ErrorIs(t, err, ErrInvalidPrompt)

	_, err = Parse([]byte(`{"1": {"inputs": {}}}`))
	must.ErrorIs(t, err, ErrInvalidPrompt)

	_, err = Read(strings.NewReader(`{"1": `))
	must.ErrorIs(t, err, ErrInvalidPrompt)
}

func TestLinkJSON(t *testing.T) {
	data, err := Link{NodeID: "7", Port: 1}.MarshalJSON()
	must.NoError(t, err)
	must.EqOp(t, `["7",1]`, string(data))
}

func TestIDsOrdering(t *testing.T) {
	g := &Graph{Nodes: map[string]*Node{"10": {}, "2": {}, "b": {}, "a": {}, "1": {}}}
	must.Eq(t, []string{"1", "2", "10", "a", "b"}, g.IDs())
}

func TestExecute(t *testing.T) {
	type step struct {
		id          string
		done, total int
	}
	var steps []step

	exec, sink := newExecutor(t, WithProgress(func(nodeID, _ string, done, total int) {
		steps = append(steps, step{nodeID, done, total})
	}))
	g := mustParse(t, chainPrompt)

	extra := ExtraData{ExtraPNGInfo: map[string]any{"workflow": map[string]any{"nodes": []any{}}}}
	outputs, err := exec.Execute(context.Background(), g, extra)
	must.NoError(t, err)

	must.Eq(t, Outputs{"10": {"value": []any{42}}}, outputs)

	// Node 3 does not feed an output and is skipped.
	must.Eq(t, []step{{"1", 1, 3}, {"2", 2, 3}, {"10", 3, 3}}, steps)

	must.Len(t, 1, sink.seen)
	in := sink.seen[0]
	must.EqOp(t, 42, in["value"].(int))
	must.Eq(t, g.Raw, in["prompt"].(map[string]any))
	must.Eq(t, extra.ExtraPNGInfo, in["extra_pnginfo"].(map[string]any))
}

func TestExecuteWithoutExtraPNGInfo(t *testing.T) {
	exec, sink := newExecutor(t)

	_, err := exec.Execute(context.Background(), mustParse(t, chainPrompt), ExtraData{})
	must.NoError(t, err)

	_, ok := sink.seen[0]["extra_pnginfo"]
	must.False(t, ok)
}

func TestExecuteAppliesDefaults(t *testing.T) {
	exec, _ := newExecutor(t)

	outputs, err := exec.Execute(context.Background(), mustParse(t, `{
		"1": {"class_type": "Const", "inputs": {"value": 1}},
		"2": {"class_type": "Add", "inputs": {"a": ["1", 0]}},
		"3": {"class_type": "Sink", "inputs": {"value": ["2", 0]}}
	}`), ExtraData{})
	must.NoError(t, err)
	must.Eq(t, map[string]any{"value": []any{2}}, outputs["3"])
}

func TestValidateNoOutputs(t *testing.T) {
	exec, _ := newExecutor(t)

	err := exec.Validate(mustParse(t, `{"1": {"class_type": "Const", "inputs": {"value": 1}}}`))
	must.ErrorIs(t, err, ErrNoOutputs)
}

func TestValidateNodeErrors(t *testing.T) {
	exec, _ := newExecutor(t)

	err := exec.Validate(mustParse(t, `{
		"1": {"class_type": "Const", "inputs": {"value": 500}},
		"2": {"class_type": "Text", "inputs": {"text": "hi"}},
		"3": {"class_type": "Add", "inputs": {"a": ["1", 0], "b": ["2", 0]}},
		"4": {"class_type": "Add", "inputs": {"a": ["1", 3]}},
		"5": {"class_type": "Sink", "inputs": {"value": ["3", 0]}},
		"6": {"class_type": "Sink", "inputs": {"value": ["4", 0]}}
	}`))
	must.ErrorIs(t, err, ErrValidation)

	var nodeErrors NodeErrors
	must.True(t, errors.As(err, &nodeErrors))
	must.MapContainsKeys(t, nodeErrors, []string{"1", "3", "4"})
	must.MapNotContainsKey(t, nodeErrors, "5")

	must.EqOp(t, "Const", nodeErrors["1"].Class)
	must.StrContains(t, nodeErrors["1"].Errors[0].Error(), "bigger than max")
	must.StrContains(t, nodeErrors["3"].Errors[0].Error(), "return type mismatch")
	must.StrContains(t, nodeErrors["4"].Errors[0].Error(), "has no output 3")
}

func TestValidateUnknownClass(t *testing.T) {
	exec, _ := newExecutor(t)

	err := exec.Validate(mustParse(t, `{
		"1": {"class_type": "Nope", "inputs": {}},
		"2": {"class_type": "Sink", "inputs": {"value": 1}}
	}`))

	var nodeErrors NodeErrors
	must.True(t, errors.As(err, &nodeErrors))
	must.ErrorIs(t, nodeErrors["1"].Errors[0], nodes.ErrUnknownClass)
}

func TestValidateCycle(t *testing.T) {
	exec, _ := newExecutor(t)

	err := exec.Validate(mustParse(t, `{
		"1": {"class_type": "Add", "inputs": {"a": ["2", 0]}},
		"2": {"class_type": "Add", "inputs": {"a": ["1", 0]}},
		"3": {"class_type": "Sink", "inputs": {"value": ["2", 0]}}
	}`))
	must.ErrorIs(t, err, ErrCycle)
}

func TestValidateMissingLinkTarget(t *testing.T) {
	exec, _ := newExecutor(t)

	err := exec.Validate(mustParse(t, `{"1": {"class_type": "Sink", "inputs": {"value": ["9", 0]}}}`))
	must.ErrorIs(t, err, ErrBadLink)

	var nodeErr *NodeError
	must.True(t, errors.As(err, &nodeErr))
	must.EqOp(t, "1", nodeErr.NodeID)
}

func TestExecuteNodeFailure(t *testing.T) {
	exec, sink := newExecutor(t)
	sink.err = errors.New("disk full")

	_, err := exec.Execute(context.Background(), mustParse(t, chainPrompt), ExtraData{})

	var nodeErr *NodeError
	must.True(t, errors.As(err, &nodeErr))
	must.EqOp(t, "10", nodeErr.NodeID)
	must.EqOp(t, "Sink", nodeErr.Class)
	must.EqError(t, err, "node 10 (Sink): disk full")
}

func TestExecuteOutputCountMismatch(t *testing.T) {
	exec, _ := newExecutor(t)

	_, err := exec.Execute(context.Background(), mustParse(t, `{
		"1": {"class_type": "Broken", "inputs": {}},
		"2": {"class_type": "Sink", "inputs": {"value": ["1", 0]}}
	}`), ExtraData{})

	var nodeErr *NodeError
	must.True(t, errors.As(err, &nodeErr))
	must.EqOp(t, "1", nodeErr.NodeID)
}

func TestExecuteCanceled(t *testing.T) {
	exec, sink := newExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, mustParse(t, chainPrompt), ExtraData{})
	must.ErrorIs(t, err, context.Canceled)
	must.SliceEmpty(t, sink.seen)
}
