package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

var (
	ErrNoOutputs  = errors.New("prompt has no outputs")
	ErrCycle      = errors.New("cycle detected")
	ErrBadLink    = errors.New("invalid link")
	ErrValidation = errors.New("prompt failed validation")
)

// NodeError ties a failure to the node that raised it.
type NodeError struct {
	NodeID string
	Class  string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Class, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// NodeErrors collects validation failures per node id.
type NodeErrors map[string]*NodeValidation

type NodeValidation struct {
	Class  string
	Errors []error
}

func (e NodeErrors) Error() string {
	return fmt.Sprintf("%s: %d node(s) with errors", ErrValidation, len(e))
}

func (e NodeErrors) Unwrap() error {
	return ErrValidation
}

func (e NodeErrors) add(node *Node, err error) {
	v, ok := e[node.ID]
	if !ok {
		v = &NodeValidation{Class: node.Class}
		e[node.ID] = v
	}
	v.Errors = append(v.Errors, err)
}

// ExtraData is the client supplied context of a prompt.
type ExtraData struct {
	ExtraPNGInfo map[string]any `json:"extra_pnginfo,omitempty" msgpack:"extra_pnginfo,omitempty"`
}

// Outputs maps output node ids to their UI payloads.
type Outputs map[string]map[string]any

type Option func(*WorkflowExecutor)

// WithProgress registers a callback invoked after each node finishes.
func WithProgress(fn func(nodeID, class string, done, total int)) Option {
	return func(e *WorkflowExecutor) {
		e.progress = fn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *WorkflowExecutor) {
		e.logger = logger
	}
}

type WorkflowExecutor struct {
	registry *nodes.Registry
	logger   *zap.Logger
	progress func(nodeID, class string, done, total int)
}

func NewWorkflowExecutor(registry *nodes.Registry, opts ...Option) *WorkflowExecutor {
	e := &WorkflowExecutor{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks every node that contributes to an output node. It returns
// NodeErrors when any node fails, and ErrNoOutputs when nothing would run.
func (e *WorkflowExecutor) Validate(g *Graph) error {
	_, err := e.plan(g)
	return err
}

// Execute runs the nodes feeding output nodes in dependency order, one at a
// time, and returns the UI payload of every output node.
func (e *WorkflowExecutor) Execute(ctx context.Context, g *Graph, extra ExtraData) (Outputs, error) {
	order, err := e.plan(g)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*nodes.Result, len(order))
	outputs := make(Outputs)

	for i, node := range order {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}

		impl, err := e.registry.Get(node.Class)
		if err != nil {
			return outputs, &NodeError{NodeID: node.ID, Class: node.Class, Err: err}
		}
		def := impl.Definition()

		inputs, err := e.resolveInputs(node, def, results, g, extra)
		if err != nil {
			return outputs, &NodeError{NodeID: node.ID, Class: node.Class, Err: err}
		}

		e.logger.Debug("executing node", zap.String("node_id", node.ID), zap.String("class", node.Class))

		result, err := impl.Execute(ctx, inputs)
		if err != nil {
			e.logger.Error("node failed", zap.String("node_id", node.ID), zap.String("class", node.Class), zap.Error(err))
			return outputs, &NodeError{NodeID: node.ID, Class: node.Class, Err: err}
		}
		if result == nil {
			result = &nodes.Result{}
		}
		if len(result.Outputs) != len(def.Outputs) {
			return outputs, &NodeError{
				NodeID: node.ID,
				Class:  node.Class,
				Err:    fmt.Errorf("returned %d outputs, want %d", len(result.Outputs), len(def.Outputs)),
			}
		}

		results[node.ID] = result
		if def.OutputNode {
			ui := result.UI
			if ui == nil {
				ui = map[string]any{}
			}
			outputs[node.ID] = ui
		}

		if e.progress != nil {
			e.progress(node.ID, node.Class, i+1, len(order))
		}
	}

	return outputs, nil
}

func (e *WorkflowExecutor) resolveInputs(node *Node, def *nodes.Definition, results map[string]*nodes.Result, g *Graph, extra ExtraData) (nodes.Inputs, error) {
	inputs := make(nodes.Inputs, len(node.Inputs)+len(node.Links)+len(def.Hidden))
	for name, v := range node.Inputs {
		inputs[name] = v
	}

	for name, link := range node.Links {
		upstream, ok := results[link.NodeID]
		if !ok {
			return nil, fmt.Errorf("%w: input %s depends on node %s which has not run", ErrBadLink, name, link.NodeID)
		}
		if link.Port < 0 || link.Port >= len(upstream.Outputs) {
			return nil, fmt.Errorf("%w: input %s reads output %d of node %s", ErrBadLink, name, link.Port, link.NodeID)
		}
		inputs[name] = upstream.Outputs[link.Port]
	}

	for _, hidden := range def.Hidden {
		switch hidden.Type {
		case nodes.PromptType:
			inputs[hidden.Name] = g.Raw
		case nodes.ExtraPNGInfoType:
			if extra.ExtraPNGInfo != nil {
				inputs[hidden.Name] = extra.ExtraPNGInfo
			}
		}
	}

	nodes.ApplyDefaults(def, inputs)
	return inputs, nil
}

// plan validates the graph and returns the nodes to run in execution order.
func (e *WorkflowExecutor) plan(g *Graph) ([]*Node, error) {
	nodeErrors := make(NodeErrors)

	var roots []*Node
	for _, id := range g.IDs() {
		node := g.Nodes[id]
		impl, err := e.registry.Get(node.Class)
		if err != nil {
			nodeErrors.add(node, err)
			continue
		}
		if impl.Definition().OutputNode {
			roots = append(roots, node)
		}
	}
	if len(nodeErrors) > 0 {
		return nil, nodeErrors
	}
	if len(roots) == 0 {
		return nil, ErrNoOutputs
	}

	order, err := orderNodes(g, roots)
	if err != nil {
		return nil, err
	}

	for _, node := range order {
		impl, _ := e.registry.Get(node.Class)
		def := impl.Definition()

		literals := make(nodes.Inputs, len(node.Inputs))
		for name, v := range node.Inputs {
			literals[name] = v
		}
		nodes.ApplyDefaults(def, literals)

		for _, name := range sortedKeys(node.Links) {
			link := node.Links[name]
			upstream := g.Nodes[link.NodeID]
			upstreamImpl, _ := e.registry.Get(upstream.Class)
			upstreamOutputs := upstreamImpl.Definition().Outputs
			if link.Port < 0 || link.Port >= len(upstreamOutputs) {
				nodeErrors.add(node, &nodes.ValidationError{
					Input:   name,
					Message: fmt.Sprintf("node %s has no output %d", link.NodeID, link.Port),
				})
				continue
			}

			input, ok := def.Input(name)
			if ok && input.Type != "" && input.Type != upstreamOutputs[link.Port].Type {
				nodeErrors.add(node, &nodes.ValidationError{
					Input:   name,
					Message: fmt.Sprintf("return type mismatch between linked nodes: %s != %s", input.Type, upstreamOutputs[link.Port].Type),
				})
				continue
			}

			// Linked values are only known at run time.
			literals[name] = linkPlaceholder{}
		}

		for _, err := range nodes.Validate(def, literals) {
			var verr *nodes.ValidationError
			if errors.As(err, &verr) {
				if _, linked := node.Links[verr.Input]; linked {
					continue
				}
			}
			nodeErrors.add(node, err)
		}
	}

	if len(nodeErrors) > 0 {
		return nil, nodeErrors
	}
	return order, nil
}

type linkPlaceholder struct{}

// orderNodes walks dependencies depth first from the output nodes so that
// every node comes after the nodes it reads from.
func orderNodes(g *Graph, roots []*Node) ([]*Node, error) {
	ordered := make([]*Node, 0, len(g.Nodes))
	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(node *Node) error
	visit = func(node *Node) error {
		if visiting[node.ID] {
			return &NodeError{NodeID: node.ID, Class: node.Class, Err: ErrCycle}
		}
		if visited[node.ID] {
			return nil
		}

		visiting[node.ID] = true

		for _, name := range sortedKeys(node.Links) {
			link := node.Links[name]
			dep, ok := g.Nodes[link.NodeID]
			if !ok {
				return &NodeError{
					NodeID: node.ID,
					Class:  node.Class,
					Err:    fmt.Errorf("%w: input %s references missing node %s", ErrBadLink, name, link.NodeID),
				}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		visiting[node.ID] = false
		visited[node.ID] = true

		ordered = append(ordered, node)
		return nil
	}

	for _, node := range roots {
		if err := visit(node); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}
