// Package nodes defines the contract between graph nodes and the executor: the
// typed input/output schema a node advertises and the call it answers.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

type TypeName string

const (
	IntType          TypeName = "INT"
	FloatType        TypeName = "FLOAT"
	StringType       TypeName = "STRING"
	BoolType         TypeName = "BOOLEAN"
	ImageType        TypeName = "IMAGE"
	PromptType       TypeName = "PROMPT"
	ExtraPNGInfoType TypeName = "EXTRA_PNGINFO"
)

// Module is reported as python_module in object_info so front ends group the
// nodes the same way as the original custom node pack.
const Module = "custom_nodes.cesilk_nodes"

var (
	ErrDuplicateClass = errors.New("node class already registered")
	ErrUnknownClass   = errors.New("unknown node class")
)

// Input describes one named input. A non-empty Options turns it into a combo.
type Input struct {
	Name      string
	Type      TypeName
	Options   []string
	Default   any
	Min       *int
	Max       *int
	Step      *int
	Multiline bool
	Tooltip   string
}

type Output struct {
	Name   string
	Type   TypeName
	IsList bool
}

type Definition struct {
	Class       string
	DisplayName string
	Description string
	Category    string
	Required    []Input
	Optional    []Input
	Hidden      []Input
	Outputs     []Output
	OutputNode  bool
}

func (d *Definition) Input(name string) (*Input, bool) {
	for _, group := range [][]Input{d.Required, d.Optional, d.Hidden} {
		for i := range group {
			if group[i].Name == name {
				return &group[i], true
			}
		}
	}
	return nil, false
}

// Result is what a node hands back: positional outputs matching Definition.Outputs
// and, for output nodes, a UI payload reported in the prompt history.
type Result struct {
	Outputs []any
	UI      map[string]any
}

type Node interface {
	Definition() *Definition
	Execute(ctx context.Context, in Inputs) (*Result, error)
}

type Registry struct {
	nodes map[string]Node
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]Node)}
}

func (r *Registry) Register(node Node) error {
	class := node.Definition().Class
	if _, ok := r.nodes[class]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, class)
	}

	r.nodes[class] = node
	return nil
}

func (r *Registry) MustRegister(nodes ...Node) {
	for _, node := range nodes {
		if err := r.Register(node); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(class string) (Node, error) {
	node, ok := r.nodes[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	return node, nil
}

// Classes returns the registered class names sorted.
func (r *Registry) Classes() []string {
	classes := make([]string, 0, len(r.nodes))
	for class := range r.nodes {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

func Int(v int) *int {
	return &v
}
