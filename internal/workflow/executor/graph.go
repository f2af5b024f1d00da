package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

var ErrInvalidPrompt = errors.New("invalid prompt")

// Link points at output Port of node NodeID. In a prompt it is written as
// ["<node id>", <port>].
type Link struct {
	NodeID string
	Port   int
}

func (l *Link) UnmarshalJSON(data []byte) error {
	var (
		id   json.RawMessage
		port int
	)
	arr := [2]any{&id, &port}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}

	// Older front ends write the id as a number.
	var sid string
	if err := json.Unmarshal(id, &sid); err != nil {
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("link node id %s: %w", id, err)
		}
		sid = n.String()
	}

	*l = Link{NodeID: sid, Port: port}
	return nil
}

func (l Link) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.NodeID, l.Port})
}

type Node struct {
	ID     string
	Class  string
	Title  string
	Inputs map[string]any
	Links  map[string]Link
}

// Graph is a parsed prompt. Raw keeps the prompt as submitted; it is handed to
// nodes that embed the workflow into their output.
type Graph struct {
	Nodes map[string]*Node
	Raw   map[string]any
}

type jsonNode struct {
	Class  string                     `json:"class_type"`
	Inputs map[string]json.RawMessage `json:"inputs,omitempty"`
	Meta   *struct {
		Title string `json:"title,omitempty"`
	} `json:"_meta,omitempty"`
}

func ReadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Read(r io.Reader) (*Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Graph, error) {
	var jg map[string]jsonNode
	if err := json.Unmarshal(data, &jg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrompt, err)
	}

	raw, err := decodeRaw(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrompt, err)
	}

	g := &Graph{Nodes: make(map[string]*Node, len(jg)), Raw: raw}
	for id, jn := range jg {
		if jn.Class == "" {
			return nil, fmt.Errorf("%w: node %s has no class_type", ErrInvalidPrompt, id)
		}

		n := &Node{
			ID:     id,
			Class:  jn.Class,
			Inputs: make(map[string]any, len(jn.Inputs)),
			Links:  make(map[string]Link),
		}
		if jn.Meta != nil {
			n.Title = jn.Meta.Title
		}

		for name, rawValue := range jn.Inputs {
			if link, ok := parseLink(rawValue); ok {
				n.Links[name] = link
				continue
			}

			v, err := parseValue(rawValue)
			if err != nil {
				return nil, fmt.Errorf("%w: cannot parse input %s.%s: %w", ErrInvalidPrompt, id, name, err)
			}
			n.Inputs[name] = v
		}
		g.Nodes[id] = n
	}

	return g, nil
}

func decodeRaw(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func parseLink(raw json.RawMessage) (Link, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return Link{}, false
	}

	var l Link
	if err := json.Unmarshal(raw, &l); err != nil {
		return Link{}, false
	}
	return l, true
}

// parseValue decodes a literal input. Integral numbers become int so they
// satisfy INT inputs; anything else keeps its JSON shape.
func parseValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	return n.Float64()
}

// IDs returns node ids in numeric order, falling back to lexical order for
// ids that are not numbers.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
