package nodes

import (
	"bytes"
	"encoding/json"
)

// jsonObject keeps key order when marshalled; object_info consumers render
// widgets in declaration order.
type jsonObject []jsonField

type jsonField struct {
	Key   string
	Value any
}

func (o jsonObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (in Input) schema() []any {
	var kind any = in.Type
	if len(in.Options) > 0 {
		kind = in.Options
	}

	var options jsonObject
	if in.Default != nil {
		options = append(options, jsonField{"default", in.Default})
	}
	if in.Min != nil {
		options = append(options, jsonField{"min", *in.Min})
	}
	if in.Max != nil {
		options = append(options, jsonField{"max", *in.Max})
	}
	if in.Step != nil {
		options = append(options, jsonField{"step", *in.Step})
	}
	if in.Multiline {
		options = append(options, jsonField{"multiline", true})
	}
	if in.Tooltip != "" {
		options = append(options, jsonField{"tooltip", in.Tooltip})
	}

	if len(options) == 0 {
		return []any{kind}
	}
	return []any{kind, options}
}

func inputGroup(inputs []Input, hidden bool) (jsonObject, []string) {
	group := make(jsonObject, 0, len(inputs))
	order := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if hidden {
			group = append(group, jsonField{in.Name, in.Type})
		} else {
			group = append(group, jsonField{in.Name, in.schema()})
		}
		order = append(order, in.Name)
	}
	return group, order
}

// MarshalJSON renders the definition as one entry of the /object_info response.
func (d *Definition) MarshalJSON() ([]byte, error) {
	required, requiredOrder := inputGroup(d.Required, false)
	input := jsonObject{{"required", required}}
	order := jsonObject{{"required", requiredOrder}}

	if len(d.Optional) > 0 {
		optional, optionalOrder := inputGroup(d.Optional, false)
		input = append(input, jsonField{"optional", optional})
		order = append(order, jsonField{"optional", optionalOrder})
	}
	if len(d.Hidden) > 0 {
		hidden, hiddenOrder := inputGroup(d.Hidden, true)
		input = append(input, jsonField{"hidden", hidden})
		order = append(order, jsonField{"hidden", hiddenOrder})
	}

	outputs := make([]TypeName, len(d.Outputs))
	names := make([]string, len(d.Outputs))
	isList := make([]bool, len(d.Outputs))
	for i, out := range d.Outputs {
		outputs[i] = out.Type
		names[i] = out.Name
		if names[i] == "" {
			names[i] = string(out.Type)
		}
		isList[i] = out.IsList
	}

	return json.Marshal(jsonObject{
		{"input", input},
		{"input_order", order},
		{"output", outputs},
		{"output_is_list", isList},
		{"output_name", names},
		{"name", d.Class},
		{"display_name", d.DisplayName},
		{"description", d.Description},
		{"python_module", Module},
		{"category", d.Category},
		{"output_node", d.OutputNode},
	})
}

// ObjectInfo renders every registered node keyed by class name.
func (r *Registry) ObjectInfo() json.Marshaler {
	info := make(jsonObject, 0, len(r.nodes))
	for _, class := range r.Classes() {
		info = append(info, jsonField{class, r.nodes[class].Definition()})
	}
	return info
}
