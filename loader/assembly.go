package loader

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// AssemblyExt is the file extension of assembly source.
const AssemblyExt = ".yaml"

// ParseAssembly reads a module written as YAML:
//
//	module: hello
//	exports:
//	  - {name: main, arity: 0, label: main}
//	code:
//	  - {label: main, op: move, args: [world, x0]}
//	  - {op: call_ext_only, args: [1, erlang, exit]}
//
// Operands use the ParseOperand notation. Label references start with @,
// which YAML only accepts quoted ("@loop"). [] and {} may be written bare.
// Unknown keys are errors.
func ParseAssembly(r io.Reader) (*Image, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var img Image
	if err := dec.Decode(&img); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("loader: empty assembly")
		}
		return nil, fmt.Errorf("loader: parse assembly: %w", err)
	}
	return &img, nil
}

// ParseAssemblyString is ParseAssembly on a string.
func ParseAssemblyString(src string) (*Image, error) {
	return ParseAssembly(strings.NewReader(src))
}

// WriteAssembly writes img in the form ParseAssembly reads.
func WriteAssembly(w io.Writer, img *Image) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(img); err != nil {
		return fmt.Errorf("loader: write assembly: %w", err)
	}
	return enc.Close()
}

func (o *Operand) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			*o = Operand{Kind: OperandNil}
			return nil
		}
	case yaml.MappingNode:
		if len(node.Content) == 0 {
			*o = Operand{Kind: OperandEmptyTuple}
			return nil
		}
	case yaml.ScalarNode:
		p, err := ParseOperand(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*o = p
		return nil
	}
	return fmt.Errorf("line %d: operand must be a scalar, [] or {}", node.Line)
}

func (o Operand) MarshalYAML() (interface{}, error) {
	switch o.Kind {
	case OperandNil:
		return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}, nil
	case OperandEmptyTuple:
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: yaml.FlowStyle}, nil
	case OperandInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: o.String()}, nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: o.String()}, nil
}
