// Package astprint renders GraphQL query documents, fields, and values back
// to their text form. Transports use it to put documents on the wire; the DSL
// uses it to print the requests it builds.
package astprint

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/vektah/gqlparser/v2/ast"
)

const indentation = "  "

// Document renders a full query document, operations first, then fragment
// definitions.
func Document(doc *ast.QueryDocument) string {
	var sb strings.Builder
	for i, op := range doc.Operations {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		writeOperation(&sb, op)
	}
	for i, frag := range doc.Fragments {
		if i > 0 || len(doc.Operations) > 0 {
			sb.WriteString("\n\n")
		}
		writeFragment(&sb, frag)
	}
	sb.WriteString("\n")
	return sb.String()
}

// Field renders a single field with its alias, arguments, directives, and
// selection set.
func Field(f *ast.Field) string {
	var sb strings.Builder
	writeField(&sb, f, 0)
	return sb.String()
}

// Value renders a single value literal.
func Value(v *ast.Value) string {
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeOperation(sb *strings.Builder, op *ast.OperationDefinition) {
	header := string(op.Operation)
	if op.Name != "" {
		header += " " + op.Name
	}
	if len(op.VariableDefinitions) > 0 {
		parts := make([]string, len(op.VariableDefinitions))
		for i, v := range op.VariableDefinitions {
			parts[i] = "$" + v.Variable + ": " + v.Type.String()
			if v.DefaultValue != nil {
				parts[i] += " = " + Value(v.DefaultValue)
			}
		}
		header += "(" + strings.Join(parts, ", ") + ")"
	}
	// An anonymous query with no variables prints in its shorthand form.
	if header != "query" {
		sb.WriteString(header)
		sb.WriteString(" ")
	}
	writeSelectionSet(sb, op.SelectionSet, 0)
}

func writeFragment(sb *strings.Builder, frag *ast.FragmentDefinition) {
	sb.WriteString("fragment " + frag.Name + " on " + frag.TypeCondition + " ")
	writeSelectionSet(sb, frag.SelectionSet, 0)
}

func writeSelectionSet(sb *strings.Builder, selections ast.SelectionSet, depth int) {
	sb.WriteString("{\n")
	for _, sel := range selections {
		sb.WriteString(strings.Repeat(indentation, depth+1))
		switch s := sel.(type) {
		case *ast.Field:
			writeField(sb, s, depth+1)
		case *ast.FragmentSpread:
			sb.WriteString("..." + s.Name)
			writeDirectives(sb, s.Directives)
		case *ast.InlineFragment:
			sb.WriteString("...")
			if s.TypeCondition != "" {
				sb.WriteString(" on " + s.TypeCondition)
			}
			writeDirectives(sb, s.Directives)
			sb.WriteString(" ")
			writeSelectionSet(sb, s.SelectionSet, depth+1)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Repeat(indentation, depth))
	sb.WriteString("}")
}

func writeField(sb *strings.Builder, f *ast.Field, depth int) {
	if f.Alias != "" && f.Alias != f.Name {
		sb.WriteString(f.Alias + ": ")
	}
	sb.WriteString(f.Name)
	if len(f.Arguments) > 0 {
		parts := make([]string, len(f.Arguments))
		for i, arg := range f.Arguments {
			parts[i] = arg.Name + ": " + Value(arg.Value)
		}
		sb.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
	writeDirectives(sb, f.Directives)
	if len(f.SelectionSet) > 0 {
		sb.WriteString(" ")
		writeSelectionSet(sb, f.SelectionSet, depth)
	}
}

func writeDirectives(sb *strings.Builder, directives ast.DirectiveList) {
	for _, d := range directives {
		sb.WriteString(" @" + d.Name)
		if len(d.Arguments) > 0 {
			parts := make([]string, len(d.Arguments))
			for i, arg := range d.Arguments {
				parts[i] = arg.Name + ": " + Value(arg.Value)
			}
			sb.WriteString("(" + strings.Join(parts, ", ") + ")")
		}
	}
}

func writeValue(sb *strings.Builder, v *ast.Value) {
	switch v.Kind {
	case ast.Variable:
		sb.WriteString("$" + v.Raw)
	case ast.StringValue, ast.BlockValue:
		buf, _ := jsoniter.Marshal(v.Raw)
		sb.Write(buf)
	case ast.ListValue:
		parts := make([]string, len(v.Children))
		for i, child := range v.Children {
			parts[i] = Value(child.Value)
		}
		sb.WriteString("[" + strings.Join(parts, ", ") + "]")
	case ast.ObjectValue:
		parts := make([]string, len(v.Children))
		for i, child := range v.Children {
			parts[i] = child.Name + ": " + Value(child.Value)
		}
		sb.WriteString("{" + strings.Join(parts, ", ") + "}")
	default:
		// Int, float, boolean, null, and enum values print as their raw text.
		sb.WriteString(v.Raw)
	}
}
