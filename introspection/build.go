package introspection

import (
	"encoding/json"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

type typeRef struct {
	Kind   string   `json:"kind"`
	Name   string   `json:"name"`
	OfType *typeRef `json:"ofType"`
}

type inputValueData struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Type         typeRef `json:"type"`
	DefaultValue *string `json:"defaultValue"`
}

type fieldData struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Args        []inputValueData `json:"args"`
	Type        typeRef          `json:"type"`
}

type enumValueData struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type typeData struct {
	Kind          string           `json:"kind"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Fields        []fieldData      `json:"fields"`
	InputFields   []inputValueData `json:"inputFields"`
	Interfaces    []typeRef        `json:"interfaces"`
	EnumValues    []enumValueData  `json:"enumValues"`
	PossibleTypes []typeRef        `json:"possibleTypes"`
}

type namedTypeRef struct {
	Name string `json:"name"`
}

type schemaData struct {
	QueryType        *namedTypeRef `json:"queryType"`
	MutationType     *namedTypeRef `json:"mutationType"`
	SubscriptionType *namedTypeRef `json:"subscriptionType"`
	Types            []typeData    `json:"types"`
}

var builtinScalars = map[string]bool{
	"Int":     true,
	"Float":   true,
	"String":  true,
	"Boolean": true,
	"ID":      true,
}

// BuildClientSchema rebuilds a schema from the JSON result of the standard
// introspection query. The data may be the bare {"__schema": ...} object or a
// full execution result wrapping it in "data".
func BuildClientSchema(data []byte) (*ast.Schema, error) {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Schema json.RawMessage `json:"__schema"`
	}
	if err := jsoniter.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Wrap(err, "malformed introspection result")
	}
	if len(envelope.Schema) == 0 && len(envelope.Data) > 0 {
		if err := jsoniter.Unmarshal(envelope.Data, &envelope); err != nil {
			return nil, errors.Wrap(err, "malformed introspection result")
		}
	}
	if len(envelope.Schema) == 0 {
		return nil, errors.New("introspection result has no __schema")
	}

	var schema schemaData
	if err := jsoniter.Unmarshal(envelope.Schema, &schema); err != nil {
		return nil, errors.Wrap(err, "malformed introspection result")
	}

	sdl, err := renderSDL(&schema)
	if err != nil {
		return nil, err
	}
	built, err := gqlparser.LoadSchema(&ast.Source{Name: "introspection", Input: sdl})
	if err != nil {
		return nil, errors.Wrap(err, "unable to load introspected schema")
	}
	return built, nil
}

// renderSDL turns the introspected type system back into schema definition
// language, which the parser then loads as if it had been written by hand.
func renderSDL(schema *schemaData) (string, error) {
	var sb strings.Builder

	// A schema block is only needed when a root type deviates from its
	// conventional name.
	nonStandardRoots := (schema.QueryType != nil && schema.QueryType.Name != "Query") ||
		(schema.MutationType != nil && schema.MutationType.Name != "Mutation") ||
		(schema.SubscriptionType != nil && schema.SubscriptionType.Name != "Subscription")
	if nonStandardRoots {
		sb.WriteString("schema {\n")
		if schema.QueryType != nil {
			sb.WriteString("  query: " + schema.QueryType.Name + "\n")
		}
		if schema.MutationType != nil {
			sb.WriteString("  mutation: " + schema.MutationType.Name + "\n")
		}
		if schema.SubscriptionType != nil {
			sb.WriteString("  subscription: " + schema.SubscriptionType.Name + "\n")
		}
		sb.WriteString("}\n\n")
	}

	for _, t := range schema.Types {
		if strings.HasPrefix(t.Name, "__") {
			continue
		}
		switch t.Kind {
		case "SCALAR":
			if builtinScalars[t.Name] {
				continue
			}
			sb.WriteString("scalar " + t.Name + "\n\n")
		case "ENUM":
			sb.WriteString("enum " + t.Name + " {\n")
			for _, v := range t.EnumValues {
				sb.WriteString("  " + v.Name + "\n")
			}
			sb.WriteString("}\n\n")
		case "UNION":
			members := make([]string, len(t.PossibleTypes))
			for i, member := range t.PossibleTypes {
				members[i] = member.Name
			}
			sb.WriteString("union " + t.Name + " = " + strings.Join(members, " | ") + "\n\n")
		case "OBJECT", "INTERFACE":
			keyword := "type"
			if t.Kind == "INTERFACE" {
				keyword = "interface"
			}
			sb.WriteString(keyword + " " + t.Name)
			if len(t.Interfaces) > 0 {
				names := make([]string, len(t.Interfaces))
				for i, iface := range t.Interfaces {
					names[i] = iface.Name
				}
				sb.WriteString(" implements " + strings.Join(names, " & "))
			}
			sb.WriteString(" {\n")
			for _, field := range t.Fields {
				ref, err := renderTypeRef(&field.Type)
				if err != nil {
					return "", err
				}
				args, err := renderArgs(field.Args)
				if err != nil {
					return "", err
				}
				sb.WriteString("  " + field.Name + args + ": " + ref + "\n")
			}
			sb.WriteString("}\n\n")
		case "INPUT_OBJECT":
			sb.WriteString("input " + t.Name + " {\n")
			for _, field := range t.InputFields {
				ref, err := renderTypeRef(&field.Type)
				if err != nil {
					return "", err
				}
				sb.WriteString("  " + field.Name + ": " + ref)
				if field.DefaultValue != nil {
					sb.WriteString(" = " + *field.DefaultValue)
				}
				sb.WriteString("\n")
			}
			sb.WriteString("}\n\n")
		default:
			return "", errors.Errorf("unsupported type kind: %v", t.Kind)
		}
	}
	return sb.String(), nil
}

func renderArgs(args []inputValueData) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		ref, err := renderTypeRef(&arg.Type)
		if err != nil {
			return "", err
		}
		parts[i] = arg.Name + ": " + ref
		if arg.DefaultValue != nil {
			parts[i] += " = " + *arg.DefaultValue
		}
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

func renderTypeRef(ref *typeRef) (string, error) {
	switch ref.Kind {
	case "NON_NULL":
		if ref.OfType == nil {
			return "", errors.New("non-null type reference without inner type")
		}
		inner, err := renderTypeRef(ref.OfType)
		if err != nil {
			return "", err
		}
		return inner + "!", nil
	case "LIST":
		if ref.OfType == nil {
			return "", errors.New("list type reference without inner type")
		}
		inner, err := renderTypeRef(ref.OfType)
		if err != nil {
			return "", err
		}
		return "[" + inner + "]", nil
	default:
		if ref.Name == "" {
			return "", errors.New("type reference without a name")
		}
		return ref.Name, nil
	}
}
