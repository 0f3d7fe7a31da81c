// Package introspection fetches the remote schema over GraphQL introspection
// and turns it into SDL that can be compared with the embedded mirror.
package introspection

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/operations"
	"github.com/alim08/marketgql/pkg/schema"
)

const Query = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types { ...FullType }
    directives {
      name
      description
      isRepeatable
      locations
      args { ...InputValue }
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args { ...InputValue }
    type { ...TypeRef }
    isDeprecated
    deprecationReason
  }
  inputFields { ...InputValue }
  interfaces { ...TypeRef }
  enumValues(includeDeprecated: true) {
    name
    description
    isDeprecated
    deprecationReason
  }
  possibleTypes { ...TypeRef }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
          ofType {
            kind
            name
            ofType {
              kind
              name
              ofType { kind name }
            }
          }
        }
      }
    }
  }
}
`

type Response struct {
	Schema Schema `json:"__schema"`
}

type Schema struct {
	QueryType        *NamedRef   `json:"queryType"`
	MutationType     *NamedRef   `json:"mutationType"`
	SubscriptionType *NamedRef   `json:"subscriptionType"`
	Types            []FullType  `json:"types"`
	Directives       []Directive `json:"directives"`
}

type NamedRef struct {
	Name string `json:"name"`
}

type FullType struct {
	Kind          string       `json:"kind"`
	Name          string       `json:"name"`
	Description   *string      `json:"description"`
	Fields        []Field      `json:"fields"`
	InputFields   []InputValue `json:"inputFields"`
	Interfaces    []TypeRef    `json:"interfaces"`
	EnumValues    []EnumValue  `json:"enumValues"`
	PossibleTypes []TypeRef    `json:"possibleTypes"`
}

type Field struct {
	Name              string       `json:"name"`
	Description       *string      `json:"description"`
	Args              []InputValue `json:"args"`
	Type              TypeRef      `json:"type"`
	IsDeprecated      bool         `json:"isDeprecated"`
	DeprecationReason *string      `json:"deprecationReason"`
}

type InputValue struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Type         TypeRef `json:"type"`
	DefaultValue *string `json:"defaultValue"`
}

type TypeRef struct {
	Kind   string   `json:"kind"`
	Name   *string  `json:"name"`
	OfType *TypeRef `json:"ofType"`
}

type EnumValue struct {
	Name              string  `json:"name"`
	Description       *string `json:"description"`
	IsDeprecated      bool    `json:"isDeprecated"`
	DeprecationReason *string `json:"deprecationReason"`
}

type Directive struct {
	Name         string       `json:"name"`
	Description  *string      `json:"description"`
	IsRepeatable bool         `json:"isRepeatable"`
	Locations    []string     `json:"locations"`
	Args         []InputValue `json:"args"`
}

// Fetch runs the introspection query.
func Fetch(ctx context.Context, exec operations.Executor) (*Schema, error) {
	var resp Response
	err := exec.Execute(ctx, gqlclient.Request{Query: Query, OperationName: "IntrospectionQuery"}, &resp)
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	if resp.Schema.QueryType == nil {
		return nil, fmt.Errorf("introspect: response has no query type")
	}
	return &resp.Schema, nil
}

var builtinScalars = map[string]bool{"String": true, "Int": true, "Float": true, "Boolean": true, "ID": true}

var builtinDirectives = map[string]bool{
	"skip": true, "include": true, "deprecated": true, "specifiedBy": true, "oneOf": true, "defer": true,
}

var introspected = &ast.Source{Name: "introspection"}

// ToSchemaDocument converts an introspection result into an SDL document.
// Builtin scalars, builtin directives and __ types are left out.
func ToSchemaDocument(s *Schema) (*ast.SchemaDocument, error) {
	doc := &ast.SchemaDocument{}

	if def := schemaDefinition(s); def != nil {
		doc.Schema = append(doc.Schema, def)
	}

	for _, d := range s.Directives {
		if builtinDirectives[d.Name] {
			continue
		}
		args, err := argumentDefinitions(d.Args)
		if err != nil {
			return nil, fmt.Errorf("directive @%s: %w", d.Name, err)
		}
		def := &ast.DirectiveDefinition{
			Description:  deref(d.Description),
			Name:         d.Name,
			Arguments:    args,
			IsRepeatable: d.IsRepeatable,
			Position:     &ast.Position{Src: introspected},
		}
		for _, loc := range d.Locations {
			def.Locations = append(def.Locations, ast.DirectiveLocation(loc))
		}
		doc.Directives = append(doc.Directives, def)
	}

	for _, t := range s.Types {
		if strings.HasPrefix(t.Name, "__") || (t.Kind == string(ast.Scalar) && builtinScalars[t.Name]) {
			continue
		}
		def, err := definition(t)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", t.Name, err)
		}
		doc.Definitions = append(doc.Definitions, def)
	}
	return doc, nil
}

func schemaDefinition(s *Schema) *ast.SchemaDefinition {
	roots := []struct {
		op      ast.Operation
		ref     *NamedRef
		natural string
	}{
		{ast.Query, s.QueryType, "Query"},
		{ast.Mutation, s.MutationType, "Mutation"},
		{ast.Subscription, s.SubscriptionType, "Subscription"},
	}
	custom := false
	for _, r := range roots {
		if r.ref != nil && r.ref.Name != r.natural {
			custom = true
		}
	}
	if !custom {
		return nil
	}
	def := &ast.SchemaDefinition{}
	for _, r := range roots {
		if r.ref != nil {
			def.OperationTypes = append(def.OperationTypes, &ast.OperationTypeDefinition{Operation: r.op, Type: r.ref.Name})
		}
	}
	return def
}

func definition(t FullType) (*ast.Definition, error) {
	def := &ast.Definition{
		Kind:        ast.DefinitionKind(t.Kind),
		Name:        t.Name,
		Description: deref(t.Description),
	}
	switch def.Kind {
	case ast.Scalar, ast.Object, ast.Interface, ast.Union, ast.Enum, ast.InputObject:
	default:
		return nil, fmt.Errorf("unknown kind %q", t.Kind)
	}

	for _, i := range t.Interfaces {
		def.Interfaces = append(def.Interfaces, deref(i.Name))
	}
	for _, p := range t.PossibleTypes {
		if def.Kind == ast.Union {
			def.Types = append(def.Types, deref(p.Name))
		}
	}
	for _, f := range t.Fields {
		typ, err := astType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		args, err := argumentDefinitions(f.Args)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Description: deref(f.Description),
			Name:        f.Name,
			Arguments:   args,
			Type:        typ,
			Directives:  deprecated(f.IsDeprecated, f.DeprecationReason),
		})
	}
	for _, f := range t.InputFields {
		typ, err := astType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("input field %s: %w", f.Name, err)
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Description:  deref(f.Description),
			Name:         f.Name,
			Type:         typ,
			DefaultValue: literal(f.DefaultValue),
		})
	}
	for _, v := range t.EnumValues {
		def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{
			Description: deref(v.Description),
			Name:        v.Name,
			Directives:  deprecated(v.IsDeprecated, v.DeprecationReason),
		})
	}
	return def, nil
}

func argumentDefinitions(in []InputValue) (ast.ArgumentDefinitionList, error) {
	var out ast.ArgumentDefinitionList
	for _, a := range in {
		typ, err := astType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Name, err)
		}
		out = append(out, &ast.ArgumentDefinition{
			Description:  deref(a.Description),
			Name:         a.Name,
			Type:         typ,
			DefaultValue: literal(a.DefaultValue),
		})
	}
	return out, nil
}

func astType(ref TypeRef) (*ast.Type, error) {
	switch ref.Kind {
	case "NON_NULL":
		if ref.OfType == nil {
			return nil, fmt.Errorf("NON_NULL without ofType")
		}
		inner, err := astType(*ref.OfType)
		if err != nil {
			return nil, err
		}
		inner.NonNull = true
		return inner, nil
	case "LIST":
		if ref.OfType == nil {
			return nil, fmt.Errorf("LIST without ofType")
		}
		inner, err := astType(*ref.OfType)
		if err != nil {
			return nil, err
		}
		return ast.ListType(inner, nil), nil
	default:
		if ref.Name == nil {
			return nil, fmt.Errorf("%s type reference without name", ref.Kind)
		}
		return ast.NamedType(*ref.Name, nil), nil
	}
}

// literal wraps an introspected default value, which is already GraphQL
// literal syntax, so the formatter prints it verbatim.
func literal(v *string) *ast.Value {
	if v == nil {
		return nil
	}
	return &ast.Value{Kind: ast.EnumValue, Raw: *v}
}

func deprecated(is bool, reason *string) ast.DirectiveList {
	if !is {
		return nil
	}
	dir := &ast.Directive{Name: "deprecated"}
	if reason != nil && *reason != "" {
		dir.Arguments = ast.ArgumentList{{Name: "reason", Value: &ast.Value{Kind: ast.StringValue, Raw: *reason}}}
	}
	return ast.DirectiveList{dir}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FormatSDL renders an introspection result as SDL.
func FormatSDL(s *Schema) (string, error) {
	doc, err := ToSchemaDocument(s)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatSchemaDocument(doc)
	return buf.String(), nil
}

// Load converts an introspection result into a validated schema.
func Load(s *Schema) (*ast.Schema, error) {
	sdl, err := FormatSDL(s)
	if err != nil {
		return nil, err
	}
	return schema.Parse("introspection", sdl)
}
