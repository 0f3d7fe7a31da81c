package introspection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

type ChangeKind string

const (
	TypeAdded        ChangeKind = "TYPE_ADDED"
	TypeRemoved      ChangeKind = "TYPE_REMOVED"
	TypeKindChanged  ChangeKind = "TYPE_KIND_CHANGED"
	FieldAdded       ChangeKind = "FIELD_ADDED"
	FieldRemoved     ChangeKind = "FIELD_REMOVED"
	FieldTypeChanged ChangeKind = "FIELD_TYPE_CHANGED"
	ArgAdded         ChangeKind = "ARG_ADDED"
	ArgRemoved       ChangeKind = "ARG_REMOVED"
	ArgTypeChanged   ChangeKind = "ARG_TYPE_CHANGED"
	EnumValueAdded   ChangeKind = "ENUM_VALUE_ADDED"
	EnumValueRemoved ChangeKind = "ENUM_VALUE_REMOVED"
)

// Change is one difference between the local mirror and the remote schema.
// Path is dotted: Type, Type.field or Type.field(arg).
type Change struct {
	Kind ChangeKind
	Path string
	From string
	To   string
}

func (c Change) String() string {
	if c.From == "" && c.To == "" {
		return fmt.Sprintf("%s %s", c.Kind, c.Path)
	}
	return fmt.Sprintf("%s %s: %s -> %s", c.Kind, c.Path, c.From, c.To)
}

// Breaking reports whether code built against the local mirror may stop
// working against the remote schema.
func (c Change) Breaking() bool {
	switch c.Kind {
	case TypeAdded, FieldAdded, EnumValueAdded, ArgAdded:
		return false
	}
	return true
}

// Diff lists how remote differs from local, ordered by path. Builtin and
// introspection types are ignored.
func Diff(local, remote *ast.Schema) []Change {
	var changes []Change
	for _, name := range typeNames(local, remote) {
		l, r := local.Types[name], remote.Types[name]
		switch {
		case r == nil:
			changes = append(changes, Change{Kind: TypeRemoved, Path: name})
		case l == nil:
			changes = append(changes, Change{Kind: TypeAdded, Path: name})
		case l.Kind != r.Kind:
			changes = append(changes, Change{Kind: TypeKindChanged, Path: name, From: string(l.Kind), To: string(r.Kind)})
		default:
			changes = append(changes, diffFields(name, l.Fields, r.Fields)...)
			changes = append(changes, diffEnum(name, l.EnumValues, r.EnumValues)...)
		}
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func typeNames(schemas ...*ast.Schema) []string {
	seen := map[string]bool{}
	var names []string
	for _, s := range schemas {
		for name, def := range s.Types {
			if def.BuiltIn || strings.HasPrefix(name, "__") || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func diffFields(typeName string, local, remote ast.FieldList) []Change {
	var changes []Change
	for _, lf := range local {
		if strings.HasPrefix(lf.Name, "__") {
			continue
		}
		path := typeName + "." + lf.Name
		rf := remote.ForName(lf.Name)
		if rf == nil {
			changes = append(changes, Change{Kind: FieldRemoved, Path: path})
			continue
		}
		if lt, rt := lf.Type.String(), rf.Type.String(); lt != rt {
			changes = append(changes, Change{Kind: FieldTypeChanged, Path: path, From: lt, To: rt})
		}
		changes = append(changes, diffArgs(path, lf.Arguments, rf.Arguments)...)
	}
	for _, rf := range remote {
		if strings.HasPrefix(rf.Name, "__") {
			continue
		}
		if local.ForName(rf.Name) == nil {
			changes = append(changes, Change{Kind: FieldAdded, Path: typeName + "." + rf.Name})
		}
	}
	return changes
}

func diffArgs(fieldPath string, local, remote ast.ArgumentDefinitionList) []Change {
	var changes []Change
	for _, la := range local {
		path := fmt.Sprintf("%s(%s)", fieldPath, la.Name)
		ra := remote.ForName(la.Name)
		if ra == nil {
			changes = append(changes, Change{Kind: ArgRemoved, Path: path})
			continue
		}
		if lt, rt := la.Type.String(), ra.Type.String(); lt != rt {
			changes = append(changes, Change{Kind: ArgTypeChanged, Path: path, From: lt, To: rt})
		}
	}
	for _, ra := range remote {
		if local.ForName(ra.Name) == nil {
			kind := ArgAdded
			// A new required argument breaks existing documents.
			if ra.Type.NonNull && ra.DefaultValue == nil {
				kind = ArgTypeChanged
			}
			changes = append(changes, Change{Kind: kind, Path: fmt.Sprintf("%s(%s)", fieldPath, ra.Name), To: ra.Type.String()})
		}
	}
	return changes
}

func diffEnum(typeName string, local, remote ast.EnumValueList) []Change {
	var changes []Change
	for _, lv := range local {
		if remote.ForName(lv.Name) == nil {
			changes = append(changes, Change{Kind: EnumValueRemoved, Path: typeName + "." + lv.Name})
		}
	}
	for _, rv := range remote {
		if local.ForName(rv.Name) == nil {
			changes = append(changes, Change{Kind: EnumValueAdded, Path: typeName + "." + rv.Name})
		}
	}
	return changes
}

// Breaking filters changes down to the breaking ones.
func Breaking(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Breaking() {
			out = append(out, c)
		}
	}
	return out
}
