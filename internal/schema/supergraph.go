package schema

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
)

// Diagnostic is a non-fatal composition finding (unknown directive,
// duplicate scalar, conflicting field type across subgraphs). Composition
// only fails outright on structural errors (parse failure, zero subgraphs).
type Diagnostic struct {
	Severity string // "error" | "warning"
	Code     string
	Message  string
}

// SuperGraph is the composed view over every subgraph: the merged SDL
// document plus a field ownership index used by the planner.
type SuperGraph struct {
	SubGraphs   []*SubGraph
	Doc         *ast.Document
	Ownership   map[string][]*SubGraph // "Type.field" -> resolving subgraphs
	Graph       *WeightedDirectedGraph
	Diagnostics []Diagnostic
}

// Compose merges the SDL of every subgraph into one supergraph document,
// builds the field ownership index and the cost graph used by the
// planner's Dijkstra solver.
func Compose(subGraphs []*SubGraph) (*SuperGraph, error) {
	if len(subGraphs) == 0 {
		return nil, fmt.Errorf("schema: no subgraphs to compose")
	}

	sg := &SuperGraph{
		SubGraphs: subGraphs,
		Doc:       &ast.Document{Definitions: make([]ast.Definition, 0)},
		Ownership: make(map[string][]*SubGraph),
	}

	for _, s := range subGraphs {
		sg.mergeDocument(s.Doc)
	}

	sg.buildOwnership()
	sg.Graph = BuildGraph(subGraphs)

	return sg, nil
}

func (sg *SuperGraph) mergeDocument(doc *ast.Document) {
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			sg.mergeObjectType(d)
		case *ast.ObjectTypeExtension:
			sg.mergeObjectExtension(d)
		case *ast.InterfaceTypeDefinition:
			sg.mergeInterface(d)
		case *ast.InputObjectTypeDefinition:
			sg.mergeInputObject(d)
		case *ast.EnumTypeDefinition:
			sg.mergeEnum(d)
		case *ast.ScalarTypeDefinition:
			sg.mergeScalar(d)
		case *ast.UnionTypeDefinition:
			sg.mergeUnion(d)
		case *ast.DirectiveDefinition:
			sg.mergeDirective(d)
		case *ast.SchemaDefinition:
			sg.Doc.Definitions = append(sg.Doc.Definitions, d)
		}
	}
}

func (sg *SuperGraph) findObjectType(name string) *ast.ObjectTypeDefinition {
	for _, def := range sg.Doc.Definitions {
		if o, ok := def.(*ast.ObjectTypeDefinition); ok && o.Name.String() == name {
			return o
		}
	}
	return nil
}

func (sg *SuperGraph) mergeObjectType(newDef *ast.ObjectTypeDefinition) {
	if existing := sg.findObjectType(newDef.Name.String()); existing != nil {
		existing.Fields = mergeFieldDefs(existing.Fields, copyFields(newDef.Fields))
		existing.Directives = append(existing.Directives, copyDirectives(newDef.Directives)...)
		return
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, &ast.ObjectTypeDefinition{
		Name:       newDef.Name,
		Interfaces: newDef.Interfaces,
		Fields:     copyFields(newDef.Fields),
		Directives: copyDirectives(newDef.Directives),
	})
}

func (sg *SuperGraph) mergeObjectExtension(newExt *ast.ObjectTypeExtension) {
	if existing := sg.findObjectType(newExt.Name.String()); existing != nil {
		existing.Fields = mergeFieldDefs(existing.Fields, copyFields(newExt.Fields))
		existing.Directives = append(existing.Directives, copyDirectives(newExt.Directives)...)
		return
	}
	// Extension arrived before its base type: keep it as a standalone
	// object so later merges of the same type name still find it, the
	// planner treats it identically either way.
	sg.Doc.Definitions = append(sg.Doc.Definitions, &ast.ObjectTypeDefinition{
		Name:       newExt.Name,
		Fields:     copyFields(newExt.Fields),
		Directives: copyDirectives(newExt.Directives),
	})
}

func copyFields(fields []*ast.FieldDefinition) []*ast.FieldDefinition {
	if fields == nil {
		return nil
	}
	out := make([]*ast.FieldDefinition, len(fields))
	for i, f := range fields {
		out[i] = &ast.FieldDefinition{
			Name:       f.Name,
			Arguments:  f.Arguments,
			Type:       f.Type,
			Directives: copyDirectives(f.Directives),
		}
	}
	return out
}

func copyDirectives(directives []*ast.Directive) []*ast.Directive {
	if directives == nil {
		return nil
	}
	out := make([]*ast.Directive, len(directives))
	for i, d := range directives {
		out[i] = &ast.Directive{Name: d.Name, Arguments: d.Arguments}
	}
	return out
}

func mergeFieldDefs(existing, incoming []*ast.FieldDefinition) []*ast.FieldDefinition {
	seen := make(map[string]bool, len(existing))
	out := make([]*ast.FieldDefinition, 0, len(existing)+len(incoming))
	for _, f := range existing {
		seen[f.Name.String()] = true
		out = append(out, f)
	}
	for _, f := range incoming {
		if !seen[f.Name.String()] {
			seen[f.Name.String()] = true
			out = append(out, f)
		}
	}
	return out
}

func (sg *SuperGraph) mergeInterface(newDef *ast.InterfaceTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.InterfaceTypeDefinition); ok && e.Name.String() == newDef.Name.String() {
			e.Fields = append(e.Fields, newDef.Fields...)
			e.Directives = append(e.Directives, newDef.Directives...)
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, newDef)
}

func (sg *SuperGraph) mergeInputObject(newDef *ast.InputObjectTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.InputObjectTypeDefinition); ok && e.Name.String() == newDef.Name.String() {
			e.Fields = append(e.Fields, newDef.Fields...)
			e.Directives = append(e.Directives, newDef.Directives...)
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, newDef)
}

func (sg *SuperGraph) mergeEnum(newDef *ast.EnumTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.EnumTypeDefinition); ok && e.Name.String() == newDef.Name.String() {
			e.Values = append(e.Values, newDef.Values...)
			e.Directives = append(e.Directives, newDef.Directives...)
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, newDef)
}

func (sg *SuperGraph) mergeScalar(newDef *ast.ScalarTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.ScalarTypeDefinition); ok && e.Name.String() == newDef.Name.String() {
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, newDef)
}

func (sg *SuperGraph) mergeUnion(newDef *ast.UnionTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.UnionTypeDefinition); ok && e.Name.String() == newDef.Name.String() {
			e.Types = append(e.Types, newDef.Types...)
			e.Directives = append(e.Directives, newDef.Directives...)
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, newDef)
}

func (sg *SuperGraph) mergeDirective(newDef *ast.DirectiveDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.DirectiveDefinition); ok && e.Name.String() == newDef.Name.String() {
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, newDef)
}

// buildOwnership determines, for every "Type.field" in the composed
// document, which subgraphs can resolve it directly. @external fields are
// excluded; @override reassigns ownership away from the "from" subgraph.
func (sg *SuperGraph) buildOwnership() {
	for _, def := range sg.Doc.Definitions {
		objDef, ok := def.(*ast.ObjectTypeDefinition)
		if !ok {
			continue
		}
		typeName := objDef.Name.String()

		for _, field := range objDef.Fields {
			fieldName := field.Name.String()
			key := typeName + "." + fieldName

			var overrideFrom string
			var overrideSubGraph *SubGraph
			for _, s := range sg.SubGraphs {
				if entity, ok := s.GetEntity(typeName); ok {
					if ef, ok := entity.Fields[fieldName]; ok && ef.Override != nil {
						overrideFrom = ef.Override.From
						overrideSubGraph = s
						break
					}
				}
			}

			for _, s := range sg.SubGraphs {
				if overrideFrom != "" && s.Name == overrideFrom {
					continue
				}
				if sg.canResolve(s, typeName, fieldName) {
					sg.Ownership[key] = append(sg.Ownership[key], s)
				}
			}

			if overrideSubGraph != nil {
				found := false
				for _, o := range sg.Ownership[key] {
					if o.Name == overrideSubGraph.Name {
						found = true
						break
					}
				}
				if !found {
					sg.Ownership[key] = append(sg.Ownership[key], overrideSubGraph)
				}
			}
		}
	}
}

func (sg *SuperGraph) canResolve(s *SubGraph, typeName, fieldName string) bool {
	for _, def := range s.Doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if d.Name.String() != typeName {
				continue
			}
			for _, f := range d.Fields {
				if f.Name.String() == fieldName {
					return !hasDirective(f.Directives, "external")
				}
			}
			return false
		case *ast.ObjectTypeExtension:
			if d.Name.String() != typeName {
				continue
			}
			for _, f := range d.Fields {
				if f.Name.String() == fieldName {
					return !hasDirective(f.Directives, "external")
				}
			}
			return false
		}
	}
	return false
}

// GetSubGraphsForField returns every subgraph able to resolve "Type.field".
func (sg *SuperGraph) GetSubGraphsForField(typeName, fieldName string) []*SubGraph {
	return sg.Ownership[typeName+"."+fieldName]
}

// GetEntityOwnerSubGraph returns the subgraph that should field _entities
// lookups for typeName: a non-extension resolvable definition is
// preferred, falling back to any resolvable extension.
func (sg *SuperGraph) GetEntityOwnerSubGraph(typeName string) *SubGraph {
	for _, s := range sg.SubGraphs {
		if e, ok := s.GetEntity(typeName); ok && !e.IsExtension() && e.IsResolvable() {
			return s
		}
	}
	for _, s := range sg.SubGraphs {
		if e, ok := s.GetEntity(typeName); ok && e.IsResolvable() {
			return s
		}
	}
	return nil
}

// IsEntityType reports whether typeName carries a resolvable @key in any
// subgraph.
func (sg *SuperGraph) IsEntityType(typeName string) bool {
	return sg.GetEntityOwnerSubGraph(typeName) != nil
}

// GetFieldOwnerSubGraph returns the first-ranked owner of "Type.field".
func (sg *SuperGraph) GetFieldOwnerSubGraph(typeName, fieldName string) *SubGraph {
	owners := sg.Ownership[typeName+"."+fieldName]
	if len(owners) > 0 {
		return owners[0]
	}
	return nil
}
