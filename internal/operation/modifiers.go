package operation

import (
	"github.com/n9te9/graphql-parser/ast"

	"github.com/n9te9/go-graphql-federation-gateway/internal/auth"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

// collectModifiers implements §4.C step 5: walk every selected field
// and record its `@authenticated`/`@requiresScopes`/`@authorized`
// directives against the schema, independent of whether the type is a
// federation entity — the same double lookup (entity table, then raw
// AST) checkFieldAccessibility in internal/ingress uses for
// `@inaccessible`.
func collectModifiers(doc *ast.Document, superGraph *schema.SuperGraph) []FieldModifier {
	var modifiers []FieldModifier
	fragments := collectFragments(doc)

	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}

		rootTypeName := "Query"
		switch op.Operation {
		case ast.Mutation:
			rootTypeName = "Mutation"
		case ast.Subscription:
			rootTypeName = "Subscription"
		}

		walkModifiers(op.SelectionSet, rootTypeName, fragments, nil, superGraph, &modifiers)
	}

	return modifiers
}

func walkModifiers(selSet []ast.Selection, parentType string, fragments map[string]*ast.FragmentDefinition, path []string, superGraph *schema.SuperGraph, out *[]FieldModifier) {
	for _, sel := range selSet {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()
			responseKey := fieldName
			if s.Alias != nil && s.Alias.String() != "" {
				responseKey = s.Alias.String()
			}
			fieldPath := append(append([]string{}, path...), responseKey)

			if d, ok := fieldDirective(parentType, fieldName, superGraph); ok {
				*out = append(*out, FieldModifier{Path: fieldPath, Directive: d})
			}

			if nextType := fieldTypeName(parentType, fieldName, superGraph); nextType != "" && len(s.SelectionSet) > 0 {
				walkModifiers(s.SelectionSet, nextType, fragments, fieldPath, superGraph, out)
			}

		case *ast.InlineFragment:
			typeCondition := parentType
			if s.TypeCondition != nil {
				typeCondition = s.TypeCondition.Name.String()
			}
			walkModifiers(s.SelectionSet, typeCondition, fragments, path, superGraph, out)

		case *ast.FragmentSpread:
			if fd, ok := fragments[s.Name.String()]; ok {
				typeCondition := parentType
				if fd.TypeCondition != nil {
					typeCondition = fd.TypeCondition.Name.String()
				}
				walkModifiers(fd.SelectionSet, typeCondition, fragments, path, superGraph, out)
			}
		}
	}
}

// fieldDirective resolves a field's auth modifier directives. Entity
// types (anything carrying @key) already have this parsed once at
// composition time in schema.Field, so that's consulted first; plain
// object types (Query/Mutation/Subscription roots, and any object type
// without @key) have no schema.Entity at all, so those fall back to a
// direct read of the composed AST.
func fieldDirective(typeName, fieldName string, superGraph *schema.SuperGraph) (auth.Directive, bool) {
	if owner := superGraph.GetEntityOwnerSubGraph(typeName); owner != nil {
		if entity, ok := owner.GetEntity(typeName); ok {
			if field, ok := entity.Fields[fieldName]; ok {
				d := auth.Directive{
					Authenticated:  field.Authenticated,
					RequiredScopes: field.RequiredScopes,
					Authorized:     field.Authorized,
				}
				return d, field.Authenticated || len(field.RequiredScopes) > 0 || field.Authorized
			}
		}
	}

	for _, def := range superGraph.Doc.Definitions {
		objDef, ok := def.(*ast.ObjectTypeDefinition)
		if !ok || objDef.Name.String() != typeName {
			continue
		}
		for _, f := range objDef.Fields {
			if f.Name.String() != fieldName {
				continue
			}

			var d auth.Directive
			for _, directive := range f.Directives {
				switch directive.Name {
				case "authenticated":
					d.Authenticated = true
				case "requiresScopes":
					if len(directive.Arguments) > 0 {
						d.RequiredScopes = append(d.RequiredScopes, splitScopes(directive.Arguments[0].Value.String())...)
					}
				case "authorized":
					d.Authorized = true
				}
			}
			if d.Authenticated || len(d.RequiredScopes) > 0 || d.Authorized {
				return d, true
			}
			return auth.Directive{}, false
		}
	}
	return auth.Directive{}, false
}

func splitScopes(raw string) []string {
	raw = trimQuotes(raw)
	var out []string
	var current []rune
	for _, r := range raw {
		switch r {
		case ' ', ',', '[', ']', '"':
			if len(current) > 0 {
				out = append(out, string(current))
				current = nil
			}
		default:
			current = append(current, r)
		}
	}
	if len(current) > 0 {
		out = append(out, string(current))
	}
	return out
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func fieldTypeName(typeName, fieldName string, superGraph *schema.SuperGraph) string {
	for _, def := range superGraph.Doc.Definitions {
		objDef, ok := def.(*ast.ObjectTypeDefinition)
		if !ok || objDef.Name.String() != typeName {
			continue
		}
		for _, f := range objDef.Fields {
			if f.Name.String() == fieldName {
				return unwrapTypeName(f.Type)
			}
		}
	}
	return ""
}

func unwrapTypeName(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return unwrapTypeName(typ.Type)
	case *ast.NonNullType:
		return unwrapTypeName(typ.Type)
	}
	return ""
}
