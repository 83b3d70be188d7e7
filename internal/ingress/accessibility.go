package ingress

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

// validateAccessibility walks every operation in doc and rejects any
// selection naming an `@inaccessible` field, per §4.B's Inaccessible
// Open Question ("stripped": such fields must not even be queryable).
func validateAccessibility(doc *ast.Document, superGraph *schema.SuperGraph) error {
	for _, def := range doc.Definitions {
		opDef, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}

		rootTypeName := "Query"
		switch opDef.Operation {
		case ast.Mutation:
			rootTypeName = "Mutation"
		case ast.Subscription:
			rootTypeName = "Subscription"
		}

		if err := validateSelectionSet(opDef.SelectionSet, rootTypeName, superGraph); err != nil {
			return err
		}
	}
	return nil
}

func validateSelectionSet(selSet []ast.Selection, parentTypeName string, superGraph *schema.SuperGraph) error {
	for _, sel := range selSet {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()
			if fieldName == "__typename" || fieldName == "__schema" || fieldName == "__type" {
				continue
			}

			if err := checkFieldAccessibility(parentTypeName, fieldName, superGraph); err != nil {
				return err
			}

			if nextType := fieldTypeName(parentTypeName, fieldName, superGraph); nextType != "" {
				if err := validateSelectionSet(s.SelectionSet, nextType, superGraph); err != nil {
					return err
				}
			}

		case *ast.InlineFragment:
			typeCondition := parentTypeName
			if s.TypeCondition != nil {
				typeCondition = s.TypeCondition.Name.String()
			}
			if err := validateSelectionSet(s.SelectionSet, typeCondition, superGraph); err != nil {
				return err
			}

		case *ast.FragmentSpread:
			// Fragment bodies are validated where they're defined; a
			// spread alone carries no field selections to check here.
		}
	}
	return nil
}

func checkFieldAccessibility(typeName, fieldName string, superGraph *schema.SuperGraph) error {
	for _, sub := range superGraph.SubGraphs {
		if entity, ok := sub.GetEntity(typeName); ok {
			if field, ok := entity.Fields[fieldName]; ok && field.IsInaccessible() {
				return fmt.Errorf("cannot query field %q on type %q", fieldName, typeName)
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
			for _, d := range f.Directives {
				if d.Name == "inaccessible" {
					return fmt.Errorf("cannot query field %q on type %q", fieldName, typeName)
				}
			}
		}
	}

	return nil
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
