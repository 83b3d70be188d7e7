package executor

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

// QueryBuilder renders planner.Step selections back into GraphQL query
// text to send to a subgraph.
type QueryBuilder struct {
	superGraph *schema.SuperGraph
}

func NewQueryBuilder(superGraph *schema.SuperGraph) *QueryBuilder {
	return &QueryBuilder{superGraph: superGraph}
}

// Build renders a root query/mutation or an _entities query depending on
// step.StepType.
func (qb *QueryBuilder) Build(step *planner.Step, representations []map[string]interface{}, variables map[string]interface{}, operationType string) (string, map[string]interface{}, error) {
	if step.StepType == planner.StepTypeQuery {
		return qb.buildRootQuery(step, variables, operationType)
	}
	return qb.buildEntityQuery(step, representations, variables)
}

func (qb *QueryBuilder) buildRootQuery(step *planner.Step, variables map[string]interface{}, operationType string) (string, map[string]interface{}, error) {
	var sb strings.Builder
	varNames := qb.collectVariables(step.SelectionSet)

	if operationType == "" {
		operationType = "query"
	}

	sb.WriteString(operationType)
	if len(varNames) > 0 {
		sb.WriteString(" (")
		for i, name := range varNames {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(qb.inferVariableType(name, variables, step))
		}
		sb.WriteString(")")
	}
	sb.WriteString(" {\n")

	for _, sel := range step.SelectionSet {
		if err := qb.writeSelection(&sb, sel, "\t", step, step.ParentType); err != nil {
			return "", nil, err
		}
	}
	sb.WriteString("}")

	return sb.String(), variables, nil
}

func (qb *QueryBuilder) collectVariables(selections []ast.Selection) []string {
	vars := make(map[string]bool)
	qb.collectVariablesRecursive(selections, vars)
	result := make([]string, 0, len(vars))
	for v := range vars {
		result = append(result, v)
	}
	return result
}

func (qb *QueryBuilder) collectVariablesRecursive(selections []ast.Selection, vars map[string]bool) {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			for _, arg := range s.Arguments {
				qb.collectVariablesFromValue(arg.Value, vars)
			}
			if len(s.SelectionSet) > 0 {
				qb.collectVariablesRecursive(s.SelectionSet, vars)
			}
		case *ast.InlineFragment:
			if len(s.SelectionSet) > 0 {
				qb.collectVariablesRecursive(s.SelectionSet, vars)
			}
		}
	}
}

func (qb *QueryBuilder) collectVariablesFromValue(val ast.Value, vars map[string]bool) {
	switch v := val.(type) {
	case *ast.Variable:
		vars[v.Name] = true
	case *ast.ListValue:
		for _, item := range v.Values {
			qb.collectVariablesFromValue(item, vars)
		}
	case *ast.ObjectValue:
		for _, field := range v.Fields {
			qb.collectVariablesFromValue(field.Value, vars)
		}
	}
}

func (qb *QueryBuilder) inferVariableType(varName string, variables map[string]interface{}, step *planner.Step) string {
	if step.SubGraph != nil && step.SubGraph.Doc != nil {
		if t := qb.getVariableTypeFromSchema(varName, step); t != "" {
			return t
		}
	}
	if val, ok := variables[varName]; ok {
		switch val.(type) {
		case string:
			return "String"
		case int, int32, int64:
			return "Int"
		case float32, float64:
			return "Float"
		case bool:
			return "Boolean"
		}
	}
	return "String"
}

func (qb *QueryBuilder) getVariableTypeFromSchema(varName string, step *planner.Step) string {
	for _, sel := range step.SelectionSet {
		if field, ok := sel.(*ast.Field); ok {
			for _, arg := range field.Arguments {
				if v, ok := arg.Value.(*ast.Variable); ok && v.Name == varName {
					return qb.getArgumentTypeFromSchema(step, step.ParentType, field.Name.String(), arg.Name.String())
				}
			}
		}
	}
	return ""
}

func (qb *QueryBuilder) getArgumentTypeFromSchema(step *planner.Step, parentType, fieldName, argName string) string {
	if step.SubGraph == nil || step.SubGraph.Doc == nil {
		return ""
	}
	for _, def := range step.SubGraph.Doc.Definitions {
		if objType, ok := def.(*ast.ObjectTypeDefinition); ok && objType.Name.String() == parentType {
			for _, field := range objType.Fields {
				if field.Name.String() == fieldName {
					for _, arg := range field.Arguments {
						if arg.Name.String() == argName {
							return arg.Type.String()
						}
					}
				}
			}
		}
	}
	return ""
}

func (qb *QueryBuilder) getFieldType(step *planner.Step, parentType, fieldName string) string {
	if step.SubGraph == nil || step.SubGraph.Doc == nil {
		return ""
	}
	for _, def := range step.SubGraph.Doc.Definitions {
		if objType, ok := def.(*ast.ObjectTypeDefinition); ok && objType.Name.String() == parentType {
			for _, field := range objType.Fields {
				if field.Name.String() == fieldName {
					return qb.extractBaseTypeName(field.Type.String())
				}
			}
		}
	}
	return ""
}

func (qb *QueryBuilder) extractBaseTypeName(typeStr string) string {
	cleaned := strings.Trim(typeStr, "[]!")
	cleaned = strings.ReplaceAll(cleaned, "[", "")
	cleaned = strings.ReplaceAll(cleaned, "]", "")
	cleaned = strings.ReplaceAll(cleaned, "!", "")
	return cleaned
}

func (qb *QueryBuilder) buildEntityQuery(step *planner.Step, representations []map[string]interface{}, variables map[string]interface{}) (string, map[string]interface{}, error) {
	if len(representations) == 0 {
		return "", nil, fmt.Errorf("executor: representations cannot be empty for entity query")
	}

	var sb strings.Builder
	sb.WriteString("query ($representations: [_Any!]!) {\n")
	sb.WriteString("\t_entities(representations: $representations) {\n")
	sb.WriteString("\t\t... on ")
	sb.WriteString(step.ParentType)
	sb.WriteString(" {\n")

	for _, sel := range step.SelectionSet {
		if err := qb.writeSelection(&sb, sel, "\t\t\t", step, step.ParentType); err != nil {
			return "", nil, err
		}
	}

	sb.WriteString("\t\t}\n\t}\n}")

	newVariables := make(map[string]interface{}, len(variables)+1)
	for k, v := range variables {
		newVariables[k] = v
	}
	newVariables["representations"] = representations

	return sb.String(), newVariables, nil
}

func (qb *QueryBuilder) writeSelection(sb *strings.Builder, sel ast.Selection, indent string, step *planner.Step, parentType string) error {
	switch s := sel.(type) {
	case *ast.Field:
		fieldName := s.Name.String()
		sb.WriteString(indent)
		if s.Alias != nil && s.Alias.String() != "" {
			sb.WriteString(s.Alias.String())
			sb.WriteString(": ")
		}
		sb.WriteString(fieldName)

		if len(s.Arguments) > 0 {
			sb.WriteString("(")
			for i, arg := range s.Arguments {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(arg.Name.String())
				sb.WriteString(": ")
				qb.writeValue(sb, arg.Value)
			}
			sb.WriteString(")")
		}

		if len(s.SelectionSet) > 0 {
			fieldType := qb.getFieldType(step, parentType, fieldName)
			sb.WriteString(" {\n")
			for _, sub := range s.SelectionSet {
				if err := qb.writeSelection(sb, sub, indent+"\t", step, fieldType); err != nil {
					return err
				}
			}
			sb.WriteString(indent)
			sb.WriteString("}")
		}
		sb.WriteString("\n")

	case *ast.InlineFragment:
		sb.WriteString(indent)
		sb.WriteString("... on ")
		typeCondition := s.TypeCondition.Name.String()
		sb.WriteString(typeCondition)
		sb.WriteString(" {\n")
		for _, sub := range s.SelectionSet {
			if err := qb.writeSelection(sb, sub, indent+"\t", step, typeCondition); err != nil {
				return err
			}
		}
		sb.WriteString(indent)
		sb.WriteString("}\n")

	case *ast.FragmentSpread:
		sb.WriteString(indent)
		sb.WriteString("...")
		sb.WriteString(s.Name.String())
		sb.WriteString("\n")
	}

	return nil
}

func (qb *QueryBuilder) writeValue(sb *strings.Builder, val ast.Value) {
	switch v := val.(type) {
	case *ast.StringValue:
		sb.WriteString("\"")
		sb.WriteString(v.Value)
		sb.WriteString("\"")
	case *ast.IntValue:
		fmt.Fprintf(sb, "%d", v.Value)
	case *ast.FloatValue:
		fmt.Fprintf(sb, "%f", v.Value)
	case *ast.BooleanValue:
		fmt.Fprintf(sb, "%t", v.Value)
	case *ast.Variable:
		sb.WriteString("$")
		sb.WriteString(v.Name)
	case *ast.ListValue:
		sb.WriteString("[")
		for i, item := range v.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			qb.writeValue(sb, item)
		}
		sb.WriteString("]")
	case *ast.ObjectValue:
		sb.WriteString("{")
		for i, field := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(field.Name.String())
			sb.WriteString(": ")
			qb.writeValue(sb, field.Value)
		}
		sb.WriteString("}")
	case *ast.EnumValue:
		sb.WriteString(v.Value)
	default:
		sb.WriteString("null")
	}
}
