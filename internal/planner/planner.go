// Package planner turns a bound GraphQL operation into an ordered DAG of
// subgraph fetch steps: the query solver described by the gateway's
// federation design.
package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/token"

	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

// StepType distinguishes a root-field fetch from an _entities fetch.
type StepType int

const (
	StepTypeQuery StepType = iota
	StepTypeEntity
)

// Step is one subgraph fetch in a plan.
type Step struct {
	ID            int
	SubGraph      *schema.SubGraph
	StepType      StepType
	ParentType    string
	SelectionSet  []ast.Selection
	Path          []string
	DependsOn     []int
	InsertionPath []string
}

// Plan is the ordered set of fetch steps produced for one operation.
type Plan struct {
	Steps            []*Step
	RootStepIndexes  []int
	OriginalDocument *ast.Document
	OperationType    string
}

// Planner solves queries against one composed supergraph.
type Planner struct {
	SuperGraph *schema.SuperGraph
}

func New(sg *schema.SuperGraph) *Planner {
	return &Planner{SuperGraph: sg}
}

// Plan builds an execution plan using the always-correct per-field
// ownership walk (no cost solving).
func (p *Planner) Plan(doc *ast.Document, variables map[string]any) (*Plan, error) {
	op := p.getOperation(doc)
	if op == nil {
		return nil, errors.New("planner: no operation found")
	}
	if len(op.SelectionSet) == 0 {
		return nil, errors.New("planner: empty selection")
	}

	fragmentDefs := p.collectFragmentDefinitions(doc)
	rootTypeName, err := p.getRootTypeName(op)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		OriginalDocument: doc,
		OperationType:    string(op.Operation),
	}
	nextStepID := 0

	expanded := p.expandFragments(op.SelectionSet, fragmentDefs)
	rootFieldsBySubGraph, order, err := p.groupRootFields(expanded, rootTypeName)
	if err != nil {
		return nil, err
	}

	for _, sg := range order {
		selections := rootFieldsBySubGraph[sg]
		filtered := p.buildStepSelections(selections, sg, rootTypeName, fragmentDefs)
		step := &Step{
			ID:           nextStepID,
			SubGraph:     sg,
			StepType:     StepTypeQuery,
			ParentType:   rootTypeName,
			SelectionSet: filtered,
			Path:         []string{rootTypeName},
		}
		plan.Steps = append(plan.Steps, step)
		plan.RootStepIndexes = append(plan.RootStepIndexes, nextStepID)
		nextStepID++
	}

	for _, rootIdx := range plan.RootStepIndexes {
		rootStep := plan.Steps[rootIdx]
		original := rootFieldsBySubGraph[rootStep.SubGraph]
		p.findAndBuildEntitySteps(original, rootStep, plan, &nextStepID, rootStep.ParentType, rootStep.Path, fragmentDefs)
	}

	p.injectRequiresDependencies(plan, fragmentDefs)

	return plan, nil
}

// PlanOptimized solves the query with the Dijkstra cost graph: a single
// subgraph query short-circuits to Plan, otherwise @provides shortcuts
// let boundary fields resolve in-line instead of spawning an entity step.
func (p *Planner) PlanOptimized(doc *ast.Document, variables map[string]any) (*Plan, error) {
	op := p.getOperation(doc)
	if op == nil {
		return nil, errors.New("planner: no operation found")
	}
	if len(op.SelectionSet) == 0 {
		return nil, errors.New("planner: empty selection")
	}

	fragmentDefs := p.collectFragmentDefinitions(doc)
	rootTypeName, err := p.getRootTypeName(op)
	if err != nil {
		return nil, err
	}
	expanded := p.expandFragments(op.SelectionSet, fragmentDefs)

	if p.isSingleSubGraphQuery(expanded, rootTypeName) {
		return p.Plan(doc, variables)
	}

	entryPoints := p.collectEntryPoints(expanded, rootTypeName)
	dijkstra := p.SuperGraph.Graph.Dijkstra(entryPoints)

	plan := &Plan{OriginalDocument: doc, OperationType: string(op.Operation)}
	nextStepID := 0

	rootFieldsBySubGraph, order, err := p.groupRootFields(expanded, rootTypeName)
	if err != nil {
		return nil, err
	}

	for _, sg := range order {
		selections := rootFieldsBySubGraph[sg]
		filtered := p.buildStepSelections(selections, sg, rootTypeName, fragmentDefs)
		step := &Step{
			ID:           nextStepID,
			SubGraph:     sg,
			StepType:     StepTypeQuery,
			ParentType:   rootTypeName,
			SelectionSet: filtered,
			Path:         []string{rootTypeName},
		}
		plan.Steps = append(plan.Steps, step)
		plan.RootStepIndexes = append(plan.RootStepIndexes, nextStepID)
		nextStepID++
	}

	for _, rootIdx := range plan.RootStepIndexes {
		rootStep := plan.Steps[rootIdx]
		original := rootFieldsBySubGraph[rootStep.SubGraph]
		p.findAndBuildEntityStepsOptimized(original, rootStep, plan, &nextStepID, rootStep.ParentType, rootStep.Path, fragmentDefs, dijkstra)
	}

	p.injectRequiresDependencies(plan, fragmentDefs)

	return plan, nil
}

func (p *Planner) groupRootFields(selections []ast.Selection, rootTypeName string) (map[*schema.SubGraph][]ast.Selection, []*schema.SubGraph, error) {
	grouped := make(map[*schema.SubGraph][]ast.Selection)
	var order []*schema.SubGraph
	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		name := field.Name.String()
		if name == "__typename" || name == "__schema" || name == "__type" {
			continue
		}
		owners := p.SuperGraph.GetSubGraphsForField(rootTypeName, name)
		if len(owners) == 0 {
			return nil, nil, fmt.Errorf("planner: no subgraph found for field %s.%s", rootTypeName, name)
		}
		sg := owners[0]
		if _, seen := grouped[sg]; !seen {
			order = append(order, sg)
		}
		grouped[sg] = append(grouped[sg], sel)
	}
	return grouped, order, nil
}

func (p *Planner) collectFragmentDefinitions(doc *ast.Document) map[string]*ast.FragmentDefinition {
	out := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if fd, ok := def.(*ast.FragmentDefinition); ok {
			out[fd.Name.String()] = fd
		}
	}
	return out
}

func (p *Planner) expandFragments(selections []ast.Selection, fragmentDefs map[string]*ast.FragmentDefinition) []ast.Selection {
	result := make([]ast.Selection, 0, len(selections))
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			if len(s.SelectionSet) > 0 {
				newField := &ast.Field{Alias: s.Alias, Name: s.Name, Arguments: s.Arguments, Directives: s.Directives}
				newField.SelectionSet = p.expandFragments(s.SelectionSet, fragmentDefs)
				result = append(result, newField)
			} else {
				result = append(result, s)
			}
		case *ast.InlineFragment:
			result = append(result, p.expandFragments(s.SelectionSet, fragmentDefs)...)
		case *ast.FragmentSpread:
			fd, ok := fragmentDefs[s.Name.String()]
			if !ok {
				continue
			}
			result = append(result, p.expandFragments(fd.SelectionSet, fragmentDefs)...)
		default:
			result = append(result, sel)
		}
	}
	return result
}

func (p *Planner) buildStepSelections(selections []ast.Selection, subGraph *schema.SubGraph, parentType string, fragmentDefs map[string]*ast.FragmentDefinition) []ast.Selection {
	result := make([]ast.Selection, 0)
	hasTypename := false

	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()
			if fieldName == "__typename" {
				hasTypename = true
				result = append(result, typenameField())
				continue
			}

			owners := p.SuperGraph.GetSubGraphsForField(parentType, fieldName)
			if len(owners) == 0 || owners[0].Name != subGraph.Name {
				continue
			}

			fieldType, err := p.getFieldTypeName(parentType, fieldName)
			if err != nil {
				fieldType = ""
			}

			newField := &ast.Field{Alias: s.Alias, Name: s.Name, Arguments: s.Arguments, Directives: s.Directives}
			if len(s.SelectionSet) > 0 && fieldType != "" {
				children := p.buildStepSelections(s.SelectionSet, subGraph, fieldType, fragmentDefs)
				if len(children) == 0 {
					children = append(children, typenameField())
				}
				newField.SelectionSet = children
			}
			result = append(result, newField)

		case *ast.InlineFragment:
			typeCondition := s.TypeCondition.Name.String()
			result = append(result, p.buildStepSelections(s.SelectionSet, subGraph, typeCondition, fragmentDefs)...)

		case *ast.FragmentSpread:
			fd, ok := fragmentDefs[s.Name.String()]
			if !ok {
				continue
			}
			typeCondition := fd.TypeCondition.Name.String()
			result = append(result, p.buildStepSelections(fd.SelectionSet, subGraph, typeCondition, fragmentDefs)...)
		}
	}

	isRootType := parentType == "Query" || parentType == "Mutation" || parentType == "Subscription"
	if !hasTypename && !isRootType && len(result) > 0 {
		result = append([]ast.Selection{typenameField()}, result...)
	}

	return result
}

func typenameField() *ast.Field {
	return &ast.Field{Name: &ast.Name{Token: token.Token{Type: token.IDENT, Literal: "__typename"}, Value: "__typename"}}
}

func (p *Planner) isSingleSubGraphQuery(selections []ast.Selection, rootTypeName string) bool {
	var single *schema.SubGraph
	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		name := field.Name.String()
		if name == "__typename" || name == "__schema" || name == "__type" {
			continue
		}
		owners := p.SuperGraph.GetSubGraphsForField(rootTypeName, name)
		if len(owners) == 0 {
			return false
		}
		if single == nil {
			single = owners[0]
		} else if single.Name != owners[0].Name {
			return false
		}
	}
	return single != nil
}

func (p *Planner) collectEntryPoints(selections []ast.Selection, rootTypeName string) []string {
	seen := make(map[string]bool)
	var entries []string
	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		name := field.Name.String()
		if name == "__typename" || name == "__schema" || name == "__type" {
			continue
		}
		owners := p.SuperGraph.GetSubGraphsForField(rootTypeName, name)
		for _, sg := range owners {
			fieldType, err := p.getFieldTypeName(rootTypeName, name)
			if err != nil {
				continue
			}
			key := schema.NodeKey(sg.Name, fieldType, "")
			if !seen[key] {
				seen[key] = true
				entries = append(entries, key)
			}
		}
	}
	return entries
}

func (p *Planner) getOperation(doc *ast.Document) *ast.OperationDefinition {
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op
		}
	}
	return nil
}

func (p *Planner) getRootTypeName(op *ast.OperationDefinition) (string, error) {
	var rootTypeName string
	switch op.Operation {
	case ast.Query:
		rootTypeName = "Query"
	case ast.Mutation:
		rootTypeName = "Mutation"
	case ast.Subscription:
		rootTypeName = "Subscription"
	default:
		return "", fmt.Errorf("planner: unknown operation type: %v", op.Operation)
	}

	for _, def := range p.SuperGraph.Doc.Definitions {
		sd, ok := def.(*ast.SchemaDefinition)
		if !ok {
			continue
		}
		for _, ot := range sd.OperationTypes {
			if (ot.Operation == token.QUERY && op.Operation == ast.Query) ||
				(ot.Operation == token.MUTATION && op.Operation == ast.Mutation) ||
				(ot.Operation == token.SUBSCRIPTION && op.Operation == ast.Subscription) {
				rootTypeName = ot.Type.Name.String()
			}
		}
	}
	return rootTypeName, nil
}

func (p *Planner) getFieldTypeName(parentTypeName, fieldName string) (string, error) {
	if fieldName == "__typename" {
		return "String", nil
	}
	for _, def := range p.SuperGraph.Doc.Definitions {
		td, ok := def.(*ast.ObjectTypeDefinition)
		if !ok || td.Name.String() != parentTypeName {
			continue
		}
		for _, field := range td.Fields {
			if field.Name.String() == fieldName {
				return p.getNamedType(field.Type), nil
			}
		}
	}
	return "", fmt.Errorf("planner: field %s not found in type %s", fieldName, parentTypeName)
}

func (p *Planner) getNamedType(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return p.getNamedType(typ.Type)
	case *ast.NonNullType:
		return p.getNamedType(typ.Type)
	default:
		return ""
	}
}

func (p *Planner) getKeyFields(typeName string, subGraph *schema.SubGraph) []string {
	entity, ok := subGraph.GetEntity(typeName)
	if !ok || len(entity.Keys) == 0 {
		return []string{"__typename"}
	}
	result := []string{"__typename"}
	result = append(result, strings.Fields(entity.Keys[0].FieldSet)...)
	return result
}
