package planner

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/token"

	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

// findAndBuildEntitySteps walks selections looking for boundary fields —
// fields owned by a different subgraph than parentStep, or fields whose
// type is an entity owned elsewhere — and emits _entities steps for them,
// injecting the key fields the boundary needs back into parentStep.
func (p *Planner) findAndBuildEntitySteps(
	selections []ast.Selection,
	parentStep *Step,
	plan *Plan,
	nextStepID *int,
	parentType string,
	currentPath []string,
	fragmentDefs map[string]*ast.FragmentDefinition,
) {
	entityStepsByKey := make(map[string]*Step)

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		fieldName := field.Name.String()
		if fieldName == "__typename" {
			continue
		}

		fieldType, err := p.getFieldTypeName(parentType, fieldName)
		if err != nil {
			continue
		}

		fieldIdentifier := fieldName
		if field.Alias != nil && field.Alias.String() != "" {
			fieldIdentifier = field.Alias.String()
		}
		fieldPath := append(append([]string{}, currentPath...), fieldIdentifier)

		owners := p.SuperGraph.GetSubGraphsForField(parentType, fieldName)
		if len(owners) == 0 {
			continue
		}
		fieldSubGraph := owners[0]
		entityOwner := p.SuperGraph.GetEntityOwnerSubGraph(fieldType)

		isBoundary := false
		targetSubGraph := fieldSubGraph
		if fieldSubGraph.Name != parentStep.SubGraph.Name {
			isBoundary = true
		} else if entityOwner != nil && entityOwner.Name != parentStep.SubGraph.Name {
			isBoundary = true
			targetSubGraph = entityOwner
		}

		if !isBoundary {
			if len(field.SelectionSet) > 0 {
				p.findAndBuildEntitySteps(field.SelectionSet, parentStep, plan, nextStepID, fieldType, fieldPath, fragmentDefs)
			}
			continue
		}

		p.buildOneEntityStep(field, sel, fieldName, fieldType, fieldPath, parentStep, plan, nextStepID,
			parentType, currentPath, targetSubGraph, entityOwner, fragmentDefs, entityStepsByKey,
			func(sels []ast.Selection, nextID *int, nestedParentType string, nestedPath []string, step *Step) {
				p.findAndBuildEntitySteps(sels, step, plan, nextID, nestedParentType, nestedPath, fragmentDefs)
			})
	}
}

// findAndBuildEntityStepsOptimized is the @provides-aware variant: when a
// boundary field's children are all reachable at zero cost via a
// @provides shortcut from the parent subgraph, it is folded into the
// parent step instead of spawning a new one.
func (p *Planner) findAndBuildEntityStepsOptimized(
	selections []ast.Selection,
	parentStep *Step,
	plan *Plan,
	nextStepID *int,
	parentType string,
	currentPath []string,
	fragmentDefs map[string]*ast.FragmentDefinition,
	dijkstra *schema.DijkstraResult,
) {
	entityStepsByKey := make(map[string]*Step)

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		fieldName := field.Name.String()
		if fieldName == "__typename" {
			continue
		}

		fieldType, err := p.getFieldTypeName(parentType, fieldName)
		if err != nil {
			continue
		}

		fieldIdentifier := fieldName
		if field.Alias != nil && field.Alias.String() != "" {
			fieldIdentifier = field.Alias.String()
		}
		fieldPath := append(append([]string{}, currentPath...), fieldIdentifier)

		owners := p.SuperGraph.GetSubGraphsForField(parentType, fieldName)
		if len(owners) == 0 {
			continue
		}
		fieldSubGraph := owners[0]
		entityOwner := p.SuperGraph.GetEntityOwnerSubGraph(fieldType)

		isBoundary := false
		targetSubGraph := fieldSubGraph
		if fieldSubGraph.Name != parentStep.SubGraph.Name {
			isBoundary = true
		} else if entityOwner != nil && entityOwner.Name != parentStep.SubGraph.Name {
			isBoundary = true
			targetSubGraph = entityOwner
		}

		if !isBoundary {
			if len(field.SelectionSet) > 0 {
				p.findAndBuildEntityStepsOptimized(field.SelectionSet, parentStep, plan, nextStepID, fieldType, fieldPath, fragmentDefs, dijkstra)
			}
			continue
		}

		if p.canResolveViaProvides(field.SelectionSet, parentStep.SubGraph, parentType, fieldName, fieldType) {
			parentStep.SelectionSet = p.injectProvidedFields(parentStep.SelectionSet, fieldName, field.SelectionSet, parentStep.SubGraph, fieldType, fragmentDefs)
			continue
		}

		p.buildOneEntityStep(field, sel, fieldName, fieldType, fieldPath, parentStep, plan, nextStepID,
			parentType, currentPath, targetSubGraph, entityOwner, fragmentDefs, entityStepsByKey,
			func(sels []ast.Selection, nextID *int, nestedParentType string, nestedPath []string, step *Step) {
				p.findAndBuildEntityStepsOptimized(sels, step, plan, nextID, nestedParentType, nestedPath, fragmentDefs, dijkstra)
			})
	}
}

// buildOneEntityStep contains the step-construction logic shared by both
// the naive and the @provides-aware traversal: decide whether the
// boundary is an entity extension or an entity reference, build the
// _entities selection, register DependsOn, and inject key fields back
// into the parent step.
func (p *Planner) buildOneEntityStep(
	field *ast.Field,
	sel ast.Selection,
	fieldName, fieldType string,
	fieldPath []string,
	parentStep *Step,
	plan *Plan,
	nextStepID *int,
	parentType string,
	currentPath []string,
	targetSubGraph *schema.SubGraph,
	entityOwner *schema.SubGraph,
	fragmentDefs map[string]*ast.FragmentDefinition,
	entityStepsByKey map[string]*Step,
	recurse func(sels []ast.Selection, nextID *int, nestedParentType string, nestedPath []string, step *Step),
) {
	var entityTypeToResolve string
	_, parentExtendedInTarget := targetSubGraph.GetEntity(parentType)
	if parentExtendedInTarget {
		entityTypeToResolve = parentType
	} else {
		entityTypeToResolve = fieldType
	}

	isNestedEntity := entityOwner != nil && entityOwner.Name == targetSubGraph.Name
	boundaryPath := append(append([]string{}, currentPath...), fieldName)
	stepKey := fmt.Sprintf("%s:%s:%d:%s", targetSubGraph.Name, entityTypeToResolve, parentStep.ID, strings.Join(boundaryPath, "."))

	if existing, ok := entityStepsByKey[stepKey]; ok {
		existing.SelectionSet = p.mergeSelections(existing.SelectionSet, []ast.Selection{sel}, targetSubGraph, entityTypeToResolve, fragmentDefs)
		return
	}

	var entitySelections []ast.Selection
	var insertionPath []string
	if entityTypeToResolve == parentType {
		entitySelections = p.buildEntityStepSelections([]ast.Selection{sel}, targetSubGraph, parentType, entityTypeToResolve, fragmentDefs)
		insertionPath = currentPath
	} else {
		entitySelections = p.buildEntityStepSelections(field.SelectionSet, targetSubGraph, entityTypeToResolve, entityTypeToResolve, fragmentDefs)
		insertionPath = append(currentPath, fieldName)
	}

	newStep := &Step{
		ID:            *nextStepID,
		SubGraph:      targetSubGraph,
		StepType:      StepTypeEntity,
		ParentType:    entityTypeToResolve,
		SelectionSet:  entitySelections,
		Path:          fieldPath,
		DependsOn:     []int{parentStep.ID},
		InsertionPath: insertionPath,
	}
	plan.Steps = append(plan.Steps, newStep)
	entityStepsByKey[stepKey] = newStep
	*nextStepID++

	var relativePath []string
	if len(parentStep.InsertionPath) == 0 {
		if len(currentPath) > 0 && currentPath[0] == "Query" {
			relativePath = currentPath[1:]
		} else {
			relativePath = currentPath
		}
	} else {
		relativePath = currentPath[len(parentStep.InsertionPath):]
	}
	if isNestedEntity && entityTypeToResolve != parentType {
		relativePath = append(relativePath, fieldName)
	}

	p.injectKeyFieldsIntoParentStep(parentStep, entityTypeToResolve, targetSubGraph, relativePath)

	if len(field.SelectionSet) > 0 {
		nestedParentType := entityTypeToResolve
		if entityTypeToResolve == parentType {
			nestedParentType = fieldType
		}
		recurse(field.SelectionSet, nextStepID, nestedParentType, fieldPath, newStep)
	}
}

func (p *Planner) buildEntityStepSelections(selections []ast.Selection, subGraph *schema.SubGraph, parentType, entityType string, fragmentDefs map[string]*ast.FragmentDefinition) []ast.Selection {
	result := make([]ast.Selection, 0)

	for _, keyField := range p.getKeyFields(entityType, subGraph) {
		result = append(result, &ast.Field{Name: &ast.Name{Token: token.Token{Type: token.IDENT, Literal: keyField}, Value: keyField}})
	}

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		fieldName := field.Name.String()
		if fieldName == "__typename" {
			continue
		}

		fieldType, err := p.getFieldTypeName(parentType, fieldName)
		if err != nil {
			continue
		}

		newField := &ast.Field{Alias: field.Alias, Name: field.Name, Arguments: field.Arguments, Directives: field.Directives}
		if len(field.SelectionSet) > 0 {
			children := p.buildStepSelections(field.SelectionSet, subGraph, fieldType, fragmentDefs)
			newField.SelectionSet = children
			if len(children) > 0 {
				result = append(result, newField)
			}
		} else {
			owners := p.SuperGraph.GetSubGraphsForField(entityType, fieldName)
			if len(owners) > 0 && owners[0].Name == subGraph.Name {
				result = append(result, newField)
			}
		}
	}

	return result
}

func (p *Planner) mergeSelections(existing, newSels []ast.Selection, subGraph *schema.SubGraph, parentType string, fragmentDefs map[string]*ast.FragmentDefinition) []ast.Selection {
	merged := append(append([]ast.Selection{}, existing...), newSels...)
	return p.buildStepSelections(merged, subGraph, parentType, fragmentDefs)
}

func (p *Planner) injectKeyFieldsIntoParentStep(parentStep *Step, entityType string, childSubGraph *schema.SubGraph, insertionPath []string) {
	if len(insertionPath) == 0 {
		return
	}
	keyFields := p.getKeyFields(entityType, childSubGraph)
	parentStep.SelectionSet = p.ensureAndInjectKeyFields(parentStep.SelectionSet, insertionPath, keyFields)
}

func (p *Planner) ensureAndInjectKeyFields(selections []ast.Selection, path []string, keyFields []string) []ast.Selection {
	if len(path) == 0 {
		return selections
	}
	target := path[0]
	var targetField *ast.Field
	for _, sel := range selections {
		if f, ok := sel.(*ast.Field); ok {
			id := f.Name.String()
			if f.Alias != nil && f.Alias.String() != "" {
				id = f.Alias.String()
			}
			if id == target {
				targetField = f
				break
			}
		}
	}
	if targetField == nil {
		targetField = &ast.Field{
			Name:         &ast.Name{Token: token.Token{Type: token.IDENT, Literal: target}, Value: target},
			SelectionSet: make([]ast.Selection, 0),
		}
		selections = append(selections, targetField)
	}

	if len(path) == 1 {
		existing := make(map[string]bool)
		for _, sel := range targetField.SelectionSet {
			if f, ok := sel.(*ast.Field); ok {
				existing[f.Name.String()] = true
			}
		}
		for _, kf := range keyFields {
			if !existing[kf] {
				targetField.SelectionSet = append(targetField.SelectionSet, &ast.Field{Name: &ast.Name{Token: token.Token{Type: token.IDENT, Literal: kf}, Value: kf}})
			}
		}
	} else {
		targetField.SelectionSet = p.ensureAndInjectKeyFields(targetField.SelectionSet, path[1:], keyFields)
	}

	return selections
}

func (p *Planner) canResolveViaProvides(childSelections []ast.Selection, parentSG *schema.SubGraph, parentType, fieldName, fieldType string) bool {
	if len(childSelections) == 0 {
		return false
	}
	srcKey := schema.NodeKey(parentSG.Name, parentType, fieldName)
	srcNode, ok := p.SuperGraph.Graph.Nodes[srcKey]
	if !ok || len(srcNode.ShortCut) == 0 {
		return false
	}
	for _, sel := range childSelections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		name := field.Name.String()
		if name == "__typename" {
			continue
		}
		found := false
		for scKey := range srcNode.ShortCut {
			node, exists := p.SuperGraph.Graph.Nodes[scKey]
			if exists && node.TypeName == fieldType && node.FieldName == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (p *Planner) injectProvidedFields(selections []ast.Selection, fieldName string, childSelections []ast.Selection, sg *schema.SubGraph, fieldType string, fragmentDefs map[string]*ast.FragmentDefinition) []ast.Selection {
	for _, sel := range selections {
		f, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if f.Name.String() == fieldName {
			filtered := p.buildStepSelections(childSelections, sg, fieldType, fragmentDefs)
			f.SelectionSet = p.mergeSelectionsByName(f.SelectionSet, filtered)
			return selections
		}
	}
	newField := &ast.Field{
		Name:         &ast.Name{Value: fieldName},
		SelectionSet: p.buildStepSelections(childSelections, sg, fieldType, fragmentDefs),
	}
	return append(selections, newField)
}

func (p *Planner) mergeSelectionsByName(existing, additions []ast.Selection) []ast.Selection {
	names := make(map[string]bool)
	for _, sel := range existing {
		if f, ok := sel.(*ast.Field); ok {
			names[f.Name.String()] = true
		}
	}
	result := append([]ast.Selection{}, existing...)
	for _, sel := range additions {
		if f, ok := sel.(*ast.Field); ok && !names[f.Name.String()] {
			result = append(result, sel)
			names[f.Name.String()] = true
		}
	}
	return result
}
