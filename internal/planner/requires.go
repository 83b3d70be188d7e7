package planner

import (
	"github.com/n9te9/graphql-parser/ast"
)

// injectRequiresDependencies walks every entity step and, for each
// selected field carrying an @requires(fields: "...") directive in the
// resolving subgraph's SDL, ensures the required fields are fetched by
// the step's dependency before this step's representations are built,
// and that the step records a DependsOn edge on whichever step produces
// them (the step whose InsertionPath covers this step's entity).
func (p *Planner) injectRequiresDependencies(plan *Plan, fragmentDefs map[string]*ast.FragmentDefinition) {
	for _, step := range plan.Steps {
		if step.StepType != StepTypeEntity {
			continue
		}
		entity, ok := step.SubGraph.GetEntity(step.ParentType)
		if !ok {
			continue
		}

		for _, sel := range step.SelectionSet {
			field, ok := sel.(*ast.Field)
			if !ok {
				continue
			}
			fieldName := field.Name.String()
			entityField, ok := entity.Fields[fieldName]
			if !ok || len(entityField.Requires) == 0 {
				continue
			}

			depStep := p.findProducingStep(plan, step)
			if depStep == nil {
				continue
			}

			alreadyDeps := false
			for _, d := range step.DependsOn {
				if d == depStep.ID {
					alreadyDeps = true
					break
				}
			}
			if !alreadyDeps {
				step.DependsOn = append(step.DependsOn, depStep.ID)
			}

			relative := step.InsertionPath
			if len(relative) == 0 {
				continue
			}
			depStep.SelectionSet = p.ensureAndInjectKeyFields(depStep.SelectionSet, relative, entityField.Requires)
		}
	}
}

// findProducingStep returns the first step listed in step.DependsOn (the
// parent step that spawned this entity step), or nil if none is found.
func (p *Planner) findProducingStep(plan *Plan, step *Step) *Step {
	for _, id := range step.DependsOn {
		for _, s := range plan.Steps {
			if s.ID == id {
				return s
			}
		}
	}
	return nil
}
