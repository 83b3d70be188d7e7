package operation

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
)

// Limits bounds an operation's shape, per §4.C step 3 and the
// `operation_preparation.max_*` config keys.
type Limits struct {
	MaxDepth      int
	MaxHeight     int // total selected fields in one operation, fragment spreads included
	MaxAliases    int
	MaxComplexity int
	MaxRootFields int
}

func (l Limits) empty() bool {
	return l.MaxDepth == 0 && l.MaxHeight == 0 && l.MaxAliases == 0 && l.MaxComplexity == 0 && l.MaxRootFields == 0
}

type limitCounters struct {
	height     int
	aliases    int
	complexity int
	maxDepth   int
}

// Check walks every operation in doc and rejects it if any configured
// limit is exceeded. A zero Limits disables all checks.
func Check(doc *ast.Document, limits Limits) *RequestError {
	if limits.empty() {
		return nil
	}

	fragments := collectFragments(doc)

	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}

		if limits.MaxRootFields > 0 && countRootFields(op.SelectionSet) > limits.MaxRootFields {
			return &RequestError{Code: CodeRequestError, Message: "operation exceeds the maximum root-field count"}
		}

		counters := &limitCounters{}
		walkSelections(op.SelectionSet, fragments, 1, counters)

		if limits.MaxDepth > 0 && counters.maxDepth > limits.MaxDepth {
			return &RequestError{Code: CodeRequestError, Message: fmt.Sprintf("operation exceeds the maximum selection depth of %d", limits.MaxDepth)}
		}
		if limits.MaxHeight > 0 && counters.height > limits.MaxHeight {
			return &RequestError{Code: CodeRequestError, Message: "operation exceeds the maximum selection height"}
		}
		if limits.MaxAliases > 0 && counters.aliases > limits.MaxAliases {
			return &RequestError{Code: CodeRequestError, Message: "operation exceeds the maximum alias count"}
		}
		if limits.MaxComplexity > 0 && counters.complexity > limits.MaxComplexity {
			return &RequestError{Code: CodeRequestError, Message: "operation exceeds the maximum complexity budget"}
		}
	}

	return nil
}

func collectFragments(doc *ast.Document) map[string]*ast.FragmentDefinition {
	out := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if fd, ok := def.(*ast.FragmentDefinition); ok {
			out[fd.Name.String()] = fd
		}
	}
	return out
}

func countRootFields(selSet []ast.Selection) int {
	count := 0
	for _, sel := range selSet {
		if _, ok := sel.(*ast.Field); ok {
			count++
		}
	}
	return count
}

func walkSelections(selSet []ast.Selection, fragments map[string]*ast.FragmentDefinition, depth int, counters *limitCounters) {
	if depth > counters.maxDepth {
		counters.maxDepth = depth
	}

	for _, sel := range selSet {
		switch s := sel.(type) {
		case *ast.Field:
			counters.height++
			counters.complexity += depth
			if s.Alias != nil {
				counters.aliases++
			}
			if len(s.SelectionSet) > 0 {
				walkSelections(s.SelectionSet, fragments, depth+1, counters)
			}

		case *ast.InlineFragment:
			walkSelections(s.SelectionSet, fragments, depth, counters)

		case *ast.FragmentSpread:
			if fd, ok := fragments[s.Name.String()]; ok {
				walkSelections(fd.SelectionSet, fragments, depth, counters)
			}
		}
	}
}
