// Package schema holds the interned supergraph model: subgraph entity
// metadata (keys, requires, provides, shareable, override) and the
// composed document that backs query planning.
package schema

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// Key captures one @key directive occurrence on an entity.
type Key struct {
	FieldSet   string
	Resolvable bool
}

// Override records an @override(from: "...") directive on a field.
type Override struct {
	From string
}

// Field describes one field of an entity type as seen from a single
// subgraph.
type Field struct {
	Name           string
	Type           ast.Type
	Requires       []string
	Provides       []string
	Shareable      bool
	External       bool
	Inaccessible   bool
	Authenticated  bool
	RequiredScopes []string
	Authorized     bool
	Override       *Override
}

// IsInaccessible reports whether this field carries @inaccessible and
// must be rejected at operation-validation time and stripped from any
// introspection response.
func (f *Field) IsInaccessible() bool { return f.Inaccessible }

// Entity is an object type carrying at least one @key directive.
type Entity struct {
	Keys      []Key
	Extension bool
	Fields    map[string]*Field
}

func (e *Entity) IsExtension() bool { return e.Extension }

// IsResolvable reports whether at least one @key on this entity allows
// the gateway to dispatch _entities lookups against it.
func (e *Entity) IsResolvable() bool {
	for _, k := range e.Keys {
		if k.Resolvable {
			return true
		}
	}
	return false
}

// SubGraph is one federated service: its name, upstream host, parsed
// SDL and the entities it contributes.
type SubGraph struct {
	Name     string
	Host     string
	Doc      *ast.Document
	SDL      []byte
	entities map[string]*Entity
}

// NewSubGraph parses src as GraphQL SDL and extracts entity metadata
// (@key, @requires, @provides, @shareable, @external, @override).
func NewSubGraph(name string, src []byte, host string) (*SubGraph, error) {
	l := lexer.New(string(src))
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("schema: parse subgraph %q: %v", name, p.Errors())
	}

	sg := &SubGraph{
		Name:     name,
		Host:     host,
		Doc:      doc,
		SDL:      src,
		entities: make(map[string]*Entity),
	}

	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if hasDirective(d.Directives, "key") {
				sg.entities[d.Name.String()] = buildEntity(d.Directives, d.Fields, false)
			}
		case *ast.ObjectTypeExtension:
			if hasDirective(d.Directives, "key") {
				sg.entities[d.Name.String()] = buildEntity(d.Directives, d.Fields, true)
			}
		}
	}

	return sg, nil
}

func buildEntity(directives []*ast.Directive, fields []*ast.FieldDefinition, extension bool) *Entity {
	e := &Entity{
		Keys:      parseKeys(directives),
		Extension: extension,
		Fields:    make(map[string]*Field),
	}
	for _, f := range fields {
		e.Fields[f.Name.String()] = parseField(f)
	}
	return e
}

func parseKeys(directives []*ast.Directive) []Key {
	var keys []Key
	for _, d := range directives {
		if d.Name != "key" {
			continue
		}
		k := Key{Resolvable: true}
		for _, arg := range d.Arguments {
			switch arg.Name.String() {
			case "fields":
				k.FieldSet = strings.Trim(arg.Value.String(), "\"")
			case "resolvable":
				if arg.Value.String() == "false" {
					k.Resolvable = false
				}
			}
		}
		keys = append(keys, k)
	}
	return keys
}

func parseField(fd *ast.FieldDefinition) *Field {
	f := &Field{
		Name:     fd.Name.String(),
		Type:     fd.Type,
		Requires: []string{},
		Provides: []string{},
	}
	for _, d := range fd.Directives {
		switch d.Name {
		case "requires":
			if len(d.Arguments) > 0 {
				f.Requires = strings.Fields(strings.Trim(d.Arguments[0].Value.String(), "\""))
			}
		case "provides":
			if len(d.Arguments) > 0 {
				f.Provides = strings.Fields(strings.Trim(d.Arguments[0].Value.String(), "\""))
			}
		case "shareable":
			f.Shareable = true
		case "external":
			f.External = true
		case "inaccessible":
			f.Inaccessible = true
		case "authenticated":
			f.Authenticated = true
		case "requiresScopes":
			if len(d.Arguments) > 0 {
				f.RequiredScopes = strings.Fields(strings.Trim(d.Arguments[0].Value.String(), "\""))
			}
		case "authorized":
			f.Authorized = true
		case "override":
			for _, arg := range d.Arguments {
				if arg.Name.String() == "from" {
					f.Override = &Override{From: strings.Trim(arg.Value.String(), "\"")}
				}
			}
		}
	}
	return f
}

func hasDirective(directives []*ast.Directive, name string) bool {
	for _, d := range directives {
		if d.Name == name {
			return true
		}
	}
	return false
}

// GetEntities returns every entity this subgraph contributes.
func (sg *SubGraph) GetEntities() map[string]*Entity { return sg.entities }

// GetEntity looks up a single entity by type name.
func (sg *SubGraph) GetEntity(name string) (*Entity, bool) {
	e, ok := sg.entities[name]
	return e, ok
}
