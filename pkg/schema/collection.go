package schema

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
)

type (
	// Collection is the ordered set of desired objects for one schema
	// group. Declaration order is preserved; the resolver uses it as the
	// tie-break when the dependency graph does not otherwise constrain two
	// objects.
	Collection struct {
		objects []*Object
	}
)

// NewCollection parses an ordered sequence of DDL statements into a
// Collection. Parsing fails fatally on the first unclassifiable statement,
// and duplicate identity keys within the group are rejected.
func NewCollection(statements []string) (*Collection, error) {
	c := &Collection{objects: make([]*Object, 0, len(statements))}
	seen := make(map[string]bool, len(statements))

	for i, sql := range statements {
		obj, err := NewObject(sql)
		if err != nil {
			return nil, errors.Wrapf(err, "statement %d", i+1)
		}
		if obj.directiveOnly {
			c.objects = append(c.objects, obj)
			continue
		}
		if seen[obj.Key()] {
			return nil, errors.Errorf("duplicate object %s %s", obj.Type, obj.Name)
		}
		seen[obj.Key()] = true
		c.objects = append(c.objects, obj)
	}

	return c, nil
}

// Objects returns the objects in declaration order.
func (c *Collection) Objects() []*Object {
	return c.objects
}

// Len returns the number of objects in the collection.
func (c *Collection) Len() int {
	return len(c.objects)
}

// Expand resolves directive markers into concrete generated objects and
// returns the working set for one install call. AUTOPROC directives generate
// CRUD procedures for their target table, appended after the authored
// objects; directive-only statements are consumed in the process. INDEXEDVIEW
// needs no generation: the marked view's install slot ahead of its index is
// enforced by the index's dependency edge on the view. Expand only checks
// that the marked statement really is a schema-bound view, since creating
// an index on a view without SCHEMABINDING fails on the engine.
//
// Expansion happens once per install call; generated objects are part of the
// working set only, never author-visible entities.
func (c *Collection) Expand() (*Collection, error) {
	tables := make(map[string]*Object)
	for _, obj := range c.objects {
		if obj.Type == parser.TypeTable && !obj.directiveOnly {
			tables[obj.Name] = obj
		}
	}

	out := &Collection{objects: make([]*Object, 0, len(c.objects))}
	seen := make(map[string]bool, len(c.objects))
	var generated []*Object

	for _, obj := range c.objects {
		if obj.Markers.IndexedView {
			if obj.Type != parser.TypeView {
				return nil, errors.Errorf("INDEXEDVIEW directive on %s %s must mark a view", obj.Type, obj.Name)
			}
			if !strings.Contains(strings.ToUpper(obj.Sql), "SCHEMABINDING") {
				return nil, errors.Errorf("indexed view %s must be created WITH SCHEMABINDING", obj.Name)
			}
		}

		if !obj.directiveOnly {
			out.objects = append(out.objects, obj)
			seen[obj.Key()] = true
		}

		directive := obj.Markers.AutoProc
		if directive == nil {
			continue
		}

		target := obj
		if directive.Table != "" {
			target = tables[directive.Table]
			if target == nil {
				return nil, errors.Errorf("AUTOPROC directive targets unknown table %s", directive.Table)
			}
		} else if obj.Type != parser.TypeTable {
			return nil, errors.Errorf("AUTOPROC directive on %s %s must name a table", obj.Type, obj.Name)
		}

		procs, err := GenerateProcs(target, directive.Verbs)
		if err != nil {
			return nil, err
		}
		generated = append(generated, procs...)
	}

	for _, proc := range generated {
		if seen[proc.Key()] {
			return nil, errors.Errorf("generated procedure %s collides with an authored object", proc.Name)
		}
		seen[proc.Key()] = true
		out.objects = append(out.objects, proc)
	}

	return out, nil
}
