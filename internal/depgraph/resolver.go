package depgraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/envsync/envsync/internal/schema"
)

// Catalog is the subset of catalog queries the resolver depends on.
type Catalog interface {
	// ForeignKeys returns the constraints going out of table, excluding
	// self references.
	ForeignKeys(ctx context.Context, table, owner string) ([]schema.TableConstraint, error)

	// Triggers returns the triggers defined on table.
	Triggers(ctx context.Context, table, owner string, includeDisabled bool) ([]schema.Trigger, error)

	// Dependencies returns the objects ref depends on, excluding itself,
	// system owned objects and well known noise.
	Dependencies(ctx context.Context, ref schema.ObjectRef) ([]schema.ObjectRef, error)
}

// Resolver builds dependency trees into a shared arena. One Resolver is one
// run: the arena is its processed ledger.
type Resolver struct {
	catalog Catalog
	graph   *Graph
	logger  *slog.Logger

	// IncludeDisabledTriggers attaches disabled table triggers as well.
	IncludeDisabledTriggers bool
}

// NewResolver creates a Resolver with an empty ledger.
func NewResolver(catalog Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, graph: NewGraph(), logger: logger}
}

// Graph returns the run's arena.
func (r *Resolver) Graph() *Graph {
	return r.graph
}

type frame struct {
	id       int
	children []schema.ObjectRef
	next     int
}

// Resolve discovers the transitive dependencies of root. Resolving an object
// that is already processed returns a leaf tree.
func (r *Resolver) Resolve(ctx context.Context, root schema.ObjectRef) (*Tree, error) {
	root = schema.NewObjectRef(root.Name, root.Schema, root.Kind)
	first := r.graph.Len()
	if id, ok := r.graph.Lookup(root); ok {
		r.logger.Debug("object already processed", "object", root.String())
		return &Tree{graph: r.graph, root: id, first: first, end: first}, nil
	}

	children, err := r.discover(ctx, root, nil)
	if err != nil {
		return nil, err
	}
	stack := []*frame{{id: r.graph.add(root), children: children}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		if top.next >= len(top.children) {
			stack = stack[:len(stack)-1]
			continue
		}
		child := top.children[top.next]
		top.next++

		if id, ok := r.graph.Lookup(child); ok {
			r.graph.link(top.id, id)
			continue
		}
		parent := r.graph.nodes[top.id].Ref
		grandchildren, err := r.discover(ctx, child, &parent)
		if err != nil {
			return nil, err
		}
		id := r.graph.add(child)
		r.graph.link(top.id, id)
		stack = append(stack, &frame{id: id, children: grandchildren})
	}

	return &Tree{graph: r.graph, root: first, first: first, end: r.graph.Len()}, nil
}

// discover returns the direct dependencies of ref, deduplicated by name and
// kind in first-seen order.
func (r *Resolver) discover(ctx context.Context, ref schema.ObjectRef, parent *schema.ObjectRef) ([]schema.ObjectRef, error) {
	var deps []schema.ObjectRef
	switch ref.Kind {
	case schema.KindTable:
		fks, err := r.catalog.ForeignKeys(ctx, ref.Name, ref.Schema)
		if err != nil {
			return nil, fmt.Errorf("getting foreign keys of %s: %w", ref, err)
		}
		for _, fk := range fks {
			fk = fk.Normalized()
			deps = append(deps, schema.NewObjectRef(fk.ReferencedTable, fk.ReferencedSchema, schema.KindTable))
		}
		triggers, err := r.catalog.Triggers(ctx, ref.Name, ref.Schema, r.IncludeDisabledTriggers)
		if err != nil {
			return nil, fmt.Errorf("getting triggers of %s: %w", ref, err)
		}
		for _, trg := range triggers {
			deps = append(deps, schema.NewObjectRef(trg.Name, trg.Owner, schema.KindTrigger))
		}
	default:
		found, err := r.catalog.Dependencies(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("getting dependencies of %s: %w", ref, err)
		}
		for _, dep := range found {
			dep = schema.NewObjectRef(dep.Name, dep.Schema, dep.Kind)
			if dep == ref {
				continue
			}
			// the table a trigger fires on is its parent, not a dependency
			if ref.Kind == schema.KindTrigger && parent != nil &&
				parent.Kind == schema.KindTable && dep == *parent {
				continue
			}
			deps = append(deps, dep)
		}
	}

	deps = lo.UniqBy(deps, func(d schema.ObjectRef) string {
		return string(d.Kind) + ":" + d.Name
	})
	r.logger.Debug("discovered dependencies", "object", ref.String(), "count", len(deps))
	return deps, nil
}
