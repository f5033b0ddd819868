package ddl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/envsync/envsync/internal/depgraph"
	"github.com/envsync/envsync/internal/schema"
)

// Source fetches the creation DDL of an object.
type Source interface {
	DDL(ctx context.Context, ref schema.ObjectRef) (string, error)
}

// EmptyDDLError is returned when the catalog produced no DDL for an object.
type EmptyDDLError struct {
	Ref schema.ObjectRef
}

func (e *EmptyDDLError) Error() string {
	return "empty DDL returned for " + e.Ref.String()
}

// ExportedLedger tracks objects already written to a migration file,
// including files from earlier runs.
type ExportedLedger struct {
	set map[schema.ObjectRef]struct{}
}

// NewExportedLedger returns a ledger seeded with refs.
func NewExportedLedger(refs ...schema.ObjectRef) *ExportedLedger {
	l := &ExportedLedger{set: make(map[schema.ObjectRef]struct{}, len(refs))}
	for _, r := range refs {
		l.Mark(r)
	}
	return l
}

// Has reports whether ref was exported.
func (l *ExportedLedger) Has(ref schema.ObjectRef) bool {
	_, ok := l.set[schema.NewObjectRef(ref.Name, ref.Schema, ref.Kind)]
	return ok
}

// Mark records ref as exported.
func (l *ExportedLedger) Mark(ref schema.ObjectRef) {
	l.set[schema.NewObjectRef(ref.Name, ref.Schema, ref.Kind)] = struct{}{}
}

// Len returns the number of exported objects.
func (l *ExportedLedger) Len() int {
	return len(l.set)
}

// Emitter walks dependency trees children first and collects DDL for every
// object not exported yet.
type Emitter struct {
	src      Source
	exported *ExportedLedger
	logger   *slog.Logger
}

// NewEmitter creates an Emitter. A nil ledger starts empty.
func NewEmitter(src Source, exported *ExportedLedger, logger *slog.Logger) *Emitter {
	if exported == nil {
		exported = NewExportedLedger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{src: src, exported: exported, logger: logger}
}

// Exported returns the ledger shared by every Emit call.
func (e *Emitter) Exported() *ExportedLedger {
	return e.exported
}

type emitFrame struct {
	id       int
	children []int
	next     int
}

// Emit returns the DDL of tree in dependency order. A child already exported
// is skipped together with its subtree. A node reached again while its own
// subtree is still open (a cycle) is emitted on the spot as a leaf.
func (e *Emitter) Emit(ctx context.Context, tree *depgraph.Tree) (*Bucket, error) {
	bucket := NewBucket()
	root := tree.Root()
	entered := map[int]bool{root: true}
	stack := []*emitFrame{{id: root, children: tree.Children(root)}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.children) {
			c := top.children[top.next]
			top.next++
			if e.exported.Has(tree.Ref(c)) {
				continue
			}
			grandchildren := tree.Children(c)
			if entered[c] || len(grandchildren) == 0 {
				if err := e.emit(ctx, bucket, tree.Ref(c)); err != nil {
					return nil, err
				}
				continue
			}
			entered[c] = true
			stack = append(stack, &emitFrame{id: c, children: grandchildren})
			continue
		}

		stack = stack[:len(stack)-1]
		if !e.exported.Has(tree.Ref(top.id)) {
			if err := e.emit(ctx, bucket, tree.Ref(top.id)); err != nil {
				return nil, err
			}
		}
	}
	return bucket, nil
}

func (e *Emitter) emit(ctx context.Context, bucket *Bucket, ref schema.ObjectRef) error {
	text, err := e.src.DDL(ctx, ref)
	if err != nil {
		return fmt.Errorf("getting DDL for %s: %w", ref, err)
	}
	if strings.TrimSpace(text) == "" {
		return &EmptyDDLError{Ref: ref}
	}
	bucket.Add(ref, text)
	e.exported.Mark(ref)
	e.logger.Debug("emitted DDL", "object", ref.String(), "class", ref.Kind.Class().String())
	return nil
}
