package depgraph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/envsync/envsync/internal/database"
	"github.com/envsync/envsync/internal/schema"
)

func ref(name string, kind schema.Kind) schema.ObjectRef {
	return schema.NewObjectRef(name, "THE", kind)
}

// seedlotCatalog: SEEDLOT references CLIENT_LOCATION and carries the
// enabled trigger SEEDLOT_TRG, which reads SEEDLOT_SEQ.
func seedlotCatalog() *database.MockDB {
	db := database.NewMockDB("THE")
	db.FKs = []schema.TableConstraint{{
		Name: "SEEDLOT_CL_FK", Schema: "THE", Table: "SEEDLOT", Columns: []string{"CLIENT_NUMBER"},
		ReferencedSchema: "THE", ReferencedTable: "CLIENT_LOCATION", ReferencedColumns: []string{"CLIENT_NUMBER"},
	}}
	db.TriggerList = []schema.Trigger{
		{Name: "SEEDLOT_TRG", Owner: "THE", Table: "SEEDLOT", Enabled: true},
		{Name: "SEEDLOT_OLD_TRG", Owner: "THE", Table: "SEEDLOT", Enabled: false},
	}
	db.Deps[ref("SEEDLOT_TRG", schema.KindTrigger)] = []schema.ObjectRef{
		ref("SEEDLOT_SEQ", schema.KindSequence),
		ref("SEEDLOT", schema.KindTable),
	}
	return db
}

func childRefs(tree *Tree, id int) []string {
	var out []string
	for _, c := range tree.Children(id) {
		out = append(out, tree.Ref(c).Name)
	}
	return out
}

func TestResolveSeedlot(t *testing.T) {
	r := NewResolver(seedlotCatalog(), nil)
	tree, err := r.Resolve(context.Background(), schema.NewObjectRef("seedlot", "the", schema.KindTable))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root := tree.Root()
	if got := strings.Join(childRefs(tree, root), ","); got != "CLIENT_LOCATION,SEEDLOT_TRG" {
		t.Errorf("unexpected root children: %s", got)
	}
	trg, ok := r.Graph().Lookup(ref("SEEDLOT_TRG", schema.KindTrigger))
	if !ok {
		t.Fatal("expected trigger to be processed")
	}
	// the parent table is not a dependency of its trigger
	if got := strings.Join(childRefs(tree, trg), ","); got != "SEEDLOT_SEQ" {
		t.Errorf("unexpected trigger children: %s", got)
	}
	if r.Graph().Processed(ref("SEEDLOT_OLD_TRG", schema.KindTrigger)) {
		t.Error("disabled trigger should not be attached")
	}
	if r.Graph().Len() != 4 {
		t.Errorf("expected 4 processed objects, got %d", r.Graph().Len())
	}
}

func TestResolveTwiceIsLeaf(t *testing.T) {
	db := seedlotCatalog()
	r := NewResolver(db, nil)
	ctx := context.Background()
	root := ref("SEEDLOT", schema.KindTable)

	if _, err := r.Resolve(ctx, root); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	calls := db.DepCalls[ref("SEEDLOT_TRG", schema.KindTrigger)]

	tree, err := r.Resolve(ctx, root)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !tree.Leaf() {
		t.Error("expected the second resolution to be a leaf")
	}
	if len(tree.Children(tree.Root())) != 0 {
		t.Errorf("expected no children, got %v", childRefs(tree, tree.Root()))
	}
	if db.DepCalls[ref("SEEDLOT_TRG", schema.KindTrigger)] != calls {
		t.Error("expected no further catalog queries")
	}
}

func TestResolveCycleTerminates(t *testing.T) {
	db := database.NewMockDB("THE")
	a, b := ref("PKG_A", schema.KindPackage), ref("PKG_B", schema.KindPackage)
	db.AddObject(a, "CREATE PACKAGE A", b)
	db.AddObject(b, "CREATE PACKAGE B", a)

	r := NewResolver(db, nil)
	tree, err := r.Resolve(context.Background(), a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Graph().Len() != 2 {
		t.Errorf("expected 2 processed objects, got %d", r.Graph().Len())
	}
	if db.DepCalls[a] != 1 || db.DepCalls[b] != 1 {
		t.Errorf("expected each object queried once, got %v", db.DepCalls)
	}
	rendered := tree.Render()
	if rendered.Count() != 3 {
		t.Errorf("expected A > B > A(leaf), got %d nodes", rendered.Count())
	}
}

func TestResolveDeduplicatesSiblings(t *testing.T) {
	db := database.NewMockDB("THE")
	db.FKs = []schema.TableConstraint{
		{Name: "FK1", Schema: "THE", Table: "ORDERS", Columns: []string{"A"}, ReferencedSchema: "THE", ReferencedTable: "CLIENT", ReferencedColumns: []string{"A"}},
		{Name: "FK2", Schema: "THE", Table: "ORDERS", Columns: []string{"B"}, ReferencedSchema: "THE", ReferencedTable: "CLIENT", ReferencedColumns: []string{"B"}},
		{Name: "FK3", Schema: "THE", Table: "ORDERS", Columns: []string{"P"}, ReferencedSchema: "THE", ReferencedTable: "ORDERS", ReferencedColumns: []string{"ID"}},
	}
	r := NewResolver(db, nil)
	tree, err := r.Resolve(context.Background(), ref("ORDERS", schema.KindTable))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := childRefs(tree, tree.Root()); len(got) != 1 || got[0] != "CLIENT" {
		t.Errorf("expected a single CLIENT child, got %v", got)
	}
}

func TestResolveSharesLedgerAcrossRoots(t *testing.T) {
	db := database.NewMockDB("THE")
	shared := ref("SHARED_FN", schema.KindFunction)
	db.AddObject(ref("PROC_A", schema.KindProcedure), "", shared)
	db.AddObject(ref("PROC_B", schema.KindProcedure), "", shared)
	db.AddObject(shared, "", ref("UTIL_SEQ", schema.KindSequence))

	r := NewResolver(db, nil)
	ctx := context.Background()
	if _, err := r.Resolve(ctx, ref("PROC_A", schema.KindProcedure)); err != nil {
		t.Fatalf("resolve A: %v", err)
	}
	tree, err := r.Resolve(ctx, ref("PROC_B", schema.KindProcedure))
	if err != nil {
		t.Fatalf("resolve B: %v", err)
	}
	children := tree.Children(tree.Root())
	if len(children) != 1 || tree.Ref(children[0]) != shared {
		t.Fatalf("expected SHARED_FN child, got %v", childRefs(tree, tree.Root()))
	}
	if len(tree.Children(children[0])) != 0 {
		t.Error("an object processed by an earlier resolution should be a leaf")
	}
	if db.DepCalls[shared] != 1 {
		t.Errorf("expected SHARED_FN queried once, got %d", db.DepCalls[shared])
	}
}

func TestResolveCatalogError(t *testing.T) {
	db := database.NewMockDB("THE")
	db.CatalogErr = errors.New("ORA-00942: table or view does not exist")
	r := NewResolver(db, nil)
	if _, err := r.Resolve(context.Background(), ref("SEEDLOT", schema.KindTable)); err == nil {
		t.Fatal("expected error")
	}
	if r.Graph().Len() != 0 {
		t.Error("a failed resolution should not mark the root processed")
	}
}

func TestRenderText(t *testing.T) {
	r := NewResolver(seedlotCatalog(), nil)
	tree, err := r.Resolve(context.Background(), ref("SEEDLOT", schema.KindTable))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rendered := tree.Render()
	if rendered.Count() != 4 {
		t.Errorf("expected 4 nodes, got %d", rendered.Count())
	}
	text := rendered.Text()
	for _, name := range []string{"SEEDLOT", "CLIENT_LOCATION", "SEEDLOT_TRG", "SEEDLOT_SEQ"} {
		if !strings.Contains(text, name) {
			t.Errorf("expected %s in rendered text:\n%s", name, text)
		}
	}
	if strings.Index(text, "SEEDLOT_TRG") > strings.Index(text, "SEEDLOT_SEQ") {
		t.Error("expected the sequence nested under its trigger")
	}

	byKind := r.Graph().ProcessedByKind()
	if len(byKind[schema.KindTable]) != 2 || len(byKind[schema.KindTrigger]) != 1 {
		t.Errorf("unexpected processed ledger: %v", byKind)
	}
}
