package responsetree_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/responsetree"
)

func productShape() *responsetree.Shape {
	return responsetree.NewShape("Product", []responsetree.FieldSpec{
		{Name: "name", Nullable: true},
		{Name: "id", Nullable: false},
	})
}

func rootShape() *responsetree.Shape {
	return responsetree.NewShape("Query", []responsetree.FieldSpec{
		{Name: "product", Nullable: true},
	})
}

func TestSerialize_PreservesFieldOrderNotArenaOrder(t *testing.T) {
	tree := responsetree.New(rootShape())
	prod := tree.InsertObject(productShape())
	if err := tree.Write(prod, "id", responsetree.StringValue("1")); err != nil {
		t.Fatalf("Write id: %v", err)
	}
	if err := tree.Write(prod, "name", responsetree.StringValue("Widget")); err != nil {
		t.Fatalf("Write name: %v", err)
	}
	if err := tree.Write(tree.Root(), "product", responsetree.ObjectValue(prod)); err != nil {
		t.Fatalf("Write product: %v", err)
	}

	out, errs := tree.Serialize()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := `{"product":{"name":"Widget","id":"1"}}`
	if string(out) != want {
		t.Errorf("Serialize() = %s, want %s", out, want)
	}
}

func TestPropagateNull_StopsAtNullableAncestor(t *testing.T) {
	tree := responsetree.New(rootShape())
	prod := tree.InsertObject(productShape())
	if err := tree.Write(tree.Root(), "product", responsetree.ObjectValue(prod)); err != nil {
		t.Fatalf("Write product: %v", err)
	}

	path := responsetree.Path{
		{Object: tree.Root(), Field: "product", Nullable: true},
		{Object: prod, Field: "id", Nullable: false},
	}
	if err := tree.PropagateNull(path, "subgraph returned no id"); err != nil {
		t.Fatalf("PropagateNull: %v", err)
	}

	out, errs := tree.Serialize()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	want := `{"product":null}`
	if string(out) != want {
		t.Errorf("Serialize() = %s, want %s", out, want)
	}
}

func TestPropagateNull_CollapsesWholeResponseWhenNoAncestorIsNullable(t *testing.T) {
	strictRoot := responsetree.NewShape("Query", []responsetree.FieldSpec{
		{Name: "product", Nullable: false},
	})
	tree := responsetree.New(strictRoot)

	path := responsetree.Path{
		{Object: tree.Root(), Field: "product", Nullable: false},
	}
	if err := tree.PropagateNull(path, "required field failed"); err != nil {
		t.Fatalf("PropagateNull: %v", err)
	}

	out, errs := tree.Serialize()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if string(out) != "null" {
		t.Errorf("Serialize() = %s, want null", out)
	}
}

func TestMakeInaccessible_NullsForSerializationOnly(t *testing.T) {
	tree := responsetree.New(rootShape())
	prod := tree.InsertObject(productShape())
	if err := tree.Write(prod, "name", responsetree.StringValue("Secret Widget")); err != nil {
		t.Fatalf("Write name: %v", err)
	}
	if err := tree.Write(prod, "id", responsetree.StringValue("1")); err != nil {
		t.Fatalf("Write id: %v", err)
	}
	if err := tree.MakeInaccessible(prod, "name"); err != nil {
		t.Fatalf("MakeInaccessible: %v", err)
	}
	if err := tree.Write(tree.Root(), "product", responsetree.ObjectValue(prod)); err != nil {
		t.Fatalf("Write product: %v", err)
	}

	out, _ := tree.Serialize()
	want := `{"product":{"name":null,"id":"1"}}`
	if string(out) != want {
		t.Errorf("Serialize() = %s, want %s", out, want)
	}
}

func TestInsertList_PreservesPositionalItems(t *testing.T) {
	tree := responsetree.New(rootShape())
	list := tree.InsertList(2)
	if err := tree.WriteListItem(list, 0, responsetree.NumberValue(1)); err != nil {
		t.Fatalf("WriteListItem: %v", err)
	}
	if err := tree.WriteListItem(list, 1, responsetree.NumberValue(2)); err != nil {
		t.Fatalf("WriteListItem: %v", err)
	}

	shapeWithList := responsetree.NewShape("Query", []responsetree.FieldSpec{{Name: "ids", Nullable: true}})
	tree2 := responsetree.New(shapeWithList)
	list2 := tree2.InsertList(2)
	tree2.WriteListItem(list2, 0, responsetree.NumberValue(1))
	tree2.WriteListItem(list2, 1, responsetree.NumberValue(2))
	tree2.Write(tree2.Root(), "ids", responsetree.ListValue(list2))

	out, _ := tree2.Serialize()
	want := `{"ids":[1,2]}`
	if string(out) != want {
		t.Errorf("Serialize() = %s, want %s", out, want)
	}
}
