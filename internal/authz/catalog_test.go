package authz_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gatewise/gatewise/internal/authz"
)

func testTree() authz.NodeSpec {
	return authz.NodeSpec{
		Code: "ALL", Name: "Everything",
		Children: []authz.NodeSpec{
			{Code: "A", Name: "Group A", Children: []authz.NodeSpec{
				{Code: "A_1", Name: "Leaf A1"},
				{Code: "A_2", Name: "Leaf A2"},
			}},
			{Code: "B", Name: "Group B", Children: []authz.NodeSpec{
				{Code: "B_1", Name: "Leaf B1"},
			}},
		},
	}
}

func TestExpandInteriorNode(t *testing.T) {
	catalog, err := authz.NewCatalog(testTree())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	set, err := catalog.Expand("A")
	if err != nil {
		t.Fatalf("expand A: %v", err)
	}
	want := []string{"A", "A_1", "A_2"}
	if got := set.Codes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expand A = %v, want %v", got, want)
	}
}

func TestExpandLeafIsSelf(t *testing.T) {
	catalog := authz.MustCatalog(testTree())

	set, err := catalog.Expand("B_1")
	if err != nil {
		t.Fatalf("expand B_1: %v", err)
	}
	if got := set.Codes(); !reflect.DeepEqual(got, []string{"B_1"}) {
		t.Fatalf("expand B_1 = %v, want [B_1]", got)
	}
}

func TestExpandRootCoversCatalog(t *testing.T) {
	catalog := authz.MustCatalog(testTree())

	set, err := catalog.Expand(catalog.Root())
	if err != nil {
		t.Fatalf("expand root: %v", err)
	}
	for _, node := range catalog.Nodes() {
		if !set.Has(node.Code) {
			t.Fatalf("root expansion missing %s", node.Code)
		}
	}
	if len(set) != len(catalog.Nodes()) {
		t.Fatalf("root expansion has %d codes, catalog has %d nodes", len(set), len(catalog.Nodes()))
	}
}

func TestExpandUnknownCode(t *testing.T) {
	catalog := authz.MustCatalog(testTree())

	if _, err := catalog.Expand("NOPE"); !errors.Is(err, authz.ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestExpandReturnsCopy(t *testing.T) {
	catalog := authz.MustCatalog(testTree())

	first, _ := catalog.Expand("A")
	delete(first, "A_1")
	second, _ := catalog.Expand("A")
	if !second.Has("A_1") {
		t.Fatal("mutating an expansion leaked into the catalog")
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	spec := authz.NodeSpec{
		Code: "ALL",
		Children: []authz.NodeSpec{
			{Code: "X"},
			{Code: "X"},
		},
	}
	if _, err := authz.NewCatalog(spec); err == nil {
		t.Fatal("expected error for duplicate code")
	}
}

func TestNewCatalogRejectsEmptyCode(t *testing.T) {
	spec := authz.NodeSpec{
		Code:     "ALL",
		Children: []authz.NodeSpec{{Code: ""}},
	}
	if _, err := authz.NewCatalog(spec); err == nil {
		t.Fatal("expected error for empty code")
	}
}

func TestNodesPreservesDeclarationOrder(t *testing.T) {
	catalog := authz.MustCatalog(testTree())

	var codes []string
	for _, node := range catalog.Nodes() {
		codes = append(codes, node.Code)
	}
	want := []string{"ALL", "A", "A_1", "A_2", "B", "B_1"}
	if !reflect.DeepEqual(codes, want) {
		t.Fatalf("node order = %v, want %v", codes, want)
	}
}

func TestDefaultCatalogIsWellFormed(t *testing.T) {
	catalog := authz.DefaultCatalog()

	if catalog.Root() != authz.PermAll {
		t.Fatalf("root = %s, want %s", catalog.Root(), authz.PermAll)
	}
	for _, code := range []string{authz.PermListUsers, authz.PermPublishGraph, authz.PermManageSessions} {
		if !catalog.Contains(code) {
			t.Fatalf("default catalog missing %s", code)
		}
	}
	set, err := catalog.Expand(authz.PermUserAdmin)
	if err != nil {
		t.Fatalf("expand %s: %v", authz.PermUserAdmin, err)
	}
	for _, code := range []string{authz.PermUserAdmin, authz.PermListUsers, authz.PermCreateUser, authz.PermEditUser, authz.PermManageOverrides, authz.PermDeactivateUser} {
		if !set.Has(code) {
			t.Fatalf("expand %s missing %s", authz.PermUserAdmin, code)
		}
	}
}
