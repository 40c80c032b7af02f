package testutil

import (
	"github.com/roach88/docagg/internal/ast"
)

// Lambda builds a lambda from parameters and a body.
func Lambda(params []*ast.Param, body ast.Node) *ast.Lambda {
	return &ast.Lambda{Params: params, Body: body}
}

// AmountAbove is x => x.Amount > n.
func AmountAbove(n int64) *ast.Lambda {
	x := Row("x")
	return Lambda([]*ast.Param{x}, &ast.Binary{
		Op:    ast.OpGt,
		Left:  Member(Sale(), x, "Amount"),
		Right: ast.IntLiteral(n),
	})
}

// ByStore is x => x.StoreId.
func ByStore() *ast.Lambda {
	x := Row("x")
	return Lambda([]*ast.Param{x}, Member(Sale(), x, "StoreId"))
}

// CountSeed is first => SaleAggregate(1).
func CountSeed() *ast.Lambda {
	return Lambda([]*ast.Param{Row("first")}, &ast.Construct{
		Type: SaleAggregate(),
		Args: []ast.Node{ast.IntLiteral(1)},
	})
}

// CountSales is (aggregate, current) => SaleAggregate{Count: aggregate.Count + 1}.
func CountSales() *ast.Lambda {
	agg := SaleAggregate()
	aggregate := &ast.Param{Slot: 0, Name: "aggregate", TypeName: agg.Name}
	current := &ast.Param{Slot: 1, Name: "current", TypeName: "Sale"}
	return Lambda([]*ast.Param{aggregate, current}, &ast.Construct{Type: agg, Fields: []ast.Assignment{
		{Field: "Count", Value: &ast.Binary{Op: ast.OpAdd, Left: Member(agg, aggregate, "Count"), Right: ast.IntLiteral(1)}},
	}})
}

// SumStoreCounts combines documents shaped like SaleStoreAggregate:
// (a, c) => SaleStoreAggregate{Count: a.Count + c.Count, StoreId: a.StoreId}.
func SumStoreCounts() *ast.Lambda {
	store := SaleStoreAggregate()
	a := &ast.Param{Slot: 0, Name: "a", TypeName: store.Name}
	c := &ast.Param{Slot: 1, Name: "c", TypeName: store.Name}
	return Lambda([]*ast.Param{a, c}, &ast.Construct{Type: store, Fields: []ast.Assignment{
		{Field: "Count", Value: &ast.Binary{Op: ast.OpAdd, Left: Member(store, a, "Count"), Right: Member(store, c, "Count")}},
		{Field: "StoreId", Value: Member(store, a, "StoreId")},
	}})
}

// StoreKey is x => x.StoreId over SaleStoreAggregate-shaped documents.
func StoreKey() *ast.Lambda {
	store := SaleStoreAggregate()
	x := &ast.Param{Slot: 0, Name: "x", TypeName: store.Name}
	return Lambda([]*ast.Param{x}, Member(store, x, "StoreId"))
}
