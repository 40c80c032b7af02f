package pipeline

import (
	"testing"

	"github.com/roach88/docagg/internal/ast"
	"github.com/roach88/docagg/internal/testutil"
)

func lambda(params []*ast.Param, body ast.Node) *ast.Lambda {
	return &ast.Lambda{Params: params, Body: body}
}

func amountAbove(n int64) *ast.Lambda {
	x := testutil.Row("x")
	return lambda([]*ast.Param{x}, &ast.Binary{
		Op:    ast.OpGt,
		Left:  testutil.Member(testutil.Sale(), x, "Amount"),
		Right: ast.IntLiteral(n),
	})
}

func byStore() *ast.Lambda {
	x := testutil.Row("x")
	return lambda([]*ast.Param{x}, testutil.Member(testutil.Sale(), x, "StoreId"))
}

func countSales() *ast.Lambda {
	agg := testutil.SaleAggregate()
	aggregate := &ast.Param{Slot: 0, Name: "aggregate", TypeName: "SaleAggregate"}
	current := &ast.Param{Slot: 1, Name: "current", TypeName: "Sale"}
	return lambda([]*ast.Param{aggregate, current}, &ast.Construct{Type: agg, Fields: []ast.Assignment{
		{Field: "Count", Value: &ast.Binary{Op: ast.OpAdd, Left: testutil.Member(agg, aggregate, "Count"), Right: ast.IntLiteral(1)}},
	}})
}

func identityResult() *ast.Lambda {
	aggregate := &ast.Param{Slot: 0, Name: "aggregate"}
	return lambda([]*ast.Param{aggregate}, aggregate)
}

// storeTotals sums sales above 3 per store.
func storeTotals() []Stage {
	sale := testutil.Sale()
	store := testutil.SaleStoreAggregate()
	first := testutil.Row("first")
	aggregate := &ast.Param{Slot: 0, Name: "aggregate", TypeName: "SaleStoreAggregate"}
	current := &ast.Param{Slot: 1, Name: "current", TypeName: "Sale"}

	seed := lambda([]*ast.Param{first}, &ast.Construct{Type: store, Fields: []ast.Assignment{
		{Field: "Count", Value: ast.IntLiteral(1)},
		{Field: "StoreId", Value: testutil.Member(sale, first, "StoreId")},
		{Field: "TotalAmount", Value: testutil.Member(sale, first, "Amount")},
	}})
	combine := lambda([]*ast.Param{aggregate, current}, &ast.Construct{Type: store, Fields: []ast.Assignment{
		{Field: "Count", Value: &ast.Binary{Op: ast.OpAdd, Left: testutil.Member(store, aggregate, "Count"), Right: ast.IntLiteral(1)}},
		{Field: "StoreId", Value: testutil.Member(store, aggregate, "StoreId")},
		{Field: "TotalAmount", Value: &ast.Binary{
			Op:    ast.OpAdd,
			Left:  testutil.Member(store, aggregate, "TotalAmount"),
			Right: testutil.Member(sale, current, "Amount"),
		}},
	}})
	result := lambda([]*ast.Param{aggregate}, &ast.Construct{Type: store, Fields: []ast.Assignment{
		{Field: "Count", Value: testutil.Member(store, aggregate, "Count")},
		{Field: "StoreId", Value: testutil.Member(store, aggregate, "StoreId")},
		{Field: "AverageAmount", Value: &ast.Binary{
			Op:    ast.OpDiv,
			Left:  testutil.Member(store, aggregate, "TotalAmount"),
			Right: testutil.Member(store, aggregate, "Count"),
		}},
		{Field: "TotalAmount", Value: testutil.Member(store, aggregate, "TotalAmount")},
	}})

	return New().
		Where(amountAbove(3)).
		GroupBy(byStore()).
		AggregateSeeded(seed, combine).
		Select(result).
		Stages()
}
